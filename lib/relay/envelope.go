package relay

import (
	"github.com/go-i2p/nostr-onion/lib/nostr"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/oops"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope labels.
const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelOK     = "OK"
	LabelEOSE   = "EOSE"
	LabelNotice = "NOTICE"
	LabelClosed = "CLOSED"
)

// Envelope is any message exchanged with a relay.
type Envelope interface {
	Label() string
}

// EventEnvelope carries an event. SubscriptionID is empty when a client
// publishes.
type EventEnvelope struct {
	SubscriptionID string
	Event          *nostr.Event
}

type ReqEnvelope struct {
	SubscriptionID string
	Filters        nostr.Filters
}

type CloseEnvelope struct {
	SubscriptionID string
}

type OKEnvelope struct {
	EventID string
	OK      bool
	Reason  string
}

type EOSEEnvelope struct {
	SubscriptionID string
}

type NoticeEnvelope struct {
	Message string
}

type ClosedEnvelope struct {
	SubscriptionID string
	Reason         string
}

func (EventEnvelope) Label() string  { return LabelEvent }
func (ReqEnvelope) Label() string    { return LabelReq }
func (CloseEnvelope) Label() string  { return LabelClose }
func (OKEnvelope) Label() string     { return LabelOK }
func (EOSEEnvelope) Label() string   { return LabelEOSE }
func (NoticeEnvelope) Label() string { return LabelNotice }
func (ClosedEnvelope) Label() string { return LabelClosed }

func (e EventEnvelope) MarshalJSON() ([]byte, error) {
	if e.SubscriptionID == "" {
		return json.Marshal([]interface{}{LabelEvent, e.Event})
	}
	return json.Marshal([]interface{}{LabelEvent, e.SubscriptionID, e.Event})
}

func (e ReqEnvelope) MarshalJSON() ([]byte, error) {
	arr := []interface{}{LabelReq, e.SubscriptionID}
	for _, f := range e.Filters {
		arr = append(arr, f)
	}
	return json.Marshal(arr)
}

func (e CloseEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{LabelClose, e.SubscriptionID})
}

func (e OKEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{LabelOK, e.EventID, e.OK, e.Reason})
}

func (e EOSEEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{LabelEOSE, e.SubscriptionID})
}

func (e NoticeEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{LabelNotice, e.Message})
}

func (e ClosedEnvelope) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{LabelClosed, e.SubscriptionID, e.Reason})
}

// ParseMessage decodes a relay or client message.
func ParseMessage(data []byte) (Envelope, error) {
	var arr []jsoniter.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, oops.Wrapf(err, "message is not a json array")
	}
	if len(arr) < 2 {
		return nil, oops.Wrapf(ErrUnknownEnvelope, "message too short")
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return nil, oops.Wrapf(ErrUnknownEnvelope, "label is not a string")
	}

	str := func(i int) (string, error) {
		var s string
		if i >= len(arr) {
			return "", oops.Errorf("%s message missing element %d", label, i)
		}
		err := json.Unmarshal(arr[i], &s)
		return s, err
	}

	switch label {
	case LabelEvent:
		env := EventEnvelope{}
		raw := arr[1]
		if len(arr) >= 3 {
			sub, err := str(1)
			if err != nil {
				return nil, err
			}
			env.SubscriptionID = sub
			raw = arr[2]
		}
		evt, err := nostr.ParseEvent(raw)
		if err != nil {
			return nil, oops.Wrapf(err, "invalid event in EVENT message")
		}
		env.Event = evt
		return env, nil
	case LabelReq:
		sub, err := str(1)
		if err != nil {
			return nil, err
		}
		env := ReqEnvelope{SubscriptionID: sub}
		for _, raw := range arr[2:] {
			var f nostr.Filter
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, oops.Wrapf(err, "invalid filter")
			}
			env.Filters = append(env.Filters, f)
		}
		return env, nil
	case LabelClose:
		sub, err := str(1)
		return CloseEnvelope{SubscriptionID: sub}, err
	case LabelOK:
		if len(arr) < 3 {
			return nil, oops.Wrapf(ErrUnknownEnvelope, "OK message too short")
		}
		id, err := str(1)
		if err != nil {
			return nil, err
		}
		env := OKEnvelope{EventID: id}
		if err := json.Unmarshal(arr[2], &env.OK); err != nil {
			return nil, oops.Wrapf(err, "invalid OK flag")
		}
		if len(arr) > 3 {
			env.Reason, _ = str(3)
		}
		return env, nil
	case LabelEOSE:
		sub, err := str(1)
		return EOSEEnvelope{SubscriptionID: sub}, err
	case LabelNotice:
		msg, err := str(1)
		return NoticeEnvelope{Message: msg}, err
	case LabelClosed:
		sub, err := str(1)
		if err != nil {
			return nil, err
		}
		env := ClosedEnvelope{SubscriptionID: sub}
		if len(arr) > 2 {
			env.Reason, _ = str(2)
		}
		return env, nil
	default:
		return nil, oops.Wrapf(ErrUnknownEnvelope, "%q", label)
	}
}
