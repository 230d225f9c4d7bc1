package onion

import (
	"strconv"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/samber/oops"
)

// Variant is the closed set of events seen while tracing an onion.
type Variant int

const (
	EphemeralLayer Variant = iota + 1
	ExpiringLayer
	PlaintextNote
)

func (v Variant) String() string {
	switch v {
	case EphemeralLayer:
		return "ephemeral-layer"
	case ExpiringLayer:
		return "expiring-layer"
	case PlaintextNote:
		return "plaintext-note"
	default:
		return "unknown"
	}
}

// IsLayer reports whether v is one of the layer kinds.
func (v Variant) IsLayer() bool {
	return v == EphemeralLayer || v == ExpiringLayer
}

// Classify maps an event to its Variant. Layers must carry a p tag.
func Classify(evt *nostr.Event) (Variant, error) {
	if evt == nil {
		return 0, ErrUnknownVariant
	}
	switch evt.Kind {
	case nostr.KindEphemeralLayer, nostr.KindExpiringLayer:
		if _, ok := evt.Tags.GetFirstValue("p"); !ok {
			return 0, oops.Wrapf(ErrMalformedLayer, "layer %s has no p tag", evt.ID)
		}
		if evt.Kind == nostr.KindExpiringLayer {
			return ExpiringLayer, nil
		}
		return EphemeralLayer, nil
	case nostr.KindTextNote:
		return PlaintextNote, nil
	default:
		return 0, oops.Wrapf(ErrUnknownVariant, "kind %d", evt.Kind)
	}
}

// Recipient returns the p tag of a layer.
func Recipient(layer *nostr.Event) string {
	p, _ := layer.Tags.GetFirstValue("p")
	return p
}

// RelayHint returns the relay in a layer's p tag, if any.
func RelayHint(layer *nostr.Event) string {
	tag := layer.Tags.Find("p")
	if len(tag) > 2 {
		return tag[2]
	}
	return ""
}

// Expiration returns the expiration tag of a layer, or zero.
func Expiration(layer *nostr.Event) nostr.Timestamp {
	v, ok := layer.Tags.GetFirstValue("expiration")
	if !ok {
		return 0
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return nostr.Timestamp(ts)
}
