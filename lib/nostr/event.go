package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Timestamp is a unix time in seconds.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

// FromTime converts t to a Timestamp, dropping sub-second precision.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// Time converts the timestamp back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

// Event is a NIP-01 event.
type Event struct {
	ID        string    `json:"id"`
	PubKey    string    `json:"pubkey"`
	CreatedAt Timestamp `json:"created_at"`
	Kind      int       `json:"kind"`
	Tags      Tags      `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// Serialize returns the canonical array [0,pubkey,created_at,kind,tags,content]
// whose sha256 is the event id.
func (evt *Event) Serialize() []byte {
	dst := make([]byte, 0, 100+len(evt.Content)+len(evt.Tags)*80)
	dst = append(dst, `[0,"`...)
	dst = append(dst, evt.PubKey...)
	dst = append(dst, `",`...)
	dst = strconv.AppendInt(dst, int64(evt.CreatedAt), 10)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(evt.Kind), 10)
	dst = append(dst, ',')
	dst = evt.Tags.appendJSON(dst)
	dst = append(dst, ',')
	dst = appendEscaped(dst, evt.Content)
	dst = append(dst, ']')
	return dst
}

// GetID computes the id from the current fields without modifying the event.
func (evt *Event) GetID() string {
	h := sha256.Sum256(evt.Serialize())
	return hex.EncodeToString(h[:])
}

// CheckID reports whether ID matches the event content.
func (evt *Event) CheckID() bool {
	return evt.ID == evt.GetID()
}

// MarshalJSON writes the event with the same string escaping used for id
// computation, so a relay re-hashing the received JSON gets the same id.
func (evt Event) MarshalJSON() ([]byte, error) {
	dst := make([]byte, 0, 200+len(evt.Content)+len(evt.Tags)*80)
	dst = append(dst, `{"id":"`...)
	dst = append(dst, evt.ID...)
	dst = append(dst, `","pubkey":"`...)
	dst = append(dst, evt.PubKey...)
	dst = append(dst, `","created_at":`...)
	dst = strconv.AppendInt(dst, int64(evt.CreatedAt), 10)
	dst = append(dst, `,"kind":`...)
	dst = strconv.AppendInt(dst, int64(evt.Kind), 10)
	dst = append(dst, `,"tags":`...)
	dst = evt.Tags.appendJSON(dst)
	dst = append(dst, `,"content":`...)
	dst = appendEscaped(dst, evt.Content)
	dst = append(dst, `,"sig":"`...)
	dst = append(dst, evt.Sig...)
	dst = append(dst, `"}`...)
	return dst, nil
}

// String returns the JSON form of the event.
func (evt Event) String() string {
	b, _ := evt.MarshalJSON()
	return string(b)
}

// ParseEvent decodes a JSON event. The id is not verified.
func ParseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// appendEscaped writes s as a JSON string using the NIP-01 escaping rules.
func appendEscaped(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		case '\r':
			dst = append(dst, '\\', 'r')
		case '\t':
			dst = append(dst, '\\', 't')
		case '\b':
			dst = append(dst, '\\', 'b')
		case '\f':
			dst = append(dst, '\\', 'f')
		default:
			if c < 0x20 {
				const hexdigits = "0123456789abcdef"
				dst = append(dst, '\\', 'u', '0', '0', hexdigits[c>>4], hexdigits[c&0xf])
			} else {
				dst = append(dst, c)
			}
		}
	}
	return append(dst, '"')
}
