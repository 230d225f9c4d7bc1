package onion

import (
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-i2p/logger"
	"github.com/go-i2p/nostr-onion/lib/clock"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Onion is an encoded message: the outer layer to publish, the innermost
// payload and the id of the layer addressed to each hop.
type Onion struct {
	Outer    *nostr.Event
	Payload  *nostr.Event
	LayerIDs map[int]string
}

// IDs returns the layer ids in hop order.
func (o *Onion) IDs() []string {
	ids := make([]string, len(o.LayerIDs))
	for i, id := range o.LayerIDs {
		ids[i] = id
	}
	return ids
}

// Encoder builds onions.
type Encoder struct {
	cipher          Cipher
	signer          Signer
	rng             *rand.Rand
	clock           clock.Clock
	createdAtJitter time.Duration
	newKey          func() (string, error)
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

func WithCipher(c Cipher) EncoderOption { return func(e *Encoder) { e.cipher = c } }

func WithSigner(s Signer) EncoderOption { return func(e *Encoder) { e.signer = s } }

func WithRand(rng *rand.Rand) EncoderOption { return func(e *Encoder) { e.rng = rng } }

func WithClock(c clock.Clock) EncoderOption { return func(e *Encoder) { e.clock = c } }

// WithCreatedAtJitter scales the per-position created_at offset. Default 2s.
func WithCreatedAtJitter(d time.Duration) EncoderOption {
	return func(e *Encoder) { e.createdAtJitter = d }
}

// WithKeyGenerator replaces the one-time key source.
func WithKeyGenerator(f func() (string, error)) EncoderOption {
	return func(e *Encoder) { e.newKey = f }
}

// NewEncoder returns an encoder using NIP-44 and schnorr signatures.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{
		cipher:          NIP44{},
		signer:          SchnorrSigner{},
		clock:           clock.System{},
		createdAtJitter: 2 * time.Second,
		newKey:          nostr.GeneratePrivateKey,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(e.clock.Now().UnixNano()))
	}
	return e
}

// Encode wraps payload for every hop of r, last hop first. The route is
// frozen and each hop's LayerID is filled in. On error nothing is written
// back and the error wraps ErrEncodingFailure.
func (e *Encoder) Encode(payload *nostr.Event, r *route.Route) (*Onion, error) {
	if payload == nil || payload.ID == "" {
		return nil, oops.Wrapf(ErrEncodingFailure, "payload must be signed")
	}
	if r == nil || r.Len() == 0 {
		return nil, oops.Wrapf(ErrEncodingFailure, "%s", route.ErrEmptyRoute.Error())
	}
	r.Freeze()

	now := nostr.FromTime(e.clock.Now())
	ids := make(map[int]string, r.Len())
	current := payload
	for i := r.Len() - 1; i >= 0; i-- {
		layer, err := e.wrap(current, r.Hops[i], i, now)
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "Encoder.Encode",
				"reason": "layer_failed",
				"hop":    i,
			}).WithError(err).Error("onion encoding aborted")
			return nil, oops.In("onion").With("hop", i).Wrapf(ErrEncodingFailure, "%s", err.Error())
		}
		ids[i] = layer.ID
		current = layer
	}

	for i, id := range ids {
		if err := r.SetLayerID(i, id); err != nil {
			return nil, oops.Wrapf(ErrEncodingFailure, "%s", err.Error())
		}
	}
	log.WithFields(logger.Fields{
		"at":    "Encoder.Encode",
		"hops":  r.Len(),
		"outer": current.ID,
	}).Debug("onion encoded")
	return &Onion{Outer: current, Payload: payload, LayerIDs: ids}, nil
}

func (e *Encoder) wrap(inner *nostr.Event, hop route.Hop, i int, now nostr.Timestamp) (*nostr.Event, error) {
	// the one-time key lives only for this layer
	sk, err := e.newKey()
	if err != nil {
		return nil, oops.Wrapf(err, "one-time key")
	}
	ck, err := e.cipher.ConversationKey(sk, hop.Pubkey)
	if err != nil {
		return nil, oops.Wrapf(err, "key agreement with %s", hop.Pubkey)
	}
	payment, err := e.cipher.Encrypt(hop.Token, ck)
	if err != nil {
		return nil, oops.Wrapf(err, "encrypting payment")
	}
	innerJSON, err := inner.MarshalJSON()
	if err != nil {
		return nil, oops.Wrapf(err, "serializing inner event")
	}
	content, err := e.cipher.Encrypt(string(innerJSON), ck)
	if err != nil {
		return nil, oops.Wrapf(err, "encrypting inner event")
	}

	p := nostr.Tag{"p", hop.Pubkey}
	if hop.Relay != "" {
		p = append(p, hop.Relay)
	}
	tags := nostr.Tags{p, {"cashu", payment}}
	kind := nostr.KindEphemeralLayer
	if hop.Expiration != 0 {
		kind = nostr.KindExpiringLayer
		tags = append(tags, nostr.Tag{"expiration", strconv.FormatInt(int64(hop.Expiration), 10)})
	}

	layer := &nostr.Event{
		Kind:      kind,
		CreatedAt: now + e.createdAtOffset(i),
		Content:   content,
		Tags:      tags,
	}
	if err := e.signer.Sign(layer, sk); err != nil {
		return nil, oops.Wrapf(err, "signing layer")
	}
	return layer, nil
}

// createdAtOffset is round(i * U[0,1) * jitter) seconds.
func (e *Encoder) createdAtOffset(i int) nostr.Timestamp {
	return nostr.Timestamp(math.Round(float64(i) * e.rng.Float64() * e.createdAtJitter.Seconds()))
}
