package onion

import (
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/samber/oops"
)

// Peeled is the content of one layer as seen by its hop.
type Peeled struct {
	Variant    Variant
	Inner      *nostr.Event
	Token      string
	Relay      string
	Expiration nostr.Timestamp
}

// Peel decrypts a layer with the secret key of the hop it is addressed to.
// The layer's own pubkey is the one-time key used for key agreement.
func Peel(layer *nostr.Event, hopSecret string, cipher Cipher) (*Peeled, error) {
	if cipher == nil {
		cipher = NIP44{}
	}
	variant, err := Classify(layer)
	if err != nil {
		return nil, err
	}
	if !variant.IsLayer() {
		return nil, oops.Wrapf(ErrMalformedLayer, "%s is not a layer", variant)
	}
	if err := nostr.CheckSignature(layer); err != nil {
		return nil, oops.Wrapf(ErrMalformedLayer, "%s", err.Error())
	}

	hopPubkey, err := nostr.GetPublicKey(hopSecret)
	if err != nil {
		return nil, err
	}
	if Recipient(layer) != hopPubkey {
		return nil, oops.Wrapf(ErrNotAddressed, "layer %s is for %s", layer.ID, Recipient(layer))
	}

	ck, err := cipher.ConversationKey(hopSecret, layer.PubKey)
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedLayer, "key agreement: %s", err.Error())
	}
	innerJSON, err := cipher.Decrypt(layer.Content, ck)
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedLayer, "content: %s", err.Error())
	}
	inner, err := nostr.ParseEvent([]byte(innerJSON))
	if err != nil {
		return nil, oops.Wrapf(ErrMalformedLayer, "inner event: %s", err.Error())
	}

	peeled := &Peeled{
		Variant:    variant,
		Inner:      inner,
		Relay:      RelayHint(layer),
		Expiration: Expiration(layer),
	}
	if enc, ok := layer.Tags.GetFirstValue("cashu"); ok {
		token, err := cipher.Decrypt(enc, ck)
		if err != nil {
			return nil, oops.Wrapf(ErrMalformedLayer, "payment: %s", err.Error())
		}
		peeled.Token = token
	}
	return peeled, nil
}
