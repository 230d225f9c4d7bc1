package onion

import (
	"github.com/go-i2p/nostr-onion/lib/nip44"
	"github.com/go-i2p/nostr-onion/lib/nostr"
)

// Cipher agrees a key with a peer and encrypts layer fields under it.
type Cipher interface {
	ConversationKey(secretKey, peerPubkey string) (nip44.ConversationKey, error)
	Encrypt(plaintext string, key nip44.ConversationKey) (string, error)
	Decrypt(payload string, key nip44.ConversationKey) (string, error)
}

// Signer fills in the id, pubkey and signature of an event.
type Signer interface {
	Sign(evt *nostr.Event, secretKey string) error
}

// NIP44 is the default Cipher.
type NIP44 struct{}

func (NIP44) ConversationKey(secretKey, peerPubkey string) (nip44.ConversationKey, error) {
	sk, err := nostr.ParseSecretKey(secretKey)
	if err != nil {
		return nip44.ConversationKey{}, err
	}
	pub, err := nostr.ParsePublicKey(peerPubkey)
	if err != nil {
		return nip44.ConversationKey{}, err
	}
	return nip44.GenerateConversationKey(sk, pub), nil
}

func (NIP44) Encrypt(plaintext string, key nip44.ConversationKey) (string, error) {
	return nip44.Encrypt(plaintext, key)
}

func (NIP44) Decrypt(payload string, key nip44.ConversationKey) (string, error) {
	return nip44.Decrypt(payload, key)
}

// SchnorrSigner signs with BIP-340 schnorr signatures.
type SchnorrSigner struct{}

func (SchnorrSigner) Sign(evt *nostr.Event, secretKey string) error {
	return nostr.Sign(evt, secretKey)
}
