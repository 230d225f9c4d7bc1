package nostr

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// GeneratePrivateKey returns a random secp256k1 secret key as 64 hex characters.
func GeneratePrivateKey() (string, error) {
	var buf [32]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", oops.Wrapf(err, "failed to read random bytes for secret key")
		}
		var s btcec.ModNScalar
		if overflow := s.SetByteSlice(buf[:]); overflow || s.IsZero() {
			continue
		}
		return hex.EncodeToString(buf[:]), nil
	}
}

// ParseSecretKey decodes a hex secret key.
func ParseSecretKey(sk string) (*btcec.PrivateKey, error) {
	raw, err := hex.DecodeString(sk)
	if err != nil || len(raw) != 32 {
		return nil, oops.Wrapf(ErrInvalidSecretKey, "secret key must be 32 hex bytes")
	}
	var s btcec.ModNScalar
	if overflow := s.SetByteSlice(raw); overflow || s.IsZero() {
		return nil, oops.Wrapf(ErrInvalidSecretKey, "secret key out of range")
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// ParsePublicKey decodes a 32 byte x-only hex public key.
func ParsePublicKey(pk string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(pk)
	if err != nil || len(raw) != 32 {
		return nil, oops.Wrapf(ErrInvalidPublicKey, "public key must be 32 hex bytes")
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, oops.Wrapf(ErrInvalidPublicKey, "%s", err.Error())
	}
	return pub, nil
}

// GetPublicKey returns the x-only public key for a hex secret key.
func GetPublicKey(sk string) (string, error) {
	priv, err := ParseSecretKey(sk)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())), nil
}

// IsValidPublicKey reports whether pk is a valid x-only public key.
func IsValidPublicKey(pk string) bool {
	_, err := ParsePublicKey(pk)
	return err == nil
}

// Sign fills PubKey, ID and Sig of evt using the secret key sk.
func Sign(evt *Event, sk string) error {
	priv, err := ParseSecretKey(sk)
	if err != nil {
		return err
	}
	evt.PubKey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))

	h := sha256.Sum256(evt.Serialize())
	sig, err := schnorr.Sign(priv, h[:])
	if err != nil {
		return oops.Wrapf(err, "schnorr signing failed")
	}
	evt.ID = hex.EncodeToString(h[:])
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// CheckSignature verifies both the id and the signature of evt.
func CheckSignature(evt *Event) error {
	if !evt.CheckID() {
		return ErrInvalidID
	}
	pub, err := ParsePublicKey(evt.PubKey)
	if err != nil {
		return err
	}
	rawSig, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return oops.Wrapf(ErrInvalidSignature, "signature is not hex")
	}
	sig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return oops.Wrapf(ErrInvalidSignature, "%s", err.Error())
	}
	id, _ := hex.DecodeString(evt.ID)
	if !sig.Verify(id, pub) {
		return ErrInvalidSignature
	}
	return nil
}

// NormalizeSecretKey accepts a hex or nsec secret key and returns it as hex.
// An empty input yields a freshly generated key.
func NormalizeSecretKey(input string) (string, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		log.WithField("at", "NormalizeSecretKey").Debug("no secret key given, generating one")
		return GeneratePrivateKey()
	case strings.HasPrefix(input, "nsec1"):
		return DecodeNsec(input)
	default:
		sk := strings.ToLower(input)
		if _, err := ParseSecretKey(sk); err != nil {
			return "", err
		}
		return sk, nil
	}
}

// NormalizePublicKey accepts a hex or npub public key and returns it as hex.
func NormalizePublicKey(input string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "npub1") {
		return DecodeNpub(input)
	}
	pk := strings.ToLower(input)
	if !IsValidPublicKey(pk) {
		return "", oops.Wrapf(ErrInvalidPublicKey, "%q", input)
	}
	return pk, nil
}
