package nostr

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/samber/oops"
)

const (
	tlvSpecial = 0
	tlvRelay   = 1
	tlvAuthor  = 2
	tlvKind    = 3
)

// EncodeNpub returns the npub form of a hex public key.
func EncodeNpub(pk string) (string, error) {
	return encodeKey("npub", pk)
}

// EncodeNsec returns the nsec form of a hex secret key.
func EncodeNsec(sk string) (string, error) {
	return encodeKey("nsec", sk)
}

// DecodeNpub returns the hex public key of an npub.
func DecodeNpub(npub string) (string, error) {
	pk, err := decodeKey("npub", npub)
	if err != nil {
		return "", err
	}
	if !IsValidPublicKey(pk) {
		return "", ErrInvalidPublicKey
	}
	return pk, nil
}

// DecodeNsec returns the hex secret key of an nsec.
func DecodeNsec(nsec string) (string, error) {
	sk, err := decodeKey("nsec", nsec)
	if err != nil {
		return "", err
	}
	if _, err := ParseSecretKey(sk); err != nil {
		return "", err
	}
	return sk, nil
}

// EncodeNevent returns an nevent reference to an event, with optional relay
// hints and author.
func EncodeNevent(id string, relays []string, author string, kind int) (string, error) {
	rawID, err := hex.DecodeString(id)
	if err != nil || len(rawID) != 32 {
		return "", oops.Errorf("invalid event id %q", id)
	}
	buf := appendTLV(nil, tlvSpecial, rawID)
	for _, r := range relays {
		buf = appendTLV(buf, tlvRelay, []byte(r))
	}
	if author != "" {
		rawAuthor, err := hex.DecodeString(author)
		if err != nil || len(rawAuthor) != 32 {
			return "", oops.Wrapf(ErrInvalidPublicKey, "nevent author %q", author)
		}
		buf = appendTLV(buf, tlvAuthor, rawAuthor)
	}
	if kind > 0 {
		var k [4]byte
		binary.BigEndian.PutUint32(k[:], uint32(kind))
		buf = appendTLV(buf, tlvKind, k[:])
	}
	return encodeBech32("nevent", buf)
}

func appendTLV(dst []byte, typ byte, value []byte) []byte {
	dst = append(dst, typ, byte(len(value)))
	return append(dst, value...)
}

func encodeKey(hrp, key string) (string, error) {
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != 32 {
		return "", oops.Wrapf(ErrInvalidBech32, "%s key must be 32 hex bytes", hrp)
	}
	return encodeBech32(hrp, raw)
}

func encodeBech32(hrp string, data []byte) (string, error) {
	bits5, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", oops.Wrapf(err, "bech32 conversion failed")
	}
	return bech32.Encode(hrp, bits5)
}

func decodeKey(hrp, s string) (string, error) {
	prefix, bits5, err := bech32.Decode(s)
	if err != nil {
		return "", oops.Wrapf(ErrInvalidBech32, "%s", err.Error())
	}
	if prefix != hrp {
		return "", oops.Wrapf(ErrInvalidBech32, "expected %s, got %s", hrp, prefix)
	}
	data, err := bech32.ConvertBits(bits5, 5, 8, false)
	if err != nil {
		return "", oops.Wrapf(ErrInvalidBech32, "%s", err.Error())
	}
	if len(data) != 32 {
		return "", oops.Wrapf(ErrInvalidBech32, "%s payload must be 32 bytes", hrp)
	}
	return hex.EncodeToString(data), nil
}
