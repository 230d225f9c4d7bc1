// Package nip44 implements version 2 of nostr payload encryption: an ECDH
// conversation key expanded per message with HKDF, ChaCha20 for
// confidentiality and HMAC-SHA256 for integrity.
package nip44

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-i2p/crypto/rand"
	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

const (
	version        = 2
	minPlaintext   = 1
	maxPlaintext   = 65535
	salt           = "nip44-v2"
	messageKeysLen = 76
)

var (
	ErrPlaintextSize  = errors.New("plaintext length out of range")
	ErrInvalidPayload = errors.New("invalid nip44 payload")
	ErrInvalidMAC     = errors.New("invalid nip44 mac")
)

// ConversationKey is the symmetric key shared by two parties.
type ConversationKey [32]byte

// GenerateConversationKey derives the key shared between a secret key and a
// peer's public key. The result is symmetric in the two parties.
func GenerateConversationKey(sk *btcec.PrivateKey, pub *btcec.PublicKey) ConversationKey {
	shared := btcec.GenerateSharedSecret(sk, pub)
	var ck ConversationKey
	copy(ck[:], hkdf.Extract(sha256.New, shared, []byte(salt)))
	return ck
}

// Encrypt encrypts plaintext with a random nonce.
func Encrypt(plaintext string, ck ConversationKey) (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", oops.Wrapf(err, "failed to generate nonce")
	}
	return EncryptWithNonce(plaintext, ck, nonce)
}

// EncryptWithNonce encrypts plaintext with a caller-supplied nonce. Only tests
// should choose nonces.
func EncryptWithNonce(plaintext string, ck ConversationKey, nonce [32]byte) (string, error) {
	chachaKey, chachaNonce, hmacKey, err := messageKeys(ck, nonce)
	if err != nil {
		return "", err
	}
	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", oops.Wrapf(err, "chacha20 setup failed")
	}
	ciphertext := make([]byte, len(padded))
	cipher.XORKeyStream(ciphertext, padded)

	mac := computeMAC(hmacKey, nonce[:], ciphertext)

	out := make([]byte, 0, 1+32+len(ciphertext)+32)
	out = append(out, version)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, mac...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt authenticates and decrypts a payload produced by Encrypt.
func Decrypt(payload string, ck ConversationKey) (string, error) {
	if len(payload) == 0 || payload[0] == '#' {
		return "", oops.Wrapf(ErrInvalidPayload, "unknown encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", oops.Wrapf(ErrInvalidPayload, "base64: %s", err.Error())
	}
	// version + nonce + 32 byte minimum padded block + prefix + mac
	if len(raw) < 1+32+34+32 {
		return "", oops.Wrapf(ErrInvalidPayload, "payload too short")
	}
	if raw[0] != version {
		return "", oops.Wrapf(ErrInvalidPayload, "unsupported version %d", raw[0])
	}

	var nonce [32]byte
	copy(nonce[:], raw[1:33])
	ciphertext := raw[33 : len(raw)-32]
	mac := raw[len(raw)-32:]

	chachaKey, chachaNonce, hmacKey, err := messageKeys(ck, nonce)
	if err != nil {
		return "", err
	}
	if !hmac.Equal(mac, computeMAC(hmacKey, nonce[:], ciphertext)) {
		return "", ErrInvalidMAC
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey, chachaNonce)
	if err != nil {
		return "", oops.Wrapf(err, "chacha20 setup failed")
	}
	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)
	return unpad(padded)
}

func messageKeys(ck ConversationKey, nonce [32]byte) (chachaKey, chachaNonce, hmacKey []byte, err error) {
	keys := make([]byte, messageKeysLen)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, ck[:], nonce[:]), keys); err != nil {
		return nil, nil, nil, oops.Wrapf(err, "hkdf expand failed")
	}
	return keys[0:32], keys[32:44], keys[44:76], nil
}

func computeMAC(key, nonce, ciphertext []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(nonce)
	h.Write(ciphertext)
	return h.Sum(nil)
}

// calcPaddedLen rounds a plaintext length up to the padding bucket.
func calcPaddedLen(l int) int {
	if l <= 32 {
		return 32
	}
	nextPower := 1 << bits.Len(uint(l-1))
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((l-1)/chunk + 1)
}

func pad(plaintext string) ([]byte, error) {
	l := len(plaintext)
	if l < minPlaintext || l > maxPlaintext {
		return nil, oops.Wrapf(ErrPlaintextSize, "%d bytes", l)
	}
	out := make([]byte, 2+calcPaddedLen(l))
	binary.BigEndian.PutUint16(out, uint16(l))
	copy(out[2:], plaintext)
	return out, nil
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2 {
		return "", oops.Wrapf(ErrInvalidPayload, "missing length prefix")
	}
	l := int(binary.BigEndian.Uint16(padded))
	if l < minPlaintext || 2+l > len(padded) || len(padded) != 2+calcPaddedLen(l) {
		return "", oops.Wrapf(ErrInvalidPayload, "invalid padding")
	}
	return string(padded[2 : 2+l]), nil
}
