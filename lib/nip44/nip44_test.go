package nip44

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	sk, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return sk
}

func TestCalcPaddedLen(t *testing.T) {
	cases := map[int]int{
		1: 32, 16: 32, 32: 32, 33: 64, 65: 96, 100: 128,
		200: 224, 320: 320, 515: 640, 1020: 1024, 65535: 65536,
	}
	for in, want := range cases {
		assert.Equal(t, want, calcPaddedLen(in), "len %d", in)
	}
}

func TestConversationKeyIsSymmetric(t *testing.T) {
	a := newKeyPair(t)
	b := newKeyPair(t)
	assert.Equal(t,
		GenerateConversationKey(a, b.PubKey()),
		GenerateConversationKey(b, a.PubKey()))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := newKeyPair(t)
	b := newKeyPair(t)
	sender := GenerateConversationKey(a, b.PubKey())
	receiver := GenerateConversationKey(b, a.PubKey())

	for _, msg := range []string{"a", "hello onion", strings.Repeat("x", 300), strings.Repeat("é", 2000)} {
		payload, err := Encrypt(msg, sender)
		require.NoError(t, err)
		assert.Equal(t, byte('A'), payload[0], "version 2 payloads start with 'A' in base64")

		got, err := Decrypt(payload, receiver)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	ck := GenerateConversationKey(newKeyPair(t), newKeyPair(t).PubKey())
	p1, err := Encrypt("same", ck)
	require.NoError(t, err)
	p2, err := Encrypt("same", ck)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestEncryptRejectsSize(t *testing.T) {
	ck := GenerateConversationKey(newKeyPair(t), newKeyPair(t).PubKey())
	_, err := Encrypt("", ck)
	assert.ErrorIs(t, err, ErrPlaintextSize)
	_, err = Encrypt(strings.Repeat("x", 65536), ck)
	assert.ErrorIs(t, err, ErrPlaintextSize)
}

func TestDecryptFailures(t *testing.T) {
	a := newKeyPair(t)
	b := newKeyPair(t)
	ck := GenerateConversationKey(a, b.PubKey())
	payload, err := Encrypt("secret", ck)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		other := GenerateConversationKey(newKeyPair(t), b.PubKey())
		_, err := Decrypt(payload, other)
		assert.ErrorIs(t, err, ErrInvalidMAC)
	})

	t.Run("flipped byte", func(t *testing.T) {
		raw := []byte(payload)
		if raw[50] == 'A' {
			raw[50] = 'B'
		} else {
			raw[50] = 'A'
		}
		_, err := Decrypt(string(raw), ck)
		assert.Error(t, err)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		_, err := Decrypt("#"+payload, ck)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := Decrypt("AgAA", ck)
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func secretKeyFromHex(t *testing.T, s string) *btcec.PrivateKey {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	sk, _ := btcec.PrivKeyFromBytes(raw)
	return sk
}

func xOnlyKeyFromHex(t *testing.T, s string) *btcec.PublicKey {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	pub, err := schnorr.ParsePubKey(raw)
	require.NoError(t, err)
	return pub
}

func nonceFromHex(t *testing.T, s string) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString(s)
	require.NoError(t, err)
	var nonce [32]byte
	copy(nonce[:], raw)
	return nonce
}

// Vectors from the NIP-44 v2 test suite.
func TestConversationKeyVectors(t *testing.T) {
	tests := []struct {
		sec  string
		pub  string
		want string
	}{
		{
			"315e59ff51cb9209768cf7da80791ddcaae56ac9775eb25b6dee1234bc5d2268",
			"c2f9d9948dc8c7c38321e4b85c8558872eafa0641cd269db76848a6073e69133",
			"3dfef0ce2a4d80a25e7a328accf73448ef67096f65f79588e358d9a0eb9013f1",
		},
		{
			"0000000000000000000000000000000000000000000000000000000000000001",
			"c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5",
			"c41c775356fd92eadc63ff5a0dc1da211b268cbea22316767095b2871ea1412d",
		},
	}
	for _, tt := range tests {
		ck := GenerateConversationKey(secretKeyFromHex(t, tt.sec), xOnlyKeyFromHex(t, tt.pub))
		assert.Equal(t, tt.want, hex.EncodeToString(ck[:]))
	}
}

func TestEncryptVectors(t *testing.T) {
	tests := []struct {
		sec1      string
		sec2      string
		nonce     string
		plaintext string
		payload   string
	}{
		{
			sec1:      "0000000000000000000000000000000000000000000000000000000000000001",
			sec2:      "0000000000000000000000000000000000000000000000000000000000000002",
			nonce:     "0000000000000000000000000000000000000000000000000000000000000001",
			plaintext: "a",
			payload:   "AgAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABee0G5VSK0/9YypIObAtDKfYEAjD35uVkHyB0F4DwrcNaCXlCWZKaArsGrY6M9wnuTMxWfp1RTN9Xga8no+kF5Vsb",
		},
		{
			sec1:      "0000000000000000000000000000000000000000000000000000000000000002",
			sec2:      "0000000000000000000000000000000000000000000000000000000000000001",
			nonce:     "f000000000000000000000000000000000000000000000000000000000000000",
			plaintext: "\U0001F355\U0001FAC3",
			payload:   "AvAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAU8k5LIKL0Fa4+Jocu2tyRBmhmn5sCTy0y38jOZ2jqkhc/h+IydBRGaPudxg3A6HgfaYW3wzJ8X2W8TgyYSgpKV3E",
		},
	}
	for _, tt := range tests {
		sk1 := secretKeyFromHex(t, tt.sec1)
		sk2 := secretKeyFromHex(t, tt.sec2)
		ck := GenerateConversationKey(sk1, sk2.PubKey())
		assert.Equal(t, ck, GenerateConversationKey(sk2, sk1.PubKey()))

		payload, err := EncryptWithNonce(tt.plaintext, ck, nonceFromHex(t, tt.nonce))
		require.NoError(t, err)
		assert.Equal(t, tt.payload, payload)

		plaintext, err := Decrypt(tt.payload, ck)
		require.NoError(t, err)
		assert.Equal(t, tt.plaintext, plaintext)
	}
}
