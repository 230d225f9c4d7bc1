package nostr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecretKeyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		sk   string
	}{
		{"empty", ""},
		{"not hex", strings.Repeat("zz", 32)},
		{"short", "abcd"},
		{"zero", strings.Repeat("00", 32)},
		{"curve order overflow", strings.Repeat("ff", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSecretKey(tt.sk)
			assert.ErrorIs(t, err, ErrInvalidSecretKey)
		})
	}
}

func TestNip19KeyRoundTrip(t *testing.T) {
	sk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pk, err := GetPublicKey(sk)
	require.NoError(t, err)

	nsec, err := EncodeNsec(sk)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nsec, "nsec1"))
	decodedSk, err := DecodeNsec(nsec)
	require.NoError(t, err)
	assert.Equal(t, sk, decodedSk)

	npub, err := EncodeNpub(pk)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(npub, "npub1"))
	decodedPk, err := DecodeNpub(npub)
	require.NoError(t, err)
	assert.Equal(t, pk, decodedPk)

	_, err = DecodeNsec(npub)
	assert.ErrorIs(t, err, ErrInvalidBech32, "hrp mismatch")
}

func TestNormalizeSecretKey(t *testing.T) {
	sk, err := GeneratePrivateKey()
	require.NoError(t, err)
	nsec, err := EncodeNsec(sk)
	require.NoError(t, err)

	got, err := NormalizeSecretKey(nsec)
	require.NoError(t, err)
	assert.Equal(t, sk, got)

	got, err = NormalizeSecretKey("  " + strings.ToUpper(sk) + "\n")
	require.NoError(t, err)
	assert.Equal(t, sk, got)

	generated, err := NormalizeSecretKey("")
	require.NoError(t, err)
	assert.Len(t, generated, 64)
	assert.NotEqual(t, sk, generated)

	_, err = NormalizeSecretKey("garbage")
	assert.Error(t, err)
}

func TestNormalizePublicKey(t *testing.T) {
	sk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pk, err := GetPublicKey(sk)
	require.NoError(t, err)
	npub, err := EncodeNpub(pk)
	require.NoError(t, err)

	got, err := NormalizePublicKey(npub)
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	got, err = NormalizePublicKey(pk)
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	_, err = NormalizePublicKey("npub1nope")
	assert.Error(t, err)
}

func TestEncodeNevent(t *testing.T) {
	id := strings.Repeat("ab", 32)
	nevent, err := EncodeNevent(id, []string{"wss://relay.example"}, "", KindTextNote)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(nevent, "nevent1"))

	_, err = EncodeNevent("xyz", nil, "", 0)
	assert.Error(t, err)
}
