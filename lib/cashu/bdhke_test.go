package cashu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToCurveDeterministic(t *testing.T) {
	a, err := HashToCurve([]byte("secret"))
	require.NoError(t, err)
	b, err := HashToCurve([]byte("secret"))
	require.NoError(t, err)
	c, err := HashToCurve([]byte("other"))
	require.NoError(t, err)

	assert.True(t, a.IsEqual(b))
	assert.False(t, a.IsEqual(c))
	assert.Equal(t, byte(0x02), a.SerializeCompressed()[0])
}

func TestBlindSignatureRoundTrip(t *testing.T) {
	k, err := randomScalar()
	require.NoError(t, err)
	r, err := randomScalar()
	require.NoError(t, err)
	secret := []byte("407915bc212be61a77e3e6d2aeb4c727980bda51cd06a6afc29e2861768a7837")

	B, err := BlindMessage(secret, r)
	require.NoError(t, err)
	C_ := SignBlinded(B, k)
	C := UnblindSignature(C_, r, k.PubKey())

	assert.True(t, VerifyProof(secret, C, k))
	assert.False(t, VerifyProof([]byte("tampered"), C, k))

	other, err := randomScalar()
	require.NoError(t, err)
	assert.False(t, VerifyProof(secret, C, other))
}
