package onion

import (
	"testing"

	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/go-i2p/nostr-onion/lib/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeelWrongKey(t *testing.T) {
	hops, err := route.NewTestHops(2)
	require.NoError(t, err)
	payload, _ := signedNote(t, "hi")
	o, err := testEncoder(1).Encode(payload, handBuiltRoute(t, hops))
	require.NoError(t, err)

	_, err = Peel(o.Outer, hops[1].SecretKey, nil)
	assert.ErrorIs(t, err, ErrNotAddressed)
}

func TestPeelTamperedLayer(t *testing.T) {
	hops, err := route.NewTestHops(1)
	require.NoError(t, err)
	payload, _ := signedNote(t, "hi")
	o, err := testEncoder(1).Encode(payload, handBuiltRoute(t, hops))
	require.NoError(t, err)

	tampered := *o.Outer
	tampered.Content = tampered.Content[:len(tampered.Content)-4] + "AAAA"
	_, err = Peel(&tampered, hops[0].SecretKey, nil)
	assert.ErrorIs(t, err, ErrMalformedLayer)
}

func TestPeelRejectsNote(t *testing.T) {
	note, sk := signedNote(t, "plain")
	_, err := Peel(note, sk, nil)
	assert.ErrorIs(t, err, ErrMalformedLayer)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		evt     *nostr.Event
		want    Variant
		wantErr error
	}{
		{"note", &nostr.Event{Kind: nostr.KindTextNote}, PlaintextNote, nil},
		{"expiring", &nostr.Event{Kind: nostr.KindExpiringLayer, Tags: nostr.Tags{{"p", "ab"}}}, ExpiringLayer, nil},
		{"ephemeral", &nostr.Event{Kind: nostr.KindEphemeralLayer, Tags: nostr.Tags{{"p", "ab"}}}, EphemeralLayer, nil},
		{"layer without p", &nostr.Event{Kind: nostr.KindExpiringLayer}, 0, ErrMalformedLayer},
		{"relay list", &nostr.Event{Kind: nostr.KindRelayList}, 0, ErrUnknownVariant},
		{"nil", nil, 0, ErrUnknownVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.evt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "expiring-layer", ExpiringLayer.String())
	assert.Equal(t, "unknown", Variant(0).String())
}
