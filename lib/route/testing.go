package route

import (
	"github.com/go-i2p/nostr-onion/lib/nostr"
)

// TestHop is a hop identity with its secret key, for tests that need to
// decrypt the layers addressed to it.
type TestHop struct {
	SecretKey string
	Pubkey    string
}

// NewTestHops generates n random hop identities.
func NewTestHops(n int) ([]TestHop, error) {
	hops := make([]TestHop, n)
	for i := range hops {
		sk, err := nostr.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		pk, err := nostr.GetPublicKey(sk)
		if err != nil {
			return nil, err
		}
		hops[i] = TestHop{SecretKey: sk, Pubkey: pk}
	}
	return hops, nil
}
