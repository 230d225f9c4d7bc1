package nostr

// Event kinds used by onion routing.
const (
	KindTextNote       = 1
	KindRelayList      = 10002
	KindExpiringLayer  = 2747
	KindEphemeralLayer = 20747
)
