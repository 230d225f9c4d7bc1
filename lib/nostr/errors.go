package nostr

import "errors"

// Sentinel errors for event and key handling.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrInvalidSecretKey = errors.New("invalid secret key")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidID        = errors.New("event id does not match its content")
	ErrInvalidSignature = errors.New("invalid event signature")
	ErrInvalidBech32    = errors.New("invalid bech32 identifier")
)
