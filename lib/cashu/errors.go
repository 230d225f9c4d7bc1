package cashu

import "errors"

// Sentinel errors for token handling.
// These use errors.New (not oops.Errorf) so callers can match them with errors.Is().
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrPoolConsumed        = errors.New("token pool already consumed")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrPaymentNotConfirmed = errors.New("funding invoice not paid")
	ErrInvalidToken        = errors.New("invalid cashu token")
	ErrMintMismatch        = errors.New("proofs belong to a different mint")
	ErrNoKeyset            = errors.New("mint has no active keyset for unit")
)
