package relay

import "errors"

// These use errors.New (not oops.Errorf) so callers can match them with errors.Is().
var (
	ErrPublishFailure  = errors.New("no relay accepted the event")
	ErrRejected        = errors.New("relay rejected the event")
	ErrRelayClosed     = errors.New("relay connection closed")
	ErrNoRelays        = errors.New("no relays available")
	ErrUnknownEnvelope = errors.New("unknown relay message")
)
