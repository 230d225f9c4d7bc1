package route

import "errors"

// These use errors.New (not oops.Errorf) so callers can match them with errors.Is().
var (
	ErrInvalidFee     = errors.New("fee must be between 1 and the remaining pool total")
	ErrEmptyRoute     = errors.New("route has no hops")
	ErrPoolExhausted  = errors.New("token pool is exhausted")
	ErrRouteFrozen    = errors.New("route is frozen")
	ErrComposerClosed = errors.New("composer already finished")
)
