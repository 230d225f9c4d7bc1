package onion

import "errors"

// These use errors.New (not oops.Errorf) so callers can match them with errors.Is().
var (
	ErrEncodingFailure = errors.New("onion encoding failed")
	ErrNotAddressed    = errors.New("layer is not addressed to this key")
	ErrMalformedLayer  = errors.New("malformed onion layer")
	ErrUnknownVariant  = errors.New("event is not an onion layer or note")
)
