package tracer

import "errors"

var (
	// ErrTracingAbandoned is returned by Wait when the caller gives up before
	// the note is seen. The onion may still be delivered.
	ErrTracingAbandoned = errors.New("tracing abandoned before delivery was observed")
	// ErrSubscriptionEnded means every relay dropped the subscription.
	ErrSubscriptionEnded = errors.New("relay subscription ended before delivery was observed")
	ErrNothingToTrace    = errors.New("onion has no layers to trace")
)
