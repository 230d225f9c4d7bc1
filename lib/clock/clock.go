// Package clock supplies the time source used for hop expirations and layer
// timestamps. The NTP clock corrects a skewed system clock so that relays do
// not reject layers as too far in the future.
package clock

import (
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the local system clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Used in tests.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }
