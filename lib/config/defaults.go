package config

import (
	"path/filepath"
	"time"

	"github.com/go-i2p/logger"
)

// Config contains all configuration values for nostr-onion.
// Defaults() returns the values used when the config file omits a key.
type Config struct {
	Route     RouteDefaults
	Relays    RelayDefaults
	Mint      MintDefaults
	NTP       NTPDefaults
	Directory DirectoryDefaults
	Tracer    TracerDefaults
}

// RouteDefaults controls how hop expirations and layer timestamps are spaced.
type RouteDefaults struct {
	// BaseInterval is the minimum time added to the expiration of each hop
	// relative to the previous one.
	// Default: 10 minutes
	BaseInterval time.Duration

	// Jitter is the upper bound of the random extra time added on top of
	// BaseInterval for every hop.
	// Default: 5 minutes
	Jitter time.Duration

	// CreatedAtJitter scales the per-position created_at offset of onion layers.
	// Default: 2 seconds
	CreatedAtJitter time.Duration
}

// RelayDefaults contains relay endpoints and network timeouts.
type RelayDefaults struct {
	// Directory relays are queried for kind 10002 relay lists.
	// Default: wss://purplepag.es
	Directory []string

	// Fallback is used when a mailbox has no usable relays.
	// Default: wss://nostrue.com
	Fallback []string

	// DialTimeout bounds the websocket handshake with a relay.
	// Default: 10 seconds
	DialTimeout time.Duration

	// PublishTimeout bounds how long to wait for an OK from a relay.
	// Default: 10 seconds
	PublishTimeout time.Duration

	// QueryTimeout bounds single-event queries such as relay list lookups.
	// Default: 8 seconds
	QueryTimeout time.Duration
}

// MintDefaults contains cashu mint settings.
type MintDefaults struct {
	// URL of the mint used for funding.
	// Default: https://mint.minibits.cash/Bitcoin
	URL string

	// Unit of the keyset to use.
	// Default: sat
	Unit string

	// PollInterval is the minimum delay between quote state checks.
	// Default: 3 seconds
	PollInterval time.Duration

	// RequestTimeout bounds each HTTP request to the mint.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// PaymentTimeout bounds how long to wait for a funding invoice to be paid.
	// Default: 10 minutes
	PaymentTimeout time.Duration
}

// NTPDefaults controls optional clock correction.
type NTPDefaults struct {
	// Enabled turns on an NTP query before timestamps are assigned.
	// Default: false
	Enabled bool

	// Servers are tried in order until one answers.
	// Default: pool.ntp.org servers
	Servers []string

	// Timeout for a single NTP query.
	// Default: 5 seconds
	Timeout time.Duration
}

// DirectoryDefaults points at the hop directory file.
type DirectoryDefaults struct {
	// Path of the YAML hop directory.
	// Default: $HOME/.nostr-onion/hops.yaml
	Path string
}

// TracerDefaults controls delivery tracing.
type TracerDefaults struct {
	// History is the number of progress notifications retained.
	// Default: 32
	History int

	// ViewerURL is prefixed to the nevent reference of the published note.
	// Default: https://nostrudel.ninja/#/l/
	ViewerURL string
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Route:     buildRouteDefaults(),
		Relays:    buildRelayDefaults(),
		Mint:      buildMintDefaults(),
		NTP:       buildNTPDefaults(),
		Directory: DirectoryDefaults{Path: filepath.Join(BuildDirPath(), "hops.yaml")},
		Tracer: TracerDefaults{
			History:   32,
			ViewerURL: "https://nostrudel.ninja/#/l/",
		},
	}
}

func buildRouteDefaults() RouteDefaults {
	return RouteDefaults{
		BaseInterval:    10 * time.Minute,
		Jitter:          5 * time.Minute,
		CreatedAtJitter: 2 * time.Second,
	}
}

func buildRelayDefaults() RelayDefaults {
	return RelayDefaults{
		Directory:      []string{"wss://purplepag.es"},
		Fallback:       []string{"wss://nostrue.com"},
		DialTimeout:    10 * time.Second,
		PublishTimeout: 10 * time.Second,
		QueryTimeout:   8 * time.Second,
	}
}

func buildMintDefaults() MintDefaults {
	return MintDefaults{
		URL:            "https://mint.minibits.cash/Bitcoin",
		Unit:           "sat",
		PollInterval:   3 * time.Second,
		RequestTimeout: 30 * time.Second,
		PaymentTimeout: 10 * time.Minute,
	}
}

func buildNTPDefaults() NTPDefaults {
	return NTPDefaults{
		Enabled: false,
		Servers: []string{"0.pool.ntp.org", "1.pool.ntp.org", "2.pool.ntp.org"},
		Timeout: 5 * time.Second,
	}
}

// Validate checks if the provided configuration values are reasonable.
// Returns an error describing the first invalid value found.
func Validate(cfg Config) error {
	log.WithFields(logger.Fields{
		"at":     "Validate",
		"reason": "verification_requested",
	}).Debug("validating configuration")
	validators := []func() error{
		func() error { return validateRoute(cfg.Route) },
		func() error { return validateRelays(cfg.Relays) },
		func() error { return validateMint(cfg.Mint) },
		func() error { return validateTracer(cfg.Tracer) },
	}
	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	return nil
}

// validateRoute rejects spacing that could not keep hop expirations strictly increasing.
func validateRoute(route RouteDefaults) error {
	if route.BaseInterval < time.Second {
		log.WithField("base_interval", route.BaseInterval).Error("Invalid route configuration")
		return newValidationError("Route.BaseInterval must be at least 1 second")
	}
	if route.Jitter < 0 {
		return newValidationError("Route.Jitter cannot be negative")
	}
	if route.CreatedAtJitter < 0 {
		return newValidationError("Route.CreatedAtJitter cannot be negative")
	}
	return nil
}

func validateRelays(relays RelayDefaults) error {
	if len(relays.Fallback) == 0 {
		return newValidationError("Relays.Fallback must contain at least one relay")
	}
	if relays.DialTimeout <= 0 || relays.PublishTimeout <= 0 || relays.QueryTimeout <= 0 {
		return newValidationError("Relays timeouts must be positive")
	}
	return nil
}

func validateMint(mint MintDefaults) error {
	if mint.Unit == "" {
		return newValidationError("Mint.Unit cannot be empty")
	}
	if mint.PollInterval <= 0 {
		return newValidationError("Mint.PollInterval must be positive")
	}
	return nil
}

func validateTracer(tracer TracerDefaults) error {
	if tracer.History < 1 {
		return newValidationError("Tracer.History must be at least 1")
	}
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
