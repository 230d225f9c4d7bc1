// Package config provides configuration management for nostr-onion.
//
// # Configuration File
//
// Settings are read through viper from $HOME/.nostr-onion/config.yaml. The file
// is created with default values on first run when no explicit --config path is
// given. Every key has a default in Defaults(), so a missing or partial file is
// never an error.
//
// # Sections
//
//   - route: expiration spacing between hops and created_at jitter for layers
//   - relays: directory relay for relay lists, fallback relay, network timeouts
//   - mint: cashu mint URL, unit and quote polling interval
//   - ntp: optional clock correction before timestamps are assigned
//   - directory: path of the YAML hop directory (names for hop pubkeys)
//   - tracer: delivery tracing history size and note viewer URL
//
// Use CurrentConfig() after InitConfig() to obtain a typed snapshot of the
// active settings instead of reading viper keys directly.
package config
