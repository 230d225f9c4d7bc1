// Package nostr implements the subset of the nostr protocol needed to build and
// trace onion layers: NIP-01 events with canonical ids and BIP-340 signatures,
// subscription filters, and NIP-19 bech32 identifiers.
package nostr
