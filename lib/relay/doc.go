// Package relay is a small nostr relay client: one websocket connection per
// relay with a single reader goroutine, and a Pool that fans publishes out to
// many relays and merges their subscriptions.
package relay
