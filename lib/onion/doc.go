// Package onion wraps a signed nostr event in one encrypted layer per hop.
//
// Layers are built from the last hop to the first, so the outermost event is
// addressed to the first hop and is the only one published by the sender.
// Every layer is signed by a fresh one-time key and carries the hop's cashu
// payment encrypted to that hop.
package onion
