// Package cashu provides the bearer token side of onion routing: a TokenPool
// that splits proofs into per-hop payments, v3 token serialization, the NUT-00
// blind signature scheme and a client for the v1 mint HTTP API.
//
// A TokenPool is an owned value. Split consumes it and returns two new pools,
// so spent proofs can never be selected twice.
package cashu
