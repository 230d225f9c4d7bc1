// Package tracer watches relays for the layers of a published onion and for
// the note at its core.
//
// A trace starts WAITING. Each layer seen on a relay produces a Progress
// notification naming the hop it is addressed to. When the payload note
// itself appears the trace is CONFIRMED, a nevent reference is built, and the
// subscription is closed (CLOSED). Arrivals may come in any order and may
// repeat; each hop is reported once and confirmation happens once.
package tracer
