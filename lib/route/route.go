// Package route composes the ordered list of paid hops an onion travels
// through. Each hop receives its own cashu payment split from a shared pool,
// an optional relay hint and an expiration later than the hop before it.
package route

import (
	"github.com/go-i2p/nostr-onion/lib/cashu"
	"github.com/go-i2p/nostr-onion/lib/nostr"
	"github.com/samber/oops"
)

// Selection is an operator's choice of the next hop and its fee.
type Selection struct {
	Pubkey string
	Fee    uint64
}

// Hop is one paid forwarding step.
type Hop struct {
	Pubkey string
	// Fee is the requested amount, Paid the value actually carried by Token.
	Fee     uint64
	Paid    uint64
	Payment *cashu.TokenPool
	Token   string
	Relay   string
	// Expiration is zero when the hop has none, which makes its layer ephemeral.
	Expiration nostr.Timestamp
	LayerID    string
}

// Route is the finished hop sequence plus the leftover change.
type Route struct {
	Hops   []Hop
	Change *cashu.TokenPool

	frozen bool
}

// Len returns the number of hops.
func (r *Route) Len() int { return len(r.Hops) }

// Freeze marks the route as being encoded. Hops can no longer change except
// for their layer ids.
func (r *Route) Freeze() { r.frozen = true }

// Frozen reports whether encoding has begun.
func (r *Route) Frozen() bool { return r.frozen }

// SetLayerID records the id of hop i's layer. Each id can be set once.
func (r *Route) SetLayerID(i int, id string) error {
	if i < 0 || i >= len(r.Hops) {
		return oops.Errorf("hop index %d out of range", i)
	}
	if r.Hops[i].LayerID != "" && r.Hops[i].LayerID != id {
		return oops.Errorf("hop %d already has layer %s", i, r.Hops[i].LayerID)
	}
	r.Hops[i].LayerID = id
	return nil
}

// AppendHop adds a hand-built hop. It is used when a route is loaded rather
// than composed.
func (r *Route) AppendHop(h Hop) error {
	if r.frozen {
		return ErrRouteFrozen
	}
	r.Hops = append(r.Hops, h)
	return nil
}

// Relays returns the distinct relay hints in hop order.
func (r *Route) Relays() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range r.Hops {
		if h.Relay != "" && !seen[h.Relay] {
			seen[h.Relay] = true
			out = append(out, h.Relay)
		}
	}
	return out
}

// HopIndex returns the index of the hop for pubkey, or -1.
func (r *Route) HopIndex(pubkey string) int {
	for i, h := range r.Hops {
		if h.Pubkey == pubkey {
			return i
		}
	}
	return -1
}

// TotalPaid sums what every hop actually receives.
func (r *Route) TotalPaid() uint64 {
	var total uint64
	for _, h := range r.Hops {
		total += h.Paid
	}
	return total
}

// Unspent gathers the change and every hop payment into one pool. It is the
// value to hand back when the route will never be published.
func (r *Route) Unspent() *cashu.TokenPool {
	pools := []*cashu.TokenPool{r.Change}
	for _, h := range r.Hops {
		pools = append(pools, h.Payment)
	}
	return mergePools(pools)
}

// mergePools joins the proofs of the live pools. All pools come from one
// split chain, so they share a mint and unit. Returns nil when nothing is left.
func mergePools(pools []*cashu.TokenPool) *cashu.TokenPool {
	var (
		first  *cashu.TokenPool
		proofs cashu.Proofs
	)
	for _, p := range pools {
		if p == nil || p.Consumed() || p.Total() == 0 {
			continue
		}
		if first == nil {
			first = p
		}
		proofs = append(proofs, p.Proofs()...)
	}
	if first == nil {
		return nil
	}
	return cashu.NewTokenPool(first.Mint(), proofs, cashu.WithUnit(first.Unit()))
}
