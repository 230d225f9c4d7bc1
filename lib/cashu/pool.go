package cashu

import (
	"context"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// maxExactSearch bounds the subset-sum table. Larger pools fall back to
// greedy selection.
const maxExactSearch = 1 << 20

// Swapper reissues proofs so that an exact amount can be separated out.
// The mint's NUT-03 swap endpoint implements it through Wallet.
type Swapper interface {
	Swap(ctx context.Context, inputs Proofs, amount uint64) (send, keep Proofs, err error)
}

// TokenPool is an owned collection of proofs from a single mint.
type TokenPool struct {
	mint     string
	unit     string
	proofs   Proofs
	swapper  Swapper
	consumed bool
}

// PoolOption configures a TokenPool.
type PoolOption func(*TokenPool)

// WithSwapper lets Split reissue proofs through the mint to hit exact amounts.
func WithSwapper(s Swapper) PoolOption {
	return func(p *TokenPool) { p.swapper = s }
}

// WithUnit overrides the default "sat" unit.
func WithUnit(unit string) PoolOption {
	return func(p *TokenPool) { p.unit = unit }
}

// NewTokenPool takes ownership of proofs issued by mint.
func NewTokenPool(mint string, proofs Proofs, opts ...PoolOption) *TokenPool {
	p := &TokenPool{
		mint:   mint,
		unit:   "sat",
		proofs: append(Proofs(nil), proofs...),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PoolFromToken builds a pool from a decoded token. All entries must come
// from the same mint.
func PoolFromToken(tok *Token, opts ...PoolOption) (*TokenPool, error) {
	if tok == nil || len(tok.Token) == 0 {
		return nil, ErrInvalidToken
	}
	mint := tok.Token[0].Mint
	var proofs Proofs
	for _, entry := range tok.Token {
		if entry.Mint != mint {
			return nil, oops.Wrapf(ErrMintMismatch, "%s and %s", mint, entry.Mint)
		}
		proofs = append(proofs, entry.Proofs...)
	}
	if tok.Unit != "" {
		opts = append([]PoolOption{WithUnit(tok.Unit)}, opts...)
	}
	return NewTokenPool(mint, proofs, opts...), nil
}

// Total is the sum of proof amounts. A consumed pool is worth nothing.
func (p *TokenPool) Total() uint64 {
	if p == nil || p.consumed {
		return 0
	}
	return p.proofs.Amount()
}

// Mint returns the mint URL the proofs belong to.
func (p *TokenPool) Mint() string { return p.mint }

// Unit returns the currency unit.
func (p *TokenPool) Unit() string { return p.unit }

// Proofs returns a copy of the proofs.
func (p *TokenPool) Proofs() Proofs { return append(Proofs(nil), p.proofs...) }

// Consumed reports whether the pool has been split.
func (p *TokenPool) Consumed() bool { return p.consumed }

// Token serializes the pool as a v3 bearer token.
func (p *TokenPool) Token() (string, error) {
	if p.consumed {
		return "", ErrPoolConsumed
	}
	tok := Token{
		Token: []TokenEntry{{Mint: p.mint, Proofs: p.proofs}},
		Unit:  p.unit,
	}
	return tok.Encode()
}

// Split separates amount from the pool and returns the spend and change pools.
// The receiver is consumed on success. When no subset of proofs sums exactly
// to amount the pool swaps the smallest covering subset through its Swapper,
// or without one spends that subset as is. Callers must use spend.Total()
// rather than amount.
func (p *TokenPool) Split(ctx context.Context, amount uint64) (spend, change *TokenPool, err error) {
	if p.consumed {
		return nil, nil, ErrPoolConsumed
	}
	if amount == 0 {
		return nil, nil, ErrInvalidAmount
	}
	total := p.proofs.Amount()
	if amount > total {
		return nil, nil, oops.Wrapf(ErrInsufficientFunds, "requested %d, pool holds %d", amount, total)
	}

	selected, rest := selectProofs(p.proofs, amount)
	got := selected.Amount()

	if got != amount && p.swapper != nil {
		log.WithFields(logger.Fields{
			"at":       "TokenPool.Split",
			"reason":   "no_exact_subset",
			"amount":   amount,
			"covering": got,
		}).Debug("swapping covering proofs for exact amount")
		send, keep, err := p.swapper.Swap(ctx, selected, amount)
		if err != nil {
			return nil, nil, oops.Wrapf(err, "swap for %d failed", amount)
		}
		selected = send
		rest = append(rest, keep...)
	}

	p.consumed = true
	spend = &TokenPool{mint: p.mint, unit: p.unit, proofs: selected, swapper: p.swapper}
	change = &TokenPool{mint: p.mint, unit: p.unit, proofs: rest, swapper: p.swapper}

	log.WithFields(logger.Fields{
		"at":        "TokenPool.Split",
		"requested": amount,
		"spend":     spend.Total(),
		"change":    change.Total(),
	}).Debug("split pool")
	return spend, change, nil
}

// selectProofs picks an exact subset for amount if one exists, otherwise the
// subset with the smallest total above amount.
func selectProofs(proofs Proofs, amount uint64) (selected, rest Proofs) {
	total := proofs.Amount()
	if total > maxExactSearch {
		return selectGreedy(proofs, amount)
	}

	// from[s] is the index of the proof that first reached sum s, -1 if unreachable
	from := make([]int, total+1)
	for i := range from {
		from[i] = -1
	}
	from[0] = len(proofs)
	for i, proof := range proofs {
		a := proof.Amount
		if a == 0 {
			continue
		}
		for s := total; s >= a; s-- {
			if from[s] == -1 && from[s-a] != -1 {
				from[s] = i
			}
		}
	}

	target := amount
	for from[target] == -1 {
		target++
	}

	picked := make([]bool, len(proofs))
	for s := target; s > 0; {
		i := from[s]
		picked[i] = true
		s -= proofs[i].Amount
	}
	for i, proof := range proofs {
		if picked[i] {
			selected = append(selected, proof)
		} else {
			rest = append(rest, proof)
		}
	}
	return selected, rest
}

// selectGreedy takes the largest proofs that fit, then tops up with the
// smallest remaining proofs until amount is covered.
func selectGreedy(proofs Proofs, amount uint64) (selected, rest Proofs) {
	var sum uint64
	var skipped Proofs
	for _, proof := range sortedCopy(proofs, true) {
		if sum+proof.Amount <= amount {
			selected = append(selected, proof)
			sum += proof.Amount
		} else {
			skipped = append(skipped, proof)
		}
	}
	for _, proof := range sortedCopy(skipped, false) {
		if sum < amount {
			selected = append(selected, proof)
			sum += proof.Amount
		} else {
			rest = append(rest, proof)
		}
	}
	return selected, rest
}
