package cashu

import "sort"

// Proof is a single bearer proof (NUT-00).
type Proof struct {
	ID     string `json:"id"`
	Amount uint64 `json:"amount"`
	Secret string `json:"secret"`
	C      string `json:"C"`
}

// Proofs is an ordered list of proofs.
type Proofs []Proof

// Amount returns the sum of all proof amounts.
func (ps Proofs) Amount() uint64 {
	var total uint64
	for _, p := range ps {
		total += p.Amount
	}
	return total
}

// Amounts lists the proof denominations in order.
func (ps Proofs) Amounts() []uint64 {
	out := make([]uint64, len(ps))
	for i, p := range ps {
		out[i] = p.Amount
	}
	return out
}

// SplitAmount decomposes amount into the powers of two a mint issues,
// smallest first.
func SplitAmount(amount uint64) []uint64 {
	var out []uint64
	for bit := uint64(1); amount > 0; bit <<= 1 {
		if amount&bit != 0 {
			out = append(out, bit)
			amount &^= bit
		}
	}
	return out
}

func sortedCopy(ps Proofs, desc bool) Proofs {
	out := append(Proofs(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Amount < out[j].Amount
	})
	return out
}
