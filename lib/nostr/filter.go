package nostr

import "slices"

// Filter is a NIP-01 subscription filter. Empty fields match everything.
type Filter struct {
	IDs     []string  `json:"ids,omitempty"`
	Kinds   []int     `json:"kinds,omitempty"`
	Authors []string  `json:"authors,omitempty"`
	Since   Timestamp `json:"since,omitempty"`
	Until   Timestamp `json:"until,omitempty"`
	Limit   int       `json:"limit,omitempty"`
}

// Matches reports whether evt satisfies the filter.
func (f Filter) Matches(evt *Event) bool {
	if evt == nil {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, evt.ID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, evt.Kind) {
		return false
	}
	if len(f.Authors) > 0 && !slices.Contains(f.Authors, evt.PubKey) {
		return false
	}
	if f.Since != 0 && evt.CreatedAt < f.Since {
		return false
	}
	if f.Until != 0 && evt.CreatedAt > f.Until {
		return false
	}
	return true
}

// Filters matches when any of its filters does.
type Filters []Filter

// Match reports whether any filter matches evt.
func (fs Filters) Match(evt *Event) bool {
	for _, f := range fs {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}
