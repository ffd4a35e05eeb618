package dashboard

import (
	"strings"
	"sync"
)

const (
	MinLimit = 10
	MaxLimit = 10000

	// FallbackWindow is used for tokens missing from the range table.
	FallbackWindow = 3600
	// FallbackCadence stands in for a non-positive cadence.
	FallbackCadence = 30
)

type rangeToken struct {
	token   string
	seconds int
}

// rangeTable is ordered by ascending window.
var rangeTable = []rangeToken{
	{"5s", 5},
	{"5m", 5 * 60},
	{"15m", 15 * 60},
	{"30m", 30 * 60},
	{"1h", 3600},
	{"3h", 3 * 3600},
	{"6h", 6 * 3600},
	{"12h", 12 * 3600},
	{"24h", 24 * 3600},
	{"3d", 3 * 86400},
	{"1w", 7 * 86400},
	{"2w", 14 * 86400},
	{"1mo", 30 * 86400},
	{"3mo", 90 * 86400},
	{"6mo", 180 * 86400},
	{"1y", 365 * 86400},
}

// Resolve converts a range token and a sampling cadence (seconds) into a
// sample count in [MinLimit, MaxLimit]. It never fails.
func Resolve(token string, cadenceSeconds int) int {
	window, ok := windowSeconds(token)
	if !ok {
		window = FallbackWindow
	}
	if cadenceSeconds <= 0 {
		cadenceSeconds = FallbackCadence
	}
	n := window / cadenceSeconds
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

func windowSeconds(token string) (int, bool) {
	t, ok := NormalizeToken(token)
	if !ok {
		return 0, false
	}
	for _, r := range rangeTable {
		if r.token == t {
			return r.seconds, true
		}
	}
	return 0, false
}

// NormalizeToken trims and lowercases token and reports whether it is a
// known range.
func NormalizeToken(token string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	for _, r := range rangeTable {
		if r.token == t {
			return t, true
		}
	}
	return t, false
}

// Tokens lists the known range tokens, shortest window first.
func Tokens() []string {
	out := make([]string, len(rangeTable))
	for i, r := range rangeTable {
		out[i] = r.token
	}
	return out
}

// RangeControls keeps every range selector on the page showing the same
// token. There is exactly one selection; controls are views of it.
type RangeControls struct {
	mu      sync.RWMutex
	ids     []string
	token   string
	cadence int
}

func NewRangeControls(ids []string, token string, cadence int) *RangeControls {
	if len(ids) == 0 {
		ids = []string{"header"}
	}
	t, _ := NormalizeToken(token)
	return &RangeControls{ids: append([]string(nil), ids...), token: t, cadence: cadence}
}

// IDs returns the control ids in configuration order.
func (r *RangeControls) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ids...)
}

// Has reports whether id names a configured control.
func (r *RangeControls) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, x := range r.ids {
		if x == id {
			return true
		}
	}
	return false
}

// Token returns the token all controls currently display.
func (r *RangeControls) Token() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token
}

// Limit is the sample count every task fetches with.
func (r *RangeControls) Limit() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Resolve(r.token, r.cadence)
}

// Select sets every control to token and returns the resolved limit.
// Unknown tokens are kept verbatim and resolve to the fallback window.
func (r *RangeControls) Select(token string) int {
	t, _ := NormalizeToken(token)
	r.mu.Lock()
	r.token = t
	limit := Resolve(t, r.cadence)
	r.mu.Unlock()
	return limit
}
