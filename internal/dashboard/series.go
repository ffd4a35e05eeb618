package dashboard

import (
	"sync"

	"netprobe/internal/collector"
	logx "netprobe/pkg/logx"
)

// SeriesKey identifies one DNS-server sub-series.
type SeriesKey string

// AverageKey is the synthetic series used when no sample carries
// per-server DNS latencies.
const AverageKey SeriesKey = "average"

const averageLabel = "Average DNS"

type SeriesMode int

const (
	ModeUnset SeriesMode = iota
	ModePerServer
	ModeAverage
)

func (m SeriesMode) String() string {
	switch m {
	case ModePerServer:
		return "per_server"
	case ModeAverage:
		return "average"
	default:
		return "unset"
	}
}

// SeriesRegistry holds the ordered set of discovered DNS series.
//
// Order is append-only: once a key has a slot it keeps it for the life of
// the session, even if later samples stop carrying it.
type SeriesRegistry struct {
	log logx.Logger

	mu          sync.Mutex
	order       []SeriesKey
	index       map[SeriesKey]int
	labels      map[SeriesKey]string
	labelSource map[string]string
	hidden      map[SeriesKey]bool
	mode        SeriesMode
	initialized bool
}

func NewSeriesRegistry(log logx.Logger) *SeriesRegistry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SeriesRegistry{
		log:    log,
		index:  map[SeriesKey]int{},
		labels: map[SeriesKey]string{},
		hidden: map[SeriesKey]bool{},
	}
}

// Discover appends keys first seen in batch (scanning every sample, not
// just the first) and returns the full order.
func (r *SeriesRegistry) Discover(batch []collector.Sample) []SeriesKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverLocked(batch)
	return append([]SeriesKey(nil), r.order...)
}

func (r *SeriesRegistry) discoverLocked(batch []collector.Sample) {
	for _, s := range batch {
		for _, e := range s.DNSPerServer {
			r.registerLocked(SeriesKey(e.Server))
		}
	}
}

func (r *SeriesRegistry) registerLocked(k SeriesKey) {
	if _, ok := r.index[k]; ok {
		return
	}
	r.index[k] = len(r.order)
	r.order = append(r.order, k)
	label := string(k)
	if k == AverageKey && r.mode == ModeAverage {
		label = averageLabel
	}
	if l, ok := r.labelSource[string(k)]; ok && l != "" {
		label = l
	}
	r.labels[k] = label
}

// InitializeOnce picks the series mode and registers keys from batch. It
// acts only on its first call; afterwards the mode and key set are frozen
// and it reports false.
func (r *SeriesRegistry) InitializeOnce(batch []collector.Sample) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		if r.mode == ModePerServer && r.log.Enabled(logx.LevelDebug) {
			var unknown []string
			for _, s := range batch {
				for _, e := range s.DNSPerServer {
					if _, ok := r.index[SeriesKey(e.Server)]; !ok {
						unknown = append(unknown, e.Server)
					}
				}
			}
			if len(unknown) > 0 {
				r.log.Debug("dns series frozen; new servers not charted", logx.Strings("servers", dedupe(unknown)))
			}
		}
		return false
	}

	r.initialized = true
	if carriesPerServer(batch) {
		r.mode = ModePerServer
		r.discoverLocked(batch)
	} else {
		r.mode = ModeAverage
		r.registerLocked(AverageKey)
	}
	r.log.Debug("dns series initialized", logx.String("mode", r.mode.String()), logx.Int("series", len(r.order)))
	return true
}

func carriesPerServer(batch []collector.Sample) bool {
	for _, s := range batch {
		if len(s.DNSPerServer) > 0 {
			return true
		}
	}
	return false
}

func (r *SeriesRegistry) Mode() SeriesMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

func (r *SeriesRegistry) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

func (r *SeriesRegistry) Keys() []SeriesKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SeriesKey(nil), r.order...)
}

// Label returns the display name bound when k was registered.
func (r *SeriesRegistry) Label(k SeriesKey) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.labels[k]; ok {
		return l
	}
	return string(k)
}

// SetLabels replaces the label source (server id -> display name). Keys
// registered earlier keep the label they were bound with.
func (r *SeriesRegistry) SetLabels(m map[string]string) {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	r.mu.Lock()
	r.labelSource = cp
	r.mu.Unlock()
}

// SetVisible toggles rendering of k. Hidden series are still projected.
func (r *SeriesRegistry) SetVisible(k SeriesKey, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if visible {
		delete(r.hidden, k)
		return
	}
	r.hidden[k] = true
}

func (r *SeriesRegistry) Visible(k SeriesKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.hidden[k]
}

// Project aligns every registered key to the sample positions of batch.
// A sample lacking a key yields a gap at that position.
func (r *SeriesRegistry) Project(batch []collector.Sample) map[SeriesKey][]Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[SeriesKey][]Value, len(r.order))
	for _, k := range r.order {
		out[k] = r.projectLocked(k, batch)
	}
	return out
}

func (r *SeriesRegistry) projectLocked(k SeriesKey, batch []collector.Sample) []Value {
	vals := make([]Value, len(batch))
	for i, s := range batch {
		if r.mode == ModeAverage && k == AverageKey {
			vals[i] = Point(s.AvgDNSMs.Float())
			continue
		}
		if v, ok := s.DNSPerServer.Get(string(k)); ok {
			vals[i] = Point(v)
		}
	}
	return vals
}

// Series renders the registry as ordered chart series for batch.
func (r *SeriesRegistry) Series(batch []collector.Sample) []Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Series, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Series{
			Key:    string(k),
			Label:  r.labels[k],
			Values: r.projectLocked(k, batch),
			Hidden: r.hidden[k],
		})
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
