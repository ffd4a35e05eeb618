package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"netprobe/internal/storage"
	logx "netprobe/pkg/logx"
)

// PreferencesKey is the storage key holding the panel visibility map.
const PreferencesKey = "panel_visibility"

// PanelVisibility maps panel id to visible. Absent ids are visible.
type PanelVisibility map[string]bool

func (m PanelVisibility) clone() PanelVisibility {
	out := make(PanelVisibility, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PreferenceStore persists panel visibility. With a nil backend it keeps
// preferences in memory only.
type PreferenceStore struct {
	store storage.Store
	log   logx.Logger

	mu      sync.Mutex
	current PanelVisibility
}

func NewPreferenceStore(store storage.Store, log logx.Logger) *PreferenceStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PreferenceStore{store: store, log: log, current: PanelVisibility{}}
}

// Load reads the persisted map. Missing, malformed or unreadable data
// yields an empty map; it never fails.
func (p *PreferenceStore) Load(ctx context.Context) PanelVisibility {
	m := PanelVisibility{}
	if p.store != nil {
		b, ok, err := p.store.Get(ctx, PreferencesKey)
		switch {
		case err != nil:
			p.log.Warn("panel preferences unreadable", logx.Err(err))
		case ok && len(b) > 0:
			var decoded PanelVisibility
			if err := json.Unmarshal(b, &decoded); err != nil {
				p.log.Warn("panel preferences malformed; using defaults", logx.Err(err))
			} else if decoded != nil {
				m = decoded
			}
		}
	} else {
		p.mu.Lock()
		m = p.current.clone()
		p.mu.Unlock()
		return m
	}

	p.mu.Lock()
	p.current = m.clone()
	p.mu.Unlock()
	return m
}

// Save overwrites the persisted map with m.
func (p *PreferenceStore) Save(ctx context.Context, m PanelVisibility) error {
	cp := m.clone()
	p.mu.Lock()
	p.current = cp
	p.mu.Unlock()
	if p.store == nil {
		return nil
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return p.store.Put(ctx, PreferencesKey, b)
}

// Apply reports whether panelID should be shown.
func (p *PreferenceStore) Apply(panelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.current[panelID]
	return !ok || v
}

// Toggle sets one panel and persists the whole resulting map.
func (p *PreferenceStore) Toggle(ctx context.Context, panelID string, visible bool) (PanelVisibility, error) {
	p.mu.Lock()
	next := p.current.clone()
	p.mu.Unlock()
	next[panelID] = visible
	return next, p.Save(ctx, next)
}

// Current returns a copy of the in-memory map.
func (p *PreferenceStore) Current() PanelVisibility {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.clone()
}
