package dashboard

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"netprobe/internal/storage"
	logx "netprobe/pkg/logx"
)

func TestPreferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(storage.NewMemory(), logx.Nop())

	if got := p.Load(ctx); len(got) != 0 {
		t.Fatalf("empty store Load = %v", got)
	}
	if !p.Apply("panelB") {
		t.Fatal("absent panel should be visible")
	}

	want := PanelVisibility{"panelA": false}
	if err := p.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := p.Load(ctx); !reflect.DeepEqual(got, want) {
		t.Fatalf("Load = %v, want %v", got, want)
	}
	if p.Apply("panelA") {
		t.Fatal("panelA should be hidden")
	}
}

func TestPreferenceSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(storage.NewMemory(), logx.Nop())

	_ = p.Save(ctx, PanelVisibility{"a": false, "b": false})
	_ = p.Save(ctx, PanelVisibility{"c": true})
	if got := p.Load(ctx); !reflect.DeepEqual(got, PanelVisibility{"c": true}) {
		t.Fatalf("Load = %v, want overwritten map", got)
	}
}

func TestPreferenceMalformedYieldsEmpty(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.Put(ctx, PreferencesKey, []byte("{not json"))

	p := NewPreferenceStore(st, logx.Nop())
	if got := p.Load(ctx); len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}
}

func TestPreferenceSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "prefs")}

	st, err := storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p := NewPreferenceStore(st, logx.Nop())
	if _, err := p.Toggle(ctx, GaugeDNS, false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	_ = st.Close()

	st, err = storage.Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	got := NewPreferenceStore(st, logx.Nop()).Load(ctx)
	if !reflect.DeepEqual(got, PanelVisibility{GaugeDNS: false}) {
		t.Fatalf("Load after reopen = %v", got)
	}
}

func TestPreferenceWithoutBackend(t *testing.T) {
	ctx := context.Background()
	p := NewPreferenceStore(nil, logx.Nop())
	_ = p.Save(ctx, PanelVisibility{"x": false})
	if got := p.Load(ctx); !reflect.DeepEqual(got, PanelVisibility{"x": false}) {
		t.Fatalf("Load = %v", got)
	}
}
