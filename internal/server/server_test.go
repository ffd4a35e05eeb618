package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netprobe/internal/collector"
	"netprobe/internal/dashboard"
	"netprobe/internal/storage"
	logx "netprobe/pkg/logx"
)

type stubCollector struct {
	mu     sync.Mutex
	limits []int
	runs   int
}

func (c *stubCollector) RecentScores(_ context.Context, limit int) ([]collector.Sample, error) {
	c.mu.Lock()
	c.limits = append(c.limits, limit)
	c.mu.Unlock()
	return []collector.Sample{{TS: 1700000000, Score: 90}}, nil
}

func (c *stubCollector) Config(context.Context) (*collector.ConfigSnapshot, error) {
	return &collector.ConfigSnapshot{ProbeInterval: 30}, nil
}

func (c *stubCollector) SpeedtestHistory(context.Context, int) ([]collector.SpeedtestResult, error) {
	return nil, nil
}

func (c *stubCollector) SpeedtestLatest(context.Context) (*collector.SpeedtestResult, error) {
	return nil, nil
}

func (c *stubCollector) RunSpeedtest(context.Context) (*collector.SpeedtestResult, error) {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return &collector.SpeedtestResult{DownloadMbps: 50}, nil
}

type inlineSpawner struct{}

func (inlineSpawner) Go0(_ string, fn func(ctx context.Context)) { fn(context.Background()) }

func newTestDeps(t *testing.T) (Deps, *stubCollector) {
	t.Helper()
	fc := &stubCollector{}
	s := dashboard.NewSession(fc, dashboard.NopSink{}, dashboard.Options{
		Cadence:       30,
		Range:         "1h",
		RangeControls: []string{"header", "footer"},
		Store:         storage.NewMemory(),
	})
	d := dashboard.NewDispatcher(s, inlineSpawner{}, logx.Nop())
	return Deps{
		Dispatcher: d,
		State:      func() any { return map[string]int{"version": 3} },
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	}, fc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStateAndHealth(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status dashboard.Status `json:"status"`
		Frame  map[string]int   `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1h", resp.Status.Range)
	assert.Equal(t, 120, resp.Status.Limit)
	assert.Equal(t, 3, resp.Frame["version"])

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestControlRange(t *testing.T) {
	deps, fc := newTestDeps(t)
	h := NewHandler(deps, nil)

	rec := do(t, h, http.MethodPost, "/control/range", `{"control":"footer","token":"24h"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"command":"range-changed","range":"24h","limit":2880}`, rec.Body.String())
	assert.Equal(t, []int{2880}, fc.limits)

	rec = do(t, h, http.MethodPost, "/control/range", `{"token":"fortnight"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/control/range", `{"token":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/control/range", `{"token":"1h","extra":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestControlCommands(t *testing.T) {
	deps, fc := newTestDeps(t)
	h := NewHandler(deps, nil)

	rec := do(t, h, http.MethodPost, "/control/panel", `{"panel":"dns_history","visible":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.False(t, deps.Dispatcher.Session().Prefs.Apply(dashboard.ChartDNS))

	rec = do(t, h, http.MethodPost, "/control/panel", `{"panel":"nope"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/control/series", `{"key":"1.1.1.1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/control/speedtest", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, fc.runs)

	rec = do(t, h, http.MethodPost, "/control/config", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, "/control/speedtest", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestControlRateLimited(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps, RateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodPost, "/control/config", "")
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := do(t, h, http.MethodPost, "/control/config", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec = do(t, h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServiceLifecycle(t *testing.T) {
	deps, _ := newTestDeps(t)
	svc := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, deps, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	addr := svc.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	svc.Reconfigure(ctx, Config{Enabled: false})
	require.Empty(t, svc.Addr())
}

func TestIsLoopbackAddr(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1:8088": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8088":          false,
		"0.0.0.0:80":     false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
