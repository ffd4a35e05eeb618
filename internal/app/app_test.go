package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netprobe/internal/dashboard"
)

func fakeCollector(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Now().Unix()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/score/recent", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[{"ts":%d,"score":97.5,"avg_loss_pct":0,"avg_latency_ms":12,"avg_jitter_ms":1,"avg_dns_latency_ms":8,"dns_per_server":{"1.1.1.1":7,"8.8.8.8":9}}]}`, now)
	})
	mux.HandleFunc("/api/config", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"probe_interval":30,"app_timezone":"UTC","dns_servers_detail":[{"name":"Cloudflare","ip":"1.1.1.1"}]}`))
	})
	mux.HandleFunc("/api/speedtest/history", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"tests":[{"ts":%d,"download_mbps":100,"upload_mbps":20,"ping_ms":9}]}`, now)
	})
	mux.HandleFunc("/api/speedtest/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":null}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, collectorURL string) string {
	t.Helper()
	body := strings.Join([]string{
		"collector:",
		"  base_url: " + collectorURL,
		"dashboard:",
		"  probe_interval: 30",
		"  range: 1h",
		"  range_controls: [header, footer]",
		"storage:",
		"  driver: memory",
		"server:",
		"  enabled: true",
		"  addr: 127.0.0.1:0",
		"logging:",
		"  level: error",
		"  console: true",
		"",
	}, "\n")
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestAppServesDashboard(t *testing.T) {
	col := fakeCollector(t)
	a, err := New(writeConfig(t, col.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Start(ctx))
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopSignal)
	}()

	require.Eventually(t, func() bool {
		v, ok := a.frame.Gauge(dashboard.GaugeScore)
		return ok && v == 97.5
	}, 5*time.Second, 20*time.Millisecond)

	base := "http://" + a.Addr()
	resp, err := http.Get(base + "/api/state")
	require.NoError(t, err)
	var state struct {
		Status dashboard.Status `json:"status"`
		Frame  struct {
			Gauges map[string]float64 `json:"gauges"`
		} `json:"frame"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	_ = resp.Body.Close()
	assert.Equal(t, "per_server", state.Status.SeriesMode)
	assert.Equal(t, 97.5, state.Frame.Gauges[dashboard.GaugeScore])

	resp, err = http.Post(base+"/control/range", "application/json", strings.NewReader(`{"token":"3h"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "3h", a.Session().Ranges.Token())

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "netprobe_dashboard_gauge")
	assert.Contains(t, string(body), "netprobe_dashboard_fetch_total")
}

func TestNewRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("collector:\n  base_url: \"\"\n"), 0o644))
	_, err := New(path)
	require.Error(t, err)
}
