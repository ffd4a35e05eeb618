package collector

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestRecentScoresDecodesLenientlyAndInOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/score/recent", r.URL.Path)
		assert.Equal(t, "120", r.URL.Query().Get("limit"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		_, _ = w.Write([]byte(`{"data":[
			{"ts":1030,"score":"97.5","avg_loss_pct":null,"dns_per_server":{"9.9.9.9":12,"1.1.1.1":"8.5"}},
			{"ts":1000,"score":90}
		]}`))
	})

	got, err := c.RecentScores(context.Background(), 120)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1000), got[0].Unix(), "samples sorted ascending")
	require.Nil(t, got[0].DNSPerServer)

	last := got[1]
	require.Equal(t, 97.5, last.Score.Float())
	require.Zero(t, last.AvgLossPct.Float())
	require.Zero(t, last.AvgJitterMs.Float())
	require.Equal(t, ServerLatencies{{Server: "9.9.9.9", Ms: 12}, {Server: "1.1.1.1", Ms: 8.5}}, last.DNSPerServer)
}

func TestServerLatenciesDecodeForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ServerLatencies
	}{
		{name: "object", in: `{"9.9.9.9":12,"1.1.1.1":"8.5"}`,
			want: ServerLatencies{{Server: "9.9.9.9", Ms: 12}, {Server: "1.1.1.1", Ms: 8.5}}},
		{name: "list", in: `[{"server":"1.1.1.1","ms":12},{"server":"8.8.8.8","ms":"7"}]`,
			want: ServerLatencies{{Server: "1.1.1.1", Ms: 12}, {Server: "8.8.8.8", Ms: 7}}},
		{name: "list repeat keeps first slot", in: `[{"server":"a","ms":1},{"server":"b","ms":2},{"server":"a","ms":3}]`,
			want: ServerLatencies{{Server: "a", Ms: 3}, {Server: "b", Ms: 2}}},
		{name: "list skips junk", in: `[{"ms":4},"x",{"server":"a","ms":null}]`,
			want: ServerLatencies{{Server: "a", Ms: 0}}},
		{name: "null", in: `null`},
		{name: "scalar", in: `5`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ServerLatencies
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestServerLatenciesMarshalKeepsOrder(t *testing.T) {
	l := ServerLatencies{{Server: "b", Ms: 2}, {Server: "a", Ms: 1.5}}
	b, err := json.Marshal(l)
	require.NoError(t, err)
	require.JSONEq(t, `{"b":2,"a":1.5}`, string(b))
	require.Equal(t, `{"b":2,"a":1.5}`, string(b))
}

func TestConfigSnapshot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"probe_interval": 60, "ping_count": 5, "app_timezone": "Europe/Berlin",
			"sites": ["a.example", "b.example"], "dns_servers": ["1.1.1.1"],
			"dns_servers_detail": [{"name":"Cloudflare","ip":"1.1.1.1"},{"name":"","ip":"8.8.8.8"}],
			"weight_loss": 0.4, "weight_latency": "0.3", "threshold_latency_ms": 150,
			"speedtest_enabled": true, "speedtest_interval": 3600
		}`))
	})

	cfg, err := c.Config(context.Background())
	require.NoError(t, err)
	require.Equal(t, 60, int(cfg.ProbeInterval))
	require.Equal(t, map[string]string{"1.1.1.1": "Cloudflare"}, cfg.DNSLabels())
	require.Equal(t, map[string]float64{"loss": 0.4, "latency": 0.3}, cfg.Weights)
	require.Equal(t, 150.0, cfg.Thresholds["latency_ms"])
	require.Equal(t, "Europe/Berlin", cfg.Location(nil).String())

	lines := cfg.SettingsLines()
	require.Contains(t, lines, "Sites: a.example, b.example")
	require.Contains(t, lines, "Probe interval: 60s")
	require.Contains(t, lines, "Weights: latency=0.3, loss=0.4")
	require.Contains(t, lines, "Speedtest: enabled, every 3600s")
}

func TestSpeedtestHistorySortedAndLatestNull(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/speedtest/history":
			_, _ = w.Write([]byte(`{"tests":[{"ts":20,"download_mbps":50},{"ts":10,"download_mbps":40}]}`))
		case "/api/speedtest/latest":
			_, _ = w.Write([]byte(`{"result":null}`))
		default:
			http.NotFound(w, r)
		}
	})

	hist, err := c.SpeedtestHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, 40.0, hist[0].DownloadMbps.Float())

	latest, err := c.SpeedtestLatest(context.Background())
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestRunSpeedtestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, res *SpeedtestResult, err error)
	}{
		{
			name: "success", status: 200,
			body: `{"success":true,"result":{"ts":5,"ping_ms":11,"download_mbps":93.4,"upload_mbps":20,"server":{"name":"Example","country":"NL"}}}`,
			check: func(t *testing.T, res *SpeedtestResult, err error) {
				require.NoError(t, err)
				require.Equal(t, "↓ 93.40 Mbps | ↑ 20.00 Mbps | 11.0 ms | Example (NL)", res.Summary())
			},
		},
		{
			name: "application error", status: 200, body: `{"success":false,"error":"speedtest disabled"}`,
			check: func(t *testing.T, _ *SpeedtestResult, err error) {
				var ae *ApplicationError
				require.ErrorAs(t, err, &ae)
				require.Equal(t, "speedtest disabled", ae.Error())
			},
		},
		{
			name: "application error without message", status: 200, body: `{"success":false}`,
			check: func(t *testing.T, _ *SpeedtestResult, err error) {
				require.True(t, IsApplication(err))
				require.EqualError(t, err, GenericSpeedtestFailure)
			},
		},
		{
			name: "server error", status: 503, body: "busy running another test\n",
			check: func(t *testing.T, _ *SpeedtestResult, err error) {
				var se *ServerError
				require.ErrorAs(t, err, &se)
				require.Equal(t, 503, se.Status)
				require.Equal(t, "busy running another test", se.Body)
				require.EqualError(t, err, "HTTP 503: busy running another test")
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := c.RunSpeedtest(context.Background())
			tt.check(t, res, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).RecentScores(context.Background(), 10)
	require.Error(t, err)
	require.True(t, IsTransport(err))
	require.False(t, IsServer(err))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.MethodGet, te.Op)
}
