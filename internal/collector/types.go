package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Number is a float that decodes leniently: null, missing, non-numeric
// strings and other garbage become 0 instead of failing the whole batch.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = 0
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*n = Number(f)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*n = Number(f)
	}
	return nil
}

func (n Number) Float() float64 { return float64(n) }

// Sample is one collector measurement record.
type Sample struct {
	TS           Number          `json:"ts"` // epoch seconds
	Score        Number          `json:"score"`
	AvgLossPct   Number          `json:"avg_loss_pct"`
	AvgLatencyMs Number          `json:"avg_latency_ms"`
	AvgJitterMs  Number          `json:"avg_jitter_ms"`
	AvgDNSMs     Number          `json:"avg_dns_latency_ms"`
	DNSPerServer ServerLatencies `json:"dns_per_server,omitempty"`
}

// Unix returns the sample timestamp in whole epoch seconds.
func (s Sample) Unix() int64 { return int64(s.TS) }

// ServerLatency is one dns_per_server entry.
type ServerLatency struct {
	Server string
	Ms     Number
}

// ServerLatencies is dns_per_server decoded in document order. A Go map
// would lose the key order the collector emitted, and first-seen order is
// what fixes a series' legend slot. Both the object form
// {"1.1.1.1": 12} and the list form [{"server": "1.1.1.1", "ms": 12}] are
// accepted; a repeated server keeps its first position and its last value.
type ServerLatencies []ServerLatency

func (l *ServerLatencies) UnmarshalJSON(b []byte) error {
	*l = nil
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		// null or a scalar: treat as absent.
		return nil
	}

	out := ServerLatencies{}
	seen := map[string]int{}
	add := func(key string, v Number) {
		if i, dup := seen[key]; dup {
			out[i].Ms = v
			return
		}
		seen[key] = len(out)
		out = append(out, ServerLatency{Server: key, Ms: v})
	}

	if d == '[' {
		for i := 0; dec.More(); i++ {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return fmt.Errorf("dns_per_server[%d]: %w", i, err)
			}
			var e struct {
				Server string `json:"server"`
				Ms     Number `json:"ms"`
			}
			// Entries that are not objects or carry no server are skipped.
			if json.Unmarshal(raw, &e) != nil || e.Server == "" {
				continue
			}
			add(e.Server, e.Ms)
		}
		*l = out
		return nil
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return fmt.Errorf("dns_per_server: %w", err)
		}
		key, _ := kt.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("dns_per_server[%s]: %w", key, err)
		}
		var v Number
		_ = v.UnmarshalJSON(raw)
		add(key, v)
	}
	*l = out
	return nil
}

func (l ServerLatencies) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Server)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(float64(e.Ms), 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the latency recorded for server.
func (l ServerLatencies) Get(server string) (float64, bool) {
	for _, e := range l {
		if e.Server == server {
			return float64(e.Ms), true
		}
	}
	return 0, false
}

// SpeedtestServer identifies the server a speedtest ran against.
type SpeedtestServer struct {
	Name    string `json:"name"`
	Host    string `json:"host"`
	Country string `json:"country"`
}

// SpeedtestResult is one speedtest measurement as reported by the collector.
type SpeedtestResult struct {
	TS           Number           `json:"ts"`
	PingMs       Number           `json:"ping_ms"`
	DownloadMbps Number           `json:"download_mbps"`
	UploadMbps   Number           `json:"upload_mbps"`
	Server       *SpeedtestServer `json:"server,omitempty"`
}

func (r SpeedtestResult) Time() time.Time { return time.Unix(int64(r.TS), 0) }

// DNSServer is one dns_servers_detail entry.
type DNSServer struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// ConfigSnapshot is the collector's view of its own settings.
//
// weight_* and threshold_* fields vary between collector versions; they are
// captured generically, keyed by suffix.
type ConfigSnapshot struct {
	ProbeInterval     Number      `json:"probe_interval"`
	PingCount         Number      `json:"ping_count"`
	AppTimezone       string      `json:"app_timezone"`
	GatewayIP         string      `json:"gateway_ip"`
	RouterIP          string      `json:"router_ip"`
	Sites             []string    `json:"sites"`
	DNSTestSite       string      `json:"dns_test_site"`
	DNSServers        []string    `json:"dns_servers"`
	DNSServersDetail  []DNSServer `json:"dns_servers_detail"`
	SpeedtestEnabled  bool        `json:"speedtest_enabled"`
	SpeedtestInterval Number      `json:"speedtest_interval"`

	Weights    map[string]float64 `json:"-"`
	Thresholds map[string]float64 `json:"-"`
}

func (c *ConfigSnapshot) UnmarshalJSON(b []byte) error {
	type plain ConfigSnapshot
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		var n Number
		switch {
		case strings.HasPrefix(k, "weight_"):
			_ = n.UnmarshalJSON(v)
			if p.Weights == nil {
				p.Weights = map[string]float64{}
			}
			p.Weights[strings.TrimPrefix(k, "weight_")] = float64(n)
		case strings.HasPrefix(k, "threshold_"):
			_ = n.UnmarshalJSON(v)
			if p.Thresholds == nil {
				p.Thresholds = map[string]float64{}
			}
			p.Thresholds[strings.TrimPrefix(k, "threshold_")] = float64(n)
		}
	}
	*c = ConfigSnapshot(p)
	return nil
}

// DNSLabels maps server IPs to display names from dns_servers_detail.
func (c *ConfigSnapshot) DNSLabels() map[string]string {
	if c == nil {
		return nil
	}
	out := make(map[string]string, len(c.DNSServersDetail))
	for _, d := range c.DNSServersDetail {
		ip := strings.TrimSpace(d.IP)
		name := strings.TrimSpace(d.Name)
		if ip == "" || name == "" {
			continue
		}
		out[ip] = name
	}
	return out
}

// Location resolves app_timezone, falling back to fallback when unset or
// unknown.
func (c *ConfigSnapshot) Location(fallback *time.Location) *time.Location {
	if c == nil || strings.TrimSpace(c.AppTimezone) == "" {
		return fallback
	}
	loc, err := time.LoadLocation(strings.TrimSpace(c.AppTimezone))
	if err != nil {
		return fallback
	}
	return loc
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type recentResponse struct {
	Data []Sample `json:"data"`
}

type historyResponse struct {
	Tests []SpeedtestResult `json:"tests"`
}

type latestResponse struct {
	Result *SpeedtestResult `json:"result"`
}

type runResponse struct {
	Success bool             `json:"success"`
	Result  *SpeedtestResult `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}
