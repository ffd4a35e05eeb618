package collector

import (
	"fmt"
	"strings"
	"time"
)

// Summary is the compact one-line form used next to the speedtest button.
func (r SpeedtestResult) Summary() string {
	s := fmt.Sprintf("↓ %.2f Mbps | ↑ %.2f Mbps | %.1f ms",
		float64(r.DownloadMbps), float64(r.UploadMbps), float64(r.PingMs))
	if name := r.ServerName(); name != "" {
		s += " | " + name
	}
	return s
}

// ServerName renders "name (country)" with whichever parts are known.
func (r SpeedtestResult) ServerName() string {
	if r.Server == nil {
		return ""
	}
	name := strings.TrimSpace(r.Server.Name)
	if name == "" {
		name = strings.TrimSpace(r.Server.Host)
	}
	if c := strings.TrimSpace(r.Server.Country); c != "" {
		if name == "" {
			return c
		}
		return name + " (" + c + ")"
	}
	return name
}

// Describe renders the multi-line result panel text.
func (r SpeedtestResult) Describe(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Download: %.2f Mbps\n", float64(r.DownloadMbps))
	fmt.Fprintf(&b, "Upload: %.2f Mbps\n", float64(r.UploadMbps))
	fmt.Fprintf(&b, "Ping: %.2f ms\n", float64(r.PingMs))
	if name := r.ServerName(); name != "" {
		fmt.Fprintf(&b, "Server: %s\n", name)
	}
	if r.TS > 0 {
		fmt.Fprintf(&b, "Time: %s", r.Time().In(loc).Format("2006-01-02 15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SettingsLines renders the human-readable settings panel, one line per
// known setting. Empty settings are omitted.
func (c *ConfigSnapshot) SettingsLines() []string {
	if c == nil {
		return nil
	}
	var lines []string
	add := func(label, val string) {
		if strings.TrimSpace(val) != "" {
			lines = append(lines, label+": "+val)
		}
	}
	add("Sites", strings.Join(c.Sites, ", "))
	add("Gateway IP", c.GatewayIP)
	add("Router IP", c.RouterIP)
	add("DNS test domain", c.DNSTestSite)
	if len(c.DNSServersDetail) > 0 {
		parts := make([]string, 0, len(c.DNSServersDetail))
		for _, d := range c.DNSServersDetail {
			if d.Name != "" && d.Name != d.IP {
				parts = append(parts, fmt.Sprintf("%s (%s)", d.Name, d.IP))
			} else {
				parts = append(parts, d.IP)
			}
		}
		add("DNS servers", strings.Join(parts, ", "))
	} else {
		add("DNS servers", strings.Join(c.DNSServers, ", "))
	}
	lines = append(lines, fmt.Sprintf("Probe interval: %ds", int(c.ProbeInterval)))
	if c.PingCount > 0 {
		lines = append(lines, fmt.Sprintf("Ping count: %d", int(c.PingCount)))
	}
	add("Timezone", c.AppTimezone)
	add("Weights", formatNamed(c.Weights))
	add("Thresholds", formatNamed(c.Thresholds))
	if c.SpeedtestEnabled {
		lines = append(lines, fmt.Sprintf("Speedtest: enabled, every %ds", int(c.SpeedtestInterval)))
	} else {
		lines = append(lines, "Speedtest: disabled")
	}
	return lines
}

func formatNamed(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		parts = append(parts, fmt.Sprintf("%s=%g", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
