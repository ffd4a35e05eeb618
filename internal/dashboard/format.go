package dashboard

import (
	"fmt"
	"math"
	"time"
)

// Gauge scale maxima. Readings above the maximum pin the gauge.
const (
	ScoreMax   = 100
	LossMax    = 100
	LatencyMax = 200
	JitterMax  = 100
	DNSMax     = 200
)

const (
	textNoData   = "No data yet — waiting for first sample…"
	textRunning  = "Running speedtest…"
	textNoResult = "No speedtest results yet"
)

func gaugeValue(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, max)
}

func scoreText(v float64) string   { return fmt.Sprintf("Score: %.1f%%", v) }
func lossText(v float64) string    { return fmt.Sprintf("Loss: %.2f %%", v) }
func latencyText(v float64) string { return fmt.Sprintf("Latency: %.1f ms", v) }
func jitterText(v float64) string  { return fmt.Sprintf("Jitter: %.1f ms", v) }
func dnsText(v float64) string     { return fmt.Sprintf("DNS: %.1f ms", v) }

func lastSampleText(ts int64, loc *time.Location) string {
	return "Last sample at " + time.Unix(ts, 0).In(loc).Format("15:04:05")
}

// timeLabels renders epoch-second timestamps as chart x labels.
func timeLabels(ts []int64, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	spanDays := len(ts) > 1 && ts[len(ts)-1]-ts[0] > 86400
	out := make([]string, len(ts))
	for i, t := range ts {
		tm := time.Unix(t, 0).In(loc)
		if spanDays {
			out[i] = tm.Format("01-02 15:04")
		} else {
			out[i] = tm.Format("15:04:05")
		}
	}
	return out
}

// BandwidthGauge is the latest download as a percentage of the best
// observed download or upload in the window.
func BandwidthGauge(download, upload []float64) float64 {
	if len(download) == 0 {
		return 0
	}
	peak := 0.0
	for _, v := range download {
		peak = math.Max(peak, v)
	}
	for _, v := range upload {
		peak = math.Max(peak, v)
	}
	return math.Min(100, 100*download[len(download)-1]/math.Max(1, peak))
}
