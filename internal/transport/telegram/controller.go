package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"netprobe/internal/dashboard"
	logx "netprobe/pkg/logx"
)

// ErrNotAllowed is returned for messages from users outside the owner list.
var ErrNotAllowed = errors.New("sender not allowed")

// Message is one incoming chat message.
type Message struct {
	ChatID   int64
	ThreadID int
	FromID   int64
	Text     string
}

// Controller turns chat commands into dashboard commands.
type Controller struct {
	d   *dashboard.Dispatcher
	log logx.Logger

	mu     sync.RWMutex
	owners map[int64]struct{}

	limMu    sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewController builds a controller. Only listed owners may run commands; an
// empty owner list denies everyone.
// perSec <= 0 disables per-user rate limiting.
func NewController(d *dashboard.Dispatcher, owners []int64, perSec float64, burst int, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if burst <= 0 {
		burst = 1
	}
	c := &Controller{
		d:        d,
		log:      log,
		limiters: map[int64]*rate.Limiter{},
		rate:     rate.Limit(perSec),
		burst:    burst,
	}
	c.SetOwners(owners)
	return c
}

// SetOwners replaces the allowed user list.
func (c *Controller) SetOwners(owners []int64) {
	m := make(map[int64]struct{}, len(owners))
	for _, id := range owners {
		m[id] = struct{}{}
	}
	c.mu.Lock()
	c.owners = m
	c.mu.Unlock()
}

func (c *Controller) allowed(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.owners[id]
	return ok
}

func (c *Controller) limiter(id int64) *rate.Limiter {
	if c.rate <= 0 {
		return nil
	}
	c.limMu.Lock()
	defer c.limMu.Unlock()
	l, ok := c.limiters[id]
	if !ok {
		l = rate.NewLimiter(c.rate, c.burst)
		c.limiters[id] = l
	}
	return l
}

// IsCommand reports whether text looks like a bot command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// splitCommand parses "/range@bot 24h footer" into ("range", ["24h","footer"]).
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

// Handle executes one command and returns the reply text. Messages that
// are not commands yield an empty reply and no error.
func (c *Controller) Handle(ctx context.Context, m Message) (string, error) {
	if !IsCommand(m.Text) {
		return "", nil
	}
	if !c.allowed(m.FromID) {
		return "", ErrNotAllowed
	}
	if l := c.limiter(m.FromID); l != nil && !l.Allow() {
		return "Too many commands, slow down.", nil
	}

	name, args := splitCommand(m.Text)
	switch name {
	case "start", "help":
		return helpText, nil
	case "status":
		return c.statusText(), nil
	case "range":
		if len(args) == 0 {
			s := c.d.Session()
			return fmt.Sprintf("Range: %s (%d samples)\nAvailable: %s",
				s.Ranges.Token(), s.Ranges.Limit(), strings.Join(dashboard.Tokens(), " ")), nil
		}
	}

	cmd, err := dashboard.ParseCommand(name, args)
	if err != nil {
		return err.Error(), nil
	}
	if err := c.d.Dispatch(ctx, cmd); err != nil {
		return "Error: " + err.Error(), nil
	}
	return c.ack(cmd), nil
}

func (c *Controller) ack(cmd dashboard.Command) string {
	s := c.d.Session()
	switch v := cmd.(type) {
	case dashboard.RangeChanged:
		return fmt.Sprintf("Range set to %s (%d samples).", s.Ranges.Token(), s.Ranges.Limit())
	case dashboard.PanelToggled:
		return fmt.Sprintf("Panel %s %s.", v.Panel, shownHidden(v.Visible))
	case dashboard.SeriesToggled:
		return fmt.Sprintf("Series %s %s.", v.Key, shownHidden(v.Visible))
	case dashboard.RunSpeedtest:
		return "Speedtest requested."
	case dashboard.ConfigRequested:
		if cfg := s.LatestConfig(); cfg != nil {
			return "Reloading collector settings. Last known:\n" + strings.Join(cfg.SettingsLines(), "\n")
		}
		return "Reloading collector settings."
	default:
		return "OK."
	}
}

func shownHidden(v bool) string {
	if v {
		return "shown"
	}
	return "hidden"
}

func (c *Controller) statusText() string {
	s := c.d.Session()
	st := s.Status()

	var b strings.Builder
	fmt.Fprintf(&b, "Range: %s (%d samples)\n", st.Range, st.Limit)
	fmt.Fprintf(&b, "Probe interval: %ds\n", st.Cadence)
	if st.LastSample > 0 {
		fmt.Fprintf(&b, "Last sample: %s\n", time.Unix(st.LastSample, 0).In(s.Location()).Format("2006-01-02 15:04:05"))
	}
	b.WriteString(st.NextProbe + "\n")
	keys := make([]string, len(st.Series))
	for i, k := range st.Series {
		keys[i] = string(k)
	}
	fmt.Fprintf(&b, "DNS series: %s", st.SeriesMode)
	if len(keys) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(keys, ", "))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Speedtests loaded: %d", st.Speedtests)

	var hidden []string
	for id, v := range st.Panels {
		if !v {
			hidden = append(hidden, id)
		}
	}
	if len(hidden) > 0 {
		sort.Strings(hidden)
		fmt.Fprintf(&b, "\nHidden panels: %s", strings.Join(hidden, ", "))
	}
	return b.String()
}

const helpText = `Commands:
/status - session summary
/range [token] [control] - show or set the time range
/panel <id> on|off - show or hide a panel
/series <key> on|off - show or hide a DNS series
/speedtest - run a speedtest on the collector
/config - reload collector settings`
