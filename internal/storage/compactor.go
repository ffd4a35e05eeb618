package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "netprobe/pkg/logx"
)

// DefaultCompactSchedule runs compaction once an hour.
const DefaultCompactSchedule = "@hourly"

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is a usable compaction schedule.
func ValidateSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := scheduleParser.Parse(spec)
	return err
}

// Compactor triggers Store.Compact on a cron schedule.
type Compactor struct {
	store Store
	spec  string
	log   logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func NewCompactor(store Store, spec string, log logx.Logger) *Compactor {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultCompactSchedule
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Compactor{store: store, spec: spec, log: log}
}

// Start registers the schedule and starts cron triggering.
func (c *Compactor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.c != nil || c.store == nil {
		return nil
	}
	cr := cron.New(cron.WithParser(scheduleParser))
	if _, err := cr.AddFunc(c.spec, c.runOnce); err != nil {
		return err
	}
	cr.Start()
	c.c = cr
	c.log.Debug("storage compactor started", logx.String("schedule", c.spec))
	return nil
}

func (c *Compactor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	start := time.Now()
	if err := c.store.Compact(ctx); err != nil {
		c.log.Warn("storage compact failed", logx.Err(err))
		return
	}
	c.log.Debug("storage compacted", logx.Duration("took", time.Since(start)))
}

// Stop stops triggering and waits for a running compaction until ctx ends.
func (c *Compactor) Stop(ctx context.Context) {
	c.mu.Lock()
	cr := c.c
	c.c = nil
	c.mu.Unlock()
	if cr == nil {
		return
	}
	select {
	case <-cr.Stop().Done():
	case <-ctx.Done():
	}
}
