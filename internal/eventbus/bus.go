package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the view layer.
const (
	TypeGauge   = "gauge"
	TypeSeries  = "series"
	TypeText    = "text"
	TypeSelect  = "select"
	TypePanel   = "panel"
	TypeCommand = "command"
)

// Event is a lightweight, in-memory signal used to decouple the session from
// its consumers (websocket clients, telegram mirror).
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels.
//   - Slow subscribers drop events (bounded backpressure).
//
// Data must be JSON-serializable. Version, when set, is the publisher's
// monotonically increasing revision; consumers may drop events older than
// the last one they applied.
type Event struct {
	Type    string    `json:"type"`
	ID      string    `json:"id"`
	Version uint64    `json:"version,omitempty"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data"`
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64

	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Hold the read lock while sending; sends are non-blocking and Unsubscribe
	// takes the write lock before closing, so no send hits a closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Dropped reports how many deliveries were dropped because a subscriber was full.
func Dropped(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.dropped.Load()
	}
	return 0
}
