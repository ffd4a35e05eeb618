package telegram

import (
	"context"
	"sync"

	"netprobe/internal/dashboard"
	"netprobe/internal/eventbus"
	logx "netprobe/pkg/logx"
)

// Sender delivers text to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
}

// Mirror forwards speedtest output changes to one chat. Consecutive
// duplicates are sent once.
type Mirror struct {
	bus  eventbus.Bus
	send Sender
	log  logx.Logger

	mu       sync.Mutex
	chatID   int64
	threadID int
	last     string
}

func NewMirror(bus eventbus.Bus, send Sender, chatID int64, threadID int, log logx.Logger) *Mirror {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Mirror{bus: bus, send: send, log: log, chatID: chatID, threadID: threadID}
}

// SetTarget changes the destination chat. chatID 0 pauses mirroring.
func (m *Mirror) SetTarget(chatID int64, threadID int) {
	m.mu.Lock()
	m.chatID, m.threadID = chatID, threadID
	m.mu.Unlock()
}

// Run blocks until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	ch, unsub := m.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.handle(ctx, e)
		}
	}
}

func (m *Mirror) handle(ctx context.Context, e eventbus.Event) {
	if e.Type != eventbus.TypeText || e.ID != dashboard.PanelSpeedtestOutput {
		return
	}
	text, _ := e.Data.(string)
	if text == "" {
		return
	}

	m.mu.Lock()
	chatID, threadID := m.chatID, m.threadID
	dup := text == m.last
	m.last = text
	m.mu.Unlock()

	if chatID == 0 || dup {
		return
	}
	if err := m.send.SendText(ctx, chatID, threadID, text); err != nil {
		m.log.Warn("speedtest mirror send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
