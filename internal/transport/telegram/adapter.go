package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"netprobe/internal/eventbus"
	"netprobe/internal/runtime/supervisor"
	logx "netprobe/pkg/logx"
)

type Config struct {
	Token       string
	ChatID      int64
	ThreadID    int
	Owners      []int64
	PollTimeout time.Duration
	// CommandTimeout bounds one command's handling. Default 30s.
	CommandTimeout time.Duration
	// RatePerSec and Burst limit commands per user. Default 1/s, burst 3.
	RatePerSec float64
	Burst      int
}

// Adapter connects a telebot long-poller to a Controller and a Mirror.
type Adapter struct {
	cfg    Config
	log    logx.Logger
	bot    *tele.Bot
	ctrl   *Controller
	mirror *Mirror
	handle HandlerFunc

	runMu sync.Mutex
	sup   *supervisor.Supervisor
}

// New creates the bot. It does not contact Telegram until Start.
func New(cfg Config, ctrl *Controller, bus eventbus.Bus, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, ctrl: ctrl}
	a.mirror = NewMirror(bus, a, cfg.ChatID, cfg.ThreadID, log.With(logx.String("comp", "telegram.mirror")))
	a.handle = Chain(ctrl.Handle,
		MWPanicRecover(log),
		MWRequestLog(log),
		MWTimeout(cfg.CommandTimeout),
	)
	a.bot.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil || m.Sender == nil {
		return nil
	}
	msg := Message{ChatID: m.Chat.ID, ThreadID: m.ThreadID, FromID: m.Sender.ID, Text: m.Text}
	if !IsCommand(msg.Text) {
		return nil
	}

	a.runMu.Lock()
	sup := a.sup
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	// Replies are sent off the poll loop so a slow command does not stall
	// update delivery.
	sup.Go0("telegram.command", func(ctx context.Context) {
		reply, err := a.handle(ctx, msg)
		if err != nil || reply == "" {
			return
		}
		if err := a.SendText(ctx, msg.ChatID, msg.ThreadID, reply); err != nil {
			a.log.Warn("telegram reply failed", logx.Err(err))
		}
	})
	return nil
}

// Reconfigure applies hot-reloadable settings: owners and the mirror chat.
func (a *Adapter) Reconfigure(cfg Config) {
	a.ctrl.SetOwners(cfg.Owners)
	a.mirror.SetTarget(cfg.ChatID, cfg.ThreadID)
}

func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		supervisor.WithCancelOnError(false),
	)
	sup := a.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// Start blocks until Stop; restart it if it returns early.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	},
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)
	sup.Go0("telegram.mirror", a.mirror.Run)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()

	// Never hold shutdown on a pending getUpdates long-poll.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// SendText sends text, split into Telegram-sized chunks.
func (a *Adapter) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	chat := &tele.Chat{ID: chatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{
			DisableWebPagePreview: true,
			ThreadID:              threadID,
		}); err != nil {
			return err
		}
	}
	return nil
}
