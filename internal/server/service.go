package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "netprobe/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8088"

// Config controls the dashboard HTTP server.
//
// Control endpoints are unauthenticated: prefer a loopback address.
type Config struct {
	Enabled bool
	Addr    string

	ControlRatePerSec float64
	ControlBurst      int

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// Service runs the HTTP surface and restarts it when the listen
// configuration changes.
type Service struct {
	deps Deps
	log  logx.Logger

	mu       sync.Mutex
	cfg      Config
	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// Addr returns the bound address while running, or "".
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg and starts, stops or restarts the server as
// needed. Safe to call during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if !cfg.Enabled {
		if running {
			s.Stop(ctx)
		}
		return
	}
	if !running {
		_ = s.Start(ctx)
		return
	}
	if needsRestart(prev, cfg) {
		s.Stop(ctx)
		_ = s.Start(ctx)
	}
}

func needsRestart(a, b Config) bool {
	return normalizeAddr(a.Addr) != normalizeAddr(b.Addr) ||
		a.ControlRatePerSec != b.ControlRatePerSec ||
		a.ControlBurst != b.ControlBurst ||
		a.ReadHeaderTimeout != b.ReadHeaderTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

func normalizeAddr(addr string) string {
	if a := strings.TrimSpace(addr); a != "" {
		return a
	}
	return DefaultAddr
}

func (s *Service) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return nil
		}
		// Wait for an in-flight stop so the old listener is gone.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		cur := s.cfg
		s.mu.Unlock()

		if !cur.Enabled {
			return nil
		}
		addr := normalizeAddr(cur.Addr)
		if !isLoopbackAddr(addr) {
			s.log.Warn("dashboard control endpoints exposed on non-loopback addr", logx.String("addr", addr))
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.log.Error("http listen failed", logx.String("addr", addr), logx.Err(err))
			return err
		}

		readHeader := cur.ReadHeaderTimeout
		if readHeader <= 0 {
			readHeader = 10 * time.Second
		}
		srv := &http.Server{
			Handler:           NewHandler(s.deps, RateLimit(cur.ControlRatePerSec, cur.ControlBurst)),
			ReadHeaderTimeout: readHeader,
			IdleTimeout:       cur.IdleTimeout,
		}

		s.mu.Lock()
		s.ln = ln
		s.srv = srv
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("http server stopped with error", logx.Err(err))
			}
		}()

		s.log.Info("http server started", logx.String("addr", ln.Addr().String()))
		return nil
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	go func() {
		defer close(done)
		// Hijacked websocket connections are not tracked by Shutdown; the
		// hub closes them when its context ends.
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
