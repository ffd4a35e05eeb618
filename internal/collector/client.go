package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "netprobe/pkg/logx"
)

const (
	maxBodyBytes  = 4 << 20
	maxErrorBytes = 4 << 10

	RequestIDHeader = "X-Request-ID"
)

// Client talks to the collector HTTP API.
//
// There are no retries: every failure is terminal for that call.
type Client struct {
	base string
	hc   *http.Client
	log  logx.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithTimeout bounds every request. Zero keeps requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

func WithLogger(log logx.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		hc:   newHTTPClient(),
		log:  logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	return c
}

func newHTTPClient() *http.Client {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: tr}
}

func (c *Client) BaseURL() string { return c.base }

// RecentScores returns up to limit samples, oldest first.
func (c *Client) RecentScores(ctx context.Context, limit int) ([]Sample, error) {
	var out recentResponse
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/api/score/recent", q, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].TS < out.Data[j].TS })
	return out.Data, nil
}

// Config returns the collector's configuration snapshot.
func (c *Client) Config(ctx context.Context) (*ConfigSnapshot, error) {
	var out ConfigSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SpeedtestHistory returns up to limit results sorted by ascending ts.
func (c *Client) SpeedtestHistory(ctx context.Context, limit int) ([]SpeedtestResult, error) {
	var out historyResponse
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/api/speedtest/history", q, &out); err != nil {
		return nil, err
	}
	sort.SliceStable(out.Tests, func(i, j int) bool { return out.Tests[i].TS < out.Tests[j].TS })
	return out.Tests, nil
}

// SpeedtestLatest returns the newest result, or nil when none exists yet.
func (c *Client) SpeedtestLatest(ctx context.Context) (*SpeedtestResult, error) {
	var out latestResponse
	if err := c.do(ctx, http.MethodGet, "/api/speedtest/latest", nil, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// RunSpeedtest asks the collector to run a speedtest and waits for it.
//
// A success:false reply is returned as *ApplicationError.
func (c *Client) RunSpeedtest(ctx context.Context) (*SpeedtestResult, error) {
	var out runResponse
	if err := c.do(ctx, http.MethodPost, "/api/speedtest/run", nil, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, &ApplicationError{Message: out.Error}
	}
	if out.Result == nil {
		return nil, &ApplicationError{Message: "collector returned no result"}
	}
	return out.Result, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	rid := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return &TransportError{Op: method, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		c.log.Debug("collector non-2xx",
			logx.String("method", method),
			logx.String("path", path),
			logx.Int("status", resp.StatusCode),
			logx.String("request_id", rid),
		)
		return &ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &TransportError{Op: method, URL: u, Err: ctx.Err()}
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	c.log.Trace("collector call",
		logx.String("method", method),
		logx.String("path", path),
		logx.String("request_id", rid),
		logx.Duration("took", time.Since(start)),
	)
	return nil
}
