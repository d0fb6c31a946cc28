package geocode

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/internal/jsonrpc"
	"AIBank-Agent/internal/observability/alerting"
	"AIBank-Agent/pkg/logger"
)

const (
	defaultToolName = "geocode"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20
	alertTimeout    = 5 * time.Second
)

// Outcomes reported to the Observer.
const (
	OutcomeDisabled    = "disabled"
	OutcomeCacheHit    = "cache_hit"
	OutcomeResolved    = "resolved"
	OutcomeNoResult    = "no_result"
	OutcomeError       = "error"
	OutcomeBreakerOpen = "breaker_open"
)

// BoundingBox is a geographic extent in degrees.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Result is a validated geocode. BBox is only set by GeocodeWithBoundingBox.
type Result struct {
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Label     string       `json:"label"`
	BBox      *BoundingBox `json:"bbox,omitempty"`
}

// Geocoder resolves a place or merchant name. Every failure is reported as
// ok == false; callers degrade instead of erroring.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Result, bool)
	GeocodeWithBoundingBox(ctx context.Context, query string) (Result, bool)
}

// Observer receives geocode outcomes and breaker transitions.
type Observer interface {
	ObserveGeocode(outcome string)
	ObserveBreakerState(name, state string)
}

// Content is an item of an MCP tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Config describes the map server connection.
type Config struct {
	Endpoint string
	ToolName string
	Timeout  time.Duration
	Breaker  BreakerSettings
}

// BreakerSettings tunes the circuit breaker. A zero MaxFailures disables it.
type BreakerSettings struct {
	MaxFailures    uint32
	OpenTimeout    time.Duration
	HalfOpenProbes uint32
	Interval       time.Duration
}

// Client calls the geocode tool of an MCP map server over streamable HTTP.
// It makes a single attempt per lookup.
type Client struct {
	endpoint   string
	toolName   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      Cache
	cacheTTL   time.Duration
	logger     *slog.Logger
	observer   Observer
	alerter    alerting.Dispatcher
	nextID     atomic.Int64
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCache caches resolved lookups for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver reports outcomes, typically to metrics.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithAlerter raises an alert whenever the circuit breaker opens.
func WithAlerter(d alerting.Dispatcher) Option {
	return func(c *Client) {
		c.alerter = d
	}
}

// NewClient builds a client. An empty or whitespace endpoint yields a
// disabled client that never touches the network.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	toolName := strings.TrimSpace(cfg.ToolName)
	if toolName == "" {
		toolName = defaultToolName
	}

	c := &Client{
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		toolName:   toolName,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if cfg.Breaker.MaxFailures > 0 {
		maxFailures := cfg.Breaker.MaxFailures
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "map-server",
			MaxRequests: cfg.Breaker.HalfOpenProbes,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
				if c.observer != nil {
					c.observer.ObserveBreakerState(name, to.String())
				}
				if to == gobreaker.StateOpen && c.alerter != nil {
					alerting.Go(c.alerter, alerting.Event{
						Code:     xerrors.CodeUpstreamUnavailable,
						Message:  "map server circuit breaker opened",
						Severity: xerrors.SeverityWarning,
						Source:   alerting.SourceGeocode,
						Metadata: map[string]string{"breaker": name, "endpoint": c.endpoint},
					}, alertTimeout)
				}
			},
		})
	}
	return c
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

// Endpoint returns the configured map server URL.
func (c *Client) Endpoint() string {
	if c == nil {
		return ""
	}
	return c.endpoint
}

// Geocode resolves query to a point.
func (c *Client) Geocode(ctx context.Context, query string) (Result, bool) {
	result, ok := c.lookup(ctx, query)
	if !ok {
		return Result{}, false
	}
	result.BBox = nil
	return result, true
}

// GeocodeWithBoundingBox resolves query to a point and an extent. When the
// server reports no extent a box of ±0.01° around the point is returned.
func (c *Client) GeocodeWithBoundingBox(ctx context.Context, query string) (Result, bool) {
	return c.lookup(ctx, query)
}

func (c *Client) lookup(ctx context.Context, query string) (Result, bool) {
	query = strings.TrimSpace(query)
	if !c.Enabled() || query == "" {
		c.observe(OutcomeDisabled)
		return Result{}, false
	}

	key := cacheKey(query)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			c.observe(OutcomeCacheHit)
			return cached, true
		}
	}

	contents, err := c.call(ctx, map[string]any{"query": query})
	if err != nil {
		outcome := OutcomeError
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = OutcomeBreakerOpen
		}
		c.observe(outcome)
		c.logger.Warn("geocode lookup failed", slog.String("query", query), slog.Any("error", err))
		return Result{}, false
	}

	result, ok := parseResults(contents, query)
	if !ok {
		c.observe(OutcomeNoResult)
		c.logger.Info("geocode returned no usable result", slog.String("query", query))
		return Result{}, false
	}

	c.observe(OutcomeResolved)
	if c.cache != nil {
		c.cache.Set(ctx, key, result, c.cacheTTL)
	}
	return result, true
}

func (c *Client) call(ctx context.Context, args map[string]any) ([]Content, error) {
	if c.breaker == nil {
		return c.CallTool(ctx, c.toolName, args)
	}
	out, err := c.breaker.Execute(func() (any, error) {
		return c.CallTool(ctx, c.toolName, args)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Content), nil
}

// CallTool invokes an MCP tool on the map server and returns its content
// items. It is exported for diagnostics; lookups go through Geocode.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) ([]Content, error) {
	if !c.Enabled() {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "map server is not configured")
	}

	req, err := jsonrpc.NewRequest(c.nextID.Add(1), "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode tools/call: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build map server request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "call map server")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "read map server response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("map server returned status %d", resp.StatusCode))
	}

	message, err := eventPayload(payload)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Result *struct {
			Content []Content `json:"content"`
			IsError bool      `json:"isError"`
		} `json:"result"`
		Error *jsonrpc.Error `json:"error"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "decode map server message")
	}
	if envelope.Error != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, envelope.Error, "map server error")
	}
	if envelope.Result == nil {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "map server returned no result")
	}
	if envelope.Result.IsError {
		return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "map server tool reported an error")
	}
	return envelope.Result.Content, nil
}

// eventPayload returns the data of the first server-sent event. Servers that
// answer with plain JSON are accepted as well.
func eventPayload(body []byte) ([]byte, error) {
	var (
		data  []string
		found bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if found {
				break
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			found = true
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}
	if found {
		return []byte(strings.Join(data, "\n")), nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, nil
	}
	return nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "map server response is not an event stream")
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveGeocode(outcome)
	}
}

func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Disabled is a Geocoder that never resolves anything.
type Disabled struct{}

// Geocode always reports no result.
func (Disabled) Geocode(context.Context, string) (Result, bool) { return Result{}, false }

// GeocodeWithBoundingBox always reports no result.
func (Disabled) GeocodeWithBoundingBox(context.Context, string) (Result, bool) {
	return Result{}, false
}
