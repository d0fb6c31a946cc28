// Package alerting fans operational events out to notification channels.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	xerrors "AIBank-Agent/internal/errors"
	"AIBank-Agent/pkg/logger"
)

// Channel names a notification channel.
type Channel string

// Supported channels.
const (
	ChannelLog     Channel = "log"
	ChannelWebhook Channel = "webhook"
)

// Sources raising alerts.
const (
	SourceGeocode = "geocode"
	SourceAPI     = "api"
)

// Event describes something an operator should look at.
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Source     string
	RequestID  string
	Metadata   map[string]string
	OccurredAt time.Time
}

// Summary renders the event on one line.
func (e Event) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s", e.Severity, e.Source, e.Code, e.Message)
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, e.Metadata[k])
	}
	return b.String()
}

// Notifier delivers events to one channel.
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher accepts events for delivery.
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher delivers every event to each registered notifier.
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout registers notifiers by channel. A later notifier replaces an
// earlier one on the same channel.
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify delivers event to all channels and joins their errors.
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to a logger at a level matching their severity.
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel returns ChannelLog.
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify logs the event.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	l := n.Logger
	if l == nil {
		l = logger.Named("alerts")
	}
	level := slog.LevelWarn
	if event.Severity == xerrors.SeverityCritical {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("code", string(event.Code)),
		slog.String("source", event.Source),
		slog.String("severity", string(event.Severity)),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	l.LogAttrs(ctx, level, "alert: "+event.Message, attrs...)
	return nil
}

// WebhookNotifier posts events as {"text": ...} to a chat webhook.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// Channel returns ChannelWebhook.
func (n *WebhookNotifier) Channel() Channel { return ChannelWebhook }

// Notify posts the event summary.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || strings.TrimSpace(n.URL) == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"text": event.Summary()})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("alert webhook returned %s", resp.Status)
	}
	return nil
}

// Go delivers event on its own goroutine with timeout, logging a failed
// delivery. A nil dispatcher is ignored.
func Go(d Dispatcher, event Event, timeout time.Duration) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := d.Notify(ctx, event); err != nil {
			logger.Named("alerts").Warn("deliver alert failed",
				slog.String("code", string(event.Code)),
				slog.Any("error", err))
		}
	}()
}
