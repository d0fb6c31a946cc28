// Package events publishes one record per handled query to a log, a
// RabbitMQ queue or a Kafka topic. Publishing never affects the response.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"AIBank-Agent/pkg/logger"
)

// Drivers selectable in configuration.
const (
	DriverLog      = "log"
	DriverNone     = "none"
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
)

// Interaction describes one answered query.
type Interaction struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	Template   string    `json:"template"`
	Runtime    string    `json:"runtime"`
	LatencyMs  int64     `json:"latencyMs"`
	Failed     bool      `json:"failed,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewInteraction stamps an interaction with a fresh id and the current time.
func NewInteraction(channel, template, runtime string, latency time.Duration) Interaction {
	return Interaction{
		ID:         uuid.NewString(),
		Channel:    channel,
		Template:   template,
		Runtime:    runtime,
		LatencyMs:  latency.Milliseconds(),
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers interactions.
type Publisher interface {
	Publish(ctx context.Context, event Interaction) error
	Close() error
}

// Observer counts publish results.
type Observer interface {
	ObserveEvent(driver string, err error)
}

func encode(event Interaction) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode interaction: %w", err)
	}
	return body, nil
}

// LogPublisher writes interactions to a structured logger, by default the
// audit log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger selects the audit log.
func NewLogPublisher(l *slog.Logger) *LogPublisher {
	if l == nil {
		l = logger.Audit()
	}
	return &LogPublisher{logger: l}
}

// Publish logs the interaction.
func (p *LogPublisher) Publish(ctx context.Context, event Interaction) error {
	p.logger.LogAttrs(ctx, slog.LevelInfo, "interaction",
		slog.String("id", event.ID),
		slog.String("channel", event.Channel),
		slog.String("template", event.Template),
		slog.String("runtime", event.Runtime),
		slog.Int64("latency_ms", event.LatencyMs),
		slog.Bool("failed", event.Failed),
		slog.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }

// Nop drops every interaction.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Interaction) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// Recorder hands interactions to a single background publisher through a
// bounded queue. Record never blocks a request; when the queue is full the
// interaction is dropped and counted as a failed publish.
type Recorder struct {
	publisher Publisher
	driver    string
	observer  Observer
	timeout   time.Duration
	logger    *slog.Logger

	queue     chan Interaction
	done      chan struct{}
	closeOnce sync.Once
}

// ErrQueueFull reports an interaction dropped because the queue was full.
var ErrQueueFull = errors.New("interaction queue is full")

const defaultQueueSize = 256

// NewRecorder wraps publisher and starts its publishing goroutine. observer
// may be nil.
func NewRecorder(publisher Publisher, driver string, observer Observer) *Recorder {
	return newRecorder(publisher, driver, observer, defaultQueueSize)
}

func newRecorder(publisher Publisher, driver string, observer Observer, size int) *Recorder {
	if publisher == nil {
		publisher = Nop{}
		driver = DriverNone
	}
	r := &Recorder{
		publisher: publisher,
		driver:    driver,
		observer:  observer,
		timeout:   2 * time.Second,
		logger:    logger.Named("events"),
		queue:     make(chan Interaction, size),
		done:      make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues event for publishing. It returns immediately.
func (r *Recorder) Record(_ context.Context, event Interaction) {
	if r == nil || r.driver == DriverNone {
		return
	}
	select {
	case r.queue <- event:
	default:
		r.report(event, ErrQueueFull)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for event := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.publisher.Publish(ctx, event)
		cancel()
		r.report(event, err)
	}
}

func (r *Recorder) report(event Interaction, err error) {
	if err != nil {
		r.logger.Warn("publish interaction failed",
			slog.String("driver", r.driver),
			slog.String("id", event.ID),
			slog.Any("error", err))
	}
	if r.observer != nil {
		r.observer.ObserveEvent(r.driver, err)
	}
}

// Close publishes the queued interactions, stops the goroutine and releases
// the publisher. Record must not be called after Close.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
		err = r.publisher.Close()
	})
	return err
}
