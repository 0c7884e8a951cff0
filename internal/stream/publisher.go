package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"tempwatch/internal/logger"
	"tempwatch/internal/metrics"
	"tempwatch/internal/models"
)

// Publisher errors
var (
	ErrNoBrokers = errors.New("at least one broker is required")
	ErrNoTopic   = errors.New("topic is required")
)

// writer is the slice of kafka.Writer the publisher needs; lets tests swap in
// a fake.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds alert event stream configuration.
type Config struct {
	Brokers []string
	Topic   string

	// Buffered queue between the poll loop and the background publisher
	QueueSize int

	// Retry policy for a single event
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

// Publisher delivers alert events to Kafka from a background goroutine so a
// slow broker never blocks the poll loop. Events are dropped (and counted)
// when the queue is full.
type Publisher struct {
	cfg    Config
	writer writer
	queue  chan *models.AlertEvent
	closed atomic.Bool
	wg     sync.WaitGroup

	// Metrics
	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewPublisher creates a Kafka-backed publisher and starts its worker.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if cfg.Topic == "" {
		return nil, ErrNoTopic
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Partition by sensor
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false, // Sync for reliability
	}

	return newPublisher(cfg, w), nil
}

func newPublisher(cfg Config, w writer) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	p := &Publisher{
		cfg:    cfg,
		writer: w,
		queue:  make(chan *models.AlertEvent, cfg.QueueSize),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

// Enqueue hands an event to the background publisher without blocking.
// Returns false when the event was dropped (queue full or publisher closed).
func (p *Publisher) Enqueue(evt *models.AlertEvent) bool {
	if p.closed.Load() {
		p.dropped.Add(1)
		metrics.StreamPublishTotal.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case p.queue <- evt:
		return true
	default:
		p.dropped.Add(1)
		metrics.StreamPublishTotal.WithLabelValues("dropped").Inc()
		log := logger.WithComponent("stream")
		log.Warn().
			Str("event_id", evt.ID).
			Msg("alert event queue full, dropping event")
		return false
	}
}

// run drains the queue until Close. Remaining events are flushed before exit.
func (p *Publisher) run() {
	defer p.wg.Done()

	log := logger.WithComponent("stream")
	log.Info().Str("topic", p.cfg.Topic).Msg("alert event publisher started")
	defer log.Info().Msg("alert event publisher stopped")

	for evt := range p.queue {
		p.publish(evt)
	}
}

func (p *Publisher) publish(evt *models.AlertEvent) {
	log := logger.WithComponent("stream")

	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event_id", evt.ID).Msg("failed to serialize alert event")
		p.failed.Add(1)
		metrics.StreamPublishTotal.WithLabelValues("failed").Inc()
		return
	}

	msg := kafka.Message{
		Key:   []byte(evt.Sensor),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "sensor", Value: []byte(evt.Sensor)},
		},
		Time: evt.EmittedAt,
	}

	if err := p.publishWithRetry(msg); err != nil {
		log.Error().Err(err).Str("event_id", evt.ID).Msg("failed to publish alert event")
		p.failed.Add(1)
		metrics.StreamPublishTotal.WithLabelValues("failed").Inc()
		return
	}

	p.published.Add(1)
	metrics.StreamPublishTotal.WithLabelValues("success").Inc()
}

// publishWithRetry writes one message with exponential backoff retry.
func (p *Publisher) publishWithRetry(msg kafka.Message) error {
	log := logger.WithComponent("stream")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying alert event publish")
			metrics.StreamPublishRetries.Inc()
			time.Sleep(backoff)
			backoff *= 2
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		err := p.writer.WriteMessages(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close stops accepting events, flushes the queue and closes the writer.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil // Already closed
	}

	close(p.queue)
	p.wg.Wait()

	return p.writer.Close()
}

// Stats returns publisher statistics.
func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Stats holds publisher metrics.
type Stats struct {
	Published uint64
	Failed    uint64
	Dropped   uint64
}
