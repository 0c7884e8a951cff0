package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tempwatch/internal/config"
	"tempwatch/internal/logger"
	"tempwatch/internal/metrics"
	"tempwatch/internal/middleware"
	"tempwatch/internal/models"
	"tempwatch/internal/notify"
	"tempwatch/internal/source"
	"tempwatch/internal/stream"
	"tempwatch/internal/threshold"
)

const (
	fetchTimeout  = 5 * time.Second
	notifyTimeout = 15 * time.Second
)

// Options carries the monitor's injected collaborators. Source and Notifier
// are required; the rest default to production implementations.
type Options struct {
	Source   source.Source
	Notifier notify.Notifier

	// Optional alert event stream
	Events *stream.Publisher

	// Injectable for tests; defaults to the wall clock
	Clock Clock

	// Timezone for message timestamps; defaults to system local
	Location *time.Location
}

// Monitor drives the poll loop: fetch a reading, run it through the threshold
// machine, notify on transitions. One cycle runs to completion before the
// next begins; the only mutable state is the machine's, touched sequentially.
type Monitor struct {
	cfg      *config.Config
	thCfg    threshold.Config
	machine  *threshold.Machine
	src      source.Source
	notifier notify.Notifier
	events   *stream.Publisher
	clock    Clock
	loc      *time.Location

	httpServer *http.Server
	wg         sync.WaitGroup

	cycles         atomic.Uint64
	fetchFailures  atomic.Uint64
	notifyFailures atomic.Uint64

	// Snapshot for /status; written by the loop, read by the ops server
	mu          sync.Mutex
	lastState   threshold.State
	initialized bool
	lastReading *models.Reading
	lastError   string
}

// New constructs a Monitor from config and collaborators.
func New(cfg *config.Config, opts Options) *Monitor {
	clock := opts.Clock
	if clock == nil {
		clock = NewClock()
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	thCfg := threshold.Config{
		Threshold:   cfg.Threshold,
		Hysteresis:  cfg.Hysteresis,
		OnAboveOnly: cfg.OnAboveOnly,
		SensorName:  cfg.SensorName,
	}

	return &Monitor{
		cfg:       cfg,
		thCfg:     thCfg,
		machine:   threshold.NewMachine(thCfg),
		src:       opts.Source,
		notifier:  opts.Notifier,
		events:    opts.Events,
		clock:     clock,
		loc:       loc,
		lastState: threshold.StateBelow,
	}
}

// State returns the alert state as of the last completed cycle.
func (m *Monitor) State() threshold.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastState
}

// Run executes poll cycles until the context is cancelled, then shuts down
// cleanly. A failed cycle is never fatal.
func (m *Monitor) Run(ctx context.Context) error {
	log := logger.WithComponent("monitor")
	log.Info().
		Float64("threshold", m.cfg.Threshold).
		Float64("hysteresis", m.cfg.Hysteresis).
		Dur("poll_interval", m.cfg.PollInterval).
		Bool("on_above_only", m.cfg.OnAboveOnly).
		Str("sensor", m.cfg.SensorName).
		Msg("monitor starting")

	if m.cfg.OpsAddr != "" {
		m.startOpsServer()
	}

	for {
		start := m.clock.Now()
		m.cycle(ctx)

		if ctx.Err() != nil {
			break
		}

		wait := m.cfg.PollInterval - m.clock.Now().Sub(start)
		if wait > 0 {
			if err := m.clock.Sleep(ctx, wait); err != nil {
				break
			}
		}
	}

	log.Info().Msg("shutdown signal received")
	return m.shutdown()
}

// cycle performs one fetch -> evaluate -> notify pass.
func (m *Monitor) cycle(ctx context.Context) {
	log := logger.WithComponent("monitor")
	m.cycles.Add(1)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	fetchStart := time.Now()
	reading, err := m.src.Latest(fetchCtx)
	cancel()
	metrics.FetchDuration.Observe(time.Since(fetchStart).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return // shutting down, not a source failure
		}
		m.fetchFailures.Add(1)
		metrics.PollCyclesTotal.WithLabelValues("fetch_error").Inc()
		log.Warn().Err(err).Msg("failed to fetch reading, skipping cycle")
		m.recordCycle(nil, err)
		return
	}

	res := m.machine.Observe(reading)

	switch res.Outcome {
	case threshold.OutcomeStale:
		metrics.PollCyclesTotal.WithLabelValues("stale").Inc()
		log.Debug().
			Float64("value", reading.Value).
			Time("observed_at", reading.ObservedAt).
			Msg("reading not newer than last, skipping")
		return

	case threshold.OutcomeInitialized:
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
		log.Info().
			Str("state", string(res.State)).
			Float64("value", reading.Value).
			Time("observed_at", reading.ObservedAt).
			Msg("initial state determined")

	case threshold.OutcomeNoChange:
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()

	case threshold.OutcomeFired, threshold.OutcomeRecovered:
		metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
		metrics.TransitionsTotal.WithLabelValues(res.Outcome.String()).Inc()
		m.handleTransition(ctx, res)
	}

	metrics.CurrentTemperature.Set(reading.Value)
	metrics.AlertState.Set(stateGauge(res.State))
	m.recordCycle(&reading, nil)
}

// handleTransition sends the notification and publishes the alert event. A
// notify failure does not roll the state back; the next cycle continues
// normally.
func (m *Monitor) handleTransition(ctx context.Context, res threshold.Result) {
	log := logger.WithComponent("monitor")
	t := res.Transition

	if m.events != nil {
		m.events.Enqueue(models.NewAlertEvent(
			m.cfg.SensorName, string(t.From), string(t.To), t.Reading, m.cfg.Threshold,
		))
	}

	message := threshold.BuildMessage(t, m.thCfg, m.loc)

	if res.Suppressed {
		metrics.NotificationsTotal.WithLabelValues("suppressed").Inc()
		log.Info().
			Str("from", string(t.From)).
			Str("to", string(t.To)).
			Msg("recovery notification suppressed (on_above_only)")
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	start := time.Now()
	err := m.notifier.Send(notifyCtx, message)
	metrics.NotifyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		m.notifyFailures.Add(1)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).
			Str("message", message).
			Msg("failed to deliver notification")
		return
	}

	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	log.Info().
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("message", message).
		Msg("notification sent")
}

// SendTest delivers a one-off message to the notifier without consulting the
// reading source or the threshold machine.
func SendTest(ctx context.Context, n notify.Notifier, sensorName string, loc *time.Location, message string) error {
	if message == "" {
		message = threshold.BuildTestMessage(sensorName, time.Now(), loc)
	}

	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := n.Send(ctx, message); err != nil {
		return err
	}

	log := logger.WithComponent("monitor")
	log.Info().
		Str("message", message).
		Msg("test notification sent")
	return nil
}

// startOpsServer serves /metrics, /health and /status in the background.
func (m *Monitor) startOpsServer() {
	log := logger.WithComponent("monitor")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", middleware.Chain(
		http.HandlerFunc(m.healthHandler),
		middleware.Recovery,
		middleware.Logging,
	))
	mux.Handle("/status", middleware.Chain(
		http.HandlerFunc(m.statusHandler),
		middleware.Recovery,
		middleware.Logging,
	))

	m.httpServer = &http.Server{
		Addr:         m.cfg.OpsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		log.Info().Str("addr", m.cfg.OpsAddr).Msg("starting ops server")
		if err := m.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops server error")
		}
	}()
}

// shutdown stops the ops server and waits for background goroutines.
func (m *Monitor) shutdown() error {
	log := logger.WithComponent("monitor")

	if m.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		log.Info().Msg("stopping ops server")
		if err := m.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("ops server shutdown error")
		}
	}

	m.wg.Wait()
	log.Info().Msg("monitor stopped gracefully")
	return nil
}

func (m *Monitor) recordCycle(r *models.Reading, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastState = m.machine.State()
	m.initialized = m.machine.Initialized()
	if r != nil {
		m.lastReading = r
		m.lastError = ""
	}
	if err != nil {
		m.lastError = err.Error()
	}
}

func (m *Monitor) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (m *Monitor) statusHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	state := m.lastState
	initialized := m.initialized
	lastReading := m.lastReading
	lastError := m.lastError
	m.mu.Unlock()

	lastValue := "null"
	lastAt := ""
	if lastReading != nil {
		lastValue = fmt.Sprintf("%.2f", lastReading.Value)
		lastAt = lastReading.ObservedAt.Format(time.RFC3339)
	}

	var streamStats stream.Stats
	if m.events != nil {
		streamStats = m.events.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"state": %q,
		"initialized": %t,
		"last_value": %s,
		"last_observed_at": %q,
		"last_error": %q,
		"cycles": %d,
		"fetch_failures": %d,
		"notify_failures": %d,
		"stream": {
			"published": %d,
			"failed": %d,
			"dropped": %d
		}
	}`,
		state,
		initialized,
		lastValue,
		lastAt,
		lastError,
		m.cycles.Load(),
		m.fetchFailures.Load(),
		m.notifyFailures.Load(),
		streamStats.Published,
		streamStats.Failed,
		streamStats.Dropped,
	)
}

func stateGauge(s threshold.State) float64 {
	if s == threshold.StateAbove {
		return 1
	}
	return 0
}
