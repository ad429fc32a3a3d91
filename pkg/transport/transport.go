package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/scheduler"
	"github.com/mosajjal/logrelay/pkg/severity"
	"github.com/mosajjal/logrelay/pkg/sink"
	"github.com/mosajjal/logrelay/pkg/transform"
	log "github.com/sirupsen/logrus"
)

// ErrNotInitialized is returned by Log before Init bound a sink
var ErrNotInitialized = fmt.Errorf("transport not initialized: %w", sink.ErrNotInitialized)

// ErrAlreadyInitialized is returned by a second Init
var ErrAlreadyInitialized = errors.New("transport already initialized")

// Config is read once by New
type Config struct {
	LogName           string
	Resource          map[string]interface{}
	Labels            map[string]string
	Transform         transform.Config
	SeverityOverrides map[string]severity.Severity
	Concurrency       int
	FlushInterval     time.Duration
	FlushTimeout      time.Duration
	// OnError observes failed deliveries in addition to the default logging
	OnError scheduler.ErrorHandler
}

// RecordSource yields records until io.EOF
type RecordSource interface {
	Next() (models.Record, error)
}

// Transport normalizes records and hands them to the scheduler
type Transport struct {
	config      Config
	defaults    models.DefaultMetadata
	transformer *transform.Transformer
	scheduler   *scheduler.Scheduler

	mu   sync.RWMutex
	sink sink.Sink
}

// New builds a Transport. It needs Init before Log can deliver anything.
func New(cfg Config, opts ...transform.Option) *Transport {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = scheduler.DefaultPollInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = scheduler.DefaultDrainTimeout
	}
	defaults := models.NewDefaultMetadata(cfg.LogName, cfg.Resource, cfg.Labels)
	return &Transport{
		config:      cfg,
		defaults:    defaults,
		transformer: transform.New(cfg.Transform, defaults, severity.NewMap(cfg.SeverityOverrides), opts...),
		scheduler: scheduler.New(scheduler.Config{
			Concurrency: cfg.Concurrency,
			OnError:     cfg.OnError,
		}),
	}
}

// DefaultMetadata returns the process level metadata
func (t *Transport) DefaultMetadata() models.DefaultMetadata {
	return t.defaults
}

// Init binds the sink. The sink cannot be swapped afterwards.
func (t *Transport) Init(s sink.Sink) error {
	if s == nil {
		return ErrNotInitialized
	}
	switch s.(type) {
	case sink.AsyncSink, sink.SyncSink:
	default:
		return scheduler.ErrUnsupportedSink
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink != nil {
		return ErrAlreadyInitialized
	}
	t.sink = s
	return nil
}

// Log transforms one record and submits it for delivery without waiting
// for the sink
func (t *Transport) Log(record models.Record) error {
	t.mu.RLock()
	s := t.sink
	t.mu.RUnlock()
	if s == nil {
		return ErrNotInitialized
	}
	return t.scheduler.Submit(s, t.transformer.Transform(record))
}

// Run feeds records from src one at a time until the source is exhausted or
// ctx is cancelled
func (t *Transport) Run(ctx context.Context, src RecordSource) error {
	var count int
	defer func() {
		log.WithField("records", count).Debug("Record source finished")
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := t.Log(rec); err != nil {
			return err
		}
		count++
	}
}

// Flush waits up to the configured timeout for in-flight deliveries and
// reports whether everything was delivered
func (t *Transport) Flush() bool {
	return t.scheduler.Drain(t.config.FlushTimeout, t.config.FlushInterval)
}

// Close flushes and then releases the sink regardless of the flush outcome
func (t *Transport) Close() error {
	if !t.Flush() {
		log.WithField("pending", t.scheduler.Pending()).Warn("Flush timed out, closing with deliveries in flight")
	}

	t.mu.Lock()
	s := t.sink
	t.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

// Pending returns queued plus running deliveries
func (t *Transport) Pending() int {
	return t.scheduler.Pending()
}

// Stats returns the delivery counters
func (t *Transport) Stats() scheduler.Stats {
	return t.scheduler.Stats()
}
