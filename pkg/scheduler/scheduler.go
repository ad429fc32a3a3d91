package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/sink"
	log "github.com/sirupsen/logrus"
)

// ErrUnsupportedSink is returned for sinks that implement neither write shape
var ErrUnsupportedSink = errors.New("sink implements neither AsyncSink nor SyncSink")

// Task is one write handed to the scheduler
type Task struct {
	Seq     uint64
	Sink    sink.AsyncSink
	Entries []*models.Entry
}

// ErrorHandler observes failed writes. It runs on the delivering goroutine.
type ErrorHandler func(task *Task, err error)

// Config holds scheduler settings
type Config struct {
	// Concurrency caps in-flight async writes, values below 1 mean 1
	Concurrency int
	// OnError is called for every failed write. Failures are always logged
	// and counted, whether or not OnError is set.
	OnError ErrorHandler
	// OnStart, when set, is called when a task is taken off the queue. It
	// runs with the scheduler locked and must not call back into it.
	OnStart func(task *Task)
}

// Stats are cumulative counters
type Stats struct {
	Submitted uint64
	Completed uint64
	Failed    uint64
}

// Scheduler runs async writes in FIFO order with bounded concurrency. Writes
// are not retried and are not cancelled once started.
type Scheduler struct {
	config Config

	mu      sync.Mutex
	queue   []*Task
	running int
	seq     uint64
	stats   Stats
}

// New creates a Scheduler
func New(cfg Config) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Scheduler{config: cfg}
}

// Submit hands entries to s without waiting for delivery. SyncSinks are
// written inline, AsyncSinks are queued.
func (s *Scheduler) Submit(target sink.Sink, entries ...*models.Entry) error {
	switch snk := target.(type) {
	case sink.AsyncSink:
		s.mu.Lock()
		s.seq++
		s.stats.Submitted++
		s.queue = append(s.queue, &Task{Seq: s.seq, Sink: snk, Entries: entries})
		s.dispatchLocked()
		s.mu.Unlock()
		return nil
	case sink.SyncSink:
		s.mu.Lock()
		s.seq++
		s.stats.Submitted++
		s.mu.Unlock()

		snk.WriteSync(entries)

		s.mu.Lock()
		s.stats.Completed++
		s.mu.Unlock()
		return nil
	case nil:
		return sink.ErrNotInitialized
	}
	return ErrUnsupportedSink
}

// dispatchLocked starts queued tasks while there is capacity. s.mu must be held.
func (s *Scheduler) dispatchLocked() {
	for s.running < s.config.Concurrency && len(s.queue) > 0 {
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.running++
		if s.config.OnStart != nil {
			s.config.OnStart(task)
		}
		go s.run(task)
	}
}

func (s *Scheduler) run(task *Task) {
	err := task.Sink.Write(context.Background(), task.Entries)

	if err != nil {
		log.WithError(err).WithField("entries", len(task.Entries)).Error("Failed to deliver entries")
		if s.config.OnError != nil {
			s.config.OnError(task, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running--
	if err != nil {
		s.stats.Failed++
	} else {
		s.stats.Completed++
	}
	s.dispatchLocked()
}

// Pending returns the number of queued plus running tasks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) + s.running
}

// Stats returns a snapshot of the counters
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
