package sink

import (
	"context"
	"errors"

	"github.com/mosajjal/logrelay/pkg/models"
)

// ErrNotInitialized is returned when entries are written before a sink is bound
var ErrNotInitialized = errors.New("sink not initialized")

// Sink is any delivery target. A concrete sink implements exactly one of
// AsyncSink or SyncSink, and the choice is made once at setup.
type Sink interface {
	// Close releases the sink. It is called once, after the final drain.
	Close() error
}

// AsyncSink delivers entries to a remote service. Write blocks until the
// service accepted or rejected the batch.
type AsyncSink interface {
	Sink
	Write(ctx context.Context, entries []*models.Entry) error
}

// SyncSink writes entries locally and completes inline
type SyncSink interface {
	Sink
	WriteSync(entries []*models.Entry)
}
