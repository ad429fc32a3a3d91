package provider

import (
	"context"
	"encoding/json"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/scheduler"
)

// CloudProvider turns a cloud function invocation payload into log records
type CloudProvider interface {
	// Name returns the provider name
	Name() string

	// Records decodes every log record carried by one invocation
	Records(ctx context.Context, rawEvent json.RawMessage) ([]models.Record, error)
}

// Logger is what a function handler feeds records into
type Logger interface {
	Log(record models.Record) error
	Flush() bool
	Stats() scheduler.Stats
}

// Deliver logs records and waits for the flush. delivered is false when the
// flush timed out or a delivery failed meanwhile. The failure counter is
// shared, so a failure of a concurrent invocation also reports false here.
func Deliver(l Logger, records []models.Record) (delivered bool, err error) {
	failed := l.Stats().Failed
	for _, rec := range records {
		if err := l.Log(rec); err != nil {
			return false, err
		}
	}
	if !l.Flush() {
		return false, nil
	}
	return l.Stats().Failed == failed, nil
}
