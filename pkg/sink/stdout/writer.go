// Package stdout writes entries as one-line structured JSON, the layout
// logging agents pick up from a container's standard output.
package stdout

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mosajjal/logrelay/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Special keys understood by logging agents
const (
	LabelsKey       = "logging.googleapis.com/labels"
	InsertIDKey     = "logging.googleapis.com/insertId"
	TraceKey        = "logging.googleapis.com/trace"
	SpanIDKey       = "logging.googleapis.com/spanId"
	TraceSampledKey = "logging.googleapis.com/trace_sampled"
	SeverityKey     = "severity"
	TimestampKey    = "timestamp"
	HTTPRequestKey  = "httpRequest"
	OperationKey    = "logging.googleapis.com/operation"
	SourceLocKey    = "logging.googleapis.com/sourceLocation"
)

// extraKeys renames extra metadata fields the agent has special keys for
var extraKeys = map[string]string{
	"operation":      OperationKey,
	"sourceLocation": SourceLocKey,
}

// Writer is a sink.SyncSink
type Writer struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// New creates a Writer on w, or on os.Stdout when w is nil
func New(w io.Writer) *Writer {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Writer{out: w, enc: enc}
}

// WriteSync encodes each entry on its own line. Encoding failures are
// logged and the entry is skipped.
func (w *Writer) WriteSync(entries []*models.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if e == nil {
			continue
		}
		if err := w.enc.Encode(Structured(e)); err != nil {
			log.WithError(err).Error("Failed to write structured entry to stdout")
		}
	}
}

// Close is a no-op, the underlying writer is owned by the caller
func (w *Writer) Close() error {
	return nil
}

// Structured flattens an entry: payload fields at the top level, metadata
// under the agent's special keys. Metadata wins over payload on conflicts.
func Structured(e *models.Entry) map[string]interface{} {
	md := e.Metadata
	out := make(map[string]interface{}, len(e.Payload)+8)
	for k, v := range e.Payload {
		out[k] = v
	}
	for k, v := range md.Extra {
		if special, ok := extraKeys[k]; ok {
			k = special
		}
		out[k] = v
	}
	if md.Severity != "" {
		out[SeverityKey] = strings.ToUpper(md.Severity)
	}
	if !md.Timestamp.IsZero() {
		out[TimestampKey] = md.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	if len(md.Labels) > 0 {
		out[LabelsKey] = md.Labels
	}
	if md.InsertID != "" {
		out[InsertIDKey] = md.InsertID
	}
	if md.Trace != "" {
		out[TraceKey] = md.Trace
	}
	if md.SpanID != "" {
		out[SpanIDKey] = md.SpanID
	}
	out[TraceSampledKey] = md.TraceSampled
	if md.HTTPRequest != nil {
		out[HTTPRequestKey] = md.HTTPRequest
	}
	return out
}
