// Package transform turns raw log records into sink entries.
//
// The field promotion steps run in a fixed order because later steps consult
// fields that earlier ones may have removed. The input record is never
// mutated: Transform works on a shallow copy.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/severity"
	"github.com/mosajjal/logrelay/pkg/trace"
)

// Well known record keys
const (
	MessageField        = "message"
	ServiceContextField = "serviceContext"
	LevelField          = "level"
	TimeField           = "time"
)

// Config names the record keys that carry special data
type Config struct {
	MessageKey     string
	ErrorKey       string
	MetadataKey    string
	HTTPRequestKey string
	ServiceContext *models.ServiceContext
}

// DefaultConfig returns the pino conventions
func DefaultConfig() Config {
	return Config{
		MessageKey:     "msg",
		ErrorKey:       "err",
		MetadataKey:    "metadata",
		HTTPRequestKey: "httpRequest",
	}
}

// Transformer is safe for concurrent use; all of its state is read-only
type Transformer struct {
	config    Config
	defaults  models.DefaultMetadata
	severity  *severity.Map
	trace     trace.Provider
	newInsert func() string
}

// Option customises a Transformer
type Option func(*Transformer)

// WithTraceProvider sets the fallback source of trace ids
func WithTraceProvider(p trace.Provider) Option {
	return func(t *Transformer) { t.trace = p }
}

// WithInsertIDFunc replaces the insert id generator
func WithInsertIDFunc(f func() string) Option {
	return func(t *Transformer) { t.newInsert = f }
}

// New creates a Transformer. Empty key names fall back to DefaultConfig.
func New(cfg Config, defaults models.DefaultMetadata, sevMap *severity.Map, opts ...Option) *Transformer {
	def := DefaultConfig()
	if cfg.MessageKey == "" {
		cfg.MessageKey = def.MessageKey
	}
	if cfg.ErrorKey == "" {
		cfg.ErrorKey = def.ErrorKey
	}
	if cfg.MetadataKey == "" {
		cfg.MetadataKey = def.MetadataKey
	}
	if cfg.HTTPRequestKey == "" {
		cfg.HTTPRequestKey = def.HTTPRequestKey
	}
	if sevMap == nil {
		sevMap = severity.NewMap(nil)
	}
	t := &Transformer{
		config:    cfg,
		defaults:  defaults,
		severity:  sevMap,
		newInsert: NewInsertID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewInsertID returns 32 hex characters
func NewInsertID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Transform converts one record into an entry
func (t *Transformer) Transform(record models.Record) *models.Entry {
	obj := record.Clone()

	md, ok := obj.Object(t.config.MetadataKey)
	if !ok {
		md = map[string]interface{}{}
	}
	delete(obj, t.config.MetadataKey)
	meta := models.Record(md)

	if t.config.MessageKey != MessageField {
		if msg, ok := obj[t.config.MessageKey]; ok {
			obj[MessageField] = msg
			delete(obj, t.config.MessageKey)
		}
	}

	entry := models.EntryMetadata{
		LogName:  t.defaults.LogName,
		Labels:   mergeLabels(t.defaults.Labels, meta[LabelsField]),
		Resource: mergeResource(t.defaults.Resource, meta[ResourceField]),
		Severity: string(t.severity.Severity(obj[LevelField])),
		Extra:    extraMetadata(meta),
	}
	if name, ok := meta.String(LogNameField); ok && name != "" {
		entry.LogName = name
	}
	if id, ok := meta.String(InsertIDField); ok && id != "" {
		entry.InsertID = id
	} else if t.newInsert != nil {
		entry.InsertID = t.newInsert()
	}
	if req, ok := meta.Object(HTTPRequestField); ok {
		entry.HTTPRequest = req
	}
	if v, ok := meta[TimestampField]; ok && models.Truthy(v) {
		if ts, ok := ParseTime(v); ok {
			entry.Timestamp = ts
		}
	}

	if models.Truthy(obj[t.config.ErrorKey]) && !t.config.ServiceContext.IsZero() {
		obj[ServiceContextField] = t.config.ServiceContext.Map()
	}

	if req, ok := obj.Object(t.config.HTTPRequestKey); ok {
		entry.HTTPRequest = req
		delete(obj, t.config.HTTPRequestKey)
	}

	if v, ok := obj[TimeField]; ok && models.Truthy(v) {
		if ts, ok := ParseTime(v); ok {
			entry.Timestamp = ts
		}
		delete(obj, TimeField)
	}

	if tr, ok := meta.String(TraceField); ok && tr != "" {
		entry.Trace = tr
	} else {
		entry.Trace = trace.Format(t.trace)
	}
	if span, ok := meta[SpanIDField]; ok && span != nil {
		entry.SpanID = fmt.Sprint(span)
	}
	entry.TraceSampled = models.Truthy(meta[TraceSampledField])

	return &models.Entry{Metadata: entry, Payload: obj}
}

// Fields read from the extracted metadata object
const (
	LabelsField       = "labels"
	ResourceField     = "resource"
	TraceField        = "trace"
	SpanIDField       = "spanId"
	TraceSampledField = "traceSampled"
	InsertIDField     = "insertId"
	LogNameField      = "logName"
	HTTPRequestField  = "httpRequest"
	TimestampField    = "timestamp"
	SeverityField     = "severity"
)

// handledMetadata are the metadata fields with a dedicated EntryMetadata
// slot. Severity always comes from the record level.
var handledMetadata = map[string]bool{
	LabelsField:       true,
	ResourceField:     true,
	TraceField:        true,
	SpanIDField:       true,
	TraceSampledField: true,
	InsertIDField:     true,
	LogNameField:      true,
	HTTPRequestField:  true,
	TimestampField:    true,
	SeverityField:     true,
}

// extraMetadata keeps the remaining metadata fields, such as operation and
// sourceLocation, or returns nil when there are none
func extraMetadata(meta models.Record) map[string]interface{} {
	var extra map[string]interface{}
	for k, v := range meta {
		if handledMetadata[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]interface{})
		}
		extra[k] = v
	}
	return extra
}

func mergeLabels(defaults map[string]string, override interface{}) map[string]string {
	out := make(map[string]string, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	m, ok := asObject(override)
	if !ok {
		return out
	}
	for k, v := range m {
		switch s := v.(type) {
		case string:
			out[k] = s
		case nil:
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}

func mergeResource(defaults map[string]interface{}, override interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	if m, ok := asObject(override); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.Record:
		return m, true
	}
	return nil, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02",
}

// ParseTime reads epoch milliseconds or a date-like string
func ParseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return fromMillis(t), true
	case float32:
		return fromMillis(float64(t)), true
	case int:
		return time.UnixMilli(int64(t)), true
	case int64:
		return time.UnixMilli(t), true
	case uint64:
		return time.UnixMilli(int64(t)), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return time.UnixMilli(i), true
		}
		if f, err := t.Float64(); err == nil {
			return fromMillis(f), true
		}
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

func fromMillis(ms float64) time.Time {
	sec := int64(ms / 1000)
	nsec := int64((ms - float64(sec)*1000) * float64(time.Millisecond))
	return time.Unix(sec, nsec)
}
