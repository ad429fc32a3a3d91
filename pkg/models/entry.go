package models

import "time"

// Entry is the (metadata, payload) pair delivered to a sink for one record
type Entry struct {
	Metadata EntryMetadata
	Payload  Record
}

// EntryMetadata is the structured metadata attached to a delivered entry
type EntryMetadata struct {
	LogName      string
	InsertID     string
	Severity     string
	Labels       map[string]string
	Resource     map[string]interface{}
	Trace        string // empty when no trace is available
	SpanID       string
	TraceSampled bool
	HTTPRequest  map[string]interface{}
	Timestamp    time.Time // zero when the record carried no usable time
	// Extra holds the other per-record metadata fields (operation,
	// sourceLocation, ...) as they were given
	Extra map[string]interface{}
}

// DefaultMetadata is fixed at construction and shared read-only by every entry
type DefaultMetadata struct {
	LogName  string
	Resource map[string]interface{}
	Labels   map[string]string
}

const (
	DefaultLogName      = "pino_log"
	DefaultResourceType = "global"
)

// NewDefaultMetadata overlays the given values on the built-in defaults
func NewDefaultMetadata(logName string, resource map[string]interface{}, labels map[string]string) DefaultMetadata {
	md := DefaultMetadata{
		LogName:  DefaultLogName,
		Resource: map[string]interface{}{"type": DefaultResourceType},
		Labels:   map[string]string{"logger": "pino", "agent": "pino-google-logging"},
	}
	if logName != "" {
		md.LogName = logName
	}
	for k, v := range resource {
		md.Resource[k] = v
	}
	for k, v := range labels {
		md.Labels[k] = v
	}
	return md
}

// ServiceContext identifies the service in error reports
type ServiceContext struct {
	Service string `json:"service,omitempty" yaml:"service"`
	Version string `json:"version,omitempty" yaml:"version"`
}

// IsZero reports whether no service context was configured
func (s *ServiceContext) IsZero() bool {
	return s == nil || (s.Service == "" && s.Version == "")
}

// Map renders the service context the way it is attached to payloads
func (s ServiceContext) Map() map[string]interface{} {
	m := make(map[string]interface{}, 2)
	if s.Service != "" {
		m["service"] = s.Service
	}
	if s.Version != "" {
		m["version"] = s.Version
	}
	return m
}
