package gcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/provider"
)

// Provider decodes Cloud Logging entries routed through a Pub/Sub push
// subscription
type Provider struct {
	messageKey     string
	metadataKey    string
	httpRequestKey string
}

// NewProvider creates a GCP provider. The entry's httpRequest lands under
// httpRequestKey, the key the transformer reads it back from.
func NewProvider(messageKey, metadataKey, httpRequestKey string) provider.CloudProvider {
	if httpRequestKey == "" {
		httpRequestKey = "httpRequest"
	}
	return &Provider{messageKey: messageKey, metadataKey: metadataKey, httpRequestKey: httpRequestKey}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gcp"
}

// PushEnvelope is the body of a Pub/Sub push request
type PushEnvelope struct {
	Message struct {
		Data        string            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime string            `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// LogEntry holds the Cloud Logging fields carried over into a record
type LogEntry struct {
	LogName      string                 `json:"logName"`
	Severity     string                 `json:"severity"`
	Timestamp    string                 `json:"timestamp"`
	InsertID     string                 `json:"insertId"`
	Labels       map[string]string      `json:"labels"`
	Resource     map[string]interface{} `json:"resource"`
	Trace        string                 `json:"trace"`
	SpanID       string                 `json:"spanId"`
	TraceSampled bool                   `json:"traceSampled"`
	HTTPRequest  map[string]interface{} `json:"httpRequest"`
	JSONPayload  map[string]interface{} `json:"jsonPayload"`
	TextPayload  string                 `json:"textPayload"`
}

// levels turns Cloud Logging severities back into pino levels
var levels = map[string]float64{
	"DEBUG":     20,
	"INFO":      30,
	"NOTICE":    30,
	"WARNING":   40,
	"ERROR":     50,
	"CRITICAL":  60,
	"ALERT":     60,
	"EMERGENCY": 60,
}

// Records decodes the log entry carried by one push request
func (p *Provider) Records(ctx context.Context, rawEvent json.RawMessage) ([]models.Record, error) {
	var env PushEnvelope
	if err := json.Unmarshal(rawEvent, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push envelope: %w", err)
	}
	if env.Message.Data == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var entry LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// a plain text message published directly to the topic
		return []models.Record{{p.messageKey: string(data)}}, nil
	}
	return []models.Record{p.record(&entry)}, nil
}

func (p *Provider) record(entry *LogEntry) models.Record {
	rec := models.Record{}
	for k, v := range entry.JSONPayload {
		rec[k] = v
	}
	if entry.TextPayload != "" {
		if _, ok := rec[p.messageKey]; !ok {
			rec[p.messageKey] = entry.TextPayload
		}
	}
	if _, ok := rec["level"]; !ok {
		if lvl, ok := levels[strings.ToUpper(entry.Severity)]; ok {
			rec["level"] = lvl
		}
	}
	if _, ok := rec["time"]; !ok && entry.Timestamp != "" {
		rec["time"] = entry.Timestamp
	}
	if _, ok := rec[p.httpRequestKey]; !ok && len(entry.HTTPRequest) > 0 {
		rec[p.httpRequestKey] = entry.HTTPRequest
	}

	if p.metadataKey == "" {
		return rec
	}
	if _, ok := rec[p.metadataKey]; ok {
		return rec
	}
	md := map[string]interface{}{}
	if len(entry.Labels) > 0 {
		labels := make(map[string]interface{}, len(entry.Labels))
		for k, v := range entry.Labels {
			labels[k] = v
		}
		md["labels"] = labels
	}
	if len(entry.Resource) > 0 {
		md["resource"] = entry.Resource
	}
	if entry.Trace != "" {
		md["trace"] = entry.Trace
	}
	if entry.SpanID != "" {
		md["spanId"] = entry.SpanID
	}
	if entry.TraceSampled {
		md["traceSampled"] = true
	}
	if len(md) > 0 {
		rec[p.metadataKey] = md
	}
	return rec
}
