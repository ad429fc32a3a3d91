package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/provider"
	log "github.com/sirupsen/logrus"
)

// Provider decodes Azure Monitor diagnostic records, as streamed by a
// diagnostic setting to Event Hubs and pushed to a custom handler
type Provider struct {
	messageKey  string
	metadataKey string
}

// NewProvider creates an Azure provider
func NewProvider(messageKey, metadataKey string) provider.CloudProvider {
	return &Provider{messageKey: messageKey, metadataKey: metadataKey}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "azure"
}

// Envelope is one batch of diagnostic records
type Envelope struct {
	Records []map[string]interface{} `json:"records"`
}

// levels maps Azure Monitor levels to pino levels
var levels = map[string]float64{
	"verbose":       20,
	"informational": 30,
	"information":   30,
	"warning":       40,
	"error":         50,
	"critical":      60,
}

// Records accepts either a single envelope or an array of envelopes, which
// is how Event Hubs batches reach a custom handler
func (p *Provider) Records(ctx context.Context, rawEvent json.RawMessage) ([]models.Record, error) {
	var envelopes []Envelope
	trimmed := strings.TrimSpace(string(rawEvent))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(rawEvent, &envelopes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Azure Monitor batch: %w", err)
		}
	} else {
		var env Envelope
		if err := json.Unmarshal(rawEvent, &env); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Azure Monitor records: %w", err)
		}
		envelopes = append(envelopes, env)
	}

	var records []models.Record
	for _, env := range envelopes {
		for _, r := range env.Records {
			records = append(records, p.record(r))
		}
	}
	log.WithField("records", len(records)).Debug("Decoded Azure Monitor records")
	return records, nil
}

func (p *Provider) record(raw map[string]interface{}) models.Record {
	rec := models.Record(raw)

	// lift the common message fields so they become the entry message
	if _, ok := rec[p.messageKey]; !ok {
		if props, ok := rec.Object("properties"); ok {
			if msg, ok := props["message"]; ok {
				rec[p.messageKey] = msg
			}
		}
		if msg, ok := rec["resultDescription"]; ok {
			if _, set := rec[p.messageKey]; !set {
				rec[p.messageKey] = msg
			}
		}
	}

	if lvl, ok := rec.String("level"); ok {
		if n, known := levels[strings.ToLower(lvl)]; known {
			rec["level"] = n
		}
	}

	if p.metadataKey == "" {
		return rec
	}
	if _, ok := rec[p.metadataKey]; ok {
		return rec
	}
	labels := map[string]interface{}{}
	for _, k := range []string{"category", "operationName", "resourceId"} {
		if v, ok := rec.String(k); ok && v != "" {
			labels[k] = v
		}
	}
	if len(labels) > 0 {
		rec[p.metadataKey] = map[string]interface{}{"labels": labels}
	}
	return rec
}
