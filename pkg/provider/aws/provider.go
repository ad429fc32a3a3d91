package aws

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/provider"
	"github.com/mosajjal/logrelay/pkg/source"
	log "github.com/sirupsen/logrus"
)

// Provider decodes CloudWatch Logs subscription events, delivered directly
// or through Kinesis/Firehose
type Provider struct {
	messageKey  string
	metadataKey string
}

// NewProvider creates an AWS provider. Plain text log lines are wrapped into
// a record under messageKey. Log group and stream go to the labels under
// metadataKey.
func NewProvider(messageKey, metadataKey string) provider.CloudProvider {
	return &Provider{messageKey: messageKey, metadataKey: metadataKey}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "aws"
}

// CloudWatchLogs is the invocation payload. Data is base64 encoded gzip.
type CloudWatchLogs struct {
	AWSLogs struct {
		Data string `json:"data"`
	} `json:"awslogs"`
	Records []struct {
		RecordID string `json:"recordId"`
		Data     string `json:"data"`
	} `json:"records"`
}

// CloudWatchLogsData is the decoded payload
type CloudWatchLogsData struct {
	MessageType         string     `json:"messageType"`
	Owner               string     `json:"owner"`
	LogGroup            string     `json:"logGroup"`
	LogStream           string     `json:"logStream"`
	SubscriptionFilters []string   `json:"subscriptionFilters"`
	LogEvents           []LogEvent `json:"logEvents"`
}

// LogEvent is one CloudWatch log line
type LogEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Records decodes every log event in the invocation
func (p *Provider) Records(ctx context.Context, rawEvent json.RawMessage) ([]models.Record, error) {
	var cwLogs CloudWatchLogs
	if err := json.Unmarshal(rawEvent, &cwLogs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal CloudWatch Logs: %w", err)
	}

	var payloads []string
	if cwLogs.AWSLogs.Data != "" {
		payloads = append(payloads, cwLogs.AWSLogs.Data)
	}
	for _, r := range cwLogs.Records {
		payloads = append(payloads, r.Data)
	}

	var records []models.Record
	for i, data := range payloads {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		decoded, err := decodeCloudWatchData(data)
		if err != nil {
			if cwLogs.AWSLogs.Data != "" {
				return nil, fmt.Errorf("failed to decode CloudWatch data: %w", err)
			}
			log.WithError(err).WithField("record", i).Warn("Skipping undecodable record")
			continue
		}
		var cwData CloudWatchLogsData
		if err := json.Unmarshal(decoded, &cwData); err != nil {
			log.WithError(err).WithField("record", i).Warn("Skipping record that is not CloudWatch Logs data")
			continue
		}
		if cwData.MessageType == "CONTROL_MESSAGE" {
			continue
		}
		for _, ev := range cwData.LogEvents {
			records = append(records, p.record(&cwData, ev))
		}
	}
	return records, nil
}

// record parses a log line as a JSON record, or wraps it when it is plain text
func (p *Provider) record(cwData *CloudWatchLogsData, ev LogEvent) models.Record {
	rec, err := source.ParseRecord([]byte(ev.Message))
	if err != nil {
		rec = models.Record{p.messageKey: ev.Message}
	}
	if _, ok := rec["time"]; !ok && ev.Timestamp > 0 {
		rec["time"] = float64(ev.Timestamp)
	}
	if _, ok := rec[p.metadataKey]; !ok && p.metadataKey != "" {
		rec[p.metadataKey] = map[string]interface{}{
			"labels": map[string]interface{}{
				"logGroup":  cwData.LogGroup,
				"logStream": cwData.LogStream,
			},
		}
	}
	return rec
}

func decodeCloudWatchData(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	decompressed, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress gzip: %w", err)
	}
	return decompressed, nil
}

// Handler returns a Lambda handler that logs every record of an invocation
// and waits for delivery before returning
func Handler(p provider.CloudProvider, l provider.Logger) func(ctx context.Context, event json.RawMessage) (string, error) {
	return func(ctx context.Context, event json.RawMessage) (string, error) {
		records, err := p.Records(ctx, event)
		if err != nil {
			return "", err
		}
		delivered, err := provider.Deliver(l, records)
		if err != nil {
			return "", err
		}
		if !delivered {
			log.WithField("records", len(records)).Warn("Not every record was delivered")
			return "PARTIAL", nil
		}
		log.WithField("records", len(records)).Info("Processed invocation")
		return "OK", nil
	}
}
