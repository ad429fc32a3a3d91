package gcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func push(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"message": map[string]interface{}{
			"data":      base64.StdEncoding.EncodeToString(data),
			"messageId": "1",
		},
		"subscription": "projects/p/subscriptions/logs",
	})
	require.NoError(t, err)
	return raw
}

func TestProvider_Name(t *testing.T) {
	assert.Equal(t, "gcp", NewProvider("msg", "metadata", "httpRequest").Name())
}

func TestRecords_JSONPayload(t *testing.T) {
	entry := []byte(`{
		"logName": "projects/p/logs/app",
		"severity": "WARNING",
		"timestamp": "2025-01-01T00:00:00Z",
		"labels": {"env": "prod"},
		"resource": {"type": "cloud_run_revision"},
		"trace": "projects/p/traces/abc",
		"spanId": "0001",
		"traceSampled": true,
		"jsonPayload": {"msg": "slow request", "latency": 1.5}
	}`)

	records, err := NewProvider("msg", "metadata", "httpRequest").Records(context.Background(), push(t, entry))
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "slow request", rec["msg"])
	assert.Equal(t, 1.5, rec["latency"])
	assert.Equal(t, 40.0, rec["level"])
	assert.Equal(t, "2025-01-01T00:00:00Z", rec["time"])
	assert.Equal(t, map[string]interface{}{
		"labels":       map[string]interface{}{"env": "prod"},
		"resource":     map[string]interface{}{"type": "cloud_run_revision"},
		"trace":        "projects/p/traces/abc",
		"spanId":       "0001",
		"traceSampled": true,
	}, rec["metadata"])
}

func TestRecords_TextPayload(t *testing.T) {
	entry := []byte(`{"severity": "DEFAULT", "textPayload": "plain line"}`)

	records, err := NewProvider("message", "", "httpRequest").Records(context.Background(), push(t, entry))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "plain line", records[0]["message"])
	assert.NotContains(t, records[0], "level")
	assert.NotContains(t, records[0], "")
}

func TestRecords_PlainMessage(t *testing.T) {
	records, err := NewProvider("msg", "metadata", "httpRequest").Records(context.Background(), push(t, []byte("not json")))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "not json", records[0]["msg"])
}

func TestRecords_Errors(t *testing.T) {
	p := NewProvider("msg", "metadata", "httpRequest")

	_, err := p.Records(context.Background(), json.RawMessage(`{`))
	assert.Error(t, err)

	_, err = p.Records(context.Background(), json.RawMessage(`{"message":{"data":"!!"}}`))
	assert.ErrorContains(t, err, "base64")

	records, err := p.Records(context.Background(), json.RawMessage(`{"message":{}}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecords_HTTPRequestKey(t *testing.T) {
	entry := []byte(`{
		"severity": "INFO",
		"httpRequest": {"requestMethod": "GET", "status": 200},
		"jsonPayload": {"msg": "served"}
	}`)

	records, err := NewProvider("msg", "metadata", "req").Records(context.Background(), push(t, entry))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]interface{}{"requestMethod": "GET", "status": 200.0}, records[0]["req"])
	assert.NotContains(t, records[0], "httpRequest")

	// a payload value under the configured key is kept
	entry = []byte(`{
		"httpRequest": {"requestMethod": "GET"},
		"jsonPayload": {"req": {"requestMethod": "POST"}}
	}`)
	records, err = NewProvider("msg", "metadata", "req").Records(context.Background(), push(t, entry))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"requestMethod": "POST"}, records[0]["req"])
}
