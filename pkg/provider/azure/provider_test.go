package azure

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monitorRecords = `{"records": [
	{
		"time": "2025-01-01T00:00:00.000Z",
		"resourceId": "/SUBSCRIPTIONS/X/RESOURCEGROUPS/RG/PROVIDERS/MICROSOFT.WEB/SITES/API",
		"category": "AppServiceConsoleLogs",
		"operationName": "Microsoft.Web/sites/log",
		"level": "Warning",
		"properties": {"message": "disk almost full"}
	},
	{
		"time": "2025-01-01T00:00:01.000Z",
		"category": "Administrative",
		"resultDescription": "role assignment created",
		"level": "Custom"
	}
]}`

func TestProvider_Name(t *testing.T) {
	assert.Equal(t, "azure", NewProvider("msg", "metadata").Name())
}

func TestRecords(t *testing.T) {
	records, err := NewProvider("msg", "metadata").Records(context.Background(), json.RawMessage(monitorRecords))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "disk almost full", first["msg"])
	assert.Equal(t, 40.0, first["level"])
	assert.Equal(t, "2025-01-01T00:00:00.000Z", first["time"])
	assert.Equal(t, map[string]interface{}{"labels": map[string]interface{}{
		"category":      "AppServiceConsoleLogs",
		"operationName": "Microsoft.Web/sites/log",
		"resourceId":    "/SUBSCRIPTIONS/X/RESOURCEGROUPS/RG/PROVIDERS/MICROSOFT.WEB/SITES/API",
	}}, first["metadata"])

	second := records[1]
	assert.Equal(t, "role assignment created", second["msg"])
	// unknown levels are left for the severity map to resolve
	assert.Equal(t, "Custom", second["level"])
}

func TestRecords_Batch(t *testing.T) {
	batch := "[" + monitorRecords + "," + monitorRecords + "]"
	records, err := NewProvider("msg", "").Records(context.Background(), json.RawMessage(batch))
	require.NoError(t, err)
	assert.Len(t, records, 4)
	assert.NotContains(t, records[0], "metadata")
}

func TestRecords_Errors(t *testing.T) {
	p := NewProvider("msg", "metadata")

	_, err := p.Records(context.Background(), json.RawMessage(`{"records": 1}`))
	assert.Error(t, err)

	_, err = p.Records(context.Background(), json.RawMessage(`[{"records": [}]`))
	assert.Error(t, err)

	records, err := p.Records(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Empty(t, records)
}
