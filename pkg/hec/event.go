package hec

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mosajjal/logrelay/pkg/models"
)

const (
	// truncatedSuffix marks a string payload field that was cut to fit
	truncatedSuffix   = "...(truncated)"
	maxTruncatePasses = 8
)

// EventBody is the JSON object sent as the HEC event. Payload fields sit at
// the top level next to the entry metadata; metadata wins on conflicts.
func EventBody(e *models.Entry) map[string]interface{} {
	md := e.Metadata
	body := make(map[string]interface{}, len(e.Payload)+10)
	for k, v := range e.Payload {
		body[k] = v
	}
	for k, v := range md.Extra {
		body[k] = v
	}
	body["severity"] = strings.ToUpper(md.Severity)
	if md.LogName != "" {
		body["logName"] = md.LogName
	}
	if md.InsertID != "" {
		body["insertId"] = md.InsertID
	}
	if len(md.Labels) > 0 {
		body["labels"] = md.Labels
	}
	if len(md.Resource) > 0 {
		body["resource"] = md.Resource
	}
	if md.Trace != "" {
		body["trace"] = md.Trace
	}
	if md.SpanID != "" {
		body["spanId"] = md.SpanID
	}
	body["traceSampled"] = md.TraceSampled
	if md.HTTPRequest != nil {
		body["httpRequest"] = md.HTTPRequest
	}
	if !md.Timestamp.IsZero() {
		body["timestamp"] = md.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return body
}

// Truncate shortens the longest top-level string fields of body until its
// JSON encoding fits in max bytes. Bodies that cannot be shrunk further are
// returned as they are.
func Truncate(body map[string]interface{}, max int) map[string]interface{} {
	for i := 0; i < maxTruncatePasses; i++ {
		size := encodedSize(body)
		if size <= max {
			return body
		}
		key, longest := "", 0
		for k, v := range body {
			if s, ok := v.(string); ok && len(s) > longest {
				key, longest = k, len(s)
			}
		}
		if longest <= len(truncatedSuffix) {
			return body
		}
		// an earlier pass may have marked this field already
		s := strings.TrimSuffix(body[key].(string), truncatedSuffix)
		keep := longest - (size - max) - len(truncatedSuffix)
		if keep < 0 {
			keep = 0
		}
		if keep > len(s) {
			keep = len(s)
		}
		for keep > 0 && keep < len(s) && !utf8.RuneStart(s[keep]) {
			keep--
		}
		body[key] = s[:keep] + truncatedSuffix
	}
	return body
}

func encodedSize(v interface{}) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
