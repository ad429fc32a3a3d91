package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/scheduler"
	"github.com/mosajjal/logrelay/pkg/severity"
	"github.com/mosajjal/logrelay/pkg/sink"
	"github.com/mosajjal/logrelay/pkg/sink/stdout"
	"github.com/mosajjal/logrelay/pkg/source"
	"github.com/mosajjal/logrelay/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []*models.Entry
	err     error
	block   chan struct{}
	closed  bool
}

func (r *recordingSink) Write(ctx context.Context, entries []*models.Entry) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) Entries() []*models.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Entry(nil), r.entries...)
}

var pinoLogs = []string{
	`{"level":10,"time":1617955768092,"pid":2942,"hostname":"MacBook-Pro.local","msg":"hello world"}`,
	`{"level":20,"time":1617955768092,"pid":2942,"hostname":"MacBook-Pro.local","msg":"another message","prop":42}`,
	`{"level":30,"time":1617955768092,"pid":2942,"hostname":"MacBook-Pro.local","msg":"another message","prop":42}`,
	`{"level":40,"time":1617955768092,"pid":2942,"hostname":"MacBook-Pro.local","msg":"another message","prop":42}`,
	`{"level":50,"time":1617955768092,"pid":2942,"hostname":"MacBook-Pro.local","msg":"another message","prop":42}`,
}

func TestLog_NotInitialized(t *testing.T) {
	tr := New(Config{})
	err := tr.Log(models.Record{"msg": "x"})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, err, sink.ErrNotInitialized)
}

func TestInit(t *testing.T) {
	tr := New(Config{})
	assert.ErrorIs(t, tr.Init(nil), ErrNotInitialized)
	require.NoError(t, tr.Init(&recordingSink{}))
	assert.ErrorIs(t, tr.Init(&recordingSink{}), ErrAlreadyInitialized)
}

func TestRun_AsyncSink(t *testing.T) {
	snk := &recordingSink{}
	tr := New(Config{Transform: transform.Config{MetadataKey: "meta"}, FlushInterval: time.Millisecond})
	require.NoError(t, tr.Init(snk))

	src := source.NewReader(strings.NewReader(strings.Join(pinoLogs, "\n")))
	require.NoError(t, tr.Run(context.Background(), src))
	require.NoError(t, tr.Close())

	got := snk.Entries()
	require.Len(t, got, len(pinoLogs))
	want := []severity.Severity{severity.Debug, severity.Debug, severity.Info, severity.Warning, severity.Error}
	for i, e := range got {
		md := e.Metadata
		assert.Equal(t, string(want[i]), md.Severity)
		assert.True(t, md.Timestamp.Equal(time.UnixMilli(1617955768092)))
		assert.Equal(t, map[string]string{"logger": "pino", "agent": "pino-google-logging"}, md.Labels)
		assert.Equal(t, map[string]interface{}{"type": "global"}, md.Resource)
		assert.Equal(t, "", md.Trace)
		assert.False(t, md.TraceSampled)
		assert.Regexp(t, `^[0-9a-f]{32}$`, md.InsertID)

		assert.Contains(t, e.Payload, "message")
		assert.NotContains(t, e.Payload, "msg")
		assert.NotContains(t, e.Payload, "time")
		assert.Equal(t, "MacBook-Pro.local", e.Payload["hostname"])
	}
	assert.Equal(t, "hello world", got[0].Payload["message"])
	assert.Equal(t, 42.0, got[1].Payload["prop"])
	assert.True(t, snk.closed)
	assert.Equal(t, scheduler.Stats{Submitted: 5, Completed: 5}, tr.Stats())
}

func TestRun_StdoutSink(t *testing.T) {
	var buf bytes.Buffer
	tr := New(Config{})
	require.NoError(t, tr.Init(stdout.New(&buf)))

	src := source.NewReader(strings.NewReader(strings.Join(pinoLogs, "\n")))
	require.NoError(t, tr.Run(context.Background(), src))
	// inline writes leave nothing to drain
	assert.Equal(t, 0, tr.Pending())
	require.NoError(t, tr.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(pinoLogs))

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "DEBUG", first["severity"])
	assert.Equal(t, "hello world", first["message"])
	assert.Equal(t, "2021-04-09T08:09:28.092Z", first["timestamp"])
}

func TestRun_ContextCancelled(t *testing.T) {
	tr := New(Config{})
	require.NoError(t, tr.Init(&recordingSink{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.Run(ctx, source.NewReader(strings.NewReader(pinoLogs[0])))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_NotInitialized(t *testing.T) {
	tr := New(Config{})
	err := tr.Run(context.Background(), source.NewReader(strings.NewReader(pinoLogs[0])))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestClose_TimeoutStillReleasesSink(t *testing.T) {
	snk := &recordingSink{block: make(chan struct{})}
	defer close(snk.block)

	tr := New(Config{FlushTimeout: 20 * time.Millisecond, FlushInterval: time.Millisecond})
	require.NoError(t, tr.Init(snk))
	require.NoError(t, tr.Log(models.Record{"msg": "stuck"}))

	require.NoError(t, tr.Close())
	assert.True(t, snk.closed)
	assert.Equal(t, 1, tr.Pending())
}

func TestDeliveryFailureIsObserved(t *testing.T) {
	snk := &recordingSink{err: errors.New("quota exceeded")}

	var mu sync.Mutex
	var seen []error
	tr := New(Config{
		FlushInterval: time.Millisecond,
		OnError: func(task *scheduler.Task, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, err)
		},
	})
	require.NoError(t, tr.Init(snk))

	// delivery errors do not surface from Log
	require.NoError(t, tr.Log(models.Record{"msg": "x"}))
	require.True(t, tr.Flush())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.EqualError(t, seen[0], "quota exceeded")
	assert.EqualValues(t, 1, tr.Stats().Failed)
}

func TestServiceContextAndOverrides(t *testing.T) {
	snk := &recordingSink{}
	tr := New(Config{
		LogName:           "app",
		Labels:            map[string]string{"env": "prod"},
		Transform:         transform.Config{ServiceContext: &models.ServiceContext{Service: "api"}},
		SeverityOverrides: map[string]severity.Severity{"50": severity.Alert},
		FlushInterval:     time.Millisecond,
	})
	require.NoError(t, tr.Init(snk))
	require.NoError(t, tr.Log(models.Record{"level": 55.0, "err": map[string]interface{}{"message": "boom"}}))
	require.True(t, tr.Flush())

	got := snk.Entries()
	require.Len(t, got, 1)
	assert.Equal(t, "alert", got[0].Metadata.Severity)
	assert.Equal(t, "app", got[0].Metadata.LogName)
	assert.Equal(t, "prod", got[0].Metadata.Labels["env"])
	assert.Equal(t, map[string]interface{}{"service": "api"}, got[0].Payload["serviceContext"])
	assert.Equal(t, "app", tr.DefaultMetadata().LogName)
}
