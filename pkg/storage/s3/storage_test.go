package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Storage)(nil)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, b)
	return &s3.PutObjectOutput{}, nil
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url    string
		bucket string
		prefix string
	}{
		{"https://logs.s3.ap-southeast-2.amazonaws.com/relay/", "logs", "relay"},
		{"https://s3.us-east-1.amazonaws.com/logs/relay/archive", "logs", "relay/archive"},
		{"s3://logs/relay", "logs", "relay"},
		{"https://logs.s3-us-west-2.amazonaws.com", "logs", ""},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseURL(tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.bucket, bucket, tt.url)
		assert.Equal(t, tt.prefix, prefix, tt.url)
	}

	_, _, err := ParseURL("https://example.com/")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	st, err := newStorage(storage.StorageConfig{URL: "s3://logs/relay", PathPrefix: "/failed/"}, &fakePutter{})
	require.NoError(t, err)

	key := st.Key(time.Date(2021, 4, 9, 8, 9, 28, 92e6, time.UTC))
	assert.Regexp(t, `^relay/failed/2021/04/09/08/2021-04-09T08:09:28\.092Z-[0-9a-f-]{36}\.json\.gz$`, key)
}

func TestStore_Gzip(t *testing.T) {
	fp := &fakePutter{}
	st, err := newStorage(storage.StorageConfig{URL: "s3://logs/relay"}, fp)
	require.NoError(t, err)

	entries := []*models.Entry{
		{Metadata: models.EntryMetadata{Severity: "info"}, Payload: models.Record{"message": "one"}},
		{Metadata: models.EntryMetadata{Severity: "error"}, Payload: models.Record{"message": "two"}},
	}
	require.NoError(t, st.Store(context.Background(), entries))
	require.Len(t, fp.inputs, 1)
	assert.Equal(t, "logs", aws.ToString(fp.inputs[0].Bucket))
	assert.Equal(t, "gzip", aws.ToString(fp.inputs[0].ContentEncoding))

	gz, err := gzip.NewReader(bytes.NewReader(fp.bodies[0]))
	require.NoError(t, err)
	sc := bufio.NewScanner(gz)
	var msgs []string
	for sc.Scan() {
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		msgs = append(msgs, line["message"].(string))
	}
	assert.Equal(t, []string{"one", "two"}, msgs)
}

func TestStore_Uncompressed(t *testing.T) {
	fp := &fakePutter{}
	st, err := newStorage(storage.StorageConfig{URL: "s3://logs", CompressionType: "none"}, fp)
	require.NoError(t, err)

	require.NoError(t, st.Store(context.Background(), []*models.Entry{{Payload: models.Record{"message": "plain"}}}))
	assert.Nil(t, fp.inputs[0].ContentEncoding)
	assert.Contains(t, string(fp.bodies[0]), `"message":"plain"`)
	assert.NotContains(t, aws.ToString(fp.inputs[0].Key), ".gz")
}

func TestStore_Empty(t *testing.T) {
	fp := &fakePutter{}
	st, err := newStorage(storage.StorageConfig{URL: "s3://logs"}, fp)
	require.NoError(t, err)

	require.NoError(t, st.Store(context.Background(), nil))
	assert.Empty(t, fp.inputs)
}

func TestStore_Error(t *testing.T) {
	fp := &fakePutter{err: errors.New("denied")}
	st, err := newStorage(storage.StorageConfig{URL: "s3://logs"}, fp)
	require.NoError(t, err)

	err = st.Store(context.Background(), []*models.Entry{{Payload: models.Record{"message": "x"}}})
	assert.ErrorContains(t, err, "denied")
}
