package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/sink/stdout"
	"github.com/mosajjal/logrelay/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// putter is the part of *s3.Client the storage depends on
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Storage implements the S3 backend for storage
type Storage struct {
	config    storage.StorageConfig
	client    putter
	bucket    string
	keyPrefix string
	now       func() time.Time
}

// NewStorage creates a new S3 storage backend
func NewStorage(cfg storage.StorageConfig, awsCfg aws.Config) (*Storage, error) {
	return newStorage(cfg, s3.NewFromConfig(awsCfg))
}

func newStorage(cfg storage.StorageConfig, client putter) (*Storage, error) {
	bucket, keyPrefix, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.PathPrefix != "" {
		keyPrefix = strings.Trim(keyPrefix+"/"+strings.Trim(cfg.PathPrefix, "/"), "/")
	}
	return &Storage{
		config:    cfg,
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}, nil
}

// ParseURL extracts the bucket and key prefix from a virtual-hosted-style
// (bucket.s3.region.amazonaws.com/prefix) or path-style
// (s3.region.amazonaws.com/bucket/prefix) URL
func ParseURL(raw string) (bucket, keyPrefix string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URL: %w", err)
	}

	if strings.Contains(u.Host, ".s3.") || strings.Contains(u.Host, ".s3-") {
		bucket = strings.Split(u.Host, ".")[0]
		keyPrefix = strings.Trim(u.Path, "/")
	} else if u.Scheme == "s3" {
		bucket = u.Host
		keyPrefix = strings.Trim(u.Path, "/")
	} else {
		pathParts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
		bucket = pathParts[0]
		if len(pathParts) > 1 {
			keyPrefix = pathParts[1]
		}
	}

	if bucket == "" {
		return "", "", fmt.Errorf("could not parse bucket name from URL: %s", raw)
	}
	return bucket, keyPrefix, nil
}

func (s *Storage) compressed() bool {
	return s.config.CompressionType != "none"
}

// Key returns the object key for a batch written at t
func (s *Storage) Key(t time.Time) string {
	ext := ".json"
	if s.compressed() {
		ext += ".gz"
	}
	t = t.UTC()
	name := fmt.Sprintf("%d/%02d/%02d/%02d/%s-%s%s",
		t.Year(), t.Month(), t.Day(), t.Hour(),
		t.Format("2006-01-02T15:04:05.000Z"),
		uuid.New().String(),
		ext,
	)
	if s.keyPrefix == "" {
		return name
	}
	return s.keyPrefix + "/" + name
}

// Store saves entries to S3 as newline delimited JSON
func (s *Storage) Store(ctx context.Context, entries []*models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	var w io.Writer = &buf
	var gz *gzip.Writer
	if s.compressed() {
		gz, _ = gzip.NewWriterLevel(&buf, gzip.BestCompression)
		w = gz
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(stdout.Structured(e)); err != nil {
			log.WithError(err).Warn("Failed to encode entry for S3")
		}
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to compress entries: %w", err)
		}
	}

	key := s.Key(s.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}
	if gz != nil {
		input.ContentEncoding = aws.String("gzip")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.WithField("entries", len(entries)).Infof("Stored entries to S3: %s/%s", s.bucket, key)
	return nil
}

// Close cleans up resources
func (s *Storage) Close() error {
	return nil
}
