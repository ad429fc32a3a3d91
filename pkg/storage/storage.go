package storage

import (
	"context"

	"github.com/mosajjal/logrelay/pkg/models"
)

// Backend archives entries, either as a cold copy of everything sent or as
// the fallback when HEC delivery fails
type Backend interface {
	// Store saves entries to storage
	Store(ctx context.Context, entries []*models.Entry) error

	// Close cleans up resources
	Close() error
}

// StorageConfig holds common storage configuration
type StorageConfig struct {
	Provider        string // s3
	URL             string
	Region          string
	PathPrefix      string
	CompressionType string // gzip, none
}
