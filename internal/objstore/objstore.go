// Package objstore reads collector output from object storage.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/elonfeng/degendigest/internal/config"
	"go.uber.org/zap"
)

// ErrNotExist is returned by Read when the named object is absent.
var ErrNotExist = errors.New("object does not exist")

// Object describes one stored blob.
type Object struct {
	Name    string
	Size    int64
	Updated time.Time
}

// Bucket is the read side of a blob store. Close releases the client.
type Bucket interface {
	io.Closer

	// List returns objects whose names start with prefix, sorted by name.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Read returns the full contents of the named object.
	Read(ctx context.Context, name string) ([]byte, error)
	// Name identifies the bucket in logs.
	Name() string
}

// Open builds the bucket described by cfg, wrapped with retries.
func Open(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Bucket, error) {
	var (
		b   Bucket
		err error
	)
	switch cfg.Kind {
	case "gcs", "":
		b, err = NewGCS(ctx, cfg.Bucket, cfg.Timeout)
	case "local":
		b, err = NewDir(cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return Retrying(b, cfg.Retry, log), nil
}
