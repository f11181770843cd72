package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS reads from a Google Cloud Storage bucket using application default
// credentials (or STORAGE_EMULATOR_HOST when set).
type GCS struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	timeout time.Duration
}

// NewGCS opens a read-only client for bucket. timeout bounds each call; zero
// means no per-call limit.
func NewGCS(ctx context.Context, bucket string, timeout time.Duration) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket name is empty")
	}
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadOnly))
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{
		client:  client,
		bucket:  client.Bucket(bucket),
		name:    bucket,
		timeout: timeout,
	}, nil
}

func (g *GCS) Name() string { return "gs://" + g.name }

func (g *GCS) List(ctx context.Context, prefix string) ([]Object, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var objs []Object
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", g.name, prefix, err)
		}
		if attrs.Name == "" || attrs.Name[len(attrs.Name)-1] == '/' {
			continue
		}
		objs = append(objs, Object{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
	return objs, nil
}

func (g *GCS) Read(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	r, err := g.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("read gs://%s/%s: %w", g.name, name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", g.name, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", g.name, name, err)
	}
	return data, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
