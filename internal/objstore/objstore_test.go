package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/degendigest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirListAndRead(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "reddit_data/b.json", `{"posts": []}`)
	writeFile(t, root, "reddit_data/a.json", `[]`)
	writeFile(t, root, "reddit_data/reddit_latest.json", `{}`)
	writeFile(t, root, "twitter_data/x.json", `[]`)
	writeFile(t, root, "consolidated/reddit_consolidated.json", `[]`)

	d, err := NewDir(root)
	require.NoError(t, err)
	ctx := context.Background()

	objs, err := d.List(ctx, "reddit_data/")
	require.NoError(t, err)
	var names []string
	for _, o := range objs {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"reddit_data/a.json", "reddit_data/b.json", "reddit_data/reddit_latest.json"}, names)
	assert.Equal(t, int64(len(`{"posts": []}`)), objs[1].Size)

	data, err := d.Read(ctx, "reddit_data/b.json")
	require.NoError(t, err)
	assert.Equal(t, `{"posts": []}`, string(data))

	_, err = d.Read(ctx, "reddit_data/missing.json")
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = d.Read(ctx, "../etc/passwd")
	assert.Error(t, err)
}

func TestNewDirMissingRoot(t *testing.T) {
	_, err := NewDir(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

type flakyBucket struct {
	failures int
	calls    int
	err      error
	closed   bool
}

func (f *flakyBucket) Name() string { return "flaky" }

func (f *flakyBucket) Close() error {
	f.closed = true
	return nil
}

func (f *flakyBucket) List(context.Context, string) ([]Object, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []Object{{Name: "a.json"}}, nil
}

func (f *flakyBucket) Read(context.Context, string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []byte("ok"), nil
}

var fastRetry = config.RetryConfig{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxElapsedTime:  time.Second,
}

func TestRetryingRecoversTransientErrors(t *testing.T) {
	inner := &flakyBucket{failures: 2, err: errors.New("503 backend error")}
	b := Retrying(inner, fastRetry, zap.NewNop())

	data, err := b.Read(context.Background(), "a.json")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "flaky", b.Name())
}

func TestRetryingNotFoundIsPermanent(t *testing.T) {
	inner := &flakyBucket{failures: 5, err: ErrNotExist}
	b := Retrying(inner, fastRetry, zap.NewNop())

	_, err := b.Read(context.Background(), "a.json")
	require.ErrorIs(t, err, ErrNotExist)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	inner := &flakyBucket{failures: 1 << 30, err: errors.New("connection reset")}
	cfg := fastRetry
	cfg.MaxElapsedTime = 20 * time.Millisecond
	b := Retrying(inner, cfg, zap.NewNop())

	_, err := b.List(context.Background(), "")
	require.Error(t, err)
	assert.Greater(t, inner.calls, 1)
}

func TestRetryingClosesInner(t *testing.T) {
	inner := &flakyBucket{}
	b := Retrying(inner, fastRetry, zap.NewNop())
	require.NoError(t, b.Close())
	assert.True(t, inner.closed)
}

func TestOpenLocal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "crypto_data/crypto_latest.json", `[]`)

	b, err := Open(context.Background(), config.StorageConfig{Kind: "local", LocalRoot: root, Retry: fastRetry}, zap.NewNop())
	require.NoError(t, err)
	objs, err := b.List(context.Background(), "crypto_data/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	_, err = Open(context.Background(), config.StorageConfig{Kind: "s3"}, zap.NewNop())
	assert.Error(t, err)
}
