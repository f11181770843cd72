package objstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elonfeng/degendigest/internal/config"
	"go.uber.org/zap"
)

type retrying struct {
	Bucket
	cfg config.RetryConfig
	log *zap.Logger
}

// Retrying wraps b so that List and Read retry transient failures with
// exponential backoff. ErrNotExist and context cancellation are permanent.
func Retrying(b Bucket, cfg config.RetryConfig, log *zap.Logger) Bucket {
	return &retrying{Bucket: b, cfg: cfg, log: log.Named("objstore")}
}

func (r *retrying) List(ctx context.Context, prefix string) ([]Object, error) {
	var objs []Object
	err := r.do(ctx, "list", prefix, func() error {
		var err error
		objs, err = r.Bucket.List(ctx, prefix)
		return err
	})
	return objs, err
}

func (r *retrying) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "read", name, func() error {
		var err error
		data, err = r.Bucket.Read(ctx, name)
		return err
	})
	return data, err
}

func (r *retrying) do(ctx context.Context, op, name string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		b.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		b.MaxInterval = r.cfg.MaxInterval
	}
	if r.cfg.MaxElapsedTime > 0 {
		b.MaxElapsedTime = r.cfg.MaxElapsedTime
	}

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotExist) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}

	attempts := 0
	notify := func(err error, next time.Duration) {
		attempts++
		r.log.Warn("object storage call failed, retrying",
			zap.String("op", op),
			zap.String("object", name),
			zap.Int("attempt", attempts),
			zap.Duration("next_retry_in", next),
			zap.Error(err))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
}
