package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retries is how many times a delivery is retried after the first attempt.
const retries = 2

func newClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// post delivers a JSON body, retrying transport errors and 5xx/429
// responses with exponential backoff. Other non-2xx statuses fail at once.
func post(ctx context.Context, client *http.Client, url string, body []byte, header http.Header) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}
