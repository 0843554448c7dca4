package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// send performs one call against a single instance. Transport errors and 5xx
// answers are retried up to retryAttempts times. The last 5xx answer is
// returned to the caller so its error body can be decoded.
func (c *Client) send(ctx context.Context, method, target string, body []byte, authType AuthType) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.sendOnce(ctx, method, target, body, authType)
		switch {
		case errors.Is(err, ErrMissingAuth):
			return nil, err
		case err == nil && (resp.StatusCode < 500 || attempt == c.retryAttempts):
			return resp, nil
		case err != nil && (ctx.Err() != nil || attempt == c.retryAttempts):
			return nil, fmt.Errorf("%s %s failed after %d attempts: %w", method, target, attempt+1, err)
		}
		lastErr = err
		closeBody(resp)

		if err := c.wait(ctx, attempt); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last attempt: %v)", err, lastErr)
			}
			return nil, err
		}
	}
}

func (c *Client) sendOnce(ctx context.Context, method, target string, body []byte, authType AuthType) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.addAuthHeaders(req, authType); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// wait sleeps for the backoff of attempt or until ctx is done.
func (c *Client) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoff is a full-jitter delay: uniform in [0, min(retryWaitMax, retryWaitMin*2^attempt)).
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := c.retryWaitMax
	if attempt < 32 {
		if d := c.retryWaitMin << attempt; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
