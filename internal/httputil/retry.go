// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RetryDelay is the fixed pause between download attempts. Tests
// override this to avoid real sleeps.
var RetryDelay = 2 * time.Second

const defaultMaxRetries = 3

// StatusError reports a non-2xx HTTP response that survived all retries.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// DoWithRetry executes an HTTP request and retries transient failures:
// transport errors (connection refused included) and non-2xx responses.
// Attempts are separated by the fixed RetryDelay.
//
// When maxRetries is 0 the default (3) is used, giving 4 attempts total.
// On each failed response the body is drained and closed before sleeping.
// If the context is cancelled during a wait the function returns
// ctx.Err(). After exhausting retries the last transport error, or a
// *StatusError for the last response, is returned.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
			// Drain and close the body before retrying.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		if attempt >= maxRetries {
			return nil, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
}
