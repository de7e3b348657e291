// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wpsclient

import (
	"context"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig configures the exponential-backoff retry wrapping a single
// describe or execute HTTP call. This is distinct from the status-poll
// loop's fixed-delay retry rule, which lives in PollUntilTerminal in
// client.go.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns conservative retry settings for contacting a
// remote WPS node.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// doWithRetry runs fn, retrying on transport errors and retryable status
// codes with exponential backoff and jitter.
func doWithRetry(ctx context.Context, cfg *RetryConfig, fn func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil && !retryableStatus[resp.StatusCode] {
			return resp, nil
		}

		if err == nil {
			resp.Body.Close()
			lastErr = &httpStatusError{StatusCode: resp.StatusCode}
		} else {
			lastErr = err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoffDelay(cfg, attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func backoffDelay(cfg *RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		delay *= cfg.BackoffFactor
	}
	if delay > float64(cfg.MaxBackoff) {
		delay = float64(cfg.MaxBackoff)
	}
	jitter := time.Duration(rand.Int63n(100)) * time.Millisecond
	return time.Duration(delay) + jitter
}

type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}
