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
	"bytes"
	"context"
	"crypto/rand"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const machineIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Client issues describeprocess/execute calls and drives the status-poll
// loop against one or more remote WPS nodes. A Client is meant to be
// owned by a single workflow run: its describe cache and per-URL rate
// limiters live for exactly that run's lifetime.
type Client struct {
	httpClient *http.Client
	retry      *RetryConfig

	describeCache sync.Map // string -> *ProcessDescription
	limiters      sync.Map // string -> *rate.Limiter

	requestsPerSecond float64
	rateBurst         int

	pollSuccessDelay time.Duration
	pollFailureDelay time.Duration
	maxPollFailures  int
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig overrides the transport-level retry policy.
func WithRetryConfig(cfg *RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithRateLimit sets the per-URL requests-per-second and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.requestsPerSecond = rps; c.rateBurst = burst }
}

// WithPollDelays overrides the fixed-delay long-poll timing.
func WithPollDelays(success, failure time.Duration, maxFailures int) Option {
	return func(c *Client) {
		c.pollSuccessDelay = success
		c.pollFailureDelay = failure
		c.maxPollFailures = maxFailures
	}
}

// New creates a Client with sensible defaults, overridden by opts.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		retry:             DefaultRetryConfig(),
		requestsPerSecond: 5,
		rateBurst:         5,
		pollSuccessDelay:  3 * time.Second,
		pollFailureDelay:  5 * time.Second,
		maxPollFailures:   5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) limiterFor(url string) *rate.Limiter {
	if v, ok := c.limiters.Load(url); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(c.requestsPerSecond), c.rateBurst)
	actual, _ := c.limiters.LoadOrStore(url, lim)
	return actual.(*rate.Limiter)
}

func (c *Client) wait(ctx context.Context, url string) error {
	return c.limiterFor(url).Wait(ctx)
}

// Describe fetches and caches the remote process description for
// (url, identifier). Repeated calls within the same Client's lifetime
// (one workflow run) return the cached value.
func (c *Client) Describe(ctx context.Context, url, identifier string) (*ProcessDescription, error) {
	key := url + "|" + identifier
	if v, ok := c.describeCache.Load(key); ok {
		return v.(*ProcessDescription), nil
	}

	if err := c.wait(ctx, url); err != nil {
		return nil, err
	}

	describeURL := fmt.Sprintf("%s?service=WPS&version=1.0.0&request=DescribeProcess&identifier=%s", url, identifier)
	resp, err := doWithRetry(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, describeURL, nil)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	var doc xmlDescribeProcessResponse
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}

	desc := parseDescribeProcess(url, doc)
	actual, _ := c.describeCache.LoadOrStore(key, desc)
	return actual.(*ProcessDescription), nil
}

// Execute submits an asynchronous execute request and returns the handle
// parsed from the initial response.
func (c *Client) Execute(ctx context.Context, url, identifier string, inputs []InputValue, outputs []OutputRequest, headers map[string]string) (*ExecutionHandle, error) {
	machineID, err := randomMachineID()
	if err != nil {
		return nil, err
	}

	body, err := buildExecuteRequest(identifier, inputs, outputs, machineID)
	if err != nil {
		return nil, err
	}

	if err := c.wait(ctx, url); err != nil {
		return nil, err
	}

	executeURL := fmt.Sprintf("%s?service=WPS&version=1.0.0&request=Execute", url)
	resp, err := doWithRetry(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, executeURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/xml")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	var doc xmlExecuteResponse
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}

	handle := parseExecuteResponse(doc)
	if handle.StatusLocation == "" {
		if loc := resp.Header.Get("Location"); loc != "" {
			handle.StatusLocation = loc
		}
	}
	return handle, nil
}

// FetchReference GETs the content at a reference URL, used by the data
// adapter when a downstream input wants inline data but the upstream
// output only offers a reference.
func (c *Client) FetchReference(ctx context.Context, url string) ([]byte, error) {
	if err := c.wait(ctx, url); err != nil {
		return nil, err
	}

	resp, err := doWithRetry(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Cause: err}
	}
	return data, nil
}

// poll performs a single GET against handle.StatusLocation and replaces
// the handle's fields with the freshly parsed document.
func (c *Client) poll(ctx context.Context, handle *ExecutionHandle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.StatusLocation, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var doc xmlExecuteResponse
	if err := xml.Unmarshal(data, &doc); err != nil {
		return err
	}

	fresh := parseExecuteResponse(doc)
	if fresh.StatusLocation == "" {
		fresh.StatusLocation = handle.StatusLocation
	}
	*handle = *fresh
	return nil
}

// PollUntilTerminal drives the fixed-delay long-poll loop described in
// spec section 4.1: 3 seconds between successful reads, 5 seconds
// between retries after a failed read. Up to maxPollFailures (default
// 5) consecutive failed reads are tolerated; the next one is fatal.
// onUpdate is invoked after every successful read, including
// the final terminal one.
func (c *Client) PollUntilTerminal(ctx context.Context, handle *ExecutionHandle, onUpdate func(*ExecutionHandle)) error {
	consecutiveFailures := 0

	for {
		err := c.poll(ctx, handle)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures > c.maxPollFailures {
				return &PollBudgetExceededError{
					StatusLocation: handle.StatusLocation,
					Attempts:       consecutiveFailures,
					Cause:          err,
				}
			}
			if waitErr := sleepOrDone(ctx, c.pollFailureDelay); waitErr != nil {
				return waitErr
			}
			continue
		}

		consecutiveFailures = 0
		if onUpdate != nil {
			onUpdate(handle)
		}

		if handle.Terminal() {
			return nil
		}

		if waitErr := sleepOrDone(ctx, c.pollSuccessDelay); waitErr != nil {
			return waitErr
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomMachineID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 16)
	for i, b := range buf {
		out[i] = machineIDAlphabet[int(b)%len(machineIDAlphabet)]
	}
	return string(out), nil
}
