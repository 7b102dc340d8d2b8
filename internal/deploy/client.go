// Package deploy calls the external deploy hook that rebuilds the static site.
// Retrying is a caller-side policy and lives here, never in the content core.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/draft-staging-api/internal/telemetry"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

var (
	// ErrNotConfigured is returned when no hook URL is set
	ErrNotConfigured = errors.New("deploy hook URL not configured")
	// ErrHookFailed is returned when the hook answers with a non-2xx status
	ErrHookFailed = errors.New("deploy hook failed")
)

// Response is the hook's answer
type Response struct {
	URL string `json:"url,omitempty"`
	Job any    `json:"job,omitempty"`
}

// Options configures a Client
type Options struct {
	URL      string
	Timeout  time.Duration
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Client posts to the deploy hook, retrying transport errors and 5xx answers
// with exponential backoff
type Client struct {
	url      string
	http     *http.Client
	retries  int
	minDelay time.Duration
	maxDelay time.Duration
	log      zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewClient creates a hook client
func NewClient(opts Options, log zerolog.Logger, metrics *telemetry.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	return &Client{
		url:      opts.URL,
		http:     &http.Client{Timeout: opts.Timeout},
		retries:  opts.Retries,
		minDelay: opts.MinDelay,
		maxDelay: opts.MaxDelay,
		log:      log.With().Str("component", "deploy").Logger(),
		metrics:  telemetry.OrNoop(metrics),
	}
}

// Configured reports whether a hook URL is set
func (c *Client) Configured() bool {
	return c != nil && c.url != ""
}

// Trigger posts to the hook and decodes its answer
func (c *Client) Trigger(ctx context.Context) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	boff := backoff.Backoff{
		Min:    c.minDelay,
		Max:    c.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			dur := boff.Duration()
			c.log.Warn().Err(lastErr).Int("attempt", attempt).Dur("retrying after", dur).Msg("Deploy hook call failed")

			timer := time.NewTimer(dur)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.metrics.DeployHookCalls.With("canceled").Inc()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		resp, retry, err := c.post(ctx)
		if err == nil {
			c.metrics.DeployHookCalls.With("ok").Inc()
			c.log.Info().Str("deployment_url", resp.URL).Msg("Deploy hook triggered")
			return resp, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	c.metrics.DeployHookCalls.With("failed").Inc()
	return nil, lastErr
}

// post makes one attempt. retry reports whether the failure is transient.
func (c *Client) post(ctx context.Context) (*Response, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build deploy hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%w: %v", ErrHookFailed, err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, res.StatusCode >= 500, fmt.Errorf("%w: %s", ErrHookFailed, res.Status)
	}

	var out Response
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			c.log.Debug().Err(err).Msg("Deploy hook returned a non-JSON body")
		}
	}
	return &out, false, nil
}
