package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"AdverseScreener/internal/domain"
)

// RecordFunc receives the audit record of one underlying backend call,
// successful or not. Each screening run supplies its own recorder so the
// client itself stays free of per-run state.
type RecordFunc func(record domain.OracleCallRecord)

// Client fronts an ordered list of interchangeable backends with bounded
// retries and capability-preserving fallback. Safe for use by concurrent
// screenings; the only shared state is the active backend index, which only
// ever moves forward in the configured priority order.
type Client struct {
	backends    []Backend
	maxAttempts int
	baseBackoff time.Duration
	callTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	active int
}

// NewClient wires the priority-ordered backends. maxAttempts bounds retries
// of transient failures per backend before falling back to the next one.
func NewClient(backends []Backend, maxAttempts int, baseBackoff, callTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one oracle backend is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 500 * time.Millisecond
	}
	return &Client{
		backends:    backends,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		callTimeout: callTimeout,
		logger:      logger,
	}, nil
}

// ActiveBackend reports which backend currently serves calls.
func (c *Client) ActiveBackend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backends[c.active].Name()
}

// Invoke runs the request against the active backend, retrying transient
// failures with exponential backoff and falling back through the remaining
// backends in priority order. Fallback is sticky: once a backend is
// abandoned, subsequent calls start from its successor.
func (c *Client) Invoke(ctx context.Context, req Request, record RecordFunc) (Response, error) {
	c.mu.Lock()
	start := c.active
	c.mu.Unlock()

	var lastErr error
	for idx := start; idx < len(c.backends); idx++ {
		backend := c.backends[idx]

		resp, err := c.tryBackend(ctx, backend, req, record)
		if err == nil {
			c.promote(idx)
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		lastErr = err

		c.log("oracle backend abandoned", "backend", backend.Name(), "stage", req.Stage, "error", err)
	}

	return Response{}, fmt.Errorf("all oracle backends exhausted: %w", lastErr)
}

// tryBackend drives the retry loop for one backend. It returns nil on
// success and the classified error once the backend is considered dead for
// this call.
func (c *Client) tryBackend(ctx context.Context, backend Backend, req Request, record RecordFunc) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.baseBackoff<<(attempt-1)); err != nil {
				return Response{}, err
			}
		}

		resp, err := c.complete(ctx, backend, req)
		c.emit(record, req, backend, resp, err)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}

		// Only transient failures earn another attempt on the same backend.
		if !errors.Is(err, ErrTimeout) && !errors.Is(err, ErrRateLimited) {
			return Response{}, err
		}
		c.log("transient oracle failure, retrying", "backend", backend.Name(), "stage", req.Stage, "attempt", attempt+1, "error", err)
	}
	return Response{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) complete(ctx context.Context, backend Backend, req Request) (Response, error) {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}
	return backend.Complete(ctx, req)
}

func (c *Client) emit(record RecordFunc, req Request, backend Backend, resp Response, err error) {
	if record == nil {
		return
	}
	call := domain.OracleCallRecord{
		Stage:        req.Stage,
		Backend:      backend.Name(),
		Model:        backend.Model(),
		PromptDigest: req.Digest(),
		Success:      err == nil,
		Timestamp:    time.Now().UTC(),
	}
	if err == nil {
		call.InputTokens = resp.InputTokens
		call.OutputTokens = resp.OutputTokens
		call.CostUSD = EstimateCost(backend.Name(), resp.InputTokens, resp.OutputTokens)
		call.Latency = resp.Latency
	}
	record(call)
}

// promote advances the sticky active index, never moving it backwards.
func (c *Client) promote(idx int) {
	c.mu.Lock()
	if idx > c.active {
		c.active = idx
	}
	c.mu.Unlock()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) log(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
