package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultAttempts is the retry ceiling for timeout/rate-limit failures.
	DefaultAttempts = 3
	// DefaultCallTimeout bounds a single completion call.
	DefaultCallTimeout = 2 * time.Minute

	defaultMaxInFlight = 4
	defaultBaseDelay   = 500 * time.Millisecond
)

// strictSuffix is appended for the single re-prompt after a malformed
// response.
const strictSuffix = "\n\nIMPORTANT: Your previous reply could not be parsed." +
	" Answer again following the required output format EXACTLY, with no extra commentary."

// InvokeOptions select the backend identity and per-call policy.
type InvokeOptions struct {
	Backend string
	Params  Params
	// Timeout bounds one completion call; zero means DefaultCallTimeout.
	Timeout time.Duration
	// Validate checks the completion shape. A failed validation is a
	// Malformed response: the gateway re-prompts once with a stricter
	// format instruction before surfacing the error.
	Validate func(string) error
}

// Gateway coordinates calls to the configured backend identities.
// Strategies see either a completion or a terminal *Error; retries,
// backoff, rate limiting, and admission are invisible to them.
type Gateway struct {
	// Attempts is the ceiling on calls for retryable failures.
	Attempts int
	// BaseDelay seeds the exponential backoff between retries.
	BaseDelay time.Duration

	cfg Config

	mu  sync.Mutex
	ids map[string]*identity
}

type identity struct {
	client  Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewGateway builds a gateway over the configured backend registry.
// Clients are constructed on first use per identity.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		Attempts:  DefaultAttempts,
		BaseDelay: defaultBaseDelay,
		cfg:       cfg,
		ids:       map[string]*identity{},
	}
}

// Register installs a pre-built client under a backend id, bypassing the
// registry. Used for stub backends in tests and custom providers.
func (g *Gateway) Register(id string, c Client, maxInFlight int64) {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ids[id] = &identity{client: c, sem: semaphore.NewWeighted(maxInFlight)}
}

func (g *Gateway) identity(id string) (*identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ident, ok := g.ids[id]; ok {
		return ident, nil
	}
	client, err := g.cfg.build(id)
	if err != nil {
		return nil, err
	}
	ident := &identity{client: client}
	cfgID := g.cfg[id]
	maxInFlight := cfgID.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	ident.sem = semaphore.NewWeighted(maxInFlight)
	if cfgID.RPS > 0 {
		ident.limiter = rate.NewLimiter(rate.Limit(cfgID.RPS), 1)
	}
	g.ids[id] = ident
	return ident, nil
}

// Invoke runs one prompt against the selected backend under the full
// policy: admission limit, per-call timeout, exponential backoff up to
// the attempt ceiling for timeout/rate-limit failures, one strict
// re-prompt for a malformed response, immediate surfacing for
// unavailable backends.
func (g *Gateway) Invoke(ctx context.Context, prompt string, o InvokeOptions) (string, error) {
	ident, err := g.identity(o.Backend)
	if err != nil {
		return "", err
	}
	attempts := g.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := g.call(ctx, ident, prompt, o)
		if err == nil {
			if o.Validate == nil {
				return out, nil
			}
			verr := o.Validate(out)
			if verr == nil {
				return out, nil
			}
			slog.Debug("malformed completion, re-prompting with strict format",
				"backend", o.Backend, "error", verr)
			out, err = g.call(ctx, ident, prompt+strictSuffix, o)
			if err == nil {
				if verr = o.Validate(out); verr == nil {
					return out, nil
				}
				return "", &Error{Backend: o.Backend, Kind: KindMalformed, Err: verr}
			}
			return "", err
		}

		lastErr = err
		kind := KindOf(err)
		if !retryable(kind) || attempt == attempts {
			break
		}
		delay := g.BaseDelay << (attempt - 1)
		slog.Warn("backend call failed, retrying",
			"backend", o.Backend, "kind", kind.String(), "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("invoke cancelled: %w", ctx.Err())
		}
	}
	return "", lastErr
}

func (g *Gateway) call(ctx context.Context, ident *identity, prompt string, o InvokeOptions) (string, error) {
	if ident.limiter != nil {
		if err := ident.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if err := ident.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("admission wait: %w", err)
	}
	defer ident.sem.Release(1)

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return ident.client.Complete(cctx, prompt, o.Params)
}
