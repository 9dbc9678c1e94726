package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a backend failure for retry policy.
type Kind int

const (
	// KindTimeout is a per-call deadline hit. Retried with backoff.
	KindTimeout Kind = iota
	// KindRateLimited is a provider 429. Retried with backoff.
	KindRateLimited
	// KindMalformed means the response could not be parsed into the
	// expected shape. Re-prompted once with a stricter instruction.
	KindMalformed
	// KindUnavailable is a connection or auth failure. Never retried.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is a classified backend failure.
type Error struct {
	Backend string
	Kind    Kind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, defaulting to Unavailable for
// unclassified errors so they are surfaced rather than retried forever.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}

func retryable(k Kind) bool {
	return k == KindTimeout || k == KindRateLimited
}
