package foundry

import (
	"errors"
	"fmt"
)

// ErrThrottled marks an upstream rate-limit response. The gateway surfaces
// it directly: retrying through the secondary transport would land on the
// same throttled platform.
var ErrThrottled = errors.New("foundry: upstream throttled")

// ErrMissingOntology marks a request attempted without a configured
// ontology identifier.
var ErrMissingOntology = errors.New("foundry: ontology id not configured")

// InvalidRequestError marks a request the platform rejected as malformed
// (bad filter, schema mismatch). Not retried and not cached.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("foundry: invalid request: %s", e.Message)
}

// TransportError wraps any other transport-level failure (network error,
// unexpected status, undecodable body). The gateway treats it as a signal
// to fall back to the secondary transport.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("foundry: %s transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the gateway should attempt the secondary
// transport after err. Throttling and validation failures are terminal;
// everything else qualifies for fallback.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return false
	}
	var invalid *InvalidRequestError
	return !errors.As(err, &invalid)
}
