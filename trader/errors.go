package trader

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/fract/broker"
)

// TransientBrokerError marks a timeout, network or rate-limit failure. The
// rest of the cycle is skipped and the next cycle retries.
type TransientBrokerError struct {
	Op  string
	Err error
}

func (e *TransientBrokerError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientBrokerError) Unwrap() error { return e.Err }

// HealthCheckError is a non-transient failure refreshing the account. It
// ends RunForever unless API errors are ignored.
type HealthCheckError struct {
	Op  string
	Err error
}

func (e *HealthCheckError) Error() string {
	return fmt.Sprintf("health check: %s: %v", e.Op, e.Err)
}

func (e *HealthCheckError) Unwrap() error { return e.Err }

func isTransient(err error) bool {
	return broker.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// classify wraps err as transient when it is; other errors pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientBrokerError
	if errors.As(err, &te) {
		return err
	}
	if isTransient(err) {
		return &TransientBrokerError{Op: op, Err: err}
	}
	return err
}
