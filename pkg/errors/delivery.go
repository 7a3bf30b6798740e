package errors

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent marks a transition request for an alert already past
// that transition. Duplicate and out-of-order provider webhooks are
// expected; callers absorb this silently.
var ErrDuplicateEvent = errors.New("duplicate event for alert in terminal state")

// ConfigurationError means an alert could not be created at all (no
// channels enabled for the tier, missing destination). It is skipped, not
// retried, and never recorded as a failed send.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func Configuration(reason string) *ConfigurationError {
	return &ConfigurationError{Reason: reason}
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// DeliveryError is a failed channel adapter call. Retryable errors
// (timeouts, 5xx, network) go through the backoff policy; permanent
// errors (4xx, invalid recipient) fail the alert immediately.
type DeliveryError struct {
	Retryable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "transient"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func Transient(err error) *DeliveryError {
	return &DeliveryError{Retryable: true, Err: err}
}

func Permanent(err error) *DeliveryError {
	return &DeliveryError{Retryable: false, Err: err}
}

// IsRetryable reports whether a send failure should re-enter the backoff
// loop. Unknown error types are treated as transient so a provider hiccup
// is never misclassified as a bad recipient.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}
