package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// ValidationError marks input that can never succeed: unresolvable
// principals, unknown permission sets, malformed identifiers. Handlers
// log and drop these without retrying.
type ValidationError struct {
	Component   string
	RelatedData string
	Reason      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed for %s: %s", e.Component, e.RelatedData, e.Reason)
}

// TransientProviderError marks throttling or provider-side 5xx failures
// that transport redelivery is expected to resolve.
type TransientProviderError struct {
	Component string
	Err       error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s: transient provider failure: %v", e.Component, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// AsyncOperationError reports an asynchronous admin operation that
// reached a terminal FAILED state. Not retried automatically.
type AsyncOperationError struct {
	Component   string
	RequestID   string
	RelatedData string
	Reason      string
}

func (e *AsyncOperationError) Error() string {
	return fmt.Sprintf("%s: async operation %s failed for %s: %s",
		e.Component, e.RequestID, e.RelatedData, e.Reason)
}

// AsyncOperationTimeout reports a waiter that exhausted its budget
// without observing a terminal state. The outcome is inconclusive and
// the ledger is left untouched so a later pass can re-attempt.
type AsyncOperationTimeout struct {
	Component   string
	RequestID   string
	RelatedData string
}

func (e *AsyncOperationTimeout) Error() string {
	return fmt.Sprintf("%s: async operation %s timed out for %s",
		e.Component, e.RequestID, e.RelatedData)
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientProviderError, a throttling API error, or a provider 5xx.
func IsTransient(err error) bool {
	var transient *TransientProviderError
	if errors.As(err, &transient) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() >= http.StatusInternalServerError
	}
	return false
}
