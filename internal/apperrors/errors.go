// Package apperrors defines the error taxonomy shared across the
// preparation, compute, and commit stages of the pricing engine.
package apperrors

import (
	"fmt"
	"net/http"
	"time"
)

// Kind categorizes a CalcError for propagation and HTTP-status mapping.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindInvalidMargin      Kind = "INVALID_MARGIN"
	KindResourceLimit      Kind = "RESOURCE_LIMIT"
	KindRuleCompileError   Kind = "RULE_COMPILE_ERROR"
	KindRuleEvalError      Kind = "RULE_EVAL_ERROR"
	KindDataFetchError     Kind = "DATA_FETCH_ERROR"
	KindDatabaseError      Kind = "DATABASE_ERROR"
	KindIdempotencyReplay  Kind = "IDEMPOTENCY_REPLAY"
	KindEventPublishError  Kind = "EVENT_PUBLISH_ERROR"
	KindWebhookError       Kind = "WEBHOOK_ERROR"
	KindInternal           Kind = "INTERNAL"
)

// Violation names one specific input defect, used to build the violations
// list returned alongside INVALID_INPUT errors.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CalcError is the single error type returned across stage boundaries.
type CalcError struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	Violations []Violation            `json:"violations,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func (e *CalcError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *CalcError) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, status int, retryable bool, message string) *CalcError {
	return &CalcError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: status,
		Retryable:  retryable,
		Timestamp:  time.Now().UTC(),
	}
}

// InvalidInput builds an INVALID_INPUT error carrying specific violations.
func InvalidInput(message string, violations ...Violation) *CalcError {
	err := newError(KindInvalidInput, http.StatusBadRequest, false, message)
	err.Violations = violations
	return err
}

// InvalidMargin builds an INVALID_MARGIN error for a margin modifier whose
// target is outside [0,1).
func InvalidMargin(modifierID string, margin string) *CalcError {
	err := newError(KindInvalidMargin, http.StatusBadRequest, false,
		fmt.Sprintf("modifier %s: margin %s is outside [0,1)", modifierID, margin))
	return err
}

// ResourceLimit builds a RESOURCE_LIMIT error for a hard ceiling violation
// or a computation timeout.
func ResourceLimit(reason string) *CalcError {
	return newError(KindResourceLimit, http.StatusRequestEntityTooLarge, false, reason)
}

// Timeout builds the RESOURCE_LIMIT:timeout variant used when the pure
// stage's wall-clock ceiling is exceeded.
func Timeout(stage string) *CalcError {
	err := newError(KindResourceLimit, http.StatusGatewayTimeout, false,
		fmt.Sprintf("%s exceeded wall-clock budget", stage))
	err.Metadata = map[string]interface{}{"reason": "timeout"}
	return err
}

// RuleCompileError builds a RULE_COMPILE_ERROR for a rule AST that fails
// the depth/node-count/field-path safety checks.
func RuleCompileError(modifierID, reason string) *CalcError {
	return newError(KindRuleCompileError, http.StatusBadRequest, false,
		fmt.Sprintf("modifier %s: rule does not compile: %s", modifierID, reason))
}

// RuleEvalError builds a RULE_EVAL_ERROR for a single modifier's rule
// evaluation failure. Callers treat this as scoped to that modifier only.
func RuleEvalError(modifierID string, cause error) *CalcError {
	err := newError(KindRuleEvalError, http.StatusUnprocessableEntity, false,
		fmt.Sprintf("modifier %s: rule evaluation failed", modifierID))
	err.Cause = cause
	return err
}

// DataFetchError builds a DATA_FETCH_ERROR for a failed snapshot read.
func DataFetchError(operation string, cause error) *CalcError {
	err := newError(KindDataFetchError, http.StatusBadGateway, true,
		fmt.Sprintf("%s: failed to fetch proposal data", operation))
	err.Cause = cause
	return err
}

// DatabaseError builds a DATABASE_ERROR for a failed transactional write.
func DatabaseError(operation string, cause error) *CalcError {
	err := newError(KindDatabaseError, http.StatusInternalServerError, true,
		fmt.Sprintf("%s: database operation failed", operation))
	err.Cause = cause
	return err
}

// IdempotencyReplay is informational: the checksum already has a committed
// result, so no writes occurred and the stored result is returned.
func IdempotencyReplay(checksum string) *CalcError {
	err := newError(KindIdempotencyReplay, http.StatusOK, false,
		fmt.Sprintf("result for checksum %s already committed", checksum))
	return err
}

// EventPublishError builds an EVENT_PUBLISH_ERROR for an event keyed by
// aggregateID. Scoped to the outbox loop; never propagated to the
// synchronous caller.
func EventPublishError(aggregateID string, cause error) *CalcError {
	err := newError(KindEventPublishError, http.StatusOK, true,
		fmt.Sprintf("event for aggregate %s: publish failed", aggregateID))
	err.Cause = cause
	return err
}

// WebhookError builds a WEBHOOK_ERROR. Logged and counted; a failed
// delivery is not queued for a later retry. Never propagated to the
// synchronous caller or the transaction outcome.
func WebhookError(endpoint string, cause error) *CalcError {
	err := newError(KindWebhookError, http.StatusOK, true,
		fmt.Sprintf("webhook delivery to %s failed", endpoint))
	err.Cause = cause
	return err
}

// Internal builds an INTERNAL error for conditions the caller cannot act on.
func Internal(operation string, cause error) *CalcError {
	err := newError(KindInternal, http.StatusInternalServerError, false,
		fmt.Sprintf("%s: internal error", operation))
	err.Cause = cause
	return err
}

// As extracts a *CalcError from err, returning nil if err is not one.
func As(err error) *CalcError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CalcError); ok {
		return ce
	}
	return nil
}
