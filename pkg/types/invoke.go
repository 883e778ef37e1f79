package types

import (
	"fmt"
	"strings"
	"time"
)

// InvocationRequest describes a single tool invocation. It is constructed
// per call and never persisted.
type InvocationRequest struct {
	ServerID string `json:"server_id"`
	Tool     string `json:"tool"`

	// Params maps parameter names to JSON-compatible values.
	Params map[string]any `json:"parameters"`

	// BearerToken, when set, is forwarded to the capability server in the
	// Authorization header.
	BearerToken string `json:"bearer_token,omitempty"`

	// TimeoutSec bounds the whole call, in seconds. Zero means the
	// dispatcher default.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// Timeout returns the caller-requested timeout as a duration, or zero when
// the caller left it unset.
func (r *InvocationRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

// ResultKind tags the outcome of an invocation.
type ResultKind string

const (
	// ResultSuccess means the server answered 2xx with a parseable body.
	ResultSuccess ResultKind = "success"

	// ResultValidationFailure means the request was rejected before any
	// network call was made.
	ResultValidationFailure ResultKind = "validation_failure"

	// ResultTransportFailure covers connection errors, timeouts, unknown
	// servers and non-2xx responses.
	ResultTransportFailure ResultKind = "transport_failure"

	// ResultProtocolFailure means the server answered but the response
	// violated the expected contract.
	ResultProtocolFailure ResultKind = "protocol_failure"
)

// Severity grades a validation reason.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationReason is a single field-level validation finding.
type ValidationReason struct {
	// Parameter is the offending parameter name, or empty for tool-level findings.
	Parameter string   `json:"parameter,omitempty"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// InvocationResult is the normalized outcome of a tool invocation.
// Exactly one kind is set; the remaining fields qualify it.
type InvocationResult struct {
	Kind ResultKind `json:"kind"`

	// Value holds the JSON-compatible result value on success.
	Value any `json:"value,omitempty"`

	// Reasons lists validation findings. On a successful result it may still
	// carry warning-level reasons from permissive validation.
	Reasons []ValidationReason `json:"reasons,omitempty"`

	// StatusCode is the upstream HTTP status for transport failures, when known.
	StatusCode int `json:"status_code,omitempty"`

	// Message is a human-readable description of the failure.
	Message string `json:"message,omitempty"`
}

// Success builds a successful result, keeping any warning-level reasons.
func Success(value any, warnings []ValidationReason) *InvocationResult {
	return &InvocationResult{Kind: ResultSuccess, Value: value, Reasons: warnings}
}

// ValidationFailed builds a result for a request rejected by the validator.
func ValidationFailed(reasons []ValidationReason) *InvocationResult {
	return &InvocationResult{
		Kind:    ResultValidationFailure,
		Reasons: reasons,
		Message: "invocation request failed validation",
	}
}

// TransportFailed builds a result for a connection error, timeout or
// non-2xx response. statusCode is 0 when the failure happened before a
// response was received.
func TransportFailed(statusCode int, message string) *InvocationResult {
	return &InvocationResult{Kind: ResultTransportFailure, StatusCode: statusCode, Message: message}
}

// ProtocolFailed builds a result for a response that violates the contract.
func ProtocolFailed(message string) *InvocationResult {
	return &InvocationResult{Kind: ResultProtocolFailure, Message: message}
}

// IsFailure reports whether the result represents any failure kind.
func (r *InvocationResult) IsFailure() bool {
	return r.Kind != ResultSuccess
}

// FailedParams returns the parameter names mentioned in error-level reasons.
func (r *InvocationResult) FailedParams() []string {
	var params []string
	for _, reason := range r.Reasons {
		if reason.Severity == SeverityError && reason.Parameter != "" {
			params = append(params, reason.Parameter)
		}
	}
	return params
}

// Summary renders the result as a one-line human-readable message.
func (r *InvocationResult) Summary() string {
	switch r.Kind {
	case ResultSuccess:
		return "success"
	case ResultValidationFailure:
		msgs := make([]string, len(r.Reasons))
		for i, reason := range r.Reasons {
			msgs[i] = reason.Message
		}
		return "validation failed: " + strings.Join(msgs, "; ")
	case ResultTransportFailure:
		if r.StatusCode > 0 {
			return fmt.Sprintf("transport failure (HTTP %d): %s", r.StatusCode, r.Message)
		}
		return "transport failure: " + r.Message
	case ResultProtocolFailure:
		return "protocol failure: " + r.Message
	default:
		return string(r.Kind)
	}
}
