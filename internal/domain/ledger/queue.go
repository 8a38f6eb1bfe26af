package ledger

import (
	"context"
	"errors"
)

// Error codes attached to failed results
const (
	ErrorCodeBuild         = "BUILD_ERROR"
	ErrorCodeConnection    = "CONNECTION_ERROR"
	ErrorCodeEmptyResponse = "EMPTY_RESPONSE"
	ErrorCodeParse         = "PARSE_ERROR"
	ErrorCodeNoStatusNode  = "NO_RS_NODE"
)

var (
	// ErrTransient marks a queue failure worth one more attempt
	ErrTransient = errors.New("ledger: transient queue failure")
	// ErrMalformedOutput is returned when the queue answers with something that is not JSON
	ErrMalformedOutput = errors.New("ledger: malformed queue output")
)

// Result is the terminal outcome for one delivery attempt of an event
type Result struct {
	EventID      string `json:"eventId"`
	Ticket       string `json:"ticket,omitempty"`
	Success      bool   `json:"success"`
	TxnID        string `json:"qbTxnId,omitempty"`
	TxnKind      string `json:"qbTxnType,omitempty"`
	ErrorCode    string `json:"qbErrorCode,omitempty"`
	ErrorMessage string `json:"qbErrorMessage,omitempty"`
	Retryable    *bool  `json:"retryable,omitempty"`
}

// Succeeded builds a success result
func Succeeded(eventID, ticket, txnID, txnKind string) Result {
	return Result{
		EventID: eventID,
		Ticket:  ticket,
		Success: true,
		TxnID:   txnID,
		TxnKind: txnKind,
	}
}

// Failed builds a failure result
func Failed(eventID, ticket, txnKind, code, message string, retryable bool) Result {
	return Result{
		EventID:      eventID,
		Ticket:       ticket,
		TxnKind:      txnKind,
		ErrorCode:    code,
		ErrorMessage: message,
		Retryable:    &retryable,
	}
}

// IsRetryable reports the retry classification, false when unset
func (r Result) IsRetryable() bool {
	return r.Retryable != nil && *r.Retryable
}

// Queue is the port to the ledger's work queue.
// Implementations block until the ledger answers and never retry beyond
// their own transport policy.
type Queue interface {
	// NextPending returns up to limit events waiting for delivery
	NextPending(ctx context.Context, limit int) ([]Event, error)
	// MarkInFlight claims an event for the given session ticket
	MarkInFlight(ctx context.Context, eventID, ticket string) error
	// ApplyResult records the outcome of a delivery attempt
	ApplyResult(ctx context.Context, result Result) error
}
