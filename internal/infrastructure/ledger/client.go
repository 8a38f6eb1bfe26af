// Package ledger adapts the inventory ledger's work queue (a Convex
// deployment) to the ledger.Queue port.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
)

// Queue function names exposed by the ledger deployment
const (
	FnNextPending  = "qb_queue:getNextPendingQbEvent"
	FnMarkInFlight = "qb_queue:markEventInFlight"
	FnApplyResult  = "qb_queue:applyQbResult"
)

// Transport invokes one ledger function and returns its JSON result.
// Failures worth retrying wrap domain.ErrTransient.
type Transport interface {
	Call(ctx context.Context, function string, args any) (json.RawMessage, error)
}

// Client implements domain.Queue over a Transport
type Client struct {
	transport  Transport
	logger     *zap.Logger
	retryDelay time.Duration
}

var _ domain.Queue = (*Client)(nil)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryDelay sets the pause before the single retry
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a Client
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport:  t,
		logger:     zap.NewNop(),
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call invokes function, retrying once when the first attempt failed transiently
func (c *Client) call(ctx context.Context, function string, args any) (json.RawMessage, error) {
	raw, err := c.transport.Call(ctx, function, args)
	if err == nil || !errors.Is(err, domain.ErrTransient) {
		return raw, err
	}

	c.logger.Warn("Ledger call failed, retrying once",
		zap.String("function", function),
		zap.Error(err),
	)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.retryDelay):
	}
	return c.transport.Call(ctx, function, args)
}

// NextPending implements domain.Queue
func (c *Client) NextPending(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit < 1 {
		limit = 1
	}
	raw, err := c.call(ctx, FnNextPending, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode pending events: %v", domain.ErrMalformedOutput, err)
	}
	return payload.Events, nil
}

// MarkInFlight implements domain.Queue
func (c *Client) MarkInFlight(ctx context.Context, eventID, ticket string) error {
	_, err := c.call(ctx, FnMarkInFlight, map[string]any{"eventId": eventID, "ticket": ticket})
	return err
}

// ApplyResult implements domain.Queue
func (c *Client) ApplyResult(ctx context.Context, result domain.Result) error {
	_, err := c.call(ctx, FnApplyResult, result)
	return err
}
