// Package exchange describes one qbXML request sent to QuickBooks and the
// response that completed it, and the journal port that records them.
package exchange

import (
	"context"
	"time"
)

// Kind identifies what a request asked QuickBooks to do
type Kind string

const (
	KindCatalogQuery Kind = "catalog_query"
	KindItemCreate   Kind = "item_create"
	KindEvent        Kind = "event"
)

// String returns the string representation of Kind
func (k Kind) String() string {
	return string(k)
}

// LineStats counts ledger lines before and after catalog filtering
type LineStats struct {
	Original int `json:"original"`
	Sent     int `json:"sent"`
	Dropped  int `json:"dropped"`
}

// Entry is one journaled request
type Entry struct {
	ID               uint64     `json:"id"`
	Ticket           string     `json:"ticket"`
	Kind             Kind       `json:"kind"`
	EventID          string     `json:"eventId,omitempty"`
	RequestID        string     `json:"requestId,omitempty"`
	Version          string     `json:"qbxmlVersion"`
	RequestedVersion string     `json:"requestedVersion,omitempty"`
	Lines            LineStats  `json:"lines"`
	Request          string     `json:"-"`
	SentAt           time.Time  `json:"sentAt"`
	Outcome          *Outcome   `json:"outcome,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Outcome is what QuickBooks answered for an Entry
type Outcome struct {
	Success    bool   `json:"success"`
	StatusCode string `json:"statusCode,omitempty"`
	Message    string `json:"message,omitempty"`
	TxnID      string `json:"txnId,omitempty"`
	HResult    string `json:"hresult,omitempty"`
	Response   string `json:"-"`
}

// Journal persists sent requests and their outcomes
type Journal interface {
	// Record stores a sent request and returns its id
	Record(ctx context.Context, entry Entry) (uint64, error)
	// Complete attaches the outcome to a recorded request
	Complete(ctx context.Context, id uint64, outcome Outcome) error
	// Recent returns the newest entries first
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
