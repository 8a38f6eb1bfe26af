package journal

import (
	"time"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
)

// exchangeModel is the persistence row for one sent request
type exchangeModel struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	Ticket           string `gorm:"size:64;not null;index"`
	Kind             string `gorm:"size:32;not null"`
	EventID          string `gorm:"size:128;index"`
	RequestID        string `gorm:"size:64"`
	Version          string `gorm:"size:16"`
	RequestedVersion string `gorm:"size:16"`
	OriginalLines    int
	SentLines        int
	DroppedLines     int
	Request          string    `gorm:"type:text"`
	SentAt           time.Time `gorm:"not null;index"`
	CompletedAt      *time.Time
	Success          *bool
	StatusCode       string `gorm:"size:32"`
	StatusMessage    string `gorm:"type:text"`
	TxnID            string `gorm:"column:txn_id;size:64"`
	HResult          string `gorm:"column:hresult;size:32"`
	Response         string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (exchangeModel) TableName() string {
	return "qb_exchanges"
}

func fromEntry(e exchange.Entry) *exchangeModel {
	return &exchangeModel{
		Ticket:           e.Ticket,
		Kind:             e.Kind.String(),
		EventID:          e.EventID,
		RequestID:        e.RequestID,
		Version:          e.Version,
		RequestedVersion: e.RequestedVersion,
		OriginalLines:    e.Lines.Original,
		SentLines:        e.Lines.Sent,
		DroppedLines:     e.Lines.Dropped,
		Request:          e.Request,
		SentAt:           e.SentAt,
	}
}

// ToDomain converts the row to an exchange.Entry
func (m *exchangeModel) ToDomain() exchange.Entry {
	entry := exchange.Entry{
		ID:               m.ID,
		Ticket:           m.Ticket,
		Kind:             exchange.Kind(m.Kind),
		EventID:          m.EventID,
		RequestID:        m.RequestID,
		Version:          m.Version,
		RequestedVersion: m.RequestedVersion,
		Lines: exchange.LineStats{
			Original: m.OriginalLines,
			Sent:     m.SentLines,
			Dropped:  m.DroppedLines,
		},
		Request:     m.Request,
		SentAt:      m.SentAt,
		CompletedAt: m.CompletedAt,
	}
	if m.CompletedAt != nil {
		entry.Outcome = &exchange.Outcome{
			Success:    m.Success != nil && *m.Success,
			StatusCode: m.StatusCode,
			Message:    m.StatusMessage,
			TxnID:      m.TxnID,
			HResult:    m.HResult,
			Response:   m.Response,
		}
	}
	return entry
}
