package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/logger"
)

// ErrEntryNotFound is returned when completing an id that was never recorded
var ErrEntryNotFound = errors.New("journal: entry not found")

// GormRepository implements exchange.Journal using GORM
type GormRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ exchange.Journal = (*GormRepository)(nil)

// NewGormRepository creates a new GormRepository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db, now: time.Now}
}

// Record implements exchange.Journal
func (r *GormRepository) Record(ctx context.Context, entry exchange.Entry) (uint64, error) {
	if entry.SentAt.IsZero() {
		entry.SentAt = r.now()
	}
	model := fromEntry(entry)
	ctx = logger.WithJournalFields(ctx, zap.Stringer("entry_kind", entry.Kind))
	if entry.EventID != "" {
		ctx = logger.WithJournalFields(ctx, zap.String("event_id", entry.EventID))
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return 0, fmt.Errorf("journal: record %s: %w", entry.Kind, err)
	}
	return model.ID, nil
}

// Complete implements exchange.Journal
func (r *GormRepository) Complete(ctx context.Context, id uint64, outcome exchange.Outcome) error {
	success := outcome.Success
	ctx = logger.WithJournalFields(ctx, zap.Uint64("journal_id", id))
	result := r.db.WithContext(ctx).
		Model(&exchangeModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"completed_at":   r.now(),
			"success":        &success,
			"status_code":    outcome.StatusCode,
			"status_message": outcome.Message,
			"txn_id":         outcome.TxnID,
			"hresult":        outcome.HResult,
			"response":       outcome.Response,
		})
	if result.Error != nil {
		return fmt.Errorf("journal: complete %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Recent implements exchange.Journal
func (r *GormRepository) Recent(ctx context.Context, limit int) ([]exchange.Entry, error) {
	if limit < 1 {
		limit = 20
	}
	var rows []exchangeModel
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}

	entries := make([]exchange.Entry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}
