package qbwc

import (
	"context"

	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
)

// CatalogDiagnostics extends the cache status with the query cycle state
type CatalogDiagnostics struct {
	catalog.Status
	QueryInProgress bool   `json:"queryInProgress"`
	QueryMode       string `json:"queryMode"`
	AutoCreateItems bool   `json:"autoCreateItems"`
}

// Diagnostics is a snapshot of the engine for the status endpoint
type Diagnostics struct {
	Sessions int                `json:"sessions"`
	Catalog  CatalogDiagnostics `json:"catalog"`
	Recent   []exchange.Entry   `json:"recentRequests"`
}

// CatalogStatus returns the catalog diagnostics with at most sample item names
func (s *Service) CatalogStatus(sample int) CatalogDiagnostics {
	return CatalogDiagnostics{
		Status:          s.catalog.Status(sample),
		QueryInProgress: s.catSync.inProgress(),
		QueryMode:       s.catSync.queryMode().String(),
		AutoCreateItems: s.cfg.AutoCreateItems,
	}
}

// Diagnostics returns the session count, catalog state and the newest
// journaled requests
func (s *Service) Diagnostics(ctx context.Context, recent int) Diagnostics {
	d := Diagnostics{
		Sessions: s.SessionCount(),
		Catalog:  s.CatalogStatus(25),
		Recent:   []exchange.Entry{},
	}
	if s.journal == nil || recent <= 0 {
		return d
	}
	entries, err := s.journal.Recent(ctx, recent)
	if err != nil {
		s.logger.Warn("Failed to read journal", zap.Error(err))
		return d
	}
	d.Recent = entries
	return d
}
