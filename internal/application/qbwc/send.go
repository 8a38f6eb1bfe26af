package qbwc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/shared"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/telemetry"
)

// SendRequestInput carries the sendRequestXML arguments
type SendRequestInput struct {
	Ticket          string
	HCPResponse     string
	CompanyFileName string
	Country         string
	QBXMLMajor      string
	QBXMLMinor      string
}

// request is everything known about the version for one sendRequestXML call
type request struct {
	version   qbxml.Version
	requested string
}

// SendRequestXML returns the next qbXML request for the ticket's session,
// or "" when there is nothing to do
func (s *Service) SendRequestXML(ctx context.Context, in SendRequestInput) string {
	ctx, end := s.observe(ctx, MethodSendRequestXML)
	defer end()

	sess, ok := s.sessions.get(strings.TrimSpace(in.Ticket))
	if !ok {
		s.log(ctx, in.Ticket).Warn("sendRequestXML for unknown ticket")
		return ""
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	req := request{
		version:   NegotiateVersion(s.cfg.QBXMLVersion, in.QBXMLMajor, in.QBXMLMinor),
		requested: requestedVersion(in.QBXMLMajor, in.QBXMLMinor),
	}

	if xml, ok := s.sendCatalogQuery(ctx, sess, req); ok {
		return xml
	}
	if sess.pending != nil {
		return s.resumePending(ctx, sess, req)
	}
	return s.scanQueue(ctx, sess, req)
}

// catalogQueryDue reports whether the live catalog needs a query page now
func (s *Service) catalogQueryDue() bool {
	if s.catalog == nil || s.catalog.Mode() != catalog.ModeLive {
		return false
	}
	return s.catSync.inProgress() || !s.catalog.IsFresh()
}

func (s *Service) sendCatalogQuery(ctx context.Context, sess *session, req request) (string, bool) {
	if !s.catalogQueryDue() {
		return "", false
	}
	xml, err := s.catSync.nextRequest(req.version, s.cfg.PageSize)
	if err != nil {
		s.catSync.reset()
		sess.phase = nil
		sess.lastError = fmt.Sprintf("sendRequestXML item query error: %v", err)
		s.log(ctx, sess.ticket).Error("Failed to build catalog query", zap.Error(err))
		return "", true
	}

	entryID := s.record(ctx, exchange.Entry{
		Ticket:           sess.ticket,
		Kind:             exchange.KindCatalogQuery,
		Version:          req.version.String(),
		RequestedVersion: req.requested,
		Request:          xml,
	})
	sess.phase = catalogQueryPhase{entryID: entryID}
	sess.lastError = ""
	s.metrics.RecordRequest(ctx, exchange.KindCatalogQuery.String())
	s.log(ctx, sess.ticket).Info("Sending catalog query page",
		zap.String("query_mode", s.catSync.queryMode().String()),
		zap.String("qbxml_version", req.version.String()),
	)
	return xml, true
}

// resumePending continues an event held back for item creation
func (s *Service) resumePending(ctx context.Context, sess *session, req request) string {
	p := sess.pending
	var (
		xml string
		err error
	)
	if len(p.creates) > 0 {
		xml, err = s.sendItemCreate(ctx, sess, req)
	} else {
		xml, err = s.sendEvent(ctx, sess, p.event, p.lines, req)
	}
	if err != nil {
		s.reportBuildError(ctx, sess, p.event, err)
		return ""
	}
	return xml
}

// scanQueue fetches pending events and sends the first one that needs
// QuickBooks. Events that cannot be built are failed and skipped.
func (s *Service) scanQueue(ctx context.Context, sess *session, req request) string {
	sess.phase = nil
	log := s.log(ctx, sess.ticket)

	events, err := s.queue.NextPending(ctx, s.cfg.BatchSize)
	if err != nil {
		sess.lastError = fmt.Sprintf("sendRequestXML error: %v", err)
		log.Error("Failed to fetch pending events", zap.Error(err))
		return ""
	}
	if len(events) == 0 {
		return ""
	}

	keys, err := s.catalog.EnsureReady(ctx)
	if err != nil {
		sess.lastError = fmt.Sprintf("sendRequestXML catalog error: %v", err)
		log.Error("Catalog unavailable", zap.Error(err))
		return ""
	}

	for _, evt := range events {
		if strings.TrimSpace(evt.ID) == "" {
			continue
		}
		if err := s.queue.MarkInFlight(ctx, evt.ID, sess.ticket); err != nil {
			log.Warn("Skipping event that could not be marked in flight",
				zap.String("event_id", evt.ID),
				zap.Error(err),
			)
			continue
		}

		plan, err := s.planEvent(evt, keys)
		if err != nil {
			s.reportBuildError(ctx, sess, evt, err)
			continue
		}

		if len(plan.event.Lines) == 0 {
			log.Info("No catalog items on event, reporting as done",
				zap.String("event_id", evt.ID),
				zap.Int("dropped_lines", plan.lines.Dropped),
			)
			if err := s.apply(ctx, ledger.Succeeded(evt.ID, sess.ticket, "", evt.TargetTxnKind())); err != nil {
				log.Error("Failed to report skipped event", zap.String("event_id", evt.ID), zap.Error(err))
			}
			sess.lastError = ""
			continue
		}

		if len(plan.creates) > 0 {
			sess.pending = plan
			xml, err := s.sendItemCreate(ctx, sess, req)
			if err != nil {
				s.reportBuildError(ctx, sess, evt, err)
				continue
			}
			return xml
		}

		xml, err := s.sendEvent(ctx, sess, plan.event, plan.lines, req)
		if err != nil {
			s.reportBuildError(ctx, sess, evt, err)
			continue
		}
		return xml
	}
	return ""
}

// planEvent drops lines whose item is unknown to the catalog, keeping them
// for creation when auto-create is on
func (s *Service) planEvent(evt ledger.Event, keys catalog.KeySet) (*pendingEvent, error) {
	kept := make([]ledger.Line, 0, len(evt.Lines))
	var missing []ledger.Line
	for _, line := range evt.Lines {
		candidates := line.Candidates()
		if len(candidates) == 0 {
			continue
		}
		if keys.HasAny(candidates...) {
			kept = append(kept, line)
			continue
		}
		if s.cfg.AutoCreateItems {
			kept = append(kept, line)
			missing = append(missing, line)
		}
	}

	plan := &pendingEvent{
		event: evt.WithLines(kept),
		lines: exchange.LineStats{
			Original: len(evt.Lines),
			Sent:     len(kept),
			Dropped:  len(evt.Lines) - len(kept),
		},
	}

	seen := make(map[string]bool, len(missing))
	for _, line := range missing {
		key := catalog.NormalizeKey(line.ItemName())
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		spec := s.itemSpec(evt.ID, line, len(plan.creates))
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		plan.creates = append(plan.creates, spec)
	}
	return plan, nil
}

// itemSpec fills an item creation request from the line and the default mappings
func (s *Service) itemSpec(eventID string, line ledger.Line, ordinal int) qbxml.ItemSpec {
	name := line.ItemName()
	salesDesc := firstNonEmpty(line.SalesDescription, line.SKU, name)
	return qbxml.ItemSpec{
		RequestID:           qbxml.NewItemRequestID(eventID, name, ordinal),
		FullName:            name,
		SKU:                 strings.TrimSpace(line.SKU),
		IncomeAccount:       firstNonEmpty(line.IncomeAccount, s.cfg.ItemAccounts.Income),
		COGSAccount:         firstNonEmpty(line.COGSAccount, s.cfg.ItemAccounts.COGS),
		AssetAccount:        firstNonEmpty(line.AssetAccount, s.cfg.ItemAccounts.Asset),
		SalesDescription:    salesDesc,
		PurchaseDescription: firstNonEmpty(line.PurchaseDescription, salesDesc),
		SalesPrice:          line.SalesPrice.String(),
		PurchaseCost:        line.PurchaseCost.String(),
		IsActive:            line.IsActive,
	}
}

// sendItemCreate sends the next queued item creation of the pending event
func (s *Service) sendItemCreate(ctx context.Context, sess *session, req request) (string, error) {
	p := sess.pending
	spec := p.creates[0]
	xml, err := qbxml.BuildItemCreate(spec, req.version)
	if err != nil {
		return "", err
	}
	p.creates = p.creates[1:]

	entryID := s.record(ctx, exchange.Entry{
		Ticket:           sess.ticket,
		Kind:             exchange.KindItemCreate,
		EventID:          p.event.ID,
		RequestID:        spec.RequestID,
		Version:          req.version.String(),
		RequestedVersion: req.requested,
		Request:          xml,
	})
	sess.phase = itemCreatePhase{
		eventID: p.event.ID,
		txnKind: p.event.TargetTxnKind(),
		spec:    spec,
		entryID: entryID,
	}
	sess.lastError = ""
	s.metrics.RecordRequest(ctx, exchange.KindItemCreate.String())
	s.log(ctx, sess.ticket).Info("Sending item create",
		zap.String("event_id", p.event.ID),
		zap.String("item", spec.FullName),
		zap.Int("remaining_creates", len(p.creates)),
	)
	return xml, nil
}

// sendEvent sends the transaction request for evt
func (s *Service) sendEvent(ctx context.Context, sess *session, evt ledger.Event, lines exchange.LineStats, req request) (string, error) {
	xml, err := qbxml.Build(evt, req.version, s.cfg.AdjustmentAccount)
	if err != nil {
		return "", err
	}

	entryID := s.record(ctx, exchange.Entry{
		Ticket:           sess.ticket,
		Kind:             exchange.KindEvent,
		EventID:          evt.ID,
		RequestID:        evt.ID,
		Version:          req.version.String(),
		RequestedVersion: req.requested,
		Lines:            lines,
		Request:          xml,
	})
	sess.phase = eventPhase{eventID: evt.ID, txnKind: evt.TargetTxnKind(), entryID: entryID}
	sess.lastError = ""
	s.metrics.RecordRequest(ctx, exchange.KindEvent.String())
	s.log(ctx, sess.ticket).Info("Sending event",
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Kind.String()),
		zap.String("qbxml_version", req.version.String()),
		zap.Int("lines", lines.Sent),
		zap.Int("dropped_lines", lines.Dropped),
	)
	return xml, nil
}

// reportBuildError fails evt without retry and clears any state it held
func (s *Service) reportBuildError(ctx context.Context, sess *session, evt ledger.Event, cause error) {
	log := s.log(ctx, sess.ticket).With(zap.String("event_id", evt.ID))
	msg := fmt.Sprintf("sendRequestXML build error: %v", cause)
	if err := s.apply(ctx, ledger.Failed(evt.ID, sess.ticket, evt.TargetTxnKind(), ledger.ErrorCodeBuild, msg, false)); err != nil {
		log.Error("Failed to report build error", zap.Error(err))
	}
	s.metrics.RecordOutcome(ctx, exchange.KindEvent.String(), telemetry.ResultFailure, ledger.ErrorCodeBuild)

	sess.pending = nil
	sess.phase = nil
	sess.lastError = fmt.Sprintf("sendRequestXML build error for event %s: %v", evt.ID, cause)
	log.Warn("Event rejected before sending",
		zap.Bool("domain_error", shared.IsBuildError(cause)),
		zap.Error(cause),
	)
}
