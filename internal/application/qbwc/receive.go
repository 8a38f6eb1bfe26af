package qbwc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/telemetry"
)

const (
	hresultFailureMessage = "QuickBooks returned HResult failure."
	qbErrorMessage        = "QuickBooks reported an error."
	fallbackNotice        = "[Auto-fallback enabled: switching QB item pull to ItemQueryRq compatibility mode.]"
)

// ReceiveResponseInput carries the receiveResponseXML arguments
type ReceiveResponseInput struct {
	Ticket   string
	Response string
	HResult  string
	Message  string
}

// ReceiveResponseXML consumes QuickBooks' answer to the outstanding request
// and returns the completion percentage: 0 asks the Web Connector to call
// sendRequestXML again, 100 ends the cycle.
func (s *Service) ReceiveResponseXML(ctx context.Context, in ReceiveResponseInput) int {
	ctx, end := s.observe(ctx, MethodReceiveResponseXML)
	defer end()

	sess, ok := s.sessions.get(strings.TrimSpace(in.Ticket))
	if !ok {
		s.log(ctx, in.Ticket).Warn("receiveResponseXML for unknown ticket")
		return progressDone
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	in.HResult = strings.TrimSpace(in.HResult)
	current := sess.phase
	sess.phase = nil

	switch ph := current.(type) {
	case catalogQueryPhase:
		return s.receiveCatalogPage(ctx, sess, ph, in)
	case itemCreatePhase:
		return s.receiveItemCreate(ctx, sess, ph, in)
	case eventPhase:
		return s.receiveEvent(ctx, sess, ph, in)
	default:
		return progressDone
	}
}

func (s *Service) receiveCatalogPage(ctx context.Context, sess *session, ph catalogQueryPhase, in ReceiveResponseInput) int {
	log := s.log(ctx, sess.ticket)
	kind := exchange.KindCatalogQuery.String()

	if in.HResult != "" {
		msg := firstNonEmpty(in.Message, hresultFailureMessage)
		s.complete(ctx, ph.entryID, exchange.Outcome{StatusCode: in.HResult, Message: msg, HResult: in.HResult})
		if s.catSync.abort(in.HResult) {
			sess.lastError = msg + " " + fallbackNotice
			s.metrics.RecordOutcome(ctx, kind, telemetry.ResultFallback, in.HResult)
			log.Warn("Catalog query unsupported, switching to compatibility query", zap.String("hresult", in.HResult))
			return progressPending
		}
		sess.lastError = msg
		s.metrics.RecordOutcome(ctx, kind, telemetry.ResultFailure, in.HResult)
		log.Warn("Catalog query failed", zap.String("hresult", in.HResult), zap.String("message", msg))
		return s.progress(ctx)
	}

	page, err := qbxml.ParseItemPage(in.Response)
	if err != nil {
		return s.failCatalogCycle(ctx, sess, ph, page.Status.Code, err)
	}

	names, done := s.catSync.accept(page)
	if !done {
		s.complete(ctx, ph.entryID, exchange.Outcome{Success: true, StatusCode: page.Status.Code, Message: page.Status.Message, Response: in.Response})
		sess.lastError = ""
		log.Debug("Catalog page received",
			zap.Int("items", len(page.Names)),
			zap.Int("remaining", page.Remaining),
		)
		return progressPending
	}

	if len(names) == 0 {
		return s.failCatalogCycle(ctx, sess, ph, page.Status.Code,
			fmt.Errorf("QuickBooks %s returned zero inventory-part items", s.catSync.queryMode()))
	}
	if err := s.catalog.ReplaceAll(ctx, names); err != nil {
		return s.failCatalogCycle(ctx, sess, ph, page.Status.Code, err)
	}

	s.complete(ctx, ph.entryID, exchange.Outcome{Success: true, StatusCode: page.Status.Code, Message: page.Status.Message, Response: in.Response})
	s.metrics.RecordOutcome(ctx, kind, telemetry.ResultSuccess, "")
	s.metrics.RecordCatalog(ctx, catalog.ModeLive.String(), len(names))
	sess.lastError = ""
	log.Info("Catalog refreshed from QuickBooks", zap.Int("items", len(names)))
	return s.progress(ctx)
}

// failCatalogCycle abandons the query cycle; the cache keeps its previous contents
func (s *Service) failCatalogCycle(ctx context.Context, sess *session, ph catalogQueryPhase, code string, err error) int {
	s.catSync.reset()
	s.complete(ctx, ph.entryID, exchange.Outcome{StatusCode: code, Message: err.Error()})
	s.metrics.RecordOutcome(ctx, exchange.KindCatalogQuery.String(), telemetry.ResultFailure, code)
	sess.lastError = fmt.Sprintf("receiveResponseXML item query error: %v", err)
	s.log(ctx, sess.ticket).Error("Catalog query cycle failed", zap.Error(err))
	return s.progress(ctx)
}

func (s *Service) receiveItemCreate(ctx context.Context, sess *session, ph itemCreatePhase, in ReceiveResponseInput) int {
	log := s.log(ctx, sess.ticket).With(zap.String("event_id", ph.eventID), zap.String("item", ph.spec.FullName))
	kind := exchange.KindItemCreate.String()

	if in.HResult != "" {
		msg := firstNonEmpty(in.Message, hresultFailureMessage)
		s.complete(ctx, ph.entryID, exchange.Outcome{StatusCode: in.HResult, Message: msg, HResult: in.HResult})
		s.failEvent(ctx, sess, ph.eventID, ph.txnKind, in.HResult, msg, kind)
		sess.pending = nil
		return s.progress(ctx)
	}

	status := qbxml.Parse(in.Response)
	s.complete(ctx, ph.entryID, exchange.Outcome{
		Success:    status.Success || status.IsDuplicateName(),
		StatusCode: status.Code,
		Message:    status.Message,
		TxnID:      status.TxnID,
		Response:   in.Response,
	})

	if status.Success || status.IsDuplicateName() {
		s.catalog.Remember(ctx, ph.spec.FullName)
		result := telemetry.ResultSuccess
		if !status.Success {
			result = telemetry.ResultDuplicate
		}
		s.metrics.RecordOutcome(ctx, kind, result, "")
		sess.lastError = ""
		log.Info("Item available in QuickBooks", zap.String("result", result))
		if sess.pending != nil {
			return progressPending
		}
		return s.progress(ctx)
	}

	s.failEvent(ctx, sess, ph.eventID, ph.txnKind, status.Code, firstNonEmpty(status.Message, qbErrorMessage), kind)
	sess.pending = nil
	return s.progress(ctx)
}

func (s *Service) receiveEvent(ctx context.Context, sess *session, ph eventPhase, in ReceiveResponseInput) int {
	defer sess.clearPendingFor(ph.eventID)
	kind := exchange.KindEvent.String()

	if in.HResult != "" {
		msg := firstNonEmpty(in.Message, hresultFailureMessage)
		s.complete(ctx, ph.entryID, exchange.Outcome{StatusCode: in.HResult, Message: msg, HResult: in.HResult})
		s.failEvent(ctx, sess, ph.eventID, ph.txnKind, in.HResult, msg, kind)
		return s.progress(ctx)
	}

	status := qbxml.Parse(in.Response)
	txnKind := firstNonEmpty(status.TxnKind, ph.txnKind)
	s.complete(ctx, ph.entryID, exchange.Outcome{
		Success:    status.Success,
		StatusCode: status.Code,
		Message:    status.Message,
		TxnID:      status.TxnID,
		Response:   in.Response,
	})

	if !status.Success {
		s.failEvent(ctx, sess, ph.eventID, txnKind, status.Code, firstNonEmpty(status.Message, qbErrorMessage), kind)
		return s.progress(ctx)
	}

	log := s.log(ctx, sess.ticket).With(zap.String("event_id", ph.eventID))
	if err := s.apply(ctx, ledger.Succeeded(ph.eventID, sess.ticket, status.TxnID, txnKind)); err != nil {
		sess.lastError = fmt.Sprintf("receiveResponseXML error: %v", err)
		log.Error("Failed to report event success", zap.Error(err))
		return s.progress(ctx)
	}
	s.metrics.RecordOutcome(ctx, kind, telemetry.ResultSuccess, "")
	sess.lastError = ""
	log.Info("Event applied in QuickBooks",
		zap.String("txn_id", status.TxnID),
		zap.String("txn_type", txnKind),
	)
	return s.progress(ctx)
}

// failEvent reports a retryable failure for eventID and records it as the
// session's last error
func (s *Service) failEvent(ctx context.Context, sess *session, eventID, txnKind, code, msg, kind string) {
	log := s.log(ctx, sess.ticket).With(zap.String("event_id", eventID))
	s.metrics.RecordOutcome(ctx, kind, telemetry.ResultFailure, code)
	sess.lastError = msg
	if err := s.apply(ctx, ledger.Failed(eventID, sess.ticket, txnKind, code, msg, true)); err != nil {
		sess.lastError = fmt.Sprintf("receiveResponseXML error: %v", err)
		log.Error("Failed to report event failure", zap.Error(err))
		return
	}
	log.Warn("QuickBooks rejected request",
		zap.String("request_kind", kind),
		zap.String("status_code", code),
		zap.String("message", msg),
	)
}

// progress returns 0 while the ledger still has pending events, else 100
func (s *Service) progress(ctx context.Context) int {
	events, err := s.queue.NextPending(ctx, 1)
	if err != nil {
		s.logger.Warn("Failed to check for pending events", zap.Error(err))
		return progressDone
	}
	if len(events) > 0 {
		return progressPending
	}
	return progressDone
}

// apply reports a result to the ledger
func (s *Service) apply(ctx context.Context, result ledger.Result) error {
	return s.queue.ApplyResult(ctx, result)
}

// record journals a sent request; it returns 0 when nothing was recorded
func (s *Service) record(ctx context.Context, entry exchange.Entry) uint64 {
	if s.journal == nil {
		return 0
	}
	entry.SentAt = s.now()
	id, err := s.journal.Record(ctx, entry)
	if err != nil {
		s.logger.Warn("Failed to journal request",
			zap.String("kind", entry.Kind.String()),
			zap.String("event_id", entry.EventID),
			zap.Error(err),
		)
		return 0
	}
	return id
}

// complete attaches an outcome to a journaled request
func (s *Service) complete(ctx context.Context, id uint64, outcome exchange.Outcome) {
	if s.journal == nil || id == 0 {
		return
	}
	if err := s.journal.Complete(ctx, id, outcome); err != nil {
		s.logger.Warn("Failed to journal outcome", zap.Uint64("entry_id", id), zap.Error(err))
	}
}
