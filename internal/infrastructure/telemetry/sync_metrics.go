package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result labels for SyncMetrics.RecordOutcome
const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDuplicate = "duplicate"
	ResultFallback  = "fallback"
)

// SyncMetrics holds the instruments the protocol engine reports to.
type SyncMetrics struct {
	calls          *Histogram
	requests       *Counter
	outcomes       *Counter
	sessions       *UpDownCounter
	catalogItems   *Gauge
	catalogRefresh *Counter
}

// NewSyncMetrics creates the sync instrument set on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	var (
		m   SyncMetrics
		err error
	)
	if m.calls, err = NewHistogram(meter, "qbsync_qbwc_call_duration",
		"Duration of Web Connector method calls", "s", CallDurationBuckets...); err != nil {
		return nil, err
	}
	if m.requests, err = NewCounter(meter, "qbsync_requests_sent_total",
		"qbXML requests handed to the Web Connector", "{requests}"); err != nil {
		return nil, err
	}
	if m.outcomes, err = NewCounter(meter, "qbsync_request_outcomes_total",
		"Outcomes of qbXML requests", "{responses}"); err != nil {
		return nil, err
	}
	if m.sessions, err = NewUpDownCounter(meter, "qbsync_sessions_open",
		"Open Web Connector sessions", "{sessions}"); err != nil {
		return nil, err
	}
	if m.catalogItems, err = NewGauge(meter, "qbsync_catalog_items",
		"Item names in the catalog cache", "{items}"); err != nil {
		return nil, err
	}
	if m.catalogRefresh, err = NewCounter(meter, "qbsync_catalog_refresh_total",
		"Catalog loads and live query cycles", "{refreshes}"); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordCall records the latency of one Web Connector method.
func (m *SyncMetrics) RecordCall(ctx context.Context, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.RecordDuration(ctx, d, AttrMethod.String(method))
}

// RecordRequest counts a qbXML request sent.
func (m *SyncMetrics) RecordRequest(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.requests.Inc(ctx, AttrRequestKind.String(kind))
}

// RecordOutcome counts the result of a request; code is empty on success.
func (m *SyncMetrics) RecordOutcome(ctx context.Context, kind, result, code string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrRequestKind.String(kind), AttrResult.String(result)}
	if code != "" {
		attrs = append(attrs, AttrErrorCode.String(code))
	}
	m.outcomes.Inc(ctx, attrs...)
}

// SessionOpened increments the open session count.
func (m *SyncMetrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

// SessionClosed decrements the open session count.
func (m *SyncMetrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, -1)
}

// RecordCatalog records a completed catalog load and its size.
func (m *SyncMetrics) RecordCatalog(ctx context.Context, mode string, items int) {
	if m == nil {
		return
	}
	m.catalogRefresh.Inc(ctx, AttrCatalogMode.String(mode))
	m.catalogItems.Record(ctx, int64(items), AttrCatalogMode.String(mode))
}
