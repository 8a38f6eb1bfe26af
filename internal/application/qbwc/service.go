// Package qbwc is the QuickBooks Web Connector protocol engine. It owns the
// per-ticket sessions, decides which qbXML request to hand out on each
// sendRequestXML call, and turns each receiveResponseXML into a ledger
// outcome.
package qbwc

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/logger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/telemetry"
)

// Web Connector method names, as they appear in SOAP bodies
const (
	MethodServerVersion       = "serverVersion"
	MethodClientVersion       = "clientVersion"
	MethodAuthenticate        = "authenticate"
	MethodSendRequestXML      = "sendRequestXML"
	MethodReceiveResponseXML  = "receiveResponseXML"
	MethodGetLastError        = "getLastError"
	MethodCloseConnection     = "closeConnection"
	MethodConnectionError     = "connectionError"
	MethodGetInteractiveURL   = "getInteractiveURL"
	MethodInteractiveRejected = "interactiveRejected"
)

// Fixed protocol answers
const (
	InvalidUser    = "nvu"
	NoErrorMessage = "No error recorded."
	CloseOK        = "OK"
	Done           = "done"

	progressDone    = 100
	progressPending = 0
)

// Catalog is the item catalog the engine filters event lines against
type Catalog interface {
	Mode() catalog.Mode
	EnsureReady(ctx context.Context) (catalog.KeySet, error)
	IsFresh() bool
	Remember(ctx context.Context, name string)
	ReplaceAll(ctx context.Context, names []string) error
	Status(sample int) catalog.Status
}

var _ Catalog = (*catalog.Cache)(nil)

// ItemAccounts are the default account mappings for auto-created items
type ItemAccounts struct {
	Income string
	COGS   string
	Asset  string
}

// Config holds the engine settings
type Config struct {
	Username         string
	Password         string
	PasswordHash     string
	CompanyFile      string
	ServerVersion    string
	MinClientVersion string

	QBXMLVersion      qbxml.Version
	AdjustmentAccount string
	BatchSize         int
	AutoCreateItems   bool
	ItemAccounts      ItemAccounts

	PageSize         int
	QueryMode        qbxml.QueryMode
	FallbackHResults []string

	SessionTTL time.Duration
}

// Service is the protocol engine
type Service struct {
	cfg      Config
	queue    ledger.Queue
	catalog  Catalog
	sessions *sessionStore
	catSync  *catalogSync
	journal  exchange.Journal
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
	ticket   func() string
}

// Option configures a Service
type Option func(*Service)

// WithJournal records every request sent and its outcome
func WithJournal(j exchange.Journal) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithMetrics sets the sync instruments
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets a custom logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTicketGenerator overrides how session tickets are minted
func WithTicketGenerator(gen func() string) Option {
	return func(s *Service) {
		s.ticket = gen
	}
}

// NewService creates a new protocol engine
func NewService(cfg Config, queue ledger.Queue, cat Catalog, opts ...Option) *Service {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.QBXMLVersion == (qbxml.Version{}) {
		cfg.QBXMLVersion = qbxml.DefaultVersion
	}
	if cfg.QueryMode == "" {
		cfg.QueryMode = qbxml.QueryModeInventory
	}

	s := &Service{
		cfg:     cfg,
		queue:   queue,
		catalog: cat,
		catSync: newCatalogSync(cfg.QueryMode, cfg.FallbackHResults),
		logger:  zap.NewNop(),
		now:     time.Now,
		ticket:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = newSessionStore(s.now)
	return s
}

// observe starts a span for a Web Connector call and returns the function
// that ends it and records its latency
func (s *Service) observe(ctx context.Context, method string) (context.Context, func()) {
	start := s.now()
	ctx, span := telemetry.StartServiceSpan(ctx, "qbwc", method, telemetry.AttrMethod.String(method))
	return ctx, func() {
		s.metrics.RecordCall(ctx, method, s.now().Sub(start))
		span.End()
	}
}

// log returns the request logger scoped to ticket
func (s *Service) log(ctx context.Context, ticket string) *zap.Logger {
	l := logger.WithTraceContext(ctx, logger.FromContextOr(ctx, s.logger))
	return l.With(logger.TicketField(ticket))
}

// ServerVersion returns the configured server version string
func (s *Service) ServerVersion(ctx context.Context) string {
	_, end := s.observe(ctx, MethodServerVersion)
	defer end()
	return s.cfg.ServerVersion
}

// ClientVersion returns "" to accept the Web Connector or a "W:" upgrade warning
func (s *Service) ClientVersion(ctx context.Context, version string) string {
	_, end := s.observe(ctx, MethodClientVersion)
	defer end()

	warning := clientVersionWarning(version, s.cfg.MinClientVersion)
	if warning != "" {
		s.logger.Warn("Web Connector below minimum version",
			zap.String("client_version", version),
			zap.String("min_version", s.cfg.MinClientVersion),
		)
	}
	return warning
}

// Authenticate checks the Web Connector credentials. On success it opens a
// session and returns [ticket, companyFile]; otherwise ["nvu", ""].
func (s *Service) Authenticate(ctx context.Context, username, password string) []string {
	ctx, end := s.observe(ctx, MethodAuthenticate)
	defer end()

	if !s.credentialsMatch(username, password) {
		s.logger.Warn("Web Connector authentication rejected", zap.String("username", strings.TrimSpace(username)))
		return []string{InvalidUser, ""}
	}

	ticket := s.ticket()
	s.sessions.open(ticket)
	s.metrics.SessionOpened(ctx)
	s.log(ctx, ticket).Info("Web Connector session opened")
	return []string{ticket, s.cfg.CompanyFile}
}

func (s *Service) credentialsMatch(username, password string) bool {
	expectedUser := s.cfg.Username
	if expectedUser == "" || (s.cfg.Password == "" && s.cfg.PasswordHash == "") {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(expectedUser)) == 1

	password = strings.TrimSpace(password)
	var passOK bool
	if s.cfg.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.cfg.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) == 1
	}
	return userOK && passOK
}

// GetLastError returns the last error recorded for ticket
func (s *Service) GetLastError(ctx context.Context, ticket string) string {
	_, end := s.observe(ctx, MethodGetLastError)
	defer end()

	sess, ok := s.sessions.get(strings.TrimSpace(ticket))
	if !ok {
		return NoErrorMessage
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.lastError == "" {
		return NoErrorMessage
	}
	return sess.lastError
}

// CloseConnection discards the session for ticket
func (s *Service) CloseConnection(ctx context.Context, ticket string) string {
	ctx, end := s.observe(ctx, MethodCloseConnection)
	defer end()

	ticket = strings.TrimSpace(ticket)
	if sess, ok := s.sessions.remove(ticket); ok {
		s.discard(ctx, sess)
		s.log(ctx, ticket).Info("Web Connector session closed")
	}
	return CloseOK
}

// discard drops a session that has left the table
func (s *Service) discard(ctx context.Context, sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if _, ok := sess.phase.(catalogQueryPhase); ok {
		s.catSync.reset()
	}
	sess.phase = nil
	sess.pending = nil
	s.metrics.SessionClosed(ctx)
}

// ConnectionError handles the Web Connector reporting that it could not
// reach QuickBooks. Any outstanding event is failed as retryable.
func (s *Service) ConnectionError(ctx context.Context, ticket, hresult, message string) string {
	ctx, end := s.observe(ctx, MethodConnectionError)
	defer end()

	sess, ok := s.sessions.get(strings.TrimSpace(ticket))
	if !ok {
		return Done
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	msg := firstNonEmpty(message, "QuickBooks connection error.")
	hresult = strings.TrimSpace(hresult)
	log := s.log(ctx, sess.ticket)

	switch ph := sess.phase.(type) {
	case catalogQueryPhase:
		s.catSync.reset()
		s.complete(ctx, ph.entryID, exchange.Outcome{StatusCode: ledger.ErrorCodeConnection, Message: msg, HResult: hresult})
	case itemCreatePhase:
		s.failInFlight(ctx, sess, ph, ph.eventID, ph.txnKind, hresult, msg)
	case eventPhase:
		s.failInFlight(ctx, sess, ph, ph.eventID, ph.txnKind, hresult, msg)
	}

	log.Warn("Web Connector connection error", zap.String("hresult", hresult), zap.String("message", msg))
	sess.phase = nil
	sess.lastError = msg
	return Done
}

func (s *Service) failInFlight(ctx context.Context, sess *session, ph phase, eventID, txnKind, hresult, msg string) {
	code := firstNonEmpty(hresult, ledger.ErrorCodeConnection)
	s.complete(ctx, ph.entry(), exchange.Outcome{StatusCode: code, Message: msg, HResult: hresult})
	s.metrics.RecordOutcome(ctx, ph.kind().String(), telemetry.ResultFailure, code)
	if err := s.apply(ctx, ledger.Failed(eventID, sess.ticket, txnKind, code, msg, true)); err != nil {
		s.log(ctx, sess.ticket).Error("Failed to report connection error", zap.String("event_id", eventID), zap.Error(err))
	}
	sess.clearPendingFor(eventID)
}

// GetInteractiveURL returns "": interactive mode is not supported
func (s *Service) GetInteractiveURL(ctx context.Context) string {
	_, end := s.observe(ctx, MethodGetInteractiveURL)
	defer end()
	return ""
}

// InteractiveRejected acknowledges a declined interactive session
func (s *Service) InteractiveRejected(ctx context.Context, _ string) string {
	_, end := s.observe(ctx, MethodInteractiveRejected)
	defer end()
	return Done
}

// SessionCount returns the number of open sessions
func (s *Service) SessionCount() int {
	return s.sessions.count()
}

// ReapExpired closes sessions idle longer than the configured TTL and
// returns how many were closed
func (s *Service) ReapExpired(ctx context.Context) int {
	expired := s.sessions.expire(s.cfg.SessionTTL)
	for _, sess := range expired {
		s.discard(ctx, sess)
		s.log(ctx, sess.ticket).Info("Web Connector session expired")
	}
	return len(expired)
}

// RunJanitor reaps expired sessions every interval until ctx is done
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.cfg.SessionTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ReapExpired(ctx); n > 0 {
				s.logger.Debug("Reaped expired sessions", zap.Int("count", n))
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
