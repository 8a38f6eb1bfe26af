package qbwc

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
)

// scriptedQueue is an in-memory ledger: events stay pending until marked in
// flight, and return to pending on a retryable failure
type scriptedQueue struct {
	mu       sync.Mutex
	events   []ledger.Event
	inFlight map[string]string
	marked   []string
	results  []ledger.Result
}

var _ ledger.Queue = (*scriptedQueue)(nil)

func newScriptedQueue(events ...ledger.Event) *scriptedQueue {
	return &scriptedQueue{events: events, inFlight: map[string]string{}}
}

func (q *scriptedQueue) NextPending(_ context.Context, limit int) ([]ledger.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []ledger.Event
	for _, e := range q.events {
		if _, busy := q.inFlight[e.ID]; busy {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *scriptedQueue) MarkInFlight(_ context.Context, eventID, ticket string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight[eventID] = ticket
	q.marked = append(q.marked, eventID)
	return nil
}

func (q *scriptedQueue) ApplyResult(_ context.Context, result ledger.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, result)
	delete(q.inFlight, result.EventID)
	if result.Success || !result.IsRetryable() {
		kept := q.events[:0]
		for _, e := range q.events {
			if e.ID != result.EventID {
				kept = append(kept, e)
			}
		}
		q.events = kept
	}
	return nil
}

func (q *scriptedQueue) Results() []ledger.Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]ledger.Result(nil), q.results...)
}

// MockQueue is a mock implementation of ledger.Queue
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) NextPending(ctx context.Context, limit int) ([]ledger.Event, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.Event), args.Error(1)
}

func (m *MockQueue) MarkInFlight(ctx context.Context, eventID, ticket string) error {
	args := m.Called(ctx, eventID, ticket)
	return args.Error(0)
}

func (m *MockQueue) ApplyResult(ctx context.Context, result ledger.Result) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// memJournal keeps journal entries in memory
type memJournal struct {
	mu      sync.Mutex
	entries []exchange.Entry
}

var _ exchange.Journal = (*memJournal)(nil)

func (j *memJournal) Record(_ context.Context, entry exchange.Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.ID = uint64(len(j.entries) + 1)
	j.entries = append(j.entries, entry)
	return entry.ID, nil
}

func (j *memJournal) Complete(_ context.Context, id uint64, outcome exchange.Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id == 0 || int(id) > len(j.entries) {
		return errors.New("no such entry")
	}
	o := outcome
	j.entries[id-1].Outcome = &o
	return nil
}

func (j *memJournal) Recent(_ context.Context, limit int) ([]exchange.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []exchange.Entry
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	testUser     = "qbsync"
	testPassword = "s3cret"
	testTicket   = "ticket-0001-aaaa"
)

func testConfig() Config {
	return Config{
		Username:          testUser,
		Password:          testPassword,
		CompanyFile:       `C:\QB\190Group.QBW`,
		ServerVersion:     "190Group-QBWC-0.1.0",
		AdjustmentAccount: "Inventory Adjustments",
		BatchSize:         10,
		PageSize:          100,
		FallbackHResults:  []string{"0x80040400"},
		SessionTTL:        30 * time.Minute,
	}
}

// liveCache returns a live-mode cache already holding names
func liveCache(t *testing.T, names ...string) *catalog.Cache {
	t.Helper()
	cache := catalog.NewCache(catalog.ModeLive)
	if len(names) > 0 {
		require.NoError(t, cache.ReplaceAll(context.Background(), names))
	}
	return cache
}

// openSession builds a service and authenticates one session
func openSession(t *testing.T, cfg Config, q ledger.Queue, cat Catalog, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithTicketGenerator(func() string { return testTicket })}, opts...)
	svc := NewService(cfg, q, cat, opts...)
	got := svc.Authenticate(context.Background(), testUser, testPassword)
	require.Equal(t, []string{testTicket, cfg.CompanyFile}, got)
	return svc
}

func send(svc *Service) string {
	return svc.SendRequestXML(context.Background(), SendRequestInput{
		Ticket:     testTicket,
		QBXMLMajor: "13",
		QBXMLMinor: "0",
	})
}

func receive(svc *Service, response string) int {
	return svc.ReceiveResponseXML(context.Background(), ReceiveResponseInput{
		Ticket:   testTicket,
		Response: response,
	})
}

func receiveHResult(svc *Service, hresult, message string) int {
	return svc.ReceiveResponseXML(context.Background(), ReceiveResponseInput{
		Ticket:  testTicket,
		HResult: hresult,
		Message: message,
	})
}

func statusResponse(rs, code, severity, message, idTag, id string) string {
	body := ""
	if idTag != "" {
		body = "<Ret><" + idTag + ">" + id + "</" + idTag + "></Ret>"
	}
	return `<?xml version="1.0" ?><QBXML><QBXMLMsgsRs><` + rs + ` statusCode="` + code +
		`" statusSeverity="` + severity + `" statusMessage="` + message + `">` + body +
		`</` + rs + `></QBXMLMsgsRs></QBXML>`
}

func itemPage(remaining int, iteratorID string, names ...string) string {
	body := ""
	for _, n := range names {
		body += "<ItemInventoryRet><FullName>" + n + "</FullName></ItemInventoryRet>"
	}
	return `<QBXML><QBXMLMsgsRs><ItemInventoryQueryRs statusCode="0" statusSeverity="Info" statusMessage="Status OK"` +
		` iteratorRemainingCount="` + strconv.Itoa(remaining) + `" iteratorID="` + iteratorID + `">` + body +
		`</ItemInventoryQueryRs></QBXMLMsgsRs></QBXML>`
}
