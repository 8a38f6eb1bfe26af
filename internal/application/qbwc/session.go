package qbwc

import (
	"sync"
	"time"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/exchange"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/qbxml"
)

// phase is what a session is waiting on. A nil phase is idle.
type phase interface {
	kind() exchange.Kind
	entry() uint64
}

// catalogQueryPhase: one catalog page request is outstanding
type catalogQueryPhase struct {
	entryID uint64
}

func (catalogQueryPhase) kind() exchange.Kind { return exchange.KindCatalogQuery }
func (p catalogQueryPhase) entry() uint64     { return p.entryID }

// itemCreatePhase: an ItemInventoryAdd for the pending event is outstanding
type itemCreatePhase struct {
	eventID string
	txnKind string
	spec    qbxml.ItemSpec
	entryID uint64
}

func (itemCreatePhase) kind() exchange.Kind { return exchange.KindItemCreate }
func (p itemCreatePhase) entry() uint64     { return p.entryID }

// eventPhase: the transaction request for one ledger event is outstanding
type eventPhase struct {
	eventID string
	txnKind string
	entryID uint64
}

func (eventPhase) kind() exchange.Kind { return exchange.KindEvent }
func (p eventPhase) entry() uint64     { return p.entryID }

// pendingEvent is an event held back until its missing items exist
type pendingEvent struct {
	event   ledger.Event
	lines   exchange.LineStats
	creates []qbxml.ItemSpec
}

// session is the per-ticket conversation state. mu serializes calls for one
// ticket; the Web Connector never overlaps them but nothing else enforces it.
type session struct {
	mu        sync.Mutex
	ticket    string
	phase     phase
	pending   *pendingEvent
	lastError string
	openedAt  time.Time
	lastSeen  time.Time
}

// clearPendingFor drops the pending event when it is eventID
func (s *session) clearPendingFor(eventID string) {
	if s.pending != nil && s.pending.event.ID == eventID {
		s.pending = nil
	}
}

// sessionStore is the shared ticket table
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func newSessionStore(now func() time.Time) *sessionStore {
	return &sessionStore{sessions: make(map[string]*session), now: now}
}

func (st *sessionStore) open(ticket string) *session {
	now := st.now()
	sess := &session{ticket: ticket, openedAt: now, lastSeen: now}

	st.mu.Lock()
	st.sessions[ticket] = sess
	st.mu.Unlock()
	return sess
}

// get returns the session for ticket and marks it as seen
func (st *sessionStore) get(ticket string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[ticket]
	if ok {
		sess.lastSeen = st.now()
	}
	return sess, ok
}

func (st *sessionStore) remove(ticket string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[ticket]
	if ok {
		delete(st.sessions, ticket)
	}
	return sess, ok
}

// expire removes and returns sessions not seen within ttl
func (st *sessionStore) expire(ttl time.Duration) []*session {
	if ttl <= 0 {
		return nil
	}
	cutoff := st.now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*session
	for ticket, sess := range st.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(st.sessions, ticket)
			out = append(out, sess)
		}
	}
	return out
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
