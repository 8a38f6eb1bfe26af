package qbwc

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func sequentialTickets() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("ticket-%04d", n.Add(1))
	}
}

func TestService_ServerAndClientVersion(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MinClientVersion = "2.3.0.20"
	svc := NewService(cfg, newScriptedQueue(), liveCache(t, "POT-9"))

	assert.Equal(t, "190Group-QBWC-0.1.0", svc.ServerVersion(ctx))
	assert.Empty(t, svc.ClientVersion(ctx, "2.3.0.215"))
	assert.Equal(t, "W:Please upgrade QuickBooks Web Connector to at least 2.3.0.20.", svc.ClientVersion(ctx, "2.2.0.80"))
}

func TestService_Authenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		mutate   func(*Config)
		username string
		password string
		wantOK   bool
	}{
		{name: "valid credentials", username: testUser, password: testPassword, wantOK: true},
		{name: "surrounding whitespace ignored", username: " qbsync ", password: " s3cret ", wantOK: true},
		{name: "wrong password", username: testUser, password: "nope"},
		{name: "wrong user", username: "admin", password: testPassword},
		{name: "empty credentials", username: "", password: ""},
		{
			name:     "no configured user rejects everyone",
			mutate:   func(c *Config) { c.Username = "" },
			username: "",
			password: testPassword,
		},
		{
			name:     "bcrypt hash accepted",
			mutate:   func(c *Config) { c.Password = ""; c.PasswordHash = string(hash) },
			username: testUser,
			password: "hashed-pw",
			wantOK:   true,
		},
		{
			name:     "bcrypt hash wins over plain password",
			mutate:   func(c *Config) { c.PasswordHash = string(hash) },
			username: testUser,
			password: testPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			svc := NewService(cfg, newScriptedQueue(), liveCache(t, "POT-9"),
				WithTicketGenerator(func() string { return testTicket }))

			got := svc.Authenticate(context.Background(), tt.username, tt.password)
			if tt.wantOK {
				assert.Equal(t, []string{testTicket, cfg.CompanyFile}, got)
				assert.Equal(t, 1, svc.SessionCount())
			} else {
				assert.Equal(t, []string{InvalidUser, ""}, got)
				assert.Zero(t, svc.SessionCount())
			}
		})
	}
}

func TestService_AuthenticateMintsDistinctTickets(t *testing.T) {
	svc := NewService(testConfig(), newScriptedQueue(), liveCache(t, "POT-9"))

	first := svc.Authenticate(context.Background(), testUser, testPassword)
	second := svc.Authenticate(context.Background(), testUser, testPassword)
	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0], second[0])
	assert.Len(t, first[0], 36)
	assert.Equal(t, 2, svc.SessionCount())
}

func TestService_UnknownTicket(t *testing.T) {
	ctx := context.Background()
	q := newScriptedQueue(transferEvent("evt_100"))
	svc := NewService(testConfig(), q, liveCache(t, "Supplies:Fertilizer 10-10-10", "POT-9"))

	assert.Empty(t, svc.SendRequestXML(ctx, SendRequestInput{Ticket: "forged"}))
	assert.Equal(t, 100, svc.ReceiveResponseXML(ctx, ReceiveResponseInput{Ticket: "forged", Response: "<QBXML/>"}))
	assert.Equal(t, NoErrorMessage, svc.GetLastError(ctx, "forged"))
	assert.Equal(t, Done, svc.ConnectionError(ctx, "forged", "0x1", "boom"))
	assert.Equal(t, CloseOK, svc.CloseConnection(ctx, "forged"))

	assert.Empty(t, q.marked)
	assert.Empty(t, q.Results())
	assert.Zero(t, svc.SessionCount())
}

func TestService_InteractiveMode(t *testing.T) {
	ctx := context.Background()
	svc := NewService(testConfig(), newScriptedQueue(), liveCache(t, "POT-9"))

	assert.Empty(t, svc.GetInteractiveURL(ctx))
	assert.Equal(t, Done, svc.InteractiveRejected(ctx, "user declined"))
}

func TestService_CloseConnection(t *testing.T) {
	ctx := context.Background()
	q := newScriptedQueue(transferEvent("evt_100"))
	svc := openSession(t, testConfig(), q, liveCache(t, "Supplies:Fertilizer 10-10-10", "POT-9"))

	require.NotEmpty(t, send(svc))
	assert.Equal(t, CloseOK, svc.CloseConnection(ctx, testTicket))
	assert.Zero(t, svc.SessionCount())

	// a late response for the closed ticket is ignored
	assert.Equal(t, 100, receive(svc, statusResponse("TransferInventoryAddRs", "0", "Info", "OK", "TxnID", "T1")))
	assert.Empty(t, q.Results())
	assert.Equal(t, CloseOK, svc.CloseConnection(ctx, testTicket))
}

func TestService_CloseConnectionResetsCatalogCycle(t *testing.T) {
	ctx := context.Background()
	svc := openSession(t, testConfig(), newScriptedQueue(), liveCache(t))

	require.Contains(t, send(svc), `iterator="Start"`)
	assert.True(t, svc.CatalogStatus(0).QueryInProgress)

	svc.CloseConnection(ctx, testTicket)
	assert.False(t, svc.CatalogStatus(0).QueryInProgress)
}

func TestService_ReapExpired(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	svc := NewService(testConfig(), newScriptedQueue(), liveCache(t, "POT-9"),
		WithClock(clock.Now),
		WithTicketGenerator(sequentialTickets()),
	)

	stale := svc.Authenticate(ctx, testUser, testPassword)[0]
	clock.Advance(20 * time.Minute)
	active := svc.Authenticate(ctx, testUser, testPassword)[0]
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, svc.ReapExpired(ctx))
	assert.Equal(t, 1, svc.SessionCount())

	// the reaped ticket behaves as unknown
	assert.Empty(t, svc.SendRequestXML(ctx, SendRequestInput{Ticket: stale}))
	assert.Equal(t, NoErrorMessage, svc.GetLastError(ctx, active))

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 1, svc.ReapExpired(ctx))
	assert.Zero(t, svc.SessionCount())
}

func TestService_ActivityKeepsSessionAlive(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	svc := openSession(t, testConfig(), newScriptedQueue(), liveCache(t, "POT-9"), WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		clock.Advance(20 * time.Minute)
		svc.GetLastError(ctx, testTicket)
		assert.Zero(t, svc.ReapExpired(ctx))
	}
	assert.Equal(t, 1, svc.SessionCount())
}

func TestService_RunJanitor(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTTL = time.Millisecond
	svc := openSession(t, cfg, newScriptedQueue(), liveCache(t, "POT-9"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return svc.SessionCount() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestService_RunJanitorDisabledWithoutTTL(t *testing.T) {
	cfg := testConfig()
	cfg.SessionTTL = 0
	svc := NewService(cfg, newScriptedQueue(), liveCache(t, "POT-9"))

	done := make(chan struct{})
	go func() {
		svc.RunJanitor(context.Background(), time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor should return immediately without a TTL")
	}
}

func TestService_Diagnostics(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.AutoCreateItems = true
	journal := &memJournal{}
	q := newScriptedQueue(transferEvent("evt_1"), transferEvent("evt_2"))
	svc := openSession(t, cfg, q, liveCache(t, "Supplies:Fertilizer 10-10-10", "POT-9"), WithJournal(journal))

	require.NotEmpty(t, send(svc))
	receive(svc, statusResponse("TransferInventoryAddRs", "0", "Info", "OK", "TxnID", "T1"))
	require.NotEmpty(t, send(svc))

	d := svc.Diagnostics(ctx, 1)
	assert.Equal(t, 1, d.Sessions)
	assert.True(t, d.Catalog.AutoCreateItems)
	assert.False(t, d.Catalog.QueryInProgress)
	assert.Equal(t, "inventory", d.Catalog.QueryMode)
	require.Len(t, d.Recent, 1)
	assert.Equal(t, "evt_2", d.Recent[0].EventID)
	assert.Nil(t, d.Recent[0].Outcome)
}

func TestService_DiagnosticsWithoutJournal(t *testing.T) {
	svc := NewService(testConfig(), newScriptedQueue(), liveCache(t, "POT-9"))

	d := svc.Diagnostics(context.Background(), 20)
	assert.Zero(t, d.Sessions)
	assert.NotNil(t, d.Recent)
	assert.Empty(t, d.Recent)
}
