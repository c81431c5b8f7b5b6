package simulator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"payagent/internal/clients/payagent"
	"payagent/internal/errors"
	"payagent/internal/session"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/monitor"
	"payagent/internal/txn/poller"
	"payagent/internal/txn/repository"
	"payagent/internal/txn/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	sim      *Server
	store    *session.Store
	client   *payagent.Client
	repo     *repository.Repository
	poller   *poller.Poller
	monitors *monitor.Manager
	orch     *service.Orchestrator
}

func newStack(t *testing.T) *stack {
	t.Helper()

	sim := New(Config{AgentStep: 60 * time.Millisecond})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(func() {
		srv.Close()
		sim.Close()
	})

	persister, err := session.NewMemoryPersister()
	require.NoError(t, err)
	t.Cleanup(func() { _ = persister.Close() })

	store := session.NewStore(persister)
	client := payagent.NewClient(payagent.ClientConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, store)
	repo := repository.New(client, store)
	p := poller.New(repo, store, poller.Config{QueueInterval: 20 * time.Millisecond, AdaptiveInterval: 20 * time.Millisecond})
	t.Cleanup(p.Close)
	monitors := monitor.NewManager(client, store, repo, nil, monitor.Config{
		Interval:     15 * time.Millisecond,
		Grace:        80 * time.Millisecond,
		PINMinLength: 4,
		PINMaxLength: 6,
	})
	t.Cleanup(monitors.CloseAll)

	return &stack{
		sim:      sim,
		store:    store,
		client:   client,
		repo:     repo,
		poller:   p,
		monitors: monitors,
		orch:     service.NewOrchestrator(client, repo, monitors),
	}
}

func (s *stack) login(t *testing.T) {
	t.Helper()
	_, err := s.client.Login(context.Background(), "admin@example.com", "password")
	require.NoError(t, err)
}

// collectStatuses records the distinct statuses a monitor publishes.
func collectStatuses(s *monitor.Session) func() []domain.Status {
	var mu sync.Mutex
	var seen []domain.Status
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case st := <-s.Updates():
				mu.Lock()
				if st.HasSnapshot && (len(seen) == 0 || seen[len(seen)-1] != st.Status) {
					seen = append(seen, st.Status)
				}
				mu.Unlock()
				if st.Closed {
					return
				}
			case <-s.Done():
				return
			}
		}
	}()

	return func() []domain.Status {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.Status(nil), seen...)
	}
}

func TestUploadApprovePINScenario(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.login(t)

	receipt, err := s.client.Upload(ctx, "Acme.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "processing", receipt.Status)

	require.True(t, s.poller.StartAdaptive(ctx))
	select {
	case <-s.poller.AdaptiveDone():
	case <-time.After(3 * time.Second):
		t.Fatal("adaptive polling never found the extracted transaction")
	}

	require.Equal(t, 1, s.repo.Len())
	tx, _ := s.repo.First()
	assert.Equal(t, domain.ID("t1"), tx.ID)
	assert.Equal(t, "b1", tx.BatchID)
	assert.Equal(t, "Acme", tx.Vendor)
	assert.True(t, decimal.NewFromInt(500).Equal(tx.Amount))
	assert.Equal(t, domain.StatusNeedsReview, tx.Status)
	assert.Nil(t, tx.AccountNumber)

	assert.False(t, s.orch.Eligibility(tx).CanApprove)
	res, err := s.orch.ApproveSingle(ctx, "t1")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, service.EffectBlocked, res.Effect)

	acct := "12345"
	_, err = s.orch.UpdateField(ctx, "t1", domain.TransactionUpdate{AccountNumber: &acct})
	require.NoError(t, err)
	tx, _ = s.repo.Get("t1")
	require.NotNil(t, tx.AccountNumber)
	assert.Equal(t, "12345", *tx.AccountNumber)
	assert.True(t, s.orch.Eligibility(tx).CanApprove)

	res, err = s.orch.ApproveSingle(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, service.EffectApproved, res.Effect)
	mon := res.Monitor
	require.NotNil(t, mon)
	statuses := collectStatuses(mon)

	first := mon.State()
	assert.Equal(t, domain.StatusQueuedForPayment, first.Status)

	require.Eventually(t, func() bool {
		return mon.State().Status == domain.StatusWaitingForPIN
	}, 3*time.Second, 5*time.Millisecond)

	mon.SetPIN("123456")
	require.NoError(t, mon.SubmitPIN(ctx))
	assert.Empty(t, mon.PIN())

	var paidAt time.Time
	require.Eventually(t, func() bool {
		if mon.State().Status == domain.StatusPaid {
			paidAt = time.Now()
			return true
		}
		return false
	}, 3*time.Second, 5*time.Millisecond)
	assert.False(t, mon.Closed(), "monitor must stay open during the grace delay")

	select {
	case <-mon.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not auto-close")
	}
	assert.GreaterOrEqual(t, time.Since(paidAt), 50*time.Millisecond)
	assert.Equal(t, monitor.ReasonCompleted, mon.CloseReason())
	assert.Equal(t, []domain.Status{domain.StatusQueuedForPayment, domain.StatusWaitingForPIN, domain.StatusPaid}, statuses())

	status, _ := s.sim.Status("t1")
	assert.Equal(t, domain.StatusPaid, status)
	assert.Empty(t, s.repo.Anomalies())
}

func TestWrongPINKeepsWaiting(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.login(t)

	acct := "999"
	s.sim.AddTransaction("b1", "Globex", decimal.NewFromInt(42), &acct)
	require.NoError(t, s.orch.Refresh(ctx))

	res, err := s.orch.ApproveSingle(ctx, "t1")
	require.NoError(t, err)
	mon := res.Monitor

	require.Eventually(t, func() bool {
		return mon.State().Status == domain.StatusWaitingForPIN
	}, 3*time.Second, 5*time.Millisecond)

	require.NoError(t, mon.ProvidePIN(ctx, "0000"))
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, domain.StatusWaitingForPIN, mon.State().Status)
	assert.False(t, mon.Closed())
}

func TestBatchApprovalAgainstSimulator(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.login(t)

	acct := "1"
	s.sim.AddTransaction("b1", "Acme", decimal.NewFromInt(10), &acct)
	s.sim.AddTransaction("b1", "Initech", decimal.NewFromInt(20), &acct)
	require.NoError(t, s.orch.Refresh(ctx))

	res, err := s.orch.ApproveBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b1", res.BatchID)
	assert.Equal(t, 2, res.Approval.Count)

	for _, tx := range s.repo.Snapshot() {
		assert.Equal(t, domain.StatusQueuedForPayment, tx.Status)
	}
}

func TestRevokedTokenStopsEverything(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.login(t)

	acct := "1"
	s.sim.AddTransaction("b1", "Acme", decimal.NewFromInt(10), &acct)
	require.True(t, s.poller.StartQueue(ctx))
	require.Eventually(t, func() bool { return s.repo.Len() == 1 }, time.Second, 5*time.Millisecond)

	var reasons []string
	var mu sync.Mutex
	s.store.OnInvalidate(func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, reason)
	})

	s.sim.RevokeTokens()

	require.Eventually(t, func() bool { return !s.poller.QueueActive() }, time.Second, 5*time.Millisecond)
	assert.False(t, s.store.Authenticated())
	mu.Lock()
	assert.Len(t, reasons, 1)
	mu.Unlock()

	// no credential left, so requests fail without reaching the service
	_, err := s.client.PendingTransactions(ctx)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Equal(t, 1, s.repo.Len())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newStack(t)
	_, err := s.client.Login(context.Background(), "admin@example.com", "nope")
	assert.True(t, errors.IsUnauthorized(err))
}

func TestLiveFeedServesPNG(t *testing.T) {
	sim := New(Config{})
	defer sim.Close()

	rec := httptest.NewRecorder()
	sim.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/live_feed.png?t=1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	sim := New(Config{})
	defer sim.Close()

	rec := httptest.NewRecorder()
	sim.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/pending", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
