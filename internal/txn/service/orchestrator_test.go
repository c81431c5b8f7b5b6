package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"payagent/internal/errors"
	"payagent/internal/session"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/monitor"
	"payagent/internal/txn/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote keeps transactions in memory and counts every call.
type fakeRemote struct {
	mu        sync.Mutex
	txns      []domain.Transaction
	calls     map[string]int
	approveFn func(id domain.ID) error
	updateErr error
}

func newFakeRemote(txns ...domain.Transaction) *fakeRemote {
	return &fakeRemote{txns: txns, calls: make(map[string]int)}
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) commands() int {
	return f.count("approve") + f.count("approve_batch") + f.count("update")
}

func (f *fakeRemote) PendingTransactions(ctx context.Context) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["pending"]++
	return append([]domain.Transaction(nil), f.txns...), nil
}

func (f *fakeRemote) GetTransaction(ctx context.Context, id domain.ID) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	for _, tx := range f.txns {
		if tx.ID == id {
			return &tx, nil
		}
	}
	return nil, errors.NotFound("transaction")
}

func (f *fakeRemote) UpdateTransaction(ctx context.Context, id domain.ID, update domain.TransactionUpdate) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.txns {
		if f.txns[i].ID == id && update.AccountNumber != nil {
			acct := *update.AccountNumber
			f.txns[i].AccountNumber = &acct
		}
	}
	return nil, nil
}

func (f *fakeRemote) ApproveTransaction(ctx context.Context, id domain.ID) (*domain.ApprovalAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["approve"]++
	if f.approveFn != nil {
		if err := f.approveFn(id); err != nil {
			return nil, err
		}
	}
	for i := range f.txns {
		if f.txns[i].ID == id {
			f.txns[i].Status = domain.StatusQueuedForPayment
		}
	}
	return &domain.ApprovalAck{Status: "queued", TransactionID: id}, nil
}

func (f *fakeRemote) ApproveBatch(ctx context.Context, batchID string) (*domain.BatchApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["approve_batch"]++
	n := 0
	for i := range f.txns {
		if f.txns[i].BatchID == batchID {
			f.txns[i].Status = domain.StatusQueuedForPayment
			n++
		}
	}
	return &domain.BatchApproval{Status: "queued", Count: n, TaskIDs: make([]string, n)}, nil
}

func (f *fakeRemote) ProvidePIN(ctx context.Context, id domain.ID, pin string) error {
	return nil
}

func (f *fakeRemote) LiveFeedURL(at time.Time) string {
	return fmt.Sprintf("http://feed?t=%d", at.UnixMilli())
}

func reviewTxn(id, batch string, account string) domain.Transaction {
	tx := domain.Transaction{ID: domain.ID(id), BatchID: batch, Vendor: "Acme", Amount: decimal.NewFromInt(500), Status: domain.StatusNeedsReview}
	if account != "" {
		tx.AccountNumber = &account
	}
	return tx
}

type fixture struct {
	remote   *fakeRemote
	repo     *repository.Repository
	monitors *monitor.Manager
	orch     *Orchestrator
}

func newFixture(t *testing.T, txns ...domain.Transaction) *fixture {
	t.Helper()
	store := session.NewStore(nil)
	require.NoError(t, store.SetCredential("tok"))

	remote := newFakeRemote(txns...)
	repo := repository.New(remote, store)
	monitors := monitor.NewManager(remote, store, repo, nil, monitor.Config{Interval: time.Hour, Grace: time.Millisecond})
	t.Cleanup(monitors.CloseAll)

	f := &fixture{remote: remote, repo: repo, monitors: monitors, orch: NewOrchestrator(remote, repo, monitors)}
	if len(txns) > 0 {
		_, err := repo.Refresh(context.Background())
		require.NoError(t, err)
	}
	return f
}

func TestEvaluate(t *testing.T) {
	acct := "123"
	tests := []struct {
		name    string
		tx      domain.Transaction
		anomaly *domain.Anomaly
		action  Action
		can     bool
	}{
		{"review with account", domain.Transaction{Status: domain.StatusNeedsReview, AccountNumber: &acct}, nil, ActionApprove, true},
		{"needs approval with account", domain.Transaction{Status: domain.StatusNeedsApproval, AccountNumber: &acct}, nil, ActionApprove, true},
		{"review without account", domain.Transaction{Status: domain.StatusNeedsReview}, nil, ActionBlocked, false},
		{"queued", domain.Transaction{Status: domain.StatusQueuedForPayment}, nil, ActionMonitor, false},
		{"waiting for pin", domain.Transaction{Status: domain.StatusWaitingForPIN}, nil, ActionMonitor, false},
		{"paid", domain.Transaction{Status: domain.StatusPaid}, nil, ActionNone, false},
		{"unknown", domain.Transaction{Status: "ON_HOLD"}, nil, ActionBlocked, false},
		{"anomaly", domain.Transaction{Status: domain.StatusNeedsReview, AccountNumber: &acct},
			&domain.Anomaly{From: domain.StatusWaitingForPIN, To: domain.StatusNeedsReview}, ActionBlocked, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := Evaluate(tt.tx, tt.anomaly)
			assert.Equal(t, tt.action, el.Action)
			assert.Equal(t, tt.can, el.CanApprove)
		})
	}
}

func TestApproveSingleInFlightOpensMonitorWithoutNetwork(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusQueuedForPayment, domain.StatusWaitingForPIN} {
		t.Run(string(status), func(t *testing.T) {
			tx := reviewTxn("t1", "b1", "999")
			tx.Status = status
			f := newFixture(t, tx)

			res, err := f.orch.ApproveSingle(context.Background(), "t1")
			require.NoError(t, err)
			assert.Equal(t, EffectOpenMonitor, res.Effect)
			require.NotNil(t, res.Monitor)
			assert.Equal(t, 0, f.remote.commands())
		})
	}
}

func TestApproveSingleWithoutAccountIsBlocked(t *testing.T) {
	f := newFixture(t, reviewTxn("t1", "b1", ""))

	res, err := f.orch.ApproveSingle(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, EffectBlocked, res.Effect)
	assert.Equal(t, 0, f.remote.commands())
	assert.Empty(t, f.monitors.Active())
}

func TestApproveSingleApprovesAndSeedsMonitor(t *testing.T) {
	f := newFixture(t, reviewTxn("t1", "b1", "999"))
	pendingBefore := f.remote.count("pending")

	res, err := f.orch.ApproveSingle(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, EffectApproved, res.Effect)
	assert.Equal(t, 1, f.remote.count("approve"))
	assert.Equal(t, pendingBefore+1, f.remote.count("pending"))
	require.NotNil(t, res.Monitor)
	assert.Equal(t, []domain.ID{"t1"}, f.monitors.Active())

	// the monitor shadows the cache, so a second approve goes to the monitor
	tx, _ := f.repo.Get("t1")
	assert.Equal(t, domain.StatusQueuedForPayment, tx.Status)

	res, err = f.orch.ApproveSingle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, EffectOpenMonitor, res.Effect)
	assert.True(t, res.Resumed)
	assert.Equal(t, 1, f.remote.count("approve"))
}

func TestApproveSingleFetchesUnknownID(t *testing.T) {
	f := newFixture(t)
	f.remote.txns = []domain.Transaction{reviewTxn("t9", "b1", "")}

	res, err := f.orch.ApproveSingle(context.Background(), "t9")
	require.Error(t, err)
	assert.Equal(t, EffectBlocked, res.Effect)
	assert.Equal(t, 1, f.remote.count("get"))
	assert.Equal(t, 0, f.remote.count("approve"))

	_, err = f.orch.ApproveSingle(context.Background(), "missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestApproveSingleBlockedByAnomaly(t *testing.T) {
	f := newFixture(t)
	tx := reviewTxn("t1", "b1", "999")
	tx.Status = domain.StatusWaitingForPIN
	f.repo.Observe(f.repo.BeginObserve(), tx)
	f.remote.txns = []domain.Transaction{reviewTxn("t1", "b1", "999")}
	_, err := f.repo.Refresh(context.Background())
	require.NoError(t, err)

	res, err := f.orch.ApproveSingle(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAnomaly))
	assert.Equal(t, EffectBlocked, res.Effect)
	assert.Equal(t, 0, f.remote.commands())
}

func TestApproveSingleUnauthorized(t *testing.T) {
	f := newFixture(t, reviewTxn("t1", "b1", "999"))
	f.remote.approveFn = func(domain.ID) error { return errors.Unauthorized("session expired") }

	_, err := f.orch.ApproveSingle(context.Background(), "t1")
	assert.True(t, errors.IsUnauthorized(err))
	assert.Empty(t, f.monitors.Active())
	tx, _ := f.repo.Get("t1")
	assert.False(t, tx.Optimistic)
}

func TestApproveBatchOnEmptyListMakesNoCall(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.ApproveBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	res, err = f.orch.ApproveBatchID(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, f.remote.commands())
}

func TestApproveBatchUsesFirstTransaction(t *testing.T) {
	f := newFixture(t,
		reviewTxn("t1", "b2", "1"),
		reviewTxn("t2", "b1", "2"),
		reviewTxn("t3", "b2", "3"),
	)

	res, err := f.orch.ApproveBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b2", res.BatchID)
	assert.Equal(t, 2, res.Approval.Count)

	tx, _ := f.repo.Get("t2")
	assert.Equal(t, domain.StatusNeedsReview, tx.Status)
	tx, _ = f.repo.Get("t3")
	assert.Equal(t, domain.StatusQueuedForPayment, tx.Status)
}

func TestApproveBatchID(t *testing.T) {
	f := newFixture(t, reviewTxn("t1", "b2", "1"), reviewTxn("t2", "b1", "2"))

	res, err := f.orch.ApproveBatchID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Approval.Count)

	_, err = f.orch.ApproveBatchID(context.Background(), "nope")
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 1, f.remote.count("approve_batch"))
}

func TestUpdateFieldAlwaysRefreshes(t *testing.T) {
	f := newFixture(t, reviewTxn("t1", "b1", ""))
	acct := "555"

	before := f.remote.count("pending")
	updated, err := f.orch.UpdateField(context.Background(), "t1", domain.TransactionUpdate{AccountNumber: &acct})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "555", *updated.AccountNumber)
	assert.Equal(t, before+1, f.remote.count("pending"))

	f.remote.updateErr = errors.External("payagent", fmt.Errorf("500"))
	_, err = f.orch.UpdateField(context.Background(), "t1", domain.TransactionUpdate{AccountNumber: &acct})
	require.Error(t, err)
	assert.Equal(t, before+2, f.remote.count("pending"))
}

func TestUpdateFieldPreconditions(t *testing.T) {
	queued := reviewTxn("t2", "b1", "1")
	queued.Status = domain.StatusQueuedForPayment
	f := newFixture(t, reviewTxn("t1", "b1", ""), queued)
	blank := "  "
	acct := "1"

	_, err := f.orch.UpdateField(context.Background(), "t1", domain.TransactionUpdate{})
	assert.True(t, errors.IsValidation(err))

	_, err = f.orch.UpdateField(context.Background(), "t1", domain.TransactionUpdate{AccountNumber: &blank})
	assert.True(t, errors.IsValidation(err))

	_, err = f.orch.UpdateField(context.Background(), "t2", domain.TransactionUpdate{AccountNumber: &acct})
	assert.True(t, errors.IsValidation(err))

	assert.Equal(t, 0, f.remote.count("update"))
}
