package service

import (
	"context"
	"strings"

	"payagent/internal/errors"
	"payagent/internal/logging"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/monitor"
	"payagent/internal/txn/ports"
	"payagent/internal/txn/repository"
)

// Effect is the outcome of an approval request
type Effect string

const (
	EffectNone        Effect = "none"
	EffectApproved    Effect = "approved"
	EffectOpenMonitor Effect = "open_monitor"
	EffectBlocked     Effect = "blocked"
)

// ApproveResult describes what ApproveSingle did
type ApproveResult struct {
	Effect      Effect
	Transaction domain.Transaction
	Ack         *domain.ApprovalAck
	Monitor     *monitor.Session
	Resumed     bool
	Reason      string
}

// BatchResult describes what a batch approval did
type BatchResult struct {
	BatchID  string
	Approval *domain.BatchApproval
	Skipped  bool
}

// RemoteService is the subset of the API the orchestrator commands
type RemoteService interface {
	ports.CommandPort
	ports.DetailSource
}

// Orchestrator turns operator intents into remote commands, enforcing what
// each transaction is eligible for from the client's cached view.
type Orchestrator struct {
	remote   RemoteService
	repo     *repository.Repository
	monitors *monitor.Manager
	logger   *logging.Logger
}

// NewOrchestrator creates an orchestrator. A nil manager disables opening
// monitors after approval.
func NewOrchestrator(remote RemoteService, repo *repository.Repository, monitors *monitor.Manager) *Orchestrator {
	return &Orchestrator{
		remote:   remote,
		repo:     repo,
		monitors: monitors,
		logger:   logging.NewDefaultLogger("orchestrator"),
	}
}

// Eligibility evaluates tx against the repository's open anomalies
func (o *Orchestrator) Eligibility(tx domain.Transaction) Eligibility {
	if a, ok := o.repo.Anomaly(tx.ID); ok {
		return Evaluate(tx, &a)
	}
	return Evaluate(tx, nil)
}

// lookup returns the cached transaction, fetching ids the cache does not know
func (o *Orchestrator) lookup(ctx context.Context, id domain.ID) (domain.Transaction, error) {
	if tx, ok := o.repo.Get(id); ok {
		return tx, nil
	}
	o.logger.Debug("Transaction %s not cached, fetching", id)
	seq := o.repo.BeginObserve()
	tx, err := o.remote.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	o.repo.Observe(seq, *tx)
	return *tx, nil
}

// ApproveSingle approves id when it is eligible. In-flight transactions are
// never approved again; their monitor is opened instead.
func (o *Orchestrator) ApproveSingle(ctx context.Context, id domain.ID) (*ApproveResult, error) {
	tx, err := o.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	el := o.Eligibility(tx)
	result := &ApproveResult{Transaction: tx, Reason: el.Reason}

	switch el.Action {
	case ActionMonitor:
		result.Effect = EffectOpenMonitor
		if o.monitors != nil {
			result.Monitor, result.Resumed = o.monitors.Open(ctx, id, nil)
		}
		o.logger.Info("Transaction %s is %s, opening monitor", id, tx.Status.Label())
		return result, nil
	case ActionNone:
		result.Effect = EffectNone
		return result, nil
	case ActionBlocked:
		result.Effect = EffectBlocked
		if el.Anomaly != nil {
			return result, errors.Anomaly(el.Reason).
				WithContext("transaction_id", id.String())
		}
		return result, errors.Validation(el.Reason).
			WithContext("transaction_id", id.String())
	}

	ack, err := o.remote.ApproveTransaction(ctx, id)
	if err != nil {
		if errors.IsUnauthorized(err) {
			o.logger.Warn("Approval of %s abandoned, session expired", id)
		}
		return nil, err
	}
	o.logger.Info("Transaction %s approved (%s)", id, ack.Status)

	o.repo.MarkOptimistic(id, domain.StatusQueuedForPayment)
	seed := tx
	seed.Status = domain.StatusQueuedForPayment

	result.Effect = EffectApproved
	result.Ack = ack
	result.Transaction = seed
	result.Transaction.Optimistic = true
	if o.monitors != nil {
		result.Monitor, result.Resumed = o.monitors.Open(ctx, id, &seed)
	}

	o.refresh(ctx)
	return result, nil
}

// ApproveBatch approves the batch of the first pending transaction. The
// service is assumed to have a single active batch; when several are pending
// only the first one is approved.
func (o *Orchestrator) ApproveBatch(ctx context.Context) (*BatchResult, error) {
	first, ok := o.repo.First()
	if !ok {
		o.logger.Info("No pending transactions, nothing to approve")
		return &BatchResult{Skipped: true}, nil
	}

	if ids := o.repo.BatchIDs(); len(ids) > 1 {
		o.logger.Warn("Pending transactions span %d batches (%s), approving %s only",
			len(ids), strings.Join(ids, ", "), first.BatchID)
	}
	return o.approveBatch(ctx, first.BatchID)
}

// ApproveBatchID approves an explicitly selected batch
func (o *Orchestrator) ApproveBatchID(ctx context.Context, batchID string) (*BatchResult, error) {
	if o.repo.Len() == 0 {
		o.logger.Info("No pending transactions, nothing to approve")
		return &BatchResult{BatchID: batchID, Skipped: true}, nil
	}

	for _, id := range o.repo.BatchIDs() {
		if id == batchID {
			return o.approveBatch(ctx, batchID)
		}
	}
	return nil, errors.Validation("batch has no pending transactions").
		WithContext("batch_id", batchID)
}

func (o *Orchestrator) approveBatch(ctx context.Context, batchID string) (*BatchResult, error) {
	if batchID == "" {
		return nil, errors.Validation("first pending transaction has no batch id")
	}

	approval, err := o.remote.ApproveBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	o.logger.Info("Batch %s approved: %d transactions queued", batchID, approval.Count)

	o.refresh(ctx)
	return &BatchResult{BatchID: batchID, Approval: approval}, nil
}

// UpdateField edits a transaction under review. A refresh follows every
// command that was sent, whether it succeeded or not.
func (o *Orchestrator) UpdateField(ctx context.Context, id domain.ID, update domain.TransactionUpdate) (*domain.Transaction, error) {
	if update.IsEmpty() {
		return nil, errors.Validation("nothing to update")
	}
	if update.AccountNumber != nil && strings.TrimSpace(*update.AccountNumber) == "" {
		return nil, errors.Validation("account number must not be blank")
	}

	tx, err := o.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.Stage() != domain.StageReview {
		return nil, errors.Validation("only transactions under review can be edited").
			WithContext("status", string(tx.Status))
	}

	updated, err := o.remote.UpdateTransaction(ctx, id, update)
	o.refresh(ctx)
	if err != nil {
		return nil, err
	}

	if updated == nil {
		if cached, ok := o.repo.Get(id); ok {
			updated = &cached
		}
	}
	o.logger.Info("Transaction %s updated", id)
	return updated, nil
}

// Refresh reloads the pending list
func (o *Orchestrator) Refresh(ctx context.Context) error {
	_, err := o.repo.Refresh(ctx)
	return err
}

func (o *Orchestrator) refresh(ctx context.Context) {
	if _, err := o.repo.Refresh(ctx); err != nil {
		o.logger.Warn("Refresh after command failed: %v", err)
	}
}
