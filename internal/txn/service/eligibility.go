package service

import (
	"fmt"

	"payagent/internal/txn/domain"
)

// Action is what the operator can do with a transaction right now
type Action string

const (
	ActionApprove Action = "approve"
	ActionMonitor Action = "monitor"
	ActionBlocked Action = "blocked"
	ActionNone    Action = "none"
)

// Eligibility is the verdict for one transaction
type Eligibility struct {
	CanApprove bool
	Action     Action
	Reason     string
	Anomaly    *domain.Anomaly
}

// Evaluate decides what may be done with tx. An open anomaly blocks every
// action until the service reports a consistent status again.
func Evaluate(tx domain.Transaction, anomaly *domain.Anomaly) Eligibility {
	if anomaly != nil {
		return Eligibility{
			Action: ActionBlocked,
			Reason: fmt.Sprintf("status moved backwards from %s to %s, waiting for the service to settle",
				anomaly.From.Label(), anomaly.To.Label()),
			Anomaly: anomaly,
		}
	}

	switch tx.Status.Stage() {
	case domain.StageInFlight:
		return Eligibility{Action: ActionMonitor, Reason: "payment is in progress"}
	case domain.StageTerminal:
		return Eligibility{Action: ActionNone, Reason: "transaction is already paid"}
	case domain.StageReview:
		if !tx.HasAccountNumber() {
			return Eligibility{Action: ActionBlocked, Reason: "account number is required before approval"}
		}
		return Eligibility{CanApprove: true, Action: ActionApprove}
	default:
		return Eligibility{Action: ActionBlocked, Reason: fmt.Sprintf("unknown status %q", tx.Status)}
	}
}
