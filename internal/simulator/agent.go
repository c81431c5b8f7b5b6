package simulator

import (
	"time"

	"payagent/internal/txn/domain"
)

// runAgent drives a queued transaction: after one step the payment provider
// asks for a PIN, and one step after the correct PIN it is paid. A wrong PIN
// leaves it waiting for another attempt.
func (s *Server) runAgent(id domain.ID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if !s.sleep(s.config.AgentStep) {
			return
		}

		wait := make(chan string, 1)
		s.state.mu.Lock()
		rec, ok := s.state.records[id]
		if !ok || rec.tx.Status != domain.StatusQueuedForPayment {
			s.state.mu.Unlock()
			return
		}
		rec.tx.Status = domain.StatusWaitingForPIN
		rec.pinWait = wait
		s.state.mu.Unlock()
		s.logger.Info("Agent waiting for PIN on %s", id)

		for {
			select {
			case <-s.ctx.Done():
				return
			case pin := <-wait:
				if pin != s.config.PIN {
					s.state.mu.Lock()
					s.state.audit("pin "+id.String(), map[string]string{"status": "pin_rejected"})
					s.state.mu.Unlock()
					s.logger.Warn("Agent rejected PIN for %s", id)
					continue
				}
				s.pay(id)
				return
			}
		}
	}()
}

func (s *Server) pay(id domain.ID) {
	s.state.mu.Lock()
	if rec, ok := s.state.records[id]; ok {
		rec.pinWait = nil
	}
	s.state.mu.Unlock()

	if !s.sleep(s.config.AgentStep) {
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec, ok := s.state.records[id]
	if !ok {
		return
	}
	rec.tx.Status = domain.StatusPaid
	s.state.audit("pay "+id.String(), map[string]string{"status": "paid", "transaction_id": id.String()})
	s.logger.Info("Agent paid %s", id)
}

// sleep waits d unless the server is closing
func (s *Server) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
