package simulator

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"payagent/internal/txn/domain"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const maxUploadSize = 20 << 20

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form")
		return
	}
	if r.PostForm.Get("username") != s.config.Username || r.PostForm.Get("password") != s.config.Password {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token := uuid.NewString()
	s.state.mu.Lock()
	s.state.tokens[token] = true
	s.state.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeDetail(w, http.StatusBadRequest, "could not read file")
		return
	}

	resp := map[string]string{
		"status":     "processing",
		"invoice_id": uuid.NewString(),
		"task_id":    uuid.NewString(),
	}
	s.state.mu.Lock()
	s.state.audit("upload "+header.Filename, resp)
	s.state.mu.Unlock()

	vendor := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	s.extract(vendor)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudits(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	audits := s.state.recentAudits(50)
	s.state.mu.Unlock()
	writeJSON(w, http.StatusOK, audits)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	pending := s.state.pending()
	s.state.mu.Unlock()
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	s.state.mu.Lock()
	rec, ok := s.state.records[id]
	var tx domain.Transaction
	if ok {
		tx = rec.tx
	}
	s.state.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Transaction not found")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	var update domain.TransactionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	rec, ok := s.state.records[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if update.IsEmpty() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_changes"})
		return
	}

	tx := &rec.tx
	if update.Vendor != nil {
		tx.Vendor = *update.Vendor
	}
	if update.Amount != nil {
		tx.Amount = *update.Amount
	}
	if update.AccountNumber != nil {
		acct := *update.AccountNumber
		tx.AccountNumber = &acct
	}
	if update.IFSCCode != nil {
		ifsc := *update.IFSCCode
		tx.IFSCCode = &ifsc
	}
	if update.Remarks != nil {
		remarks := *update.Remarks
		tx.Remarks = &remarks
	}
	// a completed review is ready for batch approval
	if tx.Status == domain.StatusNeedsReview && tx.HasAccountNumber() {
		tx.Status = domain.StatusNeedsApproval
	}

	resp := map[string]string{"status": "updated"}
	s.state.audit("update "+id.String(), resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	s.state.mu.Lock()
	rec, ok := s.state.records[id]
	switch {
	case !ok:
		s.state.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Transaction not found or unauthorized")
		return
	case rec.tx.Status.Stage() != domain.StageReview:
		s.state.mu.Unlock()
		writeDetail(w, http.StatusConflict, "Transaction not in approvable state")
		return
	}
	rec.tx.Status = domain.StatusQueuedForPayment
	resp := domain.ApprovalAck{Status: "queued", TransactionID: id}
	s.state.audit("approve "+id.String(), resp)
	s.state.mu.Unlock()

	s.runAgent(id)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleApproveBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	s.state.mu.Lock()
	var queued []domain.ID
	for _, tx := range s.state.pending() {
		if tx.BatchID != batchID || tx.Status != domain.StatusNeedsApproval {
			continue
		}
		s.state.records[tx.ID].tx.Status = domain.StatusQueuedForPayment
		queued = append(queued, tx.ID)
	}
	if len(queued) == 0 {
		s.state.mu.Unlock()
		writeJSON(w, http.StatusOK, domain.BatchApproval{Status: "no_pending_transactions", TaskIDs: []string{}})
		return
	}

	resp := domain.BatchApproval{Status: "batch_queued", Count: len(queued), TaskIDs: make([]string, 0, len(queued))}
	for range queued {
		resp.TaskIDs = append(resp.TaskIDs, uuid.NewString())
	}
	s.state.audit("approve_batch "+batchID, resp)
	s.state.mu.Unlock()

	for _, id := range queued {
		s.runAgent(id)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProvidePIN(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(chi.URLParam(r, "id"))

	var body struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.state.mu.Lock()
	rec, ok := s.state.records[id]
	var wait chan string
	if ok {
		wait = rec.pinWait
	}
	s.state.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Transaction not found or unauthorized")
		return
	}
	if wait != nil {
		select {
		case wait <- body.PIN:
		default:
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pin_received"})
}

// extract simulates document extraction: after one agent step a new batch
// appears holding one transaction with the account number still missing.
func (s *Server) extract(vendor string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.sleep(s.config.AgentStep) {
			return
		}

		s.state.mu.Lock()
		defer s.state.mu.Unlock()
		batch := s.state.nextBatchID()
		id := s.state.insert(batch, vendor, decimal.NewFromInt(500), nil, domain.StatusNeedsReview)
		s.logger.Info("Extracted %s into batch %s from %s", id, batch, vendor)
	}()
}
