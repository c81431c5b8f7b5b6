package simulator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"payagent/internal/txn/domain"

	"github.com/shopspring/decimal"
)

// record is the simulator's row for one transaction
type record struct {
	tx      domain.Transaction
	seq     int
	pinWait chan string
}

// state is the simulator's in-memory database
type state struct {
	mu      sync.Mutex
	records map[domain.ID]*record
	seq     int
	batches int
	tokens  map[string]bool
	audits  []domain.AuditRecord
	now     func() time.Time
}

func newState(now func() time.Time) *state {
	return &state{
		records: make(map[domain.ID]*record),
		tokens:  make(map[string]bool),
		now:     now,
	}
}

// insert adds a transaction and returns its id. Caller holds s.mu.
func (s *state) insert(batchID, vendor string, amount decimal.Decimal, account *string, status domain.Status) domain.ID {
	s.seq++
	id := domain.ID(fmt.Sprintf("t%d", s.seq))
	s.records[id] = &record{
		seq: s.seq,
		tx: domain.Transaction{
			ID:            id,
			BatchID:       batchID,
			Vendor:        vendor,
			Amount:        amount,
			AccountNumber: account,
			Status:        status,
			CreatedAt:     domain.Timestamp{Time: s.now().UTC()},
		},
	}
	return id
}

func (s *state) nextBatchID() string {
	s.batches++
	return fmt.Sprintf("b%d", s.batches)
}

// pending lists open transactions, newest first. Caller holds s.mu.
func (s *state) pending() []domain.Transaction {
	recs := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		if r.tx.Status == domain.StatusPaid {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].seq > recs[j].seq
	})

	out := make([]domain.Transaction, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.tx)
	}
	return out
}

// audit appends an audit entry for a processed request. Caller holds s.mu.
func (s *state) audit(request string, response any) {
	sum := sha256.Sum256([]byte(request))
	raw, err := marshalRaw(response)
	if err != nil {
		raw = domain.RawText(fmt.Sprint(response))
	}
	s.audits = append(s.audits, domain.AuditRecord{
		ID:          domain.ID(fmt.Sprint(len(s.audits) + 1)),
		CreatedAt:   domain.Timestamp{Time: s.now().UTC()},
		RequestHash: hex.EncodeToString(sum[:]),
		RawResponse: raw,
	})
}

// recentAudits returns up to limit audits, newest first. Caller holds s.mu.
func (s *state) recentAudits(limit int) []domain.AuditRecord {
	out := make([]domain.AuditRecord, 0, limit)
	for i := len(s.audits) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.audits[i])
	}
	return out
}

func marshalRaw(v any) (domain.RawText, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return domain.RawText(data), nil
}
