// Package repotest provides an in-memory repo.Store for service tests.
package repotest

import (
	"context"
	"sort"
	"sync"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/pkg/idgen"
)

type state struct {
	sequences     map[string]int64
	consultations map[string]model.Consultation
	reschedules   []model.RescheduleRecord
	receipts      map[string]model.Receipt
	payments      map[string]model.PaymentTransaction
}

func (s state) clone() state {
	out := state{
		sequences:     make(map[string]int64, len(s.sequences)),
		consultations: make(map[string]model.Consultation, len(s.consultations)),
		reschedules:   append([]model.RescheduleRecord(nil), s.reschedules...),
		receipts:      make(map[string]model.Receipt, len(s.receipts)),
		payments:      make(map[string]model.PaymentTransaction, len(s.payments)),
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.consultations {
		out.consultations[k] = v
	}
	for k, v := range s.receipts {
		out.receipts[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	return out
}

// Memory is a repo.Store kept in maps. WithTx restores the previous state
// when fn fails.
type Memory struct {
	mu sync.Mutex
	st state

	// FailOn makes the named operation return the error once.
	FailOn map[string]error
}

var _ repo.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		st: state{
			sequences:     map[string]int64{},
			consultations: map[string]model.Consultation{},
			receipts:      map[string]model.Receipt{},
			payments:      map[string]model.PaymentTransaction{},
		},
		FailOn: map[string]error{},
	}
}

func (m *Memory) fail(op string) error {
	if err, ok := m.FailOn[op]; ok {
		delete(m.FailOn, op)
		return err
	}
	return nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(q repo.Queries) error) error {
	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.st = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Memory) NextID(ctx context.Context, seq idgen.Sequence) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("NextID"); err != nil {
		return "", err
	}
	if _, ok := m.st.sequences[seq.Prefix]; !ok {
		ids := m.storedIDs(seq)
		m.st.sequences[seq.Prefix] = seq.Seed(idgen.Latest(ids), ids) - 1
	}
	m.st.sequences[seq.Prefix]++
	return seq.Format(m.st.sequences[seq.Prefix]), nil
}

// storedIDs lists the identifiers already held in the table seq numbers, so
// rows added through Put are not handed out again.
func (m *Memory) storedIDs(seq idgen.Sequence) []string {
	var ids []string
	switch seq.Prefix {
	case idgen.Consultation.Prefix:
		for id := range m.st.consultations {
			ids = append(ids, id)
		}
	case idgen.Receipt.Prefix:
		for _, r := range m.st.receipts {
			ids = append(ids, r.Number)
		}
	case idgen.Payment.Prefix:
		for _, p := range m.st.payments {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (m *Memory) CreateConsultation(ctx context.Context, c *model.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateConsultation"); err != nil {
		return err
	}
	if _, ok := m.st.consultations[c.ID]; ok {
		return repo.ErrConflict
	}
	m.st.consultations[c.ID] = *c
	return nil
}

// Put stores c directly, bypassing ID generation.
func (m *Memory) Put(c *model.Consultation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.consultations[c.ID] = *c
}

func (m *Memory) GetConsultation(ctx context.Context, id string) (*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.consultations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) UpdateConsultation(ctx context.Context, c *model.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateConsultation"); err != nil {
		return err
	}
	if _, ok := m.st.consultations[c.ID]; !ok {
		return repo.ErrNotFound
	}
	m.st.consultations[c.ID] = *c
	return nil
}

func (m *Memory) ConsultationExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.st.consultations[id]
	return ok, nil
}

func (m *Memory) ListOpenConsultations(ctx context.Context, onOrBefore model.Date) ([]*model.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := onOrBefore.String()
	var out []*model.Consultation
	for _, c := range m.st.consultations {
		switch c.Status {
		case model.StatusCompleted, model.StatusCancelled, model.StatusRescheduled, model.StatusNoShow:
			continue
		}
		if c.ScheduledDate.String() > limit {
			continue
		}
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AppendReschedule(ctx context.Context, rec *model.RescheduleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AppendReschedule"); err != nil {
		return err
	}
	rec.ID = int64(len(m.st.reschedules) + 1)
	m.st.reschedules = append(m.st.reschedules, *rec)
	return nil
}

func (m *Memory) ListReschedules(ctx context.Context, consultationID string) ([]*model.RescheduleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RescheduleRecord
	for i := len(m.st.reschedules) - 1; i >= 0; i-- {
		if r := m.st.reschedules[i]; r.ConsultationID == consultationID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (m *Memory) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.receipts[r.ConsultationID]; ok {
		return repo.ErrConflict
	}
	r.ID = int64(len(m.st.receipts) + 1)
	m.st.receipts[r.ConsultationID] = *r
	return nil
}

func (m *Memory) GetReceiptByConsultation(ctx context.Context, consultationID string) (*model.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.st.receipts[consultationID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) CreatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.payments[p.MerchantTransactionID]; ok {
		return repo.ErrConflict
	}
	m.st.payments[p.MerchantTransactionID] = *p
	return nil
}

func (m *Memory) GetPaymentTransaction(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.payments[merchantTxnID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (m *Memory) UpdatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.payments[p.MerchantTransactionID]; !ok {
		return repo.ErrNotFound
	}
	m.st.payments[p.MerchantTransactionID] = *p
	return nil
}
