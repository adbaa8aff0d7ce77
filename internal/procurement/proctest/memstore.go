// Package proctest provides an in-memory procurement.Store for tests.
package proctest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/procurement"
	"procurement/models"
)

// MemStore keeps everything in maps guarded by one mutex. A transaction holds the mutex
// for its whole duration and works on a copy that replaces the live data on commit.
type MemStore struct {
	mu        sync.Mutex
	data      *memData
	injectErr error
}

var _ procurement.Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{data: newMemData()}
}

type memData struct {
	procurements map[string]models.Procurement
	versions     []models.ProcurementVersion
	bids         map[string]models.Bid
	bidOrder     []string
	evaluations  map[string]models.Evaluation
	evalOrder    []string
	audit        []models.AuditEvent
	seq          int64
}

func newMemData() *memData {
	return &memData{
		procurements: map[string]models.Procurement{},
		bids:         map[string]models.Bid{},
		evaluations:  map[string]models.Evaluation{},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		procurements: make(map[string]models.Procurement, len(d.procurements)),
		versions:     slices.Clone(d.versions),
		bids:         make(map[string]models.Bid, len(d.bids)),
		bidOrder:     slices.Clone(d.bidOrder),
		evaluations:  make(map[string]models.Evaluation, len(d.evaluations)),
		evalOrder:    slices.Clone(d.evalOrder),
		audit:        slices.Clone(d.audit),
		seq:          d.seq,
	}
	for k, v := range d.procurements {
		c.procurements[k] = v
	}
	for k, v := range d.bids {
		c.bids[k] = v
	}
	for k, v := range d.evaluations {
		c.evaluations[k] = v
	}
	return c
}

// InjectError makes the next transaction fail with err before running.
func (m *MemStore) InjectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injectErr = err
}

func (m *MemStore) WithTx(ctx context.Context, fn func(tx procurement.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "transaction aborted")
	}
	if err := m.injectErr; err != nil {
		m.injectErr = nil
		return err
	}
	work := m.data.clone()
	if err := fn(&memRepo{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemStore) repo() *memRepo { return &memRepo{d: m.data} }

func (m *MemStore) InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().InsertAuditEvent(ctx, ev)
}

func (m *MemStore) GetProcurement(ctx context.Context, id string) (*models.Procurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetProcurement(ctx, id)
}

func (m *MemStore) LockProcurement(ctx context.Context, id string, mode procurement.LockMode) (*models.Procurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().LockProcurement(ctx, id, mode)
}

func (m *MemStore) CreateProcurement(ctx context.Context, p *models.Procurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateProcurement(ctx, p)
}

func (m *MemStore) UpdateProcurement(ctx context.Context, p *models.Procurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateProcurement(ctx, p)
}

func (m *MemStore) SaveProcurementVersion(ctx context.Context, v *models.ProcurementVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().SaveProcurementVersion(ctx, v)
}

func (m *MemStore) GetProcurementVersion(ctx context.Context, procurementID string, version int) (*models.ProcurementVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetProcurementVersion(ctx, procurementID, version)
}

func (m *MemStore) CountProcurementsSince(ctx context.Context, constituencyID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CountProcurementsSince(ctx, constituencyID, since)
}

func (m *MemStore) CreateBid(ctx context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateBid(ctx, b)
}

func (m *MemStore) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().GetBid(ctx, id)
}

func (m *MemStore) BidExists(ctx context.Context, procurementID, bidderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().BidExists(ctx, procurementID, bidderID)
}

func (m *MemStore) ListBids(ctx context.Context, procurementID string, status models.BidStatus) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListBids(ctx, procurementID, status)
}

func (m *MemStore) UpdateBid(ctx context.Context, b *models.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().UpdateBid(ctx, b)
}

func (m *MemStore) CreateEvaluation(ctx context.Context, e *models.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CreateEvaluation(ctx, e)
}

func (m *MemStore) EvaluationExists(ctx context.Context, bidID, evaluatorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().EvaluationExists(ctx, bidID, evaluatorID)
}

func (m *MemStore) ListEvaluations(ctx context.Context, procurementID string) ([]models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListEvaluations(ctx, procurementID)
}

func (m *MemStore) CountCompletedEvaluations(ctx context.Context, procurementID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().CountCompletedEvaluations(ctx, procurementID)
}

func (m *MemStore) ListAuditEvents(ctx context.Context, procurementID string) ([]models.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.repo().ListAuditEvents(ctx, procurementID)
}

// Versions returns the stored snapshots of a procurement, oldest first.
func (m *MemStore) Versions(procurementID string) []models.ProcurementVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProcurementVersion
	for _, v := range m.data.versions {
		if v.ProcurementID == procurementID {
			out = append(out, v)
		}
	}
	return out
}

// CorruptBid flips one byte of a bid's sealed blob.
func (m *MemStore) CorruptBid(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data.bids[id]
	if !ok {
		return apperr.New(apperr.NotFound, "bid %s not found", id)
	}
	blob := slices.Clone(b.SealedData)
	if len(blob) > 0 {
		blob[len(blob)-1] ^= 0xFF
	}
	b.SealedData = blob
	m.data.bids[id] = b
	return nil
}

// SealedData returns a copy of the stored blob of a bid.
func (m *MemStore) SealedData(id string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data.bids[id].SealedData)
}

// TamperAuditEvent edits a stored event in place, bypassing the append-only rule.
func (m *MemStore) TamperAuditEvent(id string, fn func(ev *models.AuditEvent)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.data.audit {
		if m.data.audit[i].ID == id {
			ev := m.data.audit[i]
			ev.Payload = clonePayload(ev.Payload)
			fn(&ev)
			m.data.audit[i] = ev
			return nil
		}
	}
	return apperr.New(apperr.NotFound, "audit event %s not found", id)
}

func clonePayload(p models.Payload) models.Payload {
	out := make(models.Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type memRepo struct {
	d *memData
}

func (r *memRepo) InsertAuditEvent(_ context.Context, ev *models.AuditEvent) error {
	for _, e := range r.d.audit {
		if e.ID == ev.ID {
			return apperr.New(apperr.Duplicate, "audit event %s already exists", ev.ID)
		}
	}
	if ev.BidID != nil {
		if _, ok := r.d.bids[*ev.BidID]; !ok {
			return apperr.New(apperr.Internal, "audit event references unknown bid %s", *ev.BidID)
		}
	}
	r.d.seq++
	ev.Seq = r.d.seq
	c := *ev
	c.Payload = clonePayload(ev.Payload)
	r.d.audit = append(r.d.audit, c)
	return nil
}

func (r *memRepo) GetProcurement(_ context.Context, id string) (*models.Procurement, error) {
	p, ok := r.d.procurements[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "procurement %s not found", id)
	}
	return &p, nil
}

func (r *memRepo) LockProcurement(ctx context.Context, id string, _ procurement.LockMode) (*models.Procurement, error) {
	return r.GetProcurement(ctx, id)
}

func (r *memRepo) CreateProcurement(_ context.Context, p *models.Procurement) error {
	if _, ok := r.d.procurements[p.ID]; ok {
		return apperr.New(apperr.Duplicate, "procurement %s already exists", p.ID)
	}
	for _, other := range r.d.procurements {
		if other.ProcurementNumber == p.ProcurementNumber {
			return apperr.New(apperr.Duplicate, "procurement number %s already exists", p.ProcurementNumber)
		}
	}
	r.d.procurements[p.ID] = *p
	return nil
}

func (r *memRepo) UpdateProcurement(_ context.Context, p *models.Procurement) error {
	cur, ok := r.d.procurements[p.ID]
	if !ok {
		return apperr.New(apperr.NotFound, "procurement %s not found", p.ID)
	}
	if cur.Version != p.Version {
		return apperr.New(apperr.Unavailable, "procurement %s modified concurrently, retry", p.ID)
	}
	p.Version++
	r.d.procurements[p.ID] = *p
	return nil
}

func (r *memRepo) SaveProcurementVersion(_ context.Context, v *models.ProcurementVersion) error {
	for _, cur := range r.d.versions {
		if cur.ProcurementID == v.ProcurementID && cur.Version == v.Version {
			return apperr.New(apperr.Duplicate, "version %d of procurement %s already exists", v.Version, v.ProcurementID)
		}
	}
	c := *v
	c.Snapshot = slices.Clone(v.Snapshot)
	r.d.versions = append(r.d.versions, c)
	return nil
}

func (r *memRepo) GetProcurementVersion(_ context.Context, procurementID string, version int) (*models.ProcurementVersion, error) {
	for _, v := range r.d.versions {
		if v.ProcurementID == procurementID && v.Version == version {
			v.Snapshot = slices.Clone(v.Snapshot)
			return &v, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "version %d of procurement %s not found", version, procurementID)
}

func (r *memRepo) CountProcurementsSince(_ context.Context, constituencyID string, since time.Time) (int, error) {
	n := 0
	for _, p := range r.d.procurements {
		if p.ConstituencyID == constituencyID && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) CreateBid(_ context.Context, b *models.Bid) error {
	if _, ok := r.d.bids[b.ID]; ok {
		return apperr.New(apperr.Duplicate, "bid %s already exists", b.ID)
	}
	for _, other := range r.d.bids {
		if other.ProcurementID == b.ProcurementID && other.BidderID == b.BidderID {
			return apperr.New(apperr.Duplicate, "contractor has already submitted a bid for this procurement")
		}
	}
	c := *b
	c.SealedData = slices.Clone(b.SealedData)
	r.d.bids[b.ID] = c
	r.d.bidOrder = append(r.d.bidOrder, b.ID)
	return nil
}

func (r *memRepo) GetBid(_ context.Context, id string) (*models.Bid, error) {
	b, ok := r.d.bids[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "bid %s not found", id)
	}
	b.SealedData = slices.Clone(b.SealedData)
	return &b, nil
}

func (r *memRepo) BidExists(_ context.Context, procurementID, bidderID string) (bool, error) {
	for _, b := range r.d.bids {
		if b.ProcurementID == procurementID && b.BidderID == bidderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListBids(_ context.Context, procurementID string, status models.BidStatus) ([]models.Bid, error) {
	var out []models.Bid
	for _, id := range r.bidOrder() {
		b := r.d.bids[id]
		if b.ProcurementID != procurementID || (status != "" && b.Status != status) {
			continue
		}
		b.SealedData = slices.Clone(b.SealedData)
		out = append(out, b)
	}
	return out, nil
}

func (r *memRepo) bidOrder() []string {
	order := slices.Clone(r.d.bidOrder)
	slices.SortStableFunc(order, func(a, b string) int {
		return r.d.bids[a].SubmittedAt.Compare(r.d.bids[b].SubmittedAt)
	})
	return order
}

func (r *memRepo) UpdateBid(_ context.Context, b *models.Bid) error {
	if _, ok := r.d.bids[b.ID]; !ok {
		return apperr.New(apperr.NotFound, "bid %s not found", b.ID)
	}
	c := *b
	c.SealedData = slices.Clone(b.SealedData)
	r.d.bids[b.ID] = c
	return nil
}

func (r *memRepo) CreateEvaluation(_ context.Context, e *models.Evaluation) error {
	for _, other := range r.d.evaluations {
		if other.BidID == e.BidID && other.EvaluatorID == e.EvaluatorID {
			return apperr.New(apperr.Duplicate, "evaluator has already evaluated bid %s", e.BidID)
		}
	}
	r.d.evaluations[e.ID] = *e
	r.d.evalOrder = append(r.d.evalOrder, e.ID)
	return nil
}

func (r *memRepo) EvaluationExists(_ context.Context, bidID, evaluatorID string) (bool, error) {
	for _, e := range r.d.evaluations {
		if e.BidID == bidID && e.EvaluatorID == evaluatorID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListEvaluations(_ context.Context, procurementID string) ([]models.Evaluation, error) {
	out := []models.Evaluation{}
	for _, id := range r.d.evalOrder {
		if e := r.d.evaluations[id]; e.ProcurementID == procurementID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) CountCompletedEvaluations(_ context.Context, procurementID string) (map[string]int, error) {
	counts := map[string]int{}
	for _, e := range r.d.evaluations {
		if e.ProcurementID == procurementID && e.Status == models.EvaluationCompleted {
			counts[e.BidID]++
		}
	}
	return counts, nil
}

func (r *memRepo) ListAuditEvents(_ context.Context, procurementID string) ([]models.AuditEvent, error) {
	var out []models.AuditEvent
	for _, ev := range r.d.audit {
		if ev.ProcurementID == procurementID {
			ev.Payload = clonePayload(ev.Payload)
			out = append(out, ev)
		}
	}
	slices.SortFunc(out, func(a, b models.AuditEvent) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Seq, a.Seq)
	})
	return out, nil
}
