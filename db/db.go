package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/procurement"
	"procurement/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage implements procurement.Store on PostgreSQL. Inside WithTx the same type runs
// against the transaction instead of the pool.
type Storage struct {
	db      *sqlx.DB
	q       sqlx.ExtContext
	timeout time.Duration
}

var _ procurement.Store = (*Storage)(nil)

// NewStorage returns a Storage whose calls and transactions are bounded by timeout (0 disables it).
func NewStorage(db *sqlx.DB, timeout time.Duration) *Storage {
	return &Storage{db: db, q: db, timeout: timeout}
}

func (s *Storage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Storage) WithTx(ctx context.Context, fn func(tx procurement.Repository) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapErr(err, "begin transaction")
	}
	defer tx.Rollback()

	if err := fn(&Storage{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err, "commit transaction")
	}
	return nil
}

// mapErr translates driver errors into the workflow's error kinds.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return apperr.Wrap(apperr.NotFound, err, "%s not found", what)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return apperr.Wrap(apperr.Unavailable, err, "store unavailable: %s", what)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return apperr.Wrap(apperr.Duplicate, err, "%s already exists", what)
		case pqErr.Code == "22P02":
			return apperr.Wrap(apperr.NotFound, err, "%s not found", what)
		case pqErr.Code == "40001", pqErr.Code == "40P01", pqErr.Code == "55P03", pqErr.Code == "57014",
			pqErr.Code.Class() == "08", pqErr.Code.Class() == "53":
			return apperr.Wrap(apperr.Unavailable, err, "store unavailable: %s", what)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.Unavailable, err, "store unavailable: %s", what)
	}
	return apperr.Wrap(apperr.Internal, err, "%s", what)
}

// Procurement

func (s *Storage) GetProcurement(ctx context.Context, id string) (*models.Procurement, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	p := &models.Procurement{}
	query := `SELECT * FROM procurements WHERE id=$1`
	if err := sqlx.GetContext(ctx, s.q, p, query, id); err != nil {
		return nil, mapErr(err, "procurement "+id)
	}
	return p, nil
}

func (s *Storage) LockProcurement(ctx context.Context, id string, mode procurement.LockMode) (*models.Procurement, error) {
	query := `SELECT * FROM procurements WHERE id=$1 FOR SHARE`
	if mode == procurement.LockExclusive {
		query = `SELECT * FROM procurements WHERE id=$1 FOR UPDATE`
	}
	p := &models.Procurement{}
	if err := sqlx.GetContext(ctx, s.q, p, query, id); err != nil {
		return nil, mapErr(err, "procurement "+id)
	}
	return p, nil
}

func (s *Storage) CreateProcurement(ctx context.Context, p *models.Procurement) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        INSERT INTO procurements
            (id, procurement_number, title, description, constituency_id, project_id, procurement_method,
             estimated_value, publish_date, closing_date, bid_opening_date, zppa_reference, status,
             created_by, version, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
	_, err := s.q.ExecContext(ctx, query,
		p.ID, p.ProcurementNumber, p.Title, p.Description, p.ConstituencyID, p.ProjectID, p.Method,
		p.EstimatedValue, p.PublishDate, p.ClosingDate, p.BidOpeningDate, p.ZPPAReference, p.Status,
		p.CreatedBy, p.Version, p.CreatedAt, p.UpdatedAt)
	return mapErr(err, "procurement "+p.ProcurementNumber)
}

func (s *Storage) UpdateProcurement(ctx context.Context, p *models.Procurement) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        UPDATE procurements
        SET title=$1, description=$2, project_id=$3, procurement_method=$4, estimated_value=$5,
            publish_date=$6, closing_date=$7, bid_opening_date=$8, zppa_reference=$9, status=$10,
            awarded_contractor_id=$11, awarded_bid_id=$12, contract_value=$13, award_date=$14,
            award_justification=$15, contract_start_date=$16, contract_end_date=$17, contract_terms=$18,
            updated_at=$19, version=version+1
        WHERE id=$20 AND version=$21`
	res, err := s.q.ExecContext(ctx, query,
		p.Title, p.Description, p.ProjectID, p.Method, p.EstimatedValue,
		p.PublishDate, p.ClosingDate, p.BidOpeningDate, p.ZPPAReference, p.Status,
		p.AwardedContractor, p.AwardedBidID, p.ContractValue, p.AwardDate,
		p.AwardJustification, p.ContractStartDate, p.ContractEndDate, p.ContractTerms,
		p.UpdatedAt, p.ID, p.Version)
	if err != nil {
		return mapErr(err, "procurement "+p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err, "procurement "+p.ID)
	}
	if n == 0 {
		if _, err := s.GetProcurement(ctx, p.ID); err != nil {
			return err
		}
		return apperr.New(apperr.Unavailable, "procurement %s modified concurrently, retry", p.ID)
	}
	p.Version++
	return nil
}

func (s *Storage) SaveProcurementVersion(ctx context.Context, v *models.ProcurementVersion) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        INSERT INTO procurement_versions
            (procurement_id, version, status, snapshot, changed_by, created_at)
        VALUES
            ($1, $2, $3, $4::jsonb, $5, $6)`
	_, err := s.q.ExecContext(ctx, query,
		v.ProcurementID, v.Version, v.Status, string(v.Snapshot), v.ChangedBy, v.CreatedAt)
	return mapErr(err, "procurement version")
}

// GetProcurementVersion returns one stored snapshot.
func (s *Storage) GetProcurementVersion(ctx context.Context, procurementID string, version int) (*models.ProcurementVersion, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var v models.ProcurementVersion
	query := `
        SELECT procurement_id, version, status, snapshot, changed_by, created_at
        FROM procurement_versions
        WHERE procurement_id = $1 AND version = $2`
	if err := sqlx.GetContext(ctx, s.q, &v, query, procurementID, version); err != nil {
		return nil, mapErr(err, "procurement version")
	}
	return &v, nil
}

// CountProcurementsSince also takes a per-constituency advisory lock, so numbering inside a
// transaction is serialized until commit.
func (s *Storage) CountProcurementsSince(ctx context.Context, constituencyID string, since time.Time) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, constituencyID); err != nil {
		return 0, mapErr(err, "procurement numbering lock")
	}
	var count int
	query := `SELECT COUNT(1) FROM procurements WHERE constituency_id=$1 AND created_at >= $2`
	if err := sqlx.GetContext(ctx, s.q, &count, query, constituencyID, since); err != nil {
		return 0, mapErr(err, "procurement count")
	}
	return count, nil
}

// Bid

func (s *Storage) CreateBid(ctx context.Context, b *models.Bid) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        INSERT INTO procurement_bids
            (id, procurement_id, contractor_id, submitted_by, submitted_at, status,
             encrypted_bid_data, bid_document_hash, bid_document_id, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.q.ExecContext(ctx, query,
		b.ID, b.ProcurementID, b.BidderID, b.SubmittedBy, b.SubmittedAt, b.Status,
		b.SealedData, b.DocumentHash, b.DocumentID, b.UpdatedAt)
	return mapErr(err, "bid for contractor "+b.BidderID)
}

func (s *Storage) GetBid(ctx context.Context, id string) (*models.Bid, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	b := &models.Bid{}
	query := `SELECT * FROM procurement_bids WHERE id=$1`
	if err := sqlx.GetContext(ctx, s.q, b, query, id); err != nil {
		return nil, mapErr(err, "bid "+id)
	}
	return b, nil
}

func (s *Storage) BidExists(ctx context.Context, procurementID, bidderID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var count int
	query := `SELECT COUNT(1) FROM procurement_bids WHERE procurement_id=$1 AND contractor_id=$2`
	if err := sqlx.GetContext(ctx, s.q, &count, query, procurementID, bidderID); err != nil {
		return false, mapErr(err, "bid lookup")
	}
	return count > 0, nil
}

func (s *Storage) ListBids(ctx context.Context, procurementID string, status models.BidStatus) ([]models.Bid, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        SELECT * FROM procurement_bids
        WHERE procurement_id = $1 AND ($2::text = '' OR status = $2::text)
        ORDER BY submitted_at ASC, id ASC`
	bids := []models.Bid{}
	if err := sqlx.SelectContext(ctx, s.q, &bids, query, procurementID, string(status)); err != nil {
		return nil, mapErr(err, "bids")
	}
	return bids, nil
}

func (s *Storage) UpdateBid(ctx context.Context, b *models.Bid) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        UPDATE procurement_bids
        SET status=$1, bid_amount=$2, technical_proposal_summary=$3, delivery_timeline_days=$4,
            warranty_period_months=$5, opened_at=$6, opened_by=$7, disqualification_reason=$8, updated_at=$9
        WHERE id=$10`
	res, err := s.q.ExecContext(ctx, query,
		b.Status, b.Amount, b.TechnicalSummary, b.DeliveryTimelineDays,
		b.WarrantyMonths, b.OpenedAt, b.OpenedBy, b.DisqualificationReason, b.UpdatedAt, b.ID)
	if err != nil {
		return mapErr(err, "bid "+b.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.NotFound, "bid %s not found", b.ID)
	}
	return nil
}

// Evaluation

func (s *Storage) CreateEvaluation(ctx context.Context, e *models.Evaluation) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        INSERT INTO procurement_evaluations
            (id, procurement_id, bid_id, evaluator_id, technical_score, financial_score, experience_score,
             compliance_score, technical_comments, financial_comments, total_score, recommendation,
             recommendation_reason, status, completed_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := s.q.ExecContext(ctx, query,
		e.ID, e.ProcurementID, e.BidID, e.EvaluatorID, e.TechnicalScore, e.FinancialScore, e.ExperienceScore,
		e.ComplianceScore, e.TechnicalComments, e.FinancialComments, e.CompositeScore, e.Recommendation,
		e.Rationale, e.Status, e.CompletedAt)
	return mapErr(err, "evaluation of bid "+e.BidID)
}

func (s *Storage) EvaluationExists(ctx context.Context, bidID, evaluatorID string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	var count int
	query := `SELECT COUNT(1) FROM procurement_evaluations WHERE bid_id=$1 AND evaluator_id=$2`
	if err := sqlx.GetContext(ctx, s.q, &count, query, bidID, evaluatorID); err != nil {
		return false, mapErr(err, "evaluation lookup")
	}
	return count > 0, nil
}

func (s *Storage) ListEvaluations(ctx context.Context, procurementID string) ([]models.Evaluation, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        SELECT * FROM procurement_evaluations
        WHERE procurement_id = $1
        ORDER BY completed_at ASC, id ASC`
	evs := []models.Evaluation{}
	if err := sqlx.SelectContext(ctx, s.q, &evs, query, procurementID); err != nil {
		return nil, mapErr(err, "evaluations")
	}
	return evs, nil
}

func (s *Storage) CountCompletedEvaluations(ctx context.Context, procurementID string) (map[string]int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        SELECT bid_id, COUNT(1) AS completed
        FROM procurement_evaluations
        WHERE procurement_id = $1 AND status = $2
        GROUP BY bid_id`
	var rows []struct {
		BidID     string `db:"bid_id"`
		Completed int    `db:"completed"`
	}
	if err := sqlx.SelectContext(ctx, s.q, &rows, query, procurementID, models.EvaluationCompleted); err != nil {
		return nil, mapErr(err, "evaluation counts")
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.BidID] = r.Completed
	}
	return counts, nil
}

// Audit

// InsertAuditEvent appends an event. The table has no update or delete path.
func (s *Storage) InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        INSERT INTO procurement_audit_events
            (id, procurement_id, bid_id, event_type, event_description, actor_id, actor_role,
             event_data, event_hash, created_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
        RETURNING seq`
	err := s.q.QueryRowxContext(ctx, query,
		ev.ID, ev.ProcurementID, ev.BidID, ev.EventType, ev.Description, ev.ActorID, ev.ActorRole,
		ev.Payload, ev.Hash, ev.CreatedAt).Scan(&ev.Seq)
	return mapErr(err, "audit event")
}

func (s *Storage) ListAuditEvents(ctx context.Context, procurementID string) ([]models.AuditEvent, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	query := `
        SELECT * FROM procurement_audit_events
        WHERE procurement_id = $1
        ORDER BY created_at DESC, seq DESC`
	events := []models.AuditEvent{}
	if err := sqlx.SelectContext(ctx, s.q, &events, query, procurementID); err != nil {
		return nil, mapErr(err, "audit trail")
	}
	return events, nil
}

// Ping checks the pool for the readiness probe.
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return mapErr(s.db.PingContext(ctx), "ping")
}
