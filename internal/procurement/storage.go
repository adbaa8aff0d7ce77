package procurement

import (
	"context"
	"time"

	"procurement/internal/audit"
	"procurement/models"
)

// LockMode selects how a transaction pins the procurement row.
type LockMode int

const (
	// LockShared lets concurrent submitters and evaluators proceed while blocking openers and awarders.
	LockShared LockMode = iota
	// LockExclusive serializes status transitions.
	LockExclusive
)

// Repository is the data access the workflow needs. Lookups of missing rows return apperr.NotFound,
// unique violations return apperr.Duplicate and store timeouts return apperr.Unavailable.
type Repository interface {
	audit.Appender

	GetProcurement(ctx context.Context, id string) (*models.Procurement, error)
	LockProcurement(ctx context.Context, id string, mode LockMode) (*models.Procurement, error)
	CreateProcurement(ctx context.Context, p *models.Procurement) error
	// UpdateProcurement writes p only if the stored version still equals p.Version, then bumps p.Version.
	UpdateProcurement(ctx context.Context, p *models.Procurement) error
	SaveProcurementVersion(ctx context.Context, v *models.ProcurementVersion) error
	GetProcurementVersion(ctx context.Context, procurementID string, version int) (*models.ProcurementVersion, error)
	CountProcurementsSince(ctx context.Context, constituencyID string, since time.Time) (int, error)

	CreateBid(ctx context.Context, b *models.Bid) error
	GetBid(ctx context.Context, id string) (*models.Bid, error)
	BidExists(ctx context.Context, procurementID, bidderID string) (bool, error)
	// ListBids returns bids ordered by submission time; an empty status means all bids.
	ListBids(ctx context.Context, procurementID string, status models.BidStatus) ([]models.Bid, error)
	UpdateBid(ctx context.Context, b *models.Bid) error

	CreateEvaluation(ctx context.Context, e *models.Evaluation) error
	EvaluationExists(ctx context.Context, bidID, evaluatorID string) (bool, error)
	ListEvaluations(ctx context.Context, procurementID string) ([]models.Evaluation, error)
	// CountCompletedEvaluations maps bid id to its number of completed evaluations.
	CountCompletedEvaluations(ctx context.Context, procurementID string) (map[string]int, error)

	// ListAuditEvents returns the trail newest first.
	ListAuditEvents(ctx context.Context, procurementID string) ([]models.AuditEvent, error)
}

// Store is a Repository that can run a unit of work atomically.
type Store interface {
	Repository
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}
