package handlers

import (
	"context"

	"procurement/internal/audit"
	"procurement/internal/identity"
	"procurement/internal/procurement"
	"procurement/models"
)

// Workflow is the procurement service as seen by the HTTP layer.
type Workflow interface {
	Create(ctx context.Context, actor identity.Actor, req procurement.CreateRequest) (*models.Procurement, error)
	UpdateDraft(ctx context.Context, actor identity.Actor, id string, req procurement.UpdateRequest) (*models.Procurement, error)
	Get(ctx context.Context, id string) (*models.Procurement, error)
	Version(ctx context.Context, id string, version int) (*procurement.VersionSnapshot, error)
	Publish(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error)
	CloseBidding(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error)
	Status(ctx context.Context, id string) (*procurement.WorkflowStatus, error)

	SubmitBid(ctx context.Context, actor identity.Actor, procurementID string, req procurement.SubmitBidRequest) (*procurement.SubmitReceipt, error)
	ListBids(ctx context.Context, procurementID string) (*procurement.BidListing, error)
	OpenBids(ctx context.Context, actor identity.Actor, procurementID string, req procurement.OpenBidsRequest) (*procurement.OpeningResult, error)

	Evaluate(ctx context.Context, actor identity.Actor, procurementID string, req procurement.EvaluateRequest) (*models.Evaluation, error)
	ListEvaluations(ctx context.Context, procurementID string) ([]models.Evaluation, error)

	Award(ctx context.Context, actor identity.Actor, procurementID string, req procurement.AwardRequest) (*models.Procurement, error)
	SignContract(ctx context.Context, actor identity.Actor, id string, req procurement.ContractRequest) (*models.Procurement, error)
	Complete(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error)

	Trail(ctx context.Context, procurementID string) ([]models.AuditEvent, error)
	VerifyTrail(ctx context.Context, procurementID string) (audit.Report, error)
}

var _ Workflow = (*procurement.Service)(nil)

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}
