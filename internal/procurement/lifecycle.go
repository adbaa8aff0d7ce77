package procurement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/identity"
	"procurement/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateRequest struct {
	Title            string                   `json:"title"`
	Description      *string                  `json:"description"`
	ConstituencyID   string                   `json:"constituency_id"`
	ConstituencyCode string                   `json:"constituency_code"`
	ProjectID        *string                  `json:"project_id"`
	Method           models.ProcurementMethod `json:"procurement_method"`
	EstimatedValue   float64                  `json:"estimated_value"`
	PublishDate      *time.Time               `json:"publish_date"`
	ClosingDate      *time.Time               `json:"closing_date"`
	BidOpeningDate   *time.Time               `json:"bid_opening_date"`
	ZPPAReference    *string                  `json:"zppa_reference"`
}

// UpdateRequest carries the draft fields to change; nil means unchanged.
type UpdateRequest struct {
	Title          *string                   `json:"title"`
	Description    *string                   `json:"description"`
	ProjectID      *string                   `json:"project_id"`
	Method         *models.ProcurementMethod `json:"procurement_method"`
	EstimatedValue *float64                  `json:"estimated_value"`
	ClosingDate    *time.Time                `json:"closing_date"`
	BidOpeningDate *time.Time                `json:"bid_opening_date"`
	ZPPAReference  *string                   `json:"zppa_reference"`
}

type ContractRequest struct {
	StartDate *time.Time `json:"contract_start_date"`
	EndDate   *time.Time `json:"contract_end_date"`
	Terms     *string    `json:"contract_terms"`
}

func validateSchedule(closing, opening *time.Time) error {
	if closing != nil && opening != nil && opening.Before(*closing) {
		return apperr.New(apperr.InvalidInput, "bid_opening_date must not be before closing_date")
	}
	return nil
}

// Create drafts a new procurement in the actor's constituency.
func (s *Service) Create(ctx context.Context, actor identity.Actor, req CreateRequest) (*models.Procurement, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, apperr.New(apperr.InvalidInput, "title is required")
	}
	if req.ConstituencyID == "" {
		return nil, apperr.New(apperr.InvalidInput, "constituency_id is required")
	}
	if !models.ValidProcurementMethod(req.Method) {
		return nil, apperr.New(apperr.InvalidInput, "invalid procurement_method %q", req.Method)
	}
	if req.EstimatedValue < 1 || !wholeCents(req.EstimatedValue) {
		return nil, apperr.New(apperr.InvalidInput, "estimated_value must be at least 1 with at most two decimal places")
	}
	if err := validateSchedule(req.ClosingDate, req.BidOpeningDate); err != nil {
		return nil, err
	}

	now := s.now()
	p := &models.Procurement{
		ID:             uuid.NewString(),
		Title:          strings.TrimSpace(req.Title),
		Description:    req.Description,
		ConstituencyID: req.ConstituencyID,
		ProjectID:      req.ProjectID,
		Method:         req.Method,
		EstimatedValue: req.EstimatedValue,
		PublishDate:    req.PublishDate,
		ClosingDate:    req.ClosingDate,
		BidOpeningDate: req.BidOpeningDate,
		ZPPAReference:  req.ZPPAReference,
		Status:         models.StatusDraft,
		CreatedBy:      actor.ID,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
		return nil, err
	}

	err := s.inTx(ctx, actor, func(u *unit) error {
		yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
		n, err := u.CountProcurementsSince(ctx, p.ConstituencyID, yearStart)
		if err != nil {
			return err
		}
		p.ProcurementNumber = procurementNumber(req.ConstituencyCode, now.Year(), n+1)
		if err := u.CreateProcurement(ctx, p); err != nil {
			return err
		}
		return u.snapshot(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("procurement created",
		zap.String("procurement_id", p.ID),
		zap.String("procurement_number", p.ProcurementNumber),
		zap.String("actor_id", actor.ID))
	return p, nil
}

func procurementNumber(code string, year, seq int) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "UNK"
	}
	return fmt.Sprintf("PROC-%s-%d-%04d", code, year, seq)
}

// UpdateDraft edits a procurement that has not been published yet.
func (s *Service) UpdateDraft(ctx context.Context, actor identity.Actor, id string, req UpdateRequest) (*models.Procurement, error) {
	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, id, LockExclusive)
		if err != nil {
			return err
		}
		if err := requireStatus(p, "update procurement", models.StatusDraft); err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return apperr.New(apperr.InvalidInput, "title must not be empty")
			}
			p.Title = strings.TrimSpace(*req.Title)
		}
		if req.Description != nil {
			p.Description = req.Description
		}
		if req.ProjectID != nil {
			p.ProjectID = req.ProjectID
		}
		if req.Method != nil {
			if !models.ValidProcurementMethod(*req.Method) {
				return apperr.New(apperr.InvalidInput, "invalid procurement_method %q", *req.Method)
			}
			p.Method = *req.Method
		}
		if req.EstimatedValue != nil {
			if *req.EstimatedValue < 1 || !wholeCents(*req.EstimatedValue) {
				return apperr.New(apperr.InvalidInput, "estimated_value must be at least 1 with at most two decimal places")
			}
			p.EstimatedValue = *req.EstimatedValue
		}
		if req.ClosingDate != nil {
			p.ClosingDate = req.ClosingDate
		}
		if req.BidOpeningDate != nil {
			p.BidOpeningDate = req.BidOpeningDate
		}
		if req.ZPPAReference != nil {
			p.ZPPAReference = req.ZPPAReference
		}
		if err := validateSchedule(p.ClosingDate, p.BidOpeningDate); err != nil {
			return err
		}
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Publish opens the tender for bids. Closing and opening dates must be set.
func (s *Service) Publish(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error) {
	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, id, LockExclusive)
		if err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		if p.Status == models.StatusDraft && (p.ClosingDate == nil || p.BidOpeningDate == nil) {
			return apperr.New(apperr.PreconditionFailed, "closing_date and bid_opening_date are required before publishing")
		}
		if err := transition(p, models.StatusPublished); err != nil {
			return err
		}
		p.PublishDate = ptr(s.now())
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("procurement published", zap.String("procurement_id", id), zap.String("actor_id", actor.ID))
	return out, nil
}

// CloseBidding stops intake once the closing date has passed; opening is then the only way forward.
func (s *Service) CloseBidding(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error) {
	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, id, LockExclusive)
		if err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		if p.Status == models.StatusPublished && p.ClosingDate != nil && !s.now().After(*p.ClosingDate) {
			return apperr.New(apperr.PreconditionFailed, "bidding cannot be closed before the closing date %s",
				p.ClosingDate.UTC().Format(time.RFC3339))
		}
		if err := transition(p, models.StatusBidOpening); err != nil {
			return err
		}
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// SignContract records the signed contract for an awarded procurement.
func (s *Service) SignContract(ctx context.Context, actor identity.Actor, id string, req ContractRequest) (*models.Procurement, error) {
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, apperr.New(apperr.InvalidInput, "contract_end_date must not be before contract_start_date")
	}
	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, id, LockExclusive)
		if err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		if err := transition(p, models.StatusContracted); err != nil {
			return err
		}
		p.ContractStartDate = req.StartDate
		p.ContractEndDate = req.EndDate
		p.ContractTerms = req.Terms
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Complete closes out a contracted procurement.
func (s *Service) Complete(ctx context.Context, actor identity.Actor, id string) (*models.Procurement, error) {
	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, id, LockExclusive)
		if err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		if err := transition(p, models.StatusCompleted); err != nil {
			return err
		}
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (*models.Procurement, error) {
	return s.store.GetProcurement(ctx, id)
}

// WorkflowStatus summarizes where a procurement stands and what can happen next.
type WorkflowStatus struct {
	ID                string                   `json:"id"`
	ProcurementNumber string                   `json:"procurement_number"`
	Status            models.ProcurementStatus `json:"status"`
	TotalBids         int                      `json:"total_bids"`
	HasTwoEvaluators  bool                     `json:"has_two_evaluators"`
	CanPublish        bool                     `json:"can_publish"`
	CanOpenBids       bool                     `json:"can_open_bids"`
	CanEvaluate       bool                     `json:"can_evaluate"`
	CanAward          bool                     `json:"can_award"`
}

func (s *Service) Status(ctx context.Context, id string) (*WorkflowStatus, error) {
	p, err := s.store.GetProcurement(ctx, id)
	if err != nil {
		return nil, err
	}
	bids, err := s.store.ListBids(ctx, id, "")
	if err != nil {
		return nil, err
	}
	two, err := hasTwoEvaluators(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	openable := (p.Status == models.StatusPublished || p.Status == models.StatusBidOpening) &&
		p.BidOpeningDate != nil && !s.now().Before(*p.BidOpeningDate)
	return &WorkflowStatus{
		ID:                p.ID,
		ProcurementNumber: p.ProcurementNumber,
		Status:            p.Status,
		TotalBids:         len(bids),
		HasTwoEvaluators:  two,
		CanPublish:        p.Status == models.StatusDraft && p.ClosingDate != nil && p.BidOpeningDate != nil,
		CanOpenBids:       openable,
		CanEvaluate:       p.Status == models.StatusEvaluation,
		CanAward:          p.Status == models.StatusEvaluation && two,
	}, nil
}

// VersionSnapshot is a stored revision of a procurement.
type VersionSnapshot struct {
	Version     int                      `json:"version"`
	Status      models.ProcurementStatus `json:"status"`
	ChangedBy   string                   `json:"changed_by"`
	CreatedAt   time.Time                `json:"created_at"`
	Procurement models.Procurement       `json:"procurement"`
}

// Version returns procurement id as it was at the given version.
func (s *Service) Version(ctx context.Context, id string, version int) (*VersionSnapshot, error) {
	v, err := s.store.GetProcurementVersion(ctx, id, version)
	if err != nil {
		return nil, err
	}
	out := &VersionSnapshot{Version: v.Version, Status: v.Status, ChangedBy: v.ChangedBy, CreatedAt: v.CreatedAt}
	if err := json.Unmarshal(v.Snapshot, &out.Procurement); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "decode version %d of procurement %s", version, id)
	}
	return out, nil
}
