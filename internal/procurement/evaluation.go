package procurement

import (
	"context"

	"procurement/internal/apperr"
	"procurement/internal/audit"
	"procurement/internal/identity"
	"procurement/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EvaluateRequest struct {
	BidID             string                `json:"bid_id"`
	TechnicalScore    float64               `json:"technical_score"`
	FinancialScore    float64               `json:"financial_score"`
	ExperienceScore   *float64              `json:"experience_score"`
	ComplianceScore   *float64              `json:"compliance_score"`
	TechnicalComments *string               `json:"technical_comments"`
	FinancialComments *string               `json:"financial_comments"`
	Recommendation    models.Recommendation `json:"recommendation"`
	Rationale         *string               `json:"recommendation_reason"`
}

func (r EvaluateRequest) validate() error {
	if r.BidID == "" {
		return apperr.New(apperr.InvalidInput, "bid_id is required")
	}
	scores := []struct {
		name  string
		value *float64
	}{
		{"technical_score", &r.TechnicalScore},
		{"financial_score", &r.FinancialScore},
		{"experience_score", r.ExperienceScore},
		{"compliance_score", r.ComplianceScore},
	}
	for _, sc := range scores {
		if sc.value != nil && (*sc.value < 0 || *sc.value > 100) {
			return apperr.New(apperr.OutOfRange, "%s must be between 0 and 100, got %v", sc.name, *sc.value)
		}
		if sc.value != nil && !wholeCents(*sc.value) {
			return apperr.New(apperr.InvalidInput, "%s must have at most two decimal places", sc.name)
		}
	}
	if !models.ValidRecommendation(r.Recommendation) {
		return apperr.New(apperr.InvalidInput, "recommendation must be award, reject or conditional")
	}
	return nil
}

// Evaluate records one evaluator's scores for one opened bid. An evaluator scores a bid once.
func (s *Service) Evaluate(ctx context.Context, actor identity.Actor, procurementID string, req EvaluateRequest) (*models.Evaluation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var ev *models.Evaluation
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, procurementID, LockShared)
		if err != nil {
			return err
		}
		if err := requireStatus(p, "evaluate bid", models.StatusEvaluation); err != nil {
			return err
		}
		bid, err := u.GetBid(ctx, req.BidID)
		if err != nil {
			return err
		}
		if bid.ProcurementID != p.ID {
			return apperr.New(apperr.NotFound, "bid %s not found in procurement %s", req.BidID, p.ID)
		}
		if bid.Status != models.BidValid {
			return apperr.New(apperr.InvalidState, "bid %s is %s and cannot be evaluated", bid.ID, bid.Status)
		}
		exists, err := u.EvaluationExists(ctx, bid.ID, actor.ID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.Duplicate, "evaluator has already evaluated bid %s", bid.ID)
		}

		now := s.now()
		composite := s.scoring.Composite(Scores{
			Technical:  req.TechnicalScore,
			Financial:  req.FinancialScore,
			Experience: req.ExperienceScore,
			Compliance: req.ComplianceScore,
		})
		ev = &models.Evaluation{
			ID:                uuid.NewString(),
			ProcurementID:     p.ID,
			BidID:             bid.ID,
			EvaluatorID:       actor.ID,
			TechnicalScore:    req.TechnicalScore,
			FinancialScore:    req.FinancialScore,
			ExperienceScore:   req.ExperienceScore,
			ComplianceScore:   req.ComplianceScore,
			TechnicalComments: req.TechnicalComments,
			FinancialComments: req.FinancialComments,
			CompositeScore:    composite,
			Recommendation:    req.Recommendation,
			Rationale:         req.Rationale,
			Status:            models.EvaluationCompleted,
			CompletedAt:       now,
		}
		if err := u.CreateEvaluation(ctx, ev); err != nil {
			return err
		}
		return u.record(ctx, audit.Entry{
			ProcurementID: p.ID,
			BidID:         &bid.ID,
			EventType:     models.EventBidEvaluated,
			Description:   "Evaluation submitted",
			Payload:       models.Payload{"total_score": models.Number(composite)},
			At:            now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("bid evaluated",
		zap.String("procurement_id", procurementID),
		zap.String("bid_id", req.BidID),
		zap.String("evaluator_id", actor.ID),
		zap.Float64("total_score", ev.CompositeScore))
	return ev, nil
}

// HasTwoEvaluators reports whether every valid bid of the procurement has at least two
// completed evaluations. A procurement without valid bids never qualifies.
func (s *Service) HasTwoEvaluators(ctx context.Context, procurementID string) (bool, error) {
	if _, err := s.store.GetProcurement(ctx, procurementID); err != nil {
		return false, err
	}
	return hasTwoEvaluators(ctx, s.store, procurementID)
}

func (s *Service) ListEvaluations(ctx context.Context, procurementID string) ([]models.Evaluation, error) {
	if _, err := s.store.GetProcurement(ctx, procurementID); err != nil {
		return nil, err
	}
	return s.store.ListEvaluations(ctx, procurementID)
}
