package procurement

import (
	"context"
	"strings"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/audit"
	"procurement/internal/identity"
	"procurement/models"

	"go.uber.org/zap"
)

type AwardRequest struct {
	WinningBidID  string     `json:"winning_bid_id"`
	ContractValue float64    `json:"contract_value"`
	AwardDate     *time.Time `json:"award_date"`
	Justification *string    `json:"award_justification"`
}

// Award selects the winning bid. Every valid bid must carry at least two completed
// evaluations before an award is accepted.
func (s *Service) Award(ctx context.Context, actor identity.Actor, procurementID string, req AwardRequest) (*models.Procurement, error) {
	if strings.TrimSpace(req.WinningBidID) == "" {
		return nil, apperr.New(apperr.InvalidInput, "winning_bid_id is required")
	}
	if req.ContractValue < 1 {
		return nil, apperr.New(apperr.InvalidInput, "contract_value must be at least 1")
	}
	if !wholeCents(req.ContractValue) {
		return nil, apperr.New(apperr.InvalidInput, "contract_value must have at most two decimal places")
	}

	var out *models.Procurement
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, procurementID, LockExclusive)
		if err != nil {
			return err
		}
		if err := requireStatus(p, "award contract", models.StatusEvaluation); err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		complete, err := hasTwoEvaluators(ctx, u, p.ID)
		if err != nil {
			return err
		}
		if !complete {
			return apperr.New(apperr.PreconditionFailed, "every valid bid needs at least two completed evaluations before award")
		}
		winner, err := u.GetBid(ctx, req.WinningBidID)
		if err != nil {
			return err
		}
		if winner.ProcurementID != p.ID || winner.Status != models.BidValid {
			return apperr.New(apperr.NotFound, "valid bid %s not found in procurement %s", req.WinningBidID, p.ID)
		}

		now := s.now()
		awardDate := now
		if req.AwardDate != nil {
			awardDate = *req.AwardDate
		}
		p.AwardedContractor = ptr(winner.BidderID)
		p.AwardedBidID = ptr(winner.ID)
		p.ContractValue = ptr(req.ContractValue)
		p.AwardDate = ptr(awardDate)
		p.AwardJustification = req.Justification
		if err := transition(p, models.StatusAwarded); err != nil {
			return err
		}
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		out = p
		return u.record(ctx, audit.Entry{
			ProcurementID: p.ID,
			BidID:         &winner.ID,
			EventType:     models.EventContractAwarded,
			Description:   "Contract awarded",
			Payload:       models.Payload{"contract_value": models.Number(req.ContractValue)},
			At:            now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("contract awarded",
		zap.String("procurement_id", procurementID),
		zap.String("bid_id", req.WinningBidID),
		zap.Float64("contract_value", req.ContractValue),
		zap.String("actor_id", actor.ID))
	return out, nil
}
