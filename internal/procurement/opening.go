package procurement

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/audit"
	"procurement/internal/identity"
	"procurement/models"

	"go.uber.org/zap"
)

const decryptFailureReason = "Failed to decrypt bid data"

type OpenBidsRequest struct {
	Witnesses    []string `json:"witnesses"`
	OpeningNotes *string  `json:"opening_notes"`
	MeetingID    *string  `json:"meeting_id"`
}

type OpenedBid struct {
	ID           string           `json:"id"`
	ContractorID string           `json:"contractor_id"`
	Amount       *float64         `json:"bid_amount,omitempty"`
	Status       models.BidStatus `json:"status"`
}

type OpeningResult struct {
	ProcurementID string                   `json:"procurement_id"`
	Status        models.ProcurementStatus `json:"status"`
	BidsOpened    int                      `json:"bids_opened"`
	TotalBids     int                      `json:"total_bids"`
	OpenedBids    []OpenedBid              `json:"opened_bids"`
	InvalidBids   []OpenedBid              `json:"invalid_bids"`
	OpenedAt      time.Time                `json:"opened_at"`
	OpenedBy      string                   `json:"opened_by"`
	Message       string                   `json:"message"`
}

// OpenBids runs the opening ceremony: every submitted bid is decrypted and published,
// and the procurement moves to evaluation. A bid that fails to decrypt is marked invalid
// without stopping the rest. The ceremony can run only once per procurement.
func (s *Service) OpenBids(ctx context.Context, actor identity.Actor, procurementID string, req OpenBidsRequest) (*OpeningResult, error) {
	var res *OpeningResult
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, procurementID, LockExclusive)
		if err != nil {
			return err
		}
		if err := requireStatus(p, "open bids", models.StatusPublished, models.StatusBidOpening); err != nil {
			return err
		}
		if err := s.requireConstituencyAccess(ctx, actor, p); err != nil {
			return err
		}
		now := s.now()
		if p.BidOpeningDate == nil {
			return apperr.New(apperr.PreconditionFailed, "procurement has no bid opening date")
		}
		if now.Before(*p.BidOpeningDate) {
			return apperr.New(apperr.PreconditionFailed, "bids cannot be opened before the bid opening date %s",
				p.BidOpeningDate.UTC().Format(time.RFC3339))
		}
		bids, err := u.ListBids(ctx, p.ID, models.BidSubmitted)
		if err != nil {
			return err
		}
		if len(bids) == 0 {
			return apperr.New(apperr.PreconditionFailed, "no submitted bids to open")
		}

		res = &OpeningResult{
			ProcurementID: p.ID,
			TotalBids:     len(bids),
			OpenedBids:    []OpenedBid{},
			InvalidBids:   []OpenedBid{},
			OpenedAt:      now,
			OpenedBy:      actor.ID,
		}
		for i := range bids {
			b := &bids[i]
			opened, err := s.openOne(ctx, u, b, now)
			if err != nil {
				return err
			}
			if opened {
				res.OpenedBids = append(res.OpenedBids, OpenedBid{ID: b.ID, ContractorID: b.BidderID, Amount: b.Amount, Status: b.Status})
			} else {
				res.InvalidBids = append(res.InvalidBids, OpenedBid{ID: b.ID, ContractorID: b.BidderID, Status: b.Status})
			}
		}

		if err := transition(p, models.StatusEvaluation); err != nil {
			return err
		}
		if err := u.saveProcurement(ctx, p); err != nil {
			return err
		}
		res.Status = p.Status
		res.BidsOpened = len(res.OpenedBids)
		res.Message = fmt.Sprintf("Successfully opened %d of %d bids. Procurement is now in evaluation phase.",
			res.BidsOpened, res.TotalBids)

		witnesses := req.Witnesses
		if witnesses == nil {
			witnesses = []string{}
		}
		return u.record(ctx, audit.Entry{
			ProcurementID: p.ID,
			EventType:     models.EventOpeningCeremony,
			Description:   "All bids opened in official ceremony",
			Payload: models.Payload{
				"total_bids":    models.Int(res.TotalBids),
				"valid_bids":    models.Int(res.BidsOpened),
				"witnesses":     models.Strings(witnesses),
				"opening_notes": models.OptionalString(req.OpeningNotes),
				"meeting_id":    models.OptionalString(req.MeetingID),
			},
			At: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("bid opening ceremony completed",
		zap.String("procurement_id", procurementID),
		zap.Int("total_bids", res.TotalBids),
		zap.Int("valid_bids", res.BidsOpened),
		zap.String("actor_id", actor.ID))
	return res, nil
}

// openOne decrypts a single bid. A seal failure is absorbed here and reported as opened=false;
// only store errors are returned.
func (s *Service) openOne(ctx context.Context, u *unit, b *models.Bid, now time.Time) (bool, error) {
	b.OpenedAt = ptr(now)
	b.OpenedBy = ptr(u.actor.ID)
	b.UpdatedAt = now

	fields, err := s.sealer.Unseal(b.SealedData)
	if err != nil {
		sealErr := apperr.Wrap(apperr.SealIntegrity, err, "bid %s could not be decrypted", b.ID)
		s.log.Error("sealed bid rejected at opening",
			zap.String("procurement_id", b.ProcurementID),
			zap.String("bid_id", b.ID),
			zap.Error(sealErr))
		b.Status = models.BidInvalid
		b.DisqualificationReason = ptr(decryptFailureReason)
		return false, u.UpdateBid(ctx, b)
	}

	b.Status = models.BidValid
	b.Amount = ptr(fields.Amount)
	b.TechnicalSummary = fields.TechnicalSummary
	b.DeliveryTimelineDays = fields.DeliveryTimelineDays
	b.WarrantyMonths = fields.WarrantyMonths
	if err := u.UpdateBid(ctx, b); err != nil {
		return false, err
	}
	return true, u.record(ctx, audit.Entry{
		ProcurementID: b.ProcurementID,
		BidID:         &b.ID,
		EventType:     models.EventBidOpened,
		Description:   "Sealed bid opened and decrypted",
		Payload:       models.Payload{"bid_amount": models.Number(fields.Amount)},
		At:            now,
	})
}
