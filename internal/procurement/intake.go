package procurement

import (
	"context"
	"strings"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/audit"
	"procurement/internal/identity"
	"procurement/internal/vault"
	"procurement/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SubmitBidRequest struct {
	Amount               float64 `json:"bid_amount"`
	DocumentHash         string  `json:"bid_document_hash"`
	DocumentID           *string `json:"bid_document_id"`
	TechnicalSummary     *string `json:"technical_proposal_summary"`
	DeliveryTimelineDays *int    `json:"delivery_timeline_days"`
	WarrantyMonths       *int    `json:"warranty_period_months"`
}

func (r SubmitBidRequest) validate() error {
	if r.Amount < 1 {
		return apperr.New(apperr.InvalidInput, "bid_amount must be at least 1")
	}
	if !wholeCents(r.Amount) {
		return apperr.New(apperr.InvalidInput, "bid_amount must have at most two decimal places")
	}
	if strings.TrimSpace(r.DocumentHash) == "" {
		return apperr.New(apperr.InvalidInput, "bid_document_hash is required")
	}
	if r.DeliveryTimelineDays != nil && *r.DeliveryTimelineDays < 1 {
		return apperr.New(apperr.InvalidInput, "delivery_timeline_days must be at least 1")
	}
	if r.WarrantyMonths != nil && *r.WarrantyMonths < 0 {
		return apperr.New(apperr.InvalidInput, "warranty_period_months must not be negative")
	}
	return nil
}

// SubmitReceipt confirms a sealed bid without echoing any sealed value.
type SubmitReceipt struct {
	ID            string           `json:"id"`
	ProcurementID string           `json:"procurement_id"`
	Status        models.BidStatus `json:"status"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	Message       string           `json:"message"`
}

// SubmitBid accepts one sealed bid per bidder while the tender is published and open.
func (s *Service) SubmitBid(ctx context.Context, actor identity.Actor, procurementID string, req SubmitBidRequest) (*SubmitReceipt, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var bid *models.Bid
	err := s.inTx(ctx, actor, func(u *unit) error {
		p, err := u.LockProcurement(ctx, procurementID, LockShared)
		if err != nil {
			return err
		}
		if err := requireStatus(p, "submit bid", models.StatusPublished); err != nil {
			return err
		}
		now := s.now()
		if p.ClosingDate != nil && now.After(*p.ClosingDate) {
			return apperr.New(apperr.WindowClosed, "bidding period closed at %s", p.ClosingDate.UTC().Format(time.RFC3339))
		}
		bidderID, ok, err := s.authz.BidderFor(ctx, actor)
		if err != nil {
			return apperr.Wrap(apperr.Unavailable, err, "identity directory unavailable")
		}
		if !ok {
			return apperr.New(apperr.Forbidden, "user is not registered as a contractor")
		}
		exists, err := u.BidExists(ctx, p.ID, bidderID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.Duplicate, "contractor has already submitted a bid for this procurement")
		}

		sealed, err := s.sealer.Seal(vault.Fields{
			Amount:               req.Amount,
			TechnicalSummary:     req.TechnicalSummary,
			DeliveryTimelineDays: req.DeliveryTimelineDays,
			WarrantyMonths:       req.WarrantyMonths,
			SubmittedAt:          now,
		})
		if err != nil {
			return apperr.Wrap(apperr.Internal, err, "failed to seal bid")
		}

		bid = &models.Bid{
			ID:            uuid.NewString(),
			ProcurementID: p.ID,
			BidderID:      bidderID,
			SubmittedBy:   actor.ID,
			SubmittedAt:   now,
			Status:        models.BidSubmitted,
			SealedData:    sealed,
			DocumentHash:  strings.TrimSpace(req.DocumentHash),
			DocumentID:    req.DocumentID,
			UpdatedAt:     now,
		}
		if err := u.CreateBid(ctx, bid); err != nil {
			return err
		}
		return u.record(ctx, audit.Entry{
			ProcurementID: p.ID,
			BidID:         &bid.ID,
			EventType:     models.EventBidSubmitted,
			Description:   "Sealed bid submitted",
			Payload: models.Payload{
				"contractor_id": models.String(bidderID),
				"document_hash": models.String(bid.DocumentHash),
			},
			At: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("sealed bid submitted",
		zap.String("procurement_id", procurementID),
		zap.String("bid_id", bid.ID),
		zap.String("actor_id", actor.ID))
	return &SubmitReceipt{
		ID:            bid.ID,
		ProcurementID: procurementID,
		Status:        bid.Status,
		SubmittedAt:   bid.SubmittedAt,
		Message:       "Bid submitted successfully. Details will be revealed at bid opening.",
	}, nil
}

// BidListing is the bid view for officials; sealed fields are withheld until opening.
type BidListing struct {
	Bids       []models.Bid `json:"bids"`
	BidsOpened bool         `json:"bids_opened"`
	Message    string       `json:"message"`
}

func (s *Service) ListBids(ctx context.Context, procurementID string) (*BidListing, error) {
	p, err := s.store.GetProcurement(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	bids, err := s.store.ListBids(ctx, procurementID, "")
	if err != nil {
		return nil, err
	}
	opened := p.Status.BidsOpened()
	out := &BidListing{Bids: make([]models.Bid, 0, len(bids)), BidsOpened: opened}
	for _, b := range bids {
		if !opened {
			b = b.Sealed()
		}
		b.SealedData = nil
		out.Bids = append(out.Bids, b)
	}
	if opened {
		out.Message = "Bids have been opened and details are visible"
	} else {
		out.Message = "Bids are sealed and will be opened on the bid opening date"
	}
	return out, nil
}
