package procurement_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/identity"
	"procurement/internal/procurement"
	"procurement/internal/procurement/proctest"
	"procurement/models"

	"github.com/stretchr/testify/require"
)

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected error: %v", err)
}

func evaluate(t *testing.T, f *proctest.Fixture, evaluator identity.Actor, procurementID, bidID string, technical, financial float64) *models.Evaluation {
	t.Helper()
	ev, err := f.Service.Evaluate(context.Background(), evaluator, procurementID, procurement.EvaluateRequest{
		BidID:          bidID,
		TechnicalScore: technical,
		FinancialScore: financial,
		Recommendation: models.RecommendAward,
	})
	require.NoError(t, err)
	return ev
}

func countByType(events []models.AuditEvent) map[models.AuditEventType]int {
	out := map[models.AuditEventType]int{}
	for _, ev := range events {
		out[ev.EventType]++
	}
	return out
}

func TestCreateAssignsNumberAndSnapshots(t *testing.T) {
	f := proctest.NewFixture(t)
	p := f.Published(t)

	require.Equal(t, "PROC-LSK-2026-0001", p.ProcurementNumber)
	require.Equal(t, models.StatusPublished, p.Status)
	require.NotNil(t, p.PublishDate)

	versions := f.Store.Versions(p.ID)
	require.Len(t, versions, 2)
	require.Equal(t, models.StatusDraft, versions[0].Status)
	require.Equal(t, models.StatusPublished, versions[1].Status)
	require.Equal(t, 2, versions[1].Version)

	second := f.Published(t)
	require.Equal(t, "PROC-LSK-2026-0002", second.ProcurementNumber)
}

func TestCreateValidation(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	closing := proctest.Epoch.Add(48 * time.Hour)
	opening := proctest.Epoch.Add(24 * time.Hour)

	_, err := f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title: "Borehole drilling", ConstituencyID: proctest.Constituency,
		Method: models.MethodOpenBidding, EstimatedValue: 1000,
		ClosingDate: &closing, BidOpeningDate: &opening,
	})
	requireKind(t, err, apperr.InvalidInput)

	_, err = f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title: "Borehole drilling", ConstituencyID: proctest.Constituency,
		Method: "auction", EstimatedValue: 1000,
	})
	requireKind(t, err, apperr.InvalidInput)

	_, err = f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title: "Borehole drilling", ConstituencyID: "const-elsewhere",
		Method: models.MethodOpenBidding, EstimatedValue: 1000,
	})
	requireKind(t, err, apperr.Forbidden)

	_, err = f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title: "Borehole drilling", ConstituencyID: proctest.Constituency,
		Method: models.MethodOpenBidding, EstimatedValue: 1000.005,
	})
	requireKind(t, err, apperr.InvalidInput)
}

func TestPublishRequiresSchedule(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p, err := f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title: "Clinic roofing", ConstituencyID: proctest.Constituency,
		Method: models.MethodRequestForQuotation, EstimatedValue: 20000,
	})
	require.NoError(t, err)

	outsider := identity.Actor{ID: "user-plgo-elsewhere", Roles: []string{identity.RolePLGO}}
	_, err = f.Service.Publish(ctx, outsider, p.ID)
	requireKind(t, err, apperr.Forbidden)

	_, err = f.Service.Publish(ctx, f.Official, p.ID)
	requireKind(t, err, apperr.PreconditionFailed)

	closing := proctest.Epoch.Add(24 * time.Hour)
	opening := proctest.Epoch.Add(72 * time.Hour)
	p, err = f.Service.UpdateDraft(ctx, f.Official, p.ID, procurement.UpdateRequest{ClosingDate: &closing, BidOpeningDate: &opening})
	require.NoError(t, err)

	p, err = f.Service.Publish(ctx, f.Official, p.ID)
	require.NoError(t, err)

	title := "Clinic roofing phase 2"
	_, err = f.Service.UpdateDraft(ctx, f.Official, p.ID, procurement.UpdateRequest{Title: &title})
	requireKind(t, err, apperr.InvalidState)

	_, err = f.Service.Publish(ctx, f.Official, p.ID)
	requireKind(t, err, apperr.PreconditionFailed)
}

func TestSubmitBidKeepsContentsSealed(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bidder := f.Bidder("user-acme", "contractor-acme")

	summary := "Steel frame structure with 450000 budget"
	receipt, err := f.Service.SubmitBid(ctx, bidder, p.ID, procurement.SubmitBidRequest{
		Amount:           450000,
		DocumentHash:     "sha256:abc",
		TechnicalSummary: &summary,
	})
	require.NoError(t, err)
	require.Equal(t, models.BidSubmitted, receipt.Status)

	blob := f.Store.SealedData(receipt.ID)
	require.NotEmpty(t, blob)
	require.False(t, bytes.Contains(blob, []byte("450000")))
	require.False(t, bytes.Contains(blob, []byte("Steel frame")))

	listing, err := f.Service.ListBids(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, listing.BidsOpened)
	require.Len(t, listing.Bids, 1)
	require.Nil(t, listing.Bids[0].Amount)
	require.Nil(t, listing.Bids[0].TechnicalSummary)
	require.Equal(t, "contractor-acme", listing.Bids[0].BidderID)

	body, err := json.Marshal(listing)
	require.NoError(t, err)
	require.NotContains(t, string(body), "450000")
	require.NotContains(t, string(body), "encrypted_bid_data")

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, models.EventBidSubmitted, trail[0].EventType)
	require.Equal(t, identity.RoleContractor, trail[0].ActorRole)
	raw, err := json.Marshal(trail[0].Payload)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "450000")
}

func TestSubmitBidRules(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bidder := f.Bidder("user-acme", "contractor-acme")

	f.Submit(t, bidder, p.ID, 100000)

	t.Run("one bid per contractor", func(t *testing.T) {
		_, err := f.Service.SubmitBid(ctx, bidder, p.ID, procurement.SubmitBidRequest{Amount: 90000, DocumentHash: "h"})
		requireKind(t, err, apperr.Duplicate)
	})

	t.Run("unregistered user", func(t *testing.T) {
		stranger := identity.Actor{ID: "user-stranger", Roles: []string{identity.RoleContractor}}
		_, err := f.Service.SubmitBid(ctx, stranger, p.ID, procurement.SubmitBidRequest{Amount: 90000, DocumentHash: "h"})
		requireKind(t, err, apperr.Forbidden)
	})

	t.Run("invalid amount", func(t *testing.T) {
		other := f.Bidder("user-beta", "contractor-beta")
		_, err := f.Service.SubmitBid(ctx, other, p.ID, procurement.SubmitBidRequest{Amount: 0, DocumentHash: "h"})
		requireKind(t, err, apperr.InvalidInput)
	})

	t.Run("unknown procurement", func(t *testing.T) {
		_, err := f.Service.SubmitBid(ctx, bidder, "missing", procurement.SubmitBidRequest{Amount: 10, DocumentHash: "h"})
		requireKind(t, err, apperr.NotFound)
	})

	t.Run("window closed", func(t *testing.T) {
		f.Clock.Set(p.ClosingDate.Add(time.Second))
		late := f.Bidder("user-late", "contractor-late")
		_, err := f.Service.SubmitBid(ctx, late, p.ID, procurement.SubmitBidRequest{Amount: 10, DocumentHash: "h"})
		requireKind(t, err, apperr.WindowClosed)
	})
}

func TestSubmitBidOnDraftIsInvalidState(t *testing.T) {
	f := proctest.NewFixture(t)
	p, err := f.Service.Create(context.Background(), f.Official, procurement.CreateRequest{
		Title: "Bridge repair", ConstituencyID: proctest.Constituency,
		Method: models.MethodOpenBidding, EstimatedValue: 75000,
	})
	require.NoError(t, err)

	_, err = f.Service.SubmitBid(context.Background(), f.Bidder("user-acme", "contractor-acme"), p.ID,
		procurement.SubmitBidRequest{Amount: 70000, DocumentHash: "h"})
	requireKind(t, err, apperr.InvalidState)
}

func TestOpenBidsGuards(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)

	_, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	requireKind(t, err, apperr.PreconditionFailed)

	f.ReachOpening(p)
	_, err = f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	requireKind(t, err, apperr.PreconditionFailed)

	outsider := identity.Actor{ID: "user-other-plgo", Roles: []string{identity.RolePLGO}}
	_, err = f.Service.OpenBids(ctx, outsider, p.ID, procurement.OpenBidsRequest{})
	requireKind(t, err, apperr.Forbidden)
}

func TestOpenBidsRevealsAndMovesToEvaluation(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	a := f.Submit(t, f.Bidder("user-acme", "contractor-acme"), p.ID, 450000)
	b := f.Submit(t, f.Bidder("user-beta", "contractor-beta"), p.ID, 470000)

	f.ReachOpening(p)
	notes := "Opened in the council chamber"
	res, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{
		Witnesses:    []string{"Councillor Banda", "Observer Mwale"},
		OpeningNotes: &notes,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusEvaluation, res.Status)
	require.Equal(t, 2, res.TotalBids)
	require.Equal(t, 2, res.BidsOpened)
	require.Empty(t, res.InvalidBids)

	amounts := map[string]float64{}
	for _, ob := range res.OpenedBids {
		require.NotNil(t, ob.Amount)
		amounts[ob.ID] = *ob.Amount
	}
	require.Equal(t, map[string]float64{a.ID: 450000, b.ID: 470000}, amounts)

	listing, err := f.Service.ListBids(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, listing.BidsOpened)
	for _, bid := range listing.Bids {
		require.Equal(t, models.BidValid, bid.Status)
		require.NotNil(t, bid.Amount)
		require.NotNil(t, bid.OpenedAt)
		require.Equal(t, f.Official.ID, *bid.OpenedBy)
	}

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	var ceremony *models.AuditEvent
	for i := range trail {
		if trail[i].EventType == models.EventOpeningCeremony {
			ceremony = &trail[i]
		}
	}
	require.NotNil(t, ceremony)
	total, _ := ceremony.Payload["total_bids"].AsNumber()
	require.Equal(t, 2.0, total)
	witnesses, _ := ceremony.Payload["witnesses"].AsList()
	require.Len(t, witnesses, 2)

	_, err = f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	requireKind(t, err, apperr.InvalidState)
}

func TestOpenBidsIsolatesCorruptBid(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 100)
	bad := f.Submit(t, f.Bidder("user-b", "contractor-b"), p.ID, 200)
	f.Submit(t, f.Bidder("user-c", "contractor-c"), p.ID, 300)
	require.NoError(t, f.Store.CorruptBid(bad.ID))

	f.ReachOpening(p)
	res, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StatusEvaluation, res.Status)
	require.Equal(t, 3, res.TotalBids)
	require.Equal(t, 2, res.BidsOpened)
	require.Len(t, res.InvalidBids, 1)
	require.Equal(t, bad.ID, res.InvalidBids[0].ID)

	listing, err := f.Service.ListBids(ctx, p.ID)
	require.NoError(t, err)
	for _, bid := range listing.Bids {
		if bid.ID == bad.ID {
			require.Equal(t, models.BidInvalid, bid.Status)
			require.Equal(t, "Failed to decrypt bid data", *bid.DisqualificationReason)
			require.Nil(t, bid.Amount)
		} else {
			require.Equal(t, models.BidValid, bid.Status)
		}
	}

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, countByType(trail)[models.EventBidOpened])

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bad.ID, TechnicalScore: 50, FinancialScore: 50, Recommendation: models.RecommendReject,
	})
	requireKind(t, err, apperr.InvalidState)
}

func TestCloseBiddingThenOpen(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 100)

	_, err := f.Service.CloseBidding(ctx, f.Official, p.ID)
	requireKind(t, err, apperr.PreconditionFailed)

	f.Clock.Set(p.ClosingDate.Add(time.Hour))
	closed, err := f.Service.CloseBidding(ctx, f.Official, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusBidOpening, closed.Status)

	_, err = f.Service.SubmitBid(ctx, f.Bidder("user-b", "contractor-b"), p.ID, procurement.SubmitBidRequest{Amount: 5, DocumentHash: "h"})
	requireKind(t, err, apperr.InvalidState)

	f.ReachOpening(p)
	res, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StatusEvaluation, res.Status)
}

func TestEvaluateRules(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bid := f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 100)

	_, err := f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 80, FinancialScore: 80, Recommendation: models.RecommendAward,
	})
	requireKind(t, err, apperr.InvalidState)

	f.ReachOpening(p)
	_, err = f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	require.NoError(t, err)

	tooHigh := 101.0
	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 80, FinancialScore: 80, ExperienceScore: &tooHigh, Recommendation: models.RecommendAward,
	})
	requireKind(t, err, apperr.OutOfRange)

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: -1, FinancialScore: 80, Recommendation: models.RecommendAward,
	})
	requireKind(t, err, apperr.OutOfRange)

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 80, FinancialScore: 80, Recommendation: "maybe",
	})
	requireKind(t, err, apperr.InvalidInput)

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: "missing", TechnicalScore: 80, FinancialScore: 80, Recommendation: models.RecommendAward,
	})
	requireKind(t, err, apperr.NotFound)

	ev := evaluate(t, f, f.Evaluator, p.ID, bid.ID, 80, 90)
	require.InDelta(t, 80*0.40+90*0.30, ev.CompositeScore, 1e-9)
	require.Equal(t, models.EvaluationCompleted, ev.Status)

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 10, FinancialScore: 10, Recommendation: models.RecommendReject,
	})
	requireKind(t, err, apperr.Duplicate)

	evs, err := f.Service.ListEvaluations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
}

func TestAmountsAndScoresKeepTwoDecimals(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bidder := f.Bidder("user-a", "contractor-a")

	_, err := f.Service.SubmitBid(ctx, bidder, p.ID, procurement.SubmitBidRequest{Amount: 450000.555, DocumentHash: "sha256:a"})
	requireKind(t, err, apperr.InvalidInput)
	bid := f.Submit(t, bidder, p.ID, 450000.55)

	f.ReachOpening(p)
	res, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	require.NoError(t, err)
	require.Equal(t, 450000.55, *res.OpenedBids[0].Amount)

	_, err = f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 80.125, FinancialScore: 80, Recommendation: models.RecommendAward,
	})
	requireKind(t, err, apperr.InvalidInput)

	compliance := 66.67
	ev, err := f.Service.Evaluate(ctx, f.Evaluator, p.ID, procurement.EvaluateRequest{
		BidID: bid.ID, TechnicalScore: 80.25, FinancialScore: 90.1, ComplianceScore: &compliance, Recommendation: models.RecommendAward,
	})
	require.NoError(t, err)
	evs, err := f.Service.ListEvaluations(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, ev.CompositeScore, evs[0].CompositeScore)

	evaluate(t, f, f.TACMember("user-tac-2"), p.ID, bid.ID, 70, 70)
	_, err = f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: bid.ID, ContractValue: 450000.555})
	requireKind(t, err, apperr.InvalidInput)
}

func TestAuditEventsMustReferenceKnownBid(t *testing.T) {
	f := proctest.NewFixture(t)
	p := f.Published(t)
	unknown := "bid-that-was-never-stored"

	err := f.Store.WithTx(context.Background(), func(tx procurement.Repository) error {
		return tx.InsertAuditEvent(context.Background(), &models.AuditEvent{
			ID: "ev-1", ProcurementID: p.ID, BidID: &unknown, EventType: models.EventBidOpened,
		})
	})
	require.Error(t, err)
}

func TestAwardRequiresTwoEvaluationsPerValidBid(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	winner := f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 450000)
	other := f.Submit(t, f.Bidder("user-b", "contractor-b"), p.ID, 470000)
	f.ReachOpening(p)
	_, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
	require.NoError(t, err)

	second := f.TACMember("user-tac-2")
	evaluate(t, f, f.Evaluator, p.ID, winner.ID, 85, 90)
	evaluate(t, f, second, p.ID, winner.ID, 80, 88)
	evaluate(t, f, f.Evaluator, p.ID, other.ID, 70, 75)

	ok, err := f.Service.HasTwoEvaluators(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: winner.ID, ContractValue: 450000})
	requireKind(t, err, apperr.PreconditionFailed)

	evaluate(t, f, second, p.ID, other.ID, 72, 70)
	ok, err = f.Service.HasTwoEvaluators(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: "missing", ContractValue: 450000})
	requireKind(t, err, apperr.NotFound)

	_, err = f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: winner.ID, ContractValue: 0})
	requireKind(t, err, apperr.InvalidInput)
}

func TestHasTwoEvaluatorsUnknownProcurement(t *testing.T) {
	f := proctest.NewFixture(t)
	_, err := f.Service.HasTwoEvaluators(context.Background(), "missing")
	requireKind(t, err, apperr.NotFound)
}

func TestEndToEndWorkflow(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	require.Equal(t, 500000.0, p.EstimatedValue)
	require.Equal(t, models.MethodOpenBidding, p.Method)

	first := f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 450000)
	second := f.Submit(t, f.Bidder("user-b", "contractor-b"), p.ID, 470000)

	status, err := f.Service.Status(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, status.TotalBids)
	require.False(t, status.CanOpenBids)

	f.ReachOpening(p)
	status, err = f.Service.Status(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, status.CanOpenBids)

	_, err = f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{Witnesses: []string{"Observer"}})
	require.NoError(t, err)

	tac2 := f.TACMember("user-tac-2")
	for _, ev := range []identity.Actor{f.Evaluator, tac2} {
		evaluate(t, f, ev, p.ID, first.ID, 88, 92)
		evaluate(t, f, ev, p.ID, second.ID, 84, 85)
	}

	status, err = f.Service.Status(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, status.HasTwoEvaluators)
	require.True(t, status.CanAward)

	awarded, err := f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: first.ID, ContractValue: 450000})
	require.NoError(t, err)
	require.Equal(t, models.StatusAwarded, awarded.Status)
	require.Equal(t, "contractor-a", *awarded.AwardedContractor)
	require.Equal(t, first.ID, *awarded.AwardedBidID)
	require.Equal(t, 450000.0, *awarded.ContractValue)
	require.NotNil(t, awarded.AwardDate)

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, trail, 10)
	require.Equal(t, map[models.AuditEventType]int{
		models.EventBidSubmitted:    2,
		models.EventBidOpened:       2,
		models.EventOpeningCeremony: 1,
		models.EventBidEvaluated:    4,
		models.EventContractAwarded: 1,
	}, countByType(trail))
	require.Equal(t, models.EventContractAwarded, trail[0].EventType)

	report, err := f.Service.VerifyTrail(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, report.Intact)
	require.Equal(t, 10, report.Checked)

	contracted, err := f.Service.SignContract(ctx, f.Official, p.ID, procurement.ContractRequest{})
	require.NoError(t, err)
	require.Equal(t, models.StatusContracted, contracted.Status)
	completed, err := f.Service.Complete(ctx, f.Official, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, completed.Status)

	require.Len(t, f.Publisher.Events(), 10)
}

func TestVerifyTrailDetectsTampering(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 100)
	f.Submit(t, f.Bidder("user-b", "contractor-b"), p.ID, 200)

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	target := trail[1]

	require.NoError(t, f.Store.TamperAuditEvent(target.ID, func(ev *models.AuditEvent) {
		ev.Payload["contractor_id"] = models.String("contractor-forged")
	}))

	report, err := f.Service.VerifyTrail(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, report.Intact)
	require.Equal(t, 2, report.Checked)
	require.Len(t, report.Mismatches, 1)
	require.Equal(t, target.ID, report.Mismatches[0].EventID)

	_, err = f.Service.VerifyTrail(ctx, "missing")
	requireKind(t, err, apperr.NotFound)
}

func TestFailedTransactionPublishesNothing(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bidder := f.Bidder("user-a", "contractor-a")

	f.Store.InjectError(apperr.New(apperr.Unavailable, "store timeout"))
	_, err := f.Service.SubmitBid(ctx, bidder, p.ID, procurement.SubmitBidRequest{Amount: 100, DocumentHash: "h"})
	requireKind(t, err, apperr.Unavailable)
	require.True(t, apperr.IsRetryable(err))
	require.Empty(t, f.Publisher.Events())

	f.Submit(t, bidder, p.ID, 100)
	events := f.Publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, models.EventBidSubmitted, events[0].EventType)
}

func TestConcurrentSubmissionsAreAllRecorded(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)

	const n = 12
	bidders := make([]identity.Actor, n)
	for i := range bidders {
		bidders[i] = f.Bidder("user-"+strconv.Itoa(i), "contractor-"+strconv.Itoa(i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i, b := range bidders {
		wg.Add(1)
		go func(i int, b identity.Actor) {
			defer wg.Done()
			_, err := f.Service.SubmitBid(ctx, b, p.ID, procurement.SubmitBidRequest{
				Amount: float64(1000 + i), DocumentHash: fmt.Sprintf("h-%d", i),
			})
			errs <- err
		}(i, b)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	listing, err := f.Service.ListBids(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, listing.Bids, n)
}

func TestConcurrentDuplicateSubmissionAcceptsOne(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	bidder := f.Bidder("user-a", "contractor-a")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Service.SubmitBid(ctx, bidder, p.ID, procurement.SubmitBidRequest{Amount: 100, DocumentHash: "h"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.True(t, apperr.IsKind(err, apperr.Duplicate), err)
	}
	require.Equal(t, 1, accepted)
}

func TestConcurrentOpeningRunsOnce(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)
	f.Submit(t, f.Bidder("user-a", "contractor-a"), p.ID, 100)
	f.Submit(t, f.Bidder("user-b", "contractor-b"), p.ID, 200)
	f.ReachOpening(p)

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Service.OpenBids(ctx, f.Official, p.ID, procurement.OpenBidsRequest{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	opened := 0
	for err := range errs {
		if err == nil {
			opened++
			continue
		}
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		require.Equal(t, apperr.InvalidState, appErr.Kind)
	}
	require.Equal(t, 1, opened)

	trail, err := f.Service.Trail(ctx, p.ID)
	require.NoError(t, err)
	counts := countByType(trail)
	require.Equal(t, 1, counts[models.EventOpeningCeremony])
	require.Equal(t, 2, counts[models.EventBidOpened])
}

func TestLifecycleOutOfOrder(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)

	_, err := f.Service.Complete(ctx, f.Official, p.ID)
	requireKind(t, err, apperr.PreconditionFailed)

	_, err = f.Service.SignContract(ctx, f.Official, p.ID, procurement.ContractRequest{})
	requireKind(t, err, apperr.PreconditionFailed)

	_, err = f.Service.Award(ctx, f.Official, p.ID, procurement.AwardRequest{WinningBidID: "x", ContractValue: 10})
	requireKind(t, err, apperr.InvalidState)
}

func TestVersionHistory(t *testing.T) {
	f := proctest.NewFixture(t)
	ctx := context.Background()
	p := f.Published(t)

	v1, err := f.Service.Version(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusDraft, v1.Status)
	require.Equal(t, models.StatusDraft, v1.Procurement.Status)
	require.Equal(t, p.ProcurementNumber, v1.Procurement.ProcurementNumber)
	require.Equal(t, f.Official.ID, v1.ChangedBy)

	v2, err := f.Service.Version(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Equal(t, models.StatusPublished, v2.Procurement.Status)

	_, err = f.Service.Version(ctx, p.ID, 9)
	requireKind(t, err, apperr.NotFound)
}
