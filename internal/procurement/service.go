// Package procurement runs the sealed-bid tendering workflow: intake of sealed bids,
// the opening ceremony, scored evaluation and the award.
package procurement

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"procurement/internal/apperr"
	"procurement/internal/audit"
	"procurement/internal/events"
	"procurement/internal/identity"
	"procurement/internal/vault"
	"procurement/models"

	"go.uber.org/zap"
)

// Sealer is the crypto vault contract.
type Sealer interface {
	Seal(f vault.Fields) ([]byte, error)
	Unseal(blob []byte) (vault.Fields, error)
}

type Service struct {
	store     Store
	sealer    Sealer
	authz     *identity.Authorizer
	ledger    *audit.Ledger
	scoring   ScoringPolicy
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithScoring(p ScoringPolicy) Option {
	return func(s *Service) { s.scoring = p }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

func NewService(store Store, sealer Sealer, authz *identity.Authorizer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		sealer:    sealer,
		authz:     authz,
		scoring:   DefaultScoring,
		publisher: events.Nop{},
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ledger = audit.NewLedger(s.now)
	return s
}

// unit is one transaction plus the audit events it appended.
type unit struct {
	Repository
	svc    *Service
	actor  identity.Actor
	events []models.AuditEvent
}

func (u *unit) record(ctx context.Context, e audit.Entry) error {
	e.ActorID = u.actor.ID
	e.ActorRole = u.actor.PrimaryRole()
	ev, err := u.svc.ledger.Record(ctx, u.Repository, e)
	if err != nil {
		return err
	}
	u.events = append(u.events, *ev)
	return nil
}

// saveProcurement persists p with a version compare-and-swap and snapshots the new version.
func (u *unit) saveProcurement(ctx context.Context, p *models.Procurement) error {
	p.UpdatedAt = u.svc.now()
	if err := u.UpdateProcurement(ctx, p); err != nil {
		return err
	}
	return u.snapshot(ctx, p)
}

func (u *unit) snapshot(ctx context.Context, p *models.Procurement) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return u.SaveProcurementVersion(ctx, &models.ProcurementVersion{
		ProcurementID: p.ID,
		Version:       p.Version,
		Status:        p.Status,
		Snapshot:      b,
		ChangedBy:     u.actor.ID,
		CreatedAt:     u.svc.now(),
	})
}

// inTx runs fn in one store transaction and publishes its audit events after commit.
func (s *Service) inTx(ctx context.Context, actor identity.Actor, fn func(u *unit) error) error {
	var committed []models.AuditEvent
	err := s.store.WithTx(ctx, func(tx Repository) error {
		u := &unit{Repository: tx, svc: s, actor: actor}
		if err := fn(u); err != nil {
			return err
		}
		committed = u.events
		return nil
	})
	if err != nil {
		return err
	}
	for _, ev := range committed {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Warn("audit event not published",
				zap.String("event_id", ev.ID),
				zap.String("event_type", string(ev.EventType)),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) requireConstituencyAccess(ctx context.Context, actor identity.Actor, p *models.Procurement) error {
	ok, err := s.authz.CanAccessConstituency(ctx, actor, p.ConstituencyID)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "identity directory unavailable")
	}
	if !ok {
		return apperr.New(apperr.Forbidden, "user does not have access to constituency %s", p.ConstituencyID)
	}
	return nil
}

// hasTwoEvaluators is true when every valid bid has at least two completed evaluations.
func hasTwoEvaluators(ctx context.Context, repo Repository, procurementID string) (bool, error) {
	bids, err := repo.ListBids(ctx, procurementID, models.BidValid)
	if err != nil {
		return false, err
	}
	if len(bids) == 0 {
		return false, nil
	}
	counts, err := repo.CountCompletedEvaluations(ctx, procurementID)
	if err != nil {
		return false, err
	}
	for _, b := range bids {
		if counts[b.ID] < 2 {
			return false, nil
		}
	}
	return true, nil
}

func ptr[T any](v T) *T { return &v }

// wholeCents reports whether v has at most two decimal places, the precision the store keeps.
func wholeCents(v float64) bool {
	c := v * 100
	return math.Abs(c-math.Round(c)) < 1e-6
}
