package proctest

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"procurement/internal/identity"
	"procurement/internal/procurement"
	"procurement/internal/vault"
	"procurement/models"

	"github.com/stretchr/testify/require"
)

const Constituency = "const-lusaka-central"

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (p *RecordingPublisher) Publish(_ context.Context, ev models.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *RecordingPublisher) Close() {}

func (p *RecordingPublisher) Events() []models.AuditEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AuditEvent(nil), p.events...)
}

// Fixture wires a Service over a MemStore, a static directory and a fresh vault key.
type Fixture struct {
	Store     *MemStore
	Directory *identity.StaticDirectory
	Vault     *vault.Vault
	Clock     *Clock
	Publisher *RecordingPublisher
	Service   *procurement.Service

	Official  identity.Actor
	Evaluator identity.Actor
	Auditor   identity.Actor
}

var Epoch = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func NewFixture(t testing.TB, opts ...procurement.Option) *Fixture {
	t.Helper()
	key := make([]byte, vault.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	v, err := vault.New(key)
	require.NoError(t, err)

	f := &Fixture{
		Store:     NewMemStore(),
		Directory: identity.NewStaticDirectory(),
		Vault:     v,
		Clock:     NewClock(Epoch),
		Publisher: &RecordingPublisher{},
		Official:  identity.Actor{ID: "user-plgo", Roles: []string{identity.RolePLGO}},
		Evaluator: identity.Actor{ID: "user-tac-1", Roles: []string{identity.RoleTACMember}},
		Auditor:   identity.Actor{ID: "user-auditor", Roles: []string{identity.RoleAuditor}},
	}
	f.Directory.Assign(f.Official.ID, Constituency)
	f.Directory.Assign(f.Evaluator.ID, Constituency)

	all := append([]procurement.Option{
		procurement.WithClock(f.Clock.Now),
		procurement.WithPublisher(f.Publisher),
	}, opts...)
	f.Service = procurement.NewService(f.Store, v, identity.NewAuthorizer(f.Directory), all...)
	return f
}

// Bidder registers a contractor account and returns its actor.
func (f *Fixture) Bidder(userID, contractorID string) identity.Actor {
	f.Directory.AddBidder(userID, contractorID)
	return identity.Actor{ID: userID, Roles: []string{identity.RoleContractor}}
}

// TACMember returns another evaluator assigned to the fixture constituency.
func (f *Fixture) TACMember(userID string) identity.Actor {
	f.Directory.Assign(userID, Constituency)
	return identity.Actor{ID: userID, Roles: []string{identity.RoleTACMember}}
}

// Published creates and publishes a tender closing one day after the clock and opening two days after.
func (f *Fixture) Published(t testing.TB) *models.Procurement {
	t.Helper()
	ctx := context.Background()
	closing := f.Clock.Now().Add(24 * time.Hour)
	opening := f.Clock.Now().Add(48 * time.Hour)
	p, err := f.Service.Create(ctx, f.Official, procurement.CreateRequest{
		Title:            "Rehabilitation of Kabwata market",
		ConstituencyID:   Constituency,
		ConstituencyCode: "LSK",
		Method:           models.MethodOpenBidding,
		EstimatedValue:   500000,
		ClosingDate:      &closing,
		BidOpeningDate:   &opening,
	})
	require.NoError(t, err)
	p, err = f.Service.Publish(ctx, f.Official, p.ID)
	require.NoError(t, err)
	return p
}

// Submit places a bid for a registered bidder.
func (f *Fixture) Submit(t testing.TB, bidder identity.Actor, procurementID string, amount float64) *procurement.SubmitReceipt {
	t.Helper()
	r, err := f.Service.SubmitBid(context.Background(), bidder, procurementID, procurement.SubmitBidRequest{
		Amount:       amount,
		DocumentHash: "sha256:" + bidder.ID,
	})
	require.NoError(t, err)
	return r
}

// ReachOpening moves the clock past the bid opening date of p.
func (f *Fixture) ReachOpening(p *models.Procurement) {
	f.Clock.Set(p.BidOpeningDate.Add(time.Minute))
}
