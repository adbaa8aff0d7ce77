// Package identity carries the authenticated actor and answers capability questions
// backed by the external identity directory.
package identity

import (
	"context"
	"slices"
)

const (
	RoleSuperAdmin       = "super_admin"
	RoleMinistryOfficial = "ministry_official"
	RoleAuditor          = "auditor"
	RolePLGO             = "plgo"
	RoleCDFCChair        = "cdfc_chair"
	RoleFinanceOfficer   = "finance_officer"
	RoleTACChair         = "tac_chair"
	RoleTACMember        = "tac_member"
	RoleContractor       = "contractor"
)

// nationalRoles see every constituency.
var nationalRoles = []string{RoleSuperAdmin, RoleMinistryOfficial, RoleAuditor}

// Actor is the authenticated caller.
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// PrimaryRole is the role recorded on audit events.
func (a Actor) PrimaryRole() string {
	if len(a.Roles) == 0 {
		return ""
	}
	return a.Roles[0]
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}

// Directory is the external identity/role provider.
type Directory interface {
	// BidderFor returns the registered contractor id for a user, ok=false when the user is not a bidder.
	BidderFor(ctx context.Context, userID string) (bidderID string, ok bool, err error)
	// AssignedToConstituency reports whether the user is assigned to the constituency.
	AssignedToConstituency(ctx context.Context, userID, constituencyID string) (bool, error)
}

// Authorizer answers the capability checks the workflow needs.
type Authorizer struct {
	dir Directory
}

func NewAuthorizer(dir Directory) *Authorizer {
	return &Authorizer{dir: dir}
}

// CanAccessConstituency is true for national roles and for users assigned to the constituency.
func (z *Authorizer) CanAccessConstituency(ctx context.Context, a Actor, constituencyID string) (bool, error) {
	if a.HasRole(nationalRoles...) {
		return true, nil
	}
	return z.dir.AssignedToConstituency(ctx, a.ID, constituencyID)
}

func (z *Authorizer) BidderFor(ctx context.Context, a Actor) (string, bool, error) {
	return z.dir.BidderFor(ctx, a.ID)
}
