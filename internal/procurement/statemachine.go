package procurement

import (
	"strings"

	"procurement/internal/apperr"
	"procurement/models"
)

// transitions lists, for each target status, the statuses it may be entered from.
var transitions = map[models.ProcurementStatus][]models.ProcurementStatus{
	models.StatusPublished:  {models.StatusDraft},
	models.StatusBidOpening: {models.StatusPublished},
	models.StatusEvaluation: {models.StatusPublished, models.StatusBidOpening},
	models.StatusAwarded:    {models.StatusEvaluation},
	models.StatusContracted: {models.StatusAwarded},
	models.StatusCompleted:  {models.StatusContracted},
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to models.ProcurementStatus) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// RequiredPriorStates returns the statuses from which to can be entered.
func RequiredPriorStates(to models.ProcurementStatus) []models.ProcurementStatus {
	return transitions[to]
}

// transition moves p to the target status or fails with PreconditionFailed.
func transition(p *models.Procurement, to models.ProcurementStatus) error {
	if !CanTransition(p.Status, to) {
		return apperr.New(apperr.PreconditionFailed,
			"procurement %s cannot move to %s from %s: requires status %s",
			p.ID, to, p.Status, joinStatuses(transitions[to]))
	}
	p.Status = to
	return nil
}

// requireStatus guards an operation with the procurement's current status.
func requireStatus(p *models.Procurement, op string, allowed ...models.ProcurementStatus) error {
	for _, s := range allowed {
		if p.Status == s {
			return nil
		}
	}
	return apperr.New(apperr.InvalidState,
		"cannot %s: procurement %s is %s, requires status %s", op, p.ID, p.Status, joinStatuses(allowed))
}

func joinStatuses(ss []models.ProcurementStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, " or ")
}
