package procurement

import (
	"context"

	"procurement/internal/audit"
	"procurement/models"
)

// Trail returns the audit events of a procurement, newest first.
func (s *Service) Trail(ctx context.Context, procurementID string) ([]models.AuditEvent, error) {
	if _, err := s.store.GetProcurement(ctx, procurementID); err != nil {
		return nil, err
	}
	events, err := s.store.ListAuditEvents(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, nil
}

// VerifyTrail recomputes every event hash and reports the ones that no longer match.
func (s *Service) VerifyTrail(ctx context.Context, procurementID string) (audit.Report, error) {
	events, err := s.Trail(ctx, procurementID)
	if err != nil {
		return audit.Report{}, err
	}
	return audit.Verify(procurementID, events), nil
}
