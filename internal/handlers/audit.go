package handlers

import "net/http"

func (h *Handler) AuditTrailHandler(w http.ResponseWriter, r *http.Request) {
	events, err := h.Workflow.Trail(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// VerifyAuditTrailHandler recomputes every event hash of the trail.
func (h *Handler) VerifyAuditTrailHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.Workflow.VerifyTrail(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
