package handlers

import (
	"net/http"

	"procurement/internal/procurement"
)

// CreateBidHandler handles POST /api/procurements/{procurementId}/bids. The response never
// echoes the sealed amount.
func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.SubmitBidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	receipt, err := h.Workflow.SubmitBid(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) GetBidsForTenderHandler(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Workflow.ListBids(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// OpenBidsHandler runs the opening ceremony.
func (h *Handler) OpenBidsHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.OpenBidsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Workflow.OpenBids(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) EvaluateBidHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.EvaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := h.Workflow.Evaluate(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) GetEvaluationsHandler(w http.ResponseWriter, r *http.Request) {
	evs, err := h.Workflow.ListEvaluations(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

// AwardContractHandler handles POST /api/procurements/{procurementId}/award.
func (h *Handler) AwardContractHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.AwardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Workflow.Award(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
