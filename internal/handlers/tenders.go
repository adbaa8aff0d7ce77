package handlers

import (
	"net/http"
	"strconv"

	"procurement/internal/apperr"
	"procurement/internal/procurement"

	"github.com/go-chi/chi/v5"
)

// CreateTenderHandler handles POST /api/procurements.
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Workflow.Create(r.Context(), actor(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateTenderHandler handles PATCH /api/procurements/{procurementId}.
func (h *Handler) UpdateTenderHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Workflow.UpdateDraft(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Workflow.Get(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetTenderVersionHandler handles GET /api/procurements/{procurementId}/versions/{version}.
func (h *Handler) GetTenderVersionHandler(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		h.writeError(w, r, apperr.New(apperr.InvalidInput, "version must be a positive integer"))
		return
	}
	v, err := h.Workflow.Version(r.Context(), procurementID(r), version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) PublishTenderHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Workflow.Publish(r.Context(), actor(r), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CloseBiddingHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Workflow.CloseBidding(r.Context(), actor(r), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) TenderStatusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.Workflow.Status(r.Context(), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SignContractHandler handles POST /api/procurements/{procurementId}/contract.
func (h *Handler) SignContractHandler(w http.ResponseWriter, r *http.Request) {
	var req procurement.ContractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Workflow.SignContract(r.Context(), actor(r), procurementID(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CompleteTenderHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Workflow.Complete(r.Context(), actor(r), procurementID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
