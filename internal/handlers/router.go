package handlers

import (
	"net/http"

	"procurement/internal/identity"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

var (
	draftRoles     = []string{identity.RoleFinanceOfficer, identity.RoleCDFCChair, identity.RolePLGO, identity.RoleSuperAdmin}
	publishRoles   = []string{identity.RoleCDFCChair, identity.RolePLGO, identity.RoleSuperAdmin}
	bidderRoles    = []string{identity.RoleContractor}
	bidReaderRoles = []string{
		identity.RoleCDFCChair, identity.RoleFinanceOfficer, identity.RoleTACChair, identity.RoleTACMember,
		identity.RolePLGO, identity.RoleSuperAdmin, identity.RoleAuditor,
	}
	openingRoles = []string{identity.RoleCDFCChair, identity.RoleFinanceOfficer, identity.RoleSuperAdmin}
	tacRoles     = []string{identity.RoleTACChair, identity.RoleTACMember, identity.RoleSuperAdmin}
	awardRoles   = []string{identity.RoleCDFCChair, identity.RolePLGO, identity.RoleSuperAdmin}
	auditRoles   = []string{identity.RoleAuditor, identity.RoleSuperAdmin, identity.RoleMinistryOfficial}

	evaluationReaderRoles = []string{
		identity.RoleTACChair, identity.RoleTACMember, identity.RoleCDFCChair,
		identity.RolePLGO, identity.RoleSuperAdmin, identity.RoleAuditor,
	}
)

// NewRouter mounts every procurement route behind JWT authentication.
func NewRouter(h *Handler, jwtSecret string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Get("/ready", h.ReadyHandler)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(jwtSecret))

			r.With(RequireRole(draftRoles...)).Post("/procurements", h.CreateTenderHandler)

			r.Route("/procurements/{procurementId}", func(r chi.Router) {
				r.Get("/", h.GetTenderHandler)
				r.With(RequireRole(draftRoles...)).Patch("/", h.UpdateTenderHandler)
				r.With(RequireRole(bidReaderRoles...)).Get("/versions/{version}", h.GetTenderVersionHandler)
				r.With(RequireRole(publishRoles...)).Post("/publish", h.PublishTenderHandler)
				r.With(RequireRole(publishRoles...)).Post("/close-bidding", h.CloseBiddingHandler)
				r.Get("/status", h.TenderStatusHandler)

				r.With(RequireRole(bidderRoles...)).Post("/bids", h.CreateBidHandler)
				r.With(RequireRole(bidReaderRoles...)).Get("/bids", h.GetBidsForTenderHandler)
				r.With(RequireRole(openingRoles...)).Post("/open-bids", h.OpenBidsHandler)

				r.With(RequireRole(tacRoles...)).Post("/evaluate", h.EvaluateBidHandler)
				r.With(RequireRole(evaluationReaderRoles...)).Get("/evaluations", h.GetEvaluationsHandler)

				r.With(RequireRole(awardRoles...)).Post("/award", h.AwardContractHandler)
				r.With(RequireRole(awardRoles...)).Post("/contract", h.SignContractHandler)
				r.With(RequireRole(awardRoles...)).Post("/complete", h.CompleteTenderHandler)

				r.With(RequireRole(auditRoles...)).Get("/audit-trail", h.AuditTrailHandler)
				r.With(RequireRole(auditRoles...)).Get("/audit-trail/verify", h.VerifyAuditTrailHandler)
			})
		})
	})
	return r
}
