package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"procurement/internal/apperr"
	"procurement/internal/identity"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler serves the procurement workflow over HTTP.
type Handler struct {
	Workflow Workflow
	// DB is pinged by ReadyHandler when set.
	DB  Pinger
	log *zap.Logger
}

func NewHandler(wf Workflow, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Workflow: wf, log: log}
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ReadyHandler reports 503 while the database is unreachable.
func (h *Handler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			h.writeError(w, r, apperr.Wrap(apperr.Unavailable, err, "database unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.InvalidInput, err, "invalid JSON body: %s", err.Error())
	}
	return nil
}

// actor returns the authenticated caller placed in the context by Authenticate.
func actor(r *http.Request) identity.Actor {
	a, _ := identity.ActorFrom(r.Context())
	return a
}

func procurementID(r *http.Request) string {
	return chi.URLParam(r, "procurementId")
}
