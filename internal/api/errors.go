package api

import (
	"errors"
	"net/http"

	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/repository"
	"github.com/digkill/PlantDoctor/internal/service"
)

type errorResponse struct {
	Error string            `json:"error"`
	Limit entitlement.Limit `json:"limit,omitempty"`
	Max   int               `json:"max,omitempty"`
}

// writeError maps engine errors onto status codes. Anything unexpected is
// logged and reported as an internal error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var quota *entitlement.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		s.writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error(), Limit: quota.Limit, Max: quota.Max})
	case errors.Is(err, service.ErrValidation):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidCredential), errors.Is(err, service.ErrNoSession), errors.Is(err, ErrInvalidToken):
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, service.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAlreadyExists), errors.Is(err, service.ErrVersionConflict):
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrStorageWrite):
		s.log.Error("storage write failed", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable, changes were not saved"})
	default:
		s.log.Error("api handler error", "path", r.URL.Path, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
