package handlers

import (
	"errors"
	"net/http"

	"github.com/bundlevault/bundlevault/internal/config"
	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/policy"
	"github.com/bundlevault/bundlevault/internal/utils"
)

// Handler carries the wired dependencies for all HTTP handlers.
type Handler struct {
	svc   *download.Service
	store download.ObjectStore
	cfg   config.Config
}

func New(svc *download.Service, store download.ObjectStore, cfg config.Config) *Handler {
	return &Handler{svc: svc, store: store, cfg: cfg}
}

// writeDomainError maps the domain taxonomy onto HTTP responses.
// Creation-time validation errors keep their actionable message; anything
// unrecognized degrades to a generic failure.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, download.ErrSelectionEmpty),
		errors.Is(err, download.ErrLimitExceeded),
		errors.Is(err, download.ErrInvalidAccessMode),
		errors.Is(err, policy.ErrNonExpiringNotAllowed):
		utils.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, download.ErrNotFound):
		utils.Fail(w, http.StatusNotFound, "Download not found")
	case errors.Is(err, download.ErrBuildConflict):
		utils.Fail(w, http.StatusConflict, "A build is already in progress")
	case errors.Is(err, download.ErrInvalidTransition), errors.Is(err, download.ErrNoArchive):
		utils.Fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, download.ErrAccessDenied):
		utils.Fail(w, http.StatusForbidden, "Access denied")
	default:
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
	}
}
