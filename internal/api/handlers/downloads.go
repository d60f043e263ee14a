package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/api/middleware"
	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/models"
	"github.com/bundlevault/bundlevault/internal/policy"
	"github.com/bundlevault/bundlevault/internal/utils"
)

type assetInput struct {
	AssetID   string `json:"assetId"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Primary   bool   `json:"primary"`
}

type createDownloadInput struct {
	TenantID       string       `json:"tenantId"`
	BrandID        string       `json:"brandId,omitempty"`
	Title          string       `json:"title"`
	Assets         []assetInput `json:"assets"`
	AccessMode     string       `json:"accessMode"`
	AllowedUserIDs []string     `json:"allowedUserIds,omitempty"`
	Password       string       `json:"password,omitempty"`
	ExpiresInDays  int          `json:"expiresInDays,omitempty"`
	NonExpiring    bool         `json:"nonExpiring,omitempty"`
	LandingMessage string       `json:"landingMessage,omitempty"`
	ShowBranding   *bool        `json:"showBranding,omitempty"`
}

// POST /api/v1/downloads
// CreateDownload godoc
// @Summary Create a download from a file selection
// @Description Bundles the selected assets into one downloadable archive and returns the public link.
// @Tags Downloads
// @Accept json
// @Produce json
// @Success 201 {object} utils.Payload
// @Failure 400 {object} utils.Payload
// @Router /api/v1/downloads [post]
func (h *Handler) CreateDownload(w http.ResponseWriter, r *http.Request) {
	p := middleware.Principal(r.Context())

	var input createDownloadInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		utils.Fail(w, http.StatusBadRequest, "Invalid input")
		return
	}

	tenantID, err := uuid.Parse(input.TenantID)
	if err != nil || !p.MemberOfTenant(tenantID) {
		utils.Fail(w, http.StatusForbidden, "Not a member of this workspace")
		return
	}
	var brandID *uuid.UUID
	if input.BrandID != "" {
		id, err := uuid.Parse(input.BrandID)
		if err != nil {
			utils.Fail(w, http.StatusBadRequest, "Invalid brand id")
			return
		}
		brandID = &id
	}

	selection := make([]download.SelectedAsset, 0, len(input.Assets))
	for _, a := range input.Assets {
		assetID, err := uuid.Parse(a.AssetID)
		if err != nil || a.Path == "" {
			utils.Fail(w, http.StatusBadRequest, "Invalid asset reference")
			return
		}
		selection = append(selection, download.SelectedAsset{
			AssetID:   assetID,
			Filename:  a.Filename,
			Path:      a.Path,
			SizeBytes: a.SizeBytes,
			Primary:   a.Primary,
		})
	}

	allowed := make([]uuid.UUID, 0, len(input.AllowedUserIDs))
	for _, s := range input.AllowedUserIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			utils.Fail(w, http.StatusBadRequest, "Invalid user id in allow list")
			return
		}
		allowed = append(allowed, id)
	}

	showBranding := true
	if input.ShowBranding != nil {
		showBranding = *input.ShowBranding
	}

	d, err := h.svc.Create(r.Context(), download.CreateParams{
		TenantID:       tenantID,
		BrandID:        brandID,
		CreatedBy:      *p.UserID,
		Title:          input.Title,
		Selection:      selection,
		AccessMode:     models.AccessMode(input.AccessMode),
		AllowedUsers:   allowed,
		Password:       input.Password,
		ExpiresInDays:  input.ExpiresInDays,
		NonExpiring:    input.NonExpiring,
		LandingMessage: input.LandingMessage,
		ShowBranding:   showBranding,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "Download created",
		Data: map[string]any{
			"id":        d.ID,
			"slug":      d.Slug,
			"publicUrl": fmt.Sprintf("%s/d/%s", h.cfg.PublicBaseURL, d.Slug),
			"expiresAt": d.ExpiresAt,
			"streaming": d.Streaming,
		},
	})
}

// GET /api/v1/downloads/{id}
// GetDownload godoc
// @Summary Owner view of a download
// @Description Returns the full record including build progress and the advisory stall signals.
// @Tags Downloads
// @Produce json
// @Param id path string true "Download id"
// @Success 200 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/v1/downloads/{id} [get]
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Download retrieved",
		Data: map[string]any{
			"download": d,
			"health":   h.svc.Health(d),
		},
	})
}

// POST /api/v1/downloads/{id}/revoke
func (h *Handler) RevokeDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.Revoke(r.Context(), d.ID, *p.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Download revoked"})
}

// POST /api/v1/downloads/{id}/extend
func (h *Handler) ExtendDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	var input struct {
		Days        int  `json:"days"`
		NonExpiring bool `json:"nonExpiring"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.Fail(w, http.StatusBadRequest, "Invalid input")
		return
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.Extend(r.Context(), d.ID, *p.UserID, input.Days, input.NonExpiring, nil); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Expiry updated"})
}

// POST /api/v1/downloads/{id}/regenerate
// RegenerateDownload godoc
// @Summary Start a fresh archive build
// @Description Restarts the build from the first chunk; progress is not resumed from a previous attempt.
// @Tags Downloads
// @Produce json
// @Param id path string true "Download id"
// @Success 202 {object} utils.Payload
// @Failure 409 {object} utils.Payload
// @Router /api/v1/downloads/{id}/regenerate [post]
func (h *Handler) RegenerateDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.Regenerate(r.Context(), d.ID, *p.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusAccepted, utils.Payload{Success: true, Message: "Rebuild started"})
}

// POST /api/v1/downloads/{id}/access
func (h *Handler) ChangeAccess(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	var input struct {
		AccessMode     string   `json:"accessMode"`
		AllowedUserIDs []string `json:"allowedUserIds"`
		Password       string   `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.Fail(w, http.StatusBadRequest, "Invalid input")
		return
	}
	allowed := make([]uuid.UUID, 0, len(input.AllowedUserIDs))
	for _, s := range input.AllowedUserIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			utils.Fail(w, http.StatusBadRequest, "Invalid user id in allow list")
			return
		}
		allowed = append(allowed, id)
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.ChangeAccess(r.Context(), d.ID, *p.UserID, models.AccessMode(input.AccessMode), allowed, input.Password); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Access updated"})
}

// POST /api/v1/downloads/{id}/rename
func (h *Handler) RenameDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	var input struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Title == "" {
		utils.Fail(w, http.StatusBadRequest, "Invalid input")
		return
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.Rename(r.Context(), d.ID, *p.UserID, input.Title); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Download renamed"})
}

// DELETE /api/v1/downloads/{id}/artifact
func (h *Handler) DeleteArtifact(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	p := middleware.Principal(r.Context())
	if err := h.svc.DeleteArtifact(r.Context(), d.ID, *p.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Artifact deleted"})
}

// DELETE /api/v1/downloads/{id}
func (h *Handler) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	d, ok := h.ownedDownload(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), d.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Download deleted"})
}

// ownedDownload loads the record and checks the principal belongs to its
// tenant. Deeper role checks live with the identity collaborator.
func (h *Handler) ownedDownload(w http.ResponseWriter, r *http.Request) (*models.Download, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.Fail(w, http.StatusBadRequest, "Invalid download id")
		return nil, false
	}
	d, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	p := middleware.Principal(r.Context())
	if !canManage(d, p) {
		utils.Fail(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return d, true
}

func canManage(d *models.Download, p policy.Principal) bool {
	return !p.Anonymous() && p.MemberOfTenant(d.TenantID)
}
