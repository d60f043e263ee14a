package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bundlevault/bundlevault/internal/api/middleware"
	"github.com/bundlevault/bundlevault/internal/archive"
	"github.com/bundlevault/bundlevault/internal/download"
	"github.com/bundlevault/bundlevault/internal/models"
	"github.com/bundlevault/bundlevault/internal/utils"
)

const unlockCookie = "unlock"

const unlockTTL = time.Hour

// GET /d/{slug}
// Landing godoc
// @Summary Public landing state for a download
// @Description State-dependent response: processing, password prompt, ready, expired, revoked, or not found.
// @Tags Delivery
// @Produce json
// @Param slug path string true "Download slug"
// @Success 200 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Failure 410 {object} utils.Payload
// @Router /d/{slug} [get]
func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	p := middleware.PrincipalFromRequest(r)

	d, state, err := h.svc.Resolve(r.Context(), slug, p, h.isUnlocked(r, slug))
	if err != nil {
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	switch state {
	case download.StateNotFound:
		utils.Fail(w, http.StatusNotFound, "Download not found")
	case download.StateRevoked:
		utils.Fail(w, http.StatusGone, "This download has been revoked")
	case download.StateAccessDenied:
		utils.Fail(w, http.StatusForbidden, "You do not have access to this download")
	case download.StateExpired:
		utils.Fail(w, http.StatusGone, "This download has expired")
	case download.StateProcessing:
		utils.JSONResponse(w, http.StatusOK, utils.Payload{
			Success: true,
			Message: "Your download is being prepared",
			Data: map[string]any{
				"state":      state,
				"chunkIndex": d.ZipBuildChunkIndex,
				"chunks":     d.ZipTotalChunks,
			},
		})
	case download.StateFailed:
		// Operator detail stays on the record; the visitor gets a generic
		// message and the owner a regenerate action.
		utils.JSONResponse(w, http.StatusOK, utils.Payload{
			Success: false,
			Message: "Preparation failed",
			Data:    map[string]any{"state": state},
		})
	case download.StatePasswordRequired:
		utils.JSONResponse(w, http.StatusOK, utils.Payload{
			Success: true,
			Message: "Password required",
			Data:    map[string]any{"state": state, "title": d.Title},
		})
	case download.StateReady:
		utils.JSONResponse(w, http.StatusOK, utils.Payload{
			Success: true,
			Message: "Ready",
			Data: map[string]any{
				"state":          state,
				"title":          d.Title,
				"assetCount":     d.AssetCount,
				"sizeBytes":      deliverySize(d),
				"landingMessage": d.LandingMessage,
				"showBranding":   d.ShowBranding,
				"fileUrl":        fmt.Sprintf("/d/%s/file", d.Slug),
			},
		})
	}
}

// POST /d/{slug}/unlock
// Unlock godoc
// @Summary Verify the download password
// @Description On success sets a scoped unlock cookie for the session; a wrong password changes nothing.
// @Tags Delivery
// @Accept json
// @Produce json
// @Param slug path string true "Download slug"
// @Success 200 {object} utils.Payload
// @Failure 401 {object} utils.Payload
// @Router /d/{slug}/unlock [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	p := middleware.PrincipalFromRequest(r)

	d, state, err := h.svc.Resolve(r.Context(), slug, p, false)
	if err != nil {
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if state != download.StatePasswordRequired {
		// Nothing to unlock: either not deliverable, or no password set.
		h.writeBlockedState(w, state)
		return
	}

	var input struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Password == "" {
		utils.Fail(w, http.StatusBadRequest, "Invalid input")
		return
	}

	if !h.svc.VerifyPassword(d, input.Password) {
		utils.Fail(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	token, err := h.issueUnlockToken(slug)
	if err != nil {
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     unlockCookie,
		Value:    token,
		Path:     "/d/",
		Expires:  time.Now().Add(unlockTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	utils.JSONResponse(w, http.StatusOK, utils.Payload{Success: true, Message: "Unlocked"})
}

// GET /d/{slug}/file
// DeliverFile godoc
// @Summary Deliver the download
// @Description Redirects to a short-lived signed URL, or streams the archive directly for oversized selections. Bytes are never proxied for pre-built artifacts.
// @Tags Delivery
// @Produce json
// @Param slug path string true "Download slug"
// @Success 302 {string} string "Redirect to signed URL"
// @Failure 404 {object} utils.Payload
// @Router /d/{slug}/file [get]
func (h *Handler) DeliverFile(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	p := middleware.PrincipalFromRequest(r)

	d, state, err := h.svc.Resolve(r.Context(), slug, p, h.isUnlocked(r, slug))
	if err != nil {
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if state != download.StateReady {
		h.writeBlockedState(w, state)
		return
	}

	if d.Streaming {
		h.streamArchive(w, r, d)
		return
	}

	url, err := h.svc.PresignDelivery(r.Context(), d)
	if err != nil {
		log.Printf("presign delivery for %s: %v", d.ID, err)
		utils.Fail(w, http.StatusBadGateway, "Delivery is temporarily unavailable")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// streamArchive assembles the ZIP straight into the response body. The
// connection stays open for the whole transfer and every request
// re-streams from source; nothing is persisted.
func (h *Handler) streamArchive(w http.ResponseWriter, r *http.Request, d *models.Download) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.DeliveryFilename(d)))

	if err := archive.Stream(r.Context(), w, h.store, d.Assets); err != nil {
		// Headers are gone; all we can do is log and cut the stream short.
		log.Printf("stream archive for %s: %v", d.ID, err)
		return
	}
	h.svc.RecordDelivery(r.Context(), d)
}

func (h *Handler) writeBlockedState(w http.ResponseWriter, state download.DeliveryState) {
	switch state {
	case download.StateNotFound:
		utils.Fail(w, http.StatusNotFound, "Download not found")
	case download.StateRevoked:
		utils.Fail(w, http.StatusGone, "This download has been revoked")
	case download.StateAccessDenied:
		utils.Fail(w, http.StatusForbidden, "You do not have access to this download")
	case download.StateExpired:
		utils.Fail(w, http.StatusGone, "This download has expired")
	case download.StateProcessing:
		utils.Fail(w, http.StatusConflict, "Your download is still being prepared")
	case download.StateFailed:
		utils.Fail(w, http.StatusConflict, "Preparation failed")
	case download.StatePasswordRequired:
		utils.Fail(w, http.StatusUnauthorized, "Password required")
	default:
		utils.Fail(w, http.StatusInternalServerError, "Something went wrong")
	}
}

func (h *Handler) issueUnlockToken(slug string) (string, error) {
	claims := jwt.MapClaims{
		"slug":    slug,
		"purpose": "unlock",
		"exp":     time.Now().Add(unlockTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// isUnlocked reports whether the request carries a valid unlock token for
// exactly this slug.
func (h *Handler) isUnlocked(r *http.Request, slug string) bool {
	cookie, err := r.Cookie(unlockCookie)
	if err != nil {
		return false
	}
	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	return claims["purpose"] == "unlock" && claims["slug"] == slug
}

func deliverySize(d *models.Download) int64 {
	if d.ZipStatus == models.ZipReady {
		return d.ZipSizeBytes
	}
	return d.EstimatedSizeBytes
}
