package download

import (
	"context"
	"errors"
	"fmt"
	"path"

	"golang.org/x/crypto/bcrypt"

	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/models"
	"github.com/bundlevault/bundlevault/internal/policy"
)

// DeliveryState is the client-visible outcome of a delivery attempt.
type DeliveryState string

const (
	StateNotFound         DeliveryState = "not_found"
	StateRevoked          DeliveryState = "revoked"
	StateAccessDenied     DeliveryState = "access_denied"
	StateExpired          DeliveryState = "expired"
	StateProcessing       DeliveryState = "processing"
	StateFailed           DeliveryState = "failed"
	StatePasswordRequired DeliveryState = "password_required"
	StateReady            DeliveryState = "ready"
)

// Resolve maps the record's state onto the delivery outcome, in fixed
// precedence: not-found → revoked → access → expired → build state →
// password → ready. The download is returned for every state except
// not-found so callers can render progress and landing copy.
func (s *Service) Resolve(ctx context.Context, slug string, p policy.Principal, unlocked bool) (*models.Download, DeliveryState, error) {
	d, err := s.repo.GetBySlug(ctx, slug)
	if errors.Is(err, ErrNotFound) {
		return nil, StateNotFound, nil
	}
	if err != nil {
		return nil, StateNotFound, err
	}
	if d.Deleted {
		return nil, StateNotFound, nil
	}

	if d.IsRevoked() {
		return d, StateRevoked, nil
	}
	if !policy.IsAllowed(d, p) {
		return d, StateAccessDenied, nil
	}
	if d.IsExpired(s.now()) {
		return d, StateExpired, nil
	}

	switch d.Status {
	case models.StatusReady:
	case models.StatusPending:
		return d, StateProcessing, nil
	default: // invalidated, failed
		return d, StateFailed, nil
	}

	// Single-file and streaming downloads have no artifact lifecycle.
	if !d.SingleFile() && !d.Streaming {
		switch d.ZipStatus {
		case models.ZipReady:
		case models.ZipNone, models.ZipBuilding:
			return d, StateProcessing, nil
		default: // failed, invalidated
			return d, StateFailed, nil
		}
	}

	if d.PasswordHash != "" && !unlocked {
		return d, StatePasswordRequired, nil
	}
	return d, StateReady, nil
}

// VerifyPassword checks a candidate password against the stored hash.
func (s *Service) VerifyPassword(d *models.Download, password string) bool {
	if d.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(password)) == nil
}

// DeliveryFilename is the name forced onto the client's saved file.
func DeliveryFilename(d *models.Download) string {
	if d.SingleFile() {
		for _, a := range d.Assets {
			if a.Primary {
				return a.Filename
			}
		}
		if len(d.Assets) > 0 {
			return d.Assets[0].Filename
		}
		return path.Base(d.DirectAssetPath)
	}
	if d.Title != "" {
		return d.Title + ".zip"
	}
	return "download.zip"
}

// PresignDelivery issues the short-lived signed URL for a deliverable
// download and records the delivery. Only valid for records Resolve
// reported as ready and not on the streaming path.
func (s *Service) PresignDelivery(ctx context.Context, d *models.Download) (string, error) {
	key := d.ZipPath
	if d.SingleFile() {
		key = d.DirectAssetPath
	}
	if key == "" {
		return "", fmt.Errorf("%w: no artifact to deliver", ErrInvalidTransition)
	}
	url, err := s.store.PresignDownload(ctx, key, DeliveryFilename(d), s.presignTTL())
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	s.RecordDelivery(ctx, d)
	return url, nil
}

// RecordDelivery bumps the access counter and notifies the audit sink.
// Also called by the HTTP layer after a successful streamed delivery.
func (s *Service) RecordDelivery(ctx context.Context, d *models.Download) {
	if err := s.repo.IncrementAccessCount(ctx, d.ID); err != nil {
		// Counter drift is acceptable; delivery already happened.
		return
	}
	s.sink.Emit(events.Event{Type: events.DownloadDelivered, DownloadID: d.ID, TenantID: d.TenantID, At: s.now()})
}
