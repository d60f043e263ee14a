package download

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bundlevault/bundlevault/internal/config"
	"github.com/bundlevault/bundlevault/internal/events"
	"github.com/bundlevault/bundlevault/internal/models"
	"github.com/bundlevault/bundlevault/internal/policy"
	"github.com/bundlevault/bundlevault/internal/utils"
)

// Service owns the download lifecycle: creation, management actions,
// regeneration and the state-to-response resolution used by the public
// delivery gateway.
type Service struct {
	repo      Repository
	store     ObjectStore
	queue     Queue
	sink      events.Sink
	plan      config.PlanLimits
	build     config.BuildConfig
	retention config.RetentionConfig
	presign   time.Duration
	now       func() time.Time
}

func NewService(repo Repository, store ObjectStore, queue Queue, sink events.Sink, plan config.PlanLimits, build config.BuildConfig, retention config.RetentionConfig, presignTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		queue:     queue,
		sink:      sink,
		plan:      plan,
		build:     build,
		retention: retention,
		presign:   presignTTL,
		now:       time.Now,
	}
}

func (s *Service) presignTTL() time.Duration {
	if s.presign <= 0 {
		return 15 * time.Minute
	}
	return s.presign
}

// SelectedAsset is one file chosen for bundling.
type SelectedAsset struct {
	AssetID   uuid.UUID
	Filename  string
	Path      string
	SizeBytes int64
	Primary   bool
}

type CreateParams struct {
	TenantID  uuid.UUID
	BrandID   *uuid.UUID
	CreatedBy uuid.UUID
	Title     string

	Selection []SelectedAsset

	AccessMode   models.AccessMode
	AllowedUsers []uuid.UUID
	Password     string

	ExpiresInDays int
	NonExpiring   bool
	Override      *policy.OrgOverride

	LandingMessage string
	ShowBranding   bool
}

// Create validates the selection against plan limits, fixes the delivery
// path (direct, streaming, or archive build) from the creation-time size
// estimate, and dispatches the build worker when an archive is needed.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Download, error) {
	if len(p.Selection) == 0 {
		return nil, ErrSelectionEmpty
	}
	if len(p.Selection) > s.plan.MaxAssetCount {
		return nil, fmt.Errorf("%w: %d assets over the %d cap", ErrLimitExceeded, len(p.Selection), s.plan.MaxAssetCount)
	}

	var estimated int64
	for _, a := range p.Selection {
		estimated += a.SizeBytes
	}
	if estimated > s.plan.MaxTotalBytes {
		return nil, fmt.Errorf("%w: %d bytes over the %d cap", ErrLimitExceeded, estimated, s.plan.MaxTotalBytes)
	}

	mode, ok := models.NormalizeAccessMode(p.AccessMode)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAccessMode, p.AccessMode)
	}

	now := s.now()
	expiresAt, err := policy.ComputeExpiry(now, policy.PlanRules{
		MaxExpiryDays:    s.plan.MaxExpiryDays,
		AllowNonExpiring: s.plan.AllowNonExpiring,
	}, p.ExpiresInDays, p.NonExpiring, p.Override)
	if err != nil {
		return nil, err
	}
	hardDeleteAt := policy.ComputeHardDeleteAt(now, expiresAt, s.retention.GraceDays, s.retention.MaxRetentionDays)

	slug, err := utils.GenerateSecureToken(24)
	if err != nil {
		return nil, fmt.Errorf("generate slug: %w", err)
	}

	var passwordHash string
	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	d := &models.Download{
		ID:                 uuid.New(),
		TenantID:           p.TenantID,
		BrandID:            p.BrandID,
		CreatedBy:          p.CreatedBy,
		Slug:               slug,
		Title:              p.Title,
		Status:             models.StatusReady,
		ZipStatus:          models.ZipNone,
		EstimatedSizeBytes: estimated,
		AssetCount:         len(p.Selection),
		AccessMode:         mode,
		PasswordHash:       passwordHash,
		ExpiresAt:          expiresAt,
		HardDeleteAt:       &hardDeleteAt,
		LandingMessage:     p.LandingMessage,
		ShowBranding:       p.ShowBranding,
	}

	primarySeen := false
	for i, a := range p.Selection {
		primary := a.Primary && !primarySeen
		if primary {
			primarySeen = true
		}
		d.Assets = append(d.Assets, models.DownloadAsset{
			DownloadID: d.ID,
			AssetID:    a.AssetID,
			Filename:   a.Filename,
			Path:       a.Path,
			SizeBytes:  a.SizeBytes,
			Index:      i,
			Primary:    primary,
		})
	}
	if !primarySeen {
		d.Assets[0].Primary = true
	}

	if mode == models.AccessUsers {
		for _, id := range p.AllowedUsers {
			d.Grants = append(d.Grants, models.DownloadGrant{DownloadID: d.ID, UserID: id})
		}
	}

	// Delivery path is fixed here and never revisited.
	switch {
	case len(p.Selection) == 1:
		d.DirectAssetPath = p.Selection[0].Path
	case s.build.StreamingEnabled && estimated > s.build.StreamingThresholdBytes:
		d.Streaming = true
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("persist download: %w", err)
	}

	if !d.SingleFile() && !d.Streaming {
		if err := s.dispatchBuild(ctx, d); err != nil {
			// The record stays at zip_status=none; the owner can regenerate.
			log.Printf("dispatch build for %s: %v", d.ID, err)
		}
	}

	s.sink.Emit(events.Event{
		Type:       events.DownloadCreated,
		DownloadID: d.ID,
		TenantID:   d.TenantID,
		ActorID:    &p.CreatedBy,
		At:         now,
		Detail:     map[string]string{"assets": fmt.Sprint(d.AssetCount), "streaming": fmt.Sprint(d.Streaming)},
	})
	return d, nil
}

func (s *Service) dispatchBuild(ctx context.Context, d *models.Download) error {
	total := ChunkCount(d.AssetCount, s.build.ChunkSize)
	won, err := s.repo.ClaimBuild(ctx, d.ID, total, s.now())
	if err != nil {
		return err
	}
	if !won {
		return ErrBuildConflict
	}
	d.ZipStatus = models.ZipBuilding
	d.ZipTotalChunks = total
	s.queue.Dispatch(d.ID)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Download, error) {
	return s.repo.GetByID(ctx, id)
}

// Health derives the advisory stall signals for the owner view.
func (s *Service) Health(d *models.Download) Health {
	return CheckHealth(d, s.now(), s.build.StallThreshold)
}

// Revoke blocks all future delivery. Idempotent: revoking an already
// revoked download is a no-op. The artifact reference is kept; deleting
// the object is a separate explicit action (DeleteArtifact).
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.IsRevoked() {
		return nil
	}
	now := s.now()
	if err := s.repo.SetRevoked(ctx, id, now); err != nil {
		return err
	}
	s.sink.Emit(events.Event{Type: events.DownloadRevoked, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: now})
	return nil
}

// Extend recomputes the expiry window from the plan rules.
func (s *Service) Extend(ctx context.Context, id uuid.UUID, actor uuid.UUID, days int, nonExpiring bool, override *policy.OrgOverride) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()
	expiresAt, err := policy.ComputeExpiry(now, policy.PlanRules{
		MaxExpiryDays:    s.plan.MaxExpiryDays,
		AllowNonExpiring: s.plan.AllowNonExpiring,
	}, days, nonExpiring, override)
	if err != nil {
		return err
	}
	hardDeleteAt := policy.ComputeHardDeleteAt(d.CreatedAt, expiresAt, s.retention.GraceDays, s.retention.MaxRetentionDays)
	if err := s.repo.SetExpiry(ctx, id, expiresAt, hardDeleteAt); err != nil {
		return err
	}
	s.sink.Emit(events.Event{Type: events.DownloadExtended, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: now})
	return nil
}

// ChangeAccess swaps the access mode, allow-list and optional password in
// one mutation. An empty password clears protection.
func (s *Service) ChangeAccess(ctx context.Context, id uuid.UUID, actor uuid.UUID, mode models.AccessMode, allow []uuid.UUID, password string) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	normalized, ok := models.NormalizeAccessMode(mode)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAccessMode, mode)
	}
	var passwordHash string
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		passwordHash = string(hash)
	}
	if normalized != models.AccessUsers {
		allow = nil
	}
	if err := s.repo.SetAccess(ctx, id, normalized, passwordHash, allow); err != nil {
		return err
	}
	s.sink.Emit(events.Event{
		Type: events.DownloadAccessSet, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: s.now(),
		Detail: map[string]string{"mode": string(normalized)},
	})
	return nil
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, actor uuid.UUID, title string) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetTitle(ctx, id, title); err != nil {
		return err
	}
	s.sink.Emit(events.Event{Type: events.DownloadRenamed, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: s.now()})
	return nil
}

// Regenerate starts a fresh build cycle on the same record. It refuses
// while a build is still running: dispatching a second worker would race
// the first one on the artifact columns. The previous artifact, if any,
// is kept until the new build succeeds.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == models.StatusFailed {
		return fmt.Errorf("%w: download is in a terminal failed state", ErrInvalidTransition)
	}
	if d.SingleFile() || d.Streaming {
		return ErrNoArchive
	}
	if !d.BuildTerminal() {
		return ErrBuildConflict
	}
	if err := s.dispatchBuild(ctx, d); err != nil {
		return err
	}
	s.sink.Emit(events.Event{Type: events.DownloadRegenerated, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: s.now()})
	return nil
}

// DeleteArtifact is the explicit cleanup action: it clears the artifact
// reference first, then removes the object, so the record never points at
// a deleted object.
func (s *Service) DeleteArtifact(ctx context.Context, id uuid.UUID, actor uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !d.BuildTerminal() {
		return ErrBuildConflict
	}
	prev, err := s.repo.ClearArtifact(ctx, id)
	if err != nil {
		return err
	}
	if prev != "" {
		if err := s.store.Delete(ctx, prev); err != nil {
			log.Printf("delete artifact object %s: %v", prev, err)
		}
	}
	s.sink.Emit(events.Event{Type: events.ArtifactDeleted, DownloadID: id, TenantID: d.TenantID, ActorID: &actor, At: s.now()})
	return nil
}

// Delete soft-deletes the record; the retention sweep purges it later.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkDeleted(ctx, id)
}
