// Package events is the boundary to the activity/audit collaborator.
// Emission is fire-and-forget: a sink must never fail the calling flow.
package events

import (
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	DownloadCreated     = "download.created"
	DownloadRevoked     = "download.revoked"
	DownloadExtended    = "download.extended"
	DownloadRegenerated = "download.regenerated"
	DownloadAccessSet   = "download.access_changed"
	DownloadRenamed     = "download.renamed"
	DownloadDelivered   = "download.delivered"
	DownloadPurged      = "download.purged"
	BuildSucceeded      = "build.succeeded"
	BuildFailed         = "build.failed"
	ArtifactDeleted     = "artifact.deleted"
)

type Event struct {
	Type       string            `json:"type"`
	DownloadID uuid.UUID         `json:"downloadId"`
	TenantID   uuid.UUID         `json:"tenantId"`
	ActorID    *uuid.UUID        `json:"actorId,omitempty"`
	At         time.Time         `json:"at"`
	Detail     map[string]string `json:"detail,omitempty"`
}

// Sink receives audit events. Implementations must not block the caller.
type Sink interface {
	Emit(ev Event)
}

// LogSink writes events to the process log. Stands in for the real
// activity pipeline in development and tests.
type LogSink struct{}

func (LogSink) Emit(ev Event) {
	log.Printf("event %s download=%s tenant=%s detail=%v", ev.Type, ev.DownloadID, ev.TenantID, ev.Detail)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(Event) {}
