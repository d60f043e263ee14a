// Package policy holds the pure decision functions of the fulfillment
// engine: who may open a download, and when it expires and gets purged.
// Nothing in here touches the database or the object store.
package policy

import (
	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/models"
)

// Principal is the requesting identity with its memberships already
// resolved by the caller (directory lookups are an upstream concern,
// which keeps IsAllowed side-effect free).
type Principal struct {
	UserID  *uuid.UUID // nil for anonymous visitors
	Tenants []uuid.UUID
	Brands  []uuid.UUID // active brand memberships only
}

// Anonymous reports whether the principal carries no authenticated identity.
func (p Principal) Anonymous() bool {
	return p.UserID == nil
}

func (p Principal) MemberOfTenant(id uuid.UUID) bool {
	for _, t := range p.Tenants {
		if t == id {
			return true
		}
	}
	return false
}

func (p Principal) MemberOfBrand(id uuid.UUID) bool {
	for _, b := range p.Brands {
		if b == id {
			return true
		}
	}
	return false
}

// IsAllowed evaluates the download's access mode against the principal.
// Legacy aliases (team, restricted) are normalized first; an unknown mode
// denies. In users mode an empty allow-list denies everyone: access must
// be granted explicitly, never inherited from tenant membership.
func IsAllowed(d *models.Download, p Principal) bool {
	mode, ok := models.NormalizeAccessMode(d.AccessMode)
	if !ok {
		return false
	}

	switch mode {
	case models.AccessPublic:
		return true
	case models.AccessBrand:
		if d.BrandID == nil {
			return false
		}
		return !p.Anonymous() && p.MemberOfBrand(*d.BrandID)
	case models.AccessCompany:
		return !p.Anonymous() && p.MemberOfTenant(d.TenantID)
	case models.AccessUsers:
		if p.Anonymous() {
			return false
		}
		for _, id := range d.AllowedUserIDs() {
			if id == *p.UserID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
