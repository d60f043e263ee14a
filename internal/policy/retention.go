package policy

import (
	"errors"
	"time"
)

// ErrNonExpiringNotAllowed is returned when a non-expiring download is
// requested but the plan or an organizational override forbids it.
var ErrNonExpiringNotAllowed = errors.New("non-expiring downloads are not allowed")

// PlanRules are the plan-level expiry limits.
type PlanRules struct {
	MaxExpiryDays    int
	AllowNonExpiring bool
}

// OrgOverride lets an organization tighten the plan rules: force a fixed
// expiry window, or forbid non-expiring downloads outright.
type OrgOverride struct {
	ForceExpiryDays   int // 0 = no forced window
	ForbidNonExpiring bool
}

// ComputeExpiry returns the expiry timestamp for a new download, or nil
// for a non-expiring one. requestedDays <= 0 together with nonExpiring
// false falls back to the plan maximum.
func ComputeExpiry(now time.Time, plan PlanRules, requestedDays int, nonExpiring bool, override *OrgOverride) (*time.Time, error) {
	if override != nil && override.ForceExpiryDays > 0 {
		t := now.AddDate(0, 0, override.ForceExpiryDays)
		return &t, nil
	}

	if nonExpiring {
		if !plan.AllowNonExpiring || (override != nil && override.ForbidNonExpiring) {
			return nil, ErrNonExpiringNotAllowed
		}
		return nil, nil
	}

	days := requestedDays
	if days <= 0 || days > plan.MaxExpiryDays {
		days = plan.MaxExpiryDays
	}
	t := now.AddDate(0, 0, days)
	return &t, nil
}

// ComputeHardDeleteAt derives the purge timestamp. For expiring downloads
// it is graceDays after expiry; non-expiring downloads still get purged
// maxRetentionDays after creation.
func ComputeHardDeleteAt(createdAt time.Time, expiresAt *time.Time, graceDays, maxRetentionDays int) time.Time {
	if expiresAt != nil {
		return expiresAt.AddDate(0, 0, graceDays)
	}
	return createdAt.AddDate(0, 0, maxRetentionDays)
}
