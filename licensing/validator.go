package licensing

import (
	"time"

	"github.com/classkeep/license-api/models"
)

// Verdict is the outcome of a validity check: whether the license grants
// access right now and the stable reason code explaining why not.
type Verdict struct {
	Valid  bool
	Reason string
}

// IsValid decides whether a license currently grants access. Pure function of
// the license document and the clock, no side effects.
//
// Order matters: the grace period is checked before hard expiry so that a
// payment failure followed by a grace window does not cut access, while a
// license that is invalid by status is never resurrected by a stale grace flag.
func IsValid(lic models.LicenseDetails, now time.Time) Verdict {
	if !statusGrantsAccess(lic.Status) {
		return Verdict{Valid: false, Reason: statusReason(lic)}
	}

	graceActive := lic.GracePeriod != nil && lic.GracePeriod.IsActive && lic.GracePeriod.ExpiresAt.Time().After(now)

	if lic.Subscription != nil && lic.Subscription.Status != models.SubscriptionActive && !graceActive {
		if lic.Subscription.Status == models.SubscriptionCancelled {
			return Verdict{Valid: false, Reason: ReasonSubscriptionCancelled}
		}
		return Verdict{Valid: false, Reason: ReasonSubscriptionInactive}
	}

	if graceActive {
		return Verdict{Valid: true, Reason: ReasonPaymentFailedGrace}
	}

	// Universal licenses carry no expiry
	if lic.LicenseType != models.LicenseTypeUniversal && !lic.ExpiresAt.Time().After(now) {
		return Verdict{Valid: false, Reason: expiryReason(lic.LicenseType)}
	}

	return Verdict{Valid: true, Reason: ReasonLicenseValid}
}

// CanClaim reports whether one more unit of capacity can be taken from the
// license: it must be valid and either hold an available sub-seat or, for
// counter-based family capacity, sit below its usage cap.
func CanClaim(lic models.LicenseDetails, now time.Time) bool {
	if !IsValid(lic, now).Valid {
		return false
	}
	if lic.LicenseType == models.LicenseTypeUniversal {
		return true
	}
	if lic.MaxUsages > 0 && lic.UsageCount >= lic.MaxUsages {
		return false
	}
	for _, seat := range lic.SubSeats {
		if seat.Status == models.SubSeatAvailable {
			return true
		}
	}
	return false
}

// AvailableSeats counts the sub-seats still open for redemption
func AvailableSeats(lic models.LicenseDetails) int {
	n := 0
	for _, seat := range lic.SubSeats {
		if seat.Status == models.SubSeatAvailable {
			n++
		}
	}
	return n
}

// statusGrantsAccess reports whether the lifecycle status alone permits
// access. "used" means fully redeemed, which exhausts capacity but does not
// revoke access from the accounts already bound.
func statusGrantsAccess(status string) bool {
	switch status {
	case models.LicenseStatusPaid, models.LicenseStatusActive, models.LicenseStatusUsed:
		return true
	}
	return false
}

func statusReason(lic models.LicenseDetails) string {
	switch lic.Status {
	case models.LicenseStatusPending:
		return ReasonLicensePending
	case models.LicenseStatusCancelled:
		return ReasonSubscriptionCancelled
	}
	return expiryReason(lic.LicenseType)
}

func expiryReason(licenseType string) string {
	if licenseType == models.LicenseTypeSchool {
		return ReasonSchoolLicenseExpired
	}
	return ReasonFamilyLicenseExpired
}
