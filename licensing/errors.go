package licensing

import "errors"

// Typed failures surfaced to callers so the HTTP layer can give
// differentiated feedback. Anything not listed here is an infrastructure
// error and is passed through wrapped.
var (
	ErrInvalidPlanParameters = errors.New("invalid plan parameters")
	ErrLicenseNotFound       = errors.New("license not found")
	ErrLicenseInvalid        = errors.New("license is not valid")
	ErrLicenseExhausted      = errors.New("license has no remaining capacity")
	ErrAccessSuspended       = errors.New("account access is suspended")
	ErrLicenseExpired        = errors.New("license has expired")
	ErrInvalidInvitation     = errors.New("invitation token is not valid")
	ErrNotFirstClaimant      = errors.New("account is not the first claimant of this license")
)

// Stable reason codes cached on accounts and returned to clients so they can
// route the user to the right renewal flow instead of a generic error.
const (
	ReasonFamilyLicenseExpired  = "family_license_expired"
	ReasonSchoolLicenseExpired  = "school_license_expired"
	ReasonPaymentFailedGrace    = "payment_failed_grace_period"
	ReasonSubscriptionCancelled = "subscription_cancelled"
	ReasonSubscriptionInactive  = "subscription_inactive"
	ReasonLicensePending        = "license_pending"
	ReasonLicenseValid          = "license_valid"
	ReasonAccessSuspended       = "access_suspended"
)
