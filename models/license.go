package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// License variant names
const (
	LicenseTypeFamily    = "family"
	LicenseTypeSchool    = "school"
	LicenseTypeUniversal = "universal"
)

// License status values. Family and school licenses move through overlapping
// subsets of these; "used" and "expired" are terminal for capacity purposes.
const (
	LicenseStatusPending   = "pending"
	LicenseStatusPaid      = "paid"
	LicenseStatusActive    = "active"
	LicenseStatusUsed      = "used"
	LicenseStatusExpired   = "expired"
	LicenseStatusCancelled = "cancelled"
)

// Sub-seat states
const (
	SubSeatAvailable = "available"
	SubSeatUsed      = "used"
)

// Subscription status values
const (
	SubscriptionActive    = "active"
	SubscriptionPaused    = "paused"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// License holds the structure for the license collection in mongo
type License struct {
	ID      primitive.ObjectID `json:"_id" bson:"_id"`
	Details LicenseDetails     `json:"license" bson:"license"`
	Version int32              `json:"__v" bson:"__v"`
}

// LicenseDetails holds the structure for the inner license structure as
// defined in the license collection in mongo
type LicenseDetails struct {
	Code           string             `json:"code" bson:"code"`
	LicenseType    string             `json:"licenseType" bson:"licenseType"`
	Status         string             `json:"status" bson:"status"`
	Plan           PlanParameters     `json:"plan" bson:"plan"`
	MaxUsages      int                `json:"maxUsages" bson:"maxUsages"`
	UsageCount     int                `json:"usageCount" bson:"usageCount"`
	SubSeats       []SubSeat          `json:"subSeats" bson:"subSeats"`
	Subscription   *Subscription      `json:"subscription,omitempty" bson:"subscription,omitempty"`
	GracePeriod    *GracePeriod       `json:"gracePeriod,omitempty" bson:"gracePeriod,omitempty"`
	ExpiresAt      primitive.DateTime `json:"expiresAt" bson:"expiresAt"`
	RenewalHistory []RenewalAttempt   `json:"renewalHistory" bson:"renewalHistory"`
	OwnerEmail     string             `json:"ownerEmail" bson:"ownerEmail"`
	OwnerName      string             `json:"ownerName" bson:"ownerName"`
	CreatedAt      interface{}        `json:"createdAt" bson:"createdAt"`
	UpdatedAt      interface{}        `json:"updatedAt" bson:"updatedAt"`
}

// PlanParameters holds the seat counts and price agreed at purchase time.
// Family plans carry 1-2 guardian seats and 1-4 dependent seats; school
// plans carry at least 50 dependent seats and no guardian seats.
type PlanParameters struct {
	GuardianSeats  int     `json:"guardianSeats" bson:"guardianSeats"`
	DependentSeats int     `json:"dependentSeats" bson:"dependentSeats"`
	Price          float64 `json:"price" bson:"price"`
}

// SubSeat is one individually redeemable unit of capacity within a license.
// Order matters: the sub-seat at index 0 of a multi-guardian family license
// carries the invitation-minting capability for whichever account claims first.
type SubSeat struct {
	Code       string              `json:"code" bson:"code"`
	Status     string              `json:"status" bson:"status"`
	UsedBy     string              `json:"usedBy,omitempty" bson:"usedBy,omitempty"`
	UsedAt     *primitive.DateTime `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
	ClaimOrder int                 `json:"claimOrder" bson:"claimOrder"`
}

// Subscription is the recurring-billing sub-state attached to a license
// that was purchased through the payment processor rather than admin-granted.
type Subscription struct {
	ExternalID    string             `json:"externalID" bson:"externalID"`
	Status        string             `json:"status" bson:"status"`
	NextBillingAt primitive.DateTime `json:"nextBillingAt" bson:"nextBillingAt"`
	AutoRenew     bool               `json:"autoRenew" bson:"autoRenew"`
}

// GracePeriod is a temporary validity override following a billing failure.
// While active and unexpired it outranks both hard expiry and an inactive
// subscription when deciding license validity.
type GracePeriod struct {
	IsActive   bool                `json:"isActive" bson:"isActive"`
	ExpiresAt  primitive.DateTime  `json:"expiresAt" bson:"expiresAt"`
	Reason     string              `json:"reason" bson:"reason"`
	NotifiedAt *primitive.DateTime `json:"notifiedAt,omitempty" bson:"notifiedAt,omitempty"`
}

// RenewalAttempt is one append-only entry in a license's renewal history
type RenewalAttempt struct {
	Timestamp     primitive.DateTime `json:"timestamp" bson:"timestamp"`
	Amount        float64            `json:"amount" bson:"amount"`
	TransactionID string             `json:"transactionID" bson:"transactionID"`
	Outcome       string             `json:"outcome" bson:"outcome"`
}
