package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Account access states
const (
	AccessActive    = "active"
	AccessSuspended = "suspended"
)

// Account roles
const (
	RoleGuardian  = "guardian"
	RoleDependent = "dependent"
	RoleSchool    = "school"
)

// Account holds the structure for the account collection in mongo
type Account struct {
	ID      string         `json:"_id" bson:"_id"`
	Details AccountDetails `json:"account" bson:"account"`
	Version int32          `json:"__v" bson:"__v"`
}

// AccountDetails holds the structure for the inner account structure as
// defined in the account collection in mongo. Dependents reference the
// guardian they belong to; guardians and school admins reference the
// license they redeemed a sub-seat of.
type AccountDetails struct {
	Email         string        `json:"email" bson:"email"`
	Name          string        `json:"name" bson:"name"`
	Password      string        `json:"password" bson:"password"`
	Role          string        `json:"role" bson:"role"`
	AccessStatus  string        `json:"accessStatus" bson:"accessStatus"`
	LicenseCode   string        `json:"licenseCode,omitempty" bson:"licenseCode,omitempty"`
	SubSeatCode   string        `json:"subSeatCode,omitempty" bson:"subSeatCode,omitempty"`
	GuardianID    string        `json:"guardianID,omitempty" bson:"guardianID,omitempty"`
	LicenseStatus LicenseStatus `json:"licenseStatus" bson:"licenseStatus"`
	CreatedAt     interface{}   `json:"createdAt" bson:"createdAt"`
	UpdatedAt     interface{}   `json:"updatedAt" bson:"updatedAt"`
}

// LicenseStatus is the validity projection cached on an account from the
// last time its license was checked
type LicenseStatus struct {
	IsValid     bool                `json:"isValid" bson:"isValid"`
	Reason      string              `json:"reason" bson:"reason"`
	LastChecked *primitive.DateTime `json:"lastChecked,omitempty" bson:"lastChecked,omitempty"`
}
