package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/models"
)

// Gate is the per-request access check for accounts whose access derives
// from a license. There is no background scheduler driving suspension; the
// gate is the lazy trigger that notices a license went stale and runs the
// cascade synchronously.
type Gate struct {
	Accounts databases.AccountDatabase
	Licenses databases.LicenseDatabase
	Cascade  Cascade
}

// Decision is the gate's answer for one request
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAccess decides whether the account may proceed. Already-suspended
// accounts are rejected without touching the license (fail fast); otherwise
// the bound license is re-validated and a newly invalid license triggers the
// suspension cascade before the request is rejected.
func (g Gate) CheckAccess(ctx context.Context, accountID string) (Decision, error) {
	acc, err := g.Accounts.FindOne(ctx, bson.M{"_id": accountID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Decision{}, fmt.Errorf("account %s: %w", accountID, mongo.ErrNoDocuments)
		}
		return Decision{}, err
	}

	if acc.Details.AccessStatus == models.AccessSuspended {
		reason := acc.Details.LicenseStatus.Reason
		if reason == "" {
			// Suspensions written before the reason field existed carry no
			// cached reason; report the suspension itself rather than
			// guessing at a license type.
			reason = ReasonAccessSuspended
		}
		return Decision{Allowed: false, Reason: reason}, ErrAccessSuspended
	}

	licenseCode, err := g.boundLicenseCode(ctx, acc)
	if err != nil {
		return Decision{}, err
	}
	if licenseCode == "" {
		// Accounts with no license binding (e.g. staff) are not gated
		return Decision{Allowed: true}, nil
	}

	lic, err := g.Licenses.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Decision{Allowed: false, Reason: ReasonLicensePending}, ErrLicenseNotFound
		}
		return Decision{}, err
	}

	verdict := IsValid(lic.Details, time.Now())
	if !verdict.Valid {
		// The license expired since its last check; propagate suspension
		// before rejecting so dependents don't keep a stale access flag.
		if err := g.Cascade.OnLicenseBecameInvalid(ctx, licenseCode, verdict.Reason); err != nil {
			zap.S().Errorw("suspension cascade failed, will heal on next check",
				"license", licenseCode, "error", err)
		}
		return Decision{Allowed: false, Reason: verdict.Reason}, ErrLicenseExpired
	}

	g.refreshLicenseStatus(ctx, accountID, verdict)
	return Decision{Allowed: true}, nil
}

// boundLicenseCode resolves the license an account derives access from:
// directly for redeemers, through the guardian back-reference for dependents
func (g Gate) boundLicenseCode(ctx context.Context, acc *models.Account) (string, error) {
	if acc.Details.LicenseCode != "" {
		return acc.Details.LicenseCode, nil
	}
	if acc.Details.GuardianID == "" {
		return "", nil
	}
	guardian, err := g.Accounts.FindOne(ctx, bson.M{"_id": acc.Details.GuardianID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return "", err
	}
	return guardian.Details.LicenseCode, nil
}

// refreshLicenseStatus updates the cached validity projection on the
// account. Best effort: a lost write only delays the cache, never access.
func (g Gate) refreshLicenseStatus(ctx context.Context, accountID string, verdict Verdict) {
	now := primitive.NewDateTimeFromTime(time.Now())
	_, err := g.Accounts.UpdateOne(ctx, bson.M{"_id": accountID}, bson.M{
		"$set": bson.M{
			"account.licenseStatus.isValid":     verdict.Valid,
			"account.licenseStatus.reason":      verdict.Reason,
			"account.licenseStatus.lastChecked": now,
		},
	})
	if err != nil {
		zap.S().Warnw("failed to refresh cached license status", "account", accountID, "error", err)
	}
}
