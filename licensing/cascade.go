package licensing

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/models"
	"github.com/classkeep/license-api/notifications"
)

// DependentResolver resolves the accounts whose access derives from another
// account rather than from their own license. One interface covers both
// relationship kinds (guardian back-reference and school membership) so the
// cascade has a single code path.
type DependentResolver interface {
	ResolveDependents(ctx context.Context, accountID string) ([]string, error)
}

// AccountDependentResolver resolves dependents through the guardianID
// back-reference on the accounts collection. Dependents of both family
// guardians and school admin accounts point at their parent the same way.
type AccountDependentResolver struct {
	DB databases.AccountDatabase
}

// ResolveDependents returns the IDs of accounts that declare accountID as
// their guardian
func (r AccountDependentResolver) ResolveDependents(ctx context.Context, accountID string) ([]string, error) {
	deps, err := r.DB.Find(ctx, bson.M{"account.guardianID": accountID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// Cascade propagates a license's validity transitions to every account that
// derives access from it: the direct sub-seat redeemers and their dependents.
type Cascade struct {
	Licenses databases.LicenseDatabase
	Accounts databases.AccountDatabase
	Resolver DependentResolver
	Notifier notifications.Notifier
}

// OnLicenseBecameInvalid suspends every account transitively bound to the
// license and notifies the owner once. The account updates are absolute
// $set writes recomputed from current state, so re-running after a partial
// failure converges to the same end state.
func (c Cascade) OnLicenseBecameInvalid(ctx context.Context, licenseCode, reason string) error {
	lic, affected, err := c.resolveAffected(ctx, licenseCode)
	if err != nil {
		return err
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	update := bson.M{
		"$set": bson.M{
			"account.accessStatus":              models.AccessSuspended,
			"account.licenseStatus.isValid":     false,
			"account.licenseStatus.reason":      reason,
			"account.licenseStatus.lastChecked": now,
			"account.updatedAt":                 now,
		},
	}
	res, err := c.Accounts.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": affected}}, update)
	if err != nil {
		return err
	}
	zap.S().Infow("license suspension cascaded",
		"license", licenseCode,
		"reason", reason,
		"affected", len(affected),
		"modified", res.ModifiedCount,
	)

	c.notifyOwner(lic, notifications.TemplateLicenseSuspended, reason)
	return nil
}

// OnLicenseBecameValid is the symmetric restoration: every transitively
// bound account gets its access flag set back to active.
func (c Cascade) OnLicenseBecameValid(ctx context.Context, licenseCode string) error {
	lic, affected, err := c.resolveAffected(ctx, licenseCode)
	if err != nil {
		return err
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	update := bson.M{
		"$set": bson.M{
			"account.accessStatus":              models.AccessActive,
			"account.licenseStatus.isValid":     true,
			"account.licenseStatus.reason":      ReasonLicenseValid,
			"account.licenseStatus.lastChecked": now,
			"account.updatedAt":                 now,
		},
	}
	res, err := c.Accounts.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": affected}}, update)
	if err != nil {
		return err
	}
	zap.S().Infow("license restoration cascaded",
		"license", licenseCode,
		"affected", len(affected),
		"modified", res.ModifiedCount,
	)

	c.notifyOwner(lic, notifications.TemplateLicenseRestored, "")
	return nil
}

// resolveAffected recomputes the full set of account IDs deriving access
// from the license: direct redeemers plus everything the resolver reaches
// from them. No bookkeeping is consulted, which is what makes crash retries
// safe.
func (c Cascade) resolveAffected(ctx context.Context, licenseCode string) (*models.License, []string, error) {
	lic, err := c.Licenses.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, ErrLicenseNotFound
		}
		return nil, nil, err
	}

	redeemers, err := c.Accounts.Find(ctx, bson.M{"account.licenseCode": licenseCode})
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	affected := make([]string, 0, len(redeemers))
	for _, acc := range redeemers {
		if !seen[acc.ID] {
			seen[acc.ID] = true
			affected = append(affected, acc.ID)
		}
		deps, err := c.Resolver.ResolveDependents(ctx, acc.ID)
		if err != nil {
			// A partially resolved set still gets updated; the sweep or the
			// next lazy check picks up whoever was missed.
			zap.S().Errorw("failed to resolve dependents", "account", acc.ID, "error", err)
			continue
		}
		for _, id := range deps {
			if !seen[id] {
				seen[id] = true
				affected = append(affected, id)
			}
		}
	}
	return lic, affected, nil
}

// notifyOwner sends exactly one notification per transition, to the license
// owner, never per affected account. Failures are logged and swallowed so a
// dead mail provider cannot abort a state transition.
func (c Cascade) notifyOwner(lic *models.License, templateKind, reason string) {
	if c.Notifier == nil || lic.Details.OwnerEmail == "" {
		return
	}
	err := c.Notifier.Notify(lic.Details.OwnerEmail, templateKind, notifications.Context{
		RecipientName: lic.Details.OwnerName,
		LicenseCode:   lic.Details.Code,
		Reason:        reason,
	})
	if err != nil {
		zap.S().Errorw("failed to send license transition notification",
			"license", lic.Details.Code,
			"template", templateKind,
			"error", err,
		)
	}
}
