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
)

// Claimer binds accounts to license sub-seats. The capacity check and the
// seat marking happen in one conditional update evaluated by the store, so
// concurrent claims against the last unit of capacity serialize correctly
// even across service instances.
type Claimer struct {
	DB databases.LicenseDatabase
}

// ClaimResult reports the sub-seat bound by a successful claim
type ClaimResult struct {
	LicenseCode string `json:"licenseCode"`
	SubSeatCode string `json:"subSeatCode"`
	ClaimOrder  int    `json:"claimOrder"`
	// FirstClaimant is true when this claim took position 0, which on
	// multi-guardian family licenses carries the invitation-minting capability
	FirstClaimant bool `json:"firstClaimant"`
}

// Claim binds accountID to the first available sub-seat of the license,
// consuming one unit of capacity. Exactly one of N concurrent claimants gets
// the last unit; the rest receive ErrLicenseExhausted.
func (c Claimer) Claim(ctx context.Context, licenseCode, accountID string) (*ClaimResult, error) {
	now := time.Now()
	nowDT := primitive.NewDateTimeFromTime(now)

	// The filter is the whole precondition: the license must exist, be in an
	// access-granting status, be unexpired (or inside an active grace
	// window), have a healthy subscription if it carries one, sit below its
	// usage cap and still hold an available seat. FindOneAndUpdate evaluates
	// filter and update as one atomic operation, which is what makes the
	// counter race-free.
	graceOpen := bson.M{"license.gracePeriod.isActive": true, "license.gracePeriod.expiresAt": bson.M{"$gt": nowDT}}
	filter := bson.M{
		"license.code":   licenseCode,
		"license.status": bson.M{"$in": []string{models.LicenseStatusPaid, models.LicenseStatusActive}},
		"$and": []bson.M{
			{"$or": []bson.M{
				{"license.licenseType": models.LicenseTypeUniversal},
				{"license.expiresAt": bson.M{"$gt": nowDT}},
				graceOpen,
			}},
			{"$or": []bson.M{
				{"license.subscription": nil},
				{"license.subscription.status": models.SubscriptionActive},
				graceOpen,
			}},
		},
		"$expr":            bson.M{"$lt": []interface{}{"$license.usageCount", "$license.maxUsages"}},
		"license.subSeats": bson.M{"$elemMatch": bson.M{"status": models.SubSeatAvailable}},
	}
	update := bson.M{
		"$inc": bson.M{"license.usageCount": 1},
		"$set": bson.M{
			"license.subSeats.$.status": models.SubSeatUsed,
			"license.subSeats.$.usedBy": accountID,
			"license.subSeats.$.usedAt": nowDT,
			"license.updatedAt":         nowDT,
		},
	}

	before, err := c.DB.FindOneAndUpdate(ctx, filter, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, c.classifyFailure(ctx, licenseCode, now)
		}
		return nil, err
	}

	// FindOneAndUpdate returned the pre-image; the seat taken is the first
	// one that was still available, and because the positional operator
	// always takes the first available seat, claims land in array order.
	seatIdx := -1
	for n, seat := range before.Details.SubSeats {
		if seat.Status == models.SubSeatAvailable {
			seatIdx = n
			break
		}
	}
	if seatIdx < 0 {
		// The filter guaranteed an available seat existed; treat a miss as
		// corruption rather than guessing.
		return nil, ErrLicenseExhausted
	}
	seat := before.Details.SubSeats[seatIdx]

	c.recordClaimOrder(ctx, licenseCode, seat.Code, seatIdx)
	c.markUsedIfExhausted(ctx, licenseCode)

	return &ClaimResult{
		LicenseCode:   licenseCode,
		SubSeatCode:   seat.Code,
		ClaimOrder:    seatIdx,
		FirstClaimant: seatIdx == 0,
	}, nil
}

// classifyFailure re-reads the license after a failed conditional update to
// tell the caller which precondition broke
func (c Claimer) classifyFailure(ctx context.Context, licenseCode string, now time.Time) error {
	lic, err := c.DB.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrLicenseNotFound
		}
		return err
	}
	if !IsValid(lic.Details, now).Valid {
		return ErrLicenseInvalid
	}
	return ErrLicenseExhausted
}

// recordClaimOrder stamps the claim position on the seat. Bookkeeping only:
// the position is already implied by array order, so a lost update here is
// healed by the next claim and never affects capacity.
func (c Claimer) recordClaimOrder(ctx context.Context, licenseCode, seatCode string, order int) {
	err := c.DB.UpdateOne(ctx,
		bson.M{"license.code": licenseCode, "license.subSeats.code": seatCode},
		bson.M{"$set": bson.M{"license.subSeats.$.claimOrder": order}},
	)
	if err != nil {
		zap.S().Warnw("failed to record claim order", "license", licenseCode, "seat", seatCode, "error", err)
	}
}

// markUsedIfExhausted flips a fully redeemed license to "used". The filter
// carries the exhaustion check so re-runs are no-ops.
func (c Claimer) markUsedIfExhausted(ctx context.Context, licenseCode string) {
	err := c.DB.UpdateOne(ctx,
		bson.M{
			"license.code":   licenseCode,
			"license.status": bson.M{"$in": []string{models.LicenseStatusPaid, models.LicenseStatusActive}},
			"$expr":          bson.M{"$gte": []interface{}{"$license.usageCount", "$license.maxUsages"}},
		},
		bson.M{"$set": bson.M{"license.status": models.LicenseStatusUsed}},
	)
	if err != nil {
		zap.S().Warnw("failed to mark license used", "license", licenseCode, "error", err)
	}
}

// FirstClaimantID returns the account bound to sub-seat position 0, the
// claimant granted the invitation-minting capability on multi-guardian
// family licenses
func FirstClaimantID(lic models.LicenseDetails) string {
	if len(lic.SubSeats) == 0 {
		return ""
	}
	first := lic.SubSeats[0]
	if first.Status != models.SubSeatUsed {
		return ""
	}
	return first.UsedBy
}
