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
	"github.com/classkeep/license-api/notifications"
)

// Subscriptions handles the renewal and cancellation side of the license
// lifecycle: payment events from the processor, grace period activation and
// administrative cancellation. State transitions here always complete even
// when the follow-up notification fails.
type Subscriptions struct {
	Licenses    databases.LicenseDatabase
	Cascade     Cascade
	Notifier    notifications.Notifier
	Validity    time.Duration
	GraceLength time.Duration
}

// ApplyPaymentEvent applies one renewal or failure event from the payment
// processor to the named license. The caller has already verified the
// event's authenticity.
func (s Subscriptions) ApplyPaymentEvent(ctx context.Context, ev models.PaymentEvent) error {
	lic, err := s.Licenses.FindOne(ctx, bson.M{"license.code": ev.LicenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrLicenseNotFound
		}
		return err
	}

	switch ev.Outcome {
	case models.PaymentOutcomeSuccess:
		return s.applyRenewal(ctx, lic, ev)
	case models.PaymentOutcomeFailure:
		return s.applyPaymentFailure(ctx, lic, ev)
	default:
		return fmt.Errorf("unknown payment outcome %q for license %s", ev.Outcome, ev.LicenseCode)
	}
}

// applyRenewal pushes the expiry forward one billing window, reactivates the
// subscription, clears any grace period and cascades restoration
func (s Subscriptions) applyRenewal(ctx context.Context, lic *models.License, ev models.PaymentEvent) error {
	now := time.Now()
	newExpiry := primitive.NewDateTimeFromTime(now.Add(s.Validity))
	nowDT := primitive.NewDateTimeFromTime(now)

	update := bson.M{
		"$set": bson.M{
			"license.status":    models.LicenseStatusActive,
			"license.expiresAt": newExpiry,
			"license.subscription.status":        models.SubscriptionActive,
			"license.subscription.nextBillingAt": newExpiry,
			"license.gracePeriod":                nil,
			"license.updatedAt":                  nowDT,
		},
		"$push": bson.M{
			"license.renewalHistory": models.RenewalAttempt{
				Timestamp:     nowDT,
				Amount:        ev.Amount,
				TransactionID: ev.TransactionID,
				Outcome:       models.PaymentOutcomeSuccess,
			},
		},
	}
	if err := s.Licenses.UpdateOne(ctx, bson.M{"license.code": lic.Details.Code}, update); err != nil {
		return fmt.Errorf("failed to apply renewal to license %s: %w", lic.Details.Code, err)
	}

	// Restoration is a no-op on hierarchies that were never suspended; the
	// cascade's absolute writes make re-application safe either way.
	if err := s.Cascade.OnLicenseBecameValid(ctx, lic.Details.Code); err != nil {
		zap.S().Errorw("restoration cascade failed after renewal, will heal on next check",
			"license", lic.Details.Code, "error", err)
	}
	return nil
}

// applyPaymentFailure records the failed attempt and opens a grace window,
// but only for licenses that were valid immediately prior to the event.
// A long-expired license does not become grace-eligible by failing again.
func (s Subscriptions) applyPaymentFailure(ctx context.Context, lic *models.License, ev models.PaymentEvent) error {
	now := time.Now()
	nowDT := primitive.NewDateTimeFromTime(now)

	attempt := models.RenewalAttempt{
		Timestamp:     nowDT,
		Amount:        ev.Amount,
		TransactionID: ev.TransactionID,
		Outcome:       models.PaymentOutcomeFailure,
	}

	if !IsValid(lic.Details, now).Valid {
		set := bson.M{"license.updatedAt": nowDT}
		// Writing subscription.status on a license that never had a
		// subscription would materialize a partial sub-document.
		if lic.Details.Subscription != nil {
			set["license.subscription.status"] = models.SubscriptionExpired
		}
		update := bson.M{
			"$set":  set,
			"$push": bson.M{"license.renewalHistory": attempt},
		}
		if err := s.Licenses.UpdateOne(ctx, bson.M{"license.code": lic.Details.Code}, update); err != nil {
			return err
		}
		if err := s.Cascade.OnLicenseBecameInvalid(ctx, lic.Details.Code, expiryReason(lic.Details.LicenseType)); err != nil {
			zap.S().Errorw("suspension cascade failed after payment failure, will heal on next check",
				"license", lic.Details.Code, "error", err)
		}
		return nil
	}

	graceDays := int(s.GraceLength.Hours() / 24)
	set := bson.M{
		"license.gracePeriod": models.GracePeriod{
			IsActive:  true,
			ExpiresAt: primitive.NewDateTimeFromTime(now.Add(s.GraceLength)),
			Reason:    ReasonPaymentFailedGrace,
		},
		"license.updatedAt": nowDT,
	}
	if lic.Details.Subscription != nil {
		set["license.subscription.status"] = models.SubscriptionPaused
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"license.renewalHistory": attempt},
	}
	if err := s.Licenses.UpdateOne(ctx, bson.M{"license.code": lic.Details.Code}, update); err != nil {
		return fmt.Errorf("failed to open grace period on license %s: %w", lic.Details.Code, err)
	}

	s.notifyGraceWarning(lic, graceDays)
	return nil
}

// ActivateGracePeriod opens a grace window administratively. Only licenses
// that currently validate are eligible.
func (s Subscriptions) ActivateGracePeriod(ctx context.Context, licenseCode, reason string) error {
	lic, err := s.Licenses.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrLicenseNotFound
		}
		return err
	}
	now := time.Now()
	if !IsValid(lic.Details, now).Valid {
		return ErrLicenseInvalid
	}
	if reason == "" {
		reason = ReasonPaymentFailedGrace
	}

	update := bson.M{
		"$set": bson.M{
			"license.gracePeriod": models.GracePeriod{
				IsActive:  true,
				ExpiresAt: primitive.NewDateTimeFromTime(now.Add(s.GraceLength)),
				Reason:    reason,
			},
			"license.updatedAt": primitive.NewDateTimeFromTime(now),
		},
	}
	return s.Licenses.UpdateOne(ctx, bson.M{"license.code": licenseCode}, update)
}

// CancelSubscription cancels a license and cascades suspension to everyone
// bound to it
func (s Subscriptions) CancelSubscription(ctx context.Context, licenseCode string) error {
	lic, err := s.Licenses.FindOne(ctx, bson.M{"license.code": licenseCode})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrLicenseNotFound
		}
		return err
	}

	now := primitive.NewDateTimeFromTime(time.Now())
	set := bson.M{
		"license.status":      models.LicenseStatusCancelled,
		"license.gracePeriod": nil,
		"license.updatedAt":   now,
	}
	if lic.Details.Subscription != nil {
		set["license.subscription.status"] = models.SubscriptionCancelled
	}
	update := bson.M{"$set": set}
	if err := s.Licenses.UpdateOne(ctx, bson.M{"license.code": licenseCode}, update); err != nil {
		return fmt.Errorf("failed to cancel license %s: %w", licenseCode, err)
	}
	if err := s.Cascade.OnLicenseBecameInvalid(ctx, licenseCode, ReasonSubscriptionCancelled); err != nil {
		zap.S().Errorw("suspension cascade failed after cancellation, will heal on next check",
			"license", licenseCode, "error", err)
	}
	return nil
}

func (s Subscriptions) notifyGraceWarning(lic *models.License, graceDays int) {
	if s.Notifier == nil || lic.Details.OwnerEmail == "" {
		return
	}
	err := s.Notifier.Notify(lic.Details.OwnerEmail, notifications.TemplateGraceWarning, notifications.Context{
		RecipientName: lic.Details.OwnerName,
		LicenseCode:   lic.Details.Code,
		Reason:        ReasonPaymentFailedGrace,
		GraceDays:     graceDays,
	})
	if err != nil {
		zap.S().Errorw("failed to send grace warning", "license", lic.Details.Code, "error", err)
	}
}
