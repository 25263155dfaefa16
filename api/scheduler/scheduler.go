package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/licensing"
	"github.com/classkeep/license-api/models"
	"github.com/classkeep/license-api/notifications"
)

// Scheduler runs the proactive license sweep. The access gate already
// suspends lazily on the next request; these jobs exist so accounts that
// never come back still get flipped, and so owners hear about an ending
// grace window before it closes. Both jobs are idempotent re-runs of the
// same cascade the gate triggers, which is what makes them safe to add.
type Scheduler struct {
	cron       *cron.Cron
	LDB        databases.LicenseDatabase
	LockDB     databases.SchedulerLockDatabase
	Cascade    licensing.Cascade
	Notifier   notifications.Notifier
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(
	lDB databases.LicenseDatabase,
	lockDB databases.SchedulerLockDatabase,
	cascade licensing.Cascade,
	notifier notifications.Notifier,
) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		LDB:        lDB,
		LockDB:     lockDB,
		Cascade:    cascade,
		Notifier:   notifier,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Suspend accounts on licenses that lapsed without a request observing it, daily at 3 AM UTC
	_, err := s.cron.AddFunc("0 3 * * *", s.processLapsedLicenses)
	if err != nil {
		zap.S().Errorw("failed to register lapsed license job", "error", err)
	}

	// Remind owners whose grace window ends within 24 hours, daily at 2 AM UTC
	_, err = s.cron.AddFunc("0 2 * * *", s.processGraceReminders)
	if err != nil {
		zap.S().Errorw("failed to register grace reminder job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("License sweep scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("License sweep scheduler stopped")
}

// processLapsedLicenses finds licenses that stopped validating since the
// last sweep and cascades suspension for each
func (s *Scheduler) processLapsedLicenses() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Try to acquire distributed lock (10 minute TTL)
	acquired, err := s.LockDB.TryAcquireLock(ctx, "lapsed_license_job", s.instanceID, 10*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for lapsed license job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("Lapsed license job already running on another instance, skipping")
		return
	}
	defer s.LockDB.ReleaseLock(ctx, "lapsed_license_job", s.instanceID)

	now := time.Now()
	zap.S().Infow("Running lapsed license sweep", "instance", s.instanceID)

	// Candidates: access-granting status but past hard expiry. The validator
	// still decides; the filter only trims the scan.
	filter := bson.M{
		"license.status":      bson.M{"$in": []string{models.LicenseStatusPaid, models.LicenseStatusActive, models.LicenseStatusUsed}},
		"license.licenseType": bson.M{"$ne": models.LicenseTypeUniversal},
		"license.expiresAt":   bson.M{"$lt": primitive.NewDateTimeFromTime(now)},
	}
	candidates, err := s.LDB.Find(ctx, filter)
	if err != nil {
		zap.S().Errorw("failed to find lapsed license candidates", "error", err)
		return
	}

	suspended := 0
	for _, lic := range candidates {
		verdict := licensing.IsValid(lic.Details, now)
		if verdict.Valid {
			// still inside a grace window
			continue
		}
		if err := s.Cascade.OnLicenseBecameInvalid(ctx, lic.Details.Code, verdict.Reason); err != nil {
			zap.S().Errorw("sweep cascade failed", "license", lic.Details.Code, "error", err)
			continue
		}
		suspended++
	}

	zap.S().Infow("Lapsed license sweep complete",
		"candidates", len(candidates),
		"suspended", suspended,
	)
}

// processGraceReminders warns owners whose grace window closes within the
// next 24 hours, once per window
func (s *Scheduler) processGraceReminders() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	acquired, err := s.LockDB.TryAcquireLock(ctx, "grace_reminder_job", s.instanceID, 10*time.Minute)
	if err != nil {
		zap.S().Errorw("failed to acquire lock for grace reminder job", "error", err)
		return
	}
	if !acquired {
		zap.S().Debug("Grace reminder job already running on another instance, skipping")
		return
	}
	defer s.LockDB.ReleaseLock(ctx, "grace_reminder_job", s.instanceID)

	now := time.Now()
	oneDayFromNow := now.Add(24 * time.Hour)

	filter := bson.M{
		"license.gracePeriod.isActive": true,
		"license.gracePeriod.expiresAt": bson.M{
			"$gt": primitive.NewDateTimeFromTime(now),
			"$lt": primitive.NewDateTimeFromTime(oneDayFromNow),
		},
		"license.gracePeriod.notifiedAt": nil, // Haven't sent reminder yet
	}
	licenses, err := s.LDB.Find(ctx, filter)
	if err != nil {
		zap.S().Errorw("failed to find licenses needing grace reminder", "error", err)
		return
	}

	for _, lic := range licenses {
		s.sendGraceReminder(ctx, lic)
	}

	zap.S().Infow("Grace reminder sweep complete", "remindersSent", len(licenses))
}

func (s *Scheduler) sendGraceReminder(ctx context.Context, lic models.License) {
	if lic.Details.OwnerEmail == "" {
		return
	}

	hoursLeft := int(time.Until(lic.Details.GracePeriod.ExpiresAt.Time()).Hours())
	daysLeft := hoursLeft / 24
	if daysLeft < 1 {
		daysLeft = 1
	}

	err := s.Notifier.Notify(lic.Details.OwnerEmail, notifications.TemplateGraceWarning, notifications.Context{
		RecipientName: lic.Details.OwnerName,
		LicenseCode:   lic.Details.Code,
		Reason:        lic.Details.GracePeriod.Reason,
		GraceDays:     daysLeft,
	})
	if err != nil {
		zap.S().Errorw("failed to send grace reminder", "license", lic.Details.Code, "error", err)
		return
	}

	// Mark as notified
	now := primitive.NewDateTimeFromTime(time.Now())
	err = s.LDB.UpdateOne(ctx, bson.M{"license.code": lic.Details.Code}, bson.M{
		"$set": bson.M{"license.gracePeriod.notifiedAt": now},
	})
	if err != nil {
		zap.S().Warnw("failed to mark grace reminder sent", "license", lic.Details.Code, "error", err)
	}

	zap.S().Infow("Sent grace period reminder", "license", lic.Details.Code)
}
