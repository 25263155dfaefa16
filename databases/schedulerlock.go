package databases

// go generate: mockery --name SchedulerLockDatabase

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const schedulerLockName = "schedulerLocks"

// SchedulerLockDatabase provides a mongo-backed distributed job lock so that
// periodic jobs run on exactly one instance when multiple pods are deployed
type SchedulerLockDatabase interface {
	TryAcquireLock(ctx context.Context, jobName, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, jobName, instanceID string) error
}

type schedulerLockDatabase struct {
	db DatabaseHelper
}

// NewSchedulerLockDatabase initializes a new instance of scheduler lock database with the provided db connection
func NewSchedulerLockDatabase(db DatabaseHelper) SchedulerLockDatabase {
	return &schedulerLockDatabase{
		db: db,
	}
}

// TryAcquireLock upserts the lock document if it is absent or its ttl has
// lapsed. A duplicate-key error means another instance holds a live lock.
func (s *schedulerLockDatabase) TryAcquireLock(ctx context.Context, jobName, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"_id": jobName,
		"$or": []bson.M{
			{"expiresAt": bson.M{"$lt": primitive.NewDateTimeFromTime(now)}},
			{"holder": instanceID},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"holder":     instanceID,
			"acquiredAt": primitive.NewDateTimeFromTime(now),
			"expiresAt":  primitive.NewDateTimeFromTime(now.Add(ttl)),
		},
	}
	res, err := s.db.Collection(schedulerLockName).UpdateOne(ctx, filter, update)
	if err == nil && (res.ModifiedCount > 0 || res.UpsertedCount > 0 || res.MatchedCount > 0) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	// No live lock matched; try to create one. Losing the insert race to
	// another instance shows up as a duplicate key, not an error.
	_, err = s.db.Collection(schedulerLockName).InsertOne(ctx, bson.M{
		"_id":        jobName,
		"holder":     instanceID,
		"acquiredAt": primitive.NewDateTimeFromTime(now),
		"expiresAt":  primitive.NewDateTimeFromTime(now.Add(ttl)),
	})
	if err != nil {
		if IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *schedulerLockDatabase) ReleaseLock(ctx context.Context, jobName, instanceID string) error {
	return s.db.Collection(schedulerLockName).DeleteOne(ctx, bson.M{"_id": jobName, "holder": instanceID})
}
