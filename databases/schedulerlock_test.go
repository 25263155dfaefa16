package databases_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/classkeep/license-api/databases"
	"github.com/classkeep/license-api/databases/mocks"
)

func TestTryAcquireLock_RefreshesHeldLock(t *testing.T) {
	conn := &mocks.CollectionHelper{}
	db := &mocks.DatabaseHelper{}

	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil)
	db.On("Collection", "schedulerLocks").Return(conn)

	lockDB := databases.NewSchedulerLockDatabase(db)
	acquired, err := lockDB.TryAcquireLock(context.Background(), "lapsed_license_job", "web.1", 10*time.Minute)

	assert.NoError(t, err)
	assert.True(t, acquired)
	conn.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestTryAcquireLock_CreatesFreshLock(t *testing.T) {
	conn := &mocks.CollectionHelper{}
	db := &mocks.DatabaseHelper{}

	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)
	db.On("Collection", "schedulerLocks").Return(conn)

	lockDB := databases.NewSchedulerLockDatabase(db)
	acquired, err := lockDB.TryAcquireLock(context.Background(), "lapsed_license_job", "web.1", 10*time.Minute)

	assert.NoError(t, err)
	assert.True(t, acquired)
}

func TestTryAcquireLock_LostInsertRace(t *testing.T) {
	conn := &mocks.CollectionHelper{}
	db := &mocks.DatabaseHelper{}

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
	conn.On("UpdateOne", mock.Anything, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{}, nil)
	conn.On("InsertOne", mock.Anything, mock.Anything).Return(nil, dup)
	db.On("Collection", "schedulerLocks").Return(conn)

	lockDB := databases.NewSchedulerLockDatabase(db)
	acquired, err := lockDB.TryAcquireLock(context.Background(), "lapsed_license_job", "web.2", 10*time.Minute)

	assert.NoError(t, err)
	assert.False(t, acquired)
}

func TestReleaseLock(t *testing.T) {
	conn := &mocks.CollectionHelper{}
	db := &mocks.DatabaseHelper{}

	conn.On("DeleteOne", mock.Anything, mock.Anything).Return(nil)
	db.On("Collection", "schedulerLocks").Return(conn)

	lockDB := databases.NewSchedulerLockDatabase(db)
	assert.NoError(t, lockDB.ReleaseLock(context.Background(), "lapsed_license_job", "web.1"))
}
