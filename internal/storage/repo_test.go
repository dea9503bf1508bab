package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
)

const base = 5 * bytesPerGB

func setupStorageTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.StorageQuota{}))
	return conn
}

func TestIncreaseCreatesLazilyThenAdds(t *testing.T) {
	repo := NewRepository(setupStorageTestDB(t))
	ctx := context.Background()
	client := uuid.New()

	quota, err := repo.Increase(ctx, client, GBToBytes(10), base)
	require.NoError(t, err)
	assert.Equal(t, base+GBToBytes(10), quota.StorageLimitBytes)

	quota, err = repo.Increase(ctx, client, GBToBytes(5), base)
	require.NoError(t, err)
	assert.Equal(t, base+GBToBytes(15), quota.StorageLimitBytes)
}

func TestDecreaseNeverDropsBelowBase(t *testing.T) {
	repo := NewRepository(setupStorageTestDB(t))
	ctx := context.Background()
	client := uuid.New()

	_, err := repo.Increase(ctx, client, GBToBytes(10), base)
	require.NoError(t, err)

	steps := []int64{4, 50, 10, 1}
	for _, gb := range steps {
		quota, err := repo.Decrease(ctx, client, GBToBytes(gb), base)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, quota.StorageLimitBytes, base)
	}

	quota, err := repo.FindByClientID(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, base, quota.StorageLimitBytes)
}

func TestDecreaseWithoutQuotaIsNoop(t *testing.T) {
	repo := NewRepository(setupStorageTestDB(t))
	quota, err := repo.Decrease(context.Background(), uuid.New(), GBToBytes(10), base)
	require.NoError(t, err)
	assert.Nil(t, quota)
}
