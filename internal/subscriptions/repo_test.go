package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
	pstripe "github.com/angelmondragon/phoenix-backend/pkg/stripe"
)

func setupSubscriptionsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.ClientSubscription{}))
	return conn
}

func TestCreateAndFindByExternalID(t *testing.T) {
	repo := NewRepository(setupSubscriptionsTestDB(t))
	ctx := context.Background()

	sub, err := BuildFromProvider(uuid.New(), "growth", &pstripe.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: "trialing"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, sub))

	found, err := repo.FindByExternalID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.SubscriptionStatusTrialing, found.Status)
	assert.Equal(t, "cus_1", found.ExternalCustomerID)

	dup, _ := BuildFromProvider(uuid.New(), "growth", &pstripe.Subscription{ID: "sub_1", Status: "active"})
	err = repo.Create(ctx, dup)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	missing, err := repo.FindByExternalID(ctx, "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSaveOverwritesState(t *testing.T) {
	repo := NewRepository(setupSubscriptionsTestDB(t))
	ctx := context.Background()

	sub, _ := BuildFromProvider(uuid.New(), "growth", &pstripe.Subscription{ID: "sub_2", Status: "active"})
	require.NoError(t, repo.Create(ctx, sub))

	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	known := ApplyProviderState(sub, ProviderState{Status: "unpaid", CurrentPeriodEnd: &end, CancelAtPeriodEnd: true})
	require.True(t, known)
	require.NoError(t, repo.Save(ctx, sub))

	found, err := repo.FindByExternalID(ctx, "sub_2")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, found.Status)
	assert.True(t, found.CancelAtPeriodEnd)
	require.NotNil(t, found.CurrentPeriodEnd)
	assert.True(t, found.CurrentPeriodEnd.Equal(end))
}

func TestBuildFromProviderMapsInitialStatus(t *testing.T) {
	sub, err := BuildFromProvider(uuid.New(), "p", &pstripe.Subscription{ID: "sub_3", Status: "incomplete"})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)

	_, err = BuildFromProvider(uuid.Nil, "p", &pstripe.Subscription{ID: "sub_3"})
	assert.Error(t, err)
}

func TestMarkCancelledAndRefreshPeriod(t *testing.T) {
	sub := &models.ClientSubscription{Status: enums.SubscriptionStatusPastDue}
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	RefreshPeriod(sub, &start, &end)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, end, *sub.CurrentPeriodEnd)

	at := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	MarkCancelled(sub, at)
	assert.Equal(t, enums.SubscriptionStatusCancelled, sub.Status)
	assert.Equal(t, at, *sub.CancelledAt)
}
