package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

func TestPublishEventRecordsPrincipalAndCorrelation(t *testing.T) {
	db := openTestDB(t)
	ctx := utils.SetManufacturerIdInContext(context.Background(), "MFG001")
	ctx = utils.SetCorrelationIdInContext(ctx, "corr-7")
	occurred := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, models.PublishEvent(ctx, db, models.EventProductionBatchCreated, models.AggregateProductBatch, "100-MFG001-B1", occurred, map[string]int{"units": 200}))

	status, err := models.GetOutboxStatus(context.Background(), db, models.AggregateProductBatch, "100-MFG001-B1")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPublishStatusPending, status.PublishStatus)
	assert.Equal(t, models.EventProductionBatchCreated, status.EventType)

	var rec models.OutboxRecord
	require.NoError(t, db.First(&rec, status.RecordId).Error)
	assert.Equal(t, "MFG001", rec.PrincipalId)
	assert.Equal(t, "corr-7", rec.CorrelationId)
	assert.JSONEq(t, `{"units":200}`, string(rec.Payload))

	msg := models.ConvertToEventMessage(rec)
	assert.Equal(t, "production_batch.recorded", msg.EventType)
	assert.Equal(t, "100-MFG001-B1", msg.AggregateId)

	supplierCtx := utils.SetSupplierIdInContext(context.Background(), 20)
	require.NoError(t, models.PublishEvent(supplierCtx, db, models.EventIngredientLotAdmitted, models.AggregateIngredientBatch, "1-20-A", occurred, nil))
	require.NoError(t, db.Where("aggregate_id = ?", "1-20-A").First(&rec).Error)
	assert.Equal(t, "S20", rec.PrincipalId)
	assert.NotEmpty(t, rec.CorrelationId)
}

func TestReprocessOutbox(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	occurred := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"1-20-A", "1-20-B", "1-20-C"} {
		require.NoError(t, models.PublishEvent(ctx, db, models.EventIngredientLotAdmitted, models.AggregateIngredientBatch, id, occurred, nil))
	}
	msg := "pubsub unavailable"
	require.NoError(t, db.Model(&models.OutboxRecord{}).Where("aggregate_id IN ?", []string{"1-20-A", "1-20-B"}).Updates(map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusDead,
		"publish_attempts":   20,
		"last_publish_error": &msg,
	}).Error)

	counts, err := models.CountOutboxByStatus(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{models.OutboxPublishStatusDead: 2, models.OutboxPublishStatusPending: 1}, counts)

	status, err := models.ReprocessOutbox(ctx, db, models.AggregateIngredientBatch, "1-20-A")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPublishStatusPending, status.PublishStatus)
	assert.Equal(t, 0, status.PublishAttempts)
	assert.Nil(t, status.LastPublishError)

	_, err = models.ReprocessOutbox(ctx, db, models.AggregateIngredientBatch, "1-20-C")
	require.True(t, utils.IsRecordNotFound(err))

	n, err := models.RequeueDeadOutbox(ctx, db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	counts, err = models.CountOutboxByStatus(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{models.OutboxPublishStatusPending: 3}, counts)
}
