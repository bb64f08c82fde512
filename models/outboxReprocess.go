package models

import (
	"context"

	"gorm.io/gorm"
)

var requeueableStatuses = []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}

func requeueUpdates() map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     OutboxPublishStatusPending,
		"publish_attempts":   0,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
		"last_publish_error": nil,
	}
}

// ReprocessOutbox puts the aggregate's FAILED or DEAD records back in the dispatch queue.
func ReprocessOutbox(ctx context.Context, db *gorm.DB, aggregateType AggregateType, aggregateId string) (*OutboxStatus, error) {
	res := db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("aggregate_type = ? AND aggregate_id = ? AND publish_status IN ?", aggregateType, aggregateId, requeueableStatuses).
		Updates(requeueUpdates())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetOutboxStatus(ctx, db, aggregateType, aggregateId)
}

// RequeueDeadOutbox resets every DEAD record to PENDING and returns how many were reset.
func RequeueDeadOutbox(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Where("publish_status = ?", OutboxPublishStatusDead).
		Updates(requeueUpdates())
	return res.RowsAffected, res.Error
}
