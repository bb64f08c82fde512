package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type OutboxStatus struct {
	RecordId         int           `json:"record_id"`
	EventType        EventType     `json:"event_type"`
	AggregateType    AggregateType `json:"aggregate_type"`
	AggregateId      string        `json:"aggregate_id"`
	PublishStatus    string        `json:"publish_status"`
	PublishAttempts  int           `json:"publish_attempts"`
	NextAttemptAt    *time.Time    `json:"next_attempt_at"`
	LastPublishError *string       `json:"last_publish_error"`
	CreatedAt        time.Time     `json:"created_at"`
	PublishedAt      *time.Time    `json:"published_at"`
}

func toOutboxStatus(rec OutboxRecord) *OutboxStatus {
	return &OutboxStatus{
		RecordId:         rec.ID,
		EventType:        rec.EventType,
		AggregateType:    rec.AggregateType,
		AggregateId:      rec.AggregateId,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}
}

// GetOutboxStatus returns the newest outbox record for the aggregate.
func GetOutboxStatus(ctx context.Context, db *gorm.DB, aggregateType AggregateType, aggregateId string) (*OutboxStatus, error) {
	var rec OutboxRecord
	if err := db.WithContext(ctx).
		Where("aggregate_type = ? AND aggregate_id = ?", aggregateType, aggregateId).
		Order("id DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}
	return toOutboxStatus(rec), nil
}

// CountOutboxByStatus returns the number of records per publish status.
func CountOutboxByStatus(ctx context.Context, db *gorm.DB) (map[string]int64, error) {
	var rows []struct {
		PublishStatus string
		Total         int64
	}
	if err := db.WithContext(ctx).
		Model(&OutboxRecord{}).
		Select("publish_status, COUNT(*) AS total").
		Group("publish_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.PublishStatus] = r.Total
	}
	return counts, nil
}
