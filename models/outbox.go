package models

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"gorm.io/gorm"
)

// Outbox publish statuses for OutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type EventType string

const (
	EventIngredientDefined      EventType = "ingredient.defined"
	EventFormulationAdded       EventType = "ingredient.formulation_added"
	EventIngredientLotAdmitted  EventType = "ingredient_lot.admitted"
	EventRecipePlanCreated      EventType = "recipe_plan.created"
	EventProductionBatchCreated EventType = "production_batch.recorded"
)

type AggregateType string

const (
	AggregateIngredient      AggregateType = "ingredient"
	AggregateIngredientBatch AggregateType = "ingredient_batch"
	AggregateRecipePlan      AggregateType = "recipe_plan"
	AggregateProductBatch    AggregateType = "product_batch"
)

// OutboxRecord is written in the same transaction as the change it describes and published
// after commit by the outbox dispatcher.
type OutboxRecord struct {
	ID               int           `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType        EventType     `gorm:"size:50;not null;index" json:"event_type"`
	AggregateType    AggregateType `gorm:"size:30;not null;index:idx_outbox_aggregate,priority:1" json:"aggregate_type"`
	AggregateId      string        `gorm:"size:100;not null;index:idx_outbox_aggregate,priority:2" json:"aggregate_id"`
	PrincipalId      string        `gorm:"size:20" json:"principal_id"`
	OccurredAt       time.Time     `gorm:"index;not null" json:"occurred_at"`
	Payload          []byte        `gorm:"type:blob" json:"payload"`
	PublishStatus    string        `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time    `gorm:"index" json:"published_at"`
	PubSubMessageId  *string       `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int           `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time    `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time    `gorm:"index" json:"locked_at"`
	LockedBy         *string       `gorm:"size:100" json:"locked_by"`
	LastPublishError *string       `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string        `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// PublishEvent stores an outbox row inside the caller's transaction. Nothing is sent to Pub/Sub here.
func PublishEvent(ctx context.Context, tx *gorm.DB, eventType EventType, aggregateType AggregateType, aggregateId string, occurredAt time.Time, obj interface{}) error {
	payload, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	record := OutboxRecord{
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateId:   aggregateId,
		PrincipalId:   principalFromContext(ctx),
		OccurredAt:    occurredAt,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func ConvertToEventMessage(record OutboxRecord) config.EventMessage {
	return config.EventMessage{
		ID:            record.ID,
		EventType:     string(record.EventType),
		AggregateType: string(record.AggregateType),
		AggregateId:   record.AggregateId,
		PrincipalId:   record.PrincipalId,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func principalFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := utils.GetManufacturerIdFromContext(ctx); ok {
		return v
	}
	if v, ok := utils.GetSupplierIdFromContext(ctx); ok {
		return "S" + strconv.Itoa(v)
	}
	return ""
}
