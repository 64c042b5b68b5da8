package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorldEventType enumerates all world feed event types.
type WorldEventType string

const (
	EventPlayerCreated        WorldEventType = "world.player.created"
	EventDayAdvanced          WorldEventType = "world.calendar.day_advanced"
	EventMiningCompleted      WorldEventType = "world.mining.completed"
	EventMiningReassigned     WorldEventType = "world.mining.reassigned"
	EventRecruitmentCompleted WorldEventType = "world.recruitment.completed"
	EventRecruitmentRefreshed WorldEventType = "world.recruitment.refreshed"
	EventTransactionPosted    WorldEventType = "world.resources.transaction.posted"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePlayer    AggregateType = "player"
	AggregateCalendar  AggregateType = "calendar"
	AggregateMining    AggregateType = "mining"
	AggregateResources AggregateType = "resources"
)

// OutboxDraft is the payload written to the world_event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     WorldEventType  `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRow is an outbox entry as read back by the poller, including the
// sequence id used for publish ordering and acknowledgement.
type OutboxRow struct {
	SeqID int64 `json:"seqId"`
	OutboxDraft
}
