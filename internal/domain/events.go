package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NewTransactionPostedEvent creates the standard resource event for a ledger entry.
func NewTransactionPostedEvent(tx *Transaction) OutboxDraft {
	payload, _ := json.Marshal(tx)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateResources,
		AggregateID:   tx.PlayerID.String(),
		EventType:     EventTransactionPosted,
		PartitionKey:  tx.PlayerID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewPlayerCreatedEvent creates a player lifecycle event.
func NewPlayerCreatedEvent(playerID uuid.UUID, email, worldID string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{
		"player_id": playerID.String(),
		"email":     email,
		"world_id":  worldID,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePlayer,
		AggregateID:   playerID.String(),
		EventType:     EventPlayerCreated,
		PartitionKey:  playerID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewDayAdvancedEvent creates the calendar day-change event.
func NewDayAdvancedEvent(worldID string, day int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"world_id": worldID,
		"day":      day,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateCalendar,
		AggregateID:   worldID,
		EventType:     EventDayAdvanced,
		PartitionKey:  worldID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewMiningReassignedEvent records a mid-cycle worker count change.
func NewMiningReassignedEvent(playerID uuid.UUID, oldTaskID, newTaskID string, workers int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"player_id":   playerID.String(),
		"old_task_id": oldTaskID,
		"new_task_id": newTaskID,
		"workers":     workers,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateMining,
		AggregateID:   newTaskID,
		EventType:     EventMiningReassigned,
		PartitionKey:  playerID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRecruitmentCompletedEvent creates the recruitment completion event.
func NewRecruitmentCompletedEvent(playerID uuid.UUID, taskID string, units int64) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"player_id": playerID.String(),
		"task_id":   taskID,
		"units":     units,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregatePlayer,
		AggregateID:   playerID.String(),
		EventType:     EventRecruitmentCompleted,
		PartitionKey:  playerID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRecruitmentRefreshedEvent announces a roster refresh to the world feed.
func NewRecruitmentRefreshedEvent(worldID string) OutboxDraft {
	payload, _ := json.Marshal(map[string]string{"world_id": worldID})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateCalendar,
		AggregateID:   worldID,
		EventType:     EventRecruitmentRefreshed,
		PartitionKey:  worldID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewMiningCompletedEvent creates the mining cycle completion event.
func NewMiningCompletedEvent(playerID uuid.UUID, taskID string, yield Resources) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"player_id": playerID.String(),
		"task_id":   taskID,
		"yield":     yield,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateMining,
		AggregateID:   taskID,
		EventType:     EventMiningCompleted,
		PartitionKey:  playerID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
