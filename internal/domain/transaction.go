package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates all resource ledger entry types.
type TransactionType string

const (
	TxMiningYield         TransactionType = "mining_yield"
	TxRecruitmentCost     TransactionType = "recruitment_cost"
	TxBuildingCost        TransactionType = "building_cost"
	TxCalendarUpkeep      TransactionType = "calendar_upkeep"
	TxAdminAdjustment     TransactionType = "admin_adjustment"
	TxStartingAllocation  TransactionType = "starting_allocation"
)

// Transaction represents a resource_transactions row (append-only ledger entry).
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	PlayerID        uuid.UUID       `json:"player_id"`
	Type            TransactionType `json:"type"`
	Wood            int64           `json:"wood"`
	Stone           int64           `json:"stone"`
	Gold            int64           `json:"gold"`
	WoodAfter       int64           `json:"wood_after"`
	StoneAfter      int64           `json:"stone_after"`
	GoldAfter       int64           `json:"gold_after"`
	SourceEventID   *string         `json:"source_event_id,omitempty"`
	Metadata        json.RawMessage `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
}
