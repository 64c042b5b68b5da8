package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resources represents the 3-column stockpile model (integer units, numeric(15,0)).
type Resources struct {
	Wood  int64 `json:"wood"`
	Stone int64 `json:"stone"`
	Gold  int64 `json:"gold"`
}

// Player represents a players row.
type Player struct {
	ID uuid.UUID `json:"id"`
	Resources
	WorldID   string    `json:"world_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResourceDelta describes a server-side stockpile adjustment. Zero fields
// are skipped so partial updates touch only the columns they change.
type ResourceDelta struct {
	Wood  int64
	Stone int64
	Gold  int64
}

func (d ResourceDelta) HasWoodDelta() bool  { return d.Wood != 0 }
func (d ResourceDelta) HasStoneDelta() bool { return d.Stone != 0 }
func (d ResourceDelta) HasGoldDelta() bool  { return d.Gold != 0 }

// AuthUser holds credentials from auth_users.
type AuthUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
