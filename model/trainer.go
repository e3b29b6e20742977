package model

import (
	"time"

	"gorm.io/datatypes"
)

// Trainer owns a roster and takes part in at most one unfinished battle.
type Trainer struct {
	ID              string    `gorm:"primaryKey;size:36"`
	AccountID       int64     `gorm:"index;not null"`
	Username        string    `gorm:"size:32;not null"`
	Emoji           string    `gorm:"size:16"`
	ActiveBrotmonID string    `gorm:"size:36"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// TrainerBrotmon is one roster member. Slot keeps creation order; the
// active member is referenced by Trainer.ActiveBrotmonID, never by slot.
type TrainerBrotmon struct {
	ID        string         `gorm:"primaryKey;size:36"`
	TrainerID string         `gorm:"index:idx_roster,priority:1;size:36;not null"`
	Slot      int            `gorm:"index:idx_roster,priority:2;not null"`
	BrotmonID string         `gorm:"size:64;not null"` // catalog species id
	CurrentHP int            `gorm:"not null"`
	Effects   datatypes.JSON `gorm:"not null"`
}

// BrotmonMove is a move instance with its own use counter.
type BrotmonMove struct {
	ID               string `gorm:"primaryKey;size:36"`
	TrainerBrotmonID string `gorm:"index:idx_member_moves,priority:1;size:36;not null"`
	Slot             int    `gorm:"index:idx_member_moves,priority:2;not null"`
	MoveID           string `gorm:"size:64;not null"` // catalog move id
	CurrentUses      int    `gorm:"not null"`
}
