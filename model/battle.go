package model

import "time"

// Battle is the persisted state machine row.
type Battle struct {
	ID         string `gorm:"primaryKey;size:36"`
	HostID     string `gorm:"index;size:36;not null"`
	GuestID    string `gorm:"index;size:36"`
	State      string `gorm:"index;size:16;not null"`
	Turn       int    `gorm:"not null;default:0"`
	WinnerID   string `gorm:"size:36"`
	Draw       bool
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
	FinishedAt *time.Time
}

// BattleAction is a trainer's pending action for the battle's current
// turn. At most one row per trainer per battle; resolving a turn deletes
// both.
type BattleAction struct {
	BattleID  string    `gorm:"primaryKey;size:36"`
	TrainerID string    `gorm:"primaryKey;size:36"`
	Turn      int       `gorm:"not null"`
	Kind      string    `gorm:"size:16;not null"`
	TargetID  string    `gorm:"size:36"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BattleLog is one narrative line. Seq orders lines within a turn.
type BattleLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	BattleID  string    `gorm:"index:idx_battle_log,priority:1;size:36;not null"`
	Turn      int       `gorm:"index:idx_battle_log,priority:2;not null"`
	Seq       int       `gorm:"index:idx_battle_log,priority:3;not null"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
