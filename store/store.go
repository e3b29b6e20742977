// Package store persists trainers and battles through gorm.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	"github.com/kasuganosora/brotmon/model"
	"github.com/kasuganosora/brotmon/resource"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ match.Repository = (*Store)(nil)

// Store implements match.Repository. Every multi-row write runs inside
// one transaction and only touches the database through tx: the SQLite
// pool holds a single connection.
type Store struct {
	db *gorm.DB
}

// New creates a Store on an already migrated database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ---- trainers ----

func (s *Store) InsertTrainer(ctx context.Context, t *match.Trainer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := model.Trainer{
			ID:              t.ID,
			AccountID:       t.AccountID,
			Username:        t.Username,
			Emoji:           t.Emoji,
			ActiveBrotmonID: t.ActiveID,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert trainer: %w", err)
		}
		t.CreatedAt = row.CreatedAt

		for _, m := range t.Roster {
			effects, err := encodeEffects(m.Effects)
			if err != nil {
				return err
			}
			member := model.TrainerBrotmon{
				ID:        m.ID,
				TrainerID: t.ID,
				Slot:      m.Slot,
				BrotmonID: m.BrotmonID,
				CurrentHP: m.CurrentHP,
				Effects:   effects,
			}
			if err := tx.Create(&member).Error; err != nil {
				return fmt.Errorf("insert roster member: %w", err)
			}
			if len(m.Moves) == 0 {
				continue
			}
			moves := make([]model.BrotmonMove, len(m.Moves))
			for i, mv := range m.Moves {
				moves[i] = model.BrotmonMove{
					ID:               mv.ID,
					TrainerBrotmonID: m.ID,
					Slot:             i,
					MoveID:           mv.MoveID,
					CurrentUses:      mv.CurrentUses,
				}
			}
			if err := tx.Create(&moves).Error; err != nil {
				return fmt.Errorf("insert member moves: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) GetTrainer(ctx context.Context, id string) (*match.Trainer, error) {
	return loadTrainer(s.db.WithContext(ctx), id)
}

func loadTrainer(db *gorm.DB, id string) (*match.Trainer, error) {
	var row model.Trainer
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, match.ErrTrainerNotFound
		}
		return nil, fmt.Errorf("load trainer: %w", err)
	}

	var members []model.TrainerBrotmon
	if err := db.Where("trainer_id = ?", id).Order("slot").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	var moves []model.BrotmonMove
	if len(ids) > 0 {
		if err := db.Where("trainer_brotmon_id IN ?", ids).Order("slot").Find(&moves).Error; err != nil {
			return nil, fmt.Errorf("load moves: %w", err)
		}
	}
	byMember := make(map[string][]match.MemberMove, len(members))
	for _, mv := range moves {
		byMember[mv.TrainerBrotmonID] = append(byMember[mv.TrainerBrotmonID], match.MemberMove{
			ID:          mv.ID,
			MoveID:      mv.MoveID,
			CurrentUses: mv.CurrentUses,
		})
	}

	t := &match.Trainer{
		ID:        row.ID,
		AccountID: row.AccountID,
		Username:  row.Username,
		Emoji:     row.Emoji,
		ActiveID:  row.ActiveBrotmonID,
		Roster:    make([]match.Member, 0, len(members)),
		CreatedAt: row.CreatedAt,
	}
	for _, m := range members {
		effects, err := decodeEffects(m.Effects)
		if err != nil {
			return nil, fmt.Errorf("roster member %s: %w", m.ID, err)
		}
		t.Roster = append(t.Roster, match.Member{
			ID:        m.ID,
			BrotmonID: m.BrotmonID,
			Slot:      m.Slot,
			CurrentHP: m.CurrentHP,
			Effects:   effects,
			Moves:     byMember[m.ID],
		})
	}
	return t, nil
}

// ListTrainers returns an account's trainers, oldest first.
func (s *Store) ListTrainers(ctx context.Context, accountID int64) ([]*match.Trainer, error) {
	db := s.db.WithContext(ctx)
	var rows []model.Trainer
	if err := db.Where("account_id = ?", accountID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trainers: %w", err)
	}
	out := make([]*match.Trainer, 0, len(rows))
	for _, r := range rows {
		t, err := loadTrainer(db, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) TrainerHasBattle(ctx context.Context, trainerID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Battle{}).
		Where("host_id = ? OR guest_id = ?", trainerID, trainerID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check trainer battles: %w", err)
	}
	return n > 0, nil
}

// ---- battles ----

func (s *Store) InsertBattle(ctx context.Context, b *match.Battle) error {
	row := model.Battle{
		ID:     b.ID,
		HostID: b.Host.ID,
		State:  string(match.StateWaiting),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert battle: %w", err)
	}
	b.State = match.StateWaiting
	b.CreatedAt = row.CreatedAt
	b.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *Store) LoadBattle(ctx context.Context, id string) (*match.Battle, error) {
	db := s.db.WithContext(ctx)
	var row model.Battle
	if err := db.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, match.ErrBattleNotFound
		}
		return nil, fmt.Errorf("load battle: %w", err)
	}

	b := &match.Battle{
		ID:         row.ID,
		State:      match.State(row.State),
		Turn:       row.Turn,
		WinnerID:   row.WinnerID,
		Draw:       row.Draw,
		Actions:    map[string]match.PendingAction{},
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		FinishedAt: row.FinishedAt,
	}
	var err error
	if b.Host, err = loadTrainer(db, row.HostID); err != nil {
		return nil, fmt.Errorf("battle host: %w", err)
	}
	if row.GuestID != "" {
		if b.Guest, err = loadTrainer(db, row.GuestID); err != nil {
			return nil, fmt.Errorf("battle guest: %w", err)
		}
	}

	var actions []model.BattleAction
	if err := db.Where("battle_id = ? AND turn = ?", id, row.Turn).Find(&actions).Error; err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	for _, a := range actions {
		b.Actions[a.TrainerID] = match.PendingAction{
			TrainerID: a.TrainerID,
			Turn:      a.Turn,
			Kind:      battle.ActionKind(a.Kind),
			TargetID:  a.TargetID,
		}
	}
	return b, nil
}

// transition applies updates only when the battle is in state from.
func (s *Store) transition(ctx context.Context, battleID string, from match.State, updates map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Battle{}).
			Where("id = ? AND state = ?", battleID, string(from)).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update battle: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
		var n int64
		if err := tx.Model(&model.Battle{}).Where("id = ?", battleID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return match.ErrBattleNotFound
		}
		return fmt.Errorf("%w: battle is not %s", match.ErrInvalidBattleState, from)
	})
}

func (s *Store) SetGuest(ctx context.Context, battleID, guestID string) error {
	return s.transition(ctx, battleID, match.StateWaiting, map[string]any{
		"guest_id": guestID,
		"state":    string(match.StateReady),
	})
}

func (s *Store) StartBattle(ctx context.Context, battleID string) error {
	return s.transition(ctx, battleID, match.StateReady, map[string]any{
		"state": string(match.StateBattling),
		"turn":  1,
	})
}

func (s *Store) SavePendingAction(ctx context.Context, battleID string, a match.PendingAction) error {
	row := model.BattleAction{
		BattleID:  battleID,
		TrainerID: a.TrainerID,
		Turn:      a.Turn,
		Kind:      string(a.Kind),
		TargetID:  a.TargetID,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "battle_id"}, {Name: "trainer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"turn", "kind", "target_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save action: %w", err)
	}
	return nil
}

func (s *Store) CommitTurn(ctx context.Context, c *match.TurnCommit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{}
		if c.Advance {
			updates["turn"] = c.Turn + 1
		}
		if c.Finished() {
			now := time.Now()
			updates["state"] = string(match.StateFinished)
			updates["winner_id"] = c.Outcome.WinnerID
			updates["draw"] = c.Outcome.Draw
			updates["finished_at"] = &now
		}
		if len(updates) == 0 {
			updates["turn"] = c.Turn
		}
		res := tx.Model(&model.Battle{}).
			Where("id = ? AND state = ? AND turn = ?", c.BattleID, string(match.StateBattling), c.Turn).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update battle: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return match.ErrStaleTurn
		}

		for _, st := range c.Trainers {
			if err := writeTrainerState(tx, st); err != nil {
				return err
			}
		}

		if err := tx.Where("battle_id = ?", c.BattleID).Delete(&model.BattleAction{}).Error; err != nil {
			return fmt.Errorf("clear actions: %w", err)
		}
		return appendLogs(tx, c.BattleID, c.Turn, c.Logs)
	})
}

func writeTrainerState(tx *gorm.DB, st match.TrainerState) error {
	if err := tx.Model(&model.Trainer{}).Where("id = ?", st.TrainerID).
		Update("active_brotmon_id", st.ActiveID).Error; err != nil {
		return fmt.Errorf("update active member: %w", err)
	}
	for _, m := range st.Roster {
		effects, err := encodeEffects(m.Effects)
		if err != nil {
			return err
		}
		if err := tx.Model(&model.TrainerBrotmon{}).Where("id = ?", m.ID).
			Updates(map[string]any{"current_hp": m.CurrentHP, "effects": effects}).Error; err != nil {
			return fmt.Errorf("update roster member: %w", err)
		}
		for _, mv := range m.Moves {
			if err := tx.Model(&model.BrotmonMove{}).Where("id = ?", mv.ID).
				Update("current_uses", mv.CurrentUses).Error; err != nil {
				return fmt.Errorf("update move uses: %w", err)
			}
		}
	}
	return nil
}

// appendLogs continues the turn's sequence after lines already stored.
func appendLogs(tx *gorm.DB, battleID string, turn int, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	var base int64
	if err := tx.Model(&model.BattleLog{}).
		Where("battle_id = ? AND turn = ?", battleID, turn).
		Count(&base).Error; err != nil {
		return fmt.Errorf("count logs: %w", err)
	}
	rows := make([]model.BattleLog, len(lines))
	for i, msg := range lines {
		rows[i] = model.BattleLog{BattleID: battleID, Turn: turn, Seq: int(base) + i, Message: msg}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert logs: %w", err)
	}
	return nil
}

func (s *Store) ListLogs(ctx context.Context, battleID string) ([]match.LogLine, error) {
	var rows []model.BattleLog
	if err := s.db.WithContext(ctx).
		Where("battle_id = ?", battleID).
		Order("turn, seq").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	out := make([]match.LogLine, len(rows))
	for i, r := range rows {
		out[i] = match.LogLine{Turn: r.Turn, Seq: r.Seq, Message: r.Message}
	}
	return out, nil
}

func encodeEffects(effects []resource.StatusEffect) ([]byte, error) {
	if effects == nil {
		effects = []resource.StatusEffect{}
	}
	data, err := json.Marshal(effects)
	if err != nil {
		return nil, fmt.Errorf("encode effects: %w", err)
	}
	return data, nil
}

func decodeEffects(data []byte) ([]resource.StatusEffect, error) {
	out := []resource.StatusEffect{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode effects: %w", err)
	}
	return out, nil
}
