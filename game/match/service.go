package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/resource"
	"go.uber.org/zap"
)

// Config tunes a Service.
type Config struct {
	MaxRoster int               // default 3
	NewRNG    func() battle.RNG // default battle.NewRNG
	TurnOrder battle.TurnOrder  // nil means battle.DefaultTurnOrder
}

// SubmitResult tells the caller what a submission did. Resolved is false
// when the action was only recorded and the opponent is still choosing.
type SubmitResult struct {
	Resolved bool     `json:"resolved"`
	Turn     int      `json:"turn"`
	Logs     []string `json:"logs,omitempty"`
	Finished bool     `json:"finished"`
	WinnerID string   `json:"winner_id,omitempty"`
	Draw     bool     `json:"draw,omitempty"`
}

// PendingCommit describes a computed turn that has not reached storage.
type PendingCommit struct {
	BattleID  string    `json:"battle_id"`
	Turn      int       `json:"turn"`
	Since     time.Time `json:"since"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
}

type pendingCommit struct {
	commit   *TurnCommit
	since    time.Time
	attempts int
	lastErr  error
}

// Service is the battle orchestrator: action intake, the lifecycle state
// machine and the compute/commit split around the turn engine. All
// battle state lives in the Repository; the only in-memory state is the
// set of computed turns whose commit failed.
type Service struct {
	repo    Repository
	catalog Catalog
	locker  Locker
	pub     Publisher
	cfg     Config
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingCommit // battle id →
}

// NewService wires a Service. A nil locker means a LocalLocker; a nil
// publisher disables events.
func NewService(repo Repository, catalog Catalog, locker Locker, pub Publisher, cfg Config, logger *zap.Logger) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.MaxRoster <= 0 {
		cfg.MaxRoster = 3
	}
	if cfg.NewRNG == nil {
		cfg.NewRNG = battle.NewRNG
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		locker:  locker,
		pub:     pub,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*pendingCommit),
	}
}

// ---- trainers ----

// CreateTrainer builds a roster from 1..MaxRoster species ids. Every
// member starts at max HP with each species move at max uses; the first
// member is active.
func (s *Service) CreateTrainer(ctx context.Context, accountID int64, username, emoji string, speciesIDs []string) (*Trainer, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidTeam)
	}
	if len(speciesIDs) == 0 || len(speciesIDs) > s.cfg.MaxRoster {
		return nil, fmt.Errorf("%w: roster needs 1 to %d brotmons", ErrInvalidTeam, s.cfg.MaxRoster)
	}

	t := &Trainer{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Username:  username,
		Emoji:     emoji,
		Roster:    make([]Member, 0, len(speciesIDs)),
	}
	for i, id := range speciesIDs {
		species := s.catalog.BrotmonByID(id)
		if species == nil {
			return nil, fmt.Errorf("%w: unknown brotmon %q", ErrInvalidTeam, id)
		}
		t.Roster = append(t.Roster, s.newMember(species, i))
	}
	t.ActiveID = t.Roster[0].ID

	if err := s.repo.InsertTrainer(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("trainer created",
		zap.String("trainer_id", t.ID),
		zap.Int64("account_id", accountID),
		zap.Int("roster", len(t.Roster)))
	return t, nil
}

func (s *Service) newMember(species *resource.Brotmon, slot int) Member {
	m := Member{
		ID:        uuid.NewString(),
		BrotmonID: species.ID,
		Slot:      slot,
		CurrentHP: species.MaxHP,
		Effects:   []resource.StatusEffect{},
		Moves:     make([]MemberMove, 0, len(species.Moves)),
	}
	for _, id := range species.Moves {
		m.Moves = append(m.Moves, MemberMove{
			ID:          uuid.NewString(),
			MoveID:      id,
			CurrentUses: s.catalog.MoveByID(id).MaxUses,
		})
	}
	return m
}

// AuthorizeTrainer loads a trainer and checks it belongs to accountID.
func (s *Service) AuthorizeTrainer(ctx context.Context, accountID int64, trainerID string) (*Trainer, error) {
	t, err := s.repo.GetTrainer(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	if t.AccountID != accountID {
		return nil, ErrNotOwner
	}
	return t, nil
}

// Trainers lists the trainers of an account.
func (s *Service) Trainers(ctx context.Context, accountID int64) ([]*Trainer, error) {
	return s.repo.ListTrainers(ctx, accountID)
}

// ---- lifecycle ----

// CreateBattle opens a WAITING battle hosted by hostID.
func (s *Service) CreateBattle(ctx context.Context, hostID string) (*Battle, error) {
	unlock, err := s.locker.Lock(ctx, trainerLockKey(hostID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	host, err := s.repo.GetTrainer(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFresh(ctx, host); err != nil {
		return nil, err
	}

	b := &Battle{ID: uuid.NewString(), State: StateWaiting, Host: host, Actions: map[string]PendingAction{}}
	if err := s.repo.InsertBattle(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("battle created", zap.String("battle_id", b.ID), zap.String("trainer_id", hostID))
	return b, nil
}

// JoinBattle seats guestID and moves WAITING → READY.
func (s *Service) JoinBattle(ctx context.Context, battleID, guestID string) (*Battle, error) {
	unlockBattle, err := s.locker.Lock(ctx, battleLockKey(battleID))
	if err != nil {
		return nil, err
	}
	defer unlockBattle()
	unlockTrainer, err := s.locker.Lock(ctx, trainerLockKey(guestID))
	if err != nil {
		return nil, err
	}
	defer unlockTrainer()

	b, err := s.repo.LoadBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if b.State != StateWaiting {
		return nil, fmt.Errorf("%w: battle is %s", ErrInvalidBattleState, b.State)
	}
	if b.Host.ID == guestID {
		return nil, fmt.Errorf("%w: cannot join your own battle", ErrInvalidBattleState)
	}
	guest, err := s.repo.GetTrainer(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureFresh(ctx, guest); err != nil {
		return nil, err
	}
	if err := s.repo.SetGuest(ctx, battleID, guestID); err != nil {
		return nil, err
	}

	b.Guest = guest
	b.State = StateReady
	s.logger.Info("battle joined", zap.String("battle_id", b.ID), zap.String("trainer_id", guestID))
	s.publish(ctx, Event{Type: EventJoined, BattleID: b.ID, State: b.State, TrainerID: guestID})
	return b, nil
}

// ensureFresh admits a trainer to its first and only battle. Roster state
// is never reset, so a trainer that has fought is spent.
func (s *Service) ensureFresh(ctx context.Context, t *Trainer) error {
	used, err := s.repo.TrainerHasBattle(ctx, t.ID)
	if err != nil {
		return err
	}
	if used {
		return ErrTrainerBusy
	}
	for _, m := range t.Roster {
		if m.CurrentHP > 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: no brotmon left to fight", ErrInvalidTeam)
}

// ---- intake ----

func validateAction(a battle.Action) error {
	switch a.Kind {
	case battle.ActionMove, battle.ActionSwitch:
		if a.TargetID == "" {
			return fmt.Errorf("%w: %s", ErrMissingActionTarget, a.Kind)
		}
	case battle.ActionForfeit, battle.ActionStart:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
	return nil
}

// validateTarget checks a target against the acting trainer's roster.
func validateTarget(t *Trainer, a battle.Action) error {
	switch a.Kind {
	case battle.ActionMove:
		if active := t.Active(); active != nil {
			for _, mv := range active.Moves {
				if mv.ID == a.TargetID {
					return nil
				}
			}
		}
		return fmt.Errorf("%w: %s is not a move of the active brotmon", ErrInvalidTarget, a.TargetID)
	case battle.ActionSwitch:
		m := t.Member(a.TargetID)
		switch {
		case m == nil:
			return fmt.Errorf("%w: %s is not on the roster", ErrInvalidTarget, a.TargetID)
		case m.ID == t.ActiveID:
			return fmt.Errorf("%w: %s is already active", ErrInvalidTarget, a.TargetID)
		case m.CurrentHP <= 0:
			return fmt.Errorf("%w: %s has fainted", ErrInvalidTarget, a.TargetID)
		}
	}
	return nil
}

// SubmitAction records a trainer's action. START and FORFEIT take effect
// at once. MOVE and SWITCH wait for the opponent; the submission that
// completes the pair resolves and commits the turn. Submissions for one
// battle are serialised by the battle lock, so a turn resolves once.
func (s *Service) SubmitAction(ctx context.Context, battleID, trainerID string, action battle.Action) (*SubmitResult, error) {
	if err := validateAction(action); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, battleLockKey(battleID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.flushPending(ctx, battleID); err != nil {
		return nil, err
	}

	b, err := s.repo.LoadBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	me := b.Participant(trainerID)
	if me == nil {
		return nil, ErrTrainerNotInBattle
	}

	switch action.Kind {
	case battle.ActionStart:
		return s.start(ctx, b, me)
	case battle.ActionForfeit:
		return s.forfeit(ctx, b, me)
	default:
		return s.record(ctx, b, me, action)
	}
}

func (s *Service) start(ctx context.Context, b *Battle, me *Trainer) (*SubmitResult, error) {
	if b.State != StateReady {
		return nil, fmt.Errorf("%w: battle is %s", ErrInvalidBattleState, b.State)
	}
	if me != b.Host {
		return nil, fmt.Errorf("%w: only the host can start", ErrInvalidBattleState)
	}
	if err := s.repo.StartBattle(ctx, b.ID); err != nil {
		return nil, err
	}
	s.logger.Info("battle started", zap.String("battle_id", b.ID))
	s.publish(ctx, Event{Type: EventStarted, BattleID: b.ID, State: StateBattling, Turn: 1})
	return &SubmitResult{Turn: 1}, nil
}

func (s *Service) forfeit(ctx context.Context, b *Battle, me *Trainer) (*SubmitResult, error) {
	if b.State != StateBattling {
		return nil, fmt.Errorf("%w: battle is %s", ErrInvalidBattleState, b.State)
	}
	winner := b.Opponent(me.ID)
	c := &TurnCommit{
		BattleID: b.ID,
		Turn:     b.Turn,
		Logs:     []string{fmt.Sprintf("%s forfeited. %s won!", me.Username, winner.Username)},
		Outcome:  &battle.Outcome{WinnerID: winner.ID},
	}
	return s.commit(ctx, c)
}

func (s *Service) record(ctx context.Context, b *Battle, me *Trainer, action battle.Action) (*SubmitResult, error) {
	if b.State != StateBattling {
		return nil, fmt.Errorf("%w: battle is %s", ErrInvalidBattleState, b.State)
	}
	if err := validateTarget(me, action); err != nil {
		return nil, err
	}

	pa := PendingAction{TrainerID: me.ID, Turn: b.Turn, Kind: action.Kind, TargetID: action.TargetID}
	if err := s.repo.SavePendingAction(ctx, b.ID, pa); err != nil {
		return nil, err
	}
	if b.Actions == nil {
		b.Actions = map[string]PendingAction{}
	}
	b.Actions[me.ID] = pa
	s.logger.Debug("action recorded",
		zap.String("battle_id", b.ID),
		zap.String("trainer_id", me.ID),
		zap.Int("turn", b.Turn),
		zap.String("action", string(action.Kind)))

	hostAct, hostOK := b.Actions[b.Host.ID]
	guestAct, guestOK := b.Actions[b.Guest.ID]
	if !hostOK || !guestOK {
		s.publish(ctx, Event{Type: EventAction, BattleID: b.ID, State: b.State, Turn: b.Turn, TrainerID: me.ID})
		return &SubmitResult{Turn: b.Turn}, nil
	}

	c, err := s.resolve(b, hostAct, guestAct)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, c)
}

// resolve computes a turn without touching storage.
func (s *Service) resolve(b *Battle, hostAct, guestAct PendingAction) (*TurnCommit, error) {
	hostSide, err := toSide(s.catalog, b.Host, hostAct)
	if err != nil {
		return nil, err
	}
	guestSide, err := toSide(s.catalog, b.Guest, guestAct)
	if err != nil {
		return nil, err
	}

	engine := battle.NewEngine(battle.Config{RNG: s.cfg.NewRNG(), TurnOrder: s.cfg.TurnOrder})
	res, err := engine.ResolveTurn(battle.TurnInput{Turn: b.Turn, Sides: [2]battle.Side{hostSide, guestSide}})
	if err != nil {
		return nil, fmt.Errorf("resolve turn %d of %s: %w", b.Turn, b.ID, err)
	}

	logs := res.Logs
	if res.Finished() {
		if res.Outcome.Draw {
			logs = append(logs, "It's a draw!")
		} else {
			logs = append(logs, b.Participant(res.Outcome.WinnerID).Username+" won!")
		}
	}
	return &TurnCommit{
		BattleID: b.ID,
		Turn:     b.Turn,
		Trainers: []TrainerState{fromSide(b.Host, res.Sides[0]), fromSide(b.Guest, res.Sides[1])},
		Logs:     logs,
		Advance:  !res.Finished(),
		Outcome:  res.Outcome,
	}, nil
}

// ---- commit ----

func (s *Service) commit(ctx context.Context, c *TurnCommit) (*SubmitResult, error) {
	if err := s.repo.CommitTurn(ctx, c); err != nil {
		if !errors.Is(err, ErrStaleTurn) {
			s.keepPending(c, err)
		}
		s.logger.Error("commit turn failed",
			zap.String("battle_id", c.BattleID),
			zap.Int("turn", c.Turn),
			zap.Error(err))
		return nil, fmt.Errorf("commit turn %d: %w", c.Turn, err)
	}
	s.committed(ctx, c)
	return &SubmitResult{
		Resolved: true,
		Turn:     c.Turn,
		Logs:     c.Logs,
		Finished: c.Finished(),
		WinnerID: winnerOf(c),
		Draw:     c.Finished() && c.Outcome.Draw,
	}, nil
}

func winnerOf(c *TurnCommit) string {
	if c.Outcome == nil {
		return ""
	}
	return c.Outcome.WinnerID
}

func (s *Service) committed(ctx context.Context, c *TurnCommit) {
	s.logger.Info("turn committed",
		zap.String("battle_id", c.BattleID),
		zap.Int("turn", c.Turn),
		zap.Int("logs", len(c.Logs)),
		zap.Bool("finished", c.Finished()))
	s.publish(ctx, commitEvent(c))
}

func (s *Service) keepPending(c *TurnCommit, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[c.BattleID]
	if !ok {
		p = &pendingCommit{commit: c, since: time.Now()}
		s.pending[c.BattleID] = p
	}
	p.attempts++
	p.lastErr = err
}

func (s *Service) dropPending(battleID string) {
	s.mu.Lock()
	delete(s.pending, battleID)
	s.mu.Unlock()
}

// flushPending retries a kept commit for the battle. The caller holds the
// battle lock.
func (s *Service) flushPending(ctx context.Context, battleID string) error {
	s.mu.Lock()
	p := s.pending[battleID]
	s.mu.Unlock()
	if p == nil {
		return nil
	}

	err := s.repo.CommitTurn(ctx, p.commit)
	switch {
	case err == nil:
		s.dropPending(battleID)
		s.committed(ctx, p.commit)
		return nil
	case errors.Is(err, ErrStaleTurn):
		// An earlier attempt reached storage after all.
		s.dropPending(battleID)
		return nil
	default:
		s.keepPending(p.commit, err)
		return fmt.Errorf("%w: turn %d: %w", ErrCommitPending, p.commit.Turn, err)
	}
}

// RetryPendingCommits retries every kept commit and returns how many
// reached storage.
func (s *Service) RetryPendingCommits(ctx context.Context) (int, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var (
		done int
		errs []error
	)
	for _, id := range ids {
		err := s.retryOne(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (s *Service) retryOne(ctx context.Context, battleID string) error {
	unlock, err := s.locker.Lock(ctx, battleLockKey(battleID))
	if err != nil {
		return err
	}
	defer unlock()
	return s.flushPending(ctx, battleID)
}

// PendingCommits lists the kept commits ordered by battle id.
func (s *Service) PendingCommits() []PendingCommit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingCommit, 0, len(s.pending))
	for id, p := range s.pending {
		pc := PendingCommit{BattleID: id, Turn: p.commit.Turn, Since: p.since, Attempts: p.attempts}
		if p.lastErr != nil {
			pc.LastError = p.lastErr.Error()
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BattleID < out[j].BattleID })
	return out
}

// ---- read models ----

// GetBattle returns the battle aggregate.
func (s *Service) GetBattle(ctx context.Context, battleID string) (*Battle, error) {
	return s.repo.LoadBattle(ctx, battleID)
}

// Logs returns every narrative line of a battle in turn order.
func (s *Service) Logs(ctx context.Context, battleID string) ([]LogLine, error) {
	if _, err := s.repo.LoadBattle(ctx, battleID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, battleID)
}
