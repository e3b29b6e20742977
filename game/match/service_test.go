package match_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kasuganosora/brotmon/cache"
	"github.com/kasuganosora/brotmon/game/battle"
	"github.com/kasuganosora/brotmon/game/match"
	"github.com/kasuganosora/brotmon/resource"
	"github.com/kasuganosora/brotmon/store"
	"github.com/kasuganosora/brotmon/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixedRNG never crits, always hits and rolls the top of the variance
// range, so damage is deterministic.
type fixedRNG struct{}

func (fixedRNG) Float64() float64 { return 0.5 }
func (fixedRNG) Intn(n int) int   { return n - 1 }

// flakyRepo fails the next fail CommitTurn calls.
type flakyRepo struct {
	match.Repository
	mu   sync.Mutex
	fail int
}

var errUnavailable = errors.New("database is unavailable")

func (r *flakyRepo) CommitTurn(ctx context.Context, c *match.TurnCommit) error {
	r.mu.Lock()
	if r.fail > 0 {
		r.fail--
		r.mu.Unlock()
		return errUnavailable
	}
	r.mu.Unlock()
	return r.Repository.CommitTurn(ctx, c)
}

func (r *flakyRepo) failNext(n int) {
	r.mu.Lock()
	r.fail = n
	r.mu.Unlock()
}

type fixture struct {
	svc  *match.Service
	repo *flakyRepo
	pub  cache.PubSub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := resource.NewLoader("")
	require.NoError(t, cat.Load())
	_, pub := testutil.SetupTestCache(t)
	repo := &flakyRepo{Repository: store.New(testutil.SetupTestDB(t))}
	svc := match.NewService(repo, cat, nil, pub, match.Config{
		NewRNG: func() battle.RNG { return fixedRNG{} },
	}, zap.NewNop())
	return &fixture{svc: svc, repo: repo, pub: pub}
}

func (f *fixture) trainer(t *testing.T, account int64, name string, species ...string) *match.Trainer {
	t.Helper()
	tr, err := f.svc.CreateTrainer(context.Background(), account, name, "🧠", species)
	require.NoError(t, err)
	return tr
}

// battling returns a started battle: Ash (burbaloni, then glorbo) hosts
// Gary (glorbo).
func (f *fixture) battling(t *testing.T) (*match.Battle, *match.Trainer, *match.Trainer) {
	t.Helper()
	ctx := context.Background()
	host := f.trainer(t, 1, "Ash", "burbaloni-loliloni", "glorbo")
	guest := f.trainer(t, 2, "Gary", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, b.ID, guest.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	require.NoError(t, err)
	return b, host, guest
}

func tackle(t *testing.T, tr *match.Trainer) battle.Action {
	t.Helper()
	for _, mv := range tr.Active().Moves {
		if mv.MoveID == "tackle" {
			return battle.Action{Kind: battle.ActionMove, TargetID: mv.ID}
		}
	}
	t.Fatalf("%s has no tackle", tr.Username)
	return battle.Action{}
}

// ---- trainers ----

func TestCreateTrainer(t *testing.T) {
	f := newFixture(t)
	tr := f.trainer(t, 1, "  Ash ", "burbaloni-loliloni", "glorbo")

	assert.Equal(t, "Ash", tr.Username)
	require.Len(t, tr.Roster, 2)
	assert.Equal(t, tr.Roster[0].ID, tr.ActiveID)
	assert.Equal(t, 92, tr.Roster[0].CurrentHP)
	assert.Equal(t, 120, tr.Roster[1].CurrentHP)
	require.Len(t, tr.Roster[0].Moves, 4)
	assert.Equal(t, "tackle", tr.Roster[0].Moves[0].MoveID)
	assert.Equal(t, 25, tr.Roster[0].Moves[0].CurrentUses)

	list, err := f.svc.Trainers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tr.ID, list[0].ID)
}

func TestCreateTrainer_InvalidTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name     string
		username string
		species  []string
	}{
		{"empty roster", "Ash", nil},
		{"too many", "Ash", []string{"glorbo", "glorbo", "glorbo", "glorbo"}},
		{"unknown species", "Ash", []string{"pikachu"}},
		{"blank username", "   ", []string{"glorbo"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTrainer(ctx, 1, tc.username, "", tc.species)
			assert.ErrorIs(t, err, match.ErrInvalidTeam)
		})
	}
}

func TestAuthorizeTrainer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr := f.trainer(t, 1, "Ash", "glorbo")

	got, err := f.svc.AuthorizeTrainer(ctx, 1, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.ID, got.ID)

	_, err = f.svc.AuthorizeTrainer(ctx, 2, tr.ID)
	assert.ErrorIs(t, err, match.ErrNotOwner)
	_, err = f.svc.AuthorizeTrainer(ctx, 1, "missing")
	assert.ErrorIs(t, err, match.ErrTrainerNotFound)
}

// ---- lifecycle ----

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.trainer(t, 1, "Ash", "glorbo")
	guest := f.trainer(t, 2, "Gary", "glorbo")

	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StateWaiting, b.State)

	_, err = f.svc.CreateBattle(ctx, host.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy)
	_, err = f.svc.JoinBattle(ctx, b.ID, host.ID)
	assert.ErrorIs(t, err, match.ErrInvalidBattleState)

	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	assert.ErrorIs(t, err, match.ErrInvalidBattleState, "cannot start without a guest")

	joined, err := f.svc.JoinBattle(ctx, b.ID, guest.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StateReady, joined.State)

	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, battle.Action{Kind: battle.ActionStart})
	assert.ErrorIs(t, err, match.ErrInvalidBattleState, "only the host starts")

	res, err := f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turn)
	assert.False(t, res.Resolved)

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StateBattling, got.State)
	assert.Equal(t, 1, got.Turn)

	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	assert.ErrorIs(t, err, match.ErrInvalidBattleState)
}

func TestJoinBattle_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.JoinBattle(ctx, "missing", "anyone")
	assert.ErrorIs(t, err, match.ErrBattleNotFound)

	b, host, _ := f.battling(t)
	third := f.trainer(t, 3, "Misty", "glorbo")
	_, err = f.svc.JoinBattle(ctx, b.ID, third.ID)
	assert.ErrorIs(t, err, match.ErrInvalidBattleState)

	// The host is busy with b and cannot join another battle.
	other, err := f.svc.CreateBattle(ctx, third.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, other.ID, host.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy)
}

// ---- intake ----

func TestSubmitAction_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)
	outsider := f.trainer(t, 3, "Misty", "glorbo")

	cases := []struct {
		name    string
		trainer string
		action  battle.Action
		want    error
	}{
		{"unknown kind", host.ID, battle.Action{Kind: "DANCE"}, match.ErrUnknownAction},
		{"move without target", host.ID, battle.Action{Kind: battle.ActionMove}, match.ErrMissingActionTarget},
		{"switch without target", host.ID, battle.Action{Kind: battle.ActionSwitch}, match.ErrMissingActionTarget},
		{"outsider", outsider.ID, tackle(t, outsider), match.ErrTrainerNotInBattle},
		{"opponent's move", host.ID, tackle(t, guest), match.ErrInvalidTarget},
		{"bench member's move", host.ID, battle.Action{Kind: battle.ActionMove, TargetID: host.Roster[1].Moves[0].ID}, match.ErrInvalidTarget},
		{"switch to active", host.ID, battle.Action{Kind: battle.ActionSwitch, TargetID: host.ActiveID}, match.ErrInvalidTarget},
		{"switch off roster", host.ID, battle.Action{Kind: battle.ActionSwitch, TargetID: guest.ActiveID}, match.ErrInvalidTarget},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitAction(ctx, b.ID, tc.trainer, tc.action)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.SubmitAction(ctx, "missing", host.ID, tackle(t, host))
	assert.ErrorIs(t, err, match.ErrBattleNotFound)
}

func TestSubmitAction_ResolvesWhenBothActed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	first, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	assert.False(t, first.Resolved)
	assert.Equal(t, 1, first.Turn)

	second, err := f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.NoError(t, err)
	assert.True(t, second.Resolved)
	assert.False(t, second.Finished)
	assert.Equal(t, []string{
		"Burbaloni Loliloni used Tackle on Glorbo and dealt 5 damage!",
		"Glorbo used Tackle on Burbaloni Loliloni and dealt 5 damage!",
	}, second.Logs)

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Turn)
	assert.Empty(t, got.Actions)
	assert.Equal(t, 87, got.Host.Active().CurrentHP)
	assert.Equal(t, 115, got.Guest.Active().CurrentHP)
	assert.Equal(t, 24, got.Host.Active().Moves[0].CurrentUses)

	logs, err := f.svc.Logs(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 1, logs[0].Turn)
}

func TestSubmitAction_LaterActionReplacesEarlier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionSwitch, TargetID: host.Roster[1].ID})
	require.NoError(t, err)

	res, err := f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.NoError(t, err)
	require.True(t, res.Resolved)
	require.NotEmpty(t, res.Logs)
	assert.Equal(t, "Ash switched to Glorbo!", res.Logs[0])
	assert.Len(t, res.Logs, 2, "the replaced tackle never runs")

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, host.Roster[1].ID, got.Host.ActiveID)
	assert.Equal(t, 92, got.Host.Roster[0].CurrentHP)
}

func TestForfeit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	res, err := f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionForfeit})
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.True(t, res.Finished)
	assert.Equal(t, guest.ID, res.WinnerID)
	assert.Equal(t, []string{"Ash forfeited. Gary won!"}, res.Logs)

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StateFinished, got.State)
	assert.Equal(t, 1, got.Turn, "forfeit does not advance the turn")
	assert.NotNil(t, got.FinishedAt)

	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	assert.ErrorIs(t, err, match.ErrInvalidBattleState)

	// A trainer fights only once.
	_, err = f.svc.CreateBattle(ctx, host.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy)
}

func TestForfeit_BeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.trainer(t, 1, "Ash", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionForfeit})
	assert.ErrorIs(t, err, match.ErrInvalidBattleState)
}

func TestBattle_PlayedToTheEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.trainer(t, 1, "Ash", "burbaloni-loliloni")
	guest := f.trainer(t, 2, "Gary", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, b.ID, guest.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	require.NoError(t, err)

	var last *match.SubmitResult
	for turn := 1; turn <= 25; turn++ {
		_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
		require.NoError(t, err)
		last, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
		require.NoError(t, err)
		require.True(t, last.Resolved)
		if last.Finished {
			break
		}
	}
	require.True(t, last.Finished)

	// Burbaloni (92 HP) takes 5 a turn and falls on turn 19.
	assert.Equal(t, 19, last.Turn)
	assert.Equal(t, guest.ID, last.WinnerID)
	assert.False(t, last.Draw)
	n := len(last.Logs)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, "Burbaloni Loliloni fainted!", last.Logs[n-2])
	assert.Equal(t, "Gary won!", last.Logs[n-1])

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StateFinished, got.State)
	assert.Equal(t, guest.ID, got.WinnerID)
	assert.Equal(t, 19, got.Turn)
}

func TestFinishedTrainersCannotFightAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	host := f.trainer(t, 1, "Ash", "burbaloni-loliloni")
	guest := f.trainer(t, 2, "Gary", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, b.ID, guest.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	require.NoError(t, err)
	finished := false
	for turn := 1; turn <= 25 && !finished; turn++ {
		_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
		require.NoError(t, err)
		res, err := f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
		require.NoError(t, err)
		finished = res.Finished
	}
	require.True(t, finished)

	loser, err := f.svc.AuthorizeTrainer(ctx, 1, host.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loser.Roster[0].CurrentHP)

	_, err = f.svc.CreateBattle(ctx, host.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy, "loser")
	_, err = f.svc.CreateBattle(ctx, guest.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy, "winner")

	fresh := f.trainer(t, 3, "Misty", "glorbo")
	other, err := f.svc.CreateBattle(ctx, fresh.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, other.ID, host.ID)
	assert.ErrorIs(t, err, match.ErrTrainerBusy)
}

func TestCreateBattle_RejectsFaintedRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spent := &match.Trainer{
		ID: "spent", AccountID: 1, Username: "Brock", ActiveID: "spent-m0",
		Roster: []match.Member{{
			ID: "spent-m0", BrotmonID: "glorbo", CurrentHP: 0,
			Effects: []resource.StatusEffect{},
			Moves:   []match.MemberMove{{ID: "spent-m0-tackle", MoveID: "tackle", CurrentUses: 25}},
		}},
	}
	require.NoError(t, f.repo.InsertTrainer(ctx, spent))

	_, err := f.svc.CreateBattle(ctx, spent.ID)
	assert.ErrorIs(t, err, match.ErrInvalidTeam)

	host := f.trainer(t, 2, "Gary", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinBattle(ctx, b.ID, spent.ID)
	assert.ErrorIs(t, err, match.ErrInvalidTeam)
}

func TestSubmitAction_ConcurrentPairResolvesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	var (
		wg      sync.WaitGroup
		results [2]*match.SubmitResult
		errs    [2]error
	)
	for i, tr := range []*match.Trainer{host, guest} {
		wg.Add(1)
		go func(i int, tr *match.Trainer, a battle.Action) {
			defer wg.Done()
			results[i], errs[i] = f.svc.SubmitAction(ctx, b.ID, tr.ID, a)
		}(i, tr, tackle(t, tr))
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, results[0].Resolved, results[1].Resolved, "exactly one submission resolves the turn")

	logs, err := f.svc.Logs(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

// ---- commit retry ----

func TestCommitFailure_KeptAndRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	f.repo.failNext(1)
	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.ErrorIs(t, err, errUnavailable)

	pending := f.svc.PendingCommits()
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].BattleID)
	assert.Equal(t, 1, pending[0].Turn)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, errUnavailable.Error(), pending[0].LastError)

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Turn, "nothing reached storage")

	done, err := f.svc.RetryPendingCommits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Empty(t, f.svc.PendingCommits())

	got, err = f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Turn)
	assert.Equal(t, 87, got.Host.Active().CurrentHP)
}

func TestCommitFailure_StaleCopyDroppedAfterOtherInstanceCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	cat := resource.NewLoader("")
	require.NoError(t, cat.Load())
	other := match.NewService(f.repo.Repository, cat, nil, f.pub, match.Config{
		NewRNG: func() battle.RNG { return fixedRNG{} },
	}, zap.NewNop())

	_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	f.repo.failNext(1)
	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.ErrorIs(t, err, errUnavailable)
	require.Len(t, f.svc.PendingCommits(), 1)

	// The other instance sees both recorded actions and recomputes turn 1.
	res, err := other.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	assert.True(t, res.Resolved)
	assert.Equal(t, 1, res.Turn)

	_, err = f.svc.RetryPendingCommits(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.svc.PendingCommits())

	got, err := f.svc.GetBattle(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Turn)
	logs, err := f.svc.Logs(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2, "turn 1 is stored once")
}

func TestCommitFailure_BlocksUntilFlushed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, host, guest := f.battling(t)

	_, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	f.repo.failNext(2)
	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.Error(t, err)

	// The kept commit fails again, so new actions are turned away.
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	assert.ErrorIs(t, err, match.ErrCommitPending)
	assert.Equal(t, 2, f.svc.PendingCommits()[0].Attempts)

	// Storage is back: the kept turn lands first, then the action opens turn 2.
	res, err := f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	assert.False(t, res.Resolved)
	assert.Equal(t, 2, res.Turn)
	assert.Empty(t, f.svc.PendingCommits())

	logs, err := f.svc.Logs(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRetryPendingCommits_Nothing(t *testing.T) {
	f := newFixture(t)
	done, err := f.svc.RetryPendingCommits(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)
}

// ---- events ----

func TestEvents_Published(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := f.trainer(t, 1, "Ash", "burbaloni-loliloni")
	guest := f.trainer(t, 2, "Gary", "glorbo")
	b, err := f.svc.CreateBattle(ctx, host.ID)
	require.NoError(t, err)

	msgs, unsubscribe, err := f.pub.Subscribe(ctx, match.EventChannel(b.ID))
	require.NoError(t, err)
	defer unsubscribe()

	_, err = f.svc.JoinBattle(ctx, b.ID, guest.ID)
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, battle.Action{Kind: battle.ActionStart})
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, host.ID, tackle(t, host))
	require.NoError(t, err)
	_, err = f.svc.SubmitAction(ctx, b.ID, guest.ID, tackle(t, guest))
	require.NoError(t, err)

	var types []string
	for len(types) < 4 {
		select {
		case m := <-msgs:
			var ev match.Event
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &ev))
			assert.Equal(t, b.ID, ev.BattleID)
			types = append(types, ev.Type)
			if ev.Type == match.EventTurn {
				assert.Len(t, ev.Logs, 2)
				assert.Equal(t, 1, ev.Turn)
			}
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", types)
		}
	}
	assert.Equal(t, []string{match.EventJoined, match.EventStarted, match.EventAction, match.EventTurn}, types)
}
