package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/audit"
	"github.com/radieske/draw-settlement/internal/settlement/bet"
	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/engine"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/memstore"
	"github.com/radieske/draw-settlement/internal/settlement/recorder"
	"github.com/radieske/draw-settlement/internal/settlement/round"
	"github.com/radieske/draw-settlement/pkg/contracts/events"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, round.IST)

const resultKey = "kalyan_2024-03-10_1"

type fixture struct {
	st     *memstore.Store
	wallet *memstore.Wallet
	rec    *recorder.Recorder
	p      *Pipeline
}

func newFixture(opts Options) *fixture {
	log := zap.NewNop()
	st := memstore.New()
	wallet := memstore.NewWallet()
	rec := recorder.New(log, st)
	if opts.Now == nil {
		opts.Now = func() time.Time { return now }
	}
	p := New(log,
		audit.NewWriter(log, st, st, st, st),
		rec,
		engine.New(log, st, bet.DefaultRates(), 2),
		ledger.NewUpdater(log, wallet, st),
		opts,
	)
	return &fixture{st: st, wallet: wallet, rec: rec, p: p}
}

func (f *fixture) seedBets() {
	juri := domain.Bet{ID: "b3", GameID: "kalyan", RoundNumber: 1, BettorID: "bob", Type: bet.TypeJuri, Combination: "3-5", Amount: decimal.NewFromInt(5)}
	f.st.AddBets(
		domain.Bet{ID: "b1", GameID: "kalyan", RoundNumber: 1, BettorID: "alice", Type: bet.TypeSingle, Number: "5", Amount: decimal.NewFromInt(10)},
		domain.Bet{ID: "b2", GameID: "kalyan", RoundNumber: 1, BettorID: "alice", Type: bet.TypePatti, Number: "125", Amount: decimal.NewFromInt(1)},
		juri,
		domain.Bet{ID: "b4", GameID: "kalyan", RoundNumber: 1, BettorID: "carol", Type: bet.TypeSingle, Number: "1", Amount: decimal.NewFromInt(10)},
		domain.Bet{ID: "other", GameID: "kalyan", RoundNumber: 2, BettorID: "carol", Type: bet.TypeSingle, Number: "5", Amount: decimal.NewFromInt(10)},
	)
}

func submission(result string) Submission {
	return Submission{GameID: "kalyan", RoundNumber: 1, Result: result}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestRun_HappyPath(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()

	out := f.p.Run(context.Background(), submission("125"))

	require.True(t, out.Success, out.Error)
	assert.Equal(t, resultKey, out.Key)
	assert.Equal(t, StageCompleted, out.Stage)
	assert.Equal(t, []Stage{
		StageNotStarted, StageBackingUp, StageRecordingPending, StageSettling,
		StageCrediting, StageRecordingCompleted, StageVerifying, StageCompleted,
	}, out.Trail)
	assert.Equal(t, 4, out.Processed)
	assert.Equal(t, 2, out.Credits.Applied)
	assert.True(t, out.Credits.Complete())

	// alice: single 10*9 + patti 1*90; bob: juri 5*9
	assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
	assert.True(t, dec(45).Equal(f.wallet.Balance("bob")))
	assert.True(t, f.wallet.Balance("carol").IsZero())
	assert.Equal(t, domain.BetPending, f.st.Bet("other").Status, "other rounds untouched")

	rr, found, err := f.rec.Get(context.Background(), round.NewKey("kalyan", 1, now))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ResultCompleted, rr.Status)
	assert.Equal(t, "125", rr.Result)
	assert.Equal(t, 1, rr.AttemptCount)
	assert.Len(t, f.st.Backups(), 1)
}

func TestRun_BackupFailureIsFullNoop(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	f.st.FailSaveBackup = errors.New("backup bucket unavailable")

	out := f.p.Run(context.Background(), submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindBackup, out.Kind)
	assert.Equal(t, StageBackingUp, out.Stage)
	assert.Contains(t, out.Error, "backup bucket unavailable")
	assert.Equal(t, 0, f.st.ResultCount())
	for _, id := range []string{"b1", "b2", "b3", "b4"} {
		assert.Equal(t, domain.BetPending, f.st.Bet(id).Status)
	}
	assert.Equal(t, 0, f.wallet.Calls())

	rec, ok := f.st.ErrorRecord(resultKey)
	require.True(t, ok, "failure is audited")
	assert.Equal(t, string(StageBackingUp), rec.Stage)
}

func TestRun_TwiceIsIdempotent(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	ctx := context.Background()
	key := round.NewKey("kalyan", 1, now)

	first := f.p.Run(ctx, submission("125"))
	require.True(t, first.Success)
	rr1, _, err := f.rec.Get(ctx, key)
	require.NoError(t, err)

	second := f.p.Run(ctx, submission("125"))
	require.True(t, second.Success, second.Error)
	rr2, _, err := f.rec.Get(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, rr1, rr2)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Credits.Applied)
	assert.Contains(t, second.Message, "already settled")
	assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
	assert.True(t, dec(45).Equal(f.wallet.Balance("bob")))
}

func TestRun_CompletedRoundRejectsDifferentResult(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	ctx := context.Background()

	require.True(t, f.p.Run(ctx, submission("125")).Success)
	out := f.p.Run(ctx, submission("126"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindConflict, out.Kind)
	rr, _, err := f.rec.Get(ctx, round.NewKey("kalyan", 1, now))
	require.NoError(t, err)
	assert.Equal(t, "125", rr.Result)
	assert.Equal(t, domain.ResultCompleted, rr.Status)
}

func TestRun_PartialCreditThenReconcile(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	f.wallet.Fail["alice"] = errors.New("wallet 503")
	ctx := context.Background()

	out := f.p.Run(ctx, submission("125"))
	require.True(t, out.Success)
	assert.Equal(t, 1, out.Credits.Applied)
	assert.Equal(t, 1, out.Credits.Failed)
	assert.Contains(t, out.Message, "await reconciliation")
	assert.True(t, dec(45).Equal(f.wallet.Balance("bob")))
	assert.Nil(t, f.st.Bet("b1").CreditedAt)

	delete(f.wallet.Fail, "alice")
	out = f.p.Run(ctx, submission("125"))
	require.True(t, out.Success)
	assert.Equal(t, 1, out.Credits.Applied)
	assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
	assert.True(t, dec(45).Equal(f.wallet.Balance("bob")))
}

func TestRun_CreditMarkerFailureNeverPaysTwice(t *testing.T) {
	alice := func(id string) domain.Bet {
		return domain.Bet{ID: id, GameID: "kalyan", RoundNumber: 1, BettorID: "alice", Type: bet.TypeSingle, Number: "5", Amount: dec(10)}
	}

	t.Run("same day retry with a new winner", func(t *testing.T) {
		f := newFixture(Options{})
		f.st.AddBets(alice("a"))
		ctx := context.Background()

		f.st.FailMarkCredited = errors.New("connection reset")
		out := f.p.Run(ctx, submission("125"))
		require.True(t, out.Success, out.Error)
		assert.Equal(t, 1, out.Credits.Failed)
		assert.False(t, out.Credits.Complete())
		assert.Contains(t, out.Message, "await reconciliation")
		assert.True(t, dec(90).Equal(f.wallet.Balance("alice")))

		f.st.FailMarkCredited = nil
		f.st.AddBets(alice("c"))
		out = f.p.Run(ctx, submission("125"))
		require.True(t, out.Success, out.Error)
		assert.True(t, out.Credits.Complete())
		assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
		assert.NotNil(t, f.st.Bet("a").CreditedAt)
		assert.NotNil(t, f.st.Bet("c").CreditedAt)
	})

	t.Run("next day run of the same round number", func(t *testing.T) {
		clock := now
		f := newFixture(Options{Now: func() time.Time { return clock }})
		f.st.AddBets(alice("a"))
		ctx := context.Background()

		f.st.FailMarkCredited = errors.New("connection reset")
		require.True(t, f.p.Run(ctx, submission("125")).Success)
		f.st.FailMarkCredited = nil

		clock = now.Add(24 * time.Hour)
		f.st.AddBets(alice("c"))
		out := f.p.Run(ctx, submission("125"))
		require.True(t, out.Success, out.Error)
		assert.Equal(t, "kalyan_2024-03-11_1", out.Key)
		assert.Equal(t, 1, out.Credits.Applied)
		assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
		assert.Nil(t, f.st.Bet("a").CreditedAt, "belongs to the previous day's key")

		// reconciliação do dia anterior só fecha o marcador
		clock = now
		out = f.p.Run(ctx, submission("125"))
		require.True(t, out.Success, out.Error)
		assert.True(t, dec(180).Equal(f.wallet.Balance("alice")))
		assert.NotNil(t, f.st.Bet("a").CreditedAt)
	})
}

func TestRun_SubmittedAtDatesTheKey(t *testing.T) {
	f := newFixture(Options{Now: func() time.Time { return now.Add(24 * time.Hour) }})
	f.seedBets()

	sub := submission("125")
	sub.SubmittedAt = time.Date(2024, 3, 10, 23, 59, 0, 0, round.IST)
	out := f.p.Run(context.Background(), sub)

	require.True(t, out.Success, out.Error)
	assert.Equal(t, resultKey, out.Key)
	assert.Equal(t, resultKey, f.st.Bet("b1").ResultID)
}

func TestRun_ResultWriteFailure(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	f.st.FailSavePending = errors.New("conn refused")

	out := f.p.Run(context.Background(), submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindResultWrite, out.Kind)
	assert.Equal(t, StageRecordingPending, out.Stage)
	assert.Equal(t, domain.BetPending, f.st.Bet("b1").Status)
	assert.Equal(t, 0, f.wallet.Calls())
}

func TestRun_SettleFailureMarksFailedAndRetryCompletes(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	f.st.FailApply = errors.New("batch write aborted")
	ctx := context.Background()
	key := round.NewKey("kalyan", 1, now)

	out := f.p.Run(ctx, submission("125"))
	assert.False(t, out.Success)
	assert.Equal(t, StageSettling, out.Stage)
	assert.Equal(t, StageFailed, out.Trail[len(out.Trail)-1])

	rr, _, err := f.rec.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, rr.Status)
	assert.Contains(t, rr.ErrorMessage, "batch write aborted")
	assert.Equal(t, "125", rr.Result)

	f.st.FailApply = nil
	out = f.p.Run(ctx, submission("125"))
	require.True(t, out.Success, out.Error)

	rr, _, err = f.rec.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultCompleted, rr.Status)
	assert.Equal(t, 2, rr.AttemptCount)
}

func TestRun_VerificationFailure(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	f.st.OverrideResult = "999"

	out := f.p.Run(context.Background(), submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindVerification, out.Kind)
	assert.Equal(t, StageVerifying, out.Stage)
}

func TestRun_HistoryFailureIsAdvisory(t *testing.T) {
	f := newFixture(Options{})
	f.st.FailHistory = errors.New("history table locked")

	out := f.p.Run(context.Background(), submission("125"))

	assert.True(t, out.Success, out.Error)
	assert.Empty(t, f.st.History())
}

func TestRun_InvalidInputWritesNothing(t *testing.T) {
	f := newFixture(Options{})

	for _, sub := range []Submission{
		{GameID: "", RoundNumber: 1, Result: "125"},
		{GameID: "kalyan", RoundNumber: 0, Result: "125"},
		{GameID: "kalyan", RoundNumber: 1, Result: "12x"},
	} {
		out := f.p.Run(context.Background(), sub)
		assert.False(t, out.Success)
		assert.Equal(t, domain.KindInvalidInput, out.Kind)
	}
	assert.Equal(t, 0, f.st.ResultCount())
	assert.Empty(t, f.st.Backups())
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := f.p.Run(ctx, submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindCancelled, out.Kind)
	assert.Empty(t, f.st.Backups())
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type brokenLock struct{}

func (brokenLock) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis down")
}

func TestRun_LockHeldReturnsInProgress(t *testing.T) {
	f := newFixture(Options{Locker: heldLock{}})

	out := f.p.Run(context.Background(), submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindInProgress, out.Kind)
	assert.Equal(t, 0, f.st.ResultCount())
}

func TestRun_LockErrorDoesNotBlock(t *testing.T) {
	f := newFixture(Options{Locker: brokenLock{}})

	out := f.p.Run(context.Background(), submission("125"))

	assert.True(t, out.Success, out.Error)
}

type slowSettler struct{}

func (slowSettler) Settle(ctx context.Context, _ round.Key, _ round.Result) (engine.Report, error) {
	<-ctx.Done()
	return engine.Report{}, ctx.Err()
}

func TestRun_TimeoutTransitionsToFailed(t *testing.T) {
	log := zap.NewNop()
	st := memstore.New()
	rec := recorder.New(log, st)
	p := New(log, audit.NewWriter(log, st, st, st, st), rec, slowSettler{},
		ledger.NewUpdater(log, memstore.NewWallet(), st),
		Options{Timeout: 20 * time.Millisecond, Now: func() time.Time { return now }})

	out := p.Run(context.Background(), submission("125"))

	assert.False(t, out.Success)
	assert.Equal(t, domain.KindTimeout, out.Kind)
	assert.Equal(t, StageSettling, out.Stage)

	rr, _, err := rec.Get(context.Background(), round.NewKey("kalyan", 1, now))
	require.NoError(t, err)
	assert.Equal(t, domain.ResultFailed, rr.Status, "marked failed despite expired deadline")
}

func TestRun_CallerCancelAfterStartIsIgnored(t *testing.T) {
	f := newFixture(Options{})
	f.seedBets()
	ctx, cancel := context.WithCancel(context.Background())
	f.st.OnApply = func() { cancel() }

	out := f.p.Run(ctx, submission("125"))

	assert.True(t, out.Success, out.Error)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.RoundSettled
}

func (n *recordingNotifier) PublishRoundSettled(_ context.Context, e events.RoundSettled) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type recordingObserver struct {
	runs   []Outcome
	failed []Stage
}

func (o *recordingObserver) RunFinished(out Outcome) { o.runs = append(o.runs, out) }
func (o *recordingObserver) StageFailed(stage Stage, _ domain.Kind) {
	o.failed = append(o.failed, stage)
}

func TestRun_NotifiesAndObserves(t *testing.T) {
	n := &recordingNotifier{}
	obs := &recordingObserver{}
	f := newFixture(Options{Notify: n, Observe: obs})
	f.seedBets()

	require.True(t, f.p.Run(context.Background(), submission("125")).Success)
	f.st.FailSaveBackup = errors.New("x")
	require.False(t, f.p.Run(context.Background(), submission("125")).Success)

	require.Len(t, n.events, 1)
	assert.Equal(t, resultKey, n.events[0].ResultID)
	assert.Equal(t, 4, n.events[0].BetsProcessed)
	assert.Equal(t, "225", n.events[0].Credited)
	assert.Len(t, obs.runs, 2)
	assert.Equal(t, []Stage{StageBackingUp}, obs.failed)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StageNotStarted, StageBackingUp))
	assert.True(t, CanTransition(StageSettling, StageFailed))
	assert.False(t, CanTransition(StageSettling, StageBackingUp))
	assert.False(t, CanTransition(StageCompleted, StageFailed))
	assert.False(t, CanTransition(StageFailed, StageBackingUp))
	assert.False(t, CanTransition(StageBackingUp, StageSettling))
}
