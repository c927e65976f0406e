package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/engine"
	"github.com/radieske/draw-settlement/internal/settlement/ledger"
	"github.com/radieske/draw-settlement/internal/settlement/round"
	"github.com/radieske/draw-settlement/pkg/contracts/events"
)

// Submission é o que o admin (HTTP, Kafka ou CLI) envia.
type Submission struct {
	GameID      string
	RoundNumber int
	Result      string
	// SubmittedAt data a chave quando a submissão passou por fila;
	// zero usa o relógio do pipeline.
	SubmittedAt time.Time
}

// Outcome é sempre devolvido ao chamador; o pipeline nunca propaga erro nem panic.
type Outcome struct {
	Success   bool
	Message   string
	Error     string
	Kind      domain.Kind
	Key       string
	Stage     Stage // estágio final, ou o que falhou
	Trail     []Stage
	Processed int
	Skipped   int
	Credits   ledger.CreditReport
	Duration  time.Duration
}

type Auditor interface {
	Snapshot(ctx context.Context, key round.Key) error
	LogFailure(ctx context.Context, key round.Key, stage string, cause error)
}

type Recorder interface {
	Get(ctx context.Context, key round.Key) (domain.RoundResult, bool, error)
	WritePending(ctx context.Context, key round.Key, result round.Result) (domain.RoundResult, error)
	MarkCompleted(ctx context.Context, key round.Key) error
	MarkFailed(ctx context.Context, key round.Key, cause error) error
	Verify(ctx context.Context, key round.Key, expected round.Result) (bool, error)
}

type Settler interface {
	Settle(ctx context.Context, key round.Key, result round.Result) (engine.Report, error)
}

type Crediter interface {
	Reconcile(ctx context.Context, key round.Key) (ledger.CreditReport, error)
}

// Locker é otimização: evita execuções simultâneas do mesmo round,
// mas a corretude não depende dele.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

type Notifier interface {
	PublishRoundSettled(ctx context.Context, e events.RoundSettled) error
}

// Observer recebe callbacks de métricas.
type Observer interface {
	RunFinished(o Outcome)
	StageFailed(stage Stage, kind domain.Kind)
}

type Options struct {
	Timeout time.Duration
	LockTTL time.Duration
	Locker  Locker
	Notify  Notifier
	Observe Observer
	Now     func() time.Time
}

// Pipeline orquestra backup → resultado pending → liquidação → crédito →
// resultado completed → verificação. A consistência vem da idempotência de
// cada etapa, não de uma transação única.
type Pipeline struct {
	log      *zap.Logger
	audit    Auditor
	recorder Recorder
	settler  Settler
	crediter Crediter
	opts     Options
}

const (
	defaultTimeout = 30 * time.Second
	defaultLockTTL = 2 * time.Minute
	failureTimeout = 5 * time.Second
)

func New(log *zap.Logger, audit Auditor, rec Recorder, settler Settler, crediter Crediter, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{log: log, audit: audit, recorder: rec, settler: settler, crediter: crediter, opts: opts}
}

// run carrega o estado de uma execução.
type run struct {
	key           round.Key
	result        round.Result
	state         *tracker
	settledBefore bool // round já completed com o mesmo resultado: só reconcilia
	pendingWrite  bool // houve tentativa de gravar pending
	out           Outcome
}

// Run executa uma tentativa. Repetir com a mesma entrada é seguro.
func (p *Pipeline) Run(ctx context.Context, sub Submission) (out Outcome) {
	start := p.opts.Now()
	r := &run{state: newTracker()}

	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("settlement pipeline panicked", zap.Any("panic", rec), zap.String("key", r.key.String()))
			out = p.fail(ctx, r, r.state.current, domain.KindResultWrite, fmt.Errorf("panic: %v", rec))
		}
		out.Trail = r.state.trail
		out.Duration = p.opts.Now().Sub(start)
		if p.opts.Observe != nil {
			p.opts.Observe.RunFinished(out)
		}
	}()

	res, err := validate(sub)
	if err != nil {
		return Outcome{Error: err.Error(), Kind: domain.KindInvalidInput, Stage: StageNotStarted}
	}
	keyTime := start
	if !sub.SubmittedAt.IsZero() {
		keyTime = sub.SubmittedAt
	}
	r.key = round.NewKey(sub.GameID, sub.RoundNumber, keyTime)
	r.result = res
	r.out.Key = r.key.String()

	log := p.log.With(zap.String("key", r.key.String()), zap.String("result", res.String()))

	// cancelamento só é respeitado antes do backup
	if err := ctx.Err(); err != nil {
		log.Warn("settlement cancelled before start", zap.Error(err))
		return Outcome{Key: r.key.String(), Error: err.Error(), Kind: domain.KindCancelled, Stage: StageNotStarted}
	}

	if p.opts.Locker != nil {
		release, ok, lerr := p.opts.Locker.Acquire(ctx, r.key.String(), p.opts.LockTTL)
		switch {
		case lerr != nil:
			log.Warn("settlement lock unavailable; proceeding", zap.Error(lerr))
		case !ok:
			log.Info("settlement already running for round")
			return Outcome{Key: r.key.String(), Error: domain.ErrInProgress.Error(), Kind: domain.KindInProgress, Stage: StageNotStarted}
		default:
			defer release()
		}
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
	defer cancel()

	log.Info("starting result update")
	steps := []struct {
		stage Stage
		kind  domain.Kind
		fn    func(context.Context, *run) error
	}{
		{StageBackingUp, domain.KindBackup, p.backup},
		{StageRecordingPending, domain.KindResultWrite, p.recordPending},
		{StageSettling, domain.KindResultWrite, p.settle},
		{StageCrediting, domain.KindCredit, p.credit},
		{StageRecordingCompleted, domain.KindResultWrite, p.recordCompleted},
		{StageVerifying, domain.KindVerification, p.verify},
	}
	for _, s := range steps {
		if err := runCtx.Err(); err != nil {
			r.state.advance(s.stage)
			return p.fail(ctx, r, s.stage, domain.KindTimeout, fmt.Errorf("deadline before %s: %w", s.stage, err))
		}
		r.state.advance(s.stage)
		if err := s.fn(runCtx, r); err != nil {
			kind := s.kind
			var se *domain.StageError
			switch {
			case errors.As(err, &se):
				kind = se.Kind
			case errors.Is(runCtx.Err(), context.DeadlineExceeded):
				kind = domain.KindTimeout
			}
			return p.fail(ctx, r, s.stage, kind, err)
		}
	}

	r.state.advance(StageCompleted)
	r.out.Success = true
	r.out.Stage = StageCompleted
	r.out.Message = "result updated successfully"
	if r.settledBefore {
		r.out.Message = "round already settled; credits reconciled"
	}
	if !r.out.Credits.Complete() {
		r.out.Message += fmt.Sprintf("; %d credit(s) failed and await reconciliation", r.out.Credits.Failed)
	}
	log.Info("result update completed",
		zap.Int("processed", r.out.Processed),
		zap.Int("skipped", r.out.Skipped),
		zap.Int("creditsApplied", r.out.Credits.Applied),
		zap.Int("creditsFailed", r.out.Credits.Failed),
	)
	p.notify(runCtx, r)
	return r.out
}

func validate(sub Submission) (round.Result, error) {
	if sub.GameID == "" {
		return round.Result{}, errors.New("game id is required")
	}
	if sub.RoundNumber <= 0 {
		return round.Result{}, errors.New("round number must be positive")
	}
	return round.ParseResult(sub.Result)
}

func (p *Pipeline) backup(ctx context.Context, r *run) error {
	cur, found, err := p.recorder.Get(ctx, r.key)
	if err != nil {
		return err
	}
	if found && cur.Status == domain.ResultCompleted {
		if !r.result.Equal(cur.Result) {
			return &domain.StageError{
				Stage: string(StageBackingUp),
				Kind:  domain.KindConflict,
				Err:   fmt.Errorf("%w: stored %s, submitted %s", domain.ErrResultConflict, cur.Result, r.result),
			}
		}
		r.settledBefore = true
	}
	return p.audit.Snapshot(ctx, r.key)
}

func (p *Pipeline) recordPending(ctx context.Context, r *run) error {
	if r.settledBefore {
		return nil
	}
	r.pendingWrite = true
	_, err := p.recorder.WritePending(ctx, r.key, r.result)
	return err
}

func (p *Pipeline) settle(ctx context.Context, r *run) error {
	rep, err := p.settler.Settle(ctx, r.key, r.result)
	if err != nil {
		return err
	}
	r.out.Processed = rep.Processed
	r.out.Skipped = rep.Skipped
	return nil
}

// credit usa a reconciliação: cobre os vencedores desta passada e os que
// ficaram sem credited_at numa execução anterior.
func (p *Pipeline) credit(ctx context.Context, r *run) error {
	rep, err := p.crediter.Reconcile(ctx, r.key)
	if err != nil {
		return err
	}
	r.out.Credits = rep
	return nil
}

func (p *Pipeline) recordCompleted(ctx context.Context, r *run) error {
	return p.recorder.MarkCompleted(ctx, r.key)
}

func (p *Pipeline) verify(ctx context.Context, r *run) error {
	ok, err := p.recorder.Verify(ctx, r.key, r.result)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("result verification failed")
	}
	return nil
}

// fail leva a execução a Failed: grava o ErrorRecord e, se um pending
// pode ter sido escrito, marca o resultado como failed. Usa contexto
// próprio para funcionar mesmo após o deadline da execução.
func (p *Pipeline) fail(parent context.Context, r *run, stage Stage, kind domain.Kind, err error) Outcome {
	if !r.state.current.Terminal() {
		r.state.advance(StageFailed)
	}
	var se *domain.StageError
	if !errors.As(err, &se) {
		err = &domain.StageError{Stage: string(stage), Kind: kind, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), failureTimeout)
	defer cancel()

	log := p.log.With(zap.String("key", r.key.String()), zap.String("stage", string(stage)), zap.String("kind", string(kind)))
	log.Error("result update failed", zap.Error(err))

	p.audit.LogFailure(ctx, r.key, string(stage), err)

	if r.pendingWrite {
		if merr := p.recorder.MarkFailed(ctx, r.key, err); merr != nil {
			log.Warn("failed to mark update as failed", zap.Error(merr))
		}
	}
	if p.opts.Observe != nil {
		p.opts.Observe.StageFailed(stage, kind)
	}

	out := r.out
	out.Success = false
	out.Error = err.Error()
	out.Kind = kind
	out.Stage = stage
	return out
}

func (p *Pipeline) notify(ctx context.Context, r *run) {
	if p.opts.Notify == nil {
		return
	}
	e := events.RoundSettled{
		ResultID:       r.key.String(),
		GameID:         r.key.GameID,
		RoundNumber:    r.key.RoundNumber,
		Result:         r.result.String(),
		BetsProcessed:  r.out.Processed,
		BetsSkipped:    r.out.Skipped,
		CreditsApplied: r.out.Credits.Applied,
		CreditsFailed:  r.out.Credits.Failed,
		Credited:       r.out.Credits.Credited.String(),
		Ts:             p.opts.Now().UTC(),
	}
	if err := p.opts.Notify.PublishRoundSettled(ctx, e); err != nil {
		p.log.Warn("round settled publish failed", zap.String("key", r.key.String()), zap.Error(err))
	}
}
