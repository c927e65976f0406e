package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// Postgres implementa os stores da liquidação sobre as tabelas
// game_results, game_results_history, bets, result_backups e result_errors.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

const resultColumns = `id, game_id, date, round_number, result, update_status, update_attempt,
	COALESCE(error_message, ''), "timestamp", timestamp_ist, last_updated, last_updated_ist,
	completed_at, failed_at`

// SavePending grava o resultado como pending (upsert-merge) e a entrada de
// histórico da tentativa. O histórico roda num savepoint: se falhar, o
// resultado continua gravado e o erro volta em SaveOutcome.HistoryErr.
func (p *Postgres) SavePending(ctx context.Context, r domain.RoundResult) (domain.SaveOutcome, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SaveOutcome{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO game_results (id, game_id, date, round_number, result, update_status, update_attempt,
			"timestamp", timestamp_ist, last_updated, last_updated_ist)
		VALUES ($1,$2,$3,$4,$5,'pending',1,$6,$7,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			result = EXCLUDED.result,
			update_status = 'pending',
			update_attempt = game_results.update_attempt + 1,
			last_updated = EXCLUDED.last_updated,
			last_updated_ist = EXCLUDED.last_updated_ist
		WHERE game_results.update_status <> 'completed'
		RETURNING `+resultColumns,
		r.ID, r.GameID, r.Date, r.RoundNumber, r.Result, r.UpdatedAt, r.UpdatedAtIST)

	saved, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		// o WHERE do upsert recusou: registro já completed
		return domain.SaveOutcome{}, fmt.Errorf("save pending %s: %w", r.ID, domain.ErrInvalidTransition)
	}
	if err != nil {
		return domain.SaveOutcome{}, err
	}

	out := domain.SaveOutcome{Result: saved}
	if _, err = tx.ExecContext(ctx, `SAVEPOINT result_history`); err != nil {
		return domain.SaveOutcome{}, err
	}
	_, herr := tx.ExecContext(ctx, `
		INSERT INTO game_results_history (id, result_id, game_id, date, round_number, result, update_status, update_attempt, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		fmt.Sprintf("%s#%d", saved.ID, saved.AttemptCount),
		saved.ID, saved.GameID, saved.Date, saved.RoundNumber, saved.Result, string(saved.Status), saved.AttemptCount, saved.UpdatedAt)
	if herr != nil {
		if _, err = tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT result_history`); err != nil {
			return domain.SaveOutcome{}, err
		}
		out.HistoryErr = herr
	}

	if err = tx.Commit(); err != nil {
		return domain.SaveOutcome{}, err
	}
	return out, nil
}

// MarkCompleted é idempotente: um registro já completed não é tocado.
func (p *Postgres) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE game_results
		SET update_status='completed', completed_at=$2, last_updated=$2, last_updated_ist=$3
		WHERE id=$1 AND update_status='pending'`, id, at, at.In(round.IST))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return p.checkStatus(ctx, id, domain.ResultCompleted)
}

func (p *Postgres) MarkFailed(ctx context.Context, id string, msg string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE game_results
		SET update_status='failed', error_message=$2, failed_at=$3, last_updated=$3, last_updated_ist=$4
		WHERE id=$1 AND update_status='pending'`, id, msg, at, at.In(round.IST))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return p.checkStatus(ctx, id, "")
}

// checkStatus explica por que um UPDATE condicional não afetou linha.
// ok é o status que torna a operação um no-op aceitável.
func (p *Postgres) checkStatus(ctx context.Context, id string, ok domain.ResultStatus) error {
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT update_status FROM game_results WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if ok != "" && domain.ResultStatus(status) == ok {
		return nil
	}
	return fmt.Errorf("%s from %s: %w", id, status, domain.ErrInvalidTransition)
}

func (p *Postgres) Get(ctx context.Context, id string) (domain.RoundResult, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM game_results WHERE id=$1`, id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoundResult{}, domain.ErrNotFound
	}
	return r, err
}

// History lista as tentativas gravadas de um round, da mais antiga à mais nova.
func (p *Postgres) History(ctx context.Context, resultID string) ([]domain.HistoryEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, result_id, game_id, date, round_number, result, update_status, update_attempt, recorded_at
		FROM game_results_history
		WHERE result_id=$1
		ORDER BY update_attempt`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var status string
		if err := rows.Scan(&h.ID, &h.ResultID, &h.GameID, &h.Date, &h.RoundNumber, &h.Result, &status, &h.Attempt, &h.RecordedAt); err != nil {
			return nil, err
		}
		h.Status = domain.ResultStatus(status)
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(s rowScanner) (domain.RoundResult, error) {
	var r domain.RoundResult
	var status string
	var completed, failed sql.NullTime
	err := s.Scan(&r.ID, &r.GameID, &r.Date, &r.RoundNumber, &r.Result, &status, &r.AttemptCount,
		&r.ErrorMessage, &r.CreatedAt, &r.CreatedAtIST, &r.UpdatedAt, &r.UpdatedAtIST,
		&completed, &failed)
	if err != nil {
		return domain.RoundResult{}, err
	}
	r.Status = domain.ResultStatus(status)
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	if failed.Valid {
		r.FailedAt = &failed.Time
	}
	return r, nil
}
