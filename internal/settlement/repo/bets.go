package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

const betColumns = `id, game_id, round_number, user_id, type, COALESCE(number, ''), COALESCE(combination, ''),
	amount, COALESCE(win_rate, 0), status, is_winner, win_amount, COALESCE(result, ''),
	COALESCE(result_id, ''), processed_at, COALESCE(credit_ref, ''), credited_at`

// ListPending busca as apostas do round ainda não liquidadas.
func (p *Postgres) ListPending(ctx context.Context, gameID string, roundNumber int) ([]domain.Bet, error) {
	return p.queryBets(ctx, `SELECT `+betColumns+` FROM bets
		WHERE game_id=$1 AND round_number=$2 AND status='Pending'
		ORDER BY id`, gameID, roundNumber)
}

// ApplyOutcomes grava o lote numa transação. O filtro status='Pending'
// impede que uma execução concorrente liquide a mesma aposta duas vezes;
// retorna só os IDs efetivamente atualizados.
func (p *Postgres) ApplyOutcomes(ctx context.Context, outcomes []domain.BetOutcome) ([]string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE bets
		SET status=$2, result=$3, win_amount=$4, is_winner=$5,
			processed_at=$6, utc_processed=$6, ist_processed=$7, result_id=$8
		WHERE id=$1 AND status='Pending'`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	applied := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		res, err := stmt.ExecContext(ctx, o.BetID, string(o.Status), o.Result, o.WinAmount, o.IsWinner, o.ProcessedAt, o.ProcessedAtIST, o.ResultID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			applied = append(applied, o.BetID)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

// ListUncredited é escopado pela chave que liquidou a aposta, não só pelo round.
func (p *Postgres) ListUncredited(ctx context.Context, resultID string) ([]domain.Bet, error) {
	return p.queryBets(ctx, `SELECT `+betColumns+` FROM bets
		WHERE result_id=$1 AND is_winner AND credited_at IS NULL
		ORDER BY id`, resultID)
}

// ClaimCredit é condicional por linha: duas execuções nunca gravam refs
// diferentes na mesma aposta.
func (p *Postgres) ClaimCredit(ctx context.Context, betIDs []string, ref string) ([]string, error) {
	if len(betIDs) == 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, `
		UPDATE bets SET credit_ref=$1
		WHERE id = ANY($2) AND credit_ref IS NULL AND credited_at IS NULL
		RETURNING id`, ref, pq.Array(betIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		claimed = append(claimed, id)
	}
	return claimed, rows.Err()
}

func (p *Postgres) MarkCredited(ctx context.Context, betIDs []string, at time.Time) error {
	if len(betIDs) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE bets SET credited_at=$1 WHERE id = ANY($2) AND credited_at IS NULL`,
		at, pq.Array(betIDs))
	return err
}

func (p *Postgres) queryBets(ctx context.Context, q string, args ...any) ([]domain.Bet, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var status string
		var processed, credited sql.NullTime
		if err := rows.Scan(&b.ID, &b.GameID, &b.RoundNumber, &b.BettorID, &b.Type, &b.Number, &b.Combination,
			&b.Amount, &b.WinRate, &status, &b.IsWinner, &b.WinAmount, &b.Result,
			&b.ResultID, &processed, &b.CreditRef, &credited); err != nil {
			return nil, err
		}
		b.Status = domain.BetStatus(status)
		if processed.Valid {
			b.ProcessedAt = &processed.Time
		}
		if credited.Valid {
			b.CreditedAt = &credited.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
