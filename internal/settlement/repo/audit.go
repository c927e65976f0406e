package repo

import (
	"context"
	"encoding/json"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

// SaveBackup guarda o snapshot como JSONB; previous é null no primeiro envio.
func (p *Postgres) SaveBackup(ctx context.Context, b domain.Backup) error {
	snap, err := json.Marshal(b.Previous)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO result_backups (id, result_id, previous, pending_bets, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		b.ID, b.ResultID, snap, b.PendingBets, b.CreatedAt)
	return err
}

// SaveError sobrescreve o registro do round: só a última falha interessa.
func (p *Postgres) SaveError(ctx context.Context, rec domain.ErrorRecord) error {
	meta, err := json.Marshal(rec.Context)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO result_errors (result_id, game_id, date, round_number, stage, kind, error_message, context, "timestamp")
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (result_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			kind = EXCLUDED.kind,
			error_message = EXCLUDED.error_message,
			context = EXCLUDED.context,
			"timestamp" = EXCLUDED."timestamp"`,
		rec.ResultID, rec.GameID, rec.Date, rec.RoundNumber, rec.Stage, string(rec.Kind), rec.Message, meta, rec.CreatedAt)
	return err
}
