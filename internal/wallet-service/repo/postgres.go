package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Postgres implementa operações de carteira em banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var ErrInvalidAmount = errors.New("amount must be positive")

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
func (p *Postgres) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance decimal.Decimal, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback()

	walletID, balance, err = lockWallet(ctx, tx, userID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, err
	}
	return walletID, balance, nil
}

// Credit incrementa o saldo e registra a operação no ledger.
// Idempotente por external_ref: um ref já aplicado devolve o saldo atual
// com duplicate=true, sem novo incremento.
func (p *Postgres) Credit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (walletID string, newBalance decimal.Decimal, duplicate bool, err error) {
	if !amount.IsPositive() {
		return "", decimal.Zero, false, ErrInvalidAmount
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, false, err
	}
	defer tx.Rollback()

	// lock pessimista na linha da carteira
	walletID, newBalance, err = lockWallet(ctx, tx, userID)
	if err != nil {
		return "", decimal.Zero, false, err
	}

	var ref any
	if externalRef != "" {
		ref = externalRef
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger (wallet_id, operation_type, amount, description, external_ref)
		VALUES ($1,'CREDIT',$2,$3,$4)
		ON CONFLICT (external_ref) DO NOTHING`,
		walletID, amount, "credit:"+externalRef, ref)
	if err != nil {
		return "", decimal.Zero, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err = tx.Commit(); err != nil {
			return "", decimal.Zero, false, err
		}
		return walletID, newBalance, true, nil
	}

	if err = tx.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance + $1, version = version + 1
		WHERE id=$2
		RETURNING balance`, amount, walletID).Scan(&newBalance); err != nil {
		return "", decimal.Zero, false, err
	}

	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, false, err
	}
	return walletID, newBalance, false, nil
}

// Increment adapta Credit ao contrato de carteira usado pela liquidação.
func (p *Postgres) Increment(ctx context.Context, bettorID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	_, bal, _, err := p.Credit(ctx, bettorID, amount, ref)
	return bal, err
}

// lockWallet cria a carteira se preciso e devolve a linha travada (FOR UPDATE).
func lockWallet(ctx context.Context, tx *sql.Tx, userID string) (string, decimal.Decimal, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, version) VALUES ($1,$2,0,1)
		ON CONFLICT (user_id) DO NOTHING`, uuid.New().String(), userID); err != nil {
		return "", decimal.Zero, err
	}
	var id string
	var bal decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&id, &bal); err != nil {
		return "", decimal.Zero, err
	}
	return id, bal, nil
}
