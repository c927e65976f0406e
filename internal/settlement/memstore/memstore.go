// Package memstore implementa os stores de liquidação em memória.
// Usado nos testes; os campos Fail* permitem injetar falhas por operação.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

// Store guarda resultados, histórico, apostas, backups e erros.
type Store struct {
	mu      sync.Mutex
	results map[string]domain.RoundResult
	history []domain.HistoryEntry
	bets    map[string]domain.Bet
	backups []domain.Backup
	errs    map[string]domain.ErrorRecord

	FailSaveBackup    error
	FailSavePending   error
	FailHistory       error
	FailMarkCompleted error
	FailGet           error
	FailListPending   error
	FailApply         error
	FailClaim         error
	FailMarkCredited  error
	FailSaveError     error

	// OverrideResult simula leitura inconsistente após a escrita.
	OverrideResult string

	// OnApply roda antes de aplicar o lote (ex.: simular corrida com outra execução).
	OnApply func()
}

func New() *Store {
	return &Store{
		results: make(map[string]domain.RoundResult),
		bets:    make(map[string]domain.Bet),
		errs:    make(map[string]domain.ErrorRecord),
	}
}

// ─── ResultStore ────────────────────────────────────────────────────────────

func (s *Store) SavePending(_ context.Context, r domain.RoundResult) (domain.SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSavePending != nil {
		return domain.SaveOutcome{}, s.FailSavePending
	}

	cur, ok := s.results[r.ID]
	if ok && cur.Status == domain.ResultCompleted {
		return domain.SaveOutcome{}, fmt.Errorf("save pending %s: %w", r.ID, domain.ErrInvalidTransition)
	}
	if ok {
		cur.Result = r.Result
		cur.Status = domain.ResultPending
		cur.AttemptCount++
		cur.UpdatedAt = r.UpdatedAt
		cur.UpdatedAtIST = r.UpdatedAtIST
	} else {
		cur = r
		cur.Status = domain.ResultPending
		cur.AttemptCount = 1
	}
	s.results[r.ID] = cur

	out := domain.SaveOutcome{Result: cur}
	if s.FailHistory != nil {
		out.HistoryErr = s.FailHistory
		return out, nil
	}
	s.history = append(s.history, domain.HistoryEntry{
		ID:          fmt.Sprintf("%s#%d", cur.ID, cur.AttemptCount),
		ResultID:    cur.ID,
		GameID:      cur.GameID,
		Date:        cur.Date,
		RoundNumber: cur.RoundNumber,
		Result:      cur.Result,
		Status:      cur.Status,
		Attempt:     cur.AttemptCount,
		RecordedAt:  cur.UpdatedAt,
	})
	return out, nil
}

func (s *Store) MarkCompleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMarkCompleted != nil {
		return s.FailMarkCompleted
	}
	cur, ok := s.results[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch cur.Status {
	case domain.ResultCompleted:
		return nil
	case domain.ResultPending:
	default:
		return fmt.Errorf("mark completed %s from %s: %w", id, cur.Status, domain.ErrInvalidTransition)
	}
	cur.Status = domain.ResultCompleted
	cur.CompletedAt = &at
	cur.UpdatedAt = at
	s.results[id] = cur
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, msg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.results[id]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != domain.ResultPending {
		return fmt.Errorf("mark failed %s from %s: %w", id, cur.Status, domain.ErrInvalidTransition)
	}
	cur.Status = domain.ResultFailed
	cur.ErrorMessage = msg
	cur.FailedAt = &at
	cur.UpdatedAt = at
	s.results[id] = cur
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailGet != nil {
		return domain.RoundResult{}, s.FailGet
	}
	r, ok := s.results[id]
	if !ok {
		return domain.RoundResult{}, domain.ErrNotFound
	}
	if s.OverrideResult != "" {
		r.Result = s.OverrideResult
	}
	return r, nil
}

// History retorna uma cópia do histórico gravado.
func (s *Store) History() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.HistoryEntry(nil), s.history...)
}

// ResultCount é usado para verificar que nada foi escrito.
func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// PutResult grava o registro direto, sem passar pelo merge.
func (s *Store) PutResult(r domain.RoundResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = r
}

// ─── BetStore ───────────────────────────────────────────────────────────────

// AddBets registra apostas como se viessem do subsistema de apostas.
func (s *Store) AddBets(bets ...domain.Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bets {
		if b.Status == "" {
			b.Status = domain.BetPending
		}
		s.bets[b.ID] = b
	}
}

func (s *Store) Bet(id string) domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bets[id]
}

func (s *Store) ListPending(_ context.Context, gameID string, roundNumber int) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailListPending != nil {
		return nil, s.FailListPending
	}
	return s.filter(func(b domain.Bet) bool {
		return b.GameID == gameID && b.RoundNumber == roundNumber && b.Status == domain.BetPending
	}), nil
}

func (s *Store) ApplyOutcomes(_ context.Context, outcomes []domain.BetOutcome) ([]string, error) {
	if s.OnApply != nil {
		s.OnApply()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailApply != nil {
		return nil, s.FailApply
	}
	applied := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		b, ok := s.bets[o.BetID]
		if !ok || b.Status != domain.BetPending {
			continue
		}
		at := o.ProcessedAt
		b.Status = o.Status
		b.IsWinner = o.IsWinner
		b.WinAmount = o.WinAmount
		b.Result = o.Result
		b.ResultID = o.ResultID
		b.ProcessedAt = &at
		s.bets[o.BetID] = b
		applied = append(applied, o.BetID)
	}
	return applied, nil
}

func (s *Store) ListUncredited(_ context.Context, resultID string) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter(func(b domain.Bet) bool {
		return b.ResultID == resultID && b.IsWinner && b.CreditedAt == nil
	}), nil
}

func (s *Store) ClaimCredit(_ context.Context, betIDs []string, ref string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailClaim != nil {
		return nil, s.FailClaim
	}
	claimed := make([]string, 0, len(betIDs))
	for _, id := range betIDs {
		b, ok := s.bets[id]
		if !ok || b.CreditRef != "" || b.CreditedAt != nil {
			continue
		}
		b.CreditRef = ref
		s.bets[id] = b
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (s *Store) MarkCredited(_ context.Context, betIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailMarkCredited != nil {
		return s.FailMarkCredited
	}
	for _, id := range betIDs {
		b, ok := s.bets[id]
		if !ok || b.CreditedAt != nil {
			continue
		}
		b.CreditedAt = &at
		s.bets[id] = b
	}
	return nil
}

func (s *Store) filter(keep func(domain.Bet) bool) []domain.Bet {
	var out []domain.Bet
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ─── BackupStore / ErrorStore ───────────────────────────────────────────────

func (s *Store) SaveBackup(_ context.Context, b domain.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveBackup != nil {
		return s.FailSaveBackup
	}
	s.backups = append(s.backups, b)
	return nil
}

func (s *Store) Backups() []domain.Backup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Backup(nil), s.backups...)
}

func (s *Store) SaveError(_ context.Context, rec domain.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveError != nil {
		return s.FailSaveError
	}
	s.errs[rec.ResultID] = rec
	return nil
}

func (s *Store) ErrorRecord(resultID string) (domain.ErrorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.errs[resultID]
	return rec, ok
}

// ─── Wallet ─────────────────────────────────────────────────────────────────

// Wallet é uma carteira em memória, idempotente por external ref.
type Wallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	refs     map[string]bool
	calls    int

	// Fail mapeia bettorID -> erro a retornar.
	Fail map[string]error
}

func NewWallet() *Wallet {
	return &Wallet{
		balances: make(map[string]decimal.Decimal),
		refs:     make(map[string]bool),
		Fail:     make(map[string]error),
	}
}

func (w *Wallet) Increment(_ context.Context, bettorID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if err := w.Fail[bettorID]; err != nil {
		return decimal.Zero, err
	}
	if ref != "" && w.refs[ref] {
		return w.balances[bettorID], nil
	}
	w.refs[ref] = true
	w.balances[bettorID] = w.balances[bettorID].Add(amount)
	return w.balances[bettorID], nil
}

func (w *Wallet) Balance(bettorID string) decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[bettorID]
}

// Calls conta as chamadas a Increment, inclusive as que falharam.
func (w *Wallet) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}
