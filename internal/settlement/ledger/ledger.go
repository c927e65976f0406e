package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/round"
)

// Wallet é o colaborador externo: incremento atômico por chamada.
// ref identifica o crédito; a carteira deve ignorar refs repetidas.
type Wallet interface {
	Increment(ctx context.Context, bettorID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)
}

// CreditStore é a parte do wager store usada no crédito.
type CreditStore interface {
	ListUncredited(ctx context.Context, resultID string) ([]domain.Bet, error)
	ClaimCredit(ctx context.Context, betIDs []string, ref string) ([]string, error)
	MarkCredited(ctx context.Context, betIDs []string, at time.Time) error
}

// Delta acumula os ganhos de um apostador numa passada.
type Delta struct {
	BettorID string
	Amount   decimal.Decimal
	BetIDs   []string
}

// Deltas é o agregado transitório bettorID -> ganhos. Não é persistido.
type Deltas map[string]*Delta

func (d Deltas) Add(bettorID, betID string, amount decimal.Decimal) {
	cur, ok := d[bettorID]
	if !ok {
		cur = &Delta{BettorID: bettorID, Amount: decimal.Zero}
		d[bettorID] = cur
	}
	cur.Amount = cur.Amount.Add(amount)
	cur.BetIDs = append(cur.BetIDs, betID)
}

func (d Deltas) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range d {
		total = total.Add(v.Amount)
	}
	return total
}

// CreditReport distingue sucesso parcial de total. Failed conta também
// créditos aplicados cujo credited_at não foi gravado.
type CreditReport struct {
	Applied  int
	Failed   int
	Credited decimal.Decimal
}

func (r CreditReport) Complete() bool { return r.Failed == 0 }

// Credit é uma chamada à carteira: apostas de um apostador sob uma única ref.
// Ref vazia significa apostas ainda sem reserva.
type Credit struct {
	BettorID string
	Ref      string
	Bets     []domain.Bet
}

func (c Credit) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, b := range c.Bets {
		total = total.Add(b.WinAmount)
	}
	return total
}

func (c Credit) BetIDs() []string {
	ids := make([]string, len(c.Bets))
	for i, b := range c.Bets {
		ids[i] = b.ID
	}
	return ids
}

// Plan agrupa as vencedoras: as que já têm ref ficam juntas por ref (nova
// tentativa do mesmo crédito); as demais, por apostador.
func Plan(bets []domain.Bet) []Credit {
	byRef := make(map[string]*Credit)
	byBettor := make(map[string]*Credit)
	var order []*Credit
	for _, b := range bets {
		idx, k := byBettor, b.BettorID
		if b.CreditRef != "" {
			idx, k = byRef, b.CreditRef
		}
		c, ok := idx[k]
		if !ok {
			c = &Credit{BettorID: b.BettorID, Ref: b.CreditRef}
			idx[k] = c
			order = append(order, c)
		}
		c.Bets = append(c.Bets, b)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].BettorID != order[j].BettorID {
			return order[i].BettorID < order[j].BettorID
		}
		return order[i].Ref > order[j].Ref // retentativas antes das novas
	})
	out := make([]Credit, len(order))
	for i, c := range order {
		out[i] = *c
	}
	return out
}

type Updater struct {
	log    *zap.Logger
	wallet Wallet
	bets   CreditStore
	now    func() time.Time
	newRef func(bettorID string) string
}

func NewUpdater(log *zap.Logger, wallet Wallet, bets CreditStore) *Updater {
	return &Updater{log: log, wallet: wallet, bets: bets, now: time.Now, newRef: NewCreditRef}
}

// NewCreditRef gera a ref de um crédito novo. Ela é gravada nas apostas antes
// da chamada à carteira, então não depende de data nem de agrupamento.
func NewCreditRef(bettorID string) string {
	return fmt.Sprintf("settle:%s:%s", bettorID, uuid.NewString())
}

// ApplyCredits chama a carteira uma vez por crédito. Crédito novo primeiro
// reserva as apostas com uma ref; as já reservadas por outra execução ficam
// com ela. Falha de um crédito é logada e não impede os demais; as apostas
// ficam sem credited_at e mantêm a ref para a próxima reconciliação.
func (u *Updater) ApplyCredits(ctx context.Context, key round.Key, credits []Credit) CreditReport {
	rep := CreditReport{Credited: decimal.Zero}

	for _, c := range credits {
		log := u.log.With(zap.String("key", key.String()), zap.String("bettorId", c.BettorID))

		if c.Ref == "" {
			claimed, err := u.claim(ctx, c)
			if err != nil {
				rep.Failed++
				log.Error("credit reservation failed", zap.Error(err))
				continue
			}
			c = claimed
		}
		if len(c.Bets) == 0 {
			continue
		}
		amount := c.Amount()
		if !amount.IsPositive() {
			// taxa zero: nada a pagar, só fecha o marcador
			if err := u.bets.MarkCredited(ctx, c.BetIDs(), u.now().UTC()); err != nil {
				rep.Failed++
				log.Error("credit marker write failed", zap.String("ref", c.Ref), zap.Error(err))
			}
			continue
		}

		bal, err := u.wallet.Increment(ctx, c.BettorID, amount, c.Ref)
		if err != nil {
			rep.Failed++
			log.Error("wallet credit failed",
				zap.String("ref", c.Ref),
				zap.String("amount", amount.String()),
				zap.Error(err),
			)
			continue
		}

		// a carteira deduplica pela ref na próxima tentativa
		if err := u.bets.MarkCredited(ctx, c.BetIDs(), u.now().UTC()); err != nil {
			rep.Failed++
			log.Error("credit marker write failed", zap.String("ref", c.Ref), zap.Error(err))
			continue
		}
		rep.Applied++
		rep.Credited = rep.Credited.Add(amount)
		log.Info("wallet credited",
			zap.String("ref", c.Ref),
			zap.String("amount", amount.String()),
			zap.String("balance", bal.String()),
		)
	}
	return rep
}

// claim reserva as apostas do crédito; as que outra execução reservou antes
// saem do crédito e são pagas por ela.
func (u *Updater) claim(ctx context.Context, c Credit) (Credit, error) {
	ref := u.newRef(c.BettorID)
	ids, err := u.bets.ClaimCredit(ctx, c.BetIDs(), ref)
	if err != nil {
		return Credit{}, fmt.Errorf("claim credit %s: %w", ref, err)
	}
	got := make(map[string]bool, len(ids))
	for _, id := range ids {
		got[id] = true
	}
	out := Credit{BettorID: c.BettorID, Ref: ref}
	for _, b := range c.Bets {
		if got[b.ID] {
			out.Bets = append(out.Bets, b)
		}
	}
	return out, nil
}

// Reconcile credita toda aposta vencedora liquidada sob key ainda sem
// credited_at, inclusive as deixadas por uma execução interrompida.
func (u *Updater) Reconcile(ctx context.Context, key round.Key) (CreditReport, error) {
	winners, err := u.bets.ListUncredited(ctx, key.String())
	if err != nil {
		return CreditReport{}, fmt.Errorf("list uncredited %s: %w", key, err)
	}
	if len(winners) == 0 {
		return CreditReport{Credited: decimal.Zero}, nil
	}
	return u.ApplyCredits(ctx, key, Plan(winners)), nil
}
