package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
	"github.com/radieske/draw-settlement/internal/settlement/pipeline"
	"github.com/radieske/draw-settlement/internal/settlement/producer"
	"github.com/radieske/draw-settlement/pkg/contracts/events"
)

// MessageReader é satisfeito por *kafka.Reader.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type Runner interface {
	Run(ctx context.Context, sub pipeline.Submission) pipeline.Outcome
}

// Processor consome round_result_submitted e roda o pipeline para cada mensagem.
// Falhas definitivas vão para a DLQ com o motivo nos headers.
type Processor struct {
	Log     *zap.Logger
	Reader  MessageReader
	Runner  Runner
	DLQ     producer.MessageWriter // opcional
	Retries int
	Backoff time.Duration

	OnConsumed func()       // métricas (counter++)
	OnSettled  func()       // métricas
	OnDLQ      func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal; retorna quando o contexto é cancelado.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.onError("read")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.handle(ctx, m)
	}
}

func (p *Processor) handle(ctx context.Context, m kafka.Message) {
	var ev events.ResultSubmitted
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.Log.Warn("invalid message", zap.Error(err), zap.Int64("offset", m.Offset))
		p.onError("decode")
		p.deadLetter(ctx, m, "decode", err.Error())
		return
	}
	sub := pipeline.Submission{GameID: ev.GameID, RoundNumber: ev.RoundNumber, Result: ev.Result}
	if ev.TsUnixMs > 0 {
		sub.SubmittedAt = time.UnixMilli(ev.TsUnixMs)
	}

	var out pipeline.Outcome
	for attempt := 0; ; attempt++ {
		out = p.Runner.Run(ctx, sub)
		if out.Success || !retryable(out.Kind) || attempt >= p.Retries {
			break
		}
		p.Log.Warn("settlement attempt failed; retrying",
			zap.String("key", out.Key),
			zap.Int("attempt", attempt+1),
			zap.String("kind", string(out.Kind)),
			zap.String("error", out.Error),
		)
		if !sleep(ctx, p.Backoff*time.Duration(attempt+1)) {
			return
		}
	}

	if out.Success {
		if p.OnSettled != nil {
			p.OnSettled()
		}
		return
	}
	p.onError("settle")
	p.deadLetter(ctx, m, string(out.Kind), out.Error)
}

// retryable separa falhas transitórias das que se repetiriam igual.
func retryable(k domain.Kind) bool {
	switch k {
	case domain.KindInvalidInput, domain.KindConflict, domain.KindCancelled:
		return false
	}
	return true
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, kind, reason string) {
	if p.DLQ == nil {
		return
	}
	dlq := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "error", Value: []byte(reason)},
		},
	}
	if err := p.DLQ.WriteMessages(ctx, dlq); err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.onError("dlq")
		return
	}
	if p.OnDLQ != nil {
		p.OnDLQ()
	}
}

func (p *Processor) onError(phase string) {
	if p.OnError != nil {
		p.OnError(phase)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
