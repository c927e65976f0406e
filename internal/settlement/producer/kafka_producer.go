package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/draw-settlement/pkg/contracts/events"
)

// MessageWriter é satisfeito por *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	Writer MessageWriter
}

func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{Writer: w}
}

// PublishRoundSettled usa o resultId como chave: eventos do mesmo round
// caem na mesma partição.
func (p *KafkaPublisher) PublishRoundSettled(ctx context.Context, e events.RoundSettled) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.ResultID), Value: b, Time: e.Ts})
}

// PublishResultSubmitted enfileira um resultado para o settlement-worker.
// TsUnixMs vazio recebe o instante da publicação.
func (p *KafkaPublisher) PublishResultSubmitted(ctx context.Context, e events.ResultSubmitted) error {
	if e.TsUnixMs == 0 {
		e.TsUnixMs = time.Now().UnixMilli()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.GameID), Value: b})
}
