package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/draw-settlement/internal/settlement/domain"
)

// ResultCache guarda resultados já completed para as leituras do painel.
// Só registros completed entram: são imutáveis.
type ResultCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *ResultCache { return &ResultCache{R: r, TTL: ttl} }

func keyResult(id string) string { return "settlement:result:" + id }

func (c *ResultCache) Get(ctx context.Context, id string) (domain.RoundResult, bool, error) {
	var rr domain.RoundResult
	b, err := c.R.Get(ctx, keyResult(id)).Bytes()
	if err == redis.Nil {
		return rr, false, nil
	}
	if err != nil {
		return rr, false, err
	}
	if err := json.Unmarshal(b, &rr); err != nil {
		return rr, false, err
	}
	return rr, true, nil
}

func (c *ResultCache) Set(ctx context.Context, rr domain.RoundResult) error {
	if rr.Status != domain.ResultCompleted {
		return nil
	}
	b, err := json.Marshal(rr)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyResult(rr.ID), b, c.TTL).Err()
}
