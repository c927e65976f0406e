package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// só apaga a chave se o token ainda for o nosso
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker serializa execuções do mesmo round entre réplicas.
type RedisLocker struct {
	R      *redis.Client
	Prefix string
}

func NewRedis(r *redis.Client) *RedisLocker {
	return &RedisLocker{R: r, Prefix: "settlement:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := l.Prefix + key
	token := uuid.NewString()
	ok, err := l.R.SetNX(ctx, k, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		_ = releaseScript.Run(ctx, l.R, []string{k}, token).Err()
	}
	return release, true, nil
}

// LocalLocker é o equivalente em processo, usado sem Redis (CLI, testes).
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

// Acquire ignora o ttl: a chave vive até o release.
func (l *LocalLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
