package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the key
var ErrLockHeld = errors.New("lock is held by another owner")

// ErrLockLost is returned when a refresh or release finds a different owner
var ErrLockLost = errors.New("lock no longer owned")

// Config holds Redis connection configuration
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// only the owner token may extend or delete the key
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Locker hands out single-owner locks keyed by name
type Locker struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewLocker connects to Redis and verifies the connection
func NewLocker(config *Config, logger *slog.Logger) (*Locker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("Connected to Redis",
		slog.String("addr", config.Addr),
		slog.Int("db", config.DB),
	)

	return NewLockerFromClient(client, config.KeyPrefix, logger), nil
}

// NewLockerFromClient wraps an existing client
func NewLockerFromClient(client *redis.Client, prefix string, logger *slog.Logger) *Locker {
	if prefix == "" {
		prefix = "lock:"
	}
	return &Locker{client: client, prefix: prefix, logger: logger}
}

// Lock is an acquired lock; callers must Release it
type Lock struct {
	locker *Locker
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes the lock for name or returns ErrLockHeld
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	l.logger.Debug("Lock acquired",
		slog.String("key", key),
		slog.Duration("ttl", ttl),
	)

	return &Lock{locker: l, key: key, token: token, ttl: ttl}, nil
}

// Refresh extends the lock by its original ttl
func (k *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, k.locker.client, []string{k.key}, k.token, k.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", k.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release deletes the lock if still owned
func (k *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, k.locker.client, []string{k.key}, k.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", k.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}

	k.locker.logger.Debug("Lock released", slog.String("key", k.key))
	return nil
}

// Close closes the Redis connection
func (l *Locker) Close() error {
	return l.client.Close()
}

// HealthCheck checks if Redis is available
func (l *Locker) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
