// Package lock provides Redis-backed distributed locks used to serialize
// writes to a single change record or a single approval row, per the
// workflow controller's concurrency model.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChangeLockKey returns the lock key for a change record.
func ChangeLockKey(changeID string) string {
	return "changeintel:lock:change:" + changeID
}

// ApprovalLockKey returns the lock key for a single approval row, so two
// concurrent decisions on the same approval cannot both win.
func ApprovalLockKey(approvalID string) string {
	return "changeintel:lock:approval:" + approvalID
}

// DistributedLock is a single Redis-backed mutual-exclusion lock.
type DistributedLock struct {
	redis    *redis.Client
	key      string
	value    string
	ttl      time.Duration
	logger   *slog.Logger
	acquired bool
}

// Config holds lock settings. New reads only TTL and ValuePrefix;
// MaxRetries, RetryInterval, AcquireTimeout and ReleaseTimeout are not
// read by this package.
type Config struct {
	TTL            time.Duration `env:"LOCK_TTL" default:"30s"`
	MaxRetries     int           `env:"LOCK_MAX_RETRIES" default:"3"`
	RetryInterval  time.Duration `env:"LOCK_RETRY_INTERVAL" default:"100ms"`
	AcquireTimeout time.Duration `env:"LOCK_ACQUIRE_TIMEOUT" default:"5s"`
	ReleaseTimeout time.Duration `env:"LOCK_RELEASE_TIMEOUT" default:"2s"`
	ValuePrefix    string        `env:"LOCK_VALUE_PREFIX" default:"changeintel"`
}

// DefaultConfig returns sane lock defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:            30 * time.Second,
		MaxRetries:     3,
		RetryInterval:  100 * time.Millisecond,
		AcquireTimeout: 5 * time.Second,
		ReleaseTimeout: 2 * time.Second,
		ValuePrefix:    "changeintel",
	}
}

// New creates a distributed lock bound to key, not yet acquired.
func New(redisClient *redis.Client, key string, config *Config, logger *slog.Logger) *DistributedLock {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DistributedLock{
		redis:  redisClient,
		key:    key,
		value:  generateLockValue(config.ValuePrefix),
		ttl:    config.TTL,
		logger: logger,
	}
}

func generateLockValue(prefix string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}

// Acquire attempts to acquire the lock with AcquireWithRetry's default
// budget: one attempt plus up to 3 retries.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	return l.AcquireWithRetry(ctx, 0)
}

// AcquireWithRetry attempts to acquire the lock, retrying with backoff up
// to maxRetries times (0 uses a default of 3).
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int) (bool, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	l.logger.Debug("attempting to acquire lock", "key", l.key, "ttl", l.ttl)

	for attempt := 0; attempt <= maxRetries; attempt++ {
		acquireCtx, cancel := context.WithTimeout(ctx, l.ttl)

		result, err := l.redis.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
		cancel()
		if err != nil {
			l.logger.Error("failed to acquire lock", "key", l.key, "attempt", attempt+1, "error", err)
			if attempt == maxRetries {
				return false, fmt.Errorf("failed to acquire lock after %d attempts: %w", maxRetries+1, err)
			}
			time.Sleep(l.retryInterval(attempt))
			continue
		}

		if result {
			l.acquired = true
			l.logger.Info("lock acquired", "key", l.key, "ttl", l.ttl)
			return true, nil
		}

		l.logger.Debug("lock already held", "key", l.key, "attempt", attempt+1)
		if attempt == maxRetries {
			return false, nil
		}

		time.Sleep(l.retryInterval(attempt))
	}

	return false, nil
}

// Release releases the lock if this instance holds it. A compare-and-delete
// Lua script prevents releasing a lock acquired by someone else after our
// TTL expired and was reclaimed.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		l.logger.Warn("attempting to release a lock that was not acquired", "key", l.key)
		return nil
	}

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	releaseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(releaseCtx, script, []string{l.key}, l.value).Result()
	if err != nil {
		l.logger.Error("failed to release lock", "key", l.key, "error", err)
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if result.(int64) == 1 {
		l.acquired = false
		l.logger.Info("lock released", "key", l.key)
		return nil
	}

	l.logger.Warn("lock was not released (already expired or stolen)", "key", l.key)
	return nil
}

// Extend extends the lock's TTL, failing if another holder took over.
func (l *DistributedLock) Extend(ctx context.Context, newTTL time.Duration) error {
	if !l.acquired {
		return fmt.Errorf("cannot extend a lock that was not acquired")
	}

	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("expire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`

	extendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result, err := l.redis.Eval(extendCtx, script, []string{l.key}, l.value, int(newTTL.Seconds())).Result()
	if err != nil {
		l.logger.Error("failed to extend lock", "key", l.key, "error", err)
		return fmt.Errorf("failed to extend lock: %w", err)
	}

	if result.(int64) == 1 {
		l.ttl = newTTL
		l.logger.Info("lock extended", "key", l.key, "new_ttl", newTTL)
		return nil
	}

	return fmt.Errorf("failed to extend lock (already expired or stolen)")
}

// IsAcquired reports whether this instance currently holds the lock.
func (l *DistributedLock) IsAcquired() bool { return l.acquired }

// Key returns the lock key.
func (l *DistributedLock) Key() string { return l.key }

// Value returns the lock's fencing value.
func (l *DistributedLock) Value() string { return l.value }

// TTL returns the lock's current TTL.
func (l *DistributedLock) TTL() time.Duration { return l.ttl }

func (l *DistributedLock) retryInterval(attempt int) time.Duration {
	base := 100 * time.Millisecond
	interval := time.Duration(attempt+1) * base
	jitter := time.Duration(float64(interval) * 0.25 * (2*float64(time.Now().UnixNano()%1000)/1000 - 1))
	return interval + jitter
}

// Manager tracks multiple locks acquired by this process, so a single
// workflow operation holding several (e.g. a change lock plus the locks of
// the approvals it is deriving) can release them together.
type Manager struct {
	redis  *redis.Client
	config *Config
	logger *slog.Logger
	locks  map[string]*DistributedLock
}

// NewManager creates a lock manager.
func NewManager(redisClient *redis.Client, config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		redis:  redisClient,
		config: config,
		logger: logger,
		locks:  make(map[string]*DistributedLock),
	}
}

// AcquireLock creates and acquires a lock for key, tracking it for later release.
func (m *Manager) AcquireLock(ctx context.Context, key string) (*DistributedLock, error) {
	l := New(m.redis, key, m.config, m.logger)

	acquired, err := l.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("failed to acquire lock for key: %s", key)
	}

	m.locks[key] = l
	return l, nil
}

// ReleaseLock releases a tracked lock by key.
func (m *Manager) ReleaseLock(ctx context.Context, key string) error {
	l, exists := m.locks[key]
	if !exists {
		m.logger.Warn("attempting to release an untracked lock", "key", key)
		return nil
	}

	if err := l.Release(ctx); err != nil {
		return err
	}

	delete(m.locks, key)
	return nil
}

// ReleaseAll releases every tracked lock, returning the last error seen.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	var lastErr error

	for key, l := range m.locks {
		if err := l.Release(ctx); err != nil {
			m.logger.Error("failed to release lock", "key", key, "error", err)
			lastErr = err
		}
	}

	m.locks = make(map[string]*DistributedLock)
	return lastErr
}

// ListLocks returns the keys of all currently tracked locks.
func (m *Manager) ListLocks() []string {
	keys := make([]string, 0, len(m.locks))
	for key := range m.locks {
		keys = append(keys, key)
	}
	return keys
}

// Close releases all tracked locks.
func (m *Manager) Close(ctx context.Context) error {
	return m.ReleaseAll(ctx)
}
