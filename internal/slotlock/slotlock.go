// Package slotlock serializes concurrent bookings of the same doctor and day.
package slotlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clinic-booking-server/internal/scheduling"
)

const (
	DefaultTTL   = 10 * time.Second
	DefaultWait  = 2 * time.Second
	DefaultRetry = 50 * time.Millisecond

	keyPrefix = "clinic:slotlock:"
)

// Options tune lock acquisition. Zero values take the defaults.
type Options struct {
	// TTL bounds how long a crashed holder can keep a key.
	TTL time.Duration
	// Wait is how long Lock keeps retrying before returning ErrSlotBusy.
	Wait  time.Duration
	Retry time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Wait <= 0 {
		o.Wait = DefaultWait
	}
	if o.Retry <= 0 {
		o.Retry = DefaultRetry
	}
	return o
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as Redis keys so every API instance shares them.
type RedisLocker struct {
	client *redis.Client
	opts   Options
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts Options, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, opts: opts.withDefaults(), logger: logger}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire slot lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(ctx, redisKey, token), nil
		}
		if time.Now().After(deadline) {
			return nil, scheduling.ErrSlotBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.opts.Retry):
		}
	}
}

// releaser deletes the key only while it still carries token, so a holder
// whose TTL expired cannot release a lock someone else acquired since.
func (l *RedisLocker) releaser(ctx context.Context, redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("slot lock release failed", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}
}

// LocalLocker is the single-process fallback when no Redis is configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

type localSlot struct {
	held chan struct{}
	refs int
}

func NewLocalLocker(opts Options) *LocalLocker {
	return &LocalLocker{slots: make(map[string]*localSlot), wait: opts.withDefaults().Wait}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{held: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.held <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.held
				l.release(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(key, s)
		return nil, scheduling.ErrSlotBusy
	}
}

func (l *LocalLocker) release(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
