package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/lexchat/internal/anon"
)

const defaultTTL = 24 * time.Hour

var _ anon.Store = (*Store)(nil)

// Store is the Redis-backed anonymous chat store.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Count(ctx context.Context, session string) (int, error) {
	n, err := s.rdb.Get(ctx, anon.CountKey(session)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (s *Store) Increment(ctx context.Context, session string) (int, error) {
	key := anon.CountKey(session)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// KEYS[1] counter, ARGV[1] ceiling, ARGV[2] ttl seconds.
// Returns {allowed, count}.
var incrementIfBelow = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {0, current}
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, current}
`)

func (s *Store) IncrementIfBelow(ctx context.Context, session string, ceiling int) (int, bool, error) {
	res, err := incrementIfBelow.Run(ctx, s.rdb,
		[]string{anon.CountKey(session)},
		ceiling, int(s.ttl/time.Second),
	).Int64Slice()
	if err != nil {
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redisstore: unexpected script reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (s *Store) Messages(ctx context.Context, session, chatID string) ([]anon.Message, error) {
	raw, err := s.rdb.Get(ctx, anon.ChatKey(session, chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []anon.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode anonymous chat: %w", err)
	}
	return msgs, nil
}

func (s *Store) SaveMessages(ctx context.Context, session, chatID string, msgs []anon.Message) error {
	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, anon.ChatKey(session, chatID), b, s.ttl).Err()
}

// ClearChats removes every chat of the session and leaves the counter.
func (s *Store) ClearChats(ctx context.Context, session string) error {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, anon.ChatKeyPrefix(session)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}
