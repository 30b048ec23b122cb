package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hwbot/internal/homework"
	"hwbot/pkg/logx"
)

const defaultRedisPrefix = "hwbot:"

// redisStore keeps the state as a JSON string key and the journal as a capped list.
type redisStore struct {
	client *redis.Client
	prefix string
	max    int
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("storage.redis_addr is required for redis driver")
	}
	prefix := cfg.RedisPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &redisStore{client: client, prefix: prefix, max: journalMax(cfg), log: log}, nil
}

func (s *redisStore) stateKey() string   { return s.prefix + "state" }
func (s *redisStore) journalKey() string { return s.prefix + "journal" }

func (s *redisStore) Close() error {
	return s.client.Close()
}

func (s *redisStore) LoadState(ctx context.Context) (homework.State, bool, error) {
	val, err := s.client.Get(ctx, s.stateKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return homework.State{}, false, nil
		}
		return homework.State{}, false, err
	}
	var st homework.State
	if err := json.Unmarshal([]byte(val), &st); err != nil {
		return homework.State{}, false, err
	}
	return st, true, nil
}

func (s *redisStore) SaveState(ctx context.Context, st homework.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.stateKey(), payload, 0).Err()
}

func (s *redisStore) AppendJournal(ctx context.Context, e JournalEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.journalKey(), payload)
	pipe.LTrim(ctx, s.journalKey(), int64(-s.max), -1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) RecentJournal(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > s.max {
		limit = s.max
	}
	vals, err := s.client.LRange(ctx, s.journalKey(), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]JournalEntry, 0, len(vals))
	for _, v := range vals {
		var e JournalEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			s.log.Debug("skip malformed journal entry", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
