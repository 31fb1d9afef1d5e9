package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/redis/go-redis/v9"
)

// Options — параметры подключения к Redis. URL важнее Addr, если заданы оба.
type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// RedisStore реализует Store поверх go-redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore оборачивает готовый клиент (в тестах — miniredis или redismock).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Open подключается к Redis и проверяет его ping.
func Open(ctx context.Context, o Options) (*RedisStore, error) {
	var opt *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB}
	}
	if o.Timeout > 0 {
		opt.DialTimeout = o.Timeout
		opt.ReadTimeout = o.Timeout
		opt.WriteTimeout = o.Timeout
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func storeErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", errs.ErrStore, op, key, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error) {
	if onlyIfAbsent {
		ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
		if err != nil {
			return false, storeErr("setnx", key, err)
		}
		return ok, nil
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, storeErr("set", key, err)
	}
	return true, nil
}

func (s *RedisStore) GetDelete(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("getdel", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, storeErr("exists", key, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return storeErr("del", keys[0], err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return storeErr("expire", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, storeErr("incr", key, err)
	}
	return n, nil
}

func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, key, flatten(fields)...).Err(); err != nil {
		return storeErr("hset", key, err)
	}
	return nil
}

func (s *RedisStore) HashGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("hget", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, storeErr("hgetall", key, err)
	}
	return m, nil
}

func (s *RedisStore) PushTail(ctx context.Context, key string, values ...string) (int64, error) {
	n, err := s.client.RPush(ctx, key, toArgs(values)...).Result()
	if err != nil {
		return 0, storeErr("rpush", key, err)
	}
	return n, nil
}

func (s *RedisStore) PopHead(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.LPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("lpop", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Len(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, storeErr("llen", key, err)
	}
	return n, nil
}

func (s *RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	v, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, storeErr("lrange", key, err)
	}
	return v, nil
}

func (s *RedisStore) Index(ctx context.Context, key string, index int64) (string, bool, error) {
	v, err := s.client.LIndex(ctx, key, index).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("lindex", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SAdd(ctx, key, toArgs(members)...).Err(); err != nil {
		return storeErr("sadd", key, err)
	}
	return nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.client.SRem(ctx, key, toArgs(members)...).Err(); err != nil {
		return storeErr("srem", key, err)
	}
	return nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	v, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, storeErr("smembers", key, err)
	}
	return v, nil
}

func (s *RedisStore) SortedIncr(ctx context.Context, key, member string, by float64) (float64, error) {
	v, err := s.client.ZIncrBy(ctx, key, by, member).Result()
	if err != nil {
		return 0, storeErr("zincrby", key, err)
	}
	return v, nil
}

func (s *RedisStore) SortedTop(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, storeErr("zrevrange", key, err)
	}
	out := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		out = append(out, ScoredMember{Member: fmt.Sprint(z.Member), Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) Scan(ctx context.Context, pattern string, cursor uint64, count int64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, pattern, count).Result()
	if err != nil {
		return nil, 0, storeErr("scan", pattern, err)
	}
	return keys, next, nil
}

func (s *RedisStore) Pipeline(ctx context.Context, fn func(b Batch)) error {
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		fn(&redisBatch{ctx: ctx, pipe: p})
		return nil
	})
	if err != nil {
		return storeErr("pipeline", "", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", "", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) Set(key, value string, ttl time.Duration) {
	b.pipe.Set(b.ctx, key, value, ttl)
}

func (b *redisBatch) SetIfAbsent(key, value string, ttl time.Duration) {
	b.pipe.SetNX(b.ctx, key, value, ttl)
}

func (b *redisBatch) HashSet(key string, fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	b.pipe.HSet(b.ctx, key, flatten(fields)...)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *redisBatch) PushTail(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	b.pipe.RPush(b.ctx, key, toArgs(values)...)
}

func (b *redisBatch) PushHead(key string, values ...string) {
	if len(values) == 0 {
		return
	}
	b.pipe.LPush(b.ctx, key, toArgs(values)...)
}

func (b *redisBatch) Trim(key string, start, stop int64) {
	b.pipe.LTrim(b.ctx, key, start, stop)
}

func (b *redisBatch) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) SetAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.pipe.SAdd(b.ctx, key, toArgs(members)...)
}

func (b *redisBatch) SortedAdd(key, member string, score float64) {
	b.pipe.ZAdd(b.ctx, key, redis.Z{Score: score, Member: member})
}

func flatten(fields map[string]string) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
