// Package kvstore — тонкий адаптер над общим key-value хранилищем: примитивы
// строк, hash, списков, счётчиков и множеств для очереди и сессий,
// TTL на ключ и pipeline-пакеты.
package kvstore

import (
	"context"
	"time"
)

// Store — хранилище, которым пользуются сервисы. Отсутствующий ключ
// сообщается через bool, а не ошибкой.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set пишет ключ. С onlyIfAbsent возвращает false, если ключ уже был.
	Set(ctx context.Context, key, value string, ttl time.Duration, onlyIfAbsent bool) (bool, error)
	// GetDelete атомарно читает и удаляет ключ.
	GetDelete(ctx context.Context, key string) (string, bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)

	HashSet(ctx context.Context, key string, fields map[string]string) error
	HashGet(ctx context.Context, key, field string) (string, bool, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	PushTail(ctx context.Context, key string, values ...string) (int64, error)
	// PopHead атомарно снимает первый элемент списка.
	PopHead(ctx context.Context, key string) (string, bool, error)
	Len(ctx context.Context, key string) (int64, error)
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Index(ctx context.Context, key string, index int64) (string, bool, error)

	SetAdd(ctx context.Context, key string, members ...string) error
	SetRemove(ctx context.Context, key string, members ...string) error
	SetMembers(ctx context.Context, key string) ([]string, error)

	SortedIncr(ctx context.Context, key, member string, by float64) (float64, error)
	SortedTop(ctx context.Context, key string, limit int64) ([]ScoredMember, error)

	// Scan возвращает страницу ключей по pattern и следующий курсор (0 — конец).
	Scan(ctx context.Context, pattern string, cursor uint64, count int64) ([]string, uint64, error)
	// Pipeline отправляет команды из fn одним пакетом. Это не транзакция:
	// применённое до сбоя остаётся применённым.
	Pipeline(ctx context.Context, fn func(b Batch)) error

	Ping(ctx context.Context) error
	Close() error
}

// Batch копит команды записи для Pipeline.
type Batch interface {
	Set(key, value string, ttl time.Duration)
	SetIfAbsent(key, value string, ttl time.Duration)
	HashSet(key string, fields map[string]string)
	Expire(key string, ttl time.Duration)
	PushTail(key string, values ...string)
	PushHead(key string, values ...string)
	Trim(key string, start, stop int64)
	Delete(keys ...string)
	SetAdd(key string, members ...string)
	SortedAdd(key, member string, score float64)
}

type ScoredMember struct {
	Member string
	Score  float64
}

// ScanAll проходит все страницы scan и возвращает уникальные ключи
// (повторы между страницами считаются один раз).
func ScanAll(ctx context.Context, s Store, pattern string, count int64) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	var cursor uint64
	for {
		keys, next, err := s.Scan(ctx, pattern, cursor, count)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}
