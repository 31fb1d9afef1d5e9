// Package session хранит сессии пользователей, индекс онлайн-пользователей
// и рейтинг активности в key-value хранилище.
package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-queue/internal/errs"
	"github.com/psds-microservice/ticket-queue/internal/kvstore"
	"github.com/psds-microservice/ticket-queue/internal/model"
	"go.uber.org/zap"
)

const (
	KeyPrefix        = "session:"
	OnlineUsersKey   = "online_users"
	ActivityScoreKey = "user_activity_score"
	expireSuffix     = ":expire"

	StatusActive = "active"

	DefaultTTL              = 30 * time.Minute
	DefaultLeaderboardLimit = 50
	scanPageSize            = 200
)

func sessionKey(id string) string { return KeyPrefix + id }
func expireKey(id string) string  { return KeyPrefix + id + expireSuffix }

func isSessionKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && !strings.HasSuffix(key, expireSuffix)
}

// Tracker безопасен для конкурентного использования: всё состояние в хранилище.
type Tracker struct {
	store        kvstore.Store
	ttl          time.Duration
	scoreEnabled bool
	now          func() time.Time
	newID        func() string
	log          *zap.Logger
}

type Option func(*Tracker)

func WithTTL(ttl time.Duration) Option {
	return func(t *Tracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithActivityScore включает или выключает рейтинг активности.
func WithActivityScore(enabled bool) Option {
	return func(t *Tracker) { t.scoreEnabled = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

func NewTracker(store kvstore.Store, log *zap.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		store:        store,
		ttl:          DefaultTTL,
		scoreEnabled: true,
		now:          time.Now,
		newID:        uuid.NewString,
		log:          log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Create открывает сессию userID и отмечает пользователя онлайн.
func (t *Tracker) Create(ctx context.Context, userID string) (model.Session, error) {
	ts := t.now().Unix()
	s := model.Session{
		SessionID:    t.newID(),
		UserID:       userID,
		LoginTime:    ts,
		LastActivity: ts,
		Status:       StatusActive,
	}
	key := sessionKey(s.SessionID)
	err := t.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.HashSet(key, toFields(s))
		b.Expire(key, t.ttl)
		b.Set(expireKey(s.SessionID), "1", t.ttl)
		b.SetAdd(OnlineUsersKey, userID)
		if t.scoreEnabled {
			// login counts as one action
			b.SortedAdd(ActivityScoreKey, userID, 1)
		}
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	t.log.Info("session created", zap.String("session_id", s.SessionID), zap.String("user_id", userID))
	return s, nil
}

// Refresh продлевает TTL сессии и её маркера истечения.
func (t *Tracker) Refresh(ctx context.Context, id string) error {
	err := t.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.Expire(sessionKey(id), t.ttl)
		b.Set(expireKey(id), "1", t.ttl)
	})
	if err != nil {
		return fmt.Errorf("refresh session %s: %w", id, err)
	}
	return nil
}

// UpdateActivity обновляет last_activity, продлевает сессию и увеличивает
// счёт активности пользователя.
func (t *Tracker) UpdateActivity(ctx context.Context, id string) (model.Session, error) {
	key := sessionKey(id)
	ok, err := t.store.Exists(ctx, key)
	if err != nil {
		return model.Session{}, fmt.Errorf("update activity: %w", err)
	}
	if !ok {
		return model.Session{}, errs.ErrSessionNotFound
	}

	ts := strconv.FormatInt(t.now().Unix(), 10)
	if err := t.store.HashSet(ctx, key, map[string]string{"last_activity": ts}); err != nil {
		return model.Session{}, fmt.Errorf("update activity: %w", err)
	}
	if err := t.Refresh(ctx, id); err != nil {
		return model.Session{}, err
	}

	userID, ok, err := t.store.HashGet(ctx, key, "user_id")
	if err != nil {
		return model.Session{}, fmt.Errorf("update activity: %w", err)
	}
	if ok && userID != "" {
		if err := t.store.SetAdd(ctx, OnlineUsersKey, userID); err != nil {
			return model.Session{}, fmt.Errorf("update activity: %w", err)
		}
		if t.scoreEnabled {
			if _, err := t.store.SortedIncr(ctx, ActivityScoreKey, userID, 1); err != nil {
				return model.Session{}, fmt.Errorf("update activity: %w", err)
			}
		}
	}
	return t.Get(ctx, id)
}

// End удаляет сессию и снимает пользователя из индекса онлайн.
// Возвращает сессию в последнем сохранённом виде.
func (t *Tracker) End(ctx context.Context, id string) (model.Session, error) {
	s, err := t.Get(ctx, id)
	if err != nil {
		return model.Session{}, err
	}
	err = t.store.Pipeline(ctx, func(b kvstore.Batch) {
		b.Delete(sessionKey(id), expireKey(id))
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("end session %s: %w", id, err)
	}
	if s.UserID != "" {
		if err := t.store.SetRemove(ctx, OnlineUsersKey, s.UserID); err != nil {
			return model.Session{}, fmt.Errorf("end session %s: %w", id, err)
		}
	}
	t.log.Info("session ended", zap.String("session_id", id), zap.String("user_id", s.UserID))
	return s, nil
}

func (t *Tracker) Get(ctx context.Context, id string) (model.Session, error) {
	fields, err := t.store.HashGetAll(ctx, sessionKey(id))
	if err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	if len(fields) == 0 {
		return model.Session{}, errs.ErrSessionNotFound
	}
	return fromFields(fields), nil
}

// ActiveSessions сканирует все ещё живые сессии.
func (t *Tracker) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	keys, err := kvstore.ScanAll(ctx, t.store, KeyPrefix+"*", scanPageSize)
	if err != nil {
		return nil, fmt.Errorf("active sessions: %w", err)
	}
	sessions := make([]model.Session, 0, len(keys))
	for _, key := range keys {
		if !isSessionKey(key) {
			continue
		}
		fields, err := t.store.HashGetAll(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("active sessions: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		sessions = append(sessions, fromFields(fields))
	}
	return sessions, nil
}

// OnlineUsers возвращает пользователей с активной сессией. Истёкшие
// участники индекса онлайн из него удаляются.
func (t *Tracker) OnlineUsers(ctx context.Context) ([]string, error) {
	sessions, err := t.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	return t.reconcileOnline(ctx, sessions)
}

func (t *Tracker) reconcileOnline(ctx context.Context, sessions []model.Session) ([]string, error) {
	indexed, err := t.store.SetMembers(ctx, OnlineUsersKey)
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	active := make(map[string]struct{}, len(sessions))
	users := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if s.UserID == "" {
			continue
		}
		if _, dup := active[s.UserID]; dup {
			continue
		}
		active[s.UserID] = struct{}{}
		users = append(users, s.UserID)
	}
	var stale []string
	for _, u := range indexed {
		if _, ok := active[u]; !ok {
			stale = append(stale, u)
		}
	}
	if len(stale) > 0 {
		if err := t.store.SetRemove(ctx, OnlineUsersKey, stale...); err != nil {
			return nil, fmt.Errorf("online users: %w", err)
		}
		t.log.Debug("pruned stale online users", zap.Strings("users", stale))
	}
	return users, nil
}

// Summary — сводка: активные сессии, пользователи онлайн, последняя активность.
func (t *Tracker) Summary(ctx context.Context) (model.SessionSummary, error) {
	sessions, err := t.ActiveSessions(ctx)
	if err != nil {
		return model.SessionSummary{}, err
	}
	online, err := t.reconcileOnline(ctx, sessions)
	if err != nil {
		return model.SessionSummary{}, err
	}
	last := make(map[string]int64)
	for _, s := range sessions {
		if s.UserID == "" {
			continue
		}
		if cur, ok := last[s.UserID]; !ok || s.LastActivity > cur {
			last[s.UserID] = s.LastActivity
		}
	}
	return model.SessionSummary{
		TotalActiveSessions: len(sessions),
		OnlineUsers:         online,
		LastActivityPerUser: last,
		Sessions:            sessions,
	}, nil
}

// Leaderboard возвращает лучших по активности, по убыванию.
// Пусто, если рейтинг выключен.
func (t *Tracker) Leaderboard(ctx context.Context, limit int64) ([]model.LeaderboardEntry, error) {
	if !t.scoreEnabled {
		return []model.LeaderboardEntry{}, nil
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	top, err := t.store.SortedTop(ctx, ActivityScoreKey, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]model.LeaderboardEntry, 0, len(top))
	for _, m := range top {
		out = append(out, model.LeaderboardEntry{UserID: m.Member, Score: m.Score})
	}
	return out, nil
}

func toFields(s model.Session) map[string]string {
	return map[string]string{
		"session_id":    s.SessionID,
		"user_id":       s.UserID,
		"login_time":    strconv.FormatInt(s.LoginTime, 10),
		"last_activity": strconv.FormatInt(s.LastActivity, 10),
		"status":        s.Status,
	}
}

// fromFields терпит битые метки времени: они декодируются в ноль.
func fromFields(f map[string]string) model.Session {
	login, _ := strconv.ParseInt(f["login_time"], 10, 64)
	last, _ := strconv.ParseInt(f["last_activity"], 10, 64)
	return model.Session{
		SessionID:    f["session_id"],
		UserID:       f["user_id"],
		LoginTime:    login,
		LastActivity: last,
		Status:       f["status"],
	}
}
