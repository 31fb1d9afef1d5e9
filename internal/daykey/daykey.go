// Package daykey вычисляет текущий день очереди и пространство ключей этого дня.
package daykey

import (
	"strconv"
	"time"
)

const (
	DayLayout     = "2006-01-02"
	DefaultMinTTL = time.Hour
	DefaultPrefix = "tickets"
)

// Context — вычисленный день: идентификатор, TTL ключей дня и момент вычисления.
type Context struct {
	Day string
	TTL time.Duration
	Now time.Time
}

// TTLSeconds возвращает TTL в целых секундах.
func (c Context) TTLSeconds() int64 {
	return int64(c.TTL / time.Second)
}

// Keys — пространство ключей одного дня.
type Keys struct {
	Base         string
	Marker       string
	Counter      string
	Queue        string
	Current      string
	TicketPrefix string
	Logs         string
}

// Ticket возвращает ключ записи тикета n.
func (k Keys) Ticket(n int64) string {
	return k.TicketPrefix + ":" + strconv.FormatInt(n, 10)
}

// TicketPattern — шаблон ключей всех тикетов дня.
func (k Keys) TicketPattern() string {
	return k.TicketPrefix + ":*"
}

// NamespacePattern — шаблон всех ключей дня.
func (k Keys) NamespacePattern() string {
	return k.Base + "*"
}

// Resolver сопоставляет время дню. Часы подменяются через WithClock.
type Resolver struct {
	prefix string
	minTTL time.Duration
	now    func() time.Time
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithMinTTL(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.minTTL = d
		}
	}
}

func WithPrefix(p string) Option {
	return func(r *Resolver) {
		if p != "" {
			r.prefix = p
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{prefix: DefaultPrefix, minTTL: DefaultMinTTL, now: time.Now}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Now возвращает текущий момент в UTC.
func (r *Resolver) Now() time.Time {
	return r.now().UTC()
}

// Resolve возвращает день текущего момента.
func (r *Resolver) Resolve() Context {
	return r.At(r.Now())
}

// At возвращает день для t: дата по UTC и целые секунды до следующей
// полуночи UTC, но не меньше минимального TTL.
func (r *Resolver) At(t time.Time) Context {
	t = t.UTC()
	y, m, d := t.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
	ttl := next.Sub(t).Truncate(time.Second)
	if ttl < r.minTTL {
		ttl = r.minTTL
	}
	return Context{Day: t.Format(DayLayout), TTL: ttl, Now: t}
}

// KeysFor строит пространство ключей дня.
func (r *Resolver) KeysFor(day string) Keys {
	base := r.prefix + ":" + day
	return Keys{
		Base:         base,
		Marker:       base + ":day",
		Counter:      base + ":counter",
		Queue:        base + ":queue",
		Current:      base + ":current",
		TicketPrefix: base + ":ticket",
		Logs:         base + ":logs",
	}
}
