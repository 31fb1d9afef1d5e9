package model

import (
	"strconv"
	"time"
)

type TicketStatus string

const (
	TicketStatusWaiting    TicketStatus = "waiting"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusCompleted  TicketStatus = "completed"
)

// Valid сообщает, является ли s известным статусом тикета.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusWaiting, TicketStatusInProgress, TicketStatusCompleted:
		return true
	}
	return false
}

// Поля hash-записи тикета.
const (
	FieldNumber       = "ticket_number"
	FieldCreationTime = "creation_time"
	FieldCreationISO  = "creation_time_iso"
	FieldServiceType  = "service_type"
	FieldStatus       = "status"
)

// Ticket — запись тикета в рамках дня. Number, CreationTime и ServiceType
// после выдачи не меняются.
type Ticket struct {
	Number          int64        `json:"ticket_number"`
	CreationTime    float64      `json:"creation_time"`
	CreationTimeISO string       `json:"creation_time_iso,omitempty"`
	ServiceType     string       `json:"service_type,omitempty"`
	Status          TicketStatus `json:"status"`
}

// NewTicket создаёт тикет в статусе waiting на момент at.
func NewTicket(number int64, createdAt time.Time, serviceType string) Ticket {
	createdAt = createdAt.UTC()
	return Ticket{
		Number:          number,
		CreationTime:    float64(createdAt.UnixNano()) / float64(time.Second),
		CreationTimeISO: createdAt.Format(time.RFC3339Nano),
		ServiceType:     serviceType,
		Status:          TicketStatusWaiting,
	}
}

// Fields раскладывает тикет в поля hash.
func (t Ticket) Fields() map[string]string {
	return map[string]string{
		FieldNumber:       strconv.FormatInt(t.Number, 10),
		FieldCreationTime: strconv.FormatFloat(t.CreationTime, 'f', -1, 64),
		FieldCreationISO:  t.CreationTimeISO,
		FieldServiceType:  t.ServiceType,
		FieldStatus:       string(t.Status),
	}
}

// TicketFromFields декодирует hash тикета. Битые поля остаются нулевыми;
// второй результат false, если creation_time не распарсился.
// fallback подставляется, когда ticket_number отсутствует или нечитаем.
func TicketFromFields(fallback int64, fields map[string]string) (Ticket, bool) {
	t := Ticket{
		Number:          fallback,
		CreationTimeISO: fields[FieldCreationISO],
		ServiceType:     fields[FieldServiceType],
		Status:          TicketStatus(fields[FieldStatus]),
	}
	if n, err := strconv.ParseInt(fields[FieldNumber], 10, 64); err == nil {
		t.Number = n
	}
	ct, err := strconv.ParseFloat(fields[FieldCreationTime], 64)
	if err != nil {
		return t, false
	}
	t.CreationTime = ct
	return t, true
}

// LogEntry — одна строка журнала активности дня.
type LogEntry struct {
	At      string `json:"at"`
	Message string `json:"message"`
}

// Session — отслеживаемая сессия пользователя.
type Session struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	LoginTime    int64  `json:"login_time"`
	LastActivity int64  `json:"last_activity"`
	Status       string `json:"status"`
}
