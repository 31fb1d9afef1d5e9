package model

// DayResult — ответ start-day и end-day.
type DayResult struct {
	Day   string `json:"day"`
	Ended bool   `json:"ended,omitempty"`
	Open  bool   `json:"open"`
}

// TakeResult — либо признак закрытого дня, либо выданный тикет.
type TakeResult struct {
	Closed        bool    `json:"closed,omitempty"`
	Message       string  `json:"message,omitempty"`
	Day           string  `json:"day,omitempty"`
	Ticket        *Ticket `json:"ticket,omitempty"`
	WaitingBefore int64   `json:"waiting_before"`
}

// CallNextResult — тикет, ставший текущим. При пустой очереди только message.
type CallNextResult struct {
	Called         bool   `json:"-"`
	Message        string `json:"message,omitempty"`
	CurrentTicket  *int64 `json:"current_ticket"`
	WaitingTickets *int64 `json:"waiting_tickets,omitempty"`
}

// FinishResult — завершённый тикет, если он был.
type FinishResult struct {
	Finished       bool   `json:"-"`
	Message        string `json:"message,omitempty"`
	FinishedTicket *int64 `json:"finished_ticket,omitempty"`
}

// Status — агрегированное состояние дня.
type Status struct {
	Day            string `json:"day"`
	Open           bool   `json:"open"`
	QueueLength    int64  `json:"queue_length"`
	CurrentTicket  *int64 `json:"current_ticket"`
	NextTicket     *int64 `json:"next_ticket"`
	WaitingTickets int64  `json:"waiting_tickets"`
}

// Snapshot — модель чтения для дашборда. К моменту чтения может устареть.
type Snapshot struct {
	Status
	CurrentTicketData *Ticket    `json:"current_ticket_data"`
	WaitingList       []Ticket   `json:"waiting_list"`
	Logs              []LogEntry `json:"logs"`
	TotalTickets      int64      `json:"total_tickets"`
	AvgWaitSeconds    *float64   `json:"avg_wait_seconds"`
	KeyCount          int        `json:"key_count"`
	HashCount         int        `json:"hash_count"`
	TTLSeconds        *int64     `json:"ttl_seconds"`
}

// SessionSummary — сводка по активным сессиям.
type SessionSummary struct {
	TotalActiveSessions int              `json:"total_active_sessions"`
	OnlineUsers         []string         `json:"online_users"`
	LastActivityPerUser map[string]int64 `json:"last_activity_per_user"`
	Sessions            []Session        `json:"sessions"`
}

// LeaderboardEntry — строка рейтинга активности.
type LeaderboardEntry struct {
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
}
