package errs

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidStatus   = errors.New("invalid ticket status")
	// ErrStore — сбой key-value хранилища (недоступно, таймаут, ошибка протокола).
	ErrStore = errors.New("store unavailable")
)
