package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicketFieldsRoundTrip(t *testing.T) {
	created := time.Date(2026, 10, 16, 8, 15, 30, 500_000_000, time.UTC)
	in := NewTicket(12, created, "poste")

	out, ok := TicketFromFields(0, in.Fields())
	assert.True(t, ok)
	assert.Equal(t, in, out)
	assert.Equal(t, "2026-10-16T08:15:30.5Z", out.CreationTimeISO)
}

func TestTicketFromMalformedFields(t *testing.T) {
	out, ok := TicketFromFields(7, map[string]string{
		FieldNumber:       "seven",
		FieldCreationTime: "yesterday",
		FieldStatus:       "waiting",
	})
	assert.False(t, ok)
	assert.Equal(t, int64(7), out.Number)
	assert.Zero(t, out.CreationTime)
	assert.Equal(t, TicketStatusWaiting, out.Status)
}

func TestTicketStatusValid(t *testing.T) {
	assert.True(t, TicketStatusInProgress.Valid())
	assert.False(t, TicketStatus("cancelled").Valid())
}
