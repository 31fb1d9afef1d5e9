package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}

func TestNoopProducer(t *testing.T) {
	p := NewProducer(nil, "events", nil)
	assert.False(t, p.Enabled())
	p.ProduceEvent(context.Background(), EventTicketTaken, map[string]interface{}{"ticket_number": 1})
	assert.NoError(t, p.Close())

	p = NewProducer([]string{"localhost:9092"}, "", nil)
	assert.False(t, p.Enabled())
}

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	body, err := encodeEvent(EventTicketCalled, at, map[string]interface{}{
		"ticket_number": 7,
		"event":         "ignored",
	})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ticket.called", got["event"])
	assert.Equal(t, "2026-10-16T09:30:00Z", got["at"])
	assert.Equal(t, 7.0, got["ticket_number"])
}
