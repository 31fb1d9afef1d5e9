package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// События жизненного цикла очереди.
const (
	EventDayStarted     = "day.started"
	EventDayEnded       = "day.ended"
	EventTicketTaken    = "ticket.taken"
	EventTicketCalled   = "ticket.called"
	EventTicketFinished = "ticket.finished"
)

// EventProducer — интерфейс для отправки событий очереди в Kafka (для подмены в тестах).
type EventProducer interface {
	ProduceEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer пишет события очереди в топик Kafka (best-effort, не блокирует API).
// Ошибки записи только логируются.
type Producer struct {
	writer *kafka.Writer
	topic  string
	log    *zap.Logger
	now    func() time.Time
}

// NewProducer создаёт продюсер. Если brokers пустой или topic пустой — методы no-op.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Producer{log: log, now: time.Now}
	if len(brokers) == 0 || topic == "" {
		return p
	}
	p.topic = topic
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka: write queue events", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return p
}

// Enabled сообщает, уходят ли события в брокер.
func (p *Producer) Enabled() bool {
	return p.writer != nil
}

func (p *Producer) ProduceEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	body, err := encodeEvent(event, p.now(), payload)
	if err != nil {
		p.log.Warn("kafka: marshal queue event", zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event), Value: body}); err != nil {
		p.log.Warn("kafka: write queue event", zap.String("event", event), zap.Error(err))
	}
}

func encodeEvent(event string, at time.Time, payload map[string]interface{}) ([]byte, error) {
	msg := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["event"] = event
	msg["at"] = at.UTC().Format(time.RFC3339Nano)
	return json.Marshal(msg)
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers разбивает строку брокеров "host1:9092,host2:9092" на слайс.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
