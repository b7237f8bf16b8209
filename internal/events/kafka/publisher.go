package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bankadmin/ledger/internal/ledger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher ships ledger events to a Kafka topic, keyed by account id so that
// entries of one account stay ordered within a partition.
type Publisher struct {
	writer  messageWriter
	timeout time.Duration
}

var _ ledger.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	})
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w, timeout: 5 * time.Second}
}

// Publish writes events in one batch. It runs detached from ctx cancellation:
// the request that produced the events may already be finishing.
func (p *Publisher) Publish(ctx context.Context, events ...ledger.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))

	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling event %d: %w", e.TransactionID, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.FormatInt(e.AccountID, 10)),
			Value: data,
			Time:  e.OccurredAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d messages: %w", len(msgs), err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
