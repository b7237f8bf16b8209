package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event announces a committed ledger entry to downstream consumers.
type Event struct {
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Kind          Kind            `json:"kind"`
	Direction     Direction       `json:"direction"`
	Amount        decimal.Decimal `json:"amount"`
	CorrelationID *uuid.UUID      `json:"correlation_id,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher ships events after the unit of work that produced them committed.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, ...Event) error { return nil }

func eventsFor(txs ...*Transaction) []Event {
	events := make([]Event, 0, len(txs))
	for _, tx := range txs {
		events = append(events, Event{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Kind:          tx.Kind,
			Direction:     tx.Direction,
			Amount:        tx.Amount,
			CorrelationID: tx.CorrelationID,
			OccurredAt:    tx.CreatedAt,
		})
	}

	return events
}

// publish never fails the caller: the money movement is already committed.
func (s *Service) publish(ctx context.Context, txs ...*Transaction) {
	if len(txs) == 0 {
		return
	}

	if err := s.events.Publish(ctx, eventsFor(txs...)...); err != nil {
		slog.Warn("failed to publish ledger events", "count", len(txs), "error", err)
	}
}
