// Package events carries row changes from the API to subscribers: the
// WebSocket hub for connected terminals and, optionally, external brokers.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collections that emit changes.
const (
	CollectionOrders     = "orders"
	CollectionPayments   = "payments"
	CollectionTables     = "dining_tables"
	CollectionMenuItems  = "menu_items"
	CollectionDeliveries = "deliveries"
	CollectionRiders     = "riders"
)

// Change actions.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Change is one inserted, updated or deleted row.
type Change struct {
	Collection   string          `json:"collection"`
	Action       string          `json:"action"`
	RestaurantID uuid.UUID       `json:"restaurant_id"`
	RowID        uuid.UUID       `json:"row_id"`
	TableID      *uuid.UUID      `json:"table_id,omitempty"`
	Record       json.RawMessage `json:"record,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// NewChange builds a Change, encoding record as JSON. A record that cannot be
// encoded is left out.
func NewChange(collection, action string, restaurantID, rowID uuid.UUID, record any) Change {
	c := Change{
		Collection:   collection,
		Action:       action,
		RestaurantID: restaurantID,
		RowID:        rowID,
		OccurredAt:   time.Now().UTC(),
	}
	if record != nil {
		if raw, err := json.Marshal(record); err == nil {
			c.Record = raw
		}
	}
	return c
}

// ForTable scopes the change to a dining table so table-filtered
// subscriptions receive it.
func (c Change) ForTable(tableID uuid.UUID) Change {
	c.TableID = &tableID
	return c
}

// Subject is the broker routing key, e.g. "pos.orders.update".
func (c Change) Subject() string {
	return "pos." + c.Collection + "." + strings.ToLower(c.Action)
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
	Close() error
}

// DefaultPublishTimeout bounds a single publisher's Publish call in Multi.
const DefaultPublishTimeout = 2 * time.Second

// Multi fans a change out to every publisher. Publishing is best effort:
// failures are logged and never returned, so a broker outage cannot fail a
// request that already committed. Each publisher runs on a context detached
// from the caller's cancellation and bounded by Timeout.
type Multi struct {
	publishers []Publisher
	log        *zap.Logger
	Timeout    time.Duration
}

func NewMulti(log *zap.Logger, publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers, log: log, Timeout: DefaultPublishTimeout}
}

func (m *Multi) Publish(ctx context.Context, c Change) error {
	for _, p := range m.publishers {
		if err := m.publishOne(ctx, p, c); err != nil {
			m.log.Warn("publish change",
				zap.String("collection", c.Collection),
				zap.String("action", c.Action),
				zap.Stringer("row_id", c.RowID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (m *Multi) publishOne(ctx context.Context, p Publisher, c Change) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.Timeout)
	defer cancel()
	return p.Publish(ctx, c)
}

func (m *Multi) Close() error {
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			m.log.Warn("close publisher", zap.Error(err))
		}
	}
	return nil
}

// Nop discards every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }
func (Nop) Close() error                          { return nil }
