package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/events"
	"github.com/saffron-pos/api/internal/status"
)

var (
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrRiderNotFound    = errors.New("rider not found")
	ErrUseAssign        = errors.New("assign a rider to dispatch a delivery")
)

// DeliveryStore defines the DB methods needed to move deliveries and riders.
// Satisfied by *database.Queries (and its WithTx variant).
type DeliveryStore interface {
	GetDelivery(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error)
	UpdateDeliveryStatus(ctx context.Context, arg database.UpdateDeliveryStatusParams) (database.Delivery, error)
	DispatchDelivery(ctx context.Context, arg database.DispatchDeliveryParams) (database.Delivery, error)
	GetRider(ctx context.Context, arg database.GetRiderParams) (database.Rider, error)
	UpdateRiderStatus(ctx context.Context, arg database.UpdateRiderStatusParams) (database.Rider, error)
}

// NewDeliveryStore creates a DeliveryStore from a DBTX (pool or tx).
type NewDeliveryStore func(db database.DBTX) DeliveryStore

// DeliveryResult is a delivery and, when it changed too, its rider.
type DeliveryResult struct {
	Delivery database.Delivery
	Rider    *database.Rider
}

// DeliveryService drives the delivery and rider status machines.
type DeliveryService struct {
	pool     TxBeginner
	newStore NewDeliveryStore
	pub      events.Publisher
}

// NewDeliveryService creates a new DeliveryService.
func NewDeliveryService(pool TxBeginner, newStore NewDeliveryStore, pub events.Publisher) *DeliveryService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &DeliveryService{pool: pool, newStore: newStore, pub: pub}
}

// AssignRider dispatches a READY delivery with an ONLINE rider. The delivery
// moves to DISPATCHED and the rider to BUSY together or not at all.
func (s *DeliveryService) AssignRider(ctx context.Context, restaurantID, deliveryID, riderID uuid.UUID) (*DeliveryResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	delivery, err := getDelivery(ctx, store, restaurantID, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := status.Transition(status.Delivery, delivery.Status, enum.DeliveryStatusDispatched); err != nil {
		return nil, err
	}

	rider, err := store.GetRider(ctx, database.GetRiderParams{ID: riderID, RestaurantID: restaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRiderNotFound
		}
		return nil, fmt.Errorf("get rider: %w", err)
	}
	if err := status.Transition(status.Rider, rider.Status, enum.RiderStatusBusy); err != nil {
		return nil, err
	}

	dispatched, err := store.DispatchDelivery(ctx, database.DispatchDeliveryParams{
		RiderID:      pgtype.UUID{Bytes: rider.ID, Valid: true},
		ID:           delivery.ID,
		RestaurantID: restaurantID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("dispatch delivery: %w", err)
	}

	busy, err := store.UpdateRiderStatus(ctx, database.UpdateRiderStatusParams{
		Status:       enum.RiderStatusBusy,
		ID:           rider.ID,
		RestaurantID: restaurantID,
		Status_2:     rider.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update rider status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	result := &DeliveryResult{Delivery: dispatched, Rider: &busy}
	s.publish(ctx, result)
	return result, nil
}

// UpdateStatus moves a delivery one step along its machine. Dispatching goes
// through AssignRider. Delivering frees the rider.
func (s *DeliveryService) UpdateStatus(ctx context.Context, restaurantID, deliveryID uuid.UUID, next string) (*DeliveryResult, error) {
	if next == enum.DeliveryStatusDispatched {
		return nil, ErrUseAssign
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	delivery, err := getDelivery(ctx, store, restaurantID, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := status.Transition(status.Delivery, delivery.Status, next); err != nil {
		return nil, err
	}

	updated, err := store.UpdateDeliveryStatus(ctx, database.UpdateDeliveryStatusParams{
		Status:       next,
		ID:           delivery.ID,
		RestaurantID: restaurantID,
		Status_2:     delivery.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("update delivery status: %w", err)
	}

	result := &DeliveryResult{Delivery: updated}
	if next == enum.DeliveryStatusDelivered && updated.RiderID.Valid {
		rider, err := store.GetRider(ctx, database.GetRiderParams{
			ID:           uuid.UUID(updated.RiderID.Bytes),
			RestaurantID: restaurantID,
		})
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get rider: %w", err)
		}
		if err == nil && rider.Status == enum.RiderStatusBusy {
			freed, err := store.UpdateRiderStatus(ctx, database.UpdateRiderStatusParams{
				Status:       enum.RiderStatusOnline,
				ID:           rider.ID,
				RestaurantID: restaurantID,
				Status_2:     enum.RiderStatusBusy,
			})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, ErrConflict
				}
				return nil, fmt.Errorf("update rider status: %w", err)
			}
			result.Rider = &freed
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.publish(ctx, result)
	return result, nil
}

func (s *DeliveryService) publish(ctx context.Context, r *DeliveryResult) {
	d := r.Delivery
	_ = s.pub.Publish(ctx, events.NewChange(events.CollectionDeliveries, events.ActionUpdate, d.RestaurantID, d.ID, d))
	if r.Rider != nil {
		_ = s.pub.Publish(ctx, events.NewChange(events.CollectionRiders, events.ActionUpdate, r.Rider.RestaurantID, r.Rider.ID, r.Rider))
	}
}

func getDelivery(ctx context.Context, store DeliveryStore, restaurantID, deliveryID uuid.UUID) (database.Delivery, error) {
	d, err := store.GetDelivery(ctx, database.GetDeliveryParams{ID: deliveryID, RestaurantID: restaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Delivery{}, ErrDeliveryNotFound
		}
		return database.Delivery{}, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}
