package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/status"
)

// --- Test helpers ---

func newTestDelivery(store *mockStore) (*DeliveryService, *mockTx, *recordingPublisher) {
	tx := &mockTx{}
	pub := &recordingPublisher{}
	svc := NewDeliveryService(&mockTxBeginner{tx: tx}, func(db database.DBTX) DeliveryStore { return store }, pub)
	return svc, tx, pub
}

// deliveryStore keeps one delivery and one rider in memory and applies the
// conditional updates the way the queries do.
func deliveryStore(d *database.Delivery, r *database.Rider) *mockStore {
	return &mockStore{
		getDeliveryFn: func(ctx context.Context, arg database.GetDeliveryParams) (database.Delivery, error) {
			if arg.ID == d.ID && arg.RestaurantID == d.RestaurantID {
				return *d, nil
			}
			return database.Delivery{}, pgx.ErrNoRows
		},
		updateDeliveryStatusFn: func(ctx context.Context, arg database.UpdateDeliveryStatusParams) (database.Delivery, error) {
			if arg.Status_2 != d.Status {
				return database.Delivery{}, pgx.ErrNoRows
			}
			d.Status = arg.Status
			return *d, nil
		},
		dispatchDeliveryFn: func(ctx context.Context, arg database.DispatchDeliveryParams) (database.Delivery, error) {
			if d.Status != enum.DeliveryStatusReady {
				return database.Delivery{}, pgx.ErrNoRows
			}
			d.Status = enum.DeliveryStatusDispatched
			d.RiderID = arg.RiderID
			return *d, nil
		},
		getRiderFn: func(ctx context.Context, arg database.GetRiderParams) (database.Rider, error) {
			if r != nil && arg.ID == r.ID && arg.RestaurantID == r.RestaurantID {
				return *r, nil
			}
			return database.Rider{}, pgx.ErrNoRows
		},
		updateRiderStatusFn: func(ctx context.Context, arg database.UpdateRiderStatusParams) (database.Rider, error) {
			if arg.Status_2 != r.Status {
				return database.Rider{}, pgx.ErrNoRows
			}
			r.Status = arg.Status
			return *r, nil
		},
	}
}

func fixtures(deliveryStatus, riderStatus string) (*database.Delivery, *database.Rider) {
	restaurantID := uuid.New()
	d := &database.Delivery{
		ID:            uuid.New(),
		RestaurantID:  restaurantID,
		OrderID:       uuid.New(),
		Status:        deliveryStatus,
		Address:       "12 Ngong Rd",
		CustomerName:  "Wanjiru",
		CustomerPhone: "0712345678",
	}
	r := &database.Rider{ID: uuid.New(), RestaurantID: restaurantID, Name: "Otieno", Phone: "0700000001", Status: riderStatus}
	return d, r
}

// =====================
// AssignRider
// =====================

func TestAssignRider_DispatchesAndMarksRiderBusy(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusReady, enum.RiderStatusOnline)
	svc, tx, pub := newTestDelivery(deliveryStore(d, r))

	result, err := svc.AssignRider(context.Background(), d.RestaurantID, d.ID, r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed {
		t.Error("expected commit")
	}
	if result.Delivery.Status != enum.DeliveryStatusDispatched {
		t.Errorf("expected DISPATCHED, got %s", result.Delivery.Status)
	}
	if !result.Delivery.RiderID.Valid || uuid.UUID(result.Delivery.RiderID.Bytes) != r.ID {
		t.Errorf("expected rider %s assigned", r.ID)
	}
	if result.Rider == nil || result.Rider.Status != enum.RiderStatusBusy {
		t.Errorf("expected BUSY rider, got %+v", result.Rider)
	}
	if len(pub.changes) != 2 {
		t.Errorf("expected delivery + rider changes, got %v", pub.collections())
	}
}

func TestAssignRider_Rejections(t *testing.T) {
	tests := []struct {
		name           string
		deliveryStatus string
		riderStatus    string
	}{
		{"delivery still preparing", enum.DeliveryStatusPreparing, enum.RiderStatusOnline},
		{"delivery already dispatched", enum.DeliveryStatusDispatched, enum.RiderStatusOnline},
		{"rider busy", enum.DeliveryStatusReady, enum.RiderStatusBusy},
		{"rider offline", enum.DeliveryStatusReady, enum.RiderStatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, r := fixtures(tt.deliveryStatus, tt.riderStatus)
			store := deliveryStore(d, r)
			store.dispatchDeliveryFn = func(ctx context.Context, arg database.DispatchDeliveryParams) (database.Delivery, error) {
				t.Fatal("dispatch must not run for a rejected transition")
				return database.Delivery{}, nil
			}
			svc, tx, _ := newTestDelivery(store)

			_, err := svc.AssignRider(context.Background(), d.RestaurantID, d.ID, r.ID)
			var rejected *status.RejectedError
			if !errors.As(err, &rejected) {
				t.Fatalf("expected RejectedError, got: %v", err)
			}
			if tx.committed {
				t.Error("transaction must not commit")
			}
		})
	}
}

func TestAssignRider_NotFound(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusReady, enum.RiderStatusOnline)
	svc, _, _ := newTestDelivery(deliveryStore(d, r))

	_, err := svc.AssignRider(context.Background(), d.RestaurantID, uuid.New(), r.ID)
	if !errors.Is(err, ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got: %v", err)
	}
	_, err = svc.AssignRider(context.Background(), d.RestaurantID, d.ID, uuid.New())
	if !errors.Is(err, ErrRiderNotFound) {
		t.Fatalf("expected ErrRiderNotFound, got: %v", err)
	}
}

func TestAssignRider_RiderTakenConcurrently(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusReady, enum.RiderStatusOnline)
	store := deliveryStore(d, r)
	store.updateRiderStatusFn = func(ctx context.Context, arg database.UpdateRiderStatusParams) (database.Rider, error) {
		return database.Rider{}, pgx.ErrNoRows
	}
	svc, tx, pub := newTestDelivery(store)

	_, err := svc.AssignRider(context.Background(), d.RestaurantID, d.ID, r.ID)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got: %v", err)
	}
	if tx.committed {
		t.Error("dispatch must roll back when the rider is lost")
	}
	if len(pub.changes) != 0 {
		t.Errorf("expected nothing published, got %v", pub.collections())
	}
}

// =====================
// UpdateStatus
// =====================

func TestUpdateDeliveryStatus_Forward(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusNew, enum.RiderStatusOnline)
	svc, _, _ := newTestDelivery(deliveryStore(d, r))

	for _, next := range []string{enum.DeliveryStatusConfirmed, enum.DeliveryStatusPreparing, enum.DeliveryStatusReady} {
		result, err := svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, next)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", next, err)
		}
		if result.Delivery.Status != next {
			t.Errorf("expected %s, got %s", next, result.Delivery.Status)
		}
	}
}

func TestUpdateDeliveryStatus_SkipRejected(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusNew, enum.RiderStatusOnline)
	svc, _, _ := newTestDelivery(deliveryStore(d, r))

	_, err := svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, enum.DeliveryStatusReady)
	var rejected *status.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got: %v", err)
	}
	if rejected.From != enum.DeliveryStatusNew || rejected.To != enum.DeliveryStatusReady {
		t.Errorf("unexpected rejection: %+v", rejected)
	}
}

func TestUpdateDeliveryStatus_DispatchNeedsRider(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusReady, enum.RiderStatusOnline)
	svc, _, _ := newTestDelivery(deliveryStore(d, r))

	_, err := svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, enum.DeliveryStatusDispatched)
	if !errors.Is(err, ErrUseAssign) {
		t.Fatalf("expected ErrUseAssign, got: %v", err)
	}
}

func TestUpdateDeliveryStatus_DeliveredFreesRider(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusDispatched, enum.RiderStatusBusy)
	d.RiderID = pgtype.UUID{Bytes: r.ID, Valid: true}
	svc, _, pub := newTestDelivery(deliveryStore(d, r))

	result, err := svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, enum.DeliveryStatusDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Delivery.Status != enum.DeliveryStatusDelivered {
		t.Errorf("expected DELIVERED, got %s", result.Delivery.Status)
	}
	if result.Rider == nil || result.Rider.Status != enum.RiderStatusOnline {
		t.Errorf("expected rider back ONLINE, got %+v", result.Rider)
	}
	if len(pub.changes) != 2 {
		t.Errorf("expected delivery + rider changes, got %v", pub.collections())
	}
}

func TestUpdateDeliveryStatus_Cancel(t *testing.T) {
	d, r := fixtures(enum.DeliveryStatusReady, enum.RiderStatusOnline)
	svc, _, _ := newTestDelivery(deliveryStore(d, r))

	result, err := svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, enum.DeliveryStatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Delivery.Status != enum.DeliveryStatusCancelled {
		t.Errorf("expected CANCELLED, got %s", result.Delivery.Status)
	}

	_, err = svc.UpdateStatus(context.Background(), d.RestaurantID, d.ID, enum.DeliveryStatusConfirmed)
	var rejected *status.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("cancelled delivery must be terminal, got: %v", err)
	}
}
