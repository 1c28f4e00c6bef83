package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/events"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, restaurantID uuid.UUID) *Client {
	return &Client{
		hub:          hub,
		restaurantID: restaurantID,
		send:         make(chan []byte, 256),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func receive(t *testing.T, c *Client) events.Change {
	t.Helper()
	select {
	case msg := <-c.send:
		var got events.Change
		if err := json.Unmarshal(msg, &got); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return events.Change{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.send:
		t.Fatal("client should not have received a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)

	restaurantID := uuid.New()
	client := mockClient(hub, restaurantID)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.ClientCount(restaurantID) != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount(restaurantID))
	}
}

func TestHubUnregistrationCleansRoom(t *testing.T) {
	hub := startHub(t)

	restaurantID := uuid.New()
	client1 := mockClient(hub, restaurantID)
	client2 := mockClient(hub, restaurantID)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount(restaurantID) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", hub.ClientCount(restaurantID))
	}

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[restaurantID] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
}

func TestPublishIsolatesRestaurants(t *testing.T) {
	hub := startHub(t)

	r1, r2 := uuid.New(), uuid.New()
	client1 := mockClient(hub, r1)
	client2 := mockClient(hub, r2)
	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	orderID := uuid.New()
	change := events.NewChange(events.CollectionOrders, events.ActionInsert, r1, orderID, map[string]string{"status": "OPEN"})
	if err := hub.Publish(context.Background(), change); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := receive(t, client1)
	if got.Collection != events.CollectionOrders || got.RowID != orderID {
		t.Errorf("unexpected change %+v", got)
	}
	expectNothing(t, client2)
}

func TestPublishRespectsTableFilter(t *testing.T) {
	hub := startHub(t)

	restaurantID := uuid.New()
	tableID := uuid.New()

	all := mockClient(hub, restaurantID)
	scoped := mockClient(hub, restaurantID)
	scoped.tableID = &tableID

	hub.register <- all
	hub.register <- scoped
	time.Sleep(10 * time.Millisecond)

	// Order on another table: only the unfiltered client sees it.
	other := events.NewChange(events.CollectionOrders, events.ActionInsert, restaurantID, uuid.New(), nil).ForTable(uuid.New())
	_ = hub.Publish(context.Background(), other)
	receive(t, all)
	expectNothing(t, scoped)

	// Order on the subscribed table.
	mine := events.NewChange(events.CollectionOrders, events.ActionInsert, restaurantID, uuid.New(), nil).ForTable(tableID)
	_ = hub.Publish(context.Background(), mine)
	receive(t, all)
	if got := receive(t, scoped); got.RowID != mine.RowID {
		t.Errorf("scoped client got %v, want %v", got.RowID, mine.RowID)
	}

	// The table row itself changing status.
	tableRow := events.NewChange(events.CollectionTables, events.ActionUpdate, restaurantID, tableID, nil)
	_ = hub.Publish(context.Background(), tableRow)
	receive(t, all)
	if got := receive(t, scoped); got.Collection != events.CollectionTables {
		t.Errorf("scoped client got collection %q", got.Collection)
	}
}

func TestPublishRespectsCollectionFilter(t *testing.T) {
	hub := startHub(t)

	restaurantID := uuid.New()
	kitchen := mockClient(hub, restaurantID)
	kitchen.collections = map[string]bool{events.CollectionDeliveries: true}
	hub.register <- kitchen
	time.Sleep(10 * time.Millisecond)

	_ = hub.Publish(context.Background(), events.NewChange(events.CollectionOrders, events.ActionInsert, restaurantID, uuid.New(), nil))
	expectNothing(t, kitchen)

	_ = hub.Publish(context.Background(), events.NewChange(events.CollectionDeliveries, events.ActionUpdate, restaurantID, uuid.New(), nil))
	if got := receive(t, kitchen); got.Collection != events.CollectionDeliveries {
		t.Errorf("got collection %q", got.Collection)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	restaurantID := uuid.New()
	client := mockClient(hub, restaurantID)
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	cancel()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatal("expected send channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("send channel was not closed on shutdown")
	}
}
