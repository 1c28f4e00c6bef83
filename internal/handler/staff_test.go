package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saffron-pos/api/internal/database"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/handler"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock store ---

type mockStaffStore struct {
	staff map[uuid.UUID]database.Staff // keyed by staff ID
}

func newMockStaffStore() *mockStaffStore {
	return &mockStaffStore{staff: make(map[uuid.UUID]database.Staff)}
}

func (m *mockStaffStore) ListStaffByRestaurant(_ context.Context, restaurantID uuid.UUID) ([]database.Staff, error) {
	var result []database.Staff
	for _, s := range m.staff {
		if s.RestaurantID == restaurantID && s.IsActive {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockStaffStore) CreateStaff(_ context.Context, arg database.CreateStaffParams) (database.Staff, error) {
	// Simulates the unique email constraint.
	for _, existing := range m.staff {
		if existing.Email == arg.Email && existing.IsActive {
			return database.Staff{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	s := database.Staff{
		ID:             uuid.New(),
		RestaurantID:   arg.RestaurantID,
		Email:          arg.Email,
		HashedPassword: arg.HashedPassword,
		FullName:       arg.FullName,
		Role:           arg.Role,
		Pin:            arg.Pin,
		IsActive:       true,
	}
	m.staff[s.ID] = s
	return s, nil
}

func (m *mockStaffStore) UpdateStaff(_ context.Context, arg database.UpdateStaffParams) (database.Staff, error) {
	s, ok := m.staff[arg.ID]
	if !ok || s.RestaurantID != arg.RestaurantID || !s.IsActive {
		return database.Staff{}, pgx.ErrNoRows
	}
	for _, existing := range m.staff {
		if existing.Email == arg.Email && existing.ID != arg.ID && existing.IsActive {
			return database.Staff{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	s.Email = arg.Email
	s.FullName = arg.FullName
	s.Role = arg.Role
	s.Pin = arg.Pin
	m.staff[s.ID] = s
	return s, nil
}

func (m *mockStaffStore) SoftDeleteStaff(_ context.Context, arg database.SoftDeleteStaffParams) (uuid.UUID, error) {
	s, ok := m.staff[arg.ID]
	if !ok || s.RestaurantID != arg.RestaurantID || !s.IsActive {
		return uuid.Nil, pgx.ErrNoRows
	}
	s.IsActive = false
	m.staff[s.ID] = s
	return s.ID, nil
}

// --- Helpers ---

func setupStaffRouter(store *mockStaffStore) *chi.Mux {
	h := handler.NewStaffHandler(store, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/restaurants/{rid}/staff", h.RegisterRoutes)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeListResponse(t *testing.T, rr *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func seedStaff(store *mockStaffStore, restaurantID uuid.UUID, email, role string) database.Staff {
	s := database.Staff{
		ID: uuid.New(), RestaurantID: restaurantID, Email: email,
		HashedPassword: "$2a$10$somehash", FullName: "Seeded", Role: role, IsActive: true,
	}
	store.staff[s.ID] = s
	return s
}

// --- List tests ---

func TestListStaff_ReturnsRestaurantStaff(t *testing.T) {
	store := newMockStaffStore()
	rid := uuid.New()
	seedStaff(store, rid, "a@test.com", enum.StaffRoleWaiter)
	seedStaff(store, uuid.New(), "b@test.com", enum.StaffRoleManager)

	rr := doRequest(t, setupStaffRouter(store), "GET", "/restaurants/"+rid.String()+"/staff", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != 1 {
		t.Fatalf("expected 1 staff member, got %d", len(resp))
	}
	if resp[0]["email"] != "a@test.com" {
		t.Errorf("expected a@test.com, got %v", resp[0]["email"])
	}
	if _, ok := resp[0]["hashed_password"]; ok {
		t.Error("hashed_password must not be exposed")
	}
}

func TestListStaff_InvalidRestaurantID(t *testing.T) {
	rr := doRequest(t, setupStaffRouter(newMockStaffStore()), "GET", "/restaurants/nope/staff", nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Create tests ---

func TestCreateStaff_Valid(t *testing.T) {
	store := newMockStaffStore()
	rid := uuid.New()

	rr := doRequest(t, setupStaffRouter(store), "POST", "/restaurants/"+rid.String()+"/staff", map[string]string{
		"email":     "waiter@test.com",
		"password":  "secret123",
		"full_name": "Wendy Waiter",
		"role":      "WAITER",
		"pin":       "4321",
	})

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["role"] != "WAITER" {
		t.Errorf("role: got %v, want WAITER", resp["role"])
	}
	if resp["restaurant_id"] != rid.String() {
		t.Errorf("restaurant_id: got %v, want %s", resp["restaurant_id"], rid)
	}

	for _, s := range store.staff {
		if err := bcrypt.CompareHashAndPassword([]byte(s.HashedPassword), []byte("secret123")); err != nil {
			t.Errorf("stored password is not a bcrypt hash of the input: %v", err)
		}
	}
}

func TestCreateStaff_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing password", map[string]string{"email": "a@test.com", "full_name": "A", "role": "CASHIER"}},
		{"bad email", map[string]string{"email": "nope", "password": "p", "full_name": "A", "role": "CASHIER"}},
		{"bad role", map[string]string{"email": "a@test.com", "password": "p", "full_name": "A", "role": "CHEF"}},
		{"short pin", map[string]string{"email": "a@test.com", "password": "p", "full_name": "A", "role": "CASHIER", "pin": "12"}},
		{"non-digit pin", map[string]string{"email": "a@test.com", "password": "p", "full_name": "A", "role": "CASHIER", "pin": "12ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, setupStaffRouter(newMockStaffStore()), "POST", "/restaurants/"+uuid.New().String()+"/staff", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestCreateStaff_DuplicateEmail(t *testing.T) {
	store := newMockStaffStore()
	rid := uuid.New()
	seedStaff(store, rid, "taken@test.com", enum.StaffRoleCashier)

	rr := doRequest(t, setupStaffRouter(store), "POST", "/restaurants/"+rid.String()+"/staff", map[string]string{
		"email": "taken@test.com", "password": "p", "full_name": "Dup", "role": "CASHIER",
	})

	if rr.Code != http.StatusConflict {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

// --- Update tests ---

func TestUpdateStaff_Valid(t *testing.T) {
	store := newMockStaffStore()
	rid := uuid.New()
	s := seedStaff(store, rid, "a@test.com", enum.StaffRoleCashier)

	rr := doRequest(t, setupStaffRouter(store), "PUT", "/restaurants/"+rid.String()+"/staff/"+s.ID.String(), map[string]string{
		"email": "a@test.com", "full_name": "Promoted", "role": "MANAGER",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if store.staff[s.ID].Role != enum.StaffRoleManager {
		t.Errorf("role: got %s, want MANAGER", store.staff[s.ID].Role)
	}
}

func TestUpdateStaff_OtherRestaurant(t *testing.T) {
	store := newMockStaffStore()
	s := seedStaff(store, uuid.New(), "a@test.com", enum.StaffRoleCashier)

	rr := doRequest(t, setupStaffRouter(store), "PUT", "/restaurants/"+uuid.New().String()+"/staff/"+s.ID.String(), map[string]string{
		"email": "a@test.com", "full_name": "X", "role": "CASHIER",
	})

	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// --- Delete tests ---

func TestDeleteStaff_SoftDeletes(t *testing.T) {
	store := newMockStaffStore()
	rid := uuid.New()
	s := seedStaff(store, rid, "a@test.com", enum.StaffRoleCashier)
	router := setupStaffRouter(store)

	rr := doRequest(t, router, "DELETE", "/restaurants/"+rid.String()+"/staff/"+s.ID.String(), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if store.staff[s.ID].IsActive {
		t.Error("expected staff to be inactive")
	}

	rr = doRequest(t, router, "DELETE", "/restaurants/"+rid.String()+"/staff/"+s.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}
