package handler_test

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/handler"
	"github.com/saffron-pos/api/internal/promo"
	"go.uber.org/zap"
)

func setupPromoRouter() *chi.Mux {
	h := handler.NewPromoHandler(promo.NewResolver(promo.DefaultPromos), zap.NewNop())
	r := chi.NewRouter()
	r.Route("/restaurants/{rid}/promos", h.RegisterRoutes)
	return r
}

func TestListPromos(t *testing.T) {
	router := setupPromoRouter()

	rr := doRequest(t, router, "GET", "/restaurants/"+uuid.NewString()+"/promos", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeListResponse(t, rr)
	if len(resp) != len(promo.DefaultPromos) {
		t.Fatalf("expected %d promos, got %d", len(promo.DefaultPromos), len(resp))
	}
	if resp[0]["code"] != "FEAST15" {
		t.Errorf("expected promos sorted by code, first was %v", resp[0]["code"])
	}
}

func TestValidatePromo(t *testing.T) {
	path := "/restaurants/" + uuid.NewString() + "/promos/validate"

	tests := []struct {
		name     string
		code     string
		subtotal string
		want     int
		discount string
	}{
		{"percentage", "welcome20", "1980", http.StatusOK, "396.00"},
		{"fixed", " FLAT100 ", "900", http.StatusOK, "100.00"},
		{"fixed clamped to subtotal", "TEAM50", "30", http.StatusOK, "30.00"},
		{"below minimum", "FEAST15", "1000", http.StatusUnprocessableEntity, ""},
		{"unknown code", "FREEFOOD", "1000", http.StatusUnprocessableEntity, ""},
		{"blank code", "  ", "1000", http.StatusBadRequest, ""},
		{"bad subtotal", "TEAM50", "abc", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, setupPromoRouter(), "POST", path,
				map[string]string{"code": tt.code, "subtotal": tt.subtotal})
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
			resp := decodeResponse(t, rr)
			if tt.want == http.StatusOK && resp["discount_amount"] != tt.discount {
				t.Errorf("expected discount %s, got %v", tt.discount, resp["discount_amount"])
			}
			if tt.want != http.StatusOK && resp["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
}
