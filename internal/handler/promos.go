package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PromoHandler exposes the promo table to the register.
type PromoHandler struct {
	resolver *promo.Resolver
	log      *zap.Logger
}

// NewPromoHandler creates a new PromoHandler.
func NewPromoHandler(resolver *promo.Resolver, log *zap.Logger) *PromoHandler {
	return &PromoHandler{resolver: resolver, log: log}
}

// RegisterRoutes registers promo endpoints on the given Chi router.
// Expected to be mounted inside a restaurant-scoped subrouter: /restaurants/{rid}/promos
func (h *PromoHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/validate", h.Validate)
}

type validatePromoRequest struct {
	Code     string `json:"code"`
	Subtotal string `json:"subtotal"`
}

type promoResponse struct {
	Code             string `json:"code"`
	Kind             string `json:"kind"`
	Value            string `json:"value"`
	MinOrderSubtotal string `json:"min_order_subtotal"`
	Description      string `json:"description"`
}

type validatePromoResponse struct {
	Promo          promoResponse `json:"promo"`
	DiscountAmount string        `json:"discount_amount"`
}

// List returns every promo code.
func (h *PromoHandler) List(w http.ResponseWriter, r *http.Request) {
	promos := h.resolver.List()
	resp := make([]promoResponse, len(promos))
	for i, p := range promos {
		resp[i] = toPromoResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Validate checks a code against a subtotal and returns the discount it
// would give. Unknown codes and unmet minimums are 422.
func (h *PromoHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if promo.Normalize(req.Code) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code is required"})
		return
	}

	subtotal, err := decimal.NewFromString(req.Subtotal)
	if err != nil || subtotal.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "subtotal must be a number >= 0"})
		return
	}

	applied, err := h.resolver.Validate(req.Code, subtotal)
	if err != nil {
		writeServiceError(w, h.log, "validate promo", err)
		return
	}

	writeJSON(w, http.StatusOK, validatePromoResponse{
		Promo:          toPromoResponse(applied.Promo),
		DiscountAmount: applied.Amount.StringFixed(2),
	})
}

func toPromoResponse(p promo.Promo) promoResponse {
	return promoResponse{
		Code:             p.Code,
		Kind:             p.Kind,
		Value:            p.Value.String(),
		MinOrderSubtotal: p.MinOrderSubtotal.StringFixed(2),
		Description:      p.Description,
	}
}
