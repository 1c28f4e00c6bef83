package handler

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saffron-pos/api/internal/cart"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/saffron-pos/api/internal/register"
	"github.com/saffron-pos/api/internal/service"
	"github.com/saffron-pos/api/internal/split"
	"github.com/saffron-pos/api/internal/status"
	"go.uber.org/zap"
)

// writeServiceError maps domain errors to HTTP responses. Anything it does
// not recognise is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, log *zap.Logger, op string, err error) {
	var rejected *status.RejectedError
	var unknown *status.UnknownStatusError
	var belowMin *promo.BelowMinimumError
	var mismatch *split.MismatchError

	switch {
	case isValidationError(err), errors.As(err, &unknown), errors.As(err, &mismatch):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &rejected), isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, promo.ErrNotFound), errors.As(err, &belowMin),
		errors.Is(err, service.ErrInsufficientCash):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		log.Error(op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidOrderType) ||
		errors.Is(err, service.ErrInvalidSource) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrTableRequired) ||
		errors.Is(err, service.ErrTableNotAllowed) ||
		errors.Is(err, service.ErrDeliveryDetails) ||
		errors.Is(err, service.ErrNegativeDiscount) ||
		errors.Is(err, service.ErrInvalidDiscountSrc) ||
		errors.Is(err, service.ErrInvalidMethod) ||
		errors.Is(err, service.ErrInvalidSplitMode) ||
		errors.Is(err, service.ErrUseAssign) ||
		errors.Is(err, split.ErrInvalidCount) ||
		errors.Is(err, split.ErrNothingToSplit) ||
		errors.Is(err, split.ErrNonPositive) ||
		errors.Is(err, split.ErrTooSmallToSplit) ||
		errors.Is(err, split.ErrUnassignedLine) ||
		errors.Is(err, split.ErrUnknownLine) ||
		errors.Is(err, split.ErrInvalidPayer) ||
		errors.Is(err, split.ErrEmptyShare) ||
		errors.Is(err, register.ErrNegativeDiscount) ||
		errors.Is(err, register.ErrNegativeTendered) ||
		errors.Is(err, register.ErrInvalidOrderType) ||
		errors.Is(err, register.ErrTableNotDineIn) ||
		errors.Is(err, cart.ErrInvalidPrice) ||
		errors.Is(err, cart.ErrInvalidItem) ||
		errors.Is(err, cart.ErrQuantityTooLarge)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrTableNotFound) ||
		errors.Is(err, service.ErrSplitNotFound) ||
		errors.Is(err, service.ErrDeliveryNotFound) ||
		errors.Is(err, service.ErrRiderNotFound) ||
		errors.Is(err, cart.ErrLineNotFound)
}

func isConflictError(err error) bool {
	return errors.Is(err, service.ErrConflict) ||
		errors.Is(err, service.ErrMenuItemSoldOut) ||
		errors.Is(err, service.ErrPendingSplits) ||
		errors.Is(err, service.ErrSplitSettled) ||
		errors.Is(err, service.ErrSplitAfterPayment) ||
		errors.Is(err, service.ErrCancelWithPayments) ||
		errors.Is(err, cart.ErrItemUnavailable)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
