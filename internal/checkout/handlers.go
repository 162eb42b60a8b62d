package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/matomart-api/internal/common"
	"github.com/noah-isme/matomart-api/internal/pricing"
)

// CartReader loads the stored lines of a cart.
type CartReader interface {
	Lines(ctx context.Context, cartID string) ([]pricing.Line, error)
}

// StockInvalidator drops cached stock readings.
type StockInvalidator interface {
	Invalidate(productID string)
}

// Handler exposes order drafts over HTTP. When Stock is set, readings for the
// drafted products are dropped so the next display refetches them.
type Handler struct {
	Svc   *Service
	Carts CartReader
	Stock StockInvalidator
}

// Draft renders the order draft for a cart.
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	cartID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(cartID); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	lines, err := h.Carts.Lines(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	draft, err := h.Svc.Draft(r.Context(), lines)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if h.Stock != nil {
		for _, item := range draft.Items {
			h.Stock.Invalidate(item.ProductID)
		}
	}
	common.Data(w, http.StatusOK, draft)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNothingToCheckout):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOTHING_TO_CHECKOUT", "cart has no sellable items", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.WriteAppError(w, appErr)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to prepare checkout", nil)
	}
}
