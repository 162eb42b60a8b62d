package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/matomart-api/internal/checkout"
	"github.com/noah-isme/matomart-api/internal/common"
	"github.com/noah-isme/matomart-api/internal/pricing"
)

// Quoter prices cart lines for display.
type Quoter interface {
	Quote(ctx context.Context, lines []pricing.Line) checkout.Quote
}

// Handler wires cart services to HTTP.
type Handler struct {
	Svc        *Service
	Quotes     Quoter
	Reconciler *Reconciler
	Validate   *validator.Validate
	Now        func() time.Time
}

type addItemRequest struct {
	ProductID string   `json:"productId" validate:"required,uuid"`
	Qty       *float64 `json:"qty" validate:"omitempty,gt=0"`
}

type updateItemRequest struct {
	Qty *float64 `json:"qty" validate:"required"`
}

type cartView struct {
	ID    string          `json:"id"`
	Items []pricing.Line  `json:"items"`
	Quote *checkout.Quote `json:"quote,omitempty"`
}

// Create issues a new cart identifier. Carts are stored lazily on first add.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusCreated, map[string]string{"cartId": uuid.NewString()})
}

// Get returns cart contents priced against current catalog data.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	lines, err := h.Svc.Lines(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, cartID, lines)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), cartID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds a product or grows its line.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	lines, err := h.Svc.Add(r.Context(), cartID, payload.ProductID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, cartID, lines)
}

// UpdateItem sets the quantity of a line; zero removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if !h.decode(w, r, &payload) {
		return
	}
	lines, err := h.Svc.SetQty(r.Context(), cartID, productID, *payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, cartID, lines)
}

// RemoveItem drops a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	lines, err := h.Svc.Remove(r.Context(), cartID, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.render(w, r, http.StatusOK, cartID, lines)
}

// Reconcile checks the cart against fresh stock and reports corrections.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	cartID, ok := h.cartID(w, r)
	if !ok {
		return
	}
	if h.Reconciler == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "reconciler not configured", nil)
		return
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	corrections, err := h.Reconciler.Reconcile(r.Context(), cartID, now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	lines, err := h.Svc.Lines(r.Context(), cartID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if corrections == nil {
		corrections = []Correction{}
	}
	common.Data(w, http.StatusOK, map[string]any{
		"corrections": corrections,
		"cart":        h.view(r.Context(), cartID, lines),
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, cartID string, lines []pricing.Line) {
	common.Data(w, status, h.view(r.Context(), cartID, lines))
}

func (h *Handler) view(ctx context.Context, cartID string, lines []pricing.Line) cartView {
	if lines == nil {
		lines = []pricing.Line{}
	}
	v := cartView{ID: cartID, Items: lines}
	if h.Quotes != nil {
		q := h.Quotes.Quote(ctx, lines)
		v.Quote = &q
	}
	return v
}

func (h *Handler) cartID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return "", false
	}
	return id, true
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "productId")
	if _, err := uuid.Parse(id); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return "", false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	v := h.Validate
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		details := map[string]string{}
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", details)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product not found", nil)
	case errors.Is(err, ErrProductOffline):
		common.JSONError(w, http.StatusConflict, "PRODUCT_UNAVAILABLE", "product is not available online", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid input", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "request cancelled", nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			common.WriteAppError(w, appErr)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update cart", nil)
	}
}
