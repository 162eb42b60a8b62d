package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/matomart-api/internal/common"
	"github.com/noah-isme/matomart-api/internal/pricing"
)

// StockReader serves cached stock counts.
type StockReader interface {
	Get(ctx context.Context, productID string) (int, error)
}

// DiscountSource loads active discount rows by product id.
type DiscountSource interface {
	ActiveDiscounts(ctx context.Context, productIDs []string) ([]pricing.Discount, error)
}

// Handler exposes product lookups used by the product page.
type Handler struct {
	Stock     StockReader
	Products  ProductSource
	Discounts DiscountSource
}

// StockView is the public stock payload.
type StockView struct {
	ProductID string `json:"productId"`
	Stock     int    `json:"stock"`
	InStock   bool   `json:"inStock"`
}

// PriceView pairs the normalised pricing configuration with a line quote.
type PriceView struct {
	Config pricing.Config    `json:"config"`
	Quote  pricing.LineQuote `json:"quote"`
}

// ProductStock handles GET /api/v1/products/{id}/stock.
func (h *Handler) ProductStock(w http.ResponseWriter, r *http.Request) {
	if h.Stock == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "stock reader not configured", nil)
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	qty, err := h.Stock.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, StockView{ProductID: id, Stock: qty, InStock: qty > 0})
}

// ProductPrice handles GET /api/v1/products/{id}/price?qty=. A missing qty
// prices the minimum order.
func (h *Handler) ProductPrice(w http.ResponseWriter, r *http.Request) {
	if h.Products == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog not configured", nil)
		return
	}
	id, ok := productID(w, r)
	if !ok {
		return
	}
	var qty float64
	if raw := strings.TrimSpace(r.URL.Query().Get("qty")); raw != "" {
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			h.writeError(w, badRequest("qty", "qty must be a number", err))
			return
		}
		qty = v
	}

	rows, err := h.Products.ProductsByIDs(r.Context(), []string{id})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(rows) == 0 {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "product not found", nil)
		return
	}
	p := rows[0]
	if !p.IsOnline {
		common.JSONError(w, http.StatusConflict, "PRODUCT_UNAVAILABLE", "product is not available online", nil)
		return
	}

	var disc *pricing.Discount
	if h.Discounts != nil {
		if ds, err := h.Discounts.ActiveDiscounts(r.Context(), []string{id}); err == nil {
			if d, ok := pricing.WinningDiscounts(ds)[id]; ok {
				disc = &d
			}
		}
	}
	common.Data(w, http.StatusOK, PriceView{
		Config: p.Config(),
		Quote:  pricing.QuoteLine(p, disc, qty),
	})
}

func productID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return "", false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		message := appErr.Message
		if message == "" {
			message = "internal error"
		}
		var details any
		if appErr.Details != nil {
			details = appErr.Details
		}
		if appErr.Err != nil {
			var numErr *strconv.NumError
			if errors.As(appErr.Err, &numErr) {
				details = map[string]any{"field": "qty", "value": numErr.Num}
			}
		}
		common.JSONError(w, status, code, message, details)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "request cancelled", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}

func badRequest(field, message string, err error) *common.AppError {
	return common.NewAppError("BAD_REQUEST", message, http.StatusBadRequest, err).
		WithDetails(map[string]any{"field": field})
}
