package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/low-stock", h.listLowStock)
		r.Get("/{id}", h.getProduct)
		r.Put("/{id}", h.updateProduct)
		r.Delete("/{id}", h.deleteProduct)
		r.Post("/{id}/adjust", h.adjustQuantity)
	})
	r.Route("/purchases", func(r chi.Router) {
		r.Get("/", h.listPurchases)
		r.Post("/", h.recordPurchase)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Post("/", h.recordSale)
	})
	r.Get("/stats", h.stats)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponses(products))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var form productForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	product, err := h.service.CreateProduct(r.Context(), ProductInput{
		Name:         form.Name,
		Category:     form.Category,
		Price:        form.Price,
		Quantity:     form.Quantity,
		ReorderLevel: form.ReorderLevel,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var form productUpdateForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, ProductUpdate{
		Name:         form.Name,
		Category:     form.Category,
		Price:        form.Price,
		ReorderLevel: form.ReorderLevel,
		Quantity:     form.Quantity,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adjustQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var form adjustForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	product, err := h.service.AdjustQuantity(r.Context(), id, form.Delta)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) listLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LowStockProducts(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponses(products))
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListPurchases(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]purchaseResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, purchaseResponse{
			ID:          e.ID,
			ProductID:   e.ProductID,
			ProductName: e.ProductName,
			Quantity:    e.Quantity,
			UnitPrice:   e.UnitPrice,
			PurchasedAt: e.PurchasedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recordPurchase(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeRecordInput(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.RecordPurchase(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchaseResponse{
		ID:          purchase.ID,
		ProductID:   purchase.ProductID,
		Quantity:    purchase.Quantity,
		UnitPrice:   purchase.UnitPrice,
		PurchasedAt: purchase.PurchasedAt,
	})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListSales(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]saleResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, saleResponse{
			ID:          e.ID,
			ProductID:   e.ProductID,
			ProductName: e.ProductName,
			Quantity:    e.Quantity,
			UnitPrice:   e.UnitPrice,
			SoldAt:      e.SoldAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeRecordInput(w, r)
	if !ok {
		return
	}
	sale, err := h.service.RecordSale(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{
		ID:        sale.ID,
		ProductID: sale.ProductID,
		Quantity:  sale.Quantity,
		UnitPrice: sale.UnitPrice,
		SoldAt:    sale.SoldAt,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStatsResponse(stats))
}

func (h *Handler) decodeRecordInput(w http.ResponseWriter, r *http.Request) (RecordInput, bool) {
	var form recordForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return RecordInput{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", validationDetail(err))
		return RecordInput{}, false
	}
	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		if _, err := uuid.Parse(key); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Idempotency-Key must be a UUID")
			return RecordInput{}, false
		}
	}
	return RecordInput{
		ProductID:      form.ProductID,
		Quantity:       form.Quantity,
		UnitPrice:      form.UnitPrice,
		IdempotencyKey: key,
	}, true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, false
	}
	// Ids start at 1, so a non-positive id can never name a product.
	if id <= 0 {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "product not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusBadRequest, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error("ledger request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func validationDetail(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("field %s failed on %s", fe.Field(), fe.Tag())
	}
	return err.Error()
}
