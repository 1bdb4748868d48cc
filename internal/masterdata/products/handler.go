package products

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/stockpile-wms/stockpile/internal/masterdata/shared"
	"github.com/stockpile-wms/stockpile/internal/platform/httpx"
	internalShared "github.com/stockpile-wms/stockpile/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	r.Get("/variations", h.ListVariations)
	r.Post("/variations", h.CreateVariation)
	r.Get("/variations/{id}", h.ShowVariation)
	r.Put("/variations/{id}", h.UpdateVariation)
	r.Delete("/variations/{id}", h.DeleteVariation)
}

type productRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	BrandID  int64  `json:"brand_id"`
	IsActive bool   `json:"is_active"`
}

type variationRequest struct {
	ProductID int64           `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	IsActive  bool            `json:"is_active"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	result, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       result,
		"pagination": internalShared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, internalShared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	created, err := h.service.Create(r.Context(), Product{Code: req.Code, Name: req.Name, BrandID: req.BrandID, IsActive: req.IsActive})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, internalShared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if err := h.service.Update(r.Context(), id, Product{Code: req.Code, Name: req.Name, BrandID: req.BrandID, IsActive: req.IsActive}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	filters := listFilters(r)
	if productStr := r.URL.Query().Get("product_id"); productStr != "" {
		if productID, err := strconv.ParseInt(productStr, 10, 64); err == nil {
			filters.ProductID = &productID
		}
	}
	result, total, err := h.service.ListVariations(r.Context(), filters)
	if err != nil {
		h.logger.Error("list variations failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       result,
		"pagination": internalShared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) ShowVariation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.GetVariation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) CreateVariation(w http.ResponseWriter, r *http.Request) {
	var req variationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, internalShared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	created, err := h.service.CreateVariation(r.Context(), Variation{ProductID: req.ProductID, SKU: req.SKU, Name: req.Name, Price: req.Price, IsActive: req.IsActive})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req variationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, internalShared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if err := h.service.UpdateVariation(r.Context(), id, Variation{ProductID: req.ProductID, SKU: req.SKU, Name: req.Name, Price: req.Price, IsActive: req.IsActive}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	v, err := h.service.GetVariation(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteVariation(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listFilters(r *http.Request) shared.ListFilters {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = shared.DefaultPage
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = shared.DefaultLimit
	}
	return shared.ListFilters{
		Page:    page,
		Limit:   limit,
		Search:  r.URL.Query().Get("search"),
		SortBy:  r.URL.Query().Get("sort"),
		SortDir: r.URL.Query().Get("dir"),
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, internalShared.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}
