package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockpile-wms/stockpile/internal/platform/cache"
	"github.com/stockpile-wms/stockpile/internal/platform/httpx"
	"github.com/stockpile-wms/stockpile/internal/shared"
)

// MovementObserver counts movement outcomes for metrics.
type MovementObserver interface {
	ObserveMovement(movementType, outcome string)
}

// Handler wires HTTP endpoints for the ledger module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	query    *QueryService
	validate *validator.Validate
	observer MovementObserver
	cache    *redis.Client
}

// NewHandler constructs the ledger handler. The cache client is optional;
// without it the low-stock endpoint reports the snapshot as unavailable.
func NewHandler(logger *slog.Logger, service *Service, query *QueryService, observer MovementObserver, cacheClient *redis.Client) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		query:    query,
		validate: validator.New(),
		observer: observer,
		cache:    cacheClient,
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.handleList)
	r.Post("/movements/grn", h.handleCreateGRN)
	r.Post("/movements/gin", h.handleCreateGIN)
	r.Post("/movements/returns", h.handleCreateReturn)
	r.Get("/movements/{id}", h.handleGet)
	r.Patch("/movements/{id}", h.handleUpdate)
	r.Delete("/movements/{id}", h.handleDelete)
	r.Post("/movements/{id}/transition", h.handleTransition)
	r.Get("/stock", h.handleStock)
	r.Get("/stock/low-stock", h.handleLowStock)
	r.Get("/stock/{variationID}/bin-card", h.handleBinCard)
}

type lineRequest struct {
	VariationID int64           `json:"variation_id" validate:"required,gt=0"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	Remarks     string          `json:"remarks"`
}

type createMovementRequest struct {
	RefNo      string        `json:"ref_no"`
	SupplierID int64         `json:"supplier_id"`
	IssuedTo   string        `json:"issued_to"`
	TxDate     string        `json:"tx_date"`
	Reason     string        `json:"reason"`
	Remarks    string        `json:"remarks"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type updateMovementRequest struct {
	SupplierID *int64         `json:"supplier_id"`
	IssuedTo   *string        `json:"issued_to"`
	TxDate     *string        `json:"tx_date"`
	Reason     *string        `json:"reason"`
	Remarks    *string        `json:"remarks"`
	Status     *string        `json:"status"`
	Lines      *[]lineRequest `json:"lines"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleCreateGRN(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, MovementGRN, h.service.CreateGRN)
}

func (h *Handler) handleCreateGIN(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, MovementGIN, h.service.CreateGIN)
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, MovementReturn, h.service.CreateReturn)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, typ MovementType, op func(ctx context.Context, input CreateMovementInput) (MovementResult, error)) {
	var req createMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, firstValidationError(err))
		return
	}
	input, err := req.toInput(shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := op(r.Context(), input)
	h.observe(typ, err)
	if err != nil {
		h.logger.Error("create movement failed",
			slog.String("type", string(typ)),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement posted",
		slog.String("type", string(typ)),
		slog.String("ref_no", result.Header.RefNo),
		slog.Int("lines", len(result.Lines)))
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.query.GetMovementDetail(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	patch, err := req.toPatch(shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.UpdateMovement(r.Context(), id, patch)
	if err != nil {
		h.logger.Error("update movement failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteMovement(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("delete movement failed", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("movement deleted", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, firstValidationError(err))
		return
	}
	updated, err := h.service.TransitionReturn(r.Context(), id, MovementStatus(req.Status), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		Type:    MovementType(q.Get("type")),
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	filter.SupplierID, _ = strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.RespondError(w, shared.ValidationError{Field: "from", Reason: "expected YYYY-MM-DD"})
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.RespondError(w, shared.ValidationError{Field: "to", Reason: "expected YYYY-MM-DD"})
			return
		}
		// end of day
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	rows, paging, err := h.query.ListMovements(r.Context(), filter)
	if err != nil {
		h.logger.Error("list movements failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": paging})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockFilter{
		Search:       q.Get("search"),
		BelowReorder: q.Get("below_reorder") == "true",
		SortBy:       q.Get("sort"),
		SortDir:      q.Get("dir"),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	rows, paging, err := h.query.StockOverview(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock overview failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "pagination": paging})
}

// handleLowStock serves the snapshot the reorder scan job publishes. The
// snapshot is eventually consistent with the stock table, bounded by the
// scan cadence and the cache TTL.
func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Snapshot Unavailable", "low stock snapshot cache is not configured", shared.CodeInternal)
		return
	}
	snapshot, ok, err := cache.ReadLowStock(r.Context(), h.cache)
	if err != nil {
		h.logger.Error("low stock snapshot read failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		httpx.RespondError(w, shared.NotFoundError{Entity: "low stock snapshot"})
		return
	}
	httpx.JSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleBinCard(w http.ResponseWriter, r *http.Request) {
	variationID, err := pathID(r, "variationID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := BinCardFilter{VariationID: variationID}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	entries, err := h.query.BinCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("bin card failed", slog.Int64("variation_id", variationID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) observe(typ MovementType, err error) {
	if h.observer == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	h.observer.ObserveMovement(string(typ), outcome)
}

func (req createMovementRequest) toInput(actorID int64) (CreateMovementInput, error) {
	input := CreateMovementInput{
		RefNo:      req.RefNo,
		SupplierID: req.SupplierID,
		IssuedTo:   req.IssuedTo,
		Reason:     req.Reason,
		Remarks:    req.Remarks,
		ActorID:    actorID,
	}
	if req.TxDate != "" {
		t, err := time.Parse("2006-01-02", req.TxDate)
		if err != nil {
			return CreateMovementInput{}, shared.ValidationError{Field: "tx_date", Reason: "expected YYYY-MM-DD"}
		}
		input.TxDate = t
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			VariationID: line.VariationID,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
			Remarks:     line.Remarks,
		})
	}
	return input, nil
}

func (req updateMovementRequest) toPatch(actorID int64) (UpdateMovementInput, error) {
	patch := UpdateMovementInput{
		SupplierID: req.SupplierID,
		IssuedTo:   req.IssuedTo,
		Reason:     req.Reason,
		Remarks:    req.Remarks,
		ActorID:    actorID,
	}
	if req.TxDate != nil {
		t, err := time.Parse("2006-01-02", *req.TxDate)
		if err != nil {
			return UpdateMovementInput{}, shared.ValidationError{Field: "tx_date", Reason: "expected YYYY-MM-DD"}
		}
		patch.TxDate = &t
	}
	if req.Status != nil {
		status := MovementStatus(*req.Status)
		patch.Status = &status
	}
	if req.Lines != nil {
		patch.Lines = make([]LineInput, 0, len(*req.Lines))
		for _, line := range *req.Lines {
			patch.Lines = append(patch.Lines, LineInput{
				VariationID: line.VariationID,
				Quantity:    line.Quantity,
				UnitCost:    line.UnitCost,
				Remarks:     line.Remarks,
			})
		}
	}
	return patch, nil
}

func firstValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return shared.ValidationError{Field: fieldErrs[0].Field(), Reason: "failed " + fieldErrs[0].Tag() + " constraint"}
	}
	return shared.ValidationError{Field: "body", Reason: err.Error()}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return id, nil
}
