package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// Handler wires HTTP endpoints for part orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{orderID}", h.handleGet)
	r.Put("/{orderID}/approve", h.handleApprove)
	r.Put("/{orderID}/reject", h.handleReject)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var form createOrderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	jobCardRef, err := uuid.Parse(form.JobCardRef)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid jobcard reference")
		return
	}
	lines := make([]OrderLine, 0, len(form.Lines))
	for _, l := range form.Lines {
		lines = append(lines, OrderLine{
			ServiceRecordID: l.ServiceRecordID,
			PartID:          l.PartID,
			Qty:             l.Qty,
		})
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		JobCardRef:  jobCardRef,
		Note:        form.Note,
		RequestedBy: actorID(r),
		Lines:       lines,
	})
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		respondOrderError(w, err)
		return
	}
	h.logger.Info("part order created", slog.Int64("order_id", order.ID), slog.String("number", order.Number))
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	var filters ListFilters
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filters.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := OrderStatus(raw)
		switch status {
		case OrderStatusSent, OrderStatusApproved, OrderStatusRejected:
			filters.Status = &status
		default:
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status filter")
			return
		}
	}
	orders, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders":     out,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, int(total)),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Approve(r.Context(), id, actorID(r))
	if err != nil {
		var short *InsufficientStockError
		if errors.As(err, &short) {
			httpx.JSON(w, http.StatusConflict, map[string]any{
				"message":           "insufficient stock for one or more parts",
				"insufficientParts": short.Parts,
			})
			return
		}
		if errors.Is(err, ErrStockConflict) {
			httpx.JSON(w, http.StatusConflict, map[string]any{"message": "stock changed, retry"})
			return
		}
		h.logger.Error("approve order", slog.Int64("order_id", id), slog.Any("error", err))
		respondOrderError(w, err)
		return
	}
	h.logger.Info("part order approved",
		slog.Int64("order_id", id),
		slog.String("fulfillment", string(result.Fulfillment)))
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "order approved and fully fulfilled",
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var form rejectForm
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
		if err := h.validator.Struct(form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	if err := h.service.Reject(r.Context(), id, actorID(r), form.Note); err != nil {
		h.logger.Error("reject order", slog.Int64("order_id", id), slog.Any("error", err))
		respondOrderError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return 0, false
	}
	return id, true
}

// actorID pulls the caller identity supplied by upstream middleware. The
// header fallback keeps the API usable without the auth layer.
func actorID(r *http.Request) int64 {
	if raw := r.Header.Get("X-Actor-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

func respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", "order already decided")
	default:
		httpx.RespondError(w, err)
	}
}
