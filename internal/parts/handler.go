package parts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// Handler wires HTTP endpoints for the parts catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs parts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{partID}", h.handleGet)
	r.Put("/{partID}", h.handleUpdate)
	r.Delete("/{partID}", h.handleDeactivate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Category: q.Get("category"),
		Search:   q.Get("search"),
	}
	if active := q.Get("active"); active != "" {
		isActive := active == "1" || active == "true"
		filters.IsActive = &isActive
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}

	parts, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list parts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"parts":      parts,
		"pagination": shared.NewPagination(filters.Page, filters.Limit, total),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	part, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "part not found")
			return
		}
		h.logger.Error("get part", slog.Int64("part_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	part, err := h.service.Create(r.Context(), Part{
		SKU:          form.SKU,
		Name:         form.Name,
		Category:     form.Category,
		BuyingPrice:  form.BuyingPrice,
		SellingPrice: form.SellingPrice,
		ReorderLevel: form.ReorderLevel,
		IsActive:     form.IsActive,
	})
	if err != nil {
		h.logger.Error("create part", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Info("part created", slog.Int64("part_id", part.ID), slog.String("sku", part.SKU))
	httpx.JSON(w, http.StatusCreated, part)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	err = h.service.Update(r.Context(), id, Part{
		SKU:          form.SKU,
		Name:         form.Name,
		Category:     form.Category,
		BuyingPrice:  form.BuyingPrice,
		SellingPrice: form.SellingPrice,
		ReorderLevel: form.ReorderLevel,
		IsActive:     form.IsActive,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "part not found")
			return
		}
		h.logger.Error("update part", slog.Int64("part_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	part, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, part)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "part not found")
			return
		}
		h.logger.Error("deactivate part", slog.Int64("part_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (PartForm, bool) {
	var form PartForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return PartForm{}, false
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return PartForm{}, false
	}
	return form, true
}
