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

	"github.com/gearbox-erp/gearbox-erp/internal/parts"
	"github.com/gearbox-erp/gearbox-erp/internal/platform/httpx"
	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

// PartsPort resolves part identity for availability responses.
type PartsPort interface {
	Get(ctx context.Context, id int64) (parts.Part, error)
}

// Handler wires HTTP endpoints for the batch ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	parts     PartsPort
	validator *validator.Validate
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, partsPort PartsPort) *Handler {
	return &Handler{logger: logger, service: service, parts: partsPort, validator: validator.New()}
}

// MountRoutes registers ledger routes under the parts resource.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{partID}/availability", h.handleAvailability)
	r.Get("/{partID}/batches", h.handleListBatches)
	r.Post("/{partID}/receipts", h.handleRecordReceipt)
}

type receiptRequest struct {
	Number      string     `json:"number" validate:"max=40"`
	Qty         int64      `json:"quantity" validate:"required,gt=0"`
	CostPrice   float64    `json:"cost_price" validate:"gte=0"`
	RetailPrice float64    `json:"retail_price" validate:"gte=0"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type batchResponse struct {
	BatchID      int64      `json:"batch_id"`
	BatchNumber  int        `json:"batch_number"`
	InitialQty   int64      `json:"initial_quantity"`
	RemainingQty int64      `json:"remaining_quantity"`
	CostPrice    float64    `json:"cost_price"`
	RetailPrice  float64    `json:"retail_price"`
	ReceivedAt   time.Time  `json:"receipt_date"`
	ExpiresAt    *time.Time `json:"expiry_date,omitempty"`
}

type partRef struct {
	PartID int64  `json:"part_id"`
	Name   string `json:"name"`
}

type availabilityResponse struct {
	Part partRef `json:"part"`
	Availability
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	partID, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || partID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	// An unknown part is a caller error, not a zero-stock answer.
	part, err := h.parts.Get(r.Context(), partID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	avail, err := h.service.CheckAvailability(r.Context(), partID)
	if err != nil {
		h.logger.Error("check availability", slog.Int64("part_id", partID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availabilityResponse{
		Part:         partRef{PartID: part.ID, Name: part.Name},
		Availability: avail,
	})
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	partID, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || partID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	includeDepleted := r.URL.Query().Get("include_depleted") == "1"
	batches, err := h.service.ListBatches(r.Context(), partID, includeDepleted)
	if err != nil {
		h.logger.Error("list batches", slog.Int64("part_id", partID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, toBatchResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"part_id": partID, "batches": out})
}

func (h *Handler) handleRecordReceipt(w http.ResponseWriter, r *http.Request) {
	partID, err := strconv.ParseInt(chi.URLParam(r, "partID"), 10, 64)
	if err != nil || partID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid part id")
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ReceiptInput{
		Number:      req.Number,
		PartID:      partID,
		Qty:         req.Qty,
		CostPrice:   req.CostPrice,
		RetailPrice: req.RetailPrice,
		ExpiresAt:   req.ExpiresAt,
		ActorID:     callerID(r),
	}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	batch, err := h.service.RecordReceipt(r.Context(), input)
	if err != nil {
		h.logger.Error("record receipt", slog.Int64("part_id", partID), slog.Any("error", err))
		respondLedgerError(w, err)
		return
	}
	h.logger.Info("stock receipt recorded",
		slog.Int64("part_id", partID),
		slog.Int64("batch_id", batch.ID),
		slog.Int("batch_number", batch.BatchNumber),
		slog.Int64("qty", batch.InitialQty))
	httpx.JSON(w, http.StatusCreated, toBatchResponse(batch))
}

func toBatchResponse(b StockBatch) batchResponse {
	return batchResponse{
		BatchID:      b.ID,
		BatchNumber:  b.BatchNumber,
		InitialQty:   b.InitialQty,
		RemainingQty: b.RemainingQty,
		CostPrice:    b.CostPrice,
		RetailPrice:  b.RetailPrice,
		ReceivedAt:   b.ReceivedAt,
		ExpiresAt:    b.ExpiresAt,
	}
}

// callerID pulls the caller identity supplied by upstream middleware. The
// header fallback keeps the API usable without the auth layer.
func callerID(r *http.Request) int64 {
	if raw := r.Header.Get("X-Actor-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity) || errors.Is(err, ErrInvalidCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
