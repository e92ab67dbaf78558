package assets

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/httpx"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// Handler exposes asset endpoints.
type Handler struct {
	logger    *slog.Logger
	registrar *Registrar
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registrar *Registrar) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, registrar: registrar, validator: httpx.NewValidator()}
}

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/put-to-use", h.putToUse)
	r.Post("/{id}/status", h.changeStatus)
}

type assetResponse struct {
	ID                int64           `json:"id"`
	Tag               string          `json:"tag,omitempty"`
	Status            Status          `json:"status"`
	OrderID           int64           `json:"order_id"`
	LineID            int64           `json:"line_id"`
	ReceiptID         string          `json:"receipt_id"`
	UnitIndex         *int            `json:"unit_index,omitempty"`
	SerialNumber      string          `json:"serial_number,omitempty"`
	Description       string          `json:"description"`
	Category          string          `json:"category,omitempty"`
	Condition         string          `json:"condition"`
	Location          string          `json:"location,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	AcquisitionCost   decimal.Decimal `json:"acquisition_cost"`
	Currency          string          `json:"currency"`
	ReceivedAt        time.Time       `json:"received_at"`
	DepreciationStart *time.Time      `json:"depreciation_start,omitempty"`
	StatusReason      string          `json:"status_reason,omitempty"`
	Version           int64           `json:"version"`
}

func toResponse(a Asset) assetResponse {
	return assetResponse{
		ID:                a.ID,
		Tag:               a.Tag,
		Status:            a.Status,
		OrderID:           a.OrderID,
		LineID:            a.LineID,
		ReceiptID:         a.ReceiptID.String(),
		UnitIndex:         a.UnitIndex,
		SerialNumber:      a.SerialNumber,
		Description:       a.Description,
		Category:          a.Category,
		Condition:         a.Condition,
		Location:          a.Location,
		Quantity:          a.Quantity,
		AcquisitionCost:   a.AcquisitionCost,
		Currency:          a.Currency,
		ReceivedAt:        a.ReceivedAt,
		DepreciationStart: a.DepreciationStart,
		StatusReason:      a.StatusReason,
		Version:           a.Version,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(r.URL.Query().Get("order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "order_id required")
		return
	}
	items, err := h.registrar.ListByOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]assetResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	asset, err := h.registrar.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(asset))
}

type putToUseRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) putToUse(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req putToUseRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	asset, err := h.registrar.PutToUse(r.Context(), id, date, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(asset))
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE UNDER_REPAIR IN_STORAGE DISPOSED"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req changeStatusRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	asset, err := h.registrar.ChangeStatus(r.Context(), id, Status(req.Status), req.Reason, actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(asset))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("asset request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func requireActor(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok || actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor identity required")
		return shared.Actor{}, false
	}
	return actor, true
}
