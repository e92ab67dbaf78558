package lpo

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/httpx"
	"github.com/munesh14/first-exchange-hub-sub000/internal/shared"
)

// IdempotencyHeader carries the client key for receipt requests.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes order lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pending", h.listPending)
	r.Post("/orders", h.createOrder)
	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", h.getOrder)
		r.Patch("/", h.editOrder)
		r.Post("/submit", h.submitOrder)
		r.Post("/approve", h.approveOrder)
		r.Post("/reject", h.rejectOrder)
		r.Post("/send", h.sendToVendor)
		r.Post("/cancel", h.cancelOrder)
		r.Post("/invoice", h.markInvoiced)
		r.Post("/close", h.closeOrder)
		r.Get("/receipts", h.listReceipts)
		r.Get("/history", h.history)
		r.Post("/deliveries", h.receiveDelivery)
	})
	r.Post("/lines/{lineID}/receipts", h.receiveGoods)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	input := CreateOrderInput{
		VendorID:        req.VendorID,
		VendorName:      req.VendorName,
		BranchID:        req.BranchID,
		DepartmentID:    req.DepartmentID,
		Currency:        req.Currency,
		VATPercent:      req.VATPercent,
		DiscountPercent: req.DiscountPercent,
		QuotationRef:    req.QuotationRef,
		DocumentRef:     req.DocumentRef,
		Notes:           req.Notes,
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, l.input())
	}
	order, err := h.service.CreateOrder(r.Context(), actor, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/lpo/orders/"+strconv.FormatInt(order.ID, 10))
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(order.Version, 10)))
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) editOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req editOrderRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.service.EditOrder(r.Context(), id, actor, req.input())
	h.respondOrder(w, r, order, err)
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	order, err := h.service.SubmitOrder(r.Context(), id, actor)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.service.ApproveOrder(r.Context(), id, actor, Tier(req.Tier), req.Comment)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.service.RejectOrder(r.Context(), id, actor, Tier(req.Tier), req.Reason)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) sendToVendor(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	order, err := h.service.SendToVendor(r.Context(), id, actor)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.service.CancelOrder(r.Context(), id, actor, req.Reason)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) markInvoiced(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	order, err := h.service.MarkInvoiced(r.Context(), id, actor, req.InvoiceRef)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) closeOrder(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	order, err := h.service.CloseOrder(r.Context(), id, actor)
	h.respondOrder(w, r, order, err)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.ListPendingFor(r.Context(), actor, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptResponse(rc))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := h.service.OrderHistory(r.Context(), id, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toHistoryResponse(hist))
}

func (h *Handler) receiveGoods(w http.ResponseWriter, r *http.Request) {
	lineID, ok := httpx.PathID(w, r, "lineID")
	if !ok {
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	res, err := h.service.ReceiveGoods(r.Context(), lineID, actor, ReceiveInput{
		Quantity:        req.Quantity,
		Condition:       Condition(req.Condition),
		SerialNumbers:   req.SerialNumbers,
		Destination:     req.Destination,
		ReceivedOn:      parseDate(req.ReceivedOn),
		DeliveryNoteRef: req.DeliveryNoteRef,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResultResponse(res))
}

func (h *Handler) receiveDelivery(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := h.target(w, r)
	if !ok {
		return
	}
	var req deliveryRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	input := DeliveryInput{
		DeliveryNoteRef: req.DeliveryNoteRef,
		ReceivedOn:      parseDate(req.ReceivedOn),
		Destination:     req.Destination,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, DeliveryLine{
			LineID:        l.LineID,
			Quantity:      l.Quantity,
			Condition:     Condition(l.Condition),
			SerialNumbers: l.SerialNumbers,
			Destination:   l.Destination,
		})
	}
	results, err := h.service.ReceiveDelivery(r.Context(), id, actor, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]receiptResponse, 0, len(results))
	for _, res := range results {
		out = append(out, toResultResponse(res))
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (int64, shared.Actor, bool) {
	id, ok := httpx.PathID(w, r, "id")
	if !ok {
		return 0, shared.Actor{}, false
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return 0, shared.Actor{}, false
	}
	return id, actor, true
}

func (h *Handler) respondOrder(w http.ResponseWriter, r *http.Request, order Order, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("lpo request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, _ := time.Parse("2006-01-02", v)
	return t
}
