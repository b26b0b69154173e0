package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// OrderHandlers exposes order placement, lifecycle, payment, invoice, and
// refund requests for the authenticated customer.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	payments services.PaymentService
	invoices services.InvoiceService
}

// NewOrderHandlers constructs handlers for the /orders endpoints.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, payments services.PaymentService, invoices services.InvoiceService) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		payments: payments,
		invoices: invoices,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Post("/{orderId}/cancel", h.cancelOrder)
	r.Post("/{orderId}/payment", h.capturePayment)
	r.Get("/{orderId}/payment", h.getPayment)
	r.Get("/{orderId}/invoice", h.getInvoice)
	r.Post("/{orderId}/refunds", h.requestRefund)
}

// canViewOrder reports whether the identity owns the order or manages sales.
func canViewOrder(identity *auth.Identity, order services.Order) bool {
	if identity == nil {
		return false
	}
	if identity.UserID == order.UserID {
		return true
	}
	return identity.HasAnyRole(domain.RoleSalesManager)
}

type placeOrderRequest struct {
	ShippingAddress addressPayload `json:"shipping_address"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.Place(ctx, services.PlaceOrderCommand{
		UserID:          identity.UserID,
		ShippingAddress: req.ShippingAddress.toDomain(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:     identity.UserID,
		DateRange:  dateRange,
		Pagination: parsePagination(r),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = []domain.OrderStatus{domain.OrderStatus(status)}
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": page.NextPageToken,
	})
}

// loadOwnOrder fetches the order and enforces ownership for the caller.
func (h *OrderHandlers) loadOwnOrder(w http.ResponseWriter, r *http.Request) (services.Order, *auth.Identity, bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return services.Order{}, nil, false
	}

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, nil, false
	}
	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another account", http.StatusForbidden))
		return services.Order{}, nil, false
	}
	return order, identity, true
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, _, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderId"),
		UserID:  identity.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type capturePaymentRequest struct {
	CardNumber string `json:"card_number"`
	CardHolder string `json:"card_holder"`
}

func (h *OrderHandlers) capturePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req capturePaymentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	payment, err := h.payments.Capture(ctx, services.CapturePaymentCommand{
		OrderID:    chi.URLParam(r, "orderId"),
		UserID:     identity.UserID,
		CardNumber: req.CardNumber,
		CardHolder: req.CardHolder,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildPaymentPayload(payment))
}

func (h *OrderHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, _, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}

	payment, err := h.payments.FindByOrder(ctx, order.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPaymentPayload(payment))
}

func (h *OrderHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, _, ok := h.loadOwnOrder(w, r)
	if !ok {
		return
	}

	pdf, err := h.invoices.Render(ctx, order)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+order.Number+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

type refundRequestBody struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

func (h *OrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req refundRequestBody
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.RequestRefund(ctx, services.RequestRefundCommand{
		OrderID:   chi.URLParam(r, "orderId"),
		UserID:    identity.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}
