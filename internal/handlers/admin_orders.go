package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

// AdminOrderHandlers exposes the sales-manager surface: order oversight,
// refund resolution, and revenue reporting.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs handlers for the sales-manager endpoints.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// OrderRoutes wires /admin/orders onto the provided router.
func (h *AdminOrderHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleSalesManager))
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Patch("/{orderId}/status", h.updateStatus)
}

// RefundRoutes wires /admin/refunds onto the provided router.
func (h *AdminOrderHandlers) RefundRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleSalesManager))
	}
	r.Get("/", h.listRefunds)
	r.Post("/{orderId}/{refundId}/approve", h.approveRefund)
	r.Post("/{orderId}/{refundId}/reject", h.rejectRefund)
}

// ReportRoutes wires /admin/reports onto the provided router.
func (h *AdminOrderHandlers) ReportRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleSalesManager))
	}
	r.Get("/revenue", h.revenueReport)
	r.Get("/deliveries", h.deliveredOrders)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		DateRange:  dateRange,
		Pagination: parsePagination(r),
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
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

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Status:  req.Status,
		ActorID: identity.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateRange, err := parseDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.RefundListFilter{DateRange: dateRange}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = []domain.RefundStatus{domain.RefundStatus(status)}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	entries, err := h.orders.ListRefunds(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]refundEntryPayload, 0, len(entries))
	for _, entry := range entries {
		items = append(items, buildRefundEntryPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type resolveRefundRequest struct {
	Note string `json:"note"`
}

func (h *AdminOrderHandlers) approveRefund(w http.ResponseWriter, r *http.Request) {
	h.resolveRefund(w, r, true)
}

func (h *AdminOrderHandlers) rejectRefund(w http.ResponseWriter, r *http.Request) {
	h.resolveRefund(w, r, false)
}

func (h *AdminOrderHandlers) resolveRefund(w http.ResponseWriter, r *http.Request, approve bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	// The note is optional, so an empty body is fine here.
	var req resolveRefundRequest
	if body, err := readLimitedBody(r, maxBodySize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	} else if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.ResolveRefund(ctx, services.ResolveRefundCommand{
		OrderID:     chi.URLParam(r, "orderId"),
		RefundID:    chi.URLParam(r, "refundId"),
		Approve:     approve,
		ManagerNote: strings.TrimSpace(req.Note),
		ActorID:     identity.UserID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) revenueReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseReportWindow(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	report, err := h.orders.Revenue(ctx, services.RevenueCommand{From: window.from, To: window.to})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildRevenueReportPayload(report))
}

func (h *AdminOrderHandlers) deliveredOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	window, err := parseReportWindow(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orders, err := h.orders.DeliveredOrders(ctx, services.DeliveredOrdersCommand{From: window.from, To: window.to})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}
