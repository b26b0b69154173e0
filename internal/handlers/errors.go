package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/requestctx"
	"github.com/maplecart/api/internal/services"
	"go.uber.org/zap"
)

// writeServiceError maps service sentinel errors onto the HTTP error envelope.
// Unrecognised errors become opaque 500s; the cause is logged, not echoed.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPaymentInvalidInput),
		errors.Is(err, services.ErrOrderRefundWindowClosed):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("card_declined", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", err.Error(), http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrPaymentForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrCartNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrUserConflict),
		errors.Is(err, services.ErrCatalogConflict),
		errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogInvalidState),
		errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
