package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

func validShippingAddress() domain.Address {
	return domain.Address{
		Recipient:  "Maria Keller",
		Street:     "Hauptstrasse 12",
		City:       "Berlin",
		PostalCode: "10115",
		Country:    "DE",
	}
}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{}
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestOrderServicePlaceBuildsNumberAndPublishesEvent(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	orders := &stubOrderRepo{}
	counters := &stubCounterRepo{nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
		if counterID != "orders" || step != 1 {
			t.Fatalf("unexpected counter call %s/%d", counterID, step)
		}
		return 42, nil
	}}
	events := &captureEvents{}

	orders.placeFn = func(_ context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
		if req.OrderID != "ord_testid" {
			t.Fatalf("unexpected order id %s", req.OrderID)
		}
		if req.OrderNumber != "MC-2026-000042" {
			t.Fatalf("unexpected order number %s", req.OrderNumber)
		}
		if req.Owner.Key() != "user:usr_1" {
			t.Fatalf("unexpected cart owner %s", req.Owner.Key())
		}
		if !req.Now.Equal(now) {
			t.Fatalf("unexpected clock %v", req.Now)
		}
		return domain.Order{
			ID:          req.OrderID,
			Number:      req.OrderNumber,
			UserID:      req.UserID,
			Status:      domain.OrderStatusProcessing,
			TotalAmount: 36000,
			Lines:       []domain.OrderLine{{ProductID: "prd_1", Quantity: 3}},
			CreatedAt:   req.Now,
		}, nil
	}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:      orders,
		Counters:    counters,
		Events:      events,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "testid" },
	})

	order, err := svc.Place(context.Background(), PlaceOrderCommand{
		UserID:          "usr_1",
		ShippingAddress: validShippingAddress(),
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if order.Number != "MC-2026-000042" {
		t.Fatalf("unexpected number %s", order.Number)
	}
	if len(events.events) != 1 || events.events[0].Name != "order.created" {
		t.Fatalf("expected order.created event, got %+v", events.events)
	}
	if events.events[0].Payload["total"] != int64(36000) {
		t.Fatalf("unexpected event payload %+v", events.events[0].Payload)
	}
}

func TestOrderServicePlaceRejectsIncompleteAddress(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	addr := validShippingAddress()
	addr.PostalCode = ""
	_, err := svc.Place(context.Background(), PlaceOrderCommand{UserID: "usr_1", ShippingAddress: addr})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServicePlaceMapsStockErrors(t *testing.T) {
	cases := []struct {
		name string
		code repositories.StockErrorCode
		want error
	}{
		{"empty cart", repositories.StockErrorEmptyCart, ErrOrderInvalidInput},
		{"missing product", repositories.StockErrorProductNotFound, ErrOrderInvalidInput},
		{"insufficient stock", repositories.StockErrorInsufficient, ErrOrderInvalidInput},
		{"invalid state", repositories.StockErrorInvalidState, ErrOrderInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderRepo{placeFn: func(context.Context, repositories.PlaceOrderRequest) (domain.Order, error) {
				return domain.Order{}, repositories.NewStockError(tc.code, "", nil)
			}}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

			_, err := svc.Place(context.Background(), PlaceOrderCommand{
				UserID:          "usr_1",
				ShippingAddress: validShippingAddress(),
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceUpdateStatusRejectsUnassignableTargets(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	for _, status := range []string{"canceled", "refunded", "shipped", ""} {
		_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: status})
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("status %q: expected invalid input, got %v", status, err)
		}
	}
}

func TestOrderServiceUpdateStatusDeliveredTriggersInvoice(t *testing.T) {
	now := time.Date(2026, time.March, 12, 8, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{updateStatusFn: func(_ context.Context, orderID string, status domain.OrderStatus, _ time.Time) (domain.Order, error) {
		return domain.Order{ID: orderID, UserID: "usr_1", Status: status}, nil
	}}
	users := &stubUserRepo{findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
		return domain.User{ID: userID, Email: "maria@example.com"}, nil
	}}
	invoices := &captureInvoices{}
	events := &captureEvents{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orders,
		Users:    users,
		Invoices: invoices,
		Events:   events,
		Clock:    func() time.Time { return now },
	})

	order, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{
		OrderID: "ord_1",
		Status:  "delivered",
		ActorID: "usr_admin",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if order.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if len(invoices.delivered) != 1 || invoices.delivered[0] != "ord_1:maria@example.com" {
		t.Fatalf("expected invoice delivery, got %v", invoices.delivered)
	}
	if len(events.events) != 1 || events.events[0].Name != "order.status_changed" {
		t.Fatalf("expected status event, got %+v", events.events)
	}
}

func TestOrderServiceUpdateStatusMapsBackwardTransition(t *testing.T) {
	orders := &stubOrderRepo{updateStatusFn: func(context.Context, string, domain.OrderStatus, time.Time) (domain.Order, error) {
		return domain.Order{}, repositories.NewStockError(repositories.StockErrorInvalidState, "delivered orders cannot move to processing", nil)
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.UpdateStatus(context.Background(), UpdateOrderStatusCommand{OrderID: "ord_1", Status: "processing"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestOrderServiceCancelChecksOwnership(t *testing.T) {
	orders := &stubOrderRepo{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_owner", Status: domain.OrderStatusProcessing}, nil
		},
		cancelFn: func(_ context.Context, orderID string, _ time.Time) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_owner", Status: domain.OrderStatusCanceled}, nil
		},
	}
	events := &captureEvents{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Events: events})

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "usr_other"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	order, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "ord_1", UserID: "usr_owner"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != domain.OrderStatusCanceled {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if len(events.events) != 1 || events.events[0].Name != "order.canceled" {
		t.Fatalf("expected cancel event, got %+v", events.events)
	}
}

func TestOrderServiceRequestRefundHonoursInclusiveWindow(t *testing.T) {
	placed := time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC)
	orders := &stubOrderRepo{
		findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusDelivered, CreatedAt: placed}, nil
		},
		appendRefundFn: func(_ context.Context, orderID string, refund domain.RefundRequest) (domain.Order, error) {
			if refund.ID != "rfn_testid" {
				t.Fatalf("unexpected refund id %s", refund.ID)
			}
			return domain.Order{ID: orderID, UserID: "usr_1", Refunds: []domain.RefundRequest{refund}}, nil
		},
	}

	onBoundary := placed.Add(domain.RefundWindow)
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:      orders,
		Clock:       func() time.Time { return onBoundary },
		IDGenerator: func() string { return "testid" },
	})

	cmd := RequestRefundCommand{OrderID: "ord_1", UserID: "usr_1", ProductID: "prd_1", Quantity: 1, Reason: "damaged"}
	if _, err := svc.RequestRefund(context.Background(), cmd); err != nil {
		t.Fatalf("refund on the window boundary must be accepted: %v", err)
	}

	late := newTestOrderService(t, OrderServiceDeps{
		Orders: orders,
		Clock:  func() time.Time { return onBoundary.Add(time.Second) },
	})
	if _, err := late.RequestRefund(context.Background(), cmd); !errors.Is(err, ErrOrderRefundWindowClosed) {
		t.Fatalf("expected window closed, got %v", err)
	}
}

func TestOrderServiceRequestRefundMapsLineErrors(t *testing.T) {
	placed := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	now := placed.Add(24 * time.Hour)

	cases := []struct {
		name string
		code repositories.StockErrorCode
		want error
	}{
		{"line missing", repositories.StockErrorProductNotFound, ErrOrderInvalidInput},
		{"quantity excess", repositories.StockErrorInsufficient, ErrOrderInvalidInput},
		{"pending duplicate", repositories.StockErrorInvalidState, ErrOrderInvalidState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderRepo{
				findByIDFn: func(_ context.Context, orderID string) (domain.Order, error) {
					return domain.Order{ID: orderID, UserID: "usr_1", Status: domain.OrderStatusDelivered, CreatedAt: placed}, nil
				},
				appendRefundFn: func(context.Context, string, domain.RefundRequest) (domain.Order, error) {
					return domain.Order{}, repositories.NewStockError(tc.code, "", nil)
				},
			}
			svc := newTestOrderService(t, OrderServiceDeps{Orders: orders, Clock: func() time.Time { return now }})

			_, err := svc.RequestRefund(context.Background(), RequestRefundCommand{
				OrderID: "ord_1", UserID: "usr_1", ProductID: "prd_1", Quantity: 1,
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceResolveRefundPublishesDecisionAndNotifies(t *testing.T) {
	now := time.Date(2026, time.March, 15, 14, 0, 0, 0, time.UTC)
	refund := domain.RefundRequest{ID: "rfn_1", ProductID: "prd_1", Quantity: 1, Amount: 12000, Status: domain.RefundStatusApproved}
	orders := &stubOrderRepo{resolveRefundFn: func(_ context.Context, req repositories.ResolveRefundRequest) (domain.Order, error) {
		if !req.Approve || req.RefundID != "rfn_1" {
			t.Fatalf("unexpected resolve request %+v", req)
		}
		return domain.Order{ID: req.OrderID, UserID: "usr_1", Refunds: []domain.RefundRequest{refund}}, nil
	}}
	users := &stubUserRepo{findByIDFn: func(_ context.Context, userID string) (domain.User, error) {
		return domain.User{ID: userID, Email: "maria@example.com"}, nil
	}}
	invoices := &captureInvoices{}
	events := &captureEvents{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   orders,
		Users:    users,
		Invoices: invoices,
		Events:   events,
		Clock:    func() time.Time { return now },
	})

	_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID: "ord_1", RefundID: "rfn_1", Approve: true, ActorID: "usr_admin",
	})
	if err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if len(events.events) != 1 || events.events[0].Name != "refund.approved" {
		t.Fatalf("expected refund.approved event, got %+v", events.events)
	}
	if len(invoices.decisions) != 1 || invoices.decisions[0] != "rfn_1:maria@example.com" {
		t.Fatalf("expected decision mail, got %v", invoices.decisions)
	}
}

func TestOrderServiceRevenueAggregatesAcrossPages(t *testing.T) {
	day1 := time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, time.February, 2, 17, 0, 0, 0, time.UTC)

	pages := map[string][]domain.Order{
		"": {
			{ID: "ord_1", TotalAmount: 10000, RefundedAmount: 0, Currency: "EUR", CreatedAt: day1},
			{ID: "ord_2", TotalAmount: 5000, RefundedAmount: 2000, Currency: "EUR", CreatedAt: day1},
		},
		"page2": {
			{ID: "ord_3", TotalAmount: 8000, RefundedAmount: 0, Currency: "EUR", CreatedAt: day2},
		},
	}
	orders := &stubOrderRepo{listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
		for _, status := range filter.Status {
			if status == domain.OrderStatusCanceled {
				t.Fatalf("canceled orders must be excluded")
			}
		}
		items, ok := pages[filter.Pagination.PageToken]
		if !ok {
			t.Fatalf("unexpected page token %q", filter.Pagination.PageToken)
		}
		next := ""
		if filter.Pagination.PageToken == "" {
			next = "page2"
		}
		return domain.CursorPage[domain.Order]{Items: items, NextPageToken: next}, nil
	}}

	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	report, err := svc.Revenue(context.Background(), RevenueCommand{
		From: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if report.Revenue != 23000 || report.Refunded != 2000 || report.Orders != 3 {
		t.Fatalf("unexpected totals %+v", report)
	}
	if report.Cost != 16100 {
		t.Fatalf("expected cost 16100, got %d", report.Cost)
	}
	if report.Profit != 23000-2000-16100 {
		t.Fatalf("unexpected profit %d", report.Profit)
	}
	if len(report.Buckets) != 2 || report.Buckets[0].Day != "2026-02-01" || report.Buckets[1].Day != "2026-02-02" {
		t.Fatalf("unexpected buckets %+v", report.Buckets)
	}
	if report.Buckets[0].Revenue != 15000 || report.Buckets[0].Orders != 2 {
		t.Fatalf("unexpected first bucket %+v", report.Buckets[0])
	}
}

func TestOrderServiceRevenueValidatesWindow(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{})

	_, err := svc.Revenue(context.Background(), RevenueCommand{})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero window, got %v", err)
	}

	from := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	_, err = svc.Revenue(context.Background(), RevenueCommand{From: from, To: from.Add(-time.Hour)})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for inverted window, got %v", err)
	}
}

func TestOrderServiceGetMapsNotFound(t *testing.T) {
	orders := &stubOrderRepo{findByIDFn: func(context.Context, string) (domain.Order, error) {
		return domain.Order{}, &repoErr{msg: "order missing", notFound: true}
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: orders})

	_, err := svc.Get(context.Background(), "ord_missing")
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailPlacement(t *testing.T) {
	orders := &stubOrderRepo{placeFn: func(_ context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
		return domain.Order{ID: req.OrderID, UserID: req.UserID}, nil
	}}
	events := &captureEvents{err: errors.New("broker down")}

	var logged []string
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders: orders,
		Events: events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})

	if _, err := svc.Place(context.Background(), PlaceOrderCommand{UserID: "usr_1", ShippingAddress: validShippingAddress()}); err != nil {
		t.Fatalf("place must tolerate publish failure: %v", err)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish.failed" {
		t.Fatalf("expected publish failure log, got %v", logged)
	}
}
