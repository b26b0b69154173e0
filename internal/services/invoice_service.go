package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/invoice"
	"github.com/maplecart/api/internal/platform/mail"
)

// ErrInvoiceRender signals the PDF could not be produced.
var ErrInvoiceRender = errors.New("invoice: render failed")

// InvoiceRenderer produces the PDF bytes for one invoice.
type InvoiceRenderer interface {
	Render(inv invoice.Invoice) ([]byte, error)
}

// InvoiceArchive persists rendered invoices for later retrieval.
type InvoiceArchive interface {
	Put(ctx context.Context, object string, contentType string, data []byte) error
}

// MailSender delivers outgoing messages.
type MailSender interface {
	Send(ctx context.Context, msg mail.Message) error
}

// InvoiceServiceDeps bundles collaborators for invoice rendering and
// delivery. Archive and Mail are optional; when absent the corresponding
// step is skipped.
type InvoiceServiceDeps struct {
	Renderer InvoiceRenderer
	Archive  InvoiceArchive
	Mail     MailSender
	ShopName string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	renderer InvoiceRenderer
	archive  InvoiceArchive
	mail     MailSender
	shopName string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Renderer == nil {
		return nil, errors.New("invoice service: renderer is required")
	}

	shopName := strings.TrimSpace(deps.ShopName)
	if shopName == "" {
		shopName = "MapleCart"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		renderer: deps.Renderer,
		archive:  deps.Archive,
		mail:     deps.Mail,
		shopName: shopName,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Render produces the invoice PDF for an order on demand.
func (s *invoiceService) Render(ctx context.Context, order Order) ([]byte, error) {
	data, err := s.renderer.Render(s.buildInvoice(order, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", ErrInvoiceRender, order.ID, err)
	}
	return data, nil
}

// Deliver renders the invoice, archives it, and emails it to the customer.
// Every step is best-effort; failures are logged and never propagate into
// the order flow that triggered delivery.
func (s *invoiceService) Deliver(ctx context.Context, order Order, email string) {
	data, err := s.renderer.Render(s.buildInvoice(order, email))
	if err != nil {
		s.logger(ctx, "invoice.render.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return
	}

	object := fmt.Sprintf("invoices/%s.pdf", order.ID)
	if s.archive != nil {
		if err := s.archive.Put(ctx, object, "application/pdf", data); err != nil {
			s.logger(ctx, "invoice.archive.failed", map[string]any{
				"order":  order.ID,
				"object": object,
				"error":  err.Error(),
			})
		}
	}

	if s.mail == nil || strings.TrimSpace(email) == "" {
		return
	}
	msg := mail.Message{
		To:      email,
		Subject: fmt.Sprintf("Your %s invoice for order %s", s.shopName, order.Number),
		Body: fmt.Sprintf("Hello %s,\n\nyour order %s has been delivered. The invoice is attached.\n\n%s",
			order.ShippingAddress.Recipient, order.Number, s.shopName),
		Attachments: []mail.Attachment{{
			Filename:    fmt.Sprintf("invoice-%s.pdf", order.Number),
			ContentType: "application/pdf",
			Data:        data,
		}},
	}
	if err := s.mail.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrDisabled) {
		s.logger(ctx, "invoice.mail.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

// RefundDecision notifies the customer of a refund outcome. Best-effort.
func (s *invoiceService) RefundDecision(ctx context.Context, order Order, refund RefundRequest, email string) {
	if s.mail == nil || strings.TrimSpace(email) == "" {
		return
	}

	outcome := "rejected"
	if refund.Status == domain.RefundStatusApproved {
		outcome = "approved"
	}
	body := fmt.Sprintf("Hello %s,\n\nyour refund request for order %s has been %s.",
		order.ShippingAddress.Recipient, order.Number, outcome)
	if outcome == "approved" {
		body += fmt.Sprintf("\nRefunded amount: %s.", invoice.FormatAmount(refund.Amount, order.Currency))
	}
	if refund.ManagerNote != "" {
		body += fmt.Sprintf("\nNote: %s", refund.ManagerNote)
	}
	body += fmt.Sprintf("\n\n%s", s.shopName)

	msg := mail.Message{
		To:      email,
		Subject: fmt.Sprintf("Refund %s for order %s", outcome, order.Number),
		Body:    body,
	}
	if err := s.mail.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrDisabled) {
		s.logger(ctx, "refund.mail.failed", map[string]any{
			"order":  order.ID,
			"refund": refund.ID,
			"error":  err.Error(),
		})
	}
}

func (s *invoiceService) buildInvoice(order Order, email string) invoice.Invoice {
	return invoice.Invoice{
		ShopName:       s.shopName,
		Number:         "INV-" + strings.TrimPrefix(order.Number, "MC-"),
		OrderNumber:    order.Number,
		IssuedAt:       s.clock(),
		CustomerName:   order.ShippingAddress.Recipient,
		CustomerEmail:  email,
		Address:        order.ShippingAddress,
		Lines:          order.Lines,
		TotalAmount:    order.TotalAmount,
		RefundedAmount: order.RefundedAmount,
		Currency:       order.Currency,
	}
}
