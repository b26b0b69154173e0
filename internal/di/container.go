package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maplecart/api/internal/platform/config"
	"github.com/maplecart/api/internal/repositories"
	"github.com/maplecart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Users    services.UserService
	Catalog  services.CatalogService
	Carts    services.CartService
	Orders   services.OrderService
	Payments services.PaymentService
	Invoices services.InvoiceService
	System   services.SystemService
}

// Deps carries the platform collaborators that the services need beyond the
// repository registry: token minting, invoice rendering, archival, mail, and
// the event publisher. Optional fields may be nil; the affected behaviour
// degrades to a no-op.
type Deps struct {
	Tokens    services.TokenIssuer
	Passwords services.PasswordHasher
	Renderer  services.InvoiceRenderer
	Archive   services.InvoiceArchive
	Mail      services.MailSender
	Events    services.EventPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	invoiceSvc, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Renderer: deps.Renderer,
		Archive:  deps.Archive,
		Mail:     deps.Mail,
		ShopName: cfg.Shop.Name,
		Clock:    time.Now,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build invoice service: %w", err)
	}
	svc.Invoices = invoiceSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:        reg.Products(),
		Reviews:         reg.Reviews(),
		DefaultCurrency: cfg.Shop.Currency,
		Clock:           time.Now,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:           reg.Carts(),
		Products:        reg.Products(),
		DefaultCurrency: cfg.Shop.Currency,
		Clock:           time.Now,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	// The user service folds guest carts into user carts on login, so it
	// depends on the cart service built above.
	userSvc, err := services.NewUserService(services.UserServiceDeps{
		Users:     reg.Users(),
		Products:  reg.Products(),
		Tokens:    deps.Tokens,
		Passwords: deps.Passwords,
		Carts:     cartSvc,
		Clock:     time.Now,
		Logger:    deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}
	svc.Users = userSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          reg.Orders(),
		Counters:        reg.Counters(),
		Users:           reg.Users(),
		Invoices:        invoiceSvc,
		DefaultCurrency: cfg.Shop.Currency,
		Clock:           time.Now,
		Events:          deps.Events,
		Logger:          deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Payments: reg.Payments(),
		Orders:   reg.Orders(),
		Clock:    time.Now,
		Events:   deps.Events,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		Health: reg.Health(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}
