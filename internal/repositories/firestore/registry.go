package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

// Registry wires the Firestore-backed repository implementations behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	users    *UserRepository
	products *ProductRepository
	reviews  *ReviewRepository
	carts    *CartRepository
	orders   *OrderRepository
	payments *PaymentRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry builds every repository against the shared provider. The
// readiness probe pings Firestore through the same client.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	reg := &Registry{provider: provider}

	var err error
	if reg.users, err = NewUserRepository(provider); err != nil {
		return nil, fmt.Errorf("build user repository: %w", err)
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	if reg.reviews, err = NewReviewRepository(provider); err != nil {
		return nil, fmt.Errorf("build review repository: %w", err)
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("build cart repository: %w", err)
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	if reg.payments, err = NewPaymentRepository(provider); err != nil {
		return nil, fmt.Errorf("build payment repository: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	checks := []repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	}
	if reg.health, err = repositories.NewDependencyHealthRepository(checks); err != nil {
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	return reg, nil
}

// Close releases the shared Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Users() repositories.UserRepository       { return r.users }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Reviews() repositories.ReviewRepository   { return r.reviews }
func (r *Registry) Carts() repositories.CartRepository       { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository { return r.payments }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Health() repositories.HealthRepository    { return r.health }

// RunInTx sequences a multi-repository unit of work. Stock-coupled mutations
// are already transactional inside the order and product repositories, so
// this boundary only guards the sequence against a closed provider.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: unit of work is required")
	}
	if _, err := r.provider.Client(ctx); err != nil {
		return pfirestore.WrapError("registry.runInTx", err)
	}
	return fn(ctx)
}

var _ repositories.Registry = (*Registry)(nil)
