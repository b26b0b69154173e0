package services

import (
	"context"
	"errors"

	"github.com/maplecart/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators for the system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
}

type systemService struct {
	health repositories.HealthRepository
}

// NewSystemService wires dependencies into a concrete SystemService.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	return &systemService{health: deps.Health}, nil
}

func (s *systemService) Health(ctx context.Context) (repositories.HealthReport, error) {
	return s.health.Collect(ctx)
}
