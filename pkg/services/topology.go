package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/helixdata/onboard-engine/pkg/models"
	"github.com/helixdata/onboard-engine/pkg/repositories"
)

// TopologyService decides whether a request's datasource topology
// differs from what is stored for the application.
type TopologyService interface {
	// Diff compares the incoming topology against the stored one.
	// For a first-time onboarding there is nothing stored, so the
	// topology always counts as changed. previous is non-nil only for
	// a changed update.
	Diff(ctx context.Context, appName string, next models.AppDataSource, isUpdate bool) (changed bool, previous *models.AppDataSource, err error)
}

type topologyService struct {
	apps   repositories.AppRepository
	logger *zap.Logger
}

// NewTopologyService creates a topology diff service.
func NewTopologyService(apps repositories.AppRepository, logger *zap.Logger) TopologyService {
	return &topologyService{
		apps:   apps,
		logger: logger.Named("topology"),
	}
}

func (s *topologyService) Diff(ctx context.Context, appName string, next models.AppDataSource, isUpdate bool) (bool, *models.AppDataSource, error) {
	if !isUpdate {
		return true, nil, nil
	}

	stored, err := s.apps.Get(ctx, appName)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load stored topology for %q: %w", appName, err)
	}

	changed := !stored.AppDataSource.Equal(next)
	s.logger.Debug("compared topologies",
		zap.String("app_name", appName),
		zap.Bool("changed", changed))
	if !changed {
		// No previous topology to report when nothing moved.
		return false, nil, nil
	}
	return true, &stored.AppDataSource, nil
}
