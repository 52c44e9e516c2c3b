package services

import (
	"context"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
	"github.com/dmdorta1111/AirTable-sub000/pkg/depgraph"
	"github.com/dmdorta1111/AirTable-sub000/pkg/expression"
)

// Config carries the tunables the services need at construction time.
type Config struct {
	Recompute RecomputeOptions
	// RefreshCron schedules volatile formula refresh; empty disables it.
	RefreshCron string
}

// ServiceManager wires all services with dependency injection.
type ServiceManager struct {
	Graph      *depgraph.Graph
	Expression *expression.Engine

	Fields    *FieldService
	Records   *RecordService
	Recompute *RecomputeService
	Refresh   *RefreshService
}

// NewServiceManager creates a new service manager over the given stores.
func NewServiceManager(catalog ports.FieldCatalog, store ports.RecordStore, cfg Config) (*ServiceManager, error) {
	sm := &ServiceManager{
		Graph:      depgraph.New(),
		Expression: expression.NewEngine(),
	}

	// Initialize services in dependency order
	sm.Fields = NewFieldService(catalog, sm.Graph, sm.Expression)
	sm.Recompute = NewRecomputeService(catalog, store, sm.Fields, sm.Graph, sm.Expression, cfg.Recompute)
	sm.Fields.SetBackfill(sm.Recompute.BackfillField)
	sm.Records = NewRecordService(catalog, store, sm.Recompute)

	if cfg.RefreshCron != "" {
		refresh, err := NewRefreshService(catalog, store, sm.Recompute, cfg.RefreshCron)
		if err != nil {
			return nil, err
		}
		sm.Refresh = refresh
	}

	if err := sm.Fields.RebuildGraph(context.Background()); err != nil {
		return nil, err
	}
	return sm, nil
}

// Start launches background loops.
func (sm *ServiceManager) Start() {
	if sm.Refresh != nil {
		go sm.Refresh.Start()
	}
}

// Stop shuts background loops down.
func (sm *ServiceManager) Stop() {
	if sm.Refresh != nil {
		sm.Refresh.Stop()
	}
}
