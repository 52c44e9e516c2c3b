package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmdorta1111/AirTable-sub000/internal/domain/ports"
)

// RefreshService periodically re-evaluates volatile formulas (NOW, TODAY)
// so their stored values track the clock. The schedule is a standard
// five-field cron expression.
type RefreshService struct {
	catalog   ports.FieldCatalog
	store     ports.RecordStore
	recompute *RecomputeService
	schedule  cron.Schedule

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopped  bool // prevents double-close of stopChan
}

// NewRefreshService creates a refresh service from a cron expression.
func NewRefreshService(catalog ports.FieldCatalog, store ports.RecordStore, recompute *RecomputeService, cronExpr string) (*RefreshService, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", cronExpr, err)
	}
	return &RefreshService{
		catalog:   catalog,
		store:     store,
		recompute: recompute,
		schedule:  schedule,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the refresh background loop.
func (s *RefreshService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ Volatile formula refresh starting...")

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.RefreshAll(context.Background())
			}()
		case <-s.stopChan:
			timer.Stop()
			log.Println("⏰ Volatile formula refresh stopping...")
			s.wg.Wait()
			log.Println("⏰ Volatile formula refresh stopped")
			return
		}
	}
}

// Stop gracefully stops the refresh loop.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	if !s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopped = true
	s.mu.Unlock()

	close(s.stopChan)
}

// RefreshAll re-evaluates every volatile formula field across all records.
// Non-volatile dependents recompute automatically through the usual cascade.
func (s *RefreshService) RefreshAll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic in volatile refresh: %v", r)
		}
	}()

	tables, err := s.catalog.ListTables(ctx)
	if err != nil {
		log.Printf("⚠️ Volatile refresh: listing tables failed: %v", err)
		return
	}

	start := time.Now()
	refreshed := 0
	for i := range tables {
		table := &tables[i]
		var volatile []string
		for j := range table.Fields {
			f := &table.Fields[j]
			if f.Formula != nil && f.Formula.Volatile {
				volatile = append(volatile, f.ID)
			}
		}
		if len(volatile) == 0 {
			continue
		}
		recordIDs, err := s.store.ListRecordIDs(ctx, table.ID)
		if err != nil {
			log.Printf("⚠️ Volatile refresh: listing records of %s failed: %v", table.Name, err)
			continue
		}
		for _, recordID := range recordIDs {
			if err := s.recompute.RecomputeFields(ctx, table.ID, recordID, volatile); err != nil {
				log.Printf("⚠️ Volatile refresh: %s/%s: %v", table.Name, recordID, err)
				continue
			}
			refreshed++
		}
	}
	if refreshed > 0 {
		log.Printf("✅ Volatile refresh touched %d record(s) in %v", refreshed, time.Since(start))
	}
}
