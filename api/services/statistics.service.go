package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vialactivo/pkg/cache"
	"vialactivo/pkg/ontology"
	"vialactivo/pkg/stats"
	"vialactivo/pkg/store"
)

// StatisticsService computes the dashboard snapshot from one read of the
// report set. Cached results are dropped by ReportService after every
// write and by report events from other processes; the TTL bounds what
// neither path reaches.
type StatisticsService struct {
	store  store.ReportStore
	cache  *cache.StatisticsCache
	logger *zap.Logger
}

// NewStatisticsService builds the service; statsCache may be nil.
func NewStatisticsService(st store.ReportStore, statsCache *cache.StatisticsCache, logger *zap.Logger) *StatisticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatisticsService{
		store:  st,
		cache:  statsCache,
		logger: logger.Named("statistics-service"),
	}
}

func (s *StatisticsService) Compute(ctx context.Context) (*stats.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Statistics cache read failed", zap.Error(err))
		}
	}

	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation()
	}

	reports, err := s.store.FindAllReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reports for statistics: %w", err)
	}

	snap, err := computeFacets(ctx, reports)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if _, err := s.cache.PutIfCurrent(ctx, snap, gen); err != nil {
			s.logger.Warn("Statistics cache write failed", zap.Error(err))
		}
	}
	return &snap, nil
}

// Snapshot computes statistics over an already loaded report set.
func (s *StatisticsService) Snapshot(ctx context.Context, reports []ontology.Report) (stats.Snapshot, error) {
	return computeFacets(ctx, reports)
}

// computeFacets derives each facet from the same slice, checking for
// cancellation between facets.
func computeFacets(ctx context.Context, reports []ontology.Report) (stats.Snapshot, error) {
	estados := stats.CountEstados(reports)
	if err := ctx.Err(); err != nil {
		return stats.Snapshot{}, err
	}
	tipos := stats.CountTipos(reports)
	if err := ctx.Err(); err != nil {
		return stats.Snapshot{}, err
	}
	materiales := stats.EstimateMateriales(reports)
	if err := ctx.Err(); err != nil {
		return stats.Snapshot{}, err
	}
	municipios := stats.RankMunicipios(reports, stats.TopMunicipios)

	return stats.Assemble(estados, tipos, materiales, municipios), nil
}
