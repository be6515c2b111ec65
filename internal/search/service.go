// Package search answers station queries from the live registry, falling
// back to a static dataset when the registry cannot be reached.
package search

import (
	"context"
	"fmt"

	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/metrics"
	"github.com/angelmondragon/evcharge-backend/pkg/pagination"
)

// Result is one page of stations. Degraded marks pages served by the fallback dataset.
type Result struct {
	Stations   []stations.StationDTO `json:"stations"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	Total      int                   `json:"total"`
	TotalPages int                   `json:"total_pages"`
	Degraded   bool                  `json:"degraded,omitempty"`
}

// Service runs station searches.
type Service interface {
	Search(ctx context.Context, c Criteria) (*Result, error)
}

type service struct {
	primary  DataSource
	fallback DataSource
	metrics  *metrics.EngineMetrics
	logg     *logger.Logger
}

// NewService wires the live source and an optional fallback. A nil fallback
// turns a live failure into an empty degraded page.
func NewService(primary, fallback DataSource, m *metrics.EngineMetrics, logg *logger.Logger) (Service, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary data source required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{primary: primary, fallback: fallback, metrics: m, logg: logg}, nil
}

// Search returns only validation errors; dependency failures degrade instead.
func (s *service) Search(ctx context.Context, c Criteria) (*Result, error) {
	criteria, page, err := c.Normalize()
	if err != nil {
		return nil, err
	}

	candidates, err := s.primary.Candidates(ctx, criteria)
	if err == nil {
		s.metrics.IncSearch(s.primary.Name())
		return paginate(candidates, criteria, page, false), nil
	}
	s.logg.Error(ctx, "live station search failed; using fallback", err)

	if s.fallback != nil {
		candidates, err = s.fallback.Candidates(ctx, criteria)
		if err == nil {
			s.metrics.IncSearch(s.fallback.Name())
			return paginate(candidates, criteria, page, true), nil
		}
		s.logg.Error(ctx, "fallback station search failed", err)
	}
	s.metrics.IncSearch("empty")
	return paginate(nil, criteria, page, true), nil
}

func paginate(candidates []Candidate, c Criteria, page pagination.Page, degraded bool) *Result {
	matched := Filter(candidates, c)
	Order(matched, c)

	total := len(matched)
	start, end := page.Slice(total)
	out := make([]stations.StationDTO, 0, end-start)
	for i := start; i < end; i++ {
		dto := stations.FromModel(&matched[i].Station)
		dto.DistanceMeters = matched[i].DistanceMeters
		out = append(out, *dto)
	}
	return &Result{
		Stations:   out,
		Page:       page.Number,
		PageSize:   page.Size,
		Total:      total,
		TotalPages: page.TotalPages(total),
		Degraded:   degraded,
	}
}
