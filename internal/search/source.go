package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/evcharge-backend/internal/geoindex"
	"github.com/angelmondragon/evcharge-backend/internal/stations"
	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
)

// DataSource supplies unfiltered-or-prefiltered candidates for a search.
// Implementations may narrow by status or geo radius; the service applies
// the full predicate set afterwards.
type DataSource interface {
	Name() string
	Candidates(ctx context.Context, c Criteria) ([]Candidate, error)
}

type stationLister interface {
	List(ctx context.Context, filter stations.ListFilter) ([]models.Station, error)
}

type radiusQuerier interface {
	Query(center geoindex.Point, radiusKm float64) ([]geoindex.Hit, error)
}

// LiveSource reads the registry through the shared geo index.
type LiveSource struct {
	repo    stationLister
	index   radiusQuerier
	timeout time.Duration
}

func NewLiveSource(repo stationLister, index radiusQuerier, timeout time.Duration) (*LiveSource, error) {
	if repo == nil {
		return nil, fmt.Errorf("station repository required")
	}
	if index == nil {
		return nil, fmt.Errorf("geo index required")
	}
	return &LiveSource{repo: repo, index: index, timeout: timeout}, nil
}

func (s *LiveSource) Name() string { return "live" }

func (s *LiveSource) Candidates(ctx context.Context, c Criteria) ([]Candidate, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	filter := stations.ListFilter{Status: c.Status}
	var distances map[uuid.UUID]float64
	if c.GeoMode() {
		hits, err := s.index.Query(*c.Center, c.RadiusKm)
		if err != nil {
			return nil, err
		}
		distances = make(map[uuid.UUID]float64, len(hits))
		filter.IDs = make([]uuid.UUID, 0, len(hits))
		for _, hit := range hits {
			id, err := uuid.Parse(hit.StationID)
			if err != nil {
				continue
			}
			distances[id] = hit.DistanceMeters
			filter.IDs = append(filter.IDs, id)
		}
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(rows))
	for i := range rows {
		cand := Candidate{Station: rows[i]}
		if distances != nil {
			d, ok := distances[rows[i].ID]
			if !ok {
				continue
			}
			cand.DistanceMeters = &d
		}
		out = append(out, cand)
	}
	return out, nil
}
