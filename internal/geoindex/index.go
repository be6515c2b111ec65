package geoindex

import (
	"math"
	"sort"
	"sync"

	pkgerrors "github.com/angelmondragon/evcharge-backend/pkg/errors"
)

// EarthRadiusMeters is the mean earth radius used for every distance.
const EarthRadiusMeters = 6371008.8

// DefaultCellDegrees sizes grid cells at roughly 11 km of latitude.
const DefaultCellDegrees = 0.1

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude must be between -90 and 90")
	}
	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "longitude must be between -180 and 180")
	}
	return nil
}

// Hit is a station within the queried radius.
type Hit struct {
	StationID      string
	DistanceMeters float64
}

type cell struct {
	row int
	col int
}

// Index is an in-memory grid of station coordinates. It is safe for
// concurrent use; queries share a read lock.
type Index struct {
	mu      sync.RWMutex
	cellDeg float64
	rows    int
	cols    int
	points  map[string]Point
	cells   map[cell]map[string]struct{}
}

func New(cellDegrees float64) *Index {
	if cellDegrees <= 0 || cellDegrees > 90 {
		cellDegrees = DefaultCellDegrees
	}
	return &Index{
		cellDeg: cellDegrees,
		rows:    int(math.Ceil(180 / cellDegrees)),
		cols:    int(math.Ceil(360 / cellDegrees)),
		points:  map[string]Point{},
		cells:   map[cell]map[string]struct{}{},
	}
}

// Upsert inserts a station or moves it to a new coordinate.
func (i *Index) Upsert(stationID string, p Point) error {
	if stationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "station id is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.points[stationID]; ok {
		i.detach(stationID, prev)
	}
	c := i.cellOf(p)
	bucket := i.cells[c]
	if bucket == nil {
		bucket = map[string]struct{}{}
		i.cells[c] = bucket
	}
	bucket[stationID] = struct{}{}
	i.points[stationID] = p
	return nil
}

// Remove drops a station; unknown ids are ignored.
func (i *Index) Remove(stationID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if prev, ok := i.points[stationID]; ok {
		i.detach(stationID, prev)
		delete(i.points, stationID)
	}
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.points)
}

// Lookup returns the indexed coordinate of a station.
func (i *Index) Lookup(stationID string) (Point, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.points[stationID]
	return p, ok
}

// Query returns every station within radiusKm of center, nearest first with
// ties broken by station id.
func (i *Index) Query(center Point, radiusKm float64) ([]Hit, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || radiusKm <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "radius must be positive")
	}
	radius := radiusKm * 1000

	i.mu.RLock()
	defer i.mu.RUnlock()

	hits := make([]Hit, 0)
	consider := func(id string, p Point) {
		if d := Distance(center, p); d <= radius {
			hits = append(hits, Hit{StationID: id, DistanceMeters: d})
		}
	}

	cells, full := i.coverage(center, radius)
	if full {
		for id, p := range i.points {
			consider(id, p)
		}
	} else {
		for _, c := range cells {
			for id := range i.cells[c] {
				consider(id, i.points[id])
			}
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].DistanceMeters != hits[b].DistanceMeters {
			return hits[a].DistanceMeters < hits[b].DistanceMeters
		}
		return hits[a].StationID < hits[b].StationID
	})
	return hits, nil
}

// coverage lists the grid cells intersecting the bounding box of the query
// circle. full is true when a scan of every point is cheaper or required.
func (i *Index) coverage(center Point, radius float64) ([]cell, bool) {
	if radius >= math.Pi*EarthRadiusMeters/2 {
		return nil, true
	}
	angular := radius / EarthRadiusMeters
	dLat := degrees(angular)
	minLat, maxLat := center.Lat-dLat, center.Lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return nil, true
	}
	s := math.Sin(angular) / math.Cos(radians(center.Lat))
	if s >= 1 {
		return nil, true
	}
	dLng := degrees(math.Asin(s))

	rowLo, rowHi := i.row(minLat), i.row(maxLat)
	colLo := int(math.Floor((center.Lng - dLng + 180) / i.cellDeg))
	colHi := int(math.Floor((center.Lng + dLng + 180) / i.cellDeg))
	span := colHi - colLo + 1
	if span >= i.cols {
		colLo, span = 0, i.cols
	}
	if (rowHi-rowLo+1)*span > len(i.points) {
		return nil, true
	}

	out := make([]cell, 0, (rowHi-rowLo+1)*span)
	for r := rowLo; r <= rowHi; r++ {
		for k := 0; k < span; k++ {
			out = append(out, cell{row: r, col: wrap(colLo+k, i.cols)})
		}
	}
	return out, false
}

func (i *Index) detach(stationID string, p Point) {
	c := i.cellOf(p)
	if bucket := i.cells[c]; bucket != nil {
		delete(bucket, stationID)
		if len(bucket) == 0 {
			delete(i.cells, c)
		}
	}
}

func (i *Index) cellOf(p Point) cell {
	return cell{row: i.row(p.Lat), col: wrap(int(math.Floor((p.Lng+180)/i.cellDeg)), i.cols)}
}

func (i *Index) row(lat float64) int {
	r := int(math.Floor((lat + 90) / i.cellDeg))
	if r >= i.rows {
		r = i.rows - 1
	}
	if r < 0 {
		r = 0
	}
	return r
}

func wrap(col, n int) int {
	col %= n
	if col < 0 {
		col += n
	}
	return col
}

// Distance is the haversine great-circle distance in meters.
func Distance(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
