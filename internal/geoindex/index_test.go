package geoindex

import (
	"math"
	"math/rand"
	"sort"
	"strconv"
	"testing"
)

// offset moves p by distance meters along bearing degrees.
func offset(p Point, bearing, meters float64) Point {
	d := meters / EarthRadiusMeters
	b := radians(bearing)
	lat1, lng1 := radians(p.Lat), radians(p.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(b))
	lng2 := lng1 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	lng := degrees(lng2)
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return Point{Lat: degrees(lat2), Lng: lng}
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.StationID
	}
	return out
}

func TestQueryReturnsNearestFirstWithinRadius(t *testing.T) {
	center := Point{Lat: 12.9716, Lng: 77.5946}
	idx := New(DefaultCellDegrees)
	mustUpsert(t, idx, "far", offset(center, 90, 12000))
	mustUpsert(t, idx, "mid", offset(center, 200, 3000))
	mustUpsert(t, idx, "near", offset(center, 10, 500))

	hits, err := idx.Query(center, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	got := ids(hits)
	if len(got) != 2 || got[0] != "near" || got[1] != "mid" {
		t.Fatalf("expected [near mid], got %v", got)
	}
	if math.Abs(hits[0].DistanceMeters-500) > 1 {
		t.Fatalf("expected ~500m, got %f", hits[0].DistanceMeters)
	}
}

func TestQueryBreaksTiesByID(t *testing.T) {
	center := Point{Lat: 0, Lng: 0}
	idx := New(DefaultCellDegrees)
	p := offset(center, 45, 1000)
	mustUpsert(t, idx, "b", p)
	mustUpsert(t, idx, "a", p)

	hits, _ := idx.Query(center, 5)
	if got := ids(hits); len(got) != 2 || got[0] != "a" {
		t.Fatalf("expected a before b, got %v", got)
	}
}

func TestUpsertMovesAndRemoveDeletes(t *testing.T) {
	center := Point{Lat: 48.8566, Lng: 2.3522}
	idx := New(DefaultCellDegrees)
	mustUpsert(t, idx, "s1", offset(center, 0, 1000))
	mustUpsert(t, idx, "s1", offset(center, 0, 50000))

	hits, _ := idx.Query(center, 10)
	if len(hits) != 0 {
		t.Fatalf("expected moved station out of range, got %v", ids(hits))
	}
	if idx.Len() != 1 {
		t.Fatalf("expected one indexed station, got %d", idx.Len())
	}

	idx.Remove("s1")
	idx.Remove("missing")
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d", idx.Len())
	}
	if _, ok := idx.Lookup("s1"); ok {
		t.Fatal("expected lookup miss after remove")
	}
}

func TestQueryAcrossAntimeridian(t *testing.T) {
	center := Point{Lat: -16.5, Lng: 179.95}
	idx := New(DefaultCellDegrees)
	mustUpsert(t, idx, "east", Point{Lat: -16.5, Lng: -179.95})
	for k := 0; k < 50; k++ {
		mustUpsert(t, idx, string(rune('a'+k%26))+"-filler", Point{Lat: 40, Lng: float64(k)})
	}

	hits, err := idx.Query(center, 15)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := ids(hits); len(got) != 1 || got[0] != "east" {
		t.Fatalf("expected east across the antimeridian, got %v", got)
	}
}

func TestQueryNearPole(t *testing.T) {
	center := Point{Lat: 89.99, Lng: 0}
	idx := New(DefaultCellDegrees)
	mustUpsert(t, idx, "other-side", Point{Lat: 89.99, Lng: 180})

	hits, err := idx.Query(center, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected station across the pole, got %v", ids(hits))
	}
}

func TestQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	idx := New(DefaultCellDegrees)
	points := map[string]Point{}
	for k := 0; k < 3000; k++ {
		id := "st-" + string(rune('A'+k%26)) + "-" + strconv.Itoa(k)
		p := Point{Lat: 10 + rng.Float64()*4, Lng: 76 + rng.Float64()*4}
		points[id] = p
		mustUpsert(t, idx, id, p)
	}

	center := Point{Lat: 12, Lng: 78}
	for _, radius := range []float64{1, 5, 25, 80} {
		hits, err := idx.Query(center, radius)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		var want []string
		for id, p := range points {
			if Distance(center, p) <= radius*1000 {
				want = append(want, id)
			}
		}
		got := ids(hits)
		sort.Strings(got)
		sort.Strings(want)
		if len(got) != len(want) {
			t.Fatalf("radius %v: expected %d hits, got %d", radius, len(want), len(got))
		}
		for k := range want {
			if got[k] != want[k] {
				t.Fatalf("radius %v: mismatch at %d: %s vs %s", radius, k, got[k], want[k])
			}
		}
	}
}

func TestQueryValidation(t *testing.T) {
	idx := New(0)
	if _, err := idx.Query(Point{Lat: 91}, 5); err == nil {
		t.Fatal("expected latitude error")
	}
	if _, err := idx.Query(Point{}, 0); err == nil {
		t.Fatal("expected radius error")
	}
	if err := idx.Upsert("", Point{}); err == nil {
		t.Fatal("expected id error")
	}
	if err := idx.Upsert("x", Point{Lng: 181}); err == nil {
		t.Fatal("expected longitude error")
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Bengaluru to Chennai is about 290 km on the great circle.
	d := Distance(Point{Lat: 12.9716, Lng: 77.5946}, Point{Lat: 13.0827, Lng: 80.2707})
	if d < 285000 || d > 295000 {
		t.Fatalf("unexpected distance %f", d)
	}
}

func mustUpsert(t *testing.T, idx *Index, id string, p Point) {
	t.Helper()
	if err := idx.Upsert(id, p); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}
