// Package geo holds the geometry used by the report queries: great-circle
// distances, search bounds for the spatial index and the bounding-box polygon.
package geo

import (
	"sort"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"

	"vialactivo/pkg/ontology"
)

// ToOrb converts a report location to an orb point.
func ToOrb(p ontology.Point) orb.Point {
	return orb.Point{p.Longitude(), p.Latitude()}
}

// DistanceMeters is the haversine distance on a sphere of radius
// orb.EarthRadius (6378137 m).
func DistanceMeters(a, b orb.Point) float64 {
	return orbgeo.DistanceHaversine(a, b)
}

// SearchBound returns the lng/lat rectangle enclosing every point within
// meters of center. ok is false when the rectangle leaves the valid domain
// or wraps around the antimeridian; callers must then scan instead of
// using an index.
func SearchBound(center orb.Point, meters float64) (bound orb.Bound, ok bool) {
	bound = orbgeo.NewBoundAroundPoint(center, meters)
	ok = bound.Min.Lon() >= -180 && bound.Max.Lon() <= 180 &&
		bound.Min.Lat() >= -90 && bound.Max.Lat() <= 90 &&
		bound.Min.Lon() <= bound.Max.Lon()
	return bound, ok
}

// BoundingBoxPolygon expresses the query corners as the closed ring
// (ne, se, sw, nw, ne).
func BoundingBoxPolygon(q ontology.BoundingBoxQuery) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{q.NeLng, q.NeLat},
		{q.NeLng, q.SwLat},
		{q.SwLng, q.SwLat},
		{q.SwLng, q.NeLat},
		{q.NeLng, q.NeLat},
	}}
}

// Contains reports whether p lies inside poly; boundary points are inside.
func Contains(poly orb.Polygon, p orb.Point) bool {
	return planar.PolygonContains(poly, p)
}

// FilterNear keeps the reports within q.MaxDistanceMeters of the query point
// and orders them nearest first. Equal distances keep their input order.
func FilterNear(reports []ontology.Report, q ontology.NearQuery) []ontology.Report {
	center := orb.Point{q.Longitude, q.Latitude}

	type ranked struct {
		report   ontology.Report
		distance float64
	}
	hits := make([]ranked, 0, len(reports))
	for _, r := range reports {
		d := DistanceMeters(center, ToOrb(r.Ubicacion))
		if d <= q.MaxDistanceMeters {
			hits = append(hits, ranked{report: r, distance: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].distance < hits[j].distance
	})

	out := make([]ontology.Report, len(hits))
	for i, h := range hits {
		out[i] = h.report
	}
	return out
}

// FilterWithin keeps the reports whose location lies inside poly.
func FilterWithin(reports []ontology.Report, poly orb.Polygon) []ontology.Report {
	out := make([]ontology.Report, 0, len(reports))
	for _, r := range reports {
		if Contains(poly, ToOrb(r.Ubicacion)) {
			out = append(out, r)
		}
	}
	return out
}
