// Package geo implements great-circle distance helpers used by discovery.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the point lies within lat [-90,90] and lon [-180,180].
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance between p and q in kilometers.
func Distance(p, q Point) float64 {
	dLat := toRad(q.Lat - p.Lat)
	dLon := toRad(q.Lon - p.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(p.Lat))*math.Cos(toRad(q.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Round1 rounds km to one decimal place.
func Round1(km float64) float64 {
	return math.Round(km*10) / 10
}

// Box is a lat/lon rectangle used as a coarse SQL prefilter.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a box that contains every point within radiusKm of p.
// Near the poles or across the antimeridian the longitude span widens to
// the full range; the exact check is always done with Distance afterwards.
func BoundingBox(p Point, radiusKm float64) Box {
	if radiusKm < 0 {
		radiusKm = 0
	}
	dLat := radiusKm / EarthRadiusKm * 180 / math.Pi

	box := Box{
		MinLat: math.Max(p.Lat-dLat, -90),
		MaxLat: math.Min(p.Lat+dLat, 90),
		MinLon: -180,
		MaxLon: 180,
	}

	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return box
	}

	dLon := math.Asin(math.Min(1, math.Sin(radiusKm/EarthRadiusKm))/math.Cos(toRad(p.Lat))) * 180 / math.Pi
	if math.IsNaN(dLon) || p.Lon-dLon < -180 || p.Lon+dLon > 180 {
		return box
	}
	box.MinLon = p.Lon - dLon
	box.MaxLon = p.Lon + dLon
	return box
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
