package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	paris  = Point{Lat: 48.8566, Lon: 2.3522}
	london = Point{Lat: 51.5074, Lon: -0.1278}
)

func TestDistance_KnownPair(t *testing.T) {
	// Paris to London is roughly 343.5 km along the great circle.
	assert.InDelta(t, 343.5, Distance(paris, london), 1.0)
	assert.Equal(t, 343.6, Round1(343.5612))
}

func TestDistance_SymmetricAndZero(t *testing.T) {
	points := []Point{paris, london, {Lat: -33.86, Lon: 151.21}, {Lat: 0, Lon: 179.9}, {Lat: 89.9, Lon: -45}}
	for _, p := range points {
		assert.Equal(t, 0.0, Distance(p, p))
		for _, q := range points {
			assert.InDelta(t, Distance(p, q), Distance(q, p), 1e-9)
		}
	}
}

func TestValid(t *testing.T) {
	assert.True(t, paris.Valid())
	assert.True(t, Point{Lat: -90, Lon: 180}.Valid())
	assert.False(t, Point{Lat: 91, Lon: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lon: -180.5}.Valid())
	assert.False(t, Point{Lat: math.NaN(), Lon: 0}.Valid())
}

func TestBoundingBox_ContainsRadius(t *testing.T) {
	box := BoundingBox(paris, 50)

	// 2 km east of Paris must be inside; Lyon (~390 km) must not.
	near := Point{Lat: 48.8566, Lon: 2.3795}
	lyon := Point{Lat: 45.764, Lon: 4.8357}

	assert.True(t, inBox(box, near))
	assert.False(t, inBox(box, lyon))

	// Every point on the 50 km circle sits inside the box.
	for bearing := 0.0; bearing < 360; bearing += 15 {
		edge := destination(paris, 49.9, bearing)
		assert.True(t, inBox(box, edge), "bearing %v", bearing)
	}
}

func TestBoundingBox_Degenerate(t *testing.T) {
	zero := BoundingBox(paris, 0)
	assert.True(t, inBox(zero, paris))

	polar := BoundingBox(Point{Lat: 89.8, Lon: 10}, 100)
	assert.Equal(t, -180.0, polar.MinLon)
	assert.Equal(t, 180.0, polar.MaxLon)

	dateline := BoundingBox(Point{Lat: 0, Lon: 179.9}, 100)
	assert.Equal(t, -180.0, dateline.MinLon)
	assert.Equal(t, 180.0, dateline.MaxLon)
}

func inBox(b Box, p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

func destination(p Point, km, bearingDeg float64) Point {
	d := km / EarthRadiusKm
	br := toRad(bearingDeg)
	lat1, lon1 := toRad(p.Lat), toRad(p.Lon)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(br))
	lon2 := lon1 + math.Atan2(math.Sin(br)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: lat2 * 180 / math.Pi, Lon: lon2 * 180 / math.Pi}
}
