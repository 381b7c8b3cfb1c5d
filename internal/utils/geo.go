package utils

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const (
	EarthRadiusKm = 6371.0
	// KmPerDegree is the length of one degree of latitude.
	KmPerDegree = 111.0
	// GeohashPrecision gives cells of roughly 150m x 150m.
	GeohashPrecision uint = 7
)

// GeoPoint represents a geographical point with latitude and longitude
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// BoundingBox is an axis-aligned lat/lon rectangle
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// EncodeLocation converts a location to a geohash string
func EncodeLocation(lat, lon float64) string {
	return geohash.EncodeWithPrecision(lat, lon, GeohashPrecision)
}

// CalculateDistance returns the great-circle distance in kilometers (haversine)
func CalculateDistance(p1, p2 GeoPoint) float64 {
	lat1 := p1.Latitude * math.Pi / 180.0
	lat2 := p2.Latitude * math.Pi / 180.0
	dLat := lat2 - lat1
	dLon := (p2.Longitude - p1.Longitude) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return EarthRadiusKm * c
}

// BoundingBoxAround returns the box that contains every point within radiusKm of center.
// Longitude span widens with cos(latitude); near the poles it covers every longitude.
func BoundingBoxAround(center GeoPoint, radiusKm float64) BoundingBox {
	latDelta := radiusKm / KmPerDegree
	box := BoundingBox{
		MinLat: math.Max(center.Latitude-latDelta, -90),
		MaxLat: math.Min(center.Latitude+latDelta, 90),
		MinLon: -180,
		MaxLon: 180,
	}

	cosLat := math.Cos(center.Latitude * math.Pi / 180.0)
	if cosLat > 1e-6 {
		lonDelta := radiusKm / (KmPerDegree * cosLat)
		minLon, maxLon := center.Longitude-lonDelta, center.Longitude+lonDelta
		// a box crossing the antimeridian falls back to the full longitude range
		if minLon >= -180 && maxLon <= 180 {
			box.MinLon = minLon
			box.MaxLon = maxLon
		}
	}
	return box
}

// ValidCoordinates reports whether lat/lon are within their legal ranges
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
