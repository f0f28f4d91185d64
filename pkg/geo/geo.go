// Package geo implements the proximity gate used before a ring is accepted.
package geo

import (
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
	EarthRadiusMeters = 6371e3
	// DefaultMaxDistance is the default proximity gate in meters.
	DefaultMaxDistance = 50
)

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	// Accuracy is the GPS accuracy reported by the browser, in meters. Informational only.
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// ProximityResult is the outcome of CheckProximity.
type ProximityResult struct {
	Distance      int  `json:"distance"`
	IsWithinRange bool `json:"isWithinRange"`
	MaxDistance   int  `json:"maxDistance"`
}

// Valid reports whether c is a finite pair inside [-90,90] x [-180,180].
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b, rounded to the nearest meter.
func Distance(a, b Coordinates) int {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	dPhi := toRadians(b.Lat - a.Lat)
	dLambda := toRadians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int(math.Round(EarthRadiusMeters * c))
}

// CheckProximity measures the visitor's distance from the address. A distance
// equal to maxDistance is still within range. A non-positive maxDistance falls
// back to DefaultMaxDistance.
func CheckProximity(address, visitor Coordinates, maxDistance int) ProximityResult {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	distance := Distance(address, visitor)
	return ProximityResult{
		Distance:      distance,
		IsWithinRange: distance <= maxDistance,
		MaxDistance:   maxDistance,
	}
}

// FormatDistance renders meters as "25m" or "1.2km".
func FormatDistance(meters int) string {
	if meters < 1000 {
		return fmt.Sprintf("%dm", meters)
	}
	return fmt.Sprintf("%.1fkm", float64(meters)/1000)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
