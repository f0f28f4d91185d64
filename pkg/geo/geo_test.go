package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var saoPaulo = Coordinates{Lat: -23.5505, Lon: -46.6333}

// metersPerDegreeLat is the arc length of one degree of latitude on the model sphere.
var metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180

func northOf(c Coordinates, meters float64) Coordinates {
	return Coordinates{Lat: c.Lat + meters/metersPerDegreeLat, Lon: c.Lon}
}

func TestDistance(t *testing.T) {
	points := []Coordinates{
		saoPaulo,
		{Lat: 0, Lon: 0},
		{Lat: 90, Lon: 180},
		{Lat: -90, Lon: -180},
		{Lat: 51.5074, Lon: -0.1278},
	}

	t.Run("identical points are zero meters apart", func(t *testing.T) {
		for _, p := range points {
			assert.Equal(t, 0, Distance(p, p), "point %s", p)
		}
	})

	t.Run("distance is symmetric", func(t *testing.T) {
		for _, a := range points {
			for _, b := range points {
				assert.Equal(t, Distance(a, b), Distance(b, a), "%s <-> %s", a, b)
			}
		}
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := Distance(Coordinates{Lat: 0, Lon: 0}, Coordinates{Lat: 1, Lon: 0})
		assert.Equal(t, 111195, d)
	})

	t.Run("200 meters north", func(t *testing.T) {
		assert.InDelta(t, 200, Distance(saoPaulo, northOf(saoPaulo, 200)), 1)
	})
}

func TestCheckProximity(t *testing.T) {
	t.Run("exactly at the limit is within range", func(t *testing.T) {
		visitor := northOf(saoPaulo, 50)
		require.Equal(t, 50, Distance(saoPaulo, visitor))

		res := CheckProximity(saoPaulo, visitor, 50)
		assert.True(t, res.IsWithinRange)
		assert.Equal(t, 50, res.Distance)
		assert.Equal(t, 50, res.MaxDistance)
	})

	t.Run("one meter past the limit is out of range", func(t *testing.T) {
		visitor := northOf(saoPaulo, 51)
		require.Equal(t, 51, Distance(saoPaulo, visitor))

		res := CheckProximity(saoPaulo, visitor, 50)
		assert.False(t, res.IsWithinRange)
		assert.Equal(t, 51, res.Distance)
	})

	t.Run("non-positive limit uses the default", func(t *testing.T) {
		res := CheckProximity(saoPaulo, saoPaulo, 0)
		assert.Equal(t, DefaultMaxDistance, res.MaxDistance)
		assert.True(t, res.IsWithinRange)
	})
}

func TestCoordinatesValid(t *testing.T) {
	tests := []struct {
		name  string
		c     Coordinates
		valid bool
	}{
		{"origin", Coordinates{0, 0, nil}, true},
		{"corners", Coordinates{-90, 180, nil}, true},
		{"lat too high", Coordinates{90.0001, 0, nil}, false},
		{"lon too low", Coordinates{0, -180.5, nil}, false},
		{"nan", Coordinates{math.NaN(), 0, nil}, false},
		{"inf", Coordinates{0, math.Inf(1), nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.c.Valid())
		})
	}
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "25m", FormatDistance(25))
	assert.Equal(t, "999m", FormatDistance(999))
	assert.Equal(t, "1.2km", FormatDistance(1234))
}
