package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVisitExpiry(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := &Visit{CreatedAt: created}

	assert.Equal(t, created.Add(15*time.Minute), v.ExpiresAt(VisitTTL))

	tests := []struct {
		name    string
		elapsed time.Duration
		state   VisitState
	}{
		{"just created", 0, VisitStateActive},
		{"at 14:59", 14*time.Minute + 59*time.Second, VisitStateActive},
		{"exactly at ttl", 15 * time.Minute, VisitStateActive},
		{"at 15:01", 15*time.Minute + time.Second, VisitStateExpired},
		{"a day later", 24 * time.Hour, VisitStateExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := created.Add(tt.elapsed)
			assert.Equal(t, tt.state, v.State(now, VisitTTL))
			assert.Equal(t, tt.state == VisitStateExpired, v.IsExpired(now, VisitTTL))
		})
	}
}

func TestAddressCoordinates(t *testing.T) {
	lat, lon := -23.5505, -46.6333
	bad := 123.0

	_, ok := (&Address{}).Coordinates()
	assert.False(t, ok, "no coordinates registered")

	_, ok = (&Address{Latitude: &lat}).Coordinates()
	assert.False(t, ok, "latitude only")

	_, ok = (&Address{Latitude: &bad, Longitude: &lon}).Coordinates()
	assert.False(t, ok, "latitude out of range")

	c, ok := (&Address{Latitude: &lat, Longitude: &lon}).Coordinates()
	assert.True(t, ok)
	assert.Equal(t, lat, c.Lat)
	assert.Equal(t, lon, c.Lon)

	var nilAddr *Address
	_, ok = nilAddr.Coordinates()
	assert.False(t, ok)
}
