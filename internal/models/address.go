package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/core-coin/doorbell/pkg/geo"
)

// Address is a registered physical location. Registration and edits live
// outside this service; the doorbell only reads it.
type Address struct {
	// ID is the internal identifier referenced by visits and subscriptions.
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// UUID is the identifier printed in the QR code.
	UUID string `json:"uuid" gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	// Latitude and Longitude are optional; without them proximity gating is skipped.
	Latitude  *float64  `json:"latitude,omitempty" gorm:"column:latitude"`
	Longitude *float64  `json:"longitude,omitempty" gorm:"column:longitude"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at"`
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	return nil
}

// Coordinates returns the registered location, if any.
func (a *Address) Coordinates() (geo.Coordinates, bool) {
	if a == nil || a.Latitude == nil || a.Longitude == nil {
		return geo.Coordinates{}, false
	}
	c := geo.Coordinates{Lat: *a.Latitude, Lon: *a.Longitude}
	return c, c.Valid()
}

// CurrentUser is the authenticated resident resolved from the request.
type CurrentUser struct {
	UserID    string
	AddressID int64
}
