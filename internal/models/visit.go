package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VisitTTL is how long a visit accepts ring attempts after the QR scan.
const VisitTTL = 15 * time.Minute

type VisitState string

const (
	VisitStateActive  VisitState = "ACTIVE"
	VisitStateExpired VisitState = "EXPIRED"
)

// Visit is one QR-code scan session. Expiry is derived from CreatedAt and
// never stored.
type Visit struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	UUID      string `json:"uuid" gorm:"column:uuid;type:varchar(36);uniqueIndex;not null"`
	AddressID int64  `json:"addressId" gorm:"column:address_id;index;not null"`
	// Used is set once the visitor rang at least once.
	Used      bool       `json:"used" gorm:"column:used;not null;default:false"`
	RungAt    *time.Time `json:"rungAt,omitempty" gorm:"column:rung_at"`
	CreatedAt time.Time  `json:"createdAt" gorm:"column:created_at;index"`

	Address *Address `json:"-" gorm:"foreignKey:AddressID;constraint:OnDelete:CASCADE"`
}

func (v *Visit) BeforeCreate(tx *gorm.DB) error {
	if v.UUID == "" {
		v.UUID = uuid.NewString()
	}
	return nil
}

// ExpiresAt is the last instant at which the visit is still active.
func (v *Visit) ExpiresAt(ttl time.Duration) time.Time {
	return v.CreatedAt.Add(ttl)
}

// IsExpired reports whether now is strictly past the expiry instant.
func (v *Visit) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.After(v.ExpiresAt(ttl))
}

func (v *Visit) State(now time.Time, ttl time.Duration) VisitState {
	if v.IsExpired(now, ttl) {
		return VisitStateExpired
	}
	return VisitStateActive
}

// VisitStatus is a visit together with its computed expiry.
type VisitStatus struct {
	Visit     *Visit
	ExpiredAt time.Time
	IsExpired bool
	State     VisitState
}
