package models

import "time"

// PushSubscription is one browser's Web Push endpoint for an address.
// Rows are soft-deleted through IsActive and never removed.
type PushSubscription struct {
	ID        int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	AddressID int64  `json:"addressId" gorm:"column:address_id;not null;index:idx_push_subscriptions_address_active"`
	UserID    string `json:"userId" gorm:"column:user_id;not null;index"`
	// Endpoint is unique across the system; re-subscribing updates the row.
	Endpoint  string    `json:"endpoint" gorm:"column:endpoint;type:text;uniqueIndex;not null"`
	P256dh    string    `json:"-" gorm:"column:p256dh;type:text;not null"`
	Auth      string    `json:"-" gorm:"column:auth;type:text;not null"`
	IsActive  bool      `json:"isActive" gorm:"column:is_active;not null;default:true;index:idx_push_subscriptions_address_active"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updated_at"`

	Address *Address `json:"-" gorm:"foreignKey:AddressID;constraint:OnDelete:CASCADE"`
}

// SubscriptionKeys is the key material a browser hands out with its endpoint.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" binding:"required"`
	Auth   string `json:"auth" binding:"required"`
}

// SubscriptionInput mirrors the browser's PushSubscription.toJSON() shape.
type SubscriptionInput struct {
	Endpoint string           `json:"endpoint" binding:"required"`
	Keys     SubscriptionKeys `json:"keys"`
}
