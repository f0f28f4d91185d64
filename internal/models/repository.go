package models

import (
	"context"
	"time"
)

type AddressRepository interface {
	CreateAddress(ctx context.Context, address *Address) error
	// GetAddressByUUID returns ErrAddressNotFound for unknown UUIDs.
	GetAddressByUUID(ctx context.Context, uuid string) (*Address, error)
	GetAddressByID(ctx context.Context, id int64) (*Address, error)
	// LockAddress serializes writers for one address until the enclosing
	// transaction ends.
	LockAddress(ctx context.Context, id int64) error
	CountAddresses(ctx context.Context) (int64, error)
}

type VisitRepository interface {
	CreateVisit(ctx context.Context, visit *Visit) error
	// GetVisitByUUID returns the visit with its Address loaded, or ErrVisitNotFound.
	GetVisitByUUID(ctx context.Context, uuid string) (*Visit, error)
	MarkVisitRung(ctx context.Context, id int64, at time.Time) error
	DeleteVisitsCreatedBefore(ctx context.Context, t time.Time) (int64, error)
	CountVisits(ctx context.Context) (int64, error)
	RecentVisits(ctx context.Context, limit int) ([]*Visit, error)
}

type SubscriptionRepository interface {
	// FindSubscriptionByEndpoint returns ErrSubscriptionNotFound when absent.
	FindSubscriptionByEndpoint(ctx context.Context, endpoint string) (*PushSubscription, error)
	CreateSubscription(ctx context.Context, sub *PushSubscription) error
	UpdateSubscription(ctx context.Context, sub *PushSubscription) error
	// ListActiveSubscriptions orders newest first. A nil addressID lists all
	// addresses; limit <= 0 means no limit.
	ListActiveSubscriptions(ctx context.Context, addressID *int64, limit int) ([]*PushSubscription, error)
	DeactivateSubscriptions(ctx context.Context, ids []int64, at time.Time) (int64, error)
	CountActiveSubscriptions(ctx context.Context) (int64, error)
}

type LockRepository interface {
	// AcquireLock takes or renews the named lease. It returns false when
	// another instance holds an unexpired lease.
	AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, instanceID string) error
}

type Repository interface {
	AddressRepository
	VisitRepository
	SubscriptionRepository
	LockRepository

	// Transaction runs fn against a repository bound to one transaction.
	// Returning an error rolls back.
	Transaction(ctx context.Context, fn func(repo Repository) error) error
	Close() error
}
