package models

import (
	"context"
	"time"

	"github.com/core-coin/doorbell/pkg/geo"
)

// RingRequest is a visitor pressing the ring button.
type RingRequest struct {
	VisitUUID string
	// Coords is the visitor's reported location, nil when the browser withheld it.
	Coords *geo.Coordinates
}

// RingDebug summarises the fan-out for observability.
type RingDebug struct {
	SubscriptionsFound int `json:"subscriptionsFound"`
	Succeeded          int `json:"succeeded"`
	Failed             int `json:"failed"`
}

type RingResult struct {
	Success   bool
	Timestamp time.Time
	Debug     RingDebug
	// Proximity is set when the location gate was evaluated.
	Proximity *geo.ProximityResult
}

// Stats is the admin overview.
type Stats struct {
	TotalAddresses      int64    `json:"totalAddresses"`
	TotalVisits         int64    `json:"totalVisits"`
	ActiveSubscriptions int64    `json:"activeSubscriptions"`
	RecentVisits        []*Visit `json:"recentVisits"`
}

// DoorbellI is the application surface consumed by the HTTP API.
type DoorbellI interface {
	// Start launches background maintenance.
	Start()
	Stop()

	CreateVisit(ctx context.Context, addressUUID string) (*Visit, error)
	GetVisit(ctx context.Context, visitUUID string) (*VisitStatus, error)
	Ring(ctx context.Context, req RingRequest) (*RingResult, error)

	Subscribe(ctx context.Context, user CurrentUser, input SubscriptionInput) (*PushSubscription, error)
	ListSubscriptions(ctx context.Context, addressID int64) ([]*PushSubscription, error)

	Stats(ctx context.Context) (*Stats, error)
	VAPIDPublicKey() string
}

type APIServer interface {
	Start()
	Shutdown() error
}
