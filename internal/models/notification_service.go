package models

import "context"

// PushTransport delivers one serialized payload to one browser endpoint.
type PushTransport interface {
	Send(ctx context.Context, sub *PushSubscription, payload []byte) error
}

// Alerter posts operational messages to a human-facing channel.
type Alerter interface {
	Alert(ctx context.Context, message string) error
}

// EndpointResult is the outcome of one send during a dispatch.
type EndpointResult struct {
	SubscriptionID int64  `json:"subscriptionId"`
	Endpoint       string `json:"endpoint"`
	Success        bool   `json:"success"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DispatchResult aggregates a fan-out once every send has settled.
type DispatchResult struct {
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []EndpointResult `json:"results"`
}

// NotificationService fans a payload out to every active subscription of an address.
type NotificationService interface {
	Dispatch(ctx context.Context, addressID int64, payload *NotificationPayload) (*DispatchResult, error)
}
