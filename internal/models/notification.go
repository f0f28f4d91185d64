package models

import (
	"fmt"
	"time"

	"github.com/core-coin/doorbell/pkg/geo"
)

const (
	// RingTag lets the service worker replace repeated notifications for one ring.
	RingTag = "doorbell-ring"

	// ISO8601 matches what browsers produce with Date.toISOString().
	ISO8601 = "2006-01-02T15:04:05.000Z07:00"
)

var ringVibration = []int{1000, 500, 1000, 500, 1000}

// NotificationAction is a button rendered on the notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NotificationPayload is the JSON document delivered through Web Push.
// Field names are consumed by the service worker and must not change.
type NotificationPayload struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Tag                string               `json:"tag"`
	Icon               string               `json:"icon"`
	Badge              string               `json:"badge"`
	Sound              string               `json:"sound,omitempty"`
	VisitID            string               `json:"visitId"`
	Timestamp          string               `json:"timestamp"`
	Vibrate            []int                `json:"vibrate"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Actions            []NotificationAction `json:"actions"`
}

// NewRingPayload builds the notification sent to residents when a visitor rings.
// proximity is nil when the visitor's location was not checked.
func NewRingPayload(visitUUID string, at time.Time, proximity *geo.ProximityResult) *NotificationPayload {
	body := "A visitor rang your doorbell"
	if proximity != nil {
		body = fmt.Sprintf("A visitor rang your doorbell (%s away)", geo.FormatDistance(proximity.Distance))
	}
	vibrate := make([]int, len(ringVibration))
	copy(vibrate, ringVibration)

	return &NotificationPayload{
		Title:              "🔔 Someone is at the door!",
		Body:               body,
		Tag:                RingTag,
		Icon:               "/icons/icon-192x192.png",
		Badge:              "/icons/icon-72x72.png",
		Sound:              "/sounds/doorbell.mp3",
		VisitID:            visitUUID,
		Timestamp:          at.UTC().Format(ISO8601),
		Vibrate:            vibrate,
		RequireInteraction: true,
		Actions: []NotificationAction{
			{Action: "answer", Title: "📞 Answer"},
			{Action: "ignore", Title: "🔇 Ignore"},
		},
	}
}
