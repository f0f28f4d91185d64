package http_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/geo"
	"github.com/core-coin/doorbell/pkg/validation"
)

// CreateVisitRequest is sent by the QR landing page.
type CreateVisitRequest struct {
	AddressUUID string `json:"addressUuid" binding:"required"`
}

type CreateVisitResponse struct {
	VisitID   int64  `json:"visitId"`
	VisitUUID string `json:"visitUuid"`
}

type VisitResponse struct {
	Visit     *models.Visit     `json:"visit"`
	ExpiredAt string            `json:"expiredAt"`
	IsExpired bool              `json:"isExpired"`
	State     models.VisitState `json:"state"`
}

// RingRequest carries the visitor's optional location. Coords stays raw so a
// malformed location skips the proximity gate instead of failing the ring.
type RingRequest struct {
	VisitUUID string          `json:"visitUuid"`
	Coords    json.RawMessage `json:"coords,omitempty"`
}

type RingResponse struct {
	Success   bool             `json:"success"`
	Timestamp string           `json:"timestamp"`
	Debug     models.RingDebug `json:"debug"`
}

type SubscribeRequest struct {
	Subscription models.SubscriptionInput `json:"subscription"`
}

type SubscribeResponse struct {
	Success        bool  `json:"success"`
	SubscriptionID int64 `json:"subscriptionId"`
}

// SubscriptionView is a subscription as listed to its owner. Key material is
// never returned and the endpoint is shortened.
type SubscriptionView struct {
	ID        int64  `json:"id"`
	Endpoint  string `json:"endpoint"`
	UserID    string `json:"userId"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type SubscriptionsResponse struct {
	Total         int                `json:"total"`
	Subscriptions []SubscriptionView `json:"subscriptions"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createVisit is a handler for the POST /visits endpoint.
func (s *HTTPServer) createVisit(c *gin.Context) {
	var req CreateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	v, err := s.doorbell.CreateVisit(c.Request.Context(), req.AddressUUID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateVisitResponse{VisitID: v.ID, VisitUUID: v.UUID})
}

// getVisit is a handler for the GET /visits/:uuid endpoint.
func (s *HTTPServer) getVisit(c *gin.Context) {
	status, err := s.doorbell.GetVisit(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, VisitResponse{
		Visit:     status.Visit,
		ExpiredAt: formatTime(status.ExpiredAt),
		IsExpired: status.IsExpired,
		State:     status.State,
	})
}

// ring is a handler for the POST /ring endpoint.
func (s *HTTPServer) ring(c *gin.Context) {
	var req RingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	res, err := s.doorbell.Ring(c.Request.Context(), models.RingRequest{
		VisitUUID: req.VisitUUID,
		Coords:    parseCoords(req.Coords),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RingResponse{
		Success:   res.Success,
		Timestamp: formatTime(res.Timestamp),
		Debug:     res.Debug,
	})
}

// subscribe is a handler for the POST /subscriptions endpoint.
func (s *HTTPServer) subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	user := residentClaims(c).CurrentUser()
	sub, err := s.doorbell.Subscribe(c.Request.Context(), user, req.Subscription)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SubscribeResponse{Success: true, SubscriptionID: sub.ID})
}

// listSubscriptions is a handler for the GET /subscriptions endpoint.
func (s *HTTPServer) listSubscriptions(c *gin.Context) {
	user := residentClaims(c).CurrentUser()
	subs, err := s.doorbell.ListSubscriptions(c.Request.Context(), user.AddressID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, SubscriptionView{
			ID:        sub.ID,
			Endpoint:  validation.TruncateEndpoint(sub.Endpoint),
			UserID:    sub.UserID,
			IsActive:  sub.IsActive,
			CreatedAt: formatTime(sub.CreatedAt),
			UpdatedAt: formatTime(sub.UpdatedAt),
		})
	}
	c.JSON(http.StatusOK, SubscriptionsResponse{Total: len(views), Subscriptions: views})
}

func (s *HTTPServer) publicKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"publicKey": s.doorbell.VAPIDPublicKey()})
}

func (s *HTTPServer) stats(c *gin.Context) {
	stats, err := s.doorbell.Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) badRequest(c *gin.Context, err error) {
	s.logger.Debug("Invalid request body", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request body: " + err.Error(),
	})
}

// respondError maps domain errors onto HTTP responses.
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	var outOfRange *models.OutOfRangeError
	switch {
	case errors.As(err, &outOfRange):
		c.JSON(http.StatusForbidden, gin.H{
			"success":     false,
			"error":       "You are too far from the address to ring the doorbell",
			"distance":    outOfRange.Distance,
			"maxDistance": outOfRange.MaxDistance,
		})
	case errors.Is(err, models.ErrMissingVisit):
		s.errorJSON(c, http.StatusBadRequest, "visit identifier is required")
	case errors.Is(err, models.ErrInvalidSubscription):
		s.errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAddressNotFound):
		s.errorJSON(c, http.StatusNotFound, "invalid QR code")
	case errors.Is(err, models.ErrVisitNotFound):
		s.errorJSON(c, http.StatusNotFound, "visit not found")
	case errors.Is(err, models.ErrVisitExpired):
		s.errorJSON(c, http.StatusGone, "visit expired, rescan the QR code")
	case errors.Is(err, models.ErrRateLimited):
		s.errorJSON(c, http.StatusTooManyRequests, "the doorbell was just rung, please wait a moment")
	default:
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		s.errorJSON(c, http.StatusInternalServerError, "internal server error")
	}
}

func (s *HTTPServer) errorJSON(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}

// parseCoords returns nil unless raw holds numeric lat and lon.
func parseCoords(raw json.RawMessage) *geo.Coordinates {
	if len(raw) == 0 {
		return nil
	}
	var in struct {
		Lat      *float64 `json:"lat"`
		Lon      *float64 `json:"lon"`
		Accuracy *float64 `json:"accuracy"`
	}
	if err := json.Unmarshal(raw, &in); err != nil || in.Lat == nil || in.Lon == nil {
		return nil
	}
	return &geo.Coordinates{Lat: *in.Lat, Lon: *in.Lon, Accuracy: in.Accuracy}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.ISO8601)
}
