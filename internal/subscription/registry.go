// Package subscription stores residents' Web Push endpoints and enforces the
// per-address device cap.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/core-coin/doorbell/internal/metrics"
	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
	"github.com/core-coin/doorbell/pkg/validation"
)

// DefaultKeep is how many existing active subscriptions survive a new
// subscribe, so an address ends up with at most DefaultKeep+1 devices.
const DefaultKeep = 4

const (
	ReasonCap  = "cap"
	ReasonGone = "gone"
)

type Registry struct {
	logger  *logger.Logger
	repo    models.Repository
	metrics *metrics.Metrics
	keep    int
	now     func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns a registry keeping keep older subscriptions per address.
// A non-positive keep uses DefaultKeep.
func NewRegistry(repo models.Repository, keep int, logger *logger.Logger, opts ...Option) *Registry {
	if keep <= 0 {
		keep = DefaultKeep
	}
	r := &Registry{
		logger: logger,
		repo:   repo,
		keep:   keep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Limit is the number of active subscriptions an address can hold.
func (r *Registry) Limit() int { return r.keep + 1 }

// Subscribe upserts the endpoint for the resident's address. A known endpoint
// keeps its row and gets fresh keys; a new one first trims the address down to
// keep active devices. Subscribes for one address are serialized.
func (r *Registry) Subscribe(ctx context.Context, userID string, addressID int64, input models.SubscriptionInput) (*models.PushSubscription, error) {
	var saved *models.PushSubscription
	var kind string

	err := r.repo.Transaction(ctx, func(tx models.Repository) error {
		if err := tx.LockAddress(ctx, addressID); err != nil {
			return err
		}
		now := r.now()

		existing, err := tx.FindSubscriptionByEndpoint(ctx, input.Endpoint)
		switch {
		case err == nil:
			kind = "updated"
			if !existing.IsActive || existing.AddressID != addressID {
				kind = "reactivated"
				if err := r.enforceCap(ctx, tx, addressID, now); err != nil {
					return err
				}
			}
			existing.AddressID = addressID
			existing.UserID = userID
			existing.P256dh = input.Keys.P256dh
			existing.Auth = input.Keys.Auth
			existing.IsActive = true
			existing.UpdatedAt = now
			if err := tx.UpdateSubscription(ctx, existing); err != nil {
				return err
			}
			saved = existing
			return nil
		case errors.Is(err, models.ErrSubscriptionNotFound):
		default:
			return err
		}

		if err := r.enforceCap(ctx, tx, addressID, now); err != nil {
			return err
		}
		sub := &models.PushSubscription{
			AddressID: addressID,
			UserID:    userID,
			Endpoint:  input.Endpoint,
			P256dh:    input.Keys.P256dh,
			Auth:      input.Keys.Auth,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		kind = "created"
		saved = sub
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	r.metrics.IncSubscriptionSave(kind)
	r.logger.Info("Subscription saved",
		"kind", kind,
		"address", addressID,
		"user", userID,
		"endpoint", validation.TruncateEndpoint(saved.Endpoint))
	return saved, nil
}

// enforceCap deactivates everything past the newest keep active subscriptions.
func (r *Registry) enforceCap(ctx context.Context, tx models.Repository, addressID int64, now time.Time) error {
	active, err := tx.ListActiveSubscriptions(ctx, &addressID, 0)
	if err != nil {
		return err
	}
	if len(active) <= r.keep {
		return nil
	}
	ids := make([]int64, 0, len(active)-r.keep)
	for _, s := range active[r.keep:] {
		ids = append(ids, s.ID)
	}
	n, err := tx.DeactivateSubscriptions(ctx, ids, now)
	if err != nil {
		return err
	}
	r.metrics.AddDeactivations(ReasonCap, n)
	r.logger.Info("Deactivated oldest subscriptions", "address", addressID, "count", n)
	return nil
}

// GetActiveSubscriptions returns the active subscriptions of an address, newest
// first and at most Limit of them. A nil addressID lists every address.
func (r *Registry) GetActiveSubscriptions(ctx context.Context, addressID *int64) ([]*models.PushSubscription, error) {
	limit := r.Limit()
	if addressID == nil {
		limit = 0
	}
	subs, err := r.repo.ListActiveSubscriptions(ctx, addressID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Deactivate soft-deletes subscriptions the push service reported as gone.
func (r *Registry) Deactivate(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.repo.DeactivateSubscriptions(ctx, ids, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate subscriptions: %w", err)
	}
	r.metrics.AddDeactivations(ReasonGone, n)
	return n, nil
}
