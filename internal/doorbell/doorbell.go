package doorbell

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/doorbell/internal/config"
	"github.com/core-coin/doorbell/internal/metrics"
	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/internal/ratelimit"
	"github.com/core-coin/doorbell/internal/subscription"
	"github.com/core-coin/doorbell/internal/visit"
	"github.com/core-coin/doorbell/pkg/geo"
	"github.com/core-coin/doorbell/pkg/logger"
	"github.com/core-coin/doorbell/pkg/validation"
)

const (
	// maintenanceInterval is how often the retention job runs.
	maintenanceInterval = 5 * time.Minute
	// maintenanceLock guards the retention job across instances.
	maintenanceLock = "visit-retention"
	// recentVisitsLimit is how many visits the admin stats list.
	recentVisitsLimit = 5
	// alertTimeout bounds a single operator alert.
	alertTimeout = 10 * time.Second
)

// Ring outcomes recorded in metrics.
const (
	outcomeDelivered   = "delivered"
	outcomeUndelivered = "undelivered"
	outcomeNotFound    = "not_found"
	outcomeExpired     = "expired"
	outcomeOutOfRange  = "out_of_range"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
)

// Doorbell is the main struct of the application. It ties visits, the
// proximity gate, subscriptions and push fan-out together and runs the
// background maintenance.
type Doorbell struct {
	logger *logger.Logger
	config *config.Config

	repo          models.Repository
	visits        *visit.Manager
	subscriptions *subscription.Registry
	notificator   models.NotificationService
	limiter       ratelimit.Limiter
	// alerter is nil when operator alerts are not configured.
	alerter models.Alerter
	metrics *metrics.Metrics
	now     func() time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ models.DoorbellI = (*Doorbell)(nil)

type Option func(*Doorbell)

// WithClock overrides time.Now for ring timestamps and maintenance cutoffs.
func WithClock(now func() time.Time) Option {
	return func(d *Doorbell) { d.now = now }
}

// WithAlerter enables operator alerts for rings that reach no device.
func WithAlerter(a models.Alerter) Option {
	return func(d *Doorbell) { d.alerter = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Doorbell) { d.metrics = m }
}

// NewDoorbell creates a new Doorbell instance
func NewDoorbell(
	repo models.Repository,
	visits *visit.Manager,
	subscriptions *subscription.Registry,
	notificator models.NotificationService,
	limiter ratelimit.Limiter,
	logger *logger.Logger,
	config *config.Config,
	opts ...Option,
) *Doorbell {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Doorbell{
		logger:        logger,
		config:        config,
		repo:          repo,
		visits:        visits,
		subscriptions: subscriptions,
		notificator:   notificator,
		limiter:       limiter,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the retention job.
func (d *Doorbell) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.safeCall(func() {
					if err := d.RunMaintenance(d.ctx); err != nil {
						d.logger.Error("Maintenance failed", "error", err)
					}
				}, "maintenance")
			}
		}
	}()
	d.logger.Info("Doorbell started", "instance", d.config.InstanceID, "maintenance_interval", maintenanceInterval)
}

// Stop halts background work, waits for in-flight alerts and hands the
// maintenance lease back.
func (d *Doorbell) Stop() {
	d.cancel()
	d.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.repo.ReleaseLock(ctx, maintenanceLock, d.config.InstanceID); err != nil {
		d.logger.Error("Failed to release maintenance lock", "error", err)
	}
	d.logger.Info("Doorbell stopped")
}

// RunMaintenance deletes visits past the retention window if this instance
// holds the maintenance lease. The lease is kept for a full interval so other
// instances skip the same round.
func (d *Doorbell) RunMaintenance(ctx context.Context) error {
	acquired, err := d.repo.AcquireLock(ctx, maintenanceLock, d.config.InstanceID, maintenanceInterval)
	if err != nil {
		return err
	}
	if !acquired {
		d.logger.Debug("Maintenance lock held by another instance")
		return nil
	}

	cutoff := d.now().Add(-d.config.VisitRetention)
	deleted, err := d.repo.DeleteVisitsCreatedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	d.metrics.AddMaintenanceDeletes(deleted)
	if deleted > 0 {
		d.logger.Info("Removed old visits", "count", deleted, "cutoff", cutoff)
	}
	return nil
}

func (d *Doorbell) CreateVisit(ctx context.Context, addressUUID string) (*models.Visit, error) {
	v, err := d.visits.CreateVisit(ctx, addressUUID)
	if err != nil {
		return nil, err
	}
	d.metrics.IncVisitsCreated()
	return v, nil
}

func (d *Doorbell) GetVisit(ctx context.Context, visitUUID string) (*models.VisitStatus, error) {
	return d.visits.GetVisit(ctx, visitUUID)
}

// Ring validates the visit, applies the proximity gate and the cooldown, then
// notifies every device of the address. Once the checks pass the ring succeeds
// no matter how many devices were reached.
func (d *Doorbell) Ring(ctx context.Context, req models.RingRequest) (*models.RingResult, error) {
	if req.VisitUUID == "" {
		return nil, models.ErrMissingVisit
	}

	v, err := d.visits.ValidateForRing(ctx, req.VisitUUID)
	if err != nil {
		d.metrics.IncRing(rejectionOutcome(err))
		return nil, err
	}

	proximity := d.checkProximity(v.Address, req.Coords)
	if proximity != nil && !proximity.IsWithinRange {
		d.metrics.IncRing(outcomeOutOfRange)
		d.logger.Info("Ring rejected, visitor out of range",
			"visit", v.UUID,
			"distance", proximity.Distance,
			"max_distance", proximity.MaxDistance)
		return nil, &models.OutOfRangeError{Distance: proximity.Distance, MaxDistance: proximity.MaxDistance}
	}

	allowed, err := d.limiter.Allow(ctx, ratelimit.RingKey(v.UUID), d.config.RingCooldown)
	if err != nil {
		// Fail open: a broken cooldown store must not silence the doorbell.
		d.logger.Warn("Ring cooldown check failed", "visit", v.UUID, "error", err)
	} else if !allowed {
		d.metrics.IncRing(outcomeRateLimited)
		return nil, models.ErrRateLimited
	}

	now := d.now()
	payload := models.NewRingPayload(v.UUID, now, proximity)

	// The visitor closing the page must not cut the fan-out short.
	dispatchCtx := context.WithoutCancel(ctx)
	dispatch, err := d.notificator.Dispatch(dispatchCtx, v.AddressID, payload)
	if err != nil {
		d.logger.Error("Failed to dispatch ring notification", "visit", v.UUID, "address", v.AddressID, "error", err)
		dispatch = &models.DispatchResult{}
	}

	if err := d.visits.MarkRung(dispatchCtx, v, now); err != nil {
		d.logger.Error("Failed to mark visit as rung", "visit", v.UUID, "error", err)
	}

	if dispatch.Succeeded == 0 {
		d.metrics.IncRing(outcomeUndelivered)
		d.alertUndelivered(v, dispatch)
	} else {
		d.metrics.IncRing(outcomeDelivered)
	}

	d.logger.Info("Doorbell rung",
		"visit", v.UUID,
		"address", v.AddressID,
		"subscriptions", dispatch.Attempted,
		"succeeded", dispatch.Succeeded,
		"failed", dispatch.Failed)

	return &models.RingResult{
		Success:   true,
		Timestamp: now,
		Debug: models.RingDebug{
			SubscriptionsFound: dispatch.Attempted,
			Succeeded:          dispatch.Succeeded,
			Failed:             dispatch.Failed,
		},
		Proximity: proximity,
	}, nil
}

// checkProximity returns nil when either side has no usable location.
func (d *Doorbell) checkProximity(address *models.Address, visitor *geo.Coordinates) *geo.ProximityResult {
	if visitor == nil || !visitor.Valid() {
		return nil
	}
	addressCoords, ok := address.Coordinates()
	if !ok {
		return nil
	}
	res := geo.CheckProximity(addressCoords, *visitor, d.config.MaxRingDistanceMeters)
	return &res
}

func (d *Doorbell) alertUndelivered(v *models.Visit, dispatch *models.DispatchResult) {
	if d.alerter == nil {
		return
	}
	addressUUID := ""
	if v.Address != nil {
		addressUUID = v.Address.UUID
	}
	message := fmt.Sprintf("🔕 Doorbell rang but reached no device\naddress: %s\nvisit: %s\nsubscriptions: %d, failed: %d",
		addressUUID, v.UUID, dispatch.Attempted, dispatch.Failed)

	d.safeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
		defer cancel()
		if err := d.alerter.Alert(ctx, message); err != nil {
			d.logger.Error("Failed to send operator alert", "visit", v.UUID, "error", err)
		}
	}, "operatorAlert")
}

// Subscribe validates the browser subscription and stores it for the
// resident's address.
func (d *Doorbell) Subscribe(ctx context.Context, user models.CurrentUser, input models.SubscriptionInput) (*models.PushSubscription, error) {
	if err := validation.ValidateEndpoint(input.Endpoint); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSubscription, err)
	}
	if err := validation.ValidateP256dh(input.Keys.P256dh); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSubscription, err)
	}
	if err := validation.ValidateAuth(input.Keys.Auth); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSubscription, err)
	}
	return d.subscriptions.Subscribe(ctx, user.UserID, user.AddressID, input)
}

func (d *Doorbell) ListSubscriptions(ctx context.Context, addressID int64) ([]*models.PushSubscription, error) {
	return d.subscriptions.GetActiveSubscriptions(ctx, &addressID)
}

// Stats gathers the admin counters concurrently.
func (d *Doorbell) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalAddresses, err = d.repo.CountAddresses(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalVisits, err = d.repo.CountVisits(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveSubscriptions, err = d.repo.CountActiveSubscriptions(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.RecentVisits, err = d.repo.RecentVisits(gctx, recentVisitsLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return stats, nil
}

func (d *Doorbell) VAPIDPublicKey() string {
	return d.config.VAPIDPublicKey
}

// safeCall runs a function with panic recovery (synchronous, no goroutine spawning)
func (d *Doorbell) safeCall(fn func(), context string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

// safeGo runs fn in a tracked goroutine so Stop can wait for it.
func (d *Doorbell) safeGo(fn func(), context string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.safeCall(fn, context)
	}()
}

func rejectionOutcome(err error) string {
	switch {
	case errors.Is(err, models.ErrVisitNotFound):
		return outcomeNotFound
	case errors.Is(err, models.ErrVisitExpired):
		return outcomeExpired
	default:
		return outcomeError
	}
}
