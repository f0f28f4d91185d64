// Package notificator fans ring notifications out to residents' devices and
// posts operator alerts.
package notificator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/core-coin/doorbell/internal/metrics"
	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
	"github.com/core-coin/doorbell/pkg/validation"
)

// DefaultConcurrency bounds in-flight sends for one dispatch.
const DefaultConcurrency = 8

// SubscriptionSource resolves the devices of an address.
type SubscriptionSource interface {
	GetActiveSubscriptions(ctx context.Context, addressID *int64) ([]*models.PushSubscription, error)
	Deactivate(ctx context.Context, ids []int64) (int64, error)
}

type Config struct {
	// Concurrency is the max number of sends in flight per dispatch.
	Concurrency int
	// SendTimeout bounds a single send. Zero means no extra bound.
	SendTimeout time.Duration
	// DeactivateGone soft-deletes subscriptions the push service answers 404/410 for.
	DeactivateGone bool
}

type Notificator struct {
	logger  *logger.Logger
	subs    SubscriptionSource
	push    models.PushTransport
	metrics *metrics.Metrics
	cfg     Config
}

var _ models.NotificationService = (*Notificator)(nil)

func NewNotificator(logger *logger.Logger, subs SubscriptionSource, push models.PushTransport, m *metrics.Metrics, cfg Config) *Notificator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Notificator{logger: logger, subs: subs, push: push, metrics: m, cfg: cfg}
}

// safeCall runs a function with panic recovery and reports the panic as an error.
func (n *Notificator) safeCall(fn func() error, context string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Function panicked",
				"context", context,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", context, r)
		}
	}()
	return fn()
}

// Dispatch sends payload to every active subscription of the address at once.
// Send failures are recorded per endpoint and never abort the others. An
// address without devices yields an empty result and no error.
func (n *Notificator) Dispatch(ctx context.Context, addressID int64, payload *models.NotificationPayload) (*models.DispatchResult, error) {
	subs, err := n.subs.GetActiveSubscriptions(ctx, &addressID)
	if err != nil {
		return nil, err
	}
	result := &models.DispatchResult{Results: []models.EndpointResult{}}
	if len(subs) == 0 {
		n.logger.Info("No active subscriptions for address", "address", addressID)
		return result, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification payload: %w", err)
	}

	start := time.Now()
	results := make([]models.EndpointResult, len(subs))
	sem := make(chan struct{}, n.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, sub := range subs {
		i, sub := i, sub
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = n.send(ctx, sub, data)
		}()
	}
	wg.Wait()
	n.metrics.ObserveDispatch(time.Since(start))

	var gone []int64
	for _, r := range results {
		result.Attempted++
		if r.Success {
			result.Succeeded++
		} else {
			result.Failed++
			if n.cfg.DeactivateGone && models.IsGoneStatus(r.StatusCode) {
				gone = append(gone, r.SubscriptionID)
			}
		}
	}
	result.Results = results

	if len(gone) > 0 {
		count, err := n.subs.Deactivate(ctx, gone)
		if err != nil {
			n.logger.Error("Failed to deactivate gone subscriptions", "address", addressID, "error", err)
		} else {
			n.logger.Info("Deactivated gone subscriptions", "address", addressID, "count", count)
		}
	}

	n.logger.Info("Notification dispatched",
		"address", addressID,
		"visit", payload.VisitID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed)
	return result, nil
}

func (n *Notificator) send(ctx context.Context, sub *models.PushSubscription, data []byte) models.EndpointResult {
	endpoint := validation.TruncateEndpoint(sub.Endpoint)
	res := models.EndpointResult{SubscriptionID: sub.ID, Endpoint: endpoint}

	if n.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.SendTimeout)
		defer cancel()
	}

	err := n.safeCall(func() error { return n.push.Send(ctx, sub, data) }, "pushSend")
	n.metrics.IncPushSend(err == nil)
	if err != nil {
		var te *models.TransportError
		if errors.As(err, &te) {
			res.StatusCode = te.StatusCode
		}
		res.Error = err.Error()
		n.logger.Warn("Push delivery failed",
			"subscription", sub.ID,
			"endpoint", endpoint,
			"status", res.StatusCode,
			"error", err)
		return res
	}
	res.Success = true
	n.logger.Debug("Push delivered", "subscription", sub.ID, "endpoint", endpoint)
	return res
}
