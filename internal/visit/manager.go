// Package visit tracks QR-scan sessions and decides whether a visit may still ring.
package visit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
	"github.com/core-coin/doorbell/pkg/validation"
)

// Store is the persistence the manager needs.
type Store interface {
	models.AddressRepository
	models.VisitRepository
}

// Manager creates visits and evaluates their expiry. The TTL it holds is the
// single source for both the countdown shown to visitors and ring validation.
type Manager struct {
	logger *logger.Logger
	store  Store
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, ttl time.Duration, logger *logger.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = models.VisitTTL
	}
	m := &Manager{
		logger: logger,
		store:  store,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// CreateVisit opens a new visit for the address printed in the QR code.
func (m *Manager) CreateVisit(ctx context.Context, addressUUID string) (*models.Visit, error) {
	if validation.ValidateUUID(addressUUID) != nil {
		return nil, models.ErrAddressNotFound
	}
	address, err := m.store.GetAddressByUUID(ctx, addressUUID)
	if err != nil {
		return nil, err
	}

	visit := &models.Visit{
		AddressID: address.ID,
		Used:      false,
		CreatedAt: m.now(),
	}
	if err := m.store.CreateVisit(ctx, visit); err != nil {
		return nil, err
	}
	visit.Address = address

	m.logger.Debug("Visit created", "visit", visit.UUID, "address", address.UUID)
	return visit, nil
}

// GetVisit returns the visit with its computed expiry.
func (m *Manager) GetVisit(ctx context.Context, visitUUID string) (*models.VisitStatus, error) {
	visit, err := m.load(ctx, visitUUID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	return &models.VisitStatus{
		Visit:     visit,
		ExpiredAt: visit.ExpiresAt(m.ttl),
		IsExpired: visit.IsExpired(now, m.ttl),
		State:     visit.State(now, m.ttl),
	}, nil
}

// ValidateForRing re-checks expiry at ring time. The returned visit has its
// Address loaded.
func (m *Manager) ValidateForRing(ctx context.Context, visitUUID string) (*models.Visit, error) {
	visit, err := m.load(ctx, visitUUID)
	if err != nil {
		return nil, err
	}
	if visit.IsExpired(m.now(), m.ttl) {
		m.logger.Debug("Ring rejected for expired visit", "visit", visitUUID, "created_at", visit.CreatedAt)
		return nil, models.ErrVisitExpired
	}
	if visit.Address == nil {
		address, err := m.store.GetAddressByID(ctx, visit.AddressID)
		if err != nil {
			return nil, fmt.Errorf("failed to load visit address: %w", err)
		}
		visit.Address = address
	}
	return visit, nil
}

// MarkRung records that the visitor rang.
func (m *Manager) MarkRung(ctx context.Context, visit *models.Visit, at time.Time) error {
	if err := m.store.MarkVisitRung(ctx, visit.ID, at); err != nil {
		return err
	}
	visit.Used = true
	visit.RungAt = &at
	return nil
}

func (m *Manager) load(ctx context.Context, visitUUID string) (*models.Visit, error) {
	if validation.ValidateUUID(visitUUID) != nil {
		return nil, models.ErrVisitNotFound
	}
	visit, err := m.store.GetVisitByUUID(ctx, visitUUID)
	if err != nil {
		if !errors.Is(err, models.ErrVisitNotFound) {
			m.logger.Error("Failed to load visit", "visit", visitUUID, "error", err)
		}
		return nil, err
	}
	return visit, nil
}
