package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/core-coin/doorbell/internal/models"
)

// InMemory is a process-local Repository for development and tests.
// Transactions are serialized and run against a private copy of the store.
// On commit only the rows the transaction changed are applied, so writes made
// outside the transaction meanwhile survive both commit and rollback.
type InMemory struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	ids           *atomic.Int64
	addresses     map[int64]models.Address
	visits        map[int64]models.Visit
	subscriptions map[int64]models.PushSubscription
	locks         map[string]models.AppLock

	// now is overridable so lease expiry can be tested.
	now func() time.Time
}

var _ models.Repository = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{
		ids:           new(atomic.Int64),
		addresses:     make(map[int64]models.Address),
		visits:        make(map[int64]models.Visit),
		subscriptions: make(map[int64]models.PushSubscription),
		locks:         make(map[string]models.AppLock),
		now:           time.Now,
	}
}

// SetClock replaces the clock used for lock leases.
func (m *InMemory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *InMemory) Close() error { return nil }

func (m *InMemory) Transaction(ctx context.Context, fn func(repo models.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	base := m.snapshot()
	tx := &InMemory{
		ids:           m.ids,
		addresses:     cloneMap(base.addresses),
		visits:        cloneMap(base.visits),
		subscriptions: cloneMap(base.subscriptions),
		locks:         cloneMap(base.locks),
		now:           base.now,
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mergeMap(m.addresses, base.addresses, tx.addresses)
	mergeMap(m.visits, base.visits, tx.visits)
	mergeMap(m.subscriptions, base.subscriptions, tx.subscriptions)
	mergeMap(m.locks, base.locks, tx.locks)
	return nil
}

type memorySnapshot struct {
	addresses     map[int64]models.Address
	visits        map[int64]models.Visit
	subscriptions map[int64]models.PushSubscription
	locks         map[string]models.AppLock
	now           func() time.Time
}

func (m *InMemory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memorySnapshot{
		addresses:     cloneMap(m.addresses),
		visits:        cloneMap(m.visits),
		subscriptions: cloneMap(m.subscriptions),
		locks:         cloneMap(m.locks),
		now:           m.now,
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// mergeMap applies to live the rows next added, changed or removed relative to base.
func mergeMap[K comparable, V comparable](live, base, next map[K]V) {
	for k, v := range next {
		if old, ok := base[k]; !ok || old != v {
			live[k] = v
		}
	}
	for k := range base {
		if _, ok := next[k]; !ok {
			delete(live, k)
		}
	}
}

// id draws from a counter shared with transaction copies. Ids are never
// reused, even after a rollback.
func (m *InMemory) id() int64 {
	return m.ids.Add(1)
}

func (m *InMemory) CreateAddress(_ context.Context, address *models.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if address.UUID == "" {
		address.UUID = uuid.NewString()
	}
	for _, a := range m.addresses {
		if a.UUID == address.UUID {
			return models.NewStorageError("create address", fmt.Errorf("duplicate uuid %s", address.UUID))
		}
	}
	if address.CreatedAt.IsZero() {
		address.CreatedAt = m.now()
	}
	address.ID = m.id()
	m.addresses[address.ID] = *address
	return nil
}

func (m *InMemory) GetAddressByUUID(_ context.Context, uuid string) (*models.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.addresses {
		if a.UUID == uuid {
			return &a, nil
		}
	}
	return nil, models.ErrAddressNotFound
}

func (m *InMemory) GetAddressByID(_ context.Context, id int64) (*models.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[id]
	if !ok {
		return nil, models.ErrAddressNotFound
	}
	return &a, nil
}

// LockAddress only checks existence; Transaction already serializes writers.
func (m *InMemory) LockAddress(ctx context.Context, id int64) error {
	_, err := m.GetAddressByID(ctx, id)
	return err
}

func (m *InMemory) CountAddresses(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.addresses)), nil
}

func (m *InMemory) CreateVisit(_ context.Context, visit *models.Visit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.addresses[visit.AddressID]; !ok {
		return models.NewStorageError("create visit", fmt.Errorf("address %d does not exist", visit.AddressID))
	}
	if visit.UUID == "" {
		visit.UUID = uuid.NewString()
	}
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = m.now()
	}
	visit.ID = m.id()
	stored := *visit
	stored.Address = nil
	m.visits[visit.ID] = stored
	return nil
}

func (m *InMemory) GetVisitByUUID(_ context.Context, uuid string) (*models.Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.visits {
		if v.UUID == uuid {
			if a, ok := m.addresses[v.AddressID]; ok {
				v.Address = &a
			}
			return &v, nil
		}
	}
	return nil, models.ErrVisitNotFound
}

func (m *InMemory) MarkVisitRung(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.visits[id]
	if !ok {
		return models.ErrVisitNotFound
	}
	v.Used = true
	v.RungAt = &at
	m.visits[id] = v
	return nil
}

func (m *InMemory) DeleteVisitsCreatedBefore(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, v := range m.visits {
		if v.CreatedAt.Before(t) {
			delete(m.visits, id)
			n++
		}
	}
	return n, nil
}

func (m *InMemory) CountVisits(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.visits)), nil
}

func (m *InMemory) RecentVisits(_ context.Context, limit int) ([]*models.Visit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	visits := make([]*models.Visit, 0, len(m.visits))
	for _, v := range m.visits {
		v := v
		visits = append(visits, &v)
	}
	sort.Slice(visits, func(i, j int) bool {
		return newer(visits[i].CreatedAt, visits[i].ID, visits[j].CreatedAt, visits[j].ID)
	})
	if limit > 0 && len(visits) > limit {
		visits = visits[:limit]
	}
	return visits, nil
}

func (m *InMemory) FindSubscriptionByEndpoint(_ context.Context, endpoint string) (*models.PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscriptions {
		if s.Endpoint == endpoint {
			return &s, nil
		}
	}
	return nil, models.ErrSubscriptionNotFound
}

func (m *InMemory) CreateSubscription(_ context.Context, sub *models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.Endpoint == sub.Endpoint {
			return models.NewStorageError("create subscription", fmt.Errorf("duplicate endpoint"))
		}
	}
	now := m.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = sub.CreatedAt
	}
	sub.ID = m.id()
	stored := *sub
	stored.Address = nil
	m.subscriptions[sub.ID] = stored
	return nil
}

func (m *InMemory) UpdateSubscription(_ context.Context, sub *models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[sub.ID]; !ok {
		return models.ErrSubscriptionNotFound
	}
	stored := *sub
	stored.Address = nil
	m.subscriptions[sub.ID] = stored
	return nil
}

func (m *InMemory) ListActiveSubscriptions(_ context.Context, addressID *int64, limit int) ([]*models.PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var subs []*models.PushSubscription
	for _, s := range m.subscriptions {
		if !s.IsActive {
			continue
		}
		if addressID != nil && s.AddressID != *addressID {
			continue
		}
		s := s
		subs = append(subs, &s)
	}
	sort.Slice(subs, func(i, j int) bool {
		return newer(subs[i].CreatedAt, subs[i].ID, subs[j].CreatedAt, subs[j].ID)
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (m *InMemory) DeactivateSubscriptions(_ context.Context, ids []int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		s, ok := m.subscriptions[id]
		if !ok || !s.IsActive {
			continue
		}
		s.IsActive = false
		s.UpdatedAt = at
		m.subscriptions[id] = s
		n++
	}
	return n, nil
}

func (m *InMemory) CountActiveSubscriptions(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, s := range m.subscriptions {
		if s.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *InMemory) AcquireLock(_ context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if held, ok := m.locks[name]; ok && held.InstanceID != instanceID && !held.ExpiresAt.Before(now) {
		return false, nil
	}
	m.locks[name] = models.AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

func (m *InMemory) ReleaseLock(_ context.Context, name, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.locks[name]; ok && held.InstanceID == instanceID {
		delete(m.locks, name)
	}
	return nil
}

// newer orders by creation time descending, then id descending.
func newer(aAt time.Time, aID int64, bAt time.Time, bID int64) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return aID > bID
}
