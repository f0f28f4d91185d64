package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/internal/subscription"
	"github.com/core-coin/doorbell/pkg/logger"
)

// RepositorySuite holds behaviour every models.Repository must share.
// Concrete suites embed it and set repo in SetupTest.
type RepositorySuite struct {
	suite.Suite
	repo models.Repository
	ctx  context.Context
}

func (s *RepositorySuite) newAddress() *models.Address {
	lat, lon := -23.5505, -46.6333
	a := &models.Address{Latitude: &lat, Longitude: &lon}
	s.Require().NoError(s.repo.CreateAddress(s.ctx, a))
	return a
}

func (s *RepositorySuite) newSubscription(addressID int64, n int, createdAt time.Time) *models.PushSubscription {
	sub := &models.PushSubscription{
		AddressID: addressID,
		UserID:    "resident-1",
		Endpoint:  fmt.Sprintf("https://push.example.com/%d/%d", addressID, n),
		P256dh:    "p256dh",
		Auth:      "auth",
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	s.Require().NoError(s.repo.CreateSubscription(s.ctx, sub))
	return sub
}

func (s *RepositorySuite) TestAddresses() {
	s.Run("creates with generated uuid", func() {
		a := s.newAddress()
		s.NotZero(a.ID)
		s.Len(a.UUID, 36)

		found, err := s.repo.GetAddressByUUID(s.ctx, a.UUID)
		s.Require().NoError(err)
		s.Equal(a.ID, found.ID)
		s.Require().NotNil(found.Latitude)
		s.InDelta(-23.5505, *found.Latitude, 1e-9)

		byID, err := s.repo.GetAddressByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(a.UUID, byID.UUID)
	})

	s.Run("unknown uuid is ErrAddressNotFound", func() {
		_, err := s.repo.GetAddressByUUID(s.ctx, "00000000-0000-0000-0000-000000000000")
		s.ErrorIs(err, models.ErrAddressNotFound)

		_, err = s.repo.GetAddressByID(s.ctx, 987654)
		s.ErrorIs(err, models.ErrAddressNotFound)
	})
}

func (s *RepositorySuite) TestVisits() {
	a := s.newAddress()

	s.Run("creates and loads with address", func() {
		v := &models.Visit{AddressID: a.ID}
		s.Require().NoError(s.repo.CreateVisit(s.ctx, v))
		s.NotZero(v.ID)
		s.Len(v.UUID, 36)
		s.False(v.CreatedAt.IsZero())

		found, err := s.repo.GetVisitByUUID(s.ctx, v.UUID)
		s.Require().NoError(err)
		s.Equal(v.ID, found.ID)
		s.False(found.Used)
		s.Require().NotNil(found.Address)
		s.Equal(a.UUID, found.Address.UUID)
	})

	s.Run("marks rung", func() {
		v := &models.Visit{AddressID: a.ID}
		s.Require().NoError(s.repo.CreateVisit(s.ctx, v))

		at := time.Now().UTC().Truncate(time.Millisecond)
		s.Require().NoError(s.repo.MarkVisitRung(s.ctx, v.ID, at))

		found, err := s.repo.GetVisitByUUID(s.ctx, v.UUID)
		s.Require().NoError(err)
		s.True(found.Used)
		s.Require().NotNil(found.RungAt)
		s.WithinDuration(at, *found.RungAt, time.Millisecond)

		s.ErrorIs(s.repo.MarkVisitRung(s.ctx, 987654, at), models.ErrVisitNotFound)
	})

	s.Run("unknown uuid is ErrVisitNotFound", func() {
		_, err := s.repo.GetVisitByUUID(s.ctx, "00000000-0000-0000-0000-000000000000")
		s.ErrorIs(err, models.ErrVisitNotFound)
	})

	s.Run("purges old visits and lists recent ones newest first", func() {
		base := time.Now().Add(-48 * time.Hour)
		var ids []int64
		for i := 0; i < 3; i++ {
			v := &models.Visit{AddressID: a.ID, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
			s.Require().NoError(s.repo.CreateVisit(s.ctx, v))
			ids = append(ids, v.ID)
		}

		removed, err := s.repo.DeleteVisitsCreatedBefore(s.ctx, base.Add(90*time.Minute))
		s.Require().NoError(err)
		s.Equal(int64(2), removed)

		recent, err := s.repo.RecentVisits(s.ctx, 100)
		s.Require().NoError(err)
		for i := 1; i < len(recent); i++ {
			s.False(recent[i].CreatedAt.After(recent[i-1].CreatedAt))
		}
		s.Equal(ids[2], recent[len(recent)-1].ID, "oldest survivor is last")
	})
}

func (s *RepositorySuite) TestSubscriptions() {
	a := s.newAddress()
	other := s.newAddress()
	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Millisecond)

	var created []*models.PushSubscription
	for i := 0; i < 4; i++ {
		created = append(created, s.newSubscription(a.ID, i, base.Add(time.Duration(i)*time.Minute)))
	}
	s.newSubscription(other.ID, 0, base)

	s.Run("finds by endpoint", func() {
		found, err := s.repo.FindSubscriptionByEndpoint(s.ctx, created[1].Endpoint)
		s.Require().NoError(err)
		s.Equal(created[1].ID, found.ID)

		_, err = s.repo.FindSubscriptionByEndpoint(s.ctx, "https://push.example.com/missing")
		s.ErrorIs(err, models.ErrSubscriptionNotFound)
	})

	s.Run("lists newest first with limit and address filter", func() {
		subs, err := s.repo.ListActiveSubscriptions(s.ctx, &a.ID, 3)
		s.Require().NoError(err)
		s.Require().Len(subs, 3)
		s.Equal(created[3].ID, subs[0].ID)
		s.Equal(created[2].ID, subs[1].ID)
		s.Equal(created[1].ID, subs[2].ID)

		all, err := s.repo.ListActiveSubscriptions(s.ctx, nil, 0)
		s.Require().NoError(err)
		s.Len(all, 5)
	})

	s.Run("deactivates and reactivates", func() {
		at := base.Add(time.Hour)
		n, err := s.repo.DeactivateSubscriptions(s.ctx, []int64{created[0].ID, created[1].ID}, at)
		s.Require().NoError(err)
		s.Equal(int64(2), n)

		n, err = s.repo.DeactivateSubscriptions(s.ctx, []int64{created[0].ID}, at)
		s.Require().NoError(err)
		s.Zero(n, "already inactive rows are not counted")

		active, err := s.repo.CountActiveSubscriptions(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(3), active)

		sub, err := s.repo.FindSubscriptionByEndpoint(s.ctx, created[0].Endpoint)
		s.Require().NoError(err)
		s.False(sub.IsActive)
		sub.IsActive = true
		s.Require().NoError(s.repo.UpdateSubscription(s.ctx, sub))

		active, err = s.repo.CountActiveSubscriptions(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(4), active)
	})

	s.Run("rejects duplicate endpoint", func() {
		dup := &models.PushSubscription{
			AddressID: a.ID, UserID: "resident-1", Endpoint: created[2].Endpoint,
			P256dh: "p", Auth: "a", IsActive: true,
		}
		s.ErrorIs(s.repo.CreateSubscription(s.ctx, dup), models.ErrStorage)
	})
}

func (s *RepositorySuite) TestTransactionRollback() {
	a := s.newAddress()
	boom := errors.New("boom")

	err := s.repo.Transaction(s.ctx, func(tx models.Repository) error {
		s.Require().NoError(tx.LockAddress(s.ctx, a.ID))
		s.Require().NoError(tx.CreateSubscription(s.ctx, &models.PushSubscription{
			AddressID: a.ID, UserID: "u", Endpoint: "https://push.example.com/rollback",
			P256dh: "p", Auth: "a", IsActive: true,
		}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.repo.FindSubscriptionByEndpoint(s.ctx, "https://push.example.com/rollback")
	s.ErrorIs(err, models.ErrSubscriptionNotFound)
}

func (s *RepositorySuite) TestTransactionKeepsOutsideWrites() {
	a := s.newAddress()

	s.Run("rollback", func() {
		outside := &models.Visit{AddressID: a.ID}
		err := s.repo.Transaction(s.ctx, func(tx models.Repository) error {
			s.Require().NoError(tx.CreateSubscription(s.ctx, &models.PushSubscription{
				AddressID: a.ID, UserID: "u", Endpoint: "https://push.example.com/tx-rollback",
				P256dh: "p", Auth: "a", IsActive: true,
			}))
			s.Require().NoError(s.repo.CreateVisit(s.ctx, outside))
			return errors.New("boom")
		})
		s.Require().Error(err)

		_, err = s.repo.FindSubscriptionByEndpoint(s.ctx, "https://push.example.com/tx-rollback")
		s.ErrorIs(err, models.ErrSubscriptionNotFound)
		found, err := s.repo.GetVisitByUUID(s.ctx, outside.UUID)
		s.Require().NoError(err)
		s.Equal(outside.ID, found.ID)
	})

	s.Run("commit", func() {
		outside := &models.Visit{AddressID: a.ID}
		err := s.repo.Transaction(s.ctx, func(tx models.Repository) error {
			s.Require().NoError(tx.CreateSubscription(s.ctx, &models.PushSubscription{
				AddressID: a.ID, UserID: "u", Endpoint: "https://push.example.com/tx-commit",
				P256dh: "p", Auth: "a", IsActive: true,
			}))
			return s.repo.CreateVisit(s.ctx, outside)
		})
		s.Require().NoError(err)

		_, err = s.repo.FindSubscriptionByEndpoint(s.ctx, "https://push.example.com/tx-commit")
		s.NoError(err)
		_, err = s.repo.GetVisitByUUID(s.ctx, outside.UUID)
		s.NoError(err)
	})
}

func (s *RepositorySuite) TestConcurrentSubscribesRespectCap() {
	a := s.newAddress()
	registry := subscription.NewRegistry(s.repo, subscription.DefaultKeep, logger.NewNop())

	const n = 12
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = registry.Subscribe(s.ctx, "resident-1", a.ID, models.SubscriptionInput{
				Endpoint: fmt.Sprintf("https://push.example.com/concurrent/%d", i),
				Keys:     models.SubscriptionKeys{P256dh: "p256dh", Auth: "auth"},
			})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	active, err := s.repo.ListActiveSubscriptions(s.ctx, &a.ID, 0)
	s.Require().NoError(err)
	s.Len(active, registry.Limit())
}

func (s *RepositorySuite) TestLocks() {
	ok, err := s.repo.AcquireLock(s.ctx, "maintenance", "a", time.Minute)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.repo.AcquireLock(s.ctx, "maintenance", "b", time.Minute)
	s.Require().NoError(err)
	s.False(ok, "lease held by another instance")

	ok, err = s.repo.AcquireLock(s.ctx, "maintenance", "a", time.Minute)
	s.Require().NoError(err)
	s.True(ok, "holder renews its own lease")

	s.Require().NoError(s.repo.ReleaseLock(s.ctx, "maintenance", "a"))

	ok, err = s.repo.AcquireLock(s.ctx, "maintenance", "b", time.Minute)
	s.Require().NoError(err)
	s.True(ok)
}
