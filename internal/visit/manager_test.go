package visit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/internal/repository"
	"github.com/core-coin/doorbell/pkg/logger"
)

type ManagerSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *repository.InMemory
	manager *Manager
	now     time.Time
	address *models.Address
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = repository.NewInMemory()
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.manager = NewManager(s.repo, models.VisitTTL, logger.NewNop(), WithClock(func() time.Time { return s.now }))

	s.address = &models.Address{}
	s.Require().NoError(s.repo.CreateAddress(s.ctx, s.address))
}

func (s *ManagerSuite) TestCreateVisit() {
	s.Run("creates an unused visit stamped with now", func() {
		v, err := s.manager.CreateVisit(s.ctx, s.address.UUID)
		s.Require().NoError(err)
		s.NotEmpty(v.UUID)
		s.NotEqual(s.address.UUID, v.UUID)
		s.Equal(s.address.ID, v.AddressID)
		s.False(v.Used)
		s.Equal(s.now, v.CreatedAt)
	})

	s.Run("unknown address", func() {
		_, err := s.manager.CreateVisit(s.ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
		s.ErrorIs(err, models.ErrAddressNotFound)
	})

	s.Run("malformed address uuid", func() {
		_, err := s.manager.CreateVisit(s.ctx, "not-a-uuid")
		s.ErrorIs(err, models.ErrAddressNotFound)
	})
}

func (s *ManagerSuite) TestGetVisit() {
	v, err := s.manager.CreateVisit(s.ctx, s.address.UUID)
	s.Require().NoError(err)
	created := s.now

	s.Run("active inside the window", func() {
		s.now = created.Add(14*time.Minute + 59*time.Second)
		status, err := s.manager.GetVisit(s.ctx, v.UUID)
		s.Require().NoError(err)
		s.False(status.IsExpired)
		s.Equal(models.VisitStateActive, status.State)
		s.Equal(created.Add(15*time.Minute), status.ExpiredAt)
	})

	s.Run("expired after the window", func() {
		s.now = created.Add(15*time.Minute + time.Second)
		status, err := s.manager.GetVisit(s.ctx, v.UUID)
		s.Require().NoError(err)
		s.True(status.IsExpired)
		s.Equal(models.VisitStateExpired, status.State)
	})

	s.Run("unknown visit", func() {
		_, err := s.manager.GetVisit(s.ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
		s.ErrorIs(err, models.ErrVisitNotFound)

		_, err = s.manager.GetVisit(s.ctx, "")
		s.ErrorIs(err, models.ErrVisitNotFound)
	})
}

func (s *ManagerSuite) TestValidateForRing() {
	v, err := s.manager.CreateVisit(s.ctx, s.address.UUID)
	s.Require().NoError(err)
	created := s.now

	s.now = created.Add(14*time.Minute + 59*time.Second)
	valid, err := s.manager.ValidateForRing(s.ctx, v.UUID)
	s.Require().NoError(err)
	s.Require().NotNil(valid.Address)
	s.Equal(s.address.ID, valid.Address.ID)

	// The visitor may sit on the page past expiry before pressing the button.
	s.now = created.Add(15*time.Minute + time.Second)
	_, err = s.manager.ValidateForRing(s.ctx, v.UUID)
	s.ErrorIs(err, models.ErrVisitExpired)

	s.now = created.Add(time.Hour)
	_, err = s.manager.ValidateForRing(s.ctx, v.UUID)
	s.ErrorIs(err, models.ErrVisitExpired, "expiry is terminal")
}

func (s *ManagerSuite) TestMarkRung() {
	v, err := s.manager.CreateVisit(s.ctx, s.address.UUID)
	s.Require().NoError(err)

	s.Require().NoError(s.manager.MarkRung(s.ctx, v, s.now))
	s.True(v.Used)

	stored, err := s.repo.GetVisitByUUID(s.ctx, v.UUID)
	s.Require().NoError(err)
	s.True(stored.Used)
	s.Require().NotNil(stored.RungAt)
	s.Equal(s.now, *stored.RungAt)
}

func (s *ManagerSuite) TestDefaultTTL() {
	m := NewManager(s.repo, 0, logger.NewNop())
	s.Equal(15*time.Minute, m.TTL())
}
