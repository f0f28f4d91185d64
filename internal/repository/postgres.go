package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
)

var _ models.Repository = (*PostgresDB)(nil)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresDBFromDSN(dsn, logger)
}

// NewPostgresDBFromDSN opens the database and migrates the doorbell tables.
func NewPostgresDBFromDSN(dsn string, logger *logger.Logger) (*PostgresDB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.Address{}, &models.Visit{}, &models.PushSubscription{}, &models.AppLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) Transaction(ctx context.Context, fn func(repo models.Repository) error) error {
	var fnErr error
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&PostgresDB{Conn: tx, logger: db.logger})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return models.NewStorageError("commit transaction", err)
	}
	return err
}

func (db *PostgresDB) CreateAddress(ctx context.Context, address *models.Address) error {
	if err := db.Conn.WithContext(ctx).Create(address).Error; err != nil {
		return models.NewStorageError("create address", err)
	}
	return nil
}

func (db *PostgresDB) GetAddressByUUID(ctx context.Context, uuid string) (*models.Address, error) {
	var address models.Address
	if err := db.Conn.WithContext(ctx).Where("uuid = ?", uuid).First(&address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAddressNotFound
		}
		return nil, models.NewStorageError("get address", err)
	}
	return &address, nil
}

func (db *PostgresDB) GetAddressByID(ctx context.Context, id int64) (*models.Address, error) {
	var address models.Address
	if err := db.Conn.WithContext(ctx).First(&address, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrAddressNotFound
		}
		return nil, models.NewStorageError("get address", err)
	}
	return &address, nil
}

// LockAddress takes a row lock on the address for the rest of the transaction.
// Subscribes for one address are serialized through it.
func (db *PostgresDB) LockAddress(ctx context.Context, id int64) error {
	var address models.Address
	err := db.Conn.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&address, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ErrAddressNotFound
		}
		return models.NewStorageError("lock address", err)
	}
	return nil
}

func (db *PostgresDB) CountAddresses(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Address{}).Count(&count).Error; err != nil {
		return 0, models.NewStorageError("count addresses", err)
	}
	return count, nil
}

func (db *PostgresDB) CreateVisit(ctx context.Context, visit *models.Visit) error {
	if err := db.Conn.WithContext(ctx).Omit("Address").Create(visit).Error; err != nil {
		return models.NewStorageError("create visit", err)
	}
	return nil
}

func (db *PostgresDB) GetVisitByUUID(ctx context.Context, uuid string) (*models.Visit, error) {
	var visit models.Visit
	if err := db.Conn.WithContext(ctx).Preload("Address").Where("uuid = ?", uuid).First(&visit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrVisitNotFound
		}
		return nil, models.NewStorageError("get visit", err)
	}
	return &visit, nil
}

func (db *PostgresDB) MarkVisitRung(ctx context.Context, id int64, at time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.Visit{}).Where("id = ?", id).
		Updates(map[string]interface{}{"used": true, "rung_at": at})
	if res.Error != nil {
		return models.NewStorageError("mark visit rung", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrVisitNotFound
	}
	return nil
}

func (db *PostgresDB) DeleteVisitsCreatedBefore(ctx context.Context, t time.Time) (int64, error) {
	res := db.Conn.WithContext(ctx).Where("created_at < ?", t).Delete(&models.Visit{})
	if res.Error != nil {
		return 0, models.NewStorageError("remove old visits", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *PostgresDB) CountVisits(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Visit{}).Count(&count).Error; err != nil {
		return 0, models.NewStorageError("count visits", err)
	}
	return count, nil
}

func (db *PostgresDB) RecentVisits(ctx context.Context, limit int) ([]*models.Visit, error) {
	var visits []*models.Visit
	if err := db.Conn.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&visits).Error; err != nil {
		return nil, models.NewStorageError("get recent visits", err)
	}
	return visits, nil
}

func (db *PostgresDB) FindSubscriptionByEndpoint(ctx context.Context, endpoint string) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	if err := db.Conn.WithContext(ctx).Where("endpoint = ?", endpoint).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSubscriptionNotFound
		}
		return nil, models.NewStorageError("find subscription", err)
	}
	return &sub, nil
}

func (db *PostgresDB) CreateSubscription(ctx context.Context, sub *models.PushSubscription) error {
	if err := db.Conn.WithContext(ctx).Omit("Address").Create(sub).Error; err != nil {
		return models.NewStorageError("create subscription", err)
	}
	return nil
}

func (db *PostgresDB) UpdateSubscription(ctx context.Context, sub *models.PushSubscription) error {
	if err := db.Conn.WithContext(ctx).Omit("Address").Save(sub).Error; err != nil {
		return models.NewStorageError("update subscription", err)
	}
	return nil
}

func (db *PostgresDB) ListActiveSubscriptions(ctx context.Context, addressID *int64, limit int) ([]*models.PushSubscription, error) {
	q := db.Conn.WithContext(ctx).Where("is_active = ?", true)
	if addressID != nil {
		q = q.Where("address_id = ?", *addressID)
	}
	q = q.Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var subs []*models.PushSubscription
	if err := q.Find(&subs).Error; err != nil {
		return nil, models.NewStorageError("list active subscriptions", err)
	}
	return subs, nil
}

func (db *PostgresDB) DeactivateSubscriptions(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Conn.WithContext(ctx).Model(&models.PushSubscription{}).
		Where("id IN ? AND is_active = ?", ids, true).
		Updates(map[string]interface{}{"is_active": false, "updated_at": at})
	if res.Error != nil {
		return 0, models.NewStorageError("deactivate subscriptions", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *PostgresDB) CountActiveSubscriptions(ctx context.Context) (int64, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.PushSubscription{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		return 0, models.NewStorageError("count active subscriptions", err)
	}
	return count, nil
}

func (db *PostgresDB) AcquireLock(ctx context.Context, name, instanceID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := models.AppLock{
		LockName:   name,
		InstanceID: instanceID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	// Take over only our own lease or one that has lapsed.
	res := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lock_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"instance_id", "acquired_at", "expires_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Or(
				clause.Eq{Column: clause.Column{Table: "app_locks", Name: "instance_id"}, Value: instanceID},
				clause.Lt{Column: clause.Column{Table: "app_locks", Name: "expires_at"}, Value: now},
			),
		}},
	}).Create(&lock)
	if res.Error != nil {
		return false, models.NewStorageError("acquire lock", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *PostgresDB) ReleaseLock(ctx context.Context, name, instanceID string) error {
	err := db.Conn.WithContext(ctx).
		Where("lock_name = ? AND instance_id = ?", name, instanceID).
		Delete(&models.AppLock{}).Error
	if err != nil {
		return models.NewStorageError("release lock", err)
	}
	return nil
}
