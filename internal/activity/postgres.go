package activity

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Account is the slice of the accounts table this subsystem reads.
type Account struct {
	ID              string     `gorm:"primaryKey"`
	CurrentSignInAt *time.Time `gorm:"column:current_sign_in_at"`
}

// List is a list timeline owner.
type List struct {
	ID        string `gorm:"primaryKey"`
	AccountID string `gorm:"column:account_id;index"`
}

// Antenna is an antenna timeline owner.
type Antenna struct {
	ID        string `gorm:"primaryKey"`
	AccountID string `gorm:"column:account_id;index"`
}

// DB implements Oracle and OwnerResolver against the Postgres account
// database. Read-only: this subsystem never writes account data.
type DB struct {
	db *gorm.DB
}

// compile-time interface checks
var (
	_ Oracle        = (*DB)(nil)
	_ OwnerResolver = (*DB)(nil)
)

// Open connects to Postgres with the given DSN.
func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("activity: connect: %w", err)
	}
	return &DB{db: db}, nil
}

// NewDB wraps an existing gorm handle. Used by tests.
func NewDB(db *gorm.DB) *DB {
	return &DB{db: db}
}

// InactiveAccounts returns the ids of accounts whose last sign-in is
// before threshold. Accounts that never signed in are excluded: they
// have no activity baseline to judge against, and sweeping them would
// race account onboarding.
func (d *DB) InactiveAccounts(ctx context.Context, threshold time.Time) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&Account{}).
		Where("current_sign_in_at IS NOT NULL AND current_sign_in_at < ?", threshold).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("activity: query inactive accounts: %w", err)
	}
	return ids, nil
}

// ListsOwnedBy returns the ids of lists owned by the account.
func (d *DB) ListsOwnedBy(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&List{}).
		Where("account_id = ?", accountID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: lists of %s: %v", ErrResolution, accountID, err)
	}
	return ids, nil
}

// AntennasOwnedBy returns the ids of antennas owned by the account.
func (d *DB) AntennasOwnedBy(ctx context.Context, accountID string) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Model(&Antenna{}).
		Where("account_id = ?", accountID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: antennas of %s: %v", ErrResolution, accountID, err)
	}
	return ids, nil
}

// Ping verifies database connectivity, for readiness checks.
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("activity: db handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("activity: ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("activity: db handle: %w", err)
	}
	return sqlDB.Close()
}
