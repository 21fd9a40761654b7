// Package store persists order submissions and risk decisions for audit
// purposes (trades are not recorded), grounded on the reference codebase's
// database package:
// same driver switch (sqlite/postgres/mysql), the same GORM connection-pool
// tuning knobs, and AutoMigrate at open time.
package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Quant-Club/Quant-Engine/internal/domain"
)

// Config configures the audit store's database connection.
type Config struct {
	Driver          string // sqlite, postgres, mysql
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OrderRecord is a persisted order-submission attempt.
type OrderRecord struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Exchange string `gorm:"index:idx_exchange_symbol;size:64"`
	Symbol   string `gorm:"index:idx_exchange_symbol;size:32"`
	OrderID  string `gorm:"index;size:64"`
	Side     string `gorm:"size:8"`
	Type     string `gorm:"size:16"`
	Price    float64
	Volume   float64
	Accepted bool
	Reason   string `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index"`
}

// RiskDecisionRecord is a persisted pre-trade risk verdict.
type RiskDecisionRecord struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"index;size:32"`
	Side      string `gorm:"size:8"`
	Volume    float64
	Price     float64
	Accepted  bool
	Reason    string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index"`
}

// Store is a GORM-backed audit log implementing risk.Sink and
// router.AuditSink so both components can record their decisions without
// importing this package directly (they depend only on the interfaces they
// declare).
type Store struct {
	db *gorm.DB
}

// Open opens (and, for sqlite, creates) the configured database and runs
// AutoMigrate for the audit tables.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&OrderRecord{}, &RiskDecisionRecord{}); err != nil {
		return nil, fmt.Errorf("store: auto migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordDecision implements risk.Sink.
func (s *Store) RecordDecision(order domain.Order, accepted bool, reason domain.RejectReason) {
	rec := RiskDecisionRecord{
		Symbol:    string(order.Symbol),
		Side:      string(order.Side),
		Volume:    order.Volume,
		Price:     order.Price,
		Accepted:  accepted,
		Reason:    string(reason),
		CreatedAt: time.Now(),
	}
	s.db.WithContext(context.Background()).Create(&rec)
}

// RecordOrderSubmitted implements router.AuditSink.
func (s *Store) RecordOrderSubmitted(exchangeName string, orderID domain.OrderId, order domain.Order) {
	rec := OrderRecord{
		Exchange:  exchangeName,
		Symbol:    string(order.Symbol),
		OrderID:   string(orderID),
		Side:      string(order.Side),
		Type:      string(order.Type),
		Price:     order.Price,
		Volume:    order.Volume,
		Accepted:  true,
		CreatedAt: time.Now(),
	}
	s.db.WithContext(context.Background()).Create(&rec)
}

// RecordOrderFailed implements router.AuditSink.
func (s *Store) RecordOrderFailed(exchangeName string, order domain.Order, err error) {
	rec := OrderRecord{
		Exchange:  exchangeName,
		Symbol:    string(order.Symbol),
		Side:      string(order.Side),
		Type:      string(order.Type),
		Price:     order.Price,
		Volume:    order.Volume,
		Accepted:  false,
		Reason:    err.Error(),
		CreatedAt: time.Now(),
	}
	s.db.WithContext(context.Background()).Create(&rec)
}

// RecentOrders returns the most recently recorded order attempts, newest
// first, for use by the read-only status API.
func (s *Store) RecentOrders(ctx context.Context, limit int) ([]OrderRecord, error) {
	var out []OrderRecord
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
