// Package registry persists the set of known peers — address, last
// negotiated capability set, and last-seen timestamp — in Postgres.
// cmd/blockd opens it only for its /healthz check: the capability
// negotiator neither writes to it nor loads its rows back into the
// capability cache on restart.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockd/blockd/pkg/capability"
)

// Config holds the registry's Postgres connection settings.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// ApplyDefaults fills in unset connection pool sizes.
func (c *Config) ApplyDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 3
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("registry dsn is required")
	}
	return nil
}

// Store is the Postgres-backed peer registry. Schema is owned by
// golang-migrate, not GORM AutoMigrate; GORM is used only as the query
// layer over the migrated tables.
type Store struct {
	db *gorm.DB
}

// Open runs pending migrations and returns a Store connected to cfg.DSN.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry configuration: %w", err)
	}

	if err := runMigrations(ctx, cfg.DSN); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to registry database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying registry connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Healthcheck verifies the registry's database is reachable.
func (s *Store) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Upsert records addr's negotiated version and capability set, refreshing
// last_seen and clearing any prior error. The capability negotiator does
// not call it.
func (s *Store) Upsert(ctx context.Context, addr, version string, caps capability.Set) error {
	p := Peer{Addr: addr, Version: version, LastSeen: time.Now()}
	if err := p.SetCapabilitySet(caps); err != nil {
		return fmt.Errorf("encode capability set for %s: %w", addr, err)
	}

	err := s.db.WithContext(ctx).Save(&p).Error
	if err != nil {
		return newErr(ErrUnavailable, addr, "upsert peer: "+err.Error())
	}
	return nil
}

// RecordError marks addr as having failed its most recent RPC, without
// discarding its last-known-good capability set.
func (s *Store) RecordError(ctx context.Context, addr string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := s.db.WithContext(ctx).Model(&Peer{}).
		Where("addr = ?", addr).
		Updates(map[string]any{"last_error": msg, "last_seen": time.Now()}).Error
	if err != nil {
		return newErr(ErrUnavailable, addr, "record peer error: "+err.Error())
	}
	return nil
}

// Get returns the registered peer at addr.
func (s *Store) Get(ctx context.Context, addr string) (*Peer, error) {
	var p Peer
	err := s.db.WithContext(ctx).Where("addr = ?", addr).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newErr(ErrNotFound, addr, "peer not registered")
	}
	if err != nil {
		return nil, newErr(ErrUnavailable, addr, "get peer: "+err.Error())
	}
	return &p, nil
}

// List returns every registered peer, ordered by address.
func (s *Store) List(ctx context.Context) ([]Peer, error) {
	var peers []Peer
	if err := s.db.WithContext(ctx).Order("addr").Find(&peers).Error; err != nil {
		return nil, newErr(ErrUnavailable, "", "list peers: "+err.Error())
	}
	return peers, nil
}

// Remove deletes addr from the registry, for cluster membership shrink.
func (s *Store) Remove(ctx context.Context, addr string) error {
	if err := s.db.WithContext(ctx).Delete(&Peer{}, "addr = ?", addr).Error; err != nil {
		return newErr(ErrUnavailable, addr, "remove peer: "+err.Error())
	}
	return nil
}
