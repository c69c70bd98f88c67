// Package data initializes the gateway's storage backends: the Postgres run
// index, Redis for rate limiting, and the MinIO vault. Every backend is
// optional; a disabled backend leaves its field nil.
package data

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/airblackbox/gateway/internal/conf"
	"github.com/airblackbox/gateway/internal/pkg/logger"
	"github.com/airblackbox/gateway/internal/pkg/redis"
	"github.com/airblackbox/gateway/internal/recorder"
	"github.com/airblackbox/gateway/internal/vault"
)

// Data bundles the optional storage backends.
type Data struct {
	DB    *gorm.DB
	Index *recorder.Index
	Redis *redis.Client
	Vault *vault.Client
}

// NewData connects the enabled backends and returns a cleanup function.
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{}

	if config.Database.Enabled {
		db, err := initDB(config, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db
		d.Index = recorder.NewIndex(db)
		if err := d.Index.Migrate(); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate run index: %w", err)
		}
	}

	if config.Redis.Enabled {
		rc, err := redis.New(&redis.Config{
			Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = rc
	}

	if config.Vault.Endpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		vc, err := vault.New(ctx, vault.Config{
			Endpoint:  config.Vault.Endpoint,
			AccessKey: config.Vault.AccessKey,
			SecretKey: config.Vault.SecretKey,
			Bucket:    config.Vault.Bucket,
			UseSSL:    config.Vault.UseSSL,
		}, log.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init vault: %w", err)
		}
		d.Vault = vc
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.DB != nil {
			if sqlDB, err := d.DB.DB(); err == nil {
				sqlDB.Close()
			}
		}
		if d.Redis != nil {
			d.Redis.Close()
		}
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database initialized",
		zap.String("host", config.Database.Host),
		zap.String("db", config.Database.DBName))
	return db, nil
}
