package db

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/quotepay/internal/config"
	obslogger "github.com/smallbiznis/quotepay/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/prometheus"
)

const (
	maxConnectAttempts = 5
	connectRetryDelay  = 2 * time.Second
	slowQueryThreshold = 200 * time.Millisecond
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// New opens the database, applies pool settings and registers the tracing
// and metrics plugins.
func New(p Params) (*gorm.DB, error) {
	cfg := FromAppConfig(p.Config)
	log := p.Log.Named("db")

	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	var conn *gorm.DB
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err = gorm.Open(dialector, &gorm.Config{
			Logger:         obslogger.NewGormLogger(p.Log, gormlogger.Warn, slowQueryThreshold),
			TranslateError: true,
			NowFunc:        func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			break
		}
		log.Warn("database connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxConnectAttempts),
			zap.Error(err),
		)
		if attempt < maxConnectAttempts {
			time.Sleep(connectRetryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("register tracing plugin: %w", err)
	}
	if err := conn.Use(prometheus.New(prometheus.Config{
		DBName:          cfg.Name,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		return nil, fmt.Errorf("register metrics plugin: %w", err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	log.Info("database connected", zap.String("type", cfg.Type), zap.String("name", cfg.Name))
	return conn, nil
}
