package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Pinger is implemented by *pgxpool.Pool and *pgx.Conn.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports p as unhealthy when it cannot be pinged.
func PingCheck(name string, p Pinger) Check {
	return Check{
		Name: name,
		Fn: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
			return nil
		},
	}
}

// PgxPoolCheck pings a pgx connection pool.
func PgxPoolCheck(name string, pool *pgxpool.Pool) Check {
	return PingCheck(name, pool)
}

// GormCheck pings the database behind a gorm handle.
func GormCheck(name string, db *gorm.DB) Check {
	return Check{
		Name: name,
		Fn: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("failed to get database instance: %w", err)
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}
			return nil
		},
	}
}

// OpenGorm connects gorm to the service database and sizes its connection pool.
func OpenGorm(cfg DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get postgres database instance: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 50
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 25
	}
	maxLifetime := cfg.ConnMaxLifetime
	if maxLifetime == 0 {
		maxLifetime = time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	return db, nil
}

// OpenPgxPool creates a pgx pool for the service database and pings it once.
func OpenPgxPool(ctx context.Context, cfg DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("invalid postgres configuration: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return pool, nil
}

// RegisterPgxPool registers a pgx pool that is opened on Startup, stored
// under name, checked by Health and closed on Shutdown.
func (s *State) RegisterPgxPool(name string, cfg DatabaseConfig) error {
	err := s.Register(Hook{
		Name: name,
		Startup: func(ctx context.Context) error {
			pool, err := OpenPgxPool(ctx, cfg)
			if err != nil {
				return err
			}
			s.Set(name, pool)
			return nil
		},
		Shutdown: func(context.Context) error {
			if pool, ok := Client[*pgxpool.Pool](s, name); ok {
				pool.Close()
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	s.AddCheck(Check{
		Name: name,
		Fn: func(ctx context.Context) error {
			pool, ok := Client[*pgxpool.Pool](s, name)
			if !ok {
				return fmt.Errorf("%s is not started", name)
			}
			return PgxPoolCheck(name, pool).Fn(ctx)
		},
	})
	return nil
}

// RegisterGorm registers a gorm handle that is opened on Startup, stored
// under name, checked by Health and closed on Shutdown.
func (s *State) RegisterGorm(name string, cfg DatabaseConfig) error {
	err := s.Register(Hook{
		Name: name,
		Startup: func(context.Context) error {
			db, err := OpenGorm(cfg)
			if err != nil {
				return err
			}
			s.Set(name, db)
			return nil
		},
		Shutdown: func(context.Context) error {
			db, ok := Client[*gorm.DB](s, name)
			if !ok {
				return nil
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	if err != nil {
		return err
	}
	s.AddCheck(Check{
		Name: name,
		Fn: func(ctx context.Context) error {
			db, ok := Client[*gorm.DB](s, name)
			if !ok {
				return fmt.Errorf("%s is not started", name)
			}
			return GormCheck(name, db).Fn(ctx)
		},
	})
	return nil
}

// Client returns the client stored under name if it has type T.
func Client[T any](s *State, name string) (T, bool) {
	v, ok := s.Get(name)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
