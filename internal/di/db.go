package di

import (
	"context"
	"fmt"

	"github.com/defval/di"
	"github.com/etherlabsio/healthcheck/v2"
	"github.com/spf13/viper"

	"ely.by/changeskin/internal/db/redis"
	"ely.by/changeskin/internal/db/sql"
	"ely.by/changeskin/internal/eventsubscribers"
	. "ely.by/changeskin/internal/http"
	"ely.by/changeskin/internal/profiles"
	"ely.by/changeskin/internal/skins"
)

var dbDiOptions = di.Options(
	di.Provide(newStore,
		di.As(new(skins.SkinStore)),
		di.As(new(PreferencesStore)),
	),
	di.Provide(newUuidsStorage),
)

func newStore(ctx context.Context, container *di.Container, config *viper.Viper) (*sql.Store, error) {
	config.SetDefault("storage.driver", "sqlite")
	config.SetDefault("storage.host", "localhost")
	config.SetDefault("storage.port", 3306)
	config.SetDefault("storage.database", "changeskin.db")
	config.SetDefault("storage.username", "")
	config.SetDefault("storage.password", "")
	config.SetDefault("storage.use_ssl", false)
	config.SetDefault("storage.pool_size", 10)
	config.SetDefault("storage.auto_migrate", true)

	store, err := sql.Open(sql.Config{
		Driver:   config.GetString("storage.driver"),
		Host:     config.GetString("storage.host"),
		Port:     config.GetInt("storage.port"),
		Database: config.GetString("storage.database"),
		Username: config.GetString("storage.username"),
		Password: config.GetString("storage.password"),
		UseSSL:   config.GetBool("storage.use_ssl"),
		PoolSize: config.GetInt("storage.pool_size"),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open the storage: %w", err)
	}

	if config.GetBool("storage.auto_migrate") {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	if err := container.Provide(func() *namedHealthChecker {
		return &namedHealthChecker{
			Name:    "storage",
			Checker: eventsubscribers.DatabaseChecker(store),
		}
	}); err != nil {
		return nil, err
	}

	return store, nil
}

// The shared names cache is optional, so the interface is returned to keep it nil when it's disabled
func newUuidsStorage(ctx context.Context, container *di.Container, config *viper.Viper) (profiles.UuidsStorage, error) {
	config.SetDefault("storage.redis.enabled", false)
	config.SetDefault("storage.redis.host", "localhost")
	config.SetDefault("storage.redis.port", 6379)
	config.SetDefault("storage.redis.pool_size", 10)
	config.SetDefault("storage.redis.ttl", "72h")

	if !config.GetBool("storage.redis.enabled") {
		return nil, nil
	}

	conn, err := redis.New(
		ctx,
		fmt.Sprintf("%s:%d", config.GetString("storage.redis.host"), config.GetInt("storage.redis.port")),
		config.GetInt("storage.redis.pool_size"),
		config.GetDuration("storage.redis.ttl"),
	)
	if err != nil {
		return nil, err
	}

	if err := container.Provide(func() *namedHealthChecker {
		return &namedHealthChecker{
			Name:    "redis",
			Checker: healthcheck.CheckerFunc(conn.Ping),
		}
	}); err != nil {
		return nil, err
	}

	return conn, nil
}
