package cmd

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/defval/di"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ely.by/changeskin/internal/db/sql"
	"ely.by/changeskin/internal/di"
	"ely.by/changeskin/internal/http"
	"ely.by/changeskin/internal/messaging"
	"ely.by/changeskin/internal/otel"
	"ely.by/changeskin/internal/profiles"
	"ely.by/changeskin/internal/skins"
	"ely.by/changeskin/internal/textures"
	"ely.by/changeskin/internal/version"
)

var RootCmd = &cobra.Command{
	Use:     "changeskin",
	Short:   "Skins resolution, storage and synchronization service for a network of Minecraft servers",
	Version: version.Version(),
}

func shouldGetContainer() *Container {
	container, err := di.New()
	if err != nil {
		panic(err)
	}

	return container
}

func startServer() error {
	if viper.GetBool("otel.enabled") {
		shutdownOtel, err := otel.SetupOTelSDK(context.Background(), otelOptions(viper.GetViper()))
		if err != nil {
			return err
		}

		defer func() {
			_ = shutdownOtel(context.Background())
		}()
	}

	container := shouldGetContainer()

	var ctx context.Context
	var config *viper.Viper
	if err := container.Resolve(&ctx); err != nil {
		return err
	}

	if err := container.Resolve(&config); err != nil {
		return err
	}

	if config.GetBool("messaging.enabled") {
		var messenger *messaging.Messenger
		if err := container.Resolve(&messenger); err != nil {
			return err
		}

		go func() {
			err := messenger.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Messages consumption has stopped", slog.Any("error", err))
			}
		}()
	}

	if err := container.Invoke(http.StartServer); err != nil {
		return err
	}

	return shutdown(container, config)
}

func otelOptions(config *viper.Viper) otel.Options {
	config.SetDefault("otel.logs", true)
	config.SetDefault("otel.log_level", "info")
	config.SetDefault("otel.traces", true)
	config.SetDefault("otel.metrics", true)

	var level slog.Level
	if err := level.UnmarshalText([]byte(config.GetString("otel.log_level"))); err != nil {
		level = slog.LevelInfo
	}

	return otel.Options{
		Instance: config.GetString("messaging.server"),
		Logs:     config.GetBool("otel.logs"),
		LogLevel: level,
		Traces:   config.GetBool("otel.traces"),
		Metrics:  config.GetBool("otel.metrics"),
	}
}

func shutdown(container *Container, config *viper.Viper) error {
	var result error

	var service *skins.Service
	if err := container.Resolve(&service); err == nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		result = errors.Join(result, service.Shutdown(stopCtx))
		cancel()
	}

	var resolver *profiles.Resolver
	if err := container.Resolve(&resolver); err == nil {
		resolver.Stop()
	}

	var fetcher *textures.Fetcher
	if err := container.Resolve(&fetcher); err == nil {
		fetcher.Stop()
	}

	if config.GetBool("messaging.enabled") {
		var transport *messaging.AmqpTransport
		if err := container.Resolve(&transport); err == nil {
			result = errors.Join(result, transport.Close())
		}
	}

	var store *sql.Store
	if err := container.Resolve(&store); err == nil {
		result = errors.Join(result, store.Close())
	}

	return result
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.AutomaticEnv()
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
}
