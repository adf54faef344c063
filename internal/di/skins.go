package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/defval/di"
	"github.com/google/uuid"
	"github.com/spf13/viper"

	"ely.by/changeskin/internal/dispatcher"
	. "ely.by/changeskin/internal/http"
	"ely.by/changeskin/internal/messaging"
	"ely.by/changeskin/internal/skins"
	"ely.by/changeskin/internal/utils"
)

var skinsDiOptions = di.Options(
	di.Provide(newSkinsService,
		di.As(new(SkinsService)),
		di.As(new(messaging.SkinUpdateHandler)),
	),
	di.Provide(newOwnerListChecker, di.As(new(messaging.PermissionChecker))),
)

func newSkinsService(
	ctx context.Context,
	config *viper.Viper,
	fetcher skins.SkinFetcher,
	store skins.SkinStore,
	emitter dispatcher.Emitter,
) (*skins.Service, error) {
	config.SetDefault("skins.auto_update", 0)
	config.SetDefault("skins.restore_on_login", false)
	config.SetDefault("skins.cooldown", 5*time.Minute)
	config.SetDefault("skins.defaults", []string{})

	defaults, err := parseUuids(config.GetStringSlice("skins.defaults"))
	if err != nil {
		return nil, fmt.Errorf("invalid skins.defaults: %w", err)
	}

	service, err := skins.NewService(fetcher, store, emitter, skins.Options{
		AutoUpdate:     config.GetDuration("skins.auto_update"),
		RestoreOnLogin: config.GetBool("skins.restore_on_login"),
		Cooldown:       config.GetDuration("skins.cooldown"),
	})
	if err != nil {
		return nil, err
	}

	if len(defaults) > 0 {
		loaded := service.LoadDefaultSkins(ctx, defaults)
		slog.Info("Default skins loaded", slog.Int("count", loaded), slog.Int("configured", len(defaults)))
	}

	return service, nil
}

func newOwnerListChecker(config *viper.Viper) (*skins.OwnerListChecker, error) {
	config.SetDefault("permissions.whitelist", []string{})
	config.SetDefault("permissions.blacklist", []string{})

	whitelist, err := parseUuids(config.GetStringSlice("permissions.whitelist"))
	if err != nil {
		return nil, fmt.Errorf("invalid permissions.whitelist: %w", err)
	}

	blacklist, err := parseUuids(config.GetStringSlice("permissions.blacklist"))
	if err != nil {
		return nil, fmt.Errorf("invalid permissions.blacklist: %w", err)
	}

	return skins.NewOwnerListChecker(whitelist, blacklist), nil
}

func parseUuids(values []string) ([]uuid.UUID, error) {
	result := make([]uuid.UUID, 0, len(values))
	for _, value := range values {
		id, err := utils.ParseUuid(value)
		if err != nil {
			return nil, err
		}

		result = append(result, id)
	}

	return result, nil
}
