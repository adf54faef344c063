package di

import (
	"time"

	"github.com/defval/di"
	"github.com/spf13/viper"

	"ely.by/changeskin/internal/mojang"
	"ely.by/changeskin/internal/skins"
	"ely.by/changeskin/internal/textures"
)

var texturesDiOptions = di.Options(
	di.Provide(newTexturesFetcher, di.As(new(skins.SkinFetcher))),
)

func newTexturesFetcher(
	config *viper.Viper,
	mojangApi *mojang.MojangApi,
	mcApiDe *mojang.McApiDe,
) (*textures.Fetcher, error) {
	config.SetDefault("textures.mode", string(textures.ModeDirect))
	config.SetDefault("cache.absent.ttl", time.Hour)
	config.SetDefault("cache.absent.size", 5120)

	mode, err := textures.ParseMode(config.GetString("textures.mode"))
	if err != nil {
		return nil, err
	}

	return textures.NewFetcher(
		mode,
		mojangApi,
		mcApiDe,
		config.GetDuration("cache.absent.ttl"),
		config.GetUint64("cache.absent.size"),
	)
}
