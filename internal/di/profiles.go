package di

import (
	"time"

	"github.com/defval/di"
	"github.com/spf13/viper"

	. "ely.by/changeskin/internal/http"
	"ely.by/changeskin/internal/mojang"
	"ely.by/changeskin/internal/profiles"
	"ely.by/changeskin/internal/ratelimit"
)

var profilesDiOptions = di.Options(
	di.Provide(newRateLimiter),
	di.Provide(newResolver, di.As(new(NamesResolver))),
)

func newRateLimiter(config *viper.Viper) *ratelimit.Limiter {
	// The upstream allows 600 requests per 10 minutes from a single IP
	config.SetDefault("ratelimit.requests", 600)
	config.SetDefault("ratelimit.window", 10*time.Minute)

	return ratelimit.New(config.GetDuration("ratelimit.window"), config.GetInt("ratelimit.requests"))
}

func newResolver(
	config *viper.Viper,
	mojangApi *mojang.MojangApi,
	mcApi *mojang.McApi,
	storage profiles.UuidsStorage,
	limiter *ratelimit.Limiter,
) (*profiles.Resolver, error) {
	config.SetDefault("ratelimit.cooldown", 10*time.Minute)
	config.SetDefault("cache.names.ttl", 3*time.Hour)
	config.SetDefault("cache.names.size", 5120)

	return profiles.NewResolver(mojangApi, mcApi, storage, limiter, profiles.Options{
		Cooldown:  config.GetDuration("ratelimit.cooldown"),
		CacheTTL:  config.GetDuration("cache.names.ttl"),
		CacheSize: config.GetUint64("cache.names.size"),
	})
}
