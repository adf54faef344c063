package profiles

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brunomvsouza/singleflight"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/changeskin/internal/cache"
	"ely.by/changeskin/internal/mojang"
	"ely.by/changeskin/internal/otel"
	"ely.by/changeskin/internal/ratelimit"
	"ely.by/changeskin/internal/utils"
)

// ErrNotFound is returned when the name can't belong to any account. Such results are cached
var ErrNotFound = errors.New("there is no account with such name")

// ErrRateLimited is returned when both the primary and the secondary providers have exhausted their budget
var ErrRateLimited = errors.New("all providers are rate limited")

var allowedNamesRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{2,16}$`)

type UuidsProvider interface {
	// UsernameToUuid must return nil without an error when the provider is sure there is no such account
	UsernameToUuid(ctx context.Context, username string) (*mojang.ProfileInfo, error)
}

// UuidsStorage is an optional cache shared between processes
type UuidsStorage interface {
	// GetUuidForName returns found = false when nothing is known about the name
	// and uuid.Nil with found = true when the name is known to have no account
	GetUuidForName(ctx context.Context, name string) (id uuid.UUID, found bool, err error)
	StoreUuid(ctx context.Context, name string, id uuid.UUID) error
}

type Options struct {
	// Cooldown is the time the primary provider isn't used after it reported the rate limit
	Cooldown  time.Duration
	CacheTTL  time.Duration
	CacheSize uint64
}

func NewResolver(
	primary UuidsProvider,
	secondary UuidsProvider,
	storage UuidsStorage,
	limiter *ratelimit.Limiter,
	opts Options,
) (*Resolver, error) {
	metrics, err := newResolverMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Resolver{
		Primary:   primary,
		Secondary: secondary,
		Storage:   storage,
		limiter:   limiter,
		cooldown:  opts.Cooldown,
		found:     cache.New[string, uuid.UUID](opts.CacheTTL, opts.CacheSize),
		missing:   cache.New[string, struct{}](opts.CacheTTL, opts.CacheSize),
		now:       time.Now,
		metrics:   metrics,
	}, nil
}

// Resolver converts names into the accounts ids. The primary provider is used while the requests budget allows it,
// then the secondary one takes its place
type Resolver struct {
	Primary   UuidsProvider
	Secondary UuidsProvider
	Storage   UuidsStorage

	limiter  *ratelimit.Limiter
	cooldown time.Duration
	found    *cache.Expiring[string, uuid.UUID]
	missing  *cache.Expiring[string, struct{}]
	// Unix nanoseconds of the last rate limit response from the primary provider
	lastRateLimit atomic.Int64
	now           func() time.Time

	group   singleflight.Group[string, uuid.UUID]
	metrics *resolverMetrics
}

// Resolve returns either the account id, ErrNotFound or ErrRateLimited.
// When the providers fail for any other reason, the failure is logged and uuid.Nil is returned without an error
func (r *Resolver) Resolve(ctx context.Context, name string) (uuid.UUID, error) {
	if !allowedNamesRegex.MatchString(name) {
		return uuid.Nil, ErrNotFound
	}

	key := strings.ToLower(name)
	if id, ok := r.found.Get(key); ok {
		r.metrics.CacheHits.Add(ctx, 1)
		return id, nil
	}

	if r.missing.Has(key) {
		r.metrics.CacheHits.Add(ctx, 1)
		return uuid.Nil, ErrNotFound
	}

	r.metrics.CacheMisses.Add(ctx, 1)

	id, err, shared := r.group.Do(key, func() (uuid.UUID, error) {
		return r.resolveUncached(ctx, name, key)
	})
	if shared {
		r.metrics.Shared.Add(ctx, 1)
	}

	return id, err
}

// Stop releases the caches background goroutines
func (r *Resolver) Stop() {
	r.found.Stop()
	r.missing.Stop()
}

func (r *Resolver) resolveUncached(ctx context.Context, name string, key string) (uuid.UUID, error) {
	if r.Storage != nil {
		id, found, err := r.Storage.GetUuidForName(ctx, name)
		if err != nil {
			slog.WarnContext(ctx, "Unable to read the names storage", slog.String("name", name), slog.Any("error", err))
		} else if found {
			return r.remember(key, id)
		}
	}

	id, err := r.fetch(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return uuid.Nil, err
	}

	// Soft failures aren't cached
	if err == nil && id == uuid.Nil {
		return uuid.Nil, nil
	}

	if r.Storage != nil {
		storeErr := r.Storage.StoreUuid(ctx, name, id)
		if storeErr != nil {
			slog.WarnContext(ctx, "Unable to store the name into the names storage", slog.String("name", name), slog.Any("error", storeErr))
		}
	}

	return r.remember(key, id)
}

func (r *Resolver) remember(key string, id uuid.UUID) (uuid.UUID, error) {
	if id == uuid.Nil {
		r.missing.Set(key, struct{}{})
		return uuid.Nil, ErrNotFound
	}

	r.found.Set(key, id)

	return id, nil
}

func (r *Resolver) fetch(ctx context.Context, name string) (uuid.UUID, error) {
	if r.inCooldown() || !r.limiter.TryAcquire() {
		r.metrics.Denied.Add(ctx, 1)
		return r.fetchSecondary(ctx, name)
	}

	r.metrics.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", "primary")))
	profile, err := r.Primary.UsernameToUuid(ctx, name)
	if err != nil {
		var tooManyRequests *mojang.TooManyRequestsError
		if errors.As(err, &tooManyRequests) {
			slog.InfoContext(ctx, "The primary names provider has reached its rate limit, switching to the secondary one")
			r.lastRateLimit.Store(r.now().UnixNano())

			return r.fetchSecondary(ctx, name)
		}

		slog.ErrorContext(ctx, "Unable to resolve the name with the primary provider", slog.String("name", name), slog.Any("error", err))

		return uuid.Nil, nil
	}

	return profileToId(ctx, name, profile)
}

func (r *Resolver) fetchSecondary(ctx context.Context, name string) (uuid.UUID, error) {
	r.metrics.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", "secondary")))
	profile, err := r.Secondary.UsernameToUuid(ctx, name)
	if err != nil {
		var tooManyRequests *mojang.TooManyRequestsError
		if errors.As(err, &tooManyRequests) {
			return uuid.Nil, ErrRateLimited
		}

		slog.ErrorContext(ctx, "Unable to resolve the name with the secondary provider", slog.String("name", name), slog.Any("error", err))

		return uuid.Nil, nil
	}

	return profileToId(ctx, name, profile)
}

func (r *Resolver) inCooldown() bool {
	last := r.lastRateLimit.Load()
	if last == 0 {
		return false
	}

	return r.now().Sub(time.Unix(0, last)) < r.cooldown
}

func profileToId(ctx context.Context, name string, profile *mojang.ProfileInfo) (uuid.UUID, error) {
	if profile == nil {
		return uuid.Nil, ErrNotFound
	}

	id, err := utils.ParseUuid(profile.Id)
	if err != nil {
		slog.ErrorContext(ctx, "The provider returned an invalid uuid", slog.String("name", name), slog.Any("error", err))
		return uuid.Nil, nil
	}

	return id, nil
}

func newResolverMetrics(meter metric.Meter) (*resolverMetrics, error) {
	m := &resolverMetrics{}
	var errors, err error

	m.CacheHits, err = meter.Int64Counter(
		"names.cache.hit",
		metric.WithDescription("Number of names resolved from the local cache"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.CacheMisses, err = meter.Int64Counter(
		"names.cache.miss",
		metric.WithDescription("Number of names missing from the local cache"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.Requests, err = meter.Int64Counter(
		"names.request.sent",
		metric.WithDescription("Number of requests sent to the names providers"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.Denied, err = meter.Int64Counter(
		"names.ratelimit.denied",
		metric.WithDescription("Number of requests redirected to the secondary provider due to the requests budget"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.Shared, err = meter.Int64Counter(
		"names.singleflight.shared",
		metric.WithDescription("Number of resolutions that received the result of a concurrent call"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	return m, errors
}

type resolverMetrics struct {
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
	Requests    metric.Int64Counter
	Denied      metric.Int64Counter
	Shared      metric.Int64Counter
}
