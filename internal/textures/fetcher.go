package textures

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/changeskin/internal/cache"
	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/mojang"
	"ely.by/changeskin/internal/otel"
	"ely.by/changeskin/internal/utils"
)

type Mode string

const (
	// ModeDirect downloads the signed textures from Mojang's session server
	ModeDirect Mode = "direct"
	// ModeAggregator downloads the signed textures from a third-party mirror
	ModeAggregator Mode = "aggregator"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeDirect, ModeAggregator:
		return Mode(value), nil
	}

	return "", fmt.Errorf("unknown textures mode %q", value)
}

type SignedTexturesProvider interface {
	UuidToTextures(ctx context.Context, uuid string, signed bool) (*mojang.ProfileResponse, error)
}

type AggregatedTexturesProvider interface {
	UuidToTextures(ctx context.Context, uuid string) (*mojang.ProfileResponse, error)
}

func NewFetcher(
	mode Mode,
	direct SignedTexturesProvider,
	aggregator AggregatedTexturesProvider,
	absentTtl time.Duration,
	absentSize uint64,
) (*Fetcher, error) {
	metrics, err := newFetcherMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Fetcher{
		Mode:       mode,
		Direct:     direct,
		Aggregator: aggregator,
		absent:     cache.New[uuid.UUID, struct{}](absentTtl, absentSize),
		metrics:    metrics,
	}, nil
}

// Fetcher downloads signed textures of an account
type Fetcher struct {
	Mode       Mode
	Direct     SignedTexturesProvider
	Aggregator AggregatedTexturesProvider

	// Accounts that recently turned out to have no textures
	absent  *cache.Expiring[uuid.UUID, struct{}]
	metrics *fetcherMetrics
}

// Fetch returns nil when the account has no textures or when the textures can't be downloaded right now.
// The failures are logged
func (f *Fetcher) Fetch(ctx context.Context, id uuid.UUID) *db.Record {
	if f.absent.Has(id) {
		f.metrics.AbsentHits.Add(ctx, 1)
		return nil
	}

	f.metrics.Requests.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(f.Mode))))

	var response *mojang.ProfileResponse
	var err error
	if f.Mode == ModeAggregator {
		response, err = f.Aggregator.UuidToTextures(ctx, utils.MojangId(id))
	} else {
		response, err = f.Direct.UuidToTextures(ctx, utils.MojangId(id), true)
	}

	if err != nil {
		slog.ErrorContext(ctx, "Unable to download textures", slog.String("uuid", id.String()), slog.Any("error", err))
		return nil
	}

	var prop *mojang.Property
	if response != nil {
		prop = response.TexturesProperty()
	}

	if prop == nil {
		f.absent.Set(id, struct{}{})
		return nil
	}

	record, err := db.DecodeRecord(prop.Value, prop.Signature)
	if err != nil {
		slog.ErrorContext(ctx, "Received invalid textures value", slog.String("uuid", id.String()), slog.Any("error", err))
		return nil
	}

	return record
}

func (f *Fetcher) Stop() {
	f.absent.Stop()
}

func newFetcherMetrics(meter metric.Meter) (*fetcherMetrics, error) {
	m := &fetcherMetrics{}
	var errors, err error

	m.Requests, err = meter.Int64Counter(
		"textures.request.sent",
		metric.WithDescription("Number of textures requests sent to the upstream"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.AbsentHits, err = meter.Int64Counter(
		"textures.absent.hit",
		metric.WithDescription("Number of requests skipped since the account is known to have no textures"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	return m, errors
}

type fetcherMetrics struct {
	Requests   metric.Int64Counter
	AbsentHits metric.Int64Counter
}
