package skins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/dispatcher"
	"ely.by/changeskin/internal/otel"
)

const (
	// SkinChangedTopic is emitted with the receiver id and the new target record (nil on reset)
	SkinChangedTopic = "skin:changed"
	// SkinAppliedTopic is emitted with the player name and the record received from another process.
	// A nil record means the skin must be reloaded from the storage
	SkinAppliedTopic = "skin:applied"
)

// ErrNoSkin is returned when there is nothing to invalidate
var ErrNoSkin = errors.New("the player has no skin")

type CooldownError struct {
	Left time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("the skin can be changed again in %s", e.Left.Round(time.Second))
}

type SkinFetcher interface {
	Fetch(ctx context.Context, id uuid.UUID) *db.Record
}

type SkinStore interface {
	GetPreference(ctx context.Context, playerId uuid.UUID) (*db.Preference, error)
	GetRecord(ctx context.Context, skinId int64) (*db.Record, error)
	GetRecordByOwner(ctx context.Context, owner uuid.UUID) (*db.Record, error)
	SaveRecord(ctx context.Context, record *db.Record) bool
	SavePreference(ctx context.Context, pref *db.Preference) error
}

type Options struct {
	// AutoUpdate is the age after which a stored skin is downloaded again. Zero disables the refresh
	AutoUpdate time.Duration
	// RestoreOnLogin gives players without a preference their own upstream skin
	RestoreOnLogin bool
	// Cooldown is the time between two skin changes of the same invoker
	Cooldown time.Duration
}

func NewService(fetcher SkinFetcher, store SkinStore, emitter dispatcher.Emitter, opts Options) (*Service, error) {
	metrics, err := newServiceMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Service{
		Fetcher:  fetcher,
		Store:    store,
		Emitter:  emitter,
		opts:     opts,
		cooldown: NewCooldown(opts.Cooldown),
		now:      time.Now,
		metrics:  metrics,
	}, nil
}

// Service decides which skin a player gets and keeps the storage in sync with that decision
type Service struct {
	Fetcher SkinFetcher
	Store   SkinStore
	Emitter dispatcher.Emitter

	opts     Options
	cooldown *Cooldown
	now      func() time.Time

	defaultsMu sync.RWMutex
	defaults   []*db.Record

	wg      sync.WaitGroup
	metrics *serviceMetrics
}

// EnsureSkin resolves the skin the player must get on join and returns the same preference, possibly updated.
// Storage writes are issued in background, use Wait or Shutdown to drain them
func (s *Service) EnsureSkin(ctx context.Context, playerId uuid.UUID, playerName string, pref *db.Preference) *db.Preference {
	target := pref.TargetSkin()
	if target != nil {
		if pref.KeepSkin() || !s.isStale(target) {
			s.countEnsure(ctx, "kept")
			return pref
		}

		fresh := s.Fetcher.Fetch(ctx, target.ProfileId())
		if fresh == nil || fresh.Equal(target) {
			s.countEnsure(ctx, "kept")
			return pref
		}

		slog.DebugContext(ctx, "Refreshed an outdated skin", slog.String("player", playerName), slog.String("owner", target.ProfileId().String()))
		pref.SetTargetSkin(fresh)
		s.persist(ctx, pref, fresh)
		s.countEnsure(ctx, "refreshed")

		return pref
	}

	if s.opts.RestoreOnLogin {
		own := s.ownSkin(ctx, playerId)
		if own != nil {
			pref.SetTargetSkin(own)
			s.persist(ctx, pref, own)
			s.countEnsure(ctx, "restored")

			return pref
		}
	}

	defaultSkin := s.randomDefault()
	if defaultSkin == nil {
		s.countEnsure(ctx, "none")
		return pref
	}

	pref.SetTargetSkin(defaultSkin)
	s.persist(ctx, pref, defaultSkin)
	s.countEnsure(ctx, "default")

	return pref
}

// LoadDefaultSkins fills the pool of skins given to players without any skin.
// Each owner's skin is downloaded and saved once
func (s *Service) LoadDefaultSkins(ctx context.Context, owners []uuid.UUID) int {
	pool := make([]*db.Record, 0, len(owners))
	for _, owner := range owners {
		record, err := s.SkinByOwner(ctx, owner)
		if err != nil {
			slog.ErrorContext(ctx, "Unable to load a default skin", slog.String("owner", owner.String()), slog.Any("error", err))
			continue
		}

		if record == nil {
			slog.WarnContext(ctx, "The default skin owner has no skin", slog.String("owner", owner.String()))
			continue
		}

		pool = append(pool, record)
	}

	s.defaultsMu.Lock()
	s.defaults = pool
	s.defaultsMu.Unlock()

	return len(pool)
}

// SkinByOwner returns the stored skin of the owner, downloading it when it's missing or outdated
func (s *Service) SkinByOwner(ctx context.Context, owner uuid.UUID) (*db.Record, error) {
	stored, err := s.Store.GetRecordByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	if stored != nil && !s.isStale(stored) {
		return stored, nil
	}

	fetched := s.Fetcher.Fetch(ctx, owner)
	if fetched == nil {
		return stored, nil
	}

	if stored != nil && fetched.Equal(stored) {
		return stored, nil
	}

	if !s.Store.SaveRecord(ctx, fetched) {
		s.metrics.PersistFailed.Add(ctx, 1)
	}

	return fetched, nil
}

// SetSkin makes the record the receiver's skin on behalf of the invoker
func (s *Service) SetSkin(ctx context.Context, invoker uuid.UUID, receiver uuid.UUID, record *db.Record, keepSkin bool) (*db.Preference, error) {
	if ok, left := s.cooldown.TryStart(invoker); !ok {
		return nil, &CooldownError{Left: left}
	}

	pref, err := s.Store.GetPreference(ctx, receiver)
	if err != nil {
		s.cooldown.Reset(invoker)
		return nil, err
	}

	pref.SetTargetSkin(record)
	pref.SetKeepSkin(keepSkin)
	s.persist(ctx, pref, record)
	s.Emitter.Emit(SkinChangedTopic, receiver, record)

	return pref, nil
}

// ResetSkin drops the receiver's choice, so the next EnsureSkin decides again
func (s *Service) ResetSkin(ctx context.Context, receiver uuid.UUID) (*db.Preference, error) {
	pref, err := s.Store.GetPreference(ctx, receiver)
	if err != nil {
		return nil, err
	}

	pref.SetTargetSkin(nil)
	pref.SetKeepSkin(false)
	s.persist(ctx, pref, nil)
	s.Emitter.Emit(SkinChangedTopic, receiver, (*db.Record)(nil))

	return pref, nil
}

// Invalidate downloads the current skin of the receiver's target owner again and applies it
func (s *Service) Invalidate(ctx context.Context, receiver uuid.UUID) (*db.Record, error) {
	pref, err := s.Store.GetPreference(ctx, receiver)
	if err != nil {
		return nil, err
	}

	target := pref.TargetSkin()
	if target == nil {
		return nil, ErrNoSkin
	}

	fresh := s.Fetcher.Fetch(ctx, target.ProfileId())
	if fresh == nil {
		return nil, ErrNoSkin
	}

	if fresh.Equal(target) {
		fresh = target
	}

	pref.SetTargetSkin(fresh)
	s.persist(ctx, pref, fresh)
	s.Emitter.Emit(SkinChangedTopic, receiver, fresh)

	return fresh, nil
}

// ApplySkin hands the skin received from another process over to the platform
func (s *Service) ApplySkin(ctx context.Context, playerName string, skin *db.Record) error {
	s.Emitter.Emit(SkinAppliedTopic, playerName, skin)
	return nil
}

// Wait blocks until all the issued storage writes are done
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown waits for the issued storage writes until the ctx is done
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cooldown.Stop()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("unable to finish skins saving: %w", ctx.Err())
	}
}

func (s *Service) ownSkin(ctx context.Context, playerId uuid.UUID) *db.Record {
	stored, err := s.Store.GetRecordByOwner(ctx, playerId)
	if err != nil {
		slog.ErrorContext(ctx, "Unable to load the player's own skin", slog.String("player", playerId.String()), slog.Any("error", err))
	}

	if stored != nil && !s.isStale(stored) {
		return stored
	}

	fetched := s.Fetcher.Fetch(ctx, playerId)
	if fetched == nil {
		return stored
	}

	return fetched
}

func (s *Service) randomDefault() *db.Record {
	s.defaultsMu.RLock()
	defer s.defaultsMu.RUnlock()

	if len(s.defaults) == 0 {
		return nil
	}

	return s.defaults[rand.Intn(len(s.defaults))]
}

func (s *Service) isStale(record *db.Record) bool {
	if s.opts.AutoUpdate <= 0 {
		return false
	}

	return s.now().Sub(time.UnixMilli(record.Timestamp())) > s.opts.AutoUpdate
}

// persist saves the record before the preference, since the preference references the record's id
func (s *Service) persist(ctx context.Context, pref *db.Preference, record *db.Record) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if record != nil && !s.Store.SaveRecord(ctx, record) {
			s.metrics.PersistFailed.Add(ctx, 1)
			return
		}

		err := s.Store.SavePreference(ctx, pref)
		if err != nil {
			s.metrics.PersistFailed.Add(ctx, 1)
		}
	}()
}

func (s *Service) countEnsure(ctx context.Context, source string) {
	s.metrics.Ensured.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func newServiceMetrics(meter metric.Meter) (*serviceMetrics, error) {
	m := &serviceMetrics{}
	var errors, err error

	m.Ensured, err = meter.Int64Counter(
		"skins.ensured",
		metric.WithDescription("Number of skins resolved for joining players by the source of the skin"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	m.PersistFailed, err = meter.Int64Counter(
		"skins.persist.failed",
		metric.WithDescription("Number of skins or preferences that couldn't be saved"),
		metric.WithUnit("1"),
	)
	errors = multierr.Append(errors, err)

	return m, errors
}

type serviceMetrics struct {
	Ensured       metric.Int64Counter
	PersistFailed metric.Int64Counter
}
