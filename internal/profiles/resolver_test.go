package profiles

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"ely.by/changeskin/internal/mojang"
	"ely.by/changeskin/internal/ratelimit"
)

var mockId = uuid.MustParse("4566e69f-c907-48ee-8d71-d7ba5aa00d20")

type UuidsProviderMock struct {
	mock.Mock
}

func (m *UuidsProviderMock) UsernameToUuid(ctx context.Context, username string) (*mojang.ProfileInfo, error) {
	args := m.Called(ctx, username)
	var result *mojang.ProfileInfo
	if casted, ok := args.Get(0).(*mojang.ProfileInfo); ok {
		result = casted
	}

	return result, args.Error(1)
}

type UuidsStorageMock struct {
	mock.Mock
}

func (m *UuidsStorageMock) GetUuidForName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(uuid.UUID), args.Bool(1), args.Error(2)
}

func (m *UuidsStorageMock) StoreUuid(ctx context.Context, name string, id uuid.UUID) error {
	return m.Called(ctx, name, id).Error(0)
}

type ResolverSuite struct {
	suite.Suite

	Primary   *UuidsProviderMock
	Secondary *UuidsProviderMock
	Resolver  *Resolver
}

func (s *ResolverSuite) SetupTest() {
	s.Primary = &UuidsProviderMock{}
	s.Secondary = &UuidsProviderMock{}
	s.Resolver = s.createResolver(ratelimit.New(10*time.Minute, 600), time.Hour)
}

func (s *ResolverSuite) TearDownTest() {
	s.Resolver.Stop()
	s.Primary.AssertExpectations(s.T())
	s.Secondary.AssertExpectations(s.T())
}

func (s *ResolverSuite) createResolver(limiter *ratelimit.Limiter, ttl time.Duration) *Resolver {
	resolver, err := NewResolver(s.Primary, s.Secondary, nil, limiter, Options{
		Cooldown:  10 * time.Minute,
		CacheTTL:  ttl,
		CacheSize: 5120,
	})
	s.Require().NoError(err)

	return resolver
}

func (s *ResolverSuite) TestInvalidNames() {
	for _, name := range []string{"", "a", "seventeen_symbols", "with space", "with-dash", "кириллица", "name!"} {
		id, err := s.Resolver.Resolve(context.Background(), name)
		s.Require().ErrorIs(err, ErrNotFound, name)
		s.Require().Equal(uuid.Nil, id)
	}
}

func (s *ResolverSuite) TestShortestValidName() {
	s.Primary.On("UsernameToUuid", mock.Anything, "xy").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20", Name: "xy"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "xy")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverSuite) TestCachesFoundResult() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20", Name: "Thinkofdeath"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)

	id, err = s.Resolver.Resolve(context.Background(), "thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverSuite) TestCacheExpiration() {
	s.Resolver.Stop()
	s.Resolver = s.createResolver(ratelimit.New(10*time.Minute, 600), 50*time.Millisecond)

	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Twice().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	_, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	_, err = s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)

	time.Sleep(100 * time.Millisecond)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverSuite) TestCachesNotFoundResult() {
	s.Primary.On("UsernameToUuid", mock.Anything, "nonexistent").Once().Return(nil, nil)

	_, err := s.Resolver.Resolve(context.Background(), "nonexistent")
	s.Require().ErrorIs(err, ErrNotFound)

	_, err = s.Resolver.Resolve(context.Background(), "NonExistent")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestSoftFailureIsNotCached() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, &mojang.ServerError{Status: 500})
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(uuid.Nil, id)

	id, err = s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverSuite) TestInvalidUuidIsSoftFailure() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "not-uuid"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(uuid.Nil, id)
}

func (s *ResolverSuite) TestPrimaryRateLimitFallsBackToSecondaryAndStartsCooldown() {
	now := time.Now()
	s.Resolver.now = func() time.Time {
		return now
	}

	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, &mojang.TooManyRequestsError{})
	s.Secondary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)
	s.Secondary.On("UsernameToUuid", mock.Anything, "maksimkurb").Once().Return(&mojang.ProfileInfo{Id: "0d252b7218b648bfb86c2ae476954d32"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)

	// The primary provider must not be called during the cooldown
	id, err = s.Resolver.Resolve(context.Background(), "maksimkurb")
	s.Require().NoError(err)
	s.Require().Equal(uuid.MustParse("0d252b72-18b6-48bf-b86c-2ae476954d32"), id)

	// The cooldown has passed
	now = now.Add(10*time.Minute + time.Second)
	s.Primary.On("UsernameToUuid", mock.Anything, "erickskrauch").Once().Return(nil, nil)

	_, err = s.Resolver.Resolve(context.Background(), "erickskrauch")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestExhaustedBudgetUsesSecondary() {
	s.Resolver.Stop()
	s.Resolver = s.createResolver(ratelimit.New(10*time.Minute, 1), time.Hour)

	s.Primary.On("UsernameToUuid", mock.Anything, "first").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)
	s.Secondary.On("UsernameToUuid", mock.Anything, "second").Once().Return(nil, nil)

	_, err := s.Resolver.Resolve(context.Background(), "first")
	s.Require().NoError(err)

	_, err = s.Resolver.Resolve(context.Background(), "second")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ResolverSuite) TestDisabledLimiterAlwaysUsesSecondary() {
	s.Resolver.Stop()
	s.Resolver = s.createResolver(ratelimit.New(10*time.Minute, 0), time.Hour)

	s.Secondary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverSuite) TestSecondaryRateLimited() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, &mojang.TooManyRequestsError{})
	s.Secondary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, &mojang.TooManyRequestsError{})

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().ErrorIs(err, ErrRateLimited)
	s.Require().Equal(uuid.Nil, id)
}

func (s *ResolverSuite) TestSecondarySoftFailure() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, &mojang.TooManyRequestsError{})
	s.Secondary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(nil, errors.New("connection refused"))

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(uuid.Nil, id)
}

func (s *ResolverSuite) TestConcurrentCallsAreCollapsed() {
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().After(50*time.Millisecond).Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	var wg sync.WaitGroup
	results := make([]uuid.UUID, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.Resolver.Resolve(context.Background(), "Thinkofdeath")
		}(i)
	}

	wg.Wait()
	for _, id := range results {
		s.Require().Equal(mockId, id)
	}
}

func TestResolver(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

type ResolverWithStorageSuite struct {
	suite.Suite

	Primary  *UuidsProviderMock
	Storage  *UuidsStorageMock
	Resolver *Resolver
}

func (s *ResolverWithStorageSuite) SetupTest() {
	s.Primary = &UuidsProviderMock{}
	s.Storage = &UuidsStorageMock{}

	var err error
	s.Resolver, err = NewResolver(s.Primary, &UuidsProviderMock{}, s.Storage, ratelimit.New(time.Minute, 10), Options{
		Cooldown:  time.Minute,
		CacheTTL:  time.Hour,
		CacheSize: 10,
	})
	s.Require().NoError(err)
}

func (s *ResolverWithStorageSuite) TearDownTest() {
	s.Resolver.Stop()
	s.Primary.AssertExpectations(s.T())
	s.Storage.AssertExpectations(s.T())
}

func (s *ResolverWithStorageSuite) TestFoundInStorage() {
	s.Storage.On("GetUuidForName", mock.Anything, "Thinkofdeath").Once().Return(mockId, true, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)

	// Second call is served by the local cache
	id, err = s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverWithStorageSuite) TestKnownMissingInStorage() {
	s.Storage.On("GetUuidForName", mock.Anything, "nonexistent").Once().Return(uuid.Nil, true, nil)

	_, err := s.Resolver.Resolve(context.Background(), "nonexistent")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ResolverWithStorageSuite) TestStoresNetworkResults() {
	s.Storage.On("GetUuidForName", mock.Anything, "Thinkofdeath").Once().Return(uuid.Nil, false, nil)
	s.Storage.On("StoreUuid", mock.Anything, "Thinkofdeath", mockId).Once().Return(nil)
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func (s *ResolverWithStorageSuite) TestStoresNotFoundResults() {
	s.Storage.On("GetUuidForName", mock.Anything, "nonexistent").Once().Return(uuid.Nil, false, nil)
	s.Storage.On("StoreUuid", mock.Anything, "nonexistent", uuid.Nil).Once().Return(nil)
	s.Primary.On("UsernameToUuid", mock.Anything, "nonexistent").Once().Return(nil, nil)

	_, err := s.Resolver.Resolve(context.Background(), "nonexistent")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *ResolverWithStorageSuite) TestStorageErrorsAreIgnored() {
	s.Storage.On("GetUuidForName", mock.Anything, "Thinkofdeath").Once().Return(uuid.Nil, false, errors.New("connection refused"))
	s.Storage.On("StoreUuid", mock.Anything, "Thinkofdeath", mockId).Once().Return(errors.New("connection refused"))
	s.Primary.On("UsernameToUuid", mock.Anything, "Thinkofdeath").Once().Return(&mojang.ProfileInfo{Id: "4566e69fc90748ee8d71d7ba5aa00d20"}, nil)

	id, err := s.Resolver.Resolve(context.Background(), "Thinkofdeath")
	s.Require().NoError(err)
	s.Require().Equal(mockId, id)
}

func TestResolverWithStorage(t *testing.T) {
	suite.Run(t, new(ResolverWithStorageSuite))
}
