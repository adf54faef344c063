package textures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"ely.by/changeskin/internal/mojang"
)

const texturesValue = "eyJ0aW1lc3RhbXAiOjE0ODYzMzcyNTQ4NzIsInByb2ZpbGVJZCI6ImM0ZjFlNTZmNjFkMTQwYTc4YzMyOGQ5MTY2ZWVmOWU3IiwicHJvZmlsZU5hbWUiOiJXaHlZb3VSZWFkVGhpcyIsInRleHR1cmVzIjp7IlNLSU4iOnsidXJsIjoiaHR0cDovL3RleHR1cmVzLm1pbmVjcmFmdC5uZXQvdGV4dHVyZS83Mzk1NmE4ZTY0ZWU2ZDhlYzY1NmFkYmI0NDA0ZjhlYmZmMzQxMWIwY2I5MGIzMWNiNDc2ZWNiOTk2ZDNiOCJ9fX0="

var ownerId = uuid.MustParse("c4f1e56f-61d1-40a7-8c32-8d9166eef9e7")

type SignedTexturesProviderMock struct {
	mock.Mock
}

func (m *SignedTexturesProviderMock) UuidToTextures(ctx context.Context, uuid string, signed bool) (*mojang.ProfileResponse, error) {
	args := m.Called(ctx, uuid, signed)
	var result *mojang.ProfileResponse
	if casted, ok := args.Get(0).(*mojang.ProfileResponse); ok {
		result = casted
	}

	return result, args.Error(1)
}

type AggregatedTexturesProviderMock struct {
	mock.Mock
}

func (m *AggregatedTexturesProviderMock) UuidToTextures(ctx context.Context, uuid string) (*mojang.ProfileResponse, error) {
	args := m.Called(ctx, uuid)
	var result *mojang.ProfileResponse
	if casted, ok := args.Get(0).(*mojang.ProfileResponse); ok {
		result = casted
	}

	return result, args.Error(1)
}

type FetcherSuite struct {
	suite.Suite

	Direct     *SignedTexturesProviderMock
	Aggregator *AggregatedTexturesProviderMock
	Fetcher    *Fetcher
}

func (s *FetcherSuite) SetupTest() {
	s.Direct = &SignedTexturesProviderMock{}
	s.Aggregator = &AggregatedTexturesProviderMock{}

	var err error
	s.Fetcher, err = NewFetcher(ModeDirect, s.Direct, s.Aggregator, time.Hour, 100)
	s.Require().NoError(err)
}

func (s *FetcherSuite) TearDownTest() {
	s.Fetcher.Stop()
	s.Direct.AssertExpectations(s.T())
	s.Aggregator.AssertExpectations(s.T())
}

func (s *FetcherSuite) TestDirectMode() {
	s.Direct.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7", true).Once().Return(&mojang.ProfileResponse{
		Id:   "c4f1e56f61d140a78c328d9166eef9e7",
		Name: "WhyYouReadThis",
		Props: []*mojang.Property{
			{Name: "textures", Value: texturesValue, Signature: "c2lnbmF0dXJl"},
		},
	}, nil)

	record := s.Fetcher.Fetch(context.Background(), ownerId)
	s.Require().NotNil(record)
	s.Require().Equal(texturesValue, record.EncodedValue())
	s.Require().Equal("c2lnbmF0dXJl", record.Signature())
	s.Require().Equal(ownerId, record.ProfileId())
	s.Require().False(record.IsSaved())
}

func (s *FetcherSuite) TestAggregatorMode() {
	s.Fetcher.Mode = ModeAggregator
	s.Aggregator.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7").Once().Return(&mojang.ProfileResponse{
		Id: "c4f1e56f61d140a78c328d9166eef9e7",
		Props: []*mojang.Property{
			{Name: "textures", Value: texturesValue, Signature: "c2lnbmF0dXJl"},
		},
	}, nil)

	record := s.Fetcher.Fetch(context.Background(), ownerId)
	s.Require().NotNil(record)
	s.Require().Equal("WhyYouReadThis", record.ProfileName())
}

func (s *FetcherSuite) TestEmptyResponseIsCached() {
	s.Direct.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7", true).Once().Return(nil, nil)

	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
}

func (s *FetcherSuite) TestResponseWithoutTexturesIsCached() {
	s.Direct.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7", true).Once().Return(&mojang.ProfileResponse{
		Id: "c4f1e56f61d140a78c328d9166eef9e7",
	}, nil)

	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
}

func (s *FetcherSuite) TestErrorsAreNotCached() {
	s.Direct.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7", true).Twice().Return(nil, errors.New("connection refused"))

	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
}

func (s *FetcherSuite) TestInvalidTexturesValue() {
	s.Direct.On("UuidToTextures", mock.Anything, "c4f1e56f61d140a78c328d9166eef9e7", true).Once().Return(&mojang.ProfileResponse{
		Props: []*mojang.Property{
			{Name: "textures", Value: "invalid"},
		},
	}, nil)

	s.Require().Nil(s.Fetcher.Fetch(context.Background(), ownerId))
}

func TestFetcher(t *testing.T) {
	suite.Run(t, new(FetcherSuite))
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("aggregator")
	require.NoError(t, err)
	require.Equal(t, ModeAggregator, mode)

	_, err = ParseMode("unknown")
	require.Error(t, err)
}
