//go:build redis

package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mediocregopher/radix/v4"
	assert "github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var redisAddr string

func init() {
	host := "localhost"
	port := 6379
	if os.Getenv("STORAGE_REDIS_HOST") != "" {
		host = os.Getenv("STORAGE_REDIS_HOST")
	}

	if os.Getenv("STORAGE_REDIS_PORT") != "" {
		port, _ = strconv.Atoi(os.Getenv("STORAGE_REDIS_PORT"))
	}

	redisAddr = fmt.Sprintf("%s:%d", host, port)
}

func TestNew(t *testing.T) {
	t.Run("should connect", func(t *testing.T) {
		conn, err := New(context.Background(), redisAddr, 12, time.Hour)
		assert.Nil(t, err)
		assert.NotNil(t, conn)
	})

	t.Run("should return error", func(t *testing.T) {
		conn, err := New(context.Background(), "localhost:12345", 12, time.Hour) // Use localhost to avoid DNS resolution
		assert.Error(t, err)
		assert.Nil(t, conn)
	})
}

type redisTestSuite struct {
	suite.Suite

	Redis *Redis

	cmd func(cmd string, args ...interface{}) string
}

func (s *redisTestSuite) SetupSuite() {
	ctx := context.Background()
	conn, err := New(ctx, redisAddr, 10, time.Hour)
	if err != nil {
		panic(fmt.Errorf("cannot establish connection to redis: %w", err))
	}

	s.Redis = conn
	s.cmd = func(cmd string, args ...interface{}) string {
		var result string
		err := s.Redis.client.Do(ctx, radix.FlatCmd(&result, cmd, args...))
		if err != nil {
			panic(err)
		}

		return result
	}
}

func (s *redisTestSuite) TearDownSuite() {
	_ = s.Redis.Close()
}

func (s *redisTestSuite) SetupSubTest() {
	// Cleanup database before each test
	s.cmd("FLUSHALL")
}

func TestRedis(t *testing.T) {
	suite.Run(t, new(redisTestSuite))
}

func (s *redisTestSuite) TestGetUuidForName() {
	s.Run("exists record", func() {
		s.cmd("SET", "changeskin:uuid:mock", "MoCk:d3ca513eb3e14946b58047f2bd3530fd")

		id, found, err := s.Redis.GetUuidForName(context.Background(), "Mock")
		s.Require().NoError(err)
		s.Require().True(found)
		s.Require().Equal(uuid.MustParse("d3ca513e-b3e1-4946-b580-47f2bd3530fd"), id)
	})

	s.Run("exists record with empty uuid value", func() {
		s.cmd("SET", "changeskin:uuid:mock", "MoCk:")

		id, found, err := s.Redis.GetUuidForName(context.Background(), "Mock")
		s.Require().NoError(err)
		s.Require().True(found)
		s.Require().Equal(uuid.Nil, id)
	})

	s.Run("exists record with invalid value", func() {
		s.cmd("SET", "changeskin:uuid:mock", "MoCk:not-uuid")

		_, found, err := s.Redis.GetUuidForName(context.Background(), "Mock")
		s.Require().Error(err)
		s.Require().False(found)
	})

	s.Run("not exists record", func() {
		id, found, err := s.Redis.GetUuidForName(context.Background(), "Mock")
		s.Require().NoError(err)
		s.Require().False(found)
		s.Require().Equal(uuid.Nil, id)
	})
}

func (s *redisTestSuite) TestStoreUuid() {
	s.Run("store uuid", func() {
		err := s.Redis.StoreUuid(context.Background(), "MoCk", uuid.MustParse("d3ca513e-b3e1-4946-b580-47f2bd3530fd"))
		s.Require().NoError(err)

		resp := s.cmd("GET", "changeskin:uuid:mock")
		s.Require().Equal("MoCk:d3ca513eb3e14946b58047f2bd3530fd", resp)

		ttl := s.cmd("TTL", "changeskin:uuid:mock")
		s.Require().Equal("3600", ttl)
	})

	s.Run("store empty uuid", func() {
		err := s.Redis.StoreUuid(context.Background(), "MoCk", uuid.Nil)
		s.Require().NoError(err)

		resp := s.cmd("GET", "changeskin:uuid:mock")
		s.Require().Equal("MoCk:", resp)
	})
}

func (s *redisTestSuite) TestPing() {
	err := s.Redis.Ping(context.Background())
	s.Require().Nil(err)
}
