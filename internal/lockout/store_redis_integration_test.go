//go:build integration

package lockout_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotbox/internal/lockout"
	"ballotbox/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *lockout.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = lockout.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRecordFailureCounts() {
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		count, err := s.store.RecordFailure(ctx, "e1|1.2.3.4", time.Minute)
		s.Require().NoError(err)
		s.Equal(want, count)
	}

	count, err := s.store.Failures(ctx, "e1|1.2.3.4")
	s.Require().NoError(err)
	s.Equal(3, count)
}

func (s *RedisStoreSuite) TestKeysAreIndependent() {
	ctx := context.Background()
	_, err := s.store.RecordFailure(ctx, "e1|1.2.3.4", time.Minute)
	s.Require().NoError(err)

	count, err := s.store.Failures(ctx, "e1|5.6.7.8")
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *RedisStoreSuite) TestClear() {
	ctx := context.Background()
	_, err := s.store.RecordFailure(ctx, "k", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Clear(ctx, "k"))

	count, err := s.store.Failures(ctx, "k")
	s.Require().NoError(err)
	s.Equal(0, count)
}

// TestWindowExpiry uses a short TTL so the counter actually expires.
func (s *RedisStoreSuite) TestWindowExpiry() {
	ctx := context.Background()
	_, err := s.store.RecordFailure(ctx, "k", time.Second)
	s.Require().NoError(err)

	time.Sleep(1500 * time.Millisecond)

	count, err := s.store.Failures(ctx, "k")
	s.Require().NoError(err)
	s.Equal(0, count)
}
