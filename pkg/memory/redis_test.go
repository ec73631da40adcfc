package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/samogod/mentorloop/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, capacity int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := NewRedisWithClient(client, "test:corrections", capacity)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisTrimsToCapacity(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Add(ctx, correction(fmt.Sprint(i), "math")))
	}

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stored, err := mr.List("test:corrections")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	got, err := r.Recent(ctx, "math", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "4", "3"}, ids(got))
}

func TestRedisRecentPrefersTopic(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRedis(t, 10)

	for _, c := range []struct{ id, topic string }{
		{"1", "math"}, {"2", "history"}, {"3", "math"}, {"4", "physics"}, {"5", "history"},
	} {
		require.NoError(t, r.Add(ctx, correction(c.id, c.topic)))
	}

	tests := []struct {
		name  string
		topic string
		n     int
		want  []string
	}{
		{"topic first then newest", "math", 3, []string{"3", "1", "5"}},
		{"no topic is newest first", "", 2, []string{"5", "4"}},
		{"unknown topic", "art", 2, []string{"5", "4"}},
		{"zero", "math", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Recent(ctx, tt.topic, tt.n)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestRedisSkipsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t, 10)

	require.NoError(t, r.Add(ctx, correction("1", "math")))
	mr.Lpush("test:corrections", "{not json")

	got, err := r.Recent(ctx, "math", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(got))
}

func TestNewRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := New(ctx, &config.Memory{Backend: "redis", Addr: mr.Addr(), Capacity: 5})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Add(ctx, correction("1", "math")))
	assert.True(t, mr.Exists("mentorloop:corrections"))

	addr := mr.Addr()
	mr.Close()
	_, err = NewRedis(ctx, &config.Memory{Addr: addr})
	assert.ErrorContains(t, err, "failed to connect to redis")
}
