package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisDirectory(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test", time.Hour), mr
}

func participant(sid, user string, joined time.Time) *domain.Participant {
	p := domain.NewParticipant(domain.SessionID(sid), &domain.User{ID: domain.UserID(user), Name: user}, false)
	p.JoinedAt = joined
	return p
}

func sids(ps []domain.Participant) []domain.SessionID {
	out := make([]domain.SessionID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.SocketID)
	}
	return out
}

// runDirectorySuite checks the observable behaviour both backends share.
func runDirectorySuite(t *testing.T, dir core.Directory) {
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, dir.Add(ctx, "R1", participant("a", "ua", t0)))
	require.NoError(t, dir.Add(ctx, "R1", participant("b", "ub", t0.Add(time.Second))))

	list, err := dir.List(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"a", "b"}, sids(list))

	// repeat join under the same id overwrites
	again := participant("a", "ua", t0)
	again.Name = "renamed"
	require.NoError(t, dir.Add(ctx, "R1", again))
	list, err = dir.List(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "renamed", list[0].Name)

	room, ok, err := dir.RoomOf(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.RoomCode("R1"), room)

	require.NoError(t, dir.UpdateMediaStatus(ctx, "R1", "b", domain.MediaStatus{Audio: false, Video: true}))
	list, err = dir.List(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, list[1].MediaStatus.Audio)
	assert.True(t, list[1].MediaStatus.Video)

	assert.ErrorIs(t, dir.UpdateMediaStatus(ctx, "R1", "zzz", domain.MediaStatus{}), domain.ErrNotInRoom)

	empty, err := dir.Remove(ctx, "R1", "a")
	require.NoError(t, err)
	assert.False(t, empty)
	list, err = dir.List(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"b"}, sids(list))

	_, ok, err = dir.RoomOf(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err = dir.Remove(ctx, "R1", "b")
	require.NoError(t, err)
	assert.True(t, empty)

	// draining twice is a no-op
	empty, err = dir.Remove(ctx, "R1", "b")
	require.NoError(t, err)
	assert.True(t, empty)

	list, err = dir.List(ctx, "R1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryDirectory(t *testing.T) {
	runDirectorySuite(t, NewMemory())
}

func TestRedisDirectory(t *testing.T) {
	dir, _ := newRedisDirectory(t)
	runDirectorySuite(t, dir)
}

func TestRedisDirectoryKeys(t *testing.T) {
	dir, mr := newRedisDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, "R1", participant("a", "ua", time.Now())))
	assert.True(t, mr.Exists("test:room:R1"))
	assert.True(t, mr.Exists("test:socket:a"))
	assert.Equal(t, time.Hour, mr.TTL("test:socket:a"))

	empty, err := dir.Remove(ctx, "R1", "a")
	require.NoError(t, err)
	assert.True(t, empty)
	assert.False(t, mr.Exists("test:room:R1"))
	assert.False(t, mr.Exists("test:socket:a"))
}

func TestRedisRemoveKeepsNewerReversePointer(t *testing.T) {
	dir, mr := newRedisDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Add(ctx, "R1", participant("a", "ua", time.Now())))
	require.NoError(t, dir.Add(ctx, "R2", participant("a", "ua", time.Now())))

	_, err := dir.Remove(ctx, "R1", "a")
	require.NoError(t, err)
	got, err := mr.Get("test:socket:a")
	require.NoError(t, err)
	assert.Equal(t, "R2", got)
}

func TestOpenFallsBackToMemoryOnce(t *testing.T) {
	cfg := config.DirectoryConfig{
		Backend: BackendAuto,
		Redis:   config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond},
	}
	dir, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, dir.Backend())

	cfg.Backend = BackendRedis
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	dir, err := Open(context.Background(), config.DirectoryConfig{
		Backend: BackendAuto,
		Redis:   config.RedisConfig{Addr: mr.Addr()},
	})
	require.NoError(t, err)
	defer dir.Close()
	assert.Equal(t, BackendRedis, dir.Backend())
}
