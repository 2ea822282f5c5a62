package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis key patterns:
// {prefix}:room:{code}      HASH<socketId, participant JSON>
// {prefix}:socket:{sid}     STRING<code> with TTL - reverse pointer for disconnect cleanup

// removeScript drops the member and the reverse pointer and reports the
// remaining size in one round trip. Redis deletes the hash when it empties.
var removeScript = redis.NewScript(`
redis.call("HDEL", KEYS[1], ARGV[1])
if redis.call("GET", KEYS[2]) == ARGV[2] then
	redis.call("DEL", KEYS[2])
end
local n = redis.call("HLEN", KEYS[1])
if n == 0 then
	redis.call("DEL", KEYS[1])
end
return n
`)

// updateScript rewrites one member's JSON only when it still exists.
var updateScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
return 1
`)

type Redis struct {
	client    *redis.Client
	prefix    string
	socketTTL time.Duration
}

func NewRedis(client *redis.Client, prefix string, socketTTL time.Duration) *Redis {
	if prefix == "" {
		prefix = "meet"
	}
	if socketTTL <= 0 {
		socketTTL = 24 * time.Hour
	}
	return &Redis{client: client, prefix: prefix, socketTTL: socketTTL}
}

func (r *Redis) Backend() string { return BackendRedis }

func (r *Redis) roomKey(room domain.RoomCode) string {
	return fmt.Sprintf("%s:room:%s", r.prefix, room)
}

func (r *Redis) socketKey(sid domain.SessionID) string {
	return fmt.Sprintf("%s:socket:%s", r.prefix, sid)
}

func (r *Redis) Add(ctx context.Context, room domain.RoomCode, p *domain.Participant) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.roomKey(room), string(p.SocketID), raw)
	pipe.Set(ctx, r.socketKey(p.SocketID), string(room), r.socketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("directory add: %w", err)
	}
	log.Debug().Str("module", "directory.redis").Str("room", string(room)).Str("sid", string(p.SocketID)).Msg("participant added")
	return nil
}

func (r *Redis) Remove(ctx context.Context, room domain.RoomCode, sid domain.SessionID) (bool, error) {
	n, err := removeScript.Run(ctx, r.client,
		[]string{r.roomKey(room), r.socketKey(sid)},
		string(sid), string(room),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("directory remove: %w", err)
	}
	if n == 0 {
		log.Debug().Str("module", "directory.redis").Str("room", string(room)).Msg("room drained")
	}
	return n == 0, nil
}

func (r *Redis) List(ctx context.Context, room domain.RoomCode) ([]domain.Participant, error) {
	vals, err := r.client.HVals(ctx, r.roomKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("directory list: %w", err)
	}
	out := make([]domain.Participant, 0, len(vals))
	for _, v := range vals {
		var p domain.Participant
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			log.Warn().Err(err).Str("module", "directory.redis").Str("room", string(room)).Msg("skipping bad participant entry")
			continue
		}
		out = append(out, p)
	}
	sortByJoin(out)
	return out, nil
}

func (r *Redis) UpdateMediaStatus(ctx context.Context, room domain.RoomCode, sid domain.SessionID, st domain.MediaStatus) error {
	raw, err := r.client.HGet(ctx, r.roomKey(room), string(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ErrNotInRoom
	}
	if err != nil {
		return fmt.Errorf("directory get participant: %w", err)
	}
	var p domain.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("decode participant: %w", err)
	}
	p.MediaStatus = st
	next, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	ok, err := updateScript.Run(ctx, r.client, []string{r.roomKey(room)}, string(sid), next).Int()
	if err != nil {
		return fmt.Errorf("directory update media: %w", err)
	}
	if ok == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}

func (r *Redis) RoomOf(ctx context.Context, sid domain.SessionID) (domain.RoomCode, bool, error) {
	room, err := r.client.Get(ctx, r.socketKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("directory room of: %w", err)
	}
	return domain.RoomCode(room), true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
