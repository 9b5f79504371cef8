package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRoomRepository keeps room membership in one hash per room so several
// relay instances share presence.
type RedisRoomRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRoomRepository(client *redis.Client, ttl time.Duration) ports.RoomRepository {
	return &RedisRoomRepository{
		client: client,
		prefix: "lexmeet:",
		ttl:    ttl,
	}
}

func (r *RedisRoomRepository) roomKey(roomID domain.RoomID) string {
	return fmt.Sprintf("%sroom:%s:members", r.prefix, roomID)
}

func (r *RedisRoomRepository) roomsKey() string {
	return r.prefix + "rooms"
}

func (r *RedisRoomRepository) Join(ctx context.Context, roomID domain.RoomID, member ports.RoomMember) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("failed to marshal room member: %w", err)
	}

	key := r.roomKey(roomID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, member.ConnID, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.SAdd(ctx, r.roomsKey(), string(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to join room in Redis: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) Leave(ctx context.Context, roomID domain.RoomID, connID string) error {
	key := r.roomKey(roomID)
	removed, err := r.client.HDel(ctx, key, connID).Result()
	if err != nil {
		return fmt.Errorf("failed to leave room in Redis: %w", err)
	}
	if removed == 0 {
		return domain.ErrRoomMemberNotFound
	}

	left, err := r.client.HLen(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to count room members: %w", err)
	}
	if left == 0 {
		if err := r.client.SRem(ctx, r.roomsKey(), string(roomID)).Err(); err != nil {
			return fmt.Errorf("failed to drop empty room: %w", err)
		}
	}
	return nil
}

func (r *RedisRoomRepository) Members(ctx context.Context, roomID domain.RoomID) ([]ports.RoomMember, error) {
	raw, err := r.client.HGetAll(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room members from Redis: %w", err)
	}

	members := make([]ports.RoomMember, 0, len(raw))
	for connID, data := range raw {
		var m ports.RoomMember
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal room member %s: %w", connID, err)
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ConnID < members[j].ConnID })
	return members, nil
}

func (r *RedisRoomRepository) Rooms(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.roomsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms: %w", err)
	}
	return int(n), nil
}
