package memory

import (
	"context"
	"sort"
	"sync"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
)

type MemoryRoomRepository struct {
	rooms map[domain.RoomID]map[string]ports.RoomMember
	mu    sync.RWMutex
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[domain.RoomID]map[string]ports.RoomMember),
	}
}

func (r *MemoryRoomRepository) Join(ctx context.Context, roomID domain.RoomID, member ports.RoomMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]ports.RoomMember)
		r.rooms[roomID] = members
	}
	members[member.ConnID] = member
	return nil
}

func (r *MemoryRoomRepository) Leave(ctx context.Context, roomID domain.RoomID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomMemberNotFound
	}
	if _, ok := members[connID]; !ok {
		return domain.ErrRoomMemberNotFound
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	return nil
}

// Members returns the room's members ordered by connection id.
func (r *MemoryRoomRepository) Members(ctx context.Context, roomID domain.RoomID) ([]ports.RoomMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]ports.RoomMember, 0, len(r.rooms[roomID]))
	for _, m := range r.rooms[roomID] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ConnID < members[j].ConnID })
	return members, nil
}

func (r *MemoryRoomRepository) Rooms(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}
