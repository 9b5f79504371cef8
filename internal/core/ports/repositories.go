package ports

import (
	"context"

	"lexmeet/internal/core/domain"
)

// RoomMember is one connection joined to a room on the relay.
type RoomMember struct {
	ConnID string      `json:"conn_id"`
	Role   domain.Role `json:"role"`
	UserID string      `json:"user_id,omitempty"`
}

// RoomRepository tracks which relay connections are joined to which room.
type RoomRepository interface {
	Join(ctx context.Context, roomID domain.RoomID, member RoomMember) error
	Leave(ctx context.Context, roomID domain.RoomID, connID string) error
	Members(ctx context.Context, roomID domain.RoomID) ([]RoomMember, error)
	Rooms(ctx context.Context) (int, error)
}
