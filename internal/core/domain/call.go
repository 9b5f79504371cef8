package domain

import "fmt"

// RoomID is the shared identifier both participants of one consultation join.
// It is the appointment id.
type RoomID string

// Role decides signaling polarity: the lawyer offers, the user answers.
type Role string

const (
	RoleLawyer Role = "lawyer"
	RoleUser   Role = "user"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleLawyer, RoleUser:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Label is how a participant of this role is named in the chat panel.
func (r Role) Label() string {
	switch r {
	case RoleLawyer:
		return "Lawyer"
	case RoleUser:
		return "User"
	default:
		return string(r)
	}
}

// Dashboard is where the participant lands after the call outcome is submitted.
func (r Role) Dashboard() Route {
	if r == RoleLawyer {
		return RouteLawyerDashboard
	}
	return RouteUserDashboard
}

// CallState is the lifecycle of one call session.
//
//	Idle -> Connecting -> Active -> Ending -> Terminal
//
// Connecting may also go straight to Ending when the call is ended before media flows.
type CallState int

const (
	CallIdle CallState = iota
	CallConnecting
	CallActive
	CallEnding
	CallTerminal
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallConnecting:
		return "connecting"
	case CallActive:
		return "active"
	case CallEnding:
		return "ending"
	case CallTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s CallState) CanTransition(next CallState) bool {
	switch s {
	case CallIdle:
		return next == CallConnecting || next == CallEnding
	case CallConnecting:
		return next == CallActive || next == CallEnding
	case CallActive:
		return next == CallEnding
	case CallEnding:
		return next == CallTerminal
	default:
		return false
	}
}

// Route is an application location the navigator can move to.
type Route string

const (
	RouteLawyerDashboard Route = "/lawyer/dashboard"
	RouteUserDashboard   Route = "/user/dashboard"
	RouteBookingRules    Route = "/lawyer/booking-rules"
)

// Signaling event names shared by the participant and the relay.
const (
	EventJoinRoom       = "join-room"
	EventPeerJoined     = "peer-joined"
	EventPeerLeft       = "peer-left"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventCandidate      = "candidate"
	EventSendCallChat   = "send_video_call_message"
	EventRecvCallChat   = "recieve_video_call_message"
	EventRegister       = "register"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventError          = "error"
	// EventDisconnect is dispatched locally by the transport when the connection drops.
	EventDisconnect = "disconnect"
)
