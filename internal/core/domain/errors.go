package domain

import "errors"

var (
	ErrNotInitialized     = errors.New("signaling connection not initialized")
	ErrTransportClosed    = errors.New("signaling connection closed")
	ErrSessionClosed      = errors.New("call session closed")
	ErrInvalidTransition  = errors.New("invalid call state transition")
	ErrInvalidRole        = errors.New("invalid participant role")
	ErrInvalidRoom        = errors.New("room id is required")
	ErrUnsupportedTrack   = errors.New("track cannot be attached to this peer connection")
	ErrTrackStopped       = errors.New("track stopped")
	ErrEmptyMessage       = errors.New("message text is empty")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrOutcomeSubmitted   = errors.New("call outcome already submitted")
	ErrValidationFailed   = errors.New("validation failed")
	ErrAlreadySubmitted   = errors.New("booking rule already submitted")
	ErrSubmitInProgress   = errors.New("submission already in progress")
	ErrBreakNotFound      = errors.New("break time not found")
	ErrFileNotFound       = errors.New("file not found")
	ErrPaymentCancelled   = errors.New("payment cancelled")
	ErrRoomMemberNotFound = errors.New("room member not found")
)
