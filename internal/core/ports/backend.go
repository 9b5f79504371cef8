package ports

import (
	"context"

	"lexmeet/internal/core/domain"
)

// ConsultationBackend is the remote REST backend.
type ConsultationBackend interface {
	StartMeeting(ctx context.Context, roomID domain.RoomID) error
	AddFinalNote(ctx context.Context, roomID domain.RoomID, note domain.FinalNote) error
	AddFeedback(ctx context.Context, roomID domain.RoomID, feedback domain.Feedback) error
}

// BookingRuleBackend stores lawyer booking rules.
type BookingRuleBackend interface {
	AddBookingRule(ctx context.Context, rule domain.BookingRuleRequest) error
	ListBookingRules(ctx context.Context, status domain.RuleStatus) ([]domain.BookingRule, error)
	ToggleRuleStatus(ctx context.Context, ruleID string) (domain.BookingRule, error)
}

// PaymentBackend creates and verifies gateway orders.
type PaymentBackend interface {
	CreatePaymentOrder(ctx context.Context, appointmentID string, amount int64) (domain.PaymentOrder, error)
	VerifyPayment(ctx context.Context, result domain.PaymentResult) (domain.PaymentVerification, error)
}

// CheckoutGateway opens the third-party checkout and blocks until the payer finishes.
type CheckoutGateway interface {
	Open(ctx context.Context, options domain.CheckoutOptions) (domain.PaymentResult, error)
}
