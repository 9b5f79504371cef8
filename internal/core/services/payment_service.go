package services

import (
	"context"
	"fmt"
	"net/http"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	apperrors "lexmeet/pkg/errors"

	"go.uber.org/zap"
)

type PaymentConfig struct {
	// KeyID is the public gateway key handed to the checkout.
	KeyID      string
	Merchant   string
	ThemeColor string
}

// PaymentService runs the order -> checkout -> verify sequence for an appointment.
type PaymentService struct {
	cfg     PaymentConfig
	backend ports.PaymentBackend
	gateway ports.CheckoutGateway
	logger  *zap.SugaredLogger
}

func NewPaymentService(cfg PaymentConfig, backend ports.PaymentBackend, gateway ports.CheckoutGateway, logger *zap.SugaredLogger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PaymentService{cfg: cfg, backend: backend, gateway: gateway, logger: logger}
}

// Checkout pays amount for appointmentID. Gateway errors are returned as the gateway reported them.
func (s *PaymentService) Checkout(ctx context.Context, appointmentID string, amount int64, payer domain.CheckoutPrefill) (domain.PaymentVerification, error) {
	if amount <= 0 {
		return domain.PaymentVerification{}, apperrors.NewInvalidInputError("amount must be positive")
	}

	order, err := s.backend.CreatePaymentOrder(ctx, appointmentID, amount)
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("create order: %w", err)
	}
	s.logger.Infow("Payment order created", "order_id", order.ID, "appointment_id", appointmentID, "amount", order.Amount)

	result, err := s.gateway.Open(ctx, domain.CheckoutOptions{
		Key:      s.cfg.KeyID,
		Amount:   order.Amount,
		Currency: order.Currency,
		OrderID:  order.ID,
		Name:     s.cfg.Merchant,
		Prefill:  payer,
		Theme:    domain.CheckoutTheme{Color: s.cfg.ThemeColor},
	})
	if err != nil {
		s.logger.Warnw("Checkout failed", "order_id", order.ID, "error", err)
		return domain.PaymentVerification{}, err
	}

	verification, err := s.backend.VerifyPayment(ctx, result)
	if err != nil {
		return domain.PaymentVerification{}, fmt.Errorf("verify payment: %w", err)
	}
	if !verification.Verified {
		msg := verification.Message
		if msg == "" {
			msg = "payment verification failed"
		}
		return verification, apperrors.NewAppError(apperrors.ErrCodePayment, msg, http.StatusPaymentRequired)
	}

	s.logger.Infow("Payment verified", "order_id", order.ID, "payment_id", result.PaymentID)
	return verification, nil
}
