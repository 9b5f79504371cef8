package services

import (
	"context"
	"errors"
	"testing"

	"lexmeet/internal/core/domain"
	apperrors "lexmeet/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckoutVerifiesPayment(t *testing.T) {
	backend := &mockBackend{}
	gateway := &mockGateway{}
	svc := NewPaymentService(PaymentConfig{KeyID: "rzp_test_key", Merchant: "LexMeet", ThemeColor: "#1e3a8a"}, backend, gateway, nil)

	order := domain.PaymentOrder{ID: "order_9A33XWu170gUtm", Amount: 150000, Currency: "INR"}
	payer := domain.CheckoutPrefill{Name: "Asha Rao", Email: "asha@example.com"}
	result := domain.PaymentResult{OrderID: order.ID, PaymentID: "pay_29QQoUBi66xm2f", Signature: "sig"}

	backend.On("CreatePaymentOrder", mock.Anything, "appt-1", int64(150000)).Return(order, nil).Once()
	gateway.On("Open", mock.Anything, domain.CheckoutOptions{
		Key:      "rzp_test_key",
		Amount:   150000,
		Currency: "INR",
		OrderID:  order.ID,
		Name:     "LexMeet",
		Prefill:  payer,
		Theme:    domain.CheckoutTheme{Color: "#1e3a8a"},
	}).Return(result, nil).Once()
	backend.On("VerifyPayment", mock.Anything, result).Return(domain.PaymentVerification{Verified: true}, nil).Once()

	verification, err := svc.Checkout(context.Background(), "appt-1", 150000, payer)
	require.NoError(t, err)
	assert.True(t, verification.Verified)
	backend.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestCheckoutGatewayErrorReturnedAsIs(t *testing.T) {
	backend := &mockBackend{}
	gateway := &mockGateway{}
	svc := NewPaymentService(PaymentConfig{KeyID: "k"}, backend, gateway, nil)

	backend.On("CreatePaymentOrder", mock.Anything, "appt-2", int64(500)).
		Return(domain.PaymentOrder{ID: "order_x", Amount: 500, Currency: "INR"}, nil)
	gateway.On("Open", mock.Anything, mock.Anything).Return(domain.PaymentResult{}, domain.ErrPaymentCancelled)

	_, err := svc.Checkout(context.Background(), "appt-2", 500, domain.CheckoutPrefill{})
	assert.Same(t, domain.ErrPaymentCancelled, err)
	backend.AssertNotCalled(t, "VerifyPayment", mock.Anything, mock.Anything)
}

func TestCheckoutVerificationRejected(t *testing.T) {
	backend := &mockBackend{}
	gateway := &mockGateway{}
	svc := NewPaymentService(PaymentConfig{KeyID: "k"}, backend, gateway, nil)

	backend.On("CreatePaymentOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.PaymentOrder{ID: "order_y", Amount: 900, Currency: "INR"}, nil)
	gateway.On("Open", mock.Anything, mock.Anything).Return(domain.PaymentResult{OrderID: "order_y"}, nil)
	backend.On("VerifyPayment", mock.Anything, mock.Anything).
		Return(domain.PaymentVerification{Verified: false, Message: "Invalid signature"}, nil)

	_, err := svc.Checkout(context.Background(), "appt-3", 900, domain.CheckoutPrefill{})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodePayment, appErr.Code)
	assert.Equal(t, "Invalid signature", apperrors.UserMessage(err, "Payment failed"))
}

func TestCheckoutRejectsNonPositiveAmount(t *testing.T) {
	backend := &mockBackend{}
	svc := NewPaymentService(PaymentConfig{}, backend, &mockGateway{}, nil)

	_, err := svc.Checkout(context.Background(), "appt-4", 0, domain.CheckoutPrefill{})
	assert.Error(t, err)
	backend.AssertNotCalled(t, "CreatePaymentOrder", mock.Anything, mock.Anything, mock.Anything)
}
