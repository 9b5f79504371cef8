package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/pkg/circuitbreaker"
	apperrors "lexmeet/pkg/errors"
	"lexmeet/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, attempts int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL + "/api/",
		Token:   "tok-1",
		Timeout: 2 * time.Second,
		Retry: retry.Config{
			MaxAttempts:  attempts,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
		Breaker: circuitbreaker.Config{FailureThreshold: 10, OpenTimeout: time.Minute},
	}, nil)
}

func TestClient_AddFinalNote(t *testing.T) {
	var gotPath, gotAuth, gotBody, gotType string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}), 0)

	err := client.AddFinalNote(context.Background(), "appt-7", domain.FinalNote{Note: "Advised on lease terms"})
	require.NoError(t, err)
	assert.Equal(t, "POST /api/lawyer/appointments/appt-7/final-note", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"note":"Advised on lease terms"}`, gotBody)
}

func TestClient_FeedbackAndStartMeetingPaths(t *testing.T) {
	var paths []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
	}), 0)

	ctx := context.Background()
	require.NoError(t, client.StartMeeting(ctx, "appt-7"))
	require.NoError(t, client.AddFeedback(ctx, "appt-7", domain.Feedback{Feedback: "great", Rating: 5}))
	assert.Equal(t, []string{
		"PATCH /api/lawyer/appointments/appt-7/start",
		"POST /api/user/appointments/appt-7/feedback",
	}, paths)
}

func TestClient_ClientErrorSurfacesServerMessageWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"message":"Appointment already closed"}`))
	}), 3)

	err := client.AddFinalNote(context.Background(), "appt-7", domain.FinalNote{Note: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "Appointment already closed", apperrors.UserMessage(err, "Failed to submit note"))

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}), 2)

	require.NoError(t, client.StartMeeting(context.Background(), "appt-7"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_WritesAreNotReplayed(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), 3)
	ctx := context.Background()

	writes := map[string]func() error{
		"add booking rule": func() error { return client.AddBookingRule(ctx, domain.BookingRuleRequest{Name: "Weekdays"}) },
		"final note":       func() error { return client.AddFinalNote(ctx, "appt-7", domain.FinalNote{Note: "x"}) },
		"feedback":         func() error { return client.AddFeedback(ctx, "appt-7", domain.Feedback{Rating: 5}) },
		"toggle rule": func() error {
			_, err := client.ToggleRuleStatus(ctx, "r1")
			return err
		},
		"create order": func() error {
			_, err := client.CreatePaymentOrder(ctx, "appt-7", 50000)
			return err
		},
		"verify payment": func() error {
			_, err := client.VerifyPayment(ctx, domain.PaymentResult{OrderID: "order_1"})
			return err
		},
	}
	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			calls.Store(0)
			require.Error(t, write())
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestClient_UnreachableBackendUsesFallbackMessage(t *testing.T) {
	client := NewClient(Config{
		BaseURL: "http://127.0.0.1:1",
		Timeout: time.Second,
		Breaker: circuitbreaker.Config{FailureThreshold: 5, OpenTimeout: time.Minute},
	}, nil)

	err := client.AddFeedback(context.Background(), "appt-7", domain.Feedback{Rating: 4})
	require.Error(t, err)
	assert.Equal(t, "Failed to submit feedback", apperrors.UserMessage(err, "Failed to submit feedback"))
}

func TestClient_BreakerOpensAfterServerFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{
		BaseURL: srv.URL,
		Timeout: time.Second,
		Breaker: circuitbreaker.Config{FailureThreshold: 2, OpenTimeout: time.Minute},
	}, nil)

	ctx := context.Background()
	require.Error(t, client.StartMeeting(ctx, "a"))
	require.Error(t, client.StartMeeting(ctx, "a"))
	err := client.StartMeeting(ctx, "a")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, circuitbreaker.StateOpen, client.breaker.State())
}

func TestClient_BookingRules(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/lawyer/booking-rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		assert.Equal(t, "inactive", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"_id":"r1","name":"Weekdays","days":["mon"],"status":"inactive","breakTimes":[{"startTime":"12:00","endTime":"13:00"}]}]}`))
	})
	mux.HandleFunc("/api/lawyer/booking-rules/r1/toggle-status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_, _ = w.Write([]byte(`{"success":true,"data":{"_id":"r1","name":"Weekdays","status":"active"}}`))
	})
	client := newTestClient(t, mux, 0)
	ctx := context.Background()

	require.NoError(t, client.AddBookingRule(ctx, domain.BookingRuleRequest{Name: "Weekdays"}))

	rules, err := client.ListBookingRules(ctx, domain.RuleInactive)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, []domain.BreakTimeRequest{{StartTime: "12:00", EndTime: "13:00"}}, rules[0].BreakTimes)

	rule, err := client.ToggleRuleStatus(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RuleActive, rule.Status)
}

func TestClient_PaymentFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/user/payments/create-order", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"appointmentId":"appt-7","amount":50000}`, string(body))
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"order_1","amount":50000,"currency":"INR"}}`))
	})
	mux.HandleFunc("/api/user/payments/verify", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"razorpay_order_id":"order_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`, string(body))
		_, _ = w.Write([]byte(`{"success":true,"message":"Payment verified"}`))
	})
	client := newTestClient(t, mux, 0)
	ctx := context.Background()

	order, err := client.CreatePaymentOrder(ctx, "appt-7", 50000)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentOrder{ID: "order_1", Amount: 50000, Currency: "INR"}, order)

	verification, err := client.VerifyPayment(ctx, domain.PaymentResult{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	assert.True(t, verification.Verified)
	assert.Equal(t, "Payment verified", verification.Message)
}
