package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	"lexmeet/pkg/circuitbreaker"
	"lexmeet/pkg/config"
	apperrors "lexmeet/pkg/errors"
	"lexmeet/pkg/logger"
	"lexmeet/pkg/retry"
	"lexmeet/pkg/tracing"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retry   retry.Config
	Breaker circuitbreaker.Config
}

func ConfigFrom(cfg *config.Config) Config {
	r := retry.DefaultConfig()
	r.MaxAttempts = cfg.Backend.RetryAttempts
	r.InitialDelay = cfg.Backend.RetryBackoff
	return Config{
		BaseURL: cfg.Backend.BaseURL,
		Token:   cfg.Auth.ClientToken,
		Timeout: cfg.Backend.Timeout,
		Retry:   r,
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Backend.BreakerFailures,
			OpenTimeout:      cfg.Backend.BreakerTimeout,
		},
	}
}

// Client talks to the consultation REST backend. Server errors and transport
// failures are retried and count against the circuit breaker; 4xx responses
// are returned at once with the backend's message.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.ContextLogger
	logger  *zap.SugaredLogger
}

var (
	_ ports.ConsultationBackend = (*Client)(nil)
	_ ports.BookingRuleBackend  = (*Client)(nil)
	_ ports.PaymentBackend      = (*Client)(nil)
)

func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.Retry.Retryable = retryable
	cfg.Breaker.Counts = retryable

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   cfg.Retry,
		breaker: circuitbreaker.New(cfg.Breaker),
		log:     logger.NewContextLogger(log),
		logger:  log.Sugar(),
	}
	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		c.logger.Warnw("backend circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return c
}

// retryable reports whether err is a server side or transport failure.
func retryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Code == apperrors.ErrCodeUpstream {
		return appErr.HTTPStatus >= http.StatusInternalServerError
	}
	return true
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// do sends a request that is safe to replay on a server or transport failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.call(ctx, c.retry, method, path, body, out)
}

// doOnce sends a write whose replay would duplicate it on the backend.
func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	once := c.retry
	once.MaxAttempts = 0
	return c.call(ctx, once, method, path, body, out)
}

func (c *Client) call(ctx context.Context, policy retry.Config, method, path string, body, out any) error {
	ctx, span := tracing.TraceBackendRequest(ctx, method, path)
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		err := c.breaker.Execute(func() error {
			return c.send(ctx, method, path, body, out)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "", http.StatusServiceUnavailable)
		}
		return err
	})
	tracing.End(span, err)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInternal, "encode request", http.StatusInternalServerError)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "build request", http.StatusInternalServerError)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.LogError(ctx, err, "backend request failed", zap.String("method", method), zap.String("path", path))
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.log.LogRequest(ctx, method, path, resp.StatusCode, time.Since(start).Milliseconds())
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "", http.StatusServiceUnavailable)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		msg := eb.Message
		if msg == "" {
			msg = eb.Error
		}
		return apperrors.NewUpstreamError(resp.StatusCode, msg).WithContext("path", path)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeUpstream, "", http.StatusBadGateway)
	}
	return nil
}

func appointmentPath(prefix string, roomID domain.RoomID, suffix string) string {
	return fmt.Sprintf("%s/appointments/%s/%s", prefix, url.PathEscape(string(roomID)), suffix)
}

func (c *Client) StartMeeting(ctx context.Context, roomID domain.RoomID) error {
	return c.do(ctx, http.MethodPatch, appointmentPath("/lawyer", roomID, "start"), nil, nil)
}

func (c *Client) AddFinalNote(ctx context.Context, roomID domain.RoomID, note domain.FinalNote) error {
	return c.doOnce(ctx, http.MethodPost, appointmentPath("/lawyer", roomID, "final-note"), note, nil)
}

func (c *Client) AddFeedback(ctx context.Context, roomID domain.RoomID, feedback domain.Feedback) error {
	return c.doOnce(ctx, http.MethodPost, appointmentPath("/user", roomID, "feedback"), feedback, nil)
}

func (c *Client) AddBookingRule(ctx context.Context, rule domain.BookingRuleRequest) error {
	return c.doOnce(ctx, http.MethodPost, "/lawyer/booking-rules", rule, nil)
}

func (c *Client) ListBookingRules(ctx context.Context, status domain.RuleStatus) ([]domain.BookingRule, error) {
	path := "/lawyer/booking-rules"
	if status != "" {
		path += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var out envelope[[]domain.BookingRule]
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return []domain.BookingRule{}, nil
	}
	return out.Data, nil
}

func (c *Client) ToggleRuleStatus(ctx context.Context, ruleID string) (domain.BookingRule, error) {
	var out envelope[domain.BookingRule]
	path := "/lawyer/booking-rules/" + url.PathEscape(ruleID) + "/toggle-status"
	if err := c.doOnce(ctx, http.MethodPatch, path, nil, &out); err != nil {
		return domain.BookingRule{}, err
	}
	return out.Data, nil
}

type createOrderRequest struct {
	AppointmentID string `json:"appointmentId"`
	Amount        int64  `json:"amount"`
}

func (c *Client) CreatePaymentOrder(ctx context.Context, appointmentID string, amount int64) (domain.PaymentOrder, error) {
	var out envelope[domain.PaymentOrder]
	body := createOrderRequest{AppointmentID: appointmentID, Amount: amount}
	if err := c.doOnce(ctx, http.MethodPost, "/user/payments/create-order", body, &out); err != nil {
		return domain.PaymentOrder{}, err
	}
	return out.Data, nil
}

func (c *Client) VerifyPayment(ctx context.Context, result domain.PaymentResult) (domain.PaymentVerification, error) {
	var out domain.PaymentVerification
	if err := c.doOnce(ctx, http.MethodPost, "/user/payments/verify", result, &out); err != nil {
		return domain.PaymentVerification{}, err
	}
	return out, nil
}
