package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lexmeet/internal/core/domain"
	apperrors "lexmeet/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var bookingToday = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func newBookingForm(t *testing.T) (*BookingRuleForm, *mockBackend, *recordingNavigator, *recordingNotifier) {
	t.Helper()
	backend := &mockBackend{}
	navigator := &recordingNavigator{}
	notifier := &recordingNotifier{}
	form := NewBookingRuleForm(backend, navigator, notifier, func() time.Time { return bookingToday }, nil)
	return form, backend, navigator, notifier
}

func fillMorningSlots(form *BookingRuleForm) {
	form.Update(func(in *BookingRuleInput) {
		in.RuleName = "Morning Slots"
		in.Description = "Weekday mornings"
		in.StartTime = "9:00 AM"
		in.EndTime = "12:00 PM"
		in.StartDate = "2026-05-05"
		in.EndDate = "2026-05-12"
		in.Priority = 1
	})
	form.ToggleDay(domain.Monday)
	form.ToggleDay(domain.Wednesday)
	form.ToggleDay(domain.Friday)
}

func TestBookingRuleStartAfterEndBlocked(t *testing.T) {
	form, backend, navigator, _ := newBookingForm(t)
	fillMorningSlots(form)
	form.Update(func(in *BookingRuleInput) {
		in.StartTime = "10:00 AM"
		in.EndTime = "9:00 AM"
	})

	err := form.Submit(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, "Start time must be before end time", form.Errors()[FieldStartTime])
	backend.AssertNotCalled(t, "AddBookingRule", mock.Anything, mock.Anything)
	assert.Empty(t, navigator.routes)
}

func TestBookingRuleHappyPath(t *testing.T) {
	form, backend, navigator, notifier := newBookingForm(t)
	fillMorningSlots(form)

	want := domain.BookingRuleRequest{
		Name:        "Morning Slots",
		Description: "Weekday mornings",
		Days:        []string{"mon", "wed", "fri"},
		StartTime:   "09:00",
		EndTime:     "12:00",
		StartDate:   "2026-05-05",
		EndDate:     "2026-05-12",
		Priority:    1,
		BreakTimes:  []domain.BreakTimeRequest{},
		BufferTime:  DefaultBufferTime,
	}
	backend.On("AddBookingRule", mock.Anything, want).Return(nil).Once()

	require.NoError(t, form.Submit(context.Background()))
	backend.AssertNumberOfCalls(t, "AddBookingRule", 1)
	assert.Empty(t, form.Errors())
	assert.Equal(t, []domain.Route{domain.RouteBookingRules}, navigator.routes)
	assert.Len(t, notifier.successes, 1)

	body, err := json.Marshal(want)
	require.NoError(t, err)
	var shape map[string]any
	require.NoError(t, json.Unmarshal(body, &shape))
	assert.ElementsMatch(t,
		[]string{"name", "description", "days", "startTime", "endTime", "startDate", "endDate", "priority", "breakTimes", "bufferTime"},
		keys(shape))
	assert.Equal(t, []any{}, shape["breakTimes"])

	assert.ErrorIs(t, form.Submit(context.Background()), domain.ErrAlreadySubmitted)
	backend.AssertNumberOfCalls(t, "AddBookingRule", 1)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestBookingRuleRequiredFields(t *testing.T) {
	form, backend, _, _ := newBookingForm(t)
	form.Update(func(in *BookingRuleInput) { in.Priority = 0 })

	errs := form.Validate()
	assert.Equal(t, "Rule name is required", errs[FieldRuleName])
	assert.Equal(t, "Description is required", errs[FieldDescription])
	assert.Equal(t, "Select at least one day", errs[FieldDaysOfWeek])
	assert.Equal(t, "Start time is required", errs[FieldStartTime])
	assert.Equal(t, "End time is required", errs[FieldEndTime])
	assert.Equal(t, "Priority must be at least 1", errs[FieldPriority])
	assert.NotContains(t, errs, FieldStartDate)
	assert.NotContains(t, errs, FieldEndDate)
	backend.AssertNotCalled(t, "AddBookingRule", mock.Anything, mock.Anything)
}

func TestBookingRuleDateChecks(t *testing.T) {
	tests := []struct {
		name      string
		startDate string
		endDate   string
		field     string
		message   string
	}{
		{"start today", "2026-05-04", "2026-05-10", FieldStartDate, "Start date must be after today"},
		{"start in past", "2026-04-01", "2026-05-10", FieldStartDate, "Start date must be after today"},
		{"end missing", "2026-05-06", "", FieldEndDate, "End date is required when start date is set"},
		{"end before start", "2026-05-10", "2026-05-06", FieldEndDate, "End date must be on or after start date"},
		{"garbage start", "05/10/2026", "2026-05-20", FieldStartDate, "Start date is invalid"},
		{"garbage end without start", "", "not-a-date", FieldEndDate, "End date is invalid"},
		{"garbage end", "2026-05-06", "next week", FieldEndDate, "End date is invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, _, _, _ := newBookingForm(t)
			fillMorningSlots(form)
			form.Update(func(in *BookingRuleInput) {
				in.StartDate = tt.startDate
				in.EndDate = tt.endDate
			})
			assert.Equal(t, tt.message, form.Validate()[tt.field])
		})
	}

	form, _, _, _ := newBookingForm(t)
	fillMorningSlots(form)
	form.Update(func(in *BookingRuleInput) { in.EndDate = in.StartDate })
	assert.Empty(t, form.Validate())
}

func TestBookingRuleBlankTextRejected(t *testing.T) {
	form, backend, navigator, _ := newBookingForm(t)
	fillMorningSlots(form)
	form.Update(func(in *BookingRuleInput) {
		in.RuleName = "   "
		in.Description = "\t"
	})

	err := form.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, "Rule name is required", form.Errors()[FieldRuleName])
	assert.Equal(t, "Description is required", form.Errors()[FieldDescription])
	backend.AssertNotCalled(t, "AddBookingRule", mock.Anything, mock.Anything)
	assert.Empty(t, navigator.routes)
}

func TestBookingRuleConcurrentSubmitPostsOnce(t *testing.T) {
	form, backend, navigator, _ := newBookingForm(t)
	fillMorningSlots(form)
	backend.On("AddBookingRule", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
		Return(nil)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- form.Submit(context.Background())
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrSubmitInProgress) || errors.Is(err, domain.ErrAlreadySubmitted), err)
	}
	assert.Equal(t, 1, ok)
	backend.AssertNumberOfCalls(t, "AddBookingRule", 1)
	assert.Equal(t, []domain.Route{domain.RouteBookingRules}, navigator.routes)
}

func TestBookingRuleResubmitAfterFailure(t *testing.T) {
	form, backend, _, _ := newBookingForm(t)
	fillMorningSlots(form)
	backend.On("AddBookingRule", mock.Anything, mock.Anything).Return(errBoom).Once()
	backend.On("AddBookingRule", mock.Anything, mock.Anything).Return(nil).Once()

	require.Error(t, form.Submit(context.Background()))
	require.NoError(t, form.Submit(context.Background()))
	backend.AssertNumberOfCalls(t, "AddBookingRule", 2)
}

func TestBookingRuleBreakErrorsKeyedByID(t *testing.T) {
	form, _, _, _ := newBookingForm(t)
	fillMorningSlots(form)

	first := form.AddBreak()
	middle := form.AddBreak()
	last := form.AddBreak()
	require.NoError(t, form.SetBreak(first, "10:00 AM", "10:15 AM"))
	require.NoError(t, form.SetBreak(middle, "11:00 AM", "10:30 AM"))
	require.NoError(t, form.SetBreak(last, "11:30 AM", ""))

	errs := form.Validate()
	assert.NotContains(t, errs, BreakErrorKey(first))
	assert.Equal(t, "Break start time must be before break end time", errs[BreakErrorKey(middle)])
	assert.Equal(t, "Break start and end time are required", errs[BreakErrorKey(last)])

	require.NoError(t, form.RemoveBreak(middle))
	errs = form.Errors()
	assert.NotContains(t, errs, BreakErrorKey(middle))
	assert.Equal(t, "Break start and end time are required", errs[BreakErrorKey(last)])
	assert.Equal(t, []string{first, last}, []string{form.Breaks()[0].ID, form.Breaks()[1].ID})

	assert.ErrorIs(t, form.RemoveBreak(middle), domain.ErrBreakNotFound)
	assert.ErrorIs(t, form.SetBreak("nope", "1:00 PM", "2:00 PM"), domain.ErrBreakNotFound)
}

func TestBookingRuleBreaksInRequest(t *testing.T) {
	form, _, _, _ := newBookingForm(t)
	fillMorningSlots(form)
	id := form.AddBreak()
	require.NoError(t, form.SetBreak(id, "10:30 AM", "10:45 AM"))

	require.Empty(t, form.Validate())
	assert.Equal(t, []domain.BreakTimeRequest{{StartTime: "10:30", EndTime: "10:45"}}, form.Request().BreakTimes)
}

func TestBookingRuleToggleDayRemoves(t *testing.T) {
	form, _, _, _ := newBookingForm(t)
	fillMorningSlots(form)
	form.ToggleDay(domain.Wednesday)
	form.ToggleDay(domain.Sunday)

	assert.Equal(t, []string{"mon", "fri", "sun"}, form.Request().Days)
}

func TestBookingRuleBackendFailureUsesServerMessage(t *testing.T) {
	form, backend, navigator, notifier := newBookingForm(t)
	fillMorningSlots(form)
	backend.On("AddBookingRule", mock.Anything, mock.Anything).
		Return(apperrors.NewUpstreamError(409, "Rule overlaps an existing rule")).Once()

	err := form.Submit(context.Background())
	assert.Error(t, err)
	assert.Equal(t, []string{"Rule overlaps an existing rule"}, notifier.errors)
	assert.Empty(t, navigator.routes)

	backend.On("AddBookingRule", mock.Anything, mock.Anything).Return(errBoom).Once()
	require.Error(t, form.Submit(context.Background()))
	assert.Equal(t, "Failed to create booking rule", notifier.errors[1])
}

func TestBookingRuleService(t *testing.T) {
	backend := &mockBackend{}
	notifier := &recordingNotifier{}
	svc := NewBookingRuleService(backend, notifier, nil)

	rules := []domain.BookingRule{{ID: "r1", Name: "Morning Slots", Status: domain.RuleActive}}
	backend.On("ListBookingRules", mock.Anything, domain.RuleActive).Return(rules, nil).Once()
	got, err := svc.List(context.Background(), domain.RuleActive)
	require.NoError(t, err)
	assert.Equal(t, rules, got)

	_, err = svc.List(context.Background(), "archived")
	assert.Error(t, err)

	backend.On("ToggleRuleStatus", mock.Anything, "r1").
		Return(domain.BookingRule{ID: "r1", Name: "Morning Slots", Status: domain.RuleInactive}, nil).Once()
	rule, err := svc.Toggle(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RuleInactive, rule.Status)
	assert.Equal(t, []string{"Rule Morning Slots is now inactive"}, notifier.successes)

	backend.On("ToggleRuleStatus", mock.Anything, "missing").
		Return(domain.BookingRule{}, apperrors.NewUpstreamError(404, "Rule not found")).Once()
	_, err = svc.Toggle(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, []string{"Rule not found"}, notifier.errors)
	backend.AssertExpectations(t)
}
