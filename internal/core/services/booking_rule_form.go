package services

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	apperrors "lexmeet/pkg/errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Error keys of the composite checks.
const (
	FieldRuleName    = "ruleName"
	FieldDescription = "description"
	FieldDaysOfWeek  = "daysOfWeek"
	FieldStartTime   = "startTime"
	FieldEndTime     = "endTime"
	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
	FieldPriority    = "priority"
	FieldBufferTime  = "bufferTime"

	// DefaultBufferTime is the fixed gap in minutes between generated slots.
	DefaultBufferTime = 15
)

// BookingRuleInput is the raw state of the booking rule form.
type BookingRuleInput struct {
	RuleName    string   `form:"ruleName" validate:"notblank"`
	Description string   `form:"description" validate:"notblank"`
	DaysOfWeek  []string `form:"daysOfWeek" validate:"required,min=1,dive,oneof=mon tue wed thu fri sat sun"`
	StartTime   string   `form:"startTime" validate:"required"`
	EndTime     string   `form:"endTime" validate:"required"`
	StartDate   string   `form:"startDate"`
	EndDate     string   `form:"endDate" validate:"required_with=StartDate"`
	Priority    int      `form:"priority" validate:"min=1"`
	BufferTime  int      `form:"bufferTime" validate:"min=0"`
}

// BookingRuleForm builds a recurring-availability rule and submits it once.
type BookingRuleForm struct {
	backend   ports.BookingRuleBackend
	navigator ports.Navigator
	notifier  ports.Notifier
	validate  *validator.Validate
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu         sync.Mutex
	input      BookingRuleInput
	breaks     []domain.BreakTime
	errors     map[string]string
	submitting bool
	submitted  bool
}

func NewBookingRuleForm(
	backend ports.BookingRuleBackend,
	navigator ports.Navigator,
	notifier ports.Notifier,
	now func() time.Time,
	logger *zap.SugaredLogger,
) *BookingRuleForm {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("form")
	})

	return &BookingRuleForm{
		backend:   backend,
		navigator: navigator,
		notifier:  notifier,
		validate:  validate,
		now:       now,
		logger:    logger,
		input:     BookingRuleInput{Priority: 1, BufferTime: DefaultBufferTime},
		errors:    map[string]string{},
	}
}

// Update edits the form fields in place.
func (f *BookingRuleForm) Update(edit func(in *BookingRuleInput)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	edit(&f.input)
}

// ToggleDay adds or removes a weekday id.
func (f *BookingRuleForm) ToggleDay(day string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lo.Contains(f.input.DaysOfWeek, day) {
		f.input.DaysOfWeek = lo.Without(f.input.DaysOfWeek, day)
		return
	}
	f.input.DaysOfWeek = append(f.input.DaysOfWeek, day)
}

// AddBreak appends an empty break row and returns its id.
func (f *BookingRuleForm) AddBreak() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.breaks = append(f.breaks, domain.BreakTime{ID: id})
	return id
}

// SetBreak sets the bounds of the break row id.
func (f *BookingRuleForm) SetBreak(id, start, end string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(f.breaks, func(b domain.BreakTime) bool { return b.ID == id })
	if !ok {
		return domain.ErrBreakNotFound
	}
	f.breaks[idx].Start = start
	f.breaks[idx].End = end
	return nil
}

// RemoveBreak drops the row id together with its validation error.
func (f *BookingRuleForm) RemoveBreak(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := len(f.breaks)
	f.breaks = lo.Reject(f.breaks, func(b domain.BreakTime, _ int) bool { return b.ID == id })
	if len(f.breaks) == before {
		return domain.ErrBreakNotFound
	}
	delete(f.errors, BreakErrorKey(id))
	return nil
}

func (f *BookingRuleForm) Breaks() []domain.BreakTime {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.BreakTime, len(f.breaks))
	copy(out, f.breaks)
	return out
}

// BreakErrorKey is the error map key of a break row.
func BreakErrorKey(id string) string {
	return "breakTimes." + id
}

// Errors returns the field errors of the last validation.
func (f *BookingRuleForm) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Assign(f.errors)
}

// Validate checks the whole form and records field -> message errors.
func (f *BookingRuleForm) Validate() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = f.check()
	return lo.Assign(f.errors)
}

func (f *BookingRuleForm) check() map[string]string {
	errs := map[string]string{}

	if err := f.validate.Struct(f.input); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				field := fieldKey(fe)
				if _, seen := errs[field]; !seen {
					errs[field] = fieldMessage(fe)
				}
			}
		} else {
			errs["form"] = err.Error()
		}
	}

	start, startErr := domain.ParseTimeOfDay(f.input.StartTime)
	end, endErr := domain.ParseTimeOfDay(f.input.EndTime)
	if f.input.StartTime != "" && startErr != nil {
		errs[FieldStartTime] = "Start time is invalid"
	}
	if f.input.EndTime != "" && endErr != nil {
		errs[FieldEndTime] = "End time is invalid"
	}
	if startErr == nil && endErr == nil && start >= end {
		errs[FieldStartTime] = "Start time must be before end time"
	}

	var startDate, endDate time.Time
	var haveStart, haveEnd bool
	if f.input.StartDate != "" {
		d, err := domain.ParseDate(f.input.StartDate)
		if err != nil {
			errs[FieldStartDate] = "Start date is invalid"
		} else {
			startDate, haveStart = d, true
			if !d.After(truncateDay(f.now())) {
				errs[FieldStartDate] = "Start date must be after today"
			}
		}
	}
	if f.input.EndDate != "" {
		d, err := domain.ParseDate(f.input.EndDate)
		if err != nil {
			errs[FieldEndDate] = "End date is invalid"
		} else {
			endDate, haveEnd = d, true
		}
	}
	if haveStart && haveEnd && startDate.After(endDate) {
		errs[FieldEndDate] = "End date must be on or after start date"
	}

	for _, b := range f.breaks {
		if msg := checkBreak(b); msg != "" {
			errs[BreakErrorKey(b.ID)] = msg
		}
	}
	return errs
}

func checkBreak(b domain.BreakTime) string {
	if b.Start == "" || b.End == "" {
		return "Break start and end time are required"
	}
	start, err := domain.ParseTimeOfDay(b.Start)
	if err != nil {
		return "Break start time is invalid"
	}
	end, err := domain.ParseTimeOfDay(b.End)
	if err != nil {
		return "Break end time is invalid"
	}
	if start >= end {
		return "Break start time must be before break end time"
	}
	return ""
}

func fieldKey(fe validator.FieldError) string {
	// Slice elements report as daysOfWeek[0].
	name := fe.Field()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

var fieldLabels = map[string]string{
	FieldRuleName:    "Rule name",
	FieldDescription: "Description",
	FieldDaysOfWeek:  "At least one day",
	FieldStartTime:   "Start time",
	FieldEndTime:     "End time",
	FieldStartDate:   "Start date",
	FieldEndDate:     "End date",
	FieldPriority:    "Priority",
	FieldBufferTime:  "Buffer time",
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabels[fieldKey(fe)]
	switch fe.Tag() {
	case "required", "notblank":
		if fieldKey(fe) == FieldDaysOfWeek {
			return "Select at least one day"
		}
		return label + " is required"
	case "required_with":
		return "End date is required when start date is set"
	case "min":
		if fieldKey(fe) == FieldDaysOfWeek {
			return "Select at least one day"
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("Unknown day %v", fe.Value())
	default:
		return label + " is invalid"
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Request shapes the form into the payload the backend stores.
func (f *BookingRuleForm) Request() domain.BookingRuleRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.request()
}

func (f *BookingRuleForm) request() domain.BookingRuleRequest {
	days := lo.Uniq(f.input.DaysOfWeek)
	sort.SliceStable(days, func(i, j int) bool {
		return domain.WeekdayIndex(days[i]) < domain.WeekdayIndex(days[j])
	})

	return domain.BookingRuleRequest{
		Name:        strings.TrimSpace(f.input.RuleName),
		Description: strings.TrimSpace(f.input.Description),
		Days:        days,
		StartTime:   normalizeTime(f.input.StartTime),
		EndTime:     normalizeTime(f.input.EndTime),
		StartDate:   f.input.StartDate,
		EndDate:     f.input.EndDate,
		Priority:    f.input.Priority,
		BreakTimes: lo.Map(f.breaks, func(b domain.BreakTime, _ int) domain.BreakTimeRequest {
			return domain.BreakTimeRequest{StartTime: normalizeTime(b.Start), EndTime: normalizeTime(b.End)}
		}),
		BufferTime: f.input.BufferTime,
	}
}

func normalizeTime(s string) string {
	t, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return s
	}
	return t.String()
}

// Submit validates the form and, when it is clean, posts the rule once and
// moves to the rule list. Validation failures never reach the backend.
func (f *BookingRuleForm) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.submitted {
		f.mu.Unlock()
		return domain.ErrAlreadySubmitted
	}
	if f.submitting {
		f.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	f.errors = f.check()
	if len(f.errors) > 0 {
		count := len(f.errors)
		f.mu.Unlock()
		f.logger.Debugw("Booking rule rejected by validation", "errors", count)
		return apperrors.WrapError(domain.ErrValidationFailed, apperrors.ErrCodeInvalidInput,
			"Please fix the highlighted fields", http.StatusBadRequest).WithContext("fields", count)
	}
	req := f.request()
	f.submitting = true
	f.mu.Unlock()

	if err := f.backend.AddBookingRule(ctx, req); err != nil {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
		f.logger.Errorw("Failed to add booking rule", "name", req.Name, "error", err)
		f.notifier.Error(apperrors.UserMessage(err, "Failed to create booking rule"))
		return err
	}

	f.mu.Lock()
	f.submitting = false
	f.submitted = true
	f.mu.Unlock()

	f.notifier.Success("Booking rule created")
	f.navigator.Navigate(domain.RouteBookingRules)
	return nil
}
