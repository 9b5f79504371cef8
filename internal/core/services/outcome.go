package services

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	apperrors "lexmeet/pkg/errors"

	"go.uber.org/zap"
)

// Outcome is the end-of-call form shown after the call is torn down.
type Outcome interface {
	Role() domain.Role
	Visible() bool
	Show()
	// Cancel hides the form. The call stays ended.
	Cancel()
	Submitted() bool
}

type outcomeDeps struct {
	roomID    domain.RoomID
	backend   ports.ConsultationBackend
	navigator ports.Navigator
	notifier  ports.Notifier
	logger    *zap.SugaredLogger
	onDone    func()
}

type outcomeForm struct {
	outcomeDeps
	role domain.Role

	mu         sync.Mutex
	visible    bool
	submitting bool
	submitted  bool
}

func (f *outcomeForm) Role() domain.Role { return f.role }

func (f *outcomeForm) Visible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

func (f *outcomeForm) Show() {
	f.mu.Lock()
	f.visible = true
	f.mu.Unlock()
}

func (f *outcomeForm) Cancel() {
	f.mu.Lock()
	f.visible = false
	f.mu.Unlock()
}

func (f *outcomeForm) Submitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// submit runs send once. On failure the form stays open and the error is shown as a toast.
func (f *outcomeForm) submit(ctx context.Context, fallback, success string, send func(context.Context) error) error {
	f.mu.Lock()
	if f.submitted {
		f.mu.Unlock()
		return domain.ErrOutcomeSubmitted
	}
	if f.submitting {
		f.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	f.submitting = true
	f.mu.Unlock()

	if err := send(ctx); err != nil {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
		f.logger.Errorw("Failed to submit call outcome", "room_id", f.roomID, "error", err)
		f.notifier.Error(apperrors.UserMessage(err, fallback))
		return err
	}

	f.mu.Lock()
	f.submitting = false
	f.submitted = true
	f.visible = false
	f.mu.Unlock()

	f.notifier.Success(success)
	f.navigator.Navigate(f.role.Dashboard())
	if f.onDone != nil {
		f.onDone()
	}
	return nil
}

// LawyerOutcome collects the lawyer's summary note.
type LawyerOutcome struct {
	outcomeForm
}

func newLawyerOutcome(deps outcomeDeps) *LawyerOutcome {
	return &LawyerOutcome{outcomeForm: outcomeForm{outcomeDeps: deps, role: domain.RoleLawyer, visible: true}}
}

// SubmitNote stores note as the final note of the room and returns to the lawyer dashboard.
func (o *LawyerOutcome) SubmitNote(ctx context.Context, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		err := apperrors.NewInvalidInputError("Please write a summary before submitting")
		o.notifier.Error(err.Message)
		return err
	}
	return o.submit(ctx, "Failed to submit note", "Note submitted successfully", func(ctx context.Context) error {
		return o.backend.AddFinalNote(ctx, o.roomID, domain.FinalNote{Note: note})
	})
}

// UserOutcome collects the user's star rating and feedback.
type UserOutcome struct {
	outcomeForm
	rating int
}

func newUserOutcome(deps outcomeDeps) *UserOutcome {
	return &UserOutcome{outcomeForm: outcomeForm{outcomeDeps: deps, role: domain.RoleUser, visible: true}}
}

// SetRating selects a star. Values outside 1..5 are rejected.
func (o *UserOutcome) SetRating(stars int) error {
	if stars < domain.MinRating || stars > domain.MaxRating {
		return domain.ErrInvalidRating
	}
	o.mu.Lock()
	o.rating = stars
	o.mu.Unlock()
	return nil
}

func (o *UserOutcome) Rating() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rating
}

// SubmitFeedback sends the selected rating with feedback and returns to the user dashboard.
func (o *UserOutcome) SubmitFeedback(ctx context.Context, feedback string) error {
	rating := o.Rating()
	if rating == 0 {
		err := apperrors.WrapError(domain.ErrInvalidRating, apperrors.ErrCodeInvalidInput, "Please select a rating", http.StatusBadRequest)
		o.notifier.Error(err.Message)
		return err
	}
	payload := domain.Feedback{Feedback: strings.TrimSpace(feedback), Rating: rating}
	return o.submit(ctx, "Failed to submit feedback", "Thank you for your feedback", func(ctx context.Context) error {
		return o.backend.AddFeedback(ctx, o.roomID, payload)
	})
}
