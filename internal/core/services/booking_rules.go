package services

import (
	"context"
	"fmt"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	apperrors "lexmeet/pkg/errors"

	"go.uber.org/zap"
)

// BookingRuleService lists stored rules and flips their status.
type BookingRuleService struct {
	backend  ports.BookingRuleBackend
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func NewBookingRuleService(backend ports.BookingRuleBackend, notifier ports.Notifier, logger *zap.SugaredLogger) *BookingRuleService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BookingRuleService{backend: backend, notifier: notifier, logger: logger}
}

// List returns the rules with status. An empty status lists every rule.
func (s *BookingRuleService) List(ctx context.Context, status domain.RuleStatus) ([]domain.BookingRule, error) {
	switch status {
	case "", domain.RuleActive, domain.RuleInactive:
	default:
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown rule status %q", status))
	}

	rules, err := s.backend.ListBookingRules(ctx, status)
	if err != nil {
		s.notifier.Error(apperrors.UserMessage(err, "Failed to load booking rules"))
		return nil, err
	}
	return rules, nil
}

// Toggle switches rule id between active and inactive.
func (s *BookingRuleService) Toggle(ctx context.Context, id string) (domain.BookingRule, error) {
	rule, err := s.backend.ToggleRuleStatus(ctx, id)
	if err != nil {
		s.logger.Errorw("Failed to toggle booking rule", "rule_id", id, "error", err)
		s.notifier.Error(apperrors.UserMessage(err, "Failed to update rule status"))
		return domain.BookingRule{}, err
	}
	s.notifier.Success(fmt.Sprintf("Rule %s is now %s", rule.Name, rule.Status))
	return rule, nil
}
