package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *Service) ListAvailabilityRules(ctx context.Context, practitionerID uuid.UUID) ([]AvailabilityRule, error) {
	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}
	rules, err := s.repo.ListAvailabilityRules(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	return rules, nil
}

// SetAvailabilityRules replaces the practitioner's weekly rules. Several
// rules per weekday are stored, but only the first active one is used for
// slot generation.
func (s *Service) SetAvailabilityRules(ctx context.Context, practitionerID uuid.UUID, actor Actor, rules []AvailabilityRule) ([]AvailabilityRule, error) {
	if actor.Role != RoleAdmin && (actor.Role != RolePractitioner || actor.ID != practitionerID) {
		return nil, ErrForbidden
	}

	for i := range rules {
		r := &rules[i]
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return nil, invalidInput("rule %d: dayOfWeek must be between 0 and 6", i)
		}
		if r.StartTime >= r.EndTime {
			return nil, invalidInput("rule %d: start %s must be before end %s", i, r.StartTime, r.EndTime)
		}
		r.ID = uuid.New()
		r.PractitionerID = practitionerID
	}

	if _, err := s.repo.GetPractitionerByID(ctx, practitionerID); err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	saved, err := s.repo.ReplaceAvailabilityRules(ctx, practitionerID, rules)
	if err != nil {
		return nil, fmt.Errorf("replace availability rules: %w", err)
	}
	return saved, nil
}
