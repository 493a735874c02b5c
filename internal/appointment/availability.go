package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoAttendanceMessage is returned when the practitioner has no active rule
// for the requested weekday.
const NoAttendanceMessage = "O profissional não atende neste dia"

const dateLayout = "2006-01-02"

type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

type Availability struct {
	Date         time.Time
	Practitioner Practitioner
	Slots        []Slot
	Message      string
}

// Availability lists the candidate slots of one practitioner on one calendar
// date. Only the first active rule for the weekday is consulted.
func (s *Service) Availability(ctx context.Context, practitionerID uuid.UUID, date string) (*Availability, error) {
	day, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}

	practitioner, err := s.repo.GetPractitionerByID(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, ErrPractitionerNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load practitioner: %w", err)
	}

	result := &Availability{
		Date:         day,
		Practitioner: *practitioner,
		Slots:        []Slot{},
	}

	rules, err := s.repo.ListActiveRulesForDay(ctx, practitionerID, int(day.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}
	if len(rules) == 0 {
		result.Message = NoAttendanceMessage
		return result, nil
	}

	booked, err := s.repo.ListOccupyingBetween(ctx, practitionerID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load booked appointments: %w", err)
	}

	occupied := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		occupied[a.ScheduledAt.In(s.loc).Format("15:04")] = struct{}{}
	}

	result.Slots = GenerateSlots(rules[0], practitioner.SlotStep(), day, occupied, s.now())
	return result, nil
}

// GenerateSlots walks the half-open window [StartTime, EndTime) of rule in
// step increments. A slot is available when its "HH:MM" is not in occupied
// and its absolute time on day is strictly after now. Times that do not
// exist on day in its zone are left out.
func GenerateSlots(rule AvailabilityRule, step time.Duration, day time.Time, occupied map[string]struct{}, now time.Time) []Slot {
	slots := []Slot{}

	stepMinutes := ClockTime(step / time.Minute)
	if stepMinutes <= 0 {
		return slots
	}

	for t := rule.StartTime; t < rule.EndTime; t += stepMinutes {
		at, exists := t.Resolve(day)
		if !exists {
			continue
		}
		label := t.String()
		_, taken := occupied[label]
		slots = append(slots, Slot{
			Time:      label,
			Available: !taken && at.After(now),
		})
	}
	return slots
}

func (s *Service) parseDate(date string) (time.Time, error) {
	if date == "" {
		return time.Time{}, invalidInput("date is required")
	}
	day, err := time.ParseInLocation(dateLayout, date, s.loc)
	if err != nil {
		return time.Time{}, invalidInput("date %q must be YYYY-MM-DD", date)
	}
	return day, nil
}
