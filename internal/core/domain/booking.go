package domain

import (
	"fmt"
	"strings"
	"time"
)

// Weekday ids accepted in a booking rule.
const (
	Monday    = "mon"
	Tuesday   = "tue"
	Wednesday = "wed"
	Thursday  = "thu"
	Friday    = "fri"
	Saturday  = "sat"
	Sunday    = "sun"
)

var weekdayOrder = map[string]int{
	Monday: 0, Tuesday: 1, Wednesday: 2, Thursday: 3, Friday: 4, Saturday: 5, Sunday: 6,
}

// IsWeekday reports whether id is a known weekday id.
func IsWeekday(id string) bool {
	_, ok := weekdayOrder[id]
	return ok
}

// WeekdayIndex orders weekday ids Monday first. Unknown ids sort last.
func WeekdayIndex(id string) int {
	if i, ok := weekdayOrder[id]; ok {
		return i
	}
	return len(weekdayOrder)
}

// TimeOfDay is minutes past midnight.
type TimeOfDay int

var timeOfDayLayouts = []string{"3:04 PM", "3:04PM", "03:04 PM", "15:04", "15:04:05"}

// ParseTimeOfDay accepts both 12-hour ("9:00 AM") and 24-hour ("09:00") input.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range timeOfDayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

// String renders the 24-hour form the backend stores.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// DateLayout is the calendar date format used by booking rules.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date in DateLayout.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// BreakTime is one break interval inside a booking rule. ID is a stable row
// identity generated when the row is added; it never changes when other rows go away.
type BreakTime struct {
	ID    string
	Start string
	End   string
}

// RuleStatus is the activation state of a stored booking rule.
type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
)

// BreakTimeRequest is one break in the backend payload.
type BreakTimeRequest struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// BookingRuleRequest is the payload the backend expects when a rule is added.
type BookingRuleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Days        []string           `json:"days"`
	StartTime   string             `json:"startTime"`
	EndTime     string             `json:"endTime"`
	StartDate   string             `json:"startDate"`
	EndDate     string             `json:"endDate"`
	Priority    int                `json:"priority"`
	BreakTimes  []BreakTimeRequest `json:"breakTimes"`
	BufferTime  int                `json:"bufferTime"`
}

// BookingRule is a stored rule as listed by the backend.
type BookingRule struct {
	ID          string             `json:"_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Days        []string           `json:"days"`
	StartTime   string             `json:"startTime"`
	EndTime     string             `json:"endTime"`
	StartDate   string             `json:"startDate"`
	EndDate     string             `json:"endDate"`
	Priority    int                `json:"priority"`
	BreakTimes  []BreakTimeRequest `json:"breakTimes"`
	BufferTime  int                `json:"bufferTime"`
	Status      RuleStatus         `json:"status"`
}
