package sla

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util/errorutil"
)

// CalendarRule describes the single weekday window during which the SLA
// clock advances when business-hours mode is enabled. Hours are local to
// the start instant; weekends never count.
type CalendarRule struct {
	BusinessHoursOnly bool
	StartHour         int
	EndHour           int
}

// RuleFromPolicy extracts the calendar rule from a policy record.
func RuleFromPolicy(policy *domain.SLAPolicy) CalendarRule {
	if policy == nil {
		return CalendarRule{}
	}
	return CalendarRule{
		BusinessHoursOnly: policy.BusinessHoursOnly,
		StartHour:         policy.BusinessHourStart,
		EndHour:           policy.BusinessHourEnd,
	}
}

func (r CalendarRule) validate() error {
	if r.StartHour < 0 || r.StartHour > 23 || r.EndHour < 0 || r.EndHour > 23 {
		return apperrors.NewConfigurationError("business hours must fall within 0-23", map[string]any{
			"business_hour_start": r.StartHour,
			"business_hour_end":   r.EndHour,
		})
	}
	if r.EndHour <= r.StartHour {
		return apperrors.NewConfigurationError("business_hour_end must be after business_hour_start", map[string]any{
			"business_hour_start": r.StartHour,
			"business_hour_end":   r.EndHour,
		})
	}
	return nil
}

// AddMinutes advances start by the given minute budget under the calendar
// rule and reports the minutes consumed inside business windows. In
// continuous mode the deadline is simply start plus the budget. In
// business-hours mode the walk jumps whole off-hours stretches at zero
// cost and consumes windows day by day; cost is proportional to the number
// of day boundaries crossed, never to the minute budget itself.
func AddMinutes(start time.Time, minutes int, rule CalendarRule) (time.Time, int, error) {
	if minutes < 0 {
		return time.Time{}, 0, apperrors.NewValidationError("duration minutes cannot be negative", map[string]any{
			"minutes": minutes,
		})
	}
	if minutes == 0 {
		return start, 0, nil
	}
	if !rule.BusinessHoursOnly {
		return start.Add(time.Duration(minutes) * time.Minute), minutes, nil
	}
	if err := rule.validate(); err != nil {
		return time.Time{}, 0, err
	}

	windowMinutes := (rule.EndHour - rule.StartHour) * 60
	// Every consuming hop drains a full window or finishes the budget, and
	// each one is preceded by at most two zero-cost jumps.
	maxHops := (minutes/windowMinutes+2)*3 + 8

	cur := start
	remaining := time.Duration(minutes) * time.Minute
	for hops := 0; remaining > 0; hops++ {
		if hops > maxHops {
			return time.Time{}, 0, apperrors.NewConfigurationError("business hours walk exceeded iteration bound", map[string]any{
				"minutes": minutes,
			})
		}
		switch {
		case isWeekend(cur):
			cur = nextWindowStart(cur, rule)
		case cur.Hour() < rule.StartHour:
			cur = windowStartOn(cur, rule)
		case cur.Hour() >= rule.EndHour:
			cur = nextWindowStart(cur, rule)
		default:
			windowEnd := time.Date(cur.Year(), cur.Month(), cur.Day(), rule.EndHour, 0, 0, 0, cur.Location())
			available := windowEnd.Sub(cur)
			if remaining <= available {
				cur = cur.Add(remaining)
				remaining = 0
			} else {
				remaining -= available
				cur = nextWindowStart(cur, rule)
			}
		}
	}
	return cur, minutes, nil
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func windowStartOn(t time.Time, rule CalendarRule) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), rule.StartHour, 0, 0, 0, t.Location())
}

func nextWindowStart(t time.Time, rule CalendarRule) time.Time {
	next := windowStartOn(t.AddDate(0, 0, 1), rule)
	for isWeekend(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
