package automation

import (
	"strings"
	"time"
)

// evaluateCondition reports whether c holds now. Malformed conditions are
// false.
func (e *Engine) evaluateCondition(c Condition) bool {
	now := e.clock.Now().In(e.loc)

	switch c.Type {
	case ConditionTimeRange:
		after, err := parseClock(c.After)
		if err != nil {
			return false
		}
		before, err := parseClock(c.Before)
		if err != nil {
			return false
		}
		return inTimeRange(now.Hour()*60+now.Minute(), after, before)

	case ConditionDayOfWeek:
		return onDay(now.Weekday(), c.Days)

	case ConditionDeviceState:
		state, ok := e.devices.State(e.devices.ResolveID(c.Device))
		if !ok {
			return false
		}
		value, ok := state[c.Property]
		if !ok {
			return false
		}
		return valuesEqual(value, c.Equals)

	default:
		return false
	}
}

// inTimeRange checks minute-of-day against [after, before). A window whose
// start is later than its end wraps midnight.
func inTimeRange(now, after, before int) bool {
	if after <= before {
		return now >= after && now < before
	}
	return now >= after || now < before
}

func onDay(day time.Weekday, days []string) bool {
	for _, d := range days {
		if wd, ok := weekdays[strings.ToLower(d)]; ok && wd == day {
			return true
		}
	}
	return false
}
