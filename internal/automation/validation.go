package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxActions        = 100
	maxActionDepth    = 8
	maxDelaySeconds   = 24 * 60 * 60
	clockPattern      = `^([01]?[0-9]|2[0-3]):([0-5][0-9])$`
	mqttWildcardChars = "+#"
)

var clockRegex = regexp.MustCompile(clockPattern)

// weekdays maps the accepted day abbreviations.
var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Validate checks an automation. Returns an error wrapping ErrValidation
// describing the first problem found.
func Validate(a Automation) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(a.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}

	if len(a.Triggers) == 0 {
		return fmt.Errorf("%w: at least one trigger is required", ErrValidation)
	}
	for i, t := range a.Triggers {
		if err := validateTrigger(t); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
	}

	for i, c := range a.Conditions {
		if err := validateCondition(c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	if len(a.Actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", ErrValidation)
	}
	count := 0
	if err := validateActions(a.Actions, 1, &count); err != nil {
		return err
	}
	return nil
}

func validateTrigger(t Trigger) error {
	switch t.Type {
	case TriggerDeviceState:
		if t.Device == "" || t.Property == "" {
			return fmt.Errorf("%w: device_state trigger needs device and property", ErrValidation)
		}
	case TriggerMQTT:
		if t.Topic == "" {
			return fmt.Errorf("%w: mqtt trigger needs a topic", ErrValidation)
		}
	case TriggerCron:
		if _, err := cronParser.Parse(t.Expression); err != nil {
			return fmt.Errorf("%w: cron expression %q: %w", ErrValidation, t.Expression, err)
		}
	case TriggerTime:
		if _, err := parseClock(t.At); err != nil {
			return err
		}
	case TriggerInterval:
		if t.Seconds <= 0 {
			return fmt.Errorf("%w: interval seconds must be positive", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrValidation, t.Type)
	}
	return nil
}

func validateCondition(c Condition) error {
	switch c.Type {
	case ConditionTimeRange:
		if _, err := parseClock(c.After); err != nil {
			return err
		}
		if _, err := parseClock(c.Before); err != nil {
			return err
		}
	case ConditionDayOfWeek:
		if len(c.Days) == 0 {
			return fmt.Errorf("%w: day_of_week needs at least one day", ErrValidation)
		}
		for _, d := range c.Days {
			if _, ok := weekdays[strings.ToLower(d)]; !ok {
				return fmt.Errorf("%w: unknown day %q", ErrValidation, d)
			}
		}
	case ConditionDeviceState:
		if c.Device == "" || c.Property == "" {
			return fmt.Errorf("%w: device_state condition needs device and property", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown condition type %q", ErrValidation, c.Type)
	}
	return nil
}

func validateActions(actions []Action, depth int, count *int) error {
	if depth > maxActionDepth {
		return fmt.Errorf("%w: conditionals nested deeper than %d", ErrValidation, maxActionDepth)
	}
	for i, a := range actions {
		*count++
		if *count > maxActions {
			return fmt.Errorf("%w: more than %d actions", ErrValidation, maxActions)
		}
		if err := validateAction(a, depth, count); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func validateAction(a Action, depth int, count *int) error {
	switch a.Type {
	case ActionDeviceSet:
		if a.Device == "" {
			return fmt.Errorf("%w: device_set needs a device", ErrValidation)
		}
		payload, ok := a.Payload.(map[string]any)
		if !ok || len(payload) == 0 {
			return fmt.Errorf("%w: device_set payload must be a non-empty object", ErrValidation)
		}
	case ActionMQTTPublish:
		if a.Topic == "" {
			return fmt.Errorf("%w: mqtt_publish needs a topic", ErrValidation)
		}
		if strings.ContainsAny(a.Topic, mqttWildcardChars) {
			return fmt.Errorf("%w: mqtt_publish topic %q contains a wildcard", ErrValidation, a.Topic)
		}
	case ActionDelay:
		if a.Seconds < 0 || a.Seconds > maxDelaySeconds {
			return fmt.Errorf("%w: delay must be between 0 and %d seconds", ErrValidation, maxDelaySeconds)
		}
	case ActionConditional:
		if a.Condition == nil {
			return fmt.Errorf("%w: conditional needs a condition", ErrValidation)
		}
		if err := validateCondition(*a.Condition); err != nil {
			return err
		}
		if err := validateActions(a.Then, depth+1, count); err != nil {
			return fmt.Errorf("then: %w", err)
		}
		if err := validateActions(a.Else, depth+1, count); err != nil {
			return fmt.Errorf("else: %w", err)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, a.Type)
	}
	return nil
}

// parseClock converts "HH:MM" to minutes past midnight.
func parseClock(s string) (int, error) {
	m := clockRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	return h*60 + mins, nil
}
