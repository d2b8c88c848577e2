package session

import (
	"fmt"
	"strings"

	"weekplanner/internal/model"
	"weekplanner/internal/week"
)

// SpanPolicy decides what the form boundary does with end <= start.
type SpanPolicy string

const (
	// SpanReject refuses reversed and empty spans.
	SpanReject SpanPolicy = "reject"
	// SpanAllow stores them as entered; the grid renders the raw difference.
	SpanAllow SpanPolicy = "allow"
)

// ParseSpanPolicy maps a config value onto a policy. Empty means SpanReject.
func ParseSpanPolicy(s string) (SpanPolicy, error) {
	switch SpanPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", SpanReject:
		return SpanReject, nil
	case SpanAllow:
		return SpanAllow, nil
	default:
		return "", fmt.Errorf("unknown span policy %q", s)
	}
}

// ValidationError reports a rejected form field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Form is the raw editor input, exactly as typed.
type Form struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Day is the column index within the selected week, Sunday = 0;
	// NoDay when unset.
	Day       int    `json:"day"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// NoDay marks a form whose day has not been chosen.
const NoDay = -1

// validated is a Form that passed the boundary checks.
type validated struct {
	title       string
	description string
	day         int
	start       model.TimeOfDay
	end         model.TimeOfDay
}

func validate(f Form, policy SpanPolicy) (validated, error) {
	var v validated

	v.title = strings.TrimSpace(f.Title)
	if v.title == "" {
		return v, &ValidationError{Field: "title", Reason: "required"}
	}
	if f.Day < 0 || f.Day >= week.DaysPerWeek {
		return v, &ValidationError{Field: "day", Reason: fmt.Sprintf("must be 0-6, got %d", f.Day)}
	}
	v.day = f.Day

	start, err := model.ParseTimeOfDay(f.StartTime)
	if err != nil {
		return v, &ValidationError{Field: "startTime", Reason: err.Error()}
	}
	end, err := model.ParseTimeOfDay(f.EndTime)
	if err != nil {
		return v, &ValidationError{Field: "endTime", Reason: err.Error()}
	}
	if policy != SpanAllow && end <= start {
		return v, &ValidationError{Field: "endTime", Reason: fmt.Sprintf("must be after start %s", start)}
	}
	v.start, v.end = start, end
	v.description = strings.TrimSpace(f.Description)
	return v, nil
}
