package timetrack

import "fmt"

// Code identifies the rule that rejected an action.
type Code string

const (
	CodeSessionOpen   Code = "session_already_open"
	CodeNoOpenSession Code = "no_open_session"
	CodeNotActive     Code = "session_not_active"
	CodeNotOnLunch    Code = "not_on_lunch"
	CodeLunchTaken    Code = "lunch_already_taken"
	CodeRestPeriod    Code = "rest_period"
	CodeLunchWindow   Code = "outside_lunch_window"
	CodeLunchTooLong  Code = "lunch_too_long"
	CodeDailyCap      Code = "daily_cap_exceeded"
	CodeWeeklyCap     Code = "weekly_cap_exceeded"
	CodeOutOfOrder    Code = "out_of_order"
)

// Outcome is the result of a single rule check. A failed outcome always
// carries a Code; Minutes and Limit hold the rule-specific quantities
// (remaining rest, lunch length, projected total) in whole minutes.
type Outcome struct {
	Valid   bool   `json:"valid"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Pass is the outcome of a satisfied rule.
func Pass() Outcome {
	return Outcome{Valid: true}
}

func violation(code Code, minutes, limit int, format string, args ...any) Outcome {
	return Outcome{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Minutes: minutes,
		Limit:   limit,
	}
}

// Failures filters outcomes down to the failed ones.
func Failures(outcomes ...Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if !o.Valid {
			out = append(out, o)
		}
	}
	return out
}
