package pricing

import "fmt"

// InvalidAttributeError reports a vehicle attribute outside the domain of the
// pricing formula. Raw holds the submitted text when it could not be parsed
// as a number at all.
type InvalidAttributeError struct {
	Field  string
	Value  float64
	Raw    string
	Reason string
}

func (e *InvalidAttributeError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Raw, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// NotANumber reports field text that does not parse as a number.
func NotANumber(field, raw string) *InvalidAttributeError {
	return &InvalidAttributeError{Field: field, Raw: raw, Reason: "must be a number"}
}
