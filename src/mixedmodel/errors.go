package mixedmodel

import "fmt"

// DomainError reports an input value outside the model's domain, e.g. a
// non-positive dose fed to the log transform.
type DomainError struct {
	Field string
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain: %s=%v is outside the model domain", e.Field, e.Value)
}

// ConvergenceError reports a mixed-model fit that did not converge, or a
// fit whose design turned out singular.
type ConvergenceError struct {
	Reason string
	Err    error
}

func (e *ConvergenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mixed model did not converge: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("mixed model did not converge: %s", e.Reason)
}

func (e *ConvergenceError) Unwrap() error { return e.Err }
