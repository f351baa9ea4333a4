package agent

import (
	"fmt"
	"math"
)

// ResultType names a Result variant.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultError   ResultType = "error"
	ResultPartial ResultType = "partial"
)

// Result is the outcome of a task: Success, Failure or Partial.
// A task reports any number of Partial results followed by exactly one
// Success or Failure.
type Result interface {
	Kind() ResultType

	// Terminal reports whether the result ends its task.
	Terminal() bool

	// Text returns the human-readable message carried by the result.
	Text() string

	Validate() error

	isResult()
}

// Success is the terminal result of a task that completed.
type Success struct {
	Message string
}

// Failure is the terminal result of a task whose work failed. It is a
// caller-visible outcome, never a contract violation.
type Failure struct {
	Message string
}

// Partial reports in-flight progress in [0, 1].
type Partial struct {
	Message  string
	Progress float64
}

func (Success) isResult() {}
func (Failure) isResult() {}
func (Partial) isResult() {}

func (Success) Kind() ResultType { return ResultSuccess }
func (Failure) Kind() ResultType { return ResultError }
func (Partial) Kind() ResultType { return ResultPartial }

func (Success) Terminal() bool { return true }
func (Failure) Terminal() bool { return true }
func (Partial) Terminal() bool { return false }

func (r Success) Text() string { return r.Message }
func (r Failure) Text() string { return r.Message }
func (r Partial) Text() string { return r.Message }

func (Success) Validate() error { return nil }
func (Failure) Validate() error { return nil }

func (r Partial) Validate() error {
	return checkProgress(r.Progress)
}

// Failuref formats a Failure result.
func Failuref(format string, args ...any) Failure {
	return Failure{Message: fmt.Sprintf(format, args...)}
}

// NewPartial builds a Partial result, rejecting progress outside [0, 1].
func NewPartial(message string, progress float64) (Partial, error) {
	if err := checkProgress(progress); err != nil {
		return Partial{}, err
	}
	return Partial{Message: message, Progress: progress}, nil
}

func checkProgress(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidProgress, p)
	}
	return nil
}
