package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrConfiguration marks structural problems in the formula/design setup:
	// a constraint component with no matching design column, or an inclusion
	// column with no coefficient partner. Fatal and never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrDataLoad marks missing or malformed inputs: no artifact matching a
	// namespace, or a worksheet without a sample label.
	ErrDataLoad = errors.New("data load error")

	// Validation errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrUnknownLevel     = fmt.Errorf("%w: unknown factor level", ErrConfiguration)
	ErrDuplicateTerm    = fmt.Errorf("%w: duplicate design term", ErrConfiguration)
	ErrMissingTerm      = fmt.Errorf("%w: component term has no design column", ErrConfiguration)
	ErrUnpairedColumn   = fmt.Errorf("%w: inclusion column has no coefficient column", ErrConfiguration)

	// Load errors
	ErrArtifactNotFound = fmt.Errorf("%w: artifact not found", ErrDataLoad)
	ErrNoSampleLabel    = fmt.Errorf("%w: no non-blank sample label", ErrDataLoad)
)

// Error constructors with context
func NewConfigurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func NewMissingTermError(term, component string) error {
	return fmt.Errorf("%w: %q required by %q", ErrMissingTerm, component, term)
}

func NewUnpairedColumnError(indicator, coefficient string) error {
	return fmt.Errorf("%w: %q expects %q", ErrUnpairedColumn, indicator, coefficient)
}

func NewArtifactNotFoundError(dir, pattern string) error {
	return fmt.Errorf("%w: no file matching %s in %s", ErrArtifactNotFound, pattern, dir)
}

func NewNoSampleLabelError(path, sheet, column string) error {
	return fmt.Errorf("%w: %s sheet %q column %s", ErrNoSampleLabel, path, sheet, column)
}

// ConvergenceWarning is an advisory sampler diagnostic. It never aborts a run.
type ConvergenceWarning struct {
	Parameter string `json:"parameter"`
	Reason    string `json:"reason"`
}

func (w ConvergenceWarning) String() string {
	return fmt.Sprintf("convergence warning for %s: %s", w.Parameter, w.Reason)
}

// Error checking helpers
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsDataLoadError(err error) bool {
	return errors.Is(err, ErrDataLoad)
}
