package analytics

import (
	"errors"
	"fmt"
)

// InsufficientDataError reports that a series is too short for a requested
// statistic. Always recoverable: the caller degrades the specific field to
// unavailable instead of fabricating a value.
type InsufficientDataError struct {
	Need int
	Got  int
	What string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d points, got %d", e.What, e.Need, e.Got)
}

// RegressionError reports degenerate input to an OLS fit.
type RegressionError struct {
	Reason string
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("regression failed: %s", e.Reason)
}

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsRegressionError reports whether err is a RegressionError.
func IsRegressionError(err error) bool {
	var target *RegressionError
	return errors.As(err, &target)
}
