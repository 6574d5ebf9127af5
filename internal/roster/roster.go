// Package roster answers "how many employees are there" for components
// that need a denominator, such as survey response rates.
package roster

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no headcount is known.
var ErrUnavailable = errors.New("headcount unavailable")

// Headcounter reports the current number of employees.
type Headcounter interface {
	Headcount(ctx context.Context) (int, error)
}

// Static is a fixed headcount, typically taken from configuration.
type Static int

func (s Static) Headcount(context.Context) (int, error) {
	if s <= 0 {
		return 0, ErrUnavailable
	}
	return int(s), nil
}

// Func adapts a function to Headcounter.
type Func func(ctx context.Context) (int, error)

func (f Func) Headcount(ctx context.Context) (int, error) {
	return f(ctx)
}
