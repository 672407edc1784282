package anga

import (
	"fmt"
	"math"

	"github.com/zapponejosh/panchaanga-api/internal/julian"
)

const (
	// Tolerance is the width, in days, at which bisection stops.
	Tolerance = 1e-6
	// MaxIterations bounds the bisection loop.
	MaxIterations = 100
)

// AngleFunc returns a value in [0, cycle) that grows monotonically modulo
// cycle.
type AngleFunc func(jd julian.Day) (float64, error)

// BracketError reports a bracket that does not contain the crossing.
type BracketError struct {
	Target float64
	Lo, Hi julian.Day
	ResLo  float64
	ResHi  float64
}

func (e *BracketError) Error() string {
	return fmt.Sprintf("crossing of %.4f not bracketed by [%.6f, %.6f] (residuals %.4f, %.4f)",
		e.Target, float64(e.Lo), float64(e.Hi), e.ResLo, e.ResHi)
}

// ConvergenceError reports that bisection hit MaxIterations.
type ConvergenceError struct {
	Target float64
	Lo, Hi julian.Day
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("crossing of %.4f did not converge in %d iterations, last bracket [%.8f, %.8f]",
		e.Target, MaxIterations, float64(e.Lo), float64(e.Hi))
}

// residual returns fn(jd) - target normalized into [-cycle/2, cycle/2):
// negative means the target is still ahead.
func residual(fn AngleFunc, jd julian.Day, target, cycle float64) (float64, error) {
	v, err := fn(jd)
	if err != nil {
		return 0, err
	}
	r := math.Mod(v-target, cycle)
	if r < 0 {
		r += cycle
	}
	if r >= cycle/2 {
		r -= cycle
	}
	return r, nil
}

// FindCrossing returns the first instant in [lo, hi] at which fn reaches
// target, to within Tolerance. Targets 0 and cycle name the same boundary.
// fn must not advance by more than half a cycle across the bracket.
func FindCrossing(fn AngleFunc, target, cycle float64, lo, hi julian.Day) (julian.Day, error) {
	rLo, err := residual(fn, lo, target, cycle)
	if err != nil {
		return 0, err
	}
	rHi, err := residual(fn, hi, target, cycle)
	if err != nil {
		return 0, err
	}
	if rLo >= 0 || rHi < 0 {
		return 0, &BracketError{Target: target, Lo: lo, Hi: hi, ResLo: rLo, ResHi: rHi}
	}

	for i := 0; hi-lo > Tolerance; i++ {
		if i >= MaxIterations {
			return 0, &ConvergenceError{Target: target, Lo: lo, Hi: hi}
		}
		mid := lo + (hi-lo)/2
		r, err := residual(fn, mid, target, cycle)
		if err != nil {
			return 0, err
		}
		if r < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}
