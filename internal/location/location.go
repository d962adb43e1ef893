// Package location captures a device position for attendance checks.
//
// Capture never returns an error: every failure mode (permission denied,
// provider error, timeout, cancellation) is folded into a failed Result so the
// GPS policy can decide what to do with it.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single capture when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Fix is a captured position.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"` // meters
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of a capture attempt.
type Result struct {
	Success bool   `json:"success"`
	Fix     *Fix   `json:"fix,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failed builds a failed result.
func Failed(reason string) Result {
	return Result{Error: reason}
}

// Succeeded builds a successful result.
func Succeeded(f Fix) Result {
	return Result{Success: true, Fix: &f}
}

// Provider is the device location collaborator.
type Provider interface {
	RequestPermission(ctx context.Context) (bool, error)
	CaptureCurrentLocation(ctx context.Context) (Fix, error)
}

// Capture errors
var (
	// ErrPermissionDenied indicates the user refused location access
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrNoFix indicates the provider has no position to report
	ErrNoFix = errors.New("no location fix available")

	// ErrTimeout indicates the capture did not complete in time
	ErrTimeout = errors.New("location capture timed out")
)

// Capture asks for permission and a position, bounded by timeout. A nil
// provider yields a failed result.
func Capture(ctx context.Context, p Provider, timeout time.Duration) Result {
	if p == nil {
		return Failed(ErrNoFix.Error())
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		fix Fix
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		granted, err := p.RequestPermission(ctx)
		if err != nil {
			done <- outcome{err: fmt.Errorf("request permission: %w", err)}
			return
		}
		if !granted {
			done <- outcome{err: ErrPermissionDenied}
			return
		}
		fix, err := p.CaptureCurrentLocation(ctx)
		done <- outcome{fix: fix, err: err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		return contextFailure(ctx.Err())
	case o = <-done:
	}

	if o.err != nil {
		if ctx.Err() != nil {
			return contextFailure(ctx.Err())
		}
		return Failed(o.err.Error())
	}
	if o.fix.Timestamp.IsZero() {
		o.fix.Timestamp = time.Now().UTC()
	}
	return Succeeded(o.fix)
}

func contextFailure(err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failed(ErrTimeout.Error())
	}
	return Failed(fmt.Sprintf("location capture cancelled: %v", err))
}

// Static is a provider that always reports the same thing. A nil Fix means
// the device has no position.
type Static struct {
	Fix    *Fix
	Denied bool
}

func (s Static) RequestPermission(context.Context) (bool, error) {
	return !s.Denied, nil
}

func (s Static) CaptureCurrentLocation(context.Context) (Fix, error) {
	if s.Fix == nil {
		return Fix{}, ErrNoFix
	}
	return *s.Fix, nil
}

// Func adapts a function to a Provider that never needs permission.
type Func func(ctx context.Context) (Fix, error)

func (f Func) RequestPermission(context.Context) (bool, error) {
	return true, nil
}

func (f Func) CaptureCurrentLocation(ctx context.Context) (Fix, error) {
	return f(ctx)
}
