// Package planner turns a goal and an optional deadline into a milestone
// plan.
//
// Generator is implemented by Heuristic (deterministic, always available)
// and by LLM (an Ollama-compatible /api/generate endpoint). Fallback wires
// the two together so callers never see the delegate fail.
package planner

import (
	"context"
	"errors"
	"time"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
)

// ErrUnavailable is returned by a delegate that cannot produce a plan.
var ErrUnavailable = errors.New("plan generator unavailable")

// Generator produces a plan for goal. deadline may be empty.
type Generator interface {
	Generate(ctx context.Context, goal, deadline string) (model.Plan, error)
}

// Fallback tries Delegate first and uses Heuristic whenever the delegate is
// nil or fails for any reason.
type Fallback struct {
	Delegate  Generator
	Heuristic *Heuristic
	// Timeout bounds a single delegate call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds delegate calls when Fallback.Timeout is unset.
const DefaultTimeout = 20 * time.Second

// NewFallback returns a Fallback around delegate. A nil delegate means the
// heuristic always runs.
func NewFallback(delegate Generator, heuristic *Heuristic, timeout time.Duration) *Fallback {
	if heuristic == nil {
		heuristic = NewHeuristic(nil)
	}
	return &Fallback{Delegate: delegate, Heuristic: heuristic, Timeout: timeout}
}

// Generate never returns an error: delegate failures are logged and
// absorbed.
func (f *Fallback) Generate(ctx context.Context, goal, deadline string) (model.Plan, error) {
	if f.Delegate != nil {
		timeout := f.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		plan, err := f.Delegate.Generate(callCtx, goal, deadline)
		cancel()
		if err == nil {
			return plan, nil
		}
		appLog.Warn("planner: delegate failed, using heuristic", "goal", appLog.Truncate(goal, 60), "err", err)
	}
	return f.Heuristic.Generate(ctx, goal, deadline)
}
