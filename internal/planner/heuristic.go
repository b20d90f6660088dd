package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatcal/internal/dateparse"
	"chatcal/internal/model"
)

// DefaultHorizonDays is used when no usable deadline is given.
const DefaultHorizonDays = 30

var genericSteps = []string{
	"Research what is needed and outline the work",
	"Complete the core tasks for this stage",
	"Review progress and adjust the plan",
}

// Heuristic builds evenly spaced milestones from the time left until the
// deadline.
type Heuristic struct {
	now func() time.Time
}

// NewHeuristic returns a Heuristic; a nil now uses time.Now.
func NewHeuristic(now func() time.Time) *Heuristic {
	if now == nil {
		now = time.Now
	}
	return &Heuristic{now: now}
}

func (h *Heuristic) Generate(_ context.Context, goal, deadline string) (model.Plan, error) {
	now := h.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	due, ok := resolveDeadline(deadline, now)
	if !ok {
		due = today.AddDate(0, 0, DefaultHorizonDays)
	}

	totalDays := daysBetween(today, due)
	if totalDays < 1 {
		totalDays = 1
	}
	count := milestoneCount(totalDays)
	spacing := totalDays / count
	if spacing < 1 {
		spacing = 1
	}

	short := leadingWords(goal, 3)
	milestones := make([]model.Milestone, 0, count)
	for i := 1; i <= count; i++ {
		steps := make([]string, len(genericSteps))
		copy(steps, genericSteps)
		milestones = append(milestones, model.Milestone{
			Title: fmt.Sprintf("Milestone %d: %s", i, short),
			Due:   today.AddDate(0, 0, i*spacing).Format(model.DateLayout),
			Steps: steps,
		})
	}

	return model.Plan{
		Goal:               goal,
		Deadline:           due.Format(model.DateLayout),
		EstimatedDays:      totalDays,
		Milestones:         milestones,
		CadenceSuggestions: cadenceFor(totalDays),
	}, nil
}

func milestoneCount(days int) int {
	switch {
	case days <= 14:
		return 3
	case days <= 60:
		return 4
	case days <= 180:
		return 5
	default:
		return 6
	}
}

func cadenceFor(days int) []string {
	switch {
	case days <= 14:
		return []string{"daily", "every_other_day"}
	case days <= 60:
		return []string{"every_other_day", "weekly"}
	default:
		return []string{"weekly", "biweekly"}
	}
}

// resolveDeadline accepts YYYY-MM-DD, a stored date-time, or anything the
// chat date parser understands ("March 5", "tomorrow").
func resolveDeadline(deadline string, now time.Time) (time.Time, bool) {
	deadline = strings.TrimSpace(deadline)
	if deadline == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(model.DateLayout, deadline, now.Location()); err == nil {
		return t, true
	}
	m, ok := dateparse.Find(deadline, now)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(model.DateLayout, m.Date(), now.Location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// daysBetween counts calendar days, ignoring DST-length days.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func leadingWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	if len(words) == 0 {
		return "your goal"
	}
	return strings.Join(words, " ")
}
