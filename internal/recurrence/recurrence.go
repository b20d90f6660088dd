// Package recurrence attaches simple repeat rules to stored events and
// computes their next due date.
//
// Stepping is delegated to rrule-go. Every rule is bounded by a COUNT of
// MaxSteps occurrences from the event's own date, so an event far in the
// past simply fails to produce a next_due instead of looping.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/store"
)

// MaxSteps caps how many occurrences are generated while looking for the
// first one after now.
const MaxSteps = 500

// Canonical frequency tokens.
const (
	FreqNone          = "none"
	FreqDaily         = "daily"
	FreqEveryOtherDay = "every_other_day"
	FreqWeekly        = "weekly"
	FreqBiweekly      = "biweekly"
	FreqWeekdays      = "weekdays"
	FreqWorkdays      = "workdays"
	FreqMonthly       = "monthly"
	FreqMonthlyOnDay  = "monthly_on_day"
	FreqCustom        = "custom"
)

var (
	ErrUnsupportedFrequency       = errors.New("unsupported frequency")
	ErrInvalidRecurrenceParameter = errors.New("invalid recurrence parameter")
	// ErrNoNextDue means no occurrence after now was found within MaxSteps,
	// or the event date could not be read.
	ErrNoNextDue = errors.New("next due date could not be computed")
)

var aliases = map[string]string{
	FreqNone:          FreqNone,
	"off":             FreqNone,
	FreqDaily:         FreqDaily,
	"every_day":       FreqDaily,
	FreqEveryOtherDay: FreqEveryOtherDay,
	FreqWeekly:        FreqWeekly,
	"every_week":      FreqWeekly,
	FreqBiweekly:      FreqBiweekly,
	"bi_weekly":       FreqBiweekly,
	"every_two_weeks": FreqBiweekly,
	"fortnightly":     FreqBiweekly,
	FreqWeekdays:      FreqWeekdays,
	FreqWorkdays:      FreqWorkdays,
	FreqMonthly:       FreqMonthly,
	"every_month":     FreqMonthly,
	FreqMonthlyOnDay:  FreqMonthlyOnDay,
	FreqCustom:        FreqCustom,
}

// NormalizeFrequency maps user input ("Every other day", "bi-weekly") to a
// canonical token.
func NormalizeFrequency(frequency string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(frequency))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	canon, ok := aliases[key]
	return canon, ok
}

// Outcome describes the result of Calculator.Set.
type Outcome struct {
	Event model.Event
	// Computed is false when the rule was stored but NextDue could not be
	// derived.
	Computed bool
}

// Calculator sets rules on events held by a store.
type Calculator struct {
	store *store.Store
	now   func() time.Time
}

// New returns a Calculator over s. A nil now uses time.Now.
func New(s *store.Store, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{store: s, now: now}
}

// Set attaches a rule to the most recently added event titled title and
// computes its next due date. A failed computation still keeps the rule.
func (c *Calculator) Set(title, frequency string, interval int) (Outcome, error) {
	ev, ok := c.store.FindLatestByTitle(title)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", store.ErrEventNotFound, title)
	}

	freq, ok := NormalizeFrequency(frequency)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, frequency)
	}
	if err := validateInterval(freq, interval); err != nil {
		return Outcome{}, err
	}

	if freq == FreqNone {
		updated, _ := c.store.Update(ev.ID, func(e *model.Event) {
			e.Recurrence = nil
			e.NextDue = ""
		})
		return Outcome{Event: updated, Computed: true}, nil
	}

	rule := &model.RecurrenceRule{Frequency: freq, Interval: interval}
	next, nextErr := NextDue(*rule, ev.Date, c.now())
	if nextErr != nil {
		appLog.Warn("recurrence: next due not computed", "title", ev.Title, "frequency", freq, "err", nextErr)
	}

	updated, _ := c.store.Update(ev.ID, func(e *model.Event) {
		e.Recurrence = rule
		e.NextDue = next
	})
	return Outcome{Event: updated, Computed: nextErr == nil}, nil
}

// Refresh recomputes NextDue for every recurring event whose NextDue is
// missing or no longer in the future. It returns how many events changed.
func (c *Calculator) Refresh() int {
	now := c.now()
	changed := 0
	for _, ev := range c.store.List() {
		if ev.Recurrence == nil || !isStale(ev.NextDue, now) {
			continue
		}
		next, err := NextDue(*ev.Recurrence, ev.Date, now)
		if err != nil {
			appLog.Debug("recurrence: refresh skipped", "title", ev.Title, "err", err)
			continue
		}
		if next == ev.NextDue {
			continue
		}
		if _, ok := c.store.Update(ev.ID, func(e *model.Event) { e.NextDue = next }); ok {
			changed++
		}
	}
	return changed
}

func isStale(nextDue string, now time.Time) bool {
	if nextDue == "" {
		return true
	}
	t, err := parseStored(nextDue, now.Location())
	if err != nil {
		return true
	}
	return !t.After(now)
}

func validateInterval(freq string, interval int) error {
	if freq == FreqMonthlyOnDay {
		if interval < 1 || interval > 31 {
			return fmt.Errorf("%w: day of month must be 1-31, got %d", ErrInvalidRecurrenceParameter, interval)
		}
		return nil
	}
	if interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidRecurrenceParameter, interval)
	}
	return nil
}

// NextDue returns the first occurrence of rule strictly after now, counting
// from base (the event's stored date). The result uses base's layout.
func NextDue(rule model.RecurrenceRule, base string, now time.Time) (string, error) {
	start, err := parseStored(base, now.Location())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoNextDue, err)
	}

	opt, err := options(rule, start)
	if err != nil {
		return "", err
	}
	opt.Dtstart = start
	opt.Count = MaxSteps

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoNextDue, err)
	}
	next := r.After(now, false)
	if next.IsZero() {
		return "", fmt.Errorf("%w: no occurrence within %d steps", ErrNoNextDue, MaxSteps)
	}

	if len(base) == len(model.DateLayout) {
		return next.Format(model.DateLayout), nil
	}
	return next.Format(model.DateTimeLayout), nil
}

// RRule renders rule as an iCalendar RRULE value (without DTSTART).
func RRule(rule model.RecurrenceRule) (string, bool) {
	if rule.Frequency == FreqNone {
		return "", false
	}
	opt, err := options(rule, time.Time{})
	if err != nil {
		return "", false
	}
	return opt.RRuleString(), true
}

// options builds the rrule option set for rule. Monthly rules starting on
// the 29th-31st land on the 28th so every month has an occurrence; this
// shifts those events earlier.
func options(rule model.RecurrenceRule, start time.Time) (rrule.ROption, error) {
	n := rule.Interval
	if n < 1 {
		n = 1
	}
	switch rule.Frequency {
	case FreqDaily, FreqCustom:
		return rrule.ROption{Freq: rrule.DAILY, Interval: n}, nil
	case FreqEveryOtherDay:
		return rrule.ROption{Freq: rrule.DAILY, Interval: 2 * n}, nil
	case FreqWeekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Interval: n}, nil
	case FreqBiweekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Interval: 2 * n}, nil
	case FreqWeekdays, FreqWorkdays:
		return rrule.ROption{
			Freq:      rrule.DAILY,
			Interval:  1,
			Byweekday: []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR},
		}, nil
	case FreqMonthly:
		opt := rrule.ROption{Freq: rrule.MONTHLY, Interval: n}
		if !start.IsZero() && start.Day() > 28 {
			opt.Bymonthday = []int{28}
		}
		return opt, nil
	case FreqMonthlyOnDay:
		return rrule.ROption{Freq: rrule.MONTHLY, Interval: 1, Bymonthday: []int{rule.Interval}}, nil
	}
	return rrule.ROption{}, fmt.Errorf("%w: %q", ErrUnsupportedFrequency, rule.Frequency)
}

func parseStored(value string, loc *time.Location) (time.Time, error) {
	layout := model.DateTimeLayout
	if len(value) == len(model.DateLayout) {
		layout = model.DateLayout
	}
	return time.ParseInLocation(layout, value, loc)
}
