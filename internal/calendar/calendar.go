// Package calendar is the text-facing layer over the event store: every
// method returns the human-readable status line a chat user or tool caller
// sees.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/recurrence"
	"chatcal/internal/store"
)

const (
	MsgNoEvents      = "No events scheduled."
	MsgInvalidDate   = "Invalid date format. Use YYYY-MM-DD or YYYY-MM-DD HH:MM."
	milestoneAddedOK = "Event added:"
)

// Service owns the store and the recurrence calculator for one calendar.
type Service struct {
	store *store.Store
	recur *recurrence.Calculator
}

// New returns a Service over s. A nil now uses time.Now.
func New(s *store.Store, now func() time.Time) *Service {
	return &Service{store: s, recur: recurrence.New(s, now)}
}

// Store exposes the underlying store for export and import.
func (s *Service) Store() *store.Store { return s.store }

// Recurrence exposes the calculator for the scheduler.
func (s *Service) Recurrence() *recurrence.Calculator { return s.recur }

// AddEvent adds an event and reports the outcome as text.
func (s *Service) AddEvent(title, date, description, end string) string {
	_, msg, _ := s.add(title, date, description, end)
	return msg
}

func (s *Service) add(title, date, description, end string) (model.Event, string, error) {
	ev, err := s.store.Add(strings.TrimSpace(title), date, strings.TrimSpace(description), end)
	if err != nil {
		return model.Event{}, MsgInvalidDate, err
	}
	if ev.End != "" {
		return ev, fmt.Sprintf("Event '%s' added for %s until %s.", ev.Title, ev.Date, ev.End), nil
	}
	return ev, fmt.Sprintf("Event '%s' added for %s.", ev.Title, ev.Date), nil
}

// ViewEvents lists every event sorted by date.
func (s *Service) ViewEvents() string {
	events := s.store.List()
	if len(events) == 0 {
		return MsgNoEvents
	}
	var b strings.Builder
	b.WriteString("Calendar Events:\n")
	for _, ev := range events {
		writeLine(&b, ev, false)
	}
	return b.String()
}

// EventsOn lists the events stored under exactly date.
func (s *Service) EventsOn(date string) string {
	events := s.store.ListByDate(date)
	if len(events) == 0 {
		return fmt.Sprintf("No events found for %s.", date)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Events on %s:\n", date)
	for _, ev := range events {
		writeLine(&b, ev, false)
	}
	return b.String()
}

// Summarize renders the upcoming-events summary.
func (s *Service) Summarize() string {
	events := s.store.List()
	if len(events) == 0 {
		return MsgNoEvents
	}
	var b strings.Builder
	b.WriteString("Upcoming Events Summary:\n")
	for _, ev := range events {
		writeLine(&b, ev, true)
	}
	return b.String()
}

// DeleteEvent removes every event titled title (case-insensitive).
func (s *Service) DeleteEvent(title string) string {
	title = strings.TrimSpace(title)
	if n := s.store.Delete(title); n > 0 {
		appLog.Debug("calendar: events deleted", "title", title, "count", n)
		return fmt.Sprintf("Event '%s' deleted.", title)
	}
	return fmt.Sprintf("No event found with title '%s'.", title)
}

// SetRecurrence attaches a repeat rule to the latest event titled title.
func (s *Service) SetRecurrence(title, frequency string, interval int) string {
	out, err := s.recur.Set(title, frequency, interval)
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		return fmt.Sprintf("No event found with title '%s'.", title)
	case errors.Is(err, recurrence.ErrUnsupportedFrequency):
		return fmt.Sprintf("Unsupported frequency '%s'. Use one of: none, daily, every_other_day, weekly, biweekly, weekdays, monthly, monthly_on_day, custom.", frequency)
	case errors.Is(err, recurrence.ErrInvalidRecurrenceParameter):
		return fmt.Sprintf("Invalid recurrence parameter: %s.", strings.TrimPrefix(err.Error(), recurrence.ErrInvalidRecurrenceParameter.Error()+": "))
	case err != nil:
		return fmt.Sprintf("Could not set recurrence: %v.", err)
	}

	ev := out.Event
	if ev.Recurrence == nil {
		return fmt.Sprintf("Recurrence for '%s' cleared.", ev.Title)
	}
	rule := describeRule(*ev.Recurrence)
	if !out.Computed {
		return fmt.Sprintf("Recurrence for '%s' set to %s, but the next due date could not be computed.", ev.Title, rule)
	}
	return fmt.Sprintf("Recurrence for '%s' set to %s. Next due: %s.", ev.Title, rule, ev.NextDue)
}

// CreateTasks turns each plan milestone into an event. Milestones without
// a title or a usable due date are skipped and counted; the rest are still
// created.
func (s *Service) CreateTasks(plan model.Plan) (created, skipped int) {
	for _, m := range plan.Milestones {
		title := strings.TrimSpace(m.Title)
		if title == "" || strings.TrimSpace(m.Due) == "" {
			skipped++
			continue
		}
		ev, msg, err := s.add(title, m.Due, strings.Join(m.Steps, "; "), "")
		if err != nil {
			skipped++
			continue
		}
		created++
		// add reports "Event '<title>' added for ...", which never carries
		// this prefix, so the flag stays unset.
		if strings.HasPrefix(msg, milestoneAddedOK) {
			s.store.Update(ev.ID, func(e *model.Event) { e.Milestone = true })
		}
	}
	appLog.Info("calendar: plan tasks created", "goal", appLog.Truncate(plan.Goal, 60), "created", created, "skipped", skipped)
	return created, skipped
}

// Import adds one event read from an external calendar and, when frequency
// is set, attaches its recurrence. A rule that cannot be applied keeps the
// event without one.
func (s *Service) Import(title, date, description, end, frequency string, interval int) error {
	ev, err := s.store.Add(strings.TrimSpace(title), date, strings.TrimSpace(description), end)
	if err != nil {
		return err
	}
	if frequency == "" {
		return nil
	}
	if _, err := s.recur.Set(ev.Title, frequency, interval); err != nil {
		appLog.Warn("calendar: imported recurrence dropped", "title", ev.Title, "frequency", frequency, "err", err)
	}
	return nil
}

// CreateTasksMessage formats CreateTasks counts.
func CreateTasksMessage(created, skipped int) string {
	return fmt.Sprintf("Created %d milestone event(s). Skipped %d.", created, skipped)
}

func writeLine(b *strings.Builder, ev model.Event, summary bool) {
	when := ev.Date
	if ev.End != "" {
		when += " to " + ev.End
	}
	fmt.Fprintf(b, "- %s: %s", when, ev.Title)
	if ev.Description != "" {
		if summary {
			fmt.Fprintf(b, " (%s)", ev.Description)
		} else {
			fmt.Fprintf(b, " - %s", ev.Description)
		}
	}
	if ev.Recurrence != nil {
		fmt.Fprintf(b, " [repeats %s", describeRule(*ev.Recurrence))
		if ev.NextDue != "" {
			fmt.Fprintf(b, ", next %s", ev.NextDue)
		}
		b.WriteString("]")
	}
	b.WriteString("\n")
}

func describeRule(r model.RecurrenceRule) string {
	switch {
	case r.Frequency == recurrence.FreqMonthlyOnDay:
		return fmt.Sprintf("monthly on day %d", r.Interval)
	case r.Interval > 1:
		return fmt.Sprintf("%s (interval %d)", r.Frequency, r.Interval)
	default:
		return r.Frequency
	}
}
