package calendar

import (
	"strings"
	"testing"
	"time"

	"chatcal/internal/model"
	"chatcal/internal/store"
)

var fixedNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

func newService() *Service {
	return New(store.New(), func() time.Time { return fixedNow })
}

func TestAddEventMessages(t *testing.T) {
	s := newService()
	if got := s.AddEvent("Dentist", "2026-03-05", "", ""); got != "Event 'Dentist' added for 2026-03-05." {
		t.Fatalf("got %q", got)
	}
	if got := s.AddEvent("Standup", "2026-03-05 09:00", "", "09:15"); got != "Event 'Standup' added for 2026-03-05T09:00 until 2026-03-05T09:15." {
		t.Fatalf("got %q", got)
	}
	if got := s.AddEvent("Bad", "03-05-2026", "", ""); got != MsgInvalidDate {
		t.Fatalf("got %q", got)
	}
	if s.Store().Len() != 2 {
		t.Fatalf("len = %d", s.Store().Len())
	}
}

func TestViewAndSummary(t *testing.T) {
	s := newService()
	if s.ViewEvents() != MsgNoEvents || s.Summarize() != MsgNoEvents {
		t.Fatal("expected empty messages")
	}
	s.AddEvent("Later", "2026-05-01", "desc", "")
	s.AddEvent("Sooner", "2026-04-01", "", "")

	want := "Calendar Events:\n- 2026-04-01: Sooner\n- 2026-05-01: Later - desc\n"
	if got := s.ViewEvents(); got != want {
		t.Fatalf("view:\n%s", got)
	}
	want = "Upcoming Events Summary:\n- 2026-04-01: Sooner\n- 2026-05-01: Later (desc)\n"
	if got := s.Summarize(); got != want {
		t.Fatalf("summary:\n%s", got)
	}
}

func TestEventsOn(t *testing.T) {
	s := newService()
	s.AddEvent("Lunch", "2026-04-01", "", "")
	if got := s.EventsOn("2026-04-01"); got != "Events on 2026-04-01:\n- 2026-04-01: Lunch\n" {
		t.Fatalf("got %q", got)
	}
	if got := s.EventsOn("2026-04-02"); got != "No events found for 2026-04-02." {
		t.Fatalf("got %q", got)
	}
}

func TestDeleteEvent(t *testing.T) {
	s := newService()
	s.AddEvent("Gym", "2026-04-01", "", "")
	s.AddEvent("gym", "2026-04-03", "", "")
	if got := s.DeleteEvent("GYM"); got != "Event 'GYM' deleted." {
		t.Fatalf("got %q", got)
	}
	if got := s.DeleteEvent("Gym"); got != "No event found with title 'Gym'." {
		t.Fatalf("got %q", got)
	}
}

func TestSetRecurrenceMessages(t *testing.T) {
	s := newService()
	s.AddEvent("Gym", "2026-01-05", "", "")

	if got := s.SetRecurrence("Gym", "weekly", 1); got != "Recurrence for 'Gym' set to weekly. Next due: 2026-01-12." {
		t.Fatalf("got %q", got)
	}
	if got := s.ViewEvents(); !strings.Contains(got, "[repeats weekly, next 2026-01-12]") {
		t.Fatalf("view missing recurrence: %q", got)
	}
	if got := s.SetRecurrence("Gym", "hourly", 1); !strings.HasPrefix(got, "Unsupported frequency 'hourly'.") {
		t.Fatalf("got %q", got)
	}
	if got := s.SetRecurrence("Gym", "custom", 0); got != "Invalid recurrence parameter: interval must be at least 1, got 0." {
		t.Fatalf("got %q", got)
	}
	if got := s.SetRecurrence("Swim", "daily", 1); got != "No event found with title 'Swim'." {
		t.Fatalf("got %q", got)
	}
	if got := s.SetRecurrence("Gym", "none", 1); got != "Recurrence for 'Gym' cleared." {
		t.Fatalf("got %q", got)
	}
}

func TestCreateTasksPartialFailure(t *testing.T) {
	s := newService()
	plan := model.Plan{
		Goal: "ship",
		Milestones: []model.Milestone{
			{Title: "Draft", Due: "2026-02-01", Steps: []string{"outline", "write"}},
			{Title: "Review"},
			{Title: "", Due: "2026-02-10"},
			{Title: "Publish", Due: "soon"},
		},
	}
	created, skipped := s.CreateTasks(plan)
	if created != 1 || skipped != 3 {
		t.Fatalf("created=%d skipped=%d", created, skipped)
	}
	if got := CreateTasksMessage(created, skipped); got != "Created 1 milestone event(s). Skipped 3." {
		t.Fatalf("got %q", got)
	}

	events := s.Store().List()
	if len(events) != 1 || events[0].Description != "outline; write" {
		t.Fatalf("events %+v", events)
	}
}

// The milestone flag depends on an "Event added:" status prefix that the
// add path never produces, so created milestones stay unflagged.
func TestCreateTasksMilestoneFlagNeverSet(t *testing.T) {
	s := newService()
	s.CreateTasks(model.Plan{Milestones: []model.Milestone{{Title: "Draft", Due: "2026-02-01"}}})
	events := s.Store().List()
	if len(events) != 1 {
		t.Fatalf("events %+v", events)
	}
	if events[0].Milestone {
		t.Fatal("milestone flag set; status prefix check now matches, update this test")
	}
}
