package scheduler

import (
	"testing"
	"time"

	"chatcal/internal/model"
	"chatcal/internal/recurrence"
	"chatcal/internal/store"
)

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("every now and then", recurrence.New(store.New(), nil)); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRunOnceAdvancesStaleNextDue(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	st := store.New()
	calc := recurrence.New(st, clock)
	ev, err := st.Add("Gym", "2026-01-01", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := calc.Set("Gym", "weekly", 1); err != nil {
		t.Fatal(err)
	}
	if got, _ := st.FindLatestByTitle("Gym"); got.NextDue != "2026-01-08" {
		t.Fatalf("next due = %q", got.NextDue)
	}

	s, err := New("*/5 * * * *", calc)
	if err != nil {
		t.Fatal(err)
	}
	if n := s.RunOnce(); n != 0 {
		t.Fatalf("fresh next_due changed: %d", n)
	}

	now = now.AddDate(0, 0, 10)
	if n := s.RunOnce(); n != 1 {
		t.Fatalf("changed = %d", n)
	}
	got, _ := st.Update(ev.ID, func(*model.Event) {})
	if got.NextDue != "2026-01-22" {
		t.Fatalf("next due = %q", got.NextDue)
	}
	if s.Runs() != 2 {
		t.Fatalf("runs = %d", s.Runs())
	}
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", recurrence.New(store.New(), nil))
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not complete")
	}
}
