package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"chatcal/internal/calendar"
	"chatcal/internal/chat"
	"chatcal/internal/ics"
	"chatcal/internal/planner"
	"chatcal/internal/session"
	"chatcal/internal/store"
)

var fixedNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type stubFetcher struct {
	body []byte
	err  error
	urls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (ics.FetchResult, error) {
	f.urls = append(f.urls, url)
	return ics.FetchResult{Body: f.body}, f.err
}

func newDispatcher(t *testing.T, fetcher Fetcher) (*Dispatcher, *store.Store) {
	t.Helper()
	st := store.New()
	cal := calendar.New(st, clock)
	gen := planner.NewFallback(nil, planner.NewHeuristic(clock), time.Second)
	d := NewDispatcher(Options{
		Calendar:  cal,
		Assistant: chat.New(cal, session.NewManager(), gen, clock),
		Planner:   gen,
		Fetcher:   fetcher,
		Now:       clock,
	})
	return d, st
}

func call(d *Dispatcher, name string, in map[string]any) Result {
	return d.Call(context.Background(), name, in)
}

func TestAddViewDelete(t *testing.T) {
	d, _ := newDispatcher(t, nil)

	res := call(d, AddEvent, map[string]any{"title": "Dentist", "date": "2026-03-05", "description": "checkup"})
	if res.Kind != KindText || res.Text != "Event 'Dentist' added for 2026-03-05." {
		t.Fatalf("add: %+v", res)
	}
	res = call(d, AddEvent, map[string]any{"title": "Bad", "date": "March"})
	if res.Kind != KindText || res.Text != calendar.MsgInvalidDate {
		t.Fatalf("invalid add: %+v", res)
	}
	if res := call(d, ViewEvents, nil); res.Text != "Calendar Events:\n- 2026-03-05: Dentist - checkup\n" {
		t.Fatalf("view: %q", res.Text)
	}
	if res := call(d, SummarizeEvents, nil); res.Text != "Upcoming Events Summary:\n- 2026-03-05: Dentist (checkup)\n" {
		t.Fatalf("summary: %q", res.Text)
	}
	if res := call(d, DeleteEvent, map[string]any{"title": "dentist"}); res.Text != "Event 'dentist' deleted." {
		t.Fatalf("delete: %q", res.Text)
	}
	if res := call(d, ViewEvents, nil); res.Text != calendar.MsgNoEvents {
		t.Fatalf("view after delete: %q", res.Text)
	}
}

func TestMissingInputAndUnknownTool(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	if res := call(d, AddEvent, map[string]any{"title": "x"}); res.Kind != KindError || !strings.Contains(res.Error, "date") {
		t.Fatalf("got %+v", res)
	}
	if res := call(d, "nope", nil); res.Kind != KindError || !strings.Contains(res.Error, ErrUnknownTool.Error()) {
		t.Fatalf("got %+v", res)
	}
}

func TestSetRecurrenceCoercesInterval(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	call(d, AddEvent, map[string]any{"title": "Rent", "date": "2026-01-01"})

	res := call(d, SetRecurrence, map[string]any{"title": "Rent", "frequency": "monthly_on_day", "interval": float64(15)})
	if res.Text != "Recurrence for 'Rent' set to monthly on day 15. Next due: 2026-01-15." {
		t.Fatalf("got %q", res.Text)
	}
	res = call(d, SetRecurrence, map[string]any{"title": "Rent", "frequency": "every other day", "interval": "2"})
	if res.Text != "Recurrence for 'Rent' set to every_other_day (interval 2). Next due: 2026-01-13." {
		t.Fatalf("got %q", res.Text)
	}
	if res := call(d, SetRecurrence, map[string]any{"title": "Rent", "frequency": "daily", "interval": "often"}); res.Kind != KindError {
		t.Fatalf("got %+v", res)
	}
}

func TestHandleMessageDefaultsSession(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	call(d, HandleMessage, map[string]any{"message": "Learn Spanish"})
	res := call(d, HandleMessage, map[string]any{"message": "2026-06-01", "session_id": session.DefaultID})
	if !strings.Contains(res.Text, "deadline 2026-06-01") {
		t.Fatalf("got %q", res.Text)
	}
}

func TestHandleMessageEmptyGetsHelp(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	for _, in := range []map[string]any{{"message": ""}, {"message": "   "}, {}} {
		res := call(d, HandleMessage, in)
		if res.Kind != KindText || res.Text != chat.HelpText {
			t.Fatalf("%v: got %+v", in, res)
		}
	}
}

func TestResearchAndBreakdownThenCreateTasks(t *testing.T) {
	d, st := newDispatcher(t, nil)

	res := call(d, ResearchAndBreakdown, map[string]any{"goal": "run a marathon", "deadline": "2026-01-20"})
	if res.Kind != KindPlan || res.Plan == nil || len(res.Plan.Milestones) != 3 {
		t.Fatalf("got %+v", res)
	}

	// Round trip through JSON the way a transport would.
	raw, err := json.Marshal(res.Value())
	if err != nil {
		t.Fatal(err)
	}
	var plan map[string]any
	if err := json.Unmarshal(raw, &plan); err != nil {
		t.Fatal(err)
	}

	res = call(d, CreateTasks, map[string]any{"plan": plan})
	if res.Text != "Created 3 milestone event(s). Skipped 0." {
		t.Fatalf("got %q", res.Text)
	}
	if st.Len() != 3 {
		t.Fatalf("len = %d", st.Len())
	}
}

func TestCreateTasksSkipsInvalidMilestones(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	plan := map[string]any{
		"milestones": []any{
			map[string]any{"title": "Draft", "due": "2026-02-01", "steps": []any{"a", "b"}},
			map[string]any{"title": "Review"},
		},
	}
	if res := call(d, CreateTasks, map[string]any{"plan": plan}); res.Text != "Created 1 milestone event(s). Skipped 1." {
		t.Fatalf("got %q", res.Text)
	}

	plan["milestones"] = []any{"not an object", map[string]any{"title": "Ship", "due": "2026-03-01"}}
	if res := call(d, CreateTasks, map[string]any{"plan": plan}); res.Text != "Created 1 milestone event(s). Skipped 1." {
		t.Fatalf("got %q", res.Text)
	}

	asString := `{"milestones": [{"title": "Launch", "due": "2026-04-01"}]}`
	if res := call(d, CreateTasks, map[string]any{"plan": asString}); res.Text != "Created 1 milestone event(s). Skipped 0." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestCreateTasksMalformedPlan(t *testing.T) {
	d, st := newDispatcher(t, nil)
	for _, in := range []map[string]any{
		nil,
		{"plan": "nonsense"},
		{"plan": map[string]any{"goal": "x"}},
		{"plan": map[string]any{"milestones": "soon"}},
	} {
		res := call(d, CreateTasks, in)
		if res.Kind != KindError || !strings.HasPrefix(res.Error, ErrMalformedPlan.Error()) {
			t.Fatalf("%v: got %+v", in, res)
		}
	}
	if st.Len() != 0 {
		t.Fatal("malformed plan created events")
	}
}

func TestExportImport(t *testing.T) {
	src, _ := newDispatcher(t, nil)
	call(src, AddEvent, map[string]any{"title": "Gym", "date": "2026-01-05"})
	call(src, SetRecurrence, map[string]any{"title": "Gym", "frequency": "weekly"})
	export := call(src, ExportCalendar, nil)
	if export.Kind != KindText || !strings.Contains(export.Text, "RRULE:FREQ=WEEKLY") {
		t.Fatalf("export: %+v", export)
	}

	dst, st := newDispatcher(t, nil)
	res := call(dst, ImportCalendar, map[string]any{"ics": export.Text})
	if res.Text != "Imported 1 event(s). Skipped 0." {
		t.Fatalf("import: %+v", res)
	}
	ev, ok := st.FindLatestByTitle("Gym")
	if !ok || ev.Recurrence == nil || ev.Recurrence.Frequency != "weekly" || ev.NextDue != "2026-01-12" {
		t.Fatalf("imported %+v", ev)
	}
}

func TestImportFromURL(t *testing.T) {
	src, _ := newDispatcher(t, nil)
	call(src, AddEvent, map[string]any{"title": "Call", "date": "2026-02-02 10:00"})
	body := call(src, ExportCalendar, nil).Text

	fetcher := &stubFetcher{body: []byte(body)}
	d, st := newDispatcher(t, fetcher)
	res := call(d, ImportCalendar, map[string]any{"url": "https://example.com/cal.ics"})
	if res.Text != "Imported 1 event(s). Skipped 0." || st.Len() != 1 {
		t.Fatalf("got %+v", res)
	}
	if len(fetcher.urls) != 1 {
		t.Fatalf("urls = %v", fetcher.urls)
	}

	fetcher.err = errors.New("boom")
	if res := call(d, ImportCalendar, map[string]any{"url": "https://example.com/cal.ics"}); res.Kind != KindError {
		t.Fatalf("got %+v", res)
	}

	noFetch, _ := newDispatcher(t, nil)
	if res := call(noFetch, ImportCalendar, map[string]any{"url": "https://example.com/cal.ics"}); res.Kind != KindError {
		t.Fatalf("got %+v", res)
	}
	if res := call(noFetch, ImportCalendar, nil); res.Kind != KindError {
		t.Fatalf("got %+v", res)
	}
}

func TestNames(t *testing.T) {
	d, _ := newDispatcher(t, nil)
	if got := len(d.Names()); got != 10 {
		t.Fatalf("names = %v", d.Names())
	}
}
