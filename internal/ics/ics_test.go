package ics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatcal/internal/model"
	"chatcal/internal/recurrence"
)

var fixedNow = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

func TestExportIncludesRecurrence(t *testing.T) {
	events := []model.Event{
		{ID: "a1", Title: "Gym", Date: "2026-01-05", Recurrence: &model.RecurrenceRule{Frequency: recurrence.FreqWeekly, Interval: 1}},
		{ID: "b2", Title: "Call", Date: "2026-01-06T15:00", End: "2026-01-06T16:00", Description: "with Sam"},
		{ID: "c3", Title: "Broken", Date: "soon"},
	}
	out := Export(events, fixedNow)

	for _, want := range []string{"BEGIN:VCALENDAR", "PRODID:" + ProductID, "UID:a1", "SUMMARY:Gym", "RRULE:FREQ=WEEKLY", "UID:b2", "20260106T150000Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("export missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Broken") {
		t.Fatal("unreadable event exported")
	}
}

func TestExportParseRoundTrip(t *testing.T) {
	events := []model.Event{
		{ID: "a1", Title: "Gym", Date: "2026-01-05", Recurrence: &model.RecurrenceRule{Frequency: recurrence.FreqBiweekly, Interval: 1}},
		{ID: "b2", Title: "Call", Date: "2026-01-06T15:00", End: "2026-01-06T16:00", Description: "with Sam"},
	}
	parsed, err := Parse([]byte(Export(events, fixedNow)))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %+v", parsed)
	}

	gym, call := parsed[0], parsed[1]
	if gym.Title != "Gym" || gym.Date != "2026-01-05" || gym.Frequency != recurrence.FreqWeekly || gym.Interval != 2 {
		t.Fatalf("gym = %+v", gym)
	}
	if call.Date != "2026-01-06T15:00" || call.End != "2026-01-06T16:00" || call.Description != "with Sam" || call.Frequency != "" {
		t.Fatalf("call = %+v", call)
	}
}

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@test\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20260301\r\n" +
	"SUMMARY:Rent\r\n" +
	"RRULE:FREQ=MONTHLY;BYMONTHDAY=1\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2@test\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART:20260302T080000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3@test\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART:20260303T090000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO,TU,WE,TH,FR\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseSkipsEventsWithoutSummary(t *testing.T) {
	parsed, err := Parse([]byte(sampleICS))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 2 {
		t.Fatalf("got %+v", parsed)
	}
	if parsed[0].Frequency != recurrence.FreqMonthlyOnDay || parsed[0].Interval != 1 || parsed[0].Date != "2026-03-01" {
		t.Fatalf("rent = %+v", parsed[0])
	}
	if parsed[1].Frequency != recurrence.FreqWeekdays || parsed[1].Date != "2026-03-03T09:00" {
		t.Fatalf("standup = %+v", parsed[1])
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse([]byte("  \n")); !errors.Is(err, ErrEmptyCalendar) {
		t.Fatalf("err = %v", err)
	}
}

func TestMapRRule(t *testing.T) {
	cases := []struct {
		in       string
		freq     string
		interval int
	}{
		{"FREQ=DAILY", recurrence.FreqDaily, 1},
		{"FREQ=DAILY;INTERVAL=3", recurrence.FreqDaily, 3},
		{"FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR", recurrence.FreqWeekdays, 1},
		{"FREQ=WEEKLY;INTERVAL=2", recurrence.FreqWeekly, 2},
		{"FREQ=MONTHLY", recurrence.FreqMonthly, 1},
		{"FREQ=MONTHLY;BYMONTHDAY=15", recurrence.FreqMonthlyOnDay, 15},
		{"FREQ=YEARLY", "", 0},
		{"FREQ=MONTHLY;BYDAY=1MO", "", 0},
		{"garbage", "", 0},
	}
	for _, tc := range cases {
		freq, n := mapRRule(tc.in)
		if freq != tc.freq || n != tc.interval {
			t.Fatalf("mapRRule(%q) = %q,%d want %q,%d", tc.in, freq, n, tc.freq, tc.interval)
		}
	}
}

func TestFetcherUsesValidators(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(sampleICS))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	first, err := f.Fetch(context.Background(), srv.URL+"/feed.ics?token=secret")
	if err != nil || first.FromCache || len(first.Body) == 0 {
		t.Fatalf("first fetch: %+v %v", first, err)
	}
	second, err := f.Fetch(context.Background(), srv.URL+"/feed.ics?token=secret")
	if err != nil || !second.FromCache || string(second.Body) != sampleICS {
		t.Fatalf("second fetch: fromCache=%v err=%v", second.FromCache, err)
	}
	if hits != 2 {
		t.Fatalf("hits = %d", hits)
	}
}

func TestFetcherRejectsNonHTTP(t *testing.T) {
	f := NewFetcher(nil)
	for _, u := range []string{"file:///etc/passwd", "not a url", ""} {
		if _, err := f.Fetch(context.Background(), u); !errors.Is(err, ErrNotCalendarURL) {
			t.Fatalf("%q: err = %v", u, err)
		}
	}
}

func TestRedactURL(t *testing.T) {
	if got := redactURL("https://example.com/private.ics?token=abc"); got != "https://example.com/...(redacted)" {
		t.Fatalf("got %q", got)
	}
}
