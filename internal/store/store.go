package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcal/internal/dateparse"
	appLog "chatcal/internal/log"
	"chatcal/internal/model"
)

var (
	// ErrInvalidDateFormat is returned by Add when the date matches none of
	// the accepted layouts.
	ErrInvalidDateFormat = errors.New("invalid date format")
	// ErrEventNotFound is returned when a title lookup has no match.
	ErrEventNotFound = errors.New("event not found")
)

// inputLayouts are tried in order when validating a date. The first one
// is date-only; the rest carry a time and are normalized to
// model.DateTimeLayout.
var inputLayouts = []string{
	model.DateLayout,
	"2006-01-02 15:04",
	model.DateTimeLayout,
}

// Store is the in-memory event collection. Insertion order is kept so that
// FindLatestByTitle can return the most recently added match; listings are
// always re-sorted by date.
type Store struct {
	mu     sync.RWMutex
	events []model.Event
}

func New() *Store {
	return &Store{}
}

// Add validates date and appends a new event. A malformed end is dropped
// without failing the add.
func (s *Store) Add(title, date, description, end string) (model.Event, error) {
	normDate, ok := NormalizeDate(date)
	if !ok {
		return model.Event{}, ErrInvalidDateFormat
	}

	ev := model.Event{
		ID:          uuid.NewString(),
		Title:       title,
		Date:        normDate,
		Description: description,
	}
	if strings.TrimSpace(end) != "" {
		if normEnd, ok := normalizeEnd(end, normDate); ok {
			ev.End = normEnd
		} else {
			appLog.Debug("store: dropping malformed end", "title", title, "end", end)
		}
	}

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	appLog.Debug("store: event added", "id", ev.ID, "title", title, "date", normDate)
	return ev, nil
}

// List returns every event sorted ascending by date.
func (s *Store) List() []model.Event {
	s.mu.RLock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	s.mu.RUnlock()

	sortByDate(out)
	return out
}

// ListByDate returns the events whose stored date equals date exactly.
func (s *Store) ListByDate(date string) []model.Event {
	s.mu.RLock()
	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if ev.Date == date {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sortByDate(out)
	return out
}

// Delete removes every event whose title matches case-insensitively and
// reports how many were removed.
func (s *Store) Delete(title string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, ev := range s.events {
		if strings.EqualFold(ev.Title, title) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	// Clear the tail so dropped events can be collected.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = model.Event{}
	}
	s.events = kept
	return removed
}

// FindLatestByTitle returns the last-inserted event with a
// case-insensitively equal title.
func (s *Store) FindLatestByTitle(title string) (model.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		if strings.EqualFold(s.events[i].Title, title) {
			return s.events[i], true
		}
	}
	return model.Event{}, false
}

// Update applies fn to the stored event with the given id. Title and date
// changes made by fn are ignored.
func (s *Store) Update(id string, fn func(*model.Event)) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID != id {
			continue
		}
		ev := &s.events[i]
		title, date := ev.Title, ev.Date
		fn(ev)
		ev.Title, ev.Date = title, date
		return *ev, true
	}
	return model.Event{}, false
}

// Len reports the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// NormalizeDate accepts YYYY-MM-DD, "YYYY-MM-DD HH:MM" and
// YYYY-MM-DDTHH:MM. Date-only input is returned unchanged; date-times are
// returned as YYYY-MM-DDTHH:MM.
func NormalizeDate(date string) (string, bool) {
	date = strings.TrimSpace(date)
	for i, layout := range inputLayouts {
		t, err := time.Parse(layout, date)
		if err != nil {
			continue
		}
		if i == 0 {
			return date, true
		}
		return t.Format(model.DateTimeLayout), true
	}
	return "", false
}

// normalizeEnd accepts a full date-time, or a clock token placed on the
// date part of start.
func normalizeEnd(end, start string) (string, bool) {
	end = strings.TrimSpace(end)
	for _, layout := range inputLayouts[1:] {
		if t, err := time.Parse(layout, end); err == nil {
			return t.Format(model.DateTimeLayout), true
		}
	}
	if clock, ok := dateparse.ParseClock(end); ok {
		return start[:len(model.DateLayout)] + "T" + clock, true
	}
	return "", false
}

func sortByDate(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date < events[j].Date
	})
}
