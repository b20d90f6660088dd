// Package session keeps the pending goal-planning conversation for each
// chat session: goal, then deadline, then cadence.
package session

import (
	"strings"
	"sync"
)

// DefaultID is used when a caller does not identify its session.
const DefaultID = "default"

// Stage is where a pending goal conversation currently stands.
type Stage int

const (
	StageNone Stage = iota
	StageAwaitingDeadline
	StageAwaitingCadence
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingDeadline:
		return "awaiting_deadline"
	case StageAwaitingCadence:
		return "awaiting_cadence"
	default:
		return "none"
	}
}

// Goal is a pending goal conversation.
type Goal struct {
	Goal     string
	Deadline string
	Cadence  string
	Stage    Stage
}

// Manager holds at most one pending Goal per session id.
type Manager struct {
	mu      sync.Mutex
	pending map[string]Goal
}

func NewManager() *Manager {
	return &Manager{pending: make(map[string]Goal)}
}

// Get returns the pending goal for id, if any.
func (m *Manager) Get(id string) (Goal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.pending[key(id)]
	return g, ok && g.Stage != StageNone
}

// Start begins a new goal conversation for id, replacing any previous one.
func (m *Manager) Start(id, goal string) Goal {
	g := Goal{Goal: goal, Stage: StageAwaitingDeadline}
	m.mu.Lock()
	m.pending[key(id)] = g
	m.mu.Unlock()
	return g
}

// SetDeadline records the deadline and moves on to the cadence question.
func (m *Manager) SetDeadline(id, deadline string) (Goal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.pending[key(id)]
	if !ok || g.Stage != StageAwaitingDeadline {
		return Goal{}, false
	}
	g.Deadline = deadline
	g.Stage = StageAwaitingCadence
	m.pending[key(id)] = g
	return g, true
}

// Clear drops the pending goal for id.
func (m *Manager) Clear(id string) {
	m.mu.Lock()
	delete(m.pending, key(id))
	m.mu.Unlock()
}

// Len reports how many sessions have a pending goal.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func key(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultID
	}
	return id
}

// Cadence tokens produced by ParseCadence.
const (
	CadenceEveryOtherDay = "every_other_day"
	CadenceBiweekly      = "biweekly"
	CadenceWeekdays      = "weekdays"
	CadenceWeekly        = "weekly"
	CadenceMonthly       = "monthly"
	CadenceDaily         = "daily"
	CadenceCustom        = "custom"
	CadenceUnspecified   = "unspecified"
)

// cadenceRules is checked in order; longer phrases come before the words
// they contain ("every other day" before "every day", "biweekly" before
// "weekly").
var cadenceRules = []struct {
	token    string
	keywords []string
}{
	{CadenceEveryOtherDay, []string{"every other day"}},
	{CadenceBiweekly, []string{"every two weeks", "biweekly", "bi-weekly"}},
	{CadenceWeekdays, []string{"weekdays", "workdays"}},
	{CadenceWeekly, []string{"weekly"}},
	{CadenceMonthly, []string{"monthly"}},
	{CadenceDaily, []string{"daily", "every day"}},
	{CadenceCustom, []string{"custom"}},
}

// ParseCadence maps a free-text answer to a cadence token. It never fails;
// unknown answers yield CadenceUnspecified.
func ParseCadence(answer string) string {
	low := strings.ToLower(answer)
	for _, r := range cadenceRules {
		for _, kw := range r.keywords {
			if strings.Contains(low, kw) {
				return r.token
			}
		}
	}
	return CadenceUnspecified
}
