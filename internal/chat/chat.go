// Package chat turns free-text messages into calendar and planning actions.
package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"chatcal/internal/calendar"
	"chatcal/internal/dateparse"
	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/planner"
	"chatcal/internal/session"
	"chatcal/internal/store"
)

const HelpText = `I can help with your calendar. Try:
- "Add Dentist on March 5 at 3pm" or "add:Title|2026-05-01|optional description"
- "Schedule standup tomorrow from 9:00 to 9:15"
- "List events" or "What's on 2026-05-01?"
- "Summarize" for an overview of upcoming events
- "Delete Dentist" or "delete:Dentist"
- Tell me a goal, like "Learn Spanish", and I'll help you plan it.`

const (
	msgLegacyUsage = "Usage: add:Title|YYYY-MM-DD|optional description"
	msgNeedTitle   = "Please provide a title for the event, e.g. 'Add Dentist on March 5'."
	msgNeedDate    = "I can add that, please include a date (e.g. 'on 2026-03-03', 'tomorrow', or 'March 3')."
	msgPlanFailed  = "Sorry, I couldn't build a plan right now."
	maxDatelessAdd = 6
)

var (
	addRe       = regexp.MustCompile(`(?is)^(?:add|create|schedule)\b(.*)$`)
	deleteRe    = regexp.MustCompile(`(?is)^(?:delete|remove|cancel)\s+(?:the\s+)?(?:event\s+)?(.+)$`)
	connectorRe = regexp.MustCompile(`(?i)\s*\b(?:on|for|from|at)\s*$`)
	descRe      = regexp.MustCompile(`(?is)(?:\b(?:about|with)\b|\bdesc:|\bdescription:)\s*(.*)$`)
	spaceRe     = regexp.MustCompile(`\s+`)

	legacyAddPrefixes = []string{"add:", "create:", "schedule:"}
	summaryKeywords   = []string{"summarize", "summary", "what's coming", "what’s coming", "upcoming", "brief"}
)

// turn is one incoming message with its lower-cased form precomputed.
type turn struct {
	session string
	msg     string
	low     string
	now     time.Time
}

type rule struct {
	name   string
	handle func(ctx context.Context, t turn) (string, bool)
}

// Assistant owns the per-process conversational state.
type Assistant struct {
	cal      *calendar.Service
	sessions *session.Manager
	planner  planner.Generator
	now      func() time.Time
	rules    []rule
}

// New builds an Assistant. A nil now uses time.Now.
func New(cal *calendar.Service, sessions *session.Manager, gen planner.Generator, now func() time.Time) *Assistant {
	if now == nil {
		now = time.Now
	}
	a := &Assistant{cal: cal, sessions: sessions, planner: gen, now: now}
	a.rules = []rule{
		{"pending-deadline", a.pendingDeadline},
		{"pending-cadence", a.pendingCadence},
		{"summary", a.summary},
		{"list", a.list},
		{"legacy-add", a.legacyAdd},
		{"conversational-add", a.conversationalAdd},
		{"delete", a.delete},
		{"goal-capture", a.goalCapture},
		{"help", a.help},
	}
	return a
}

// HandleMessage runs message through the ordered rules and returns the
// first reply. It never fails; unrecognised input gets HelpText.
func (a *Assistant) HandleMessage(ctx context.Context, sessionID, message string) string {
	msg := strings.TrimSpace(message)
	t := turn{session: sessionID, msg: msg, low: strings.ToLower(msg), now: a.now()}
	for _, r := range a.rules {
		if reply, ok := r.handle(ctx, t); ok {
			appLog.Debug("chat: rule matched", "rule", r.name, "session", sessionID)
			return reply
		}
	}
	return HelpText
}

func (a *Assistant) pendingDeadline(_ context.Context, t turn) (string, bool) {
	g, ok := a.sessions.Get(t.session)
	if !ok || g.Stage != session.StageAwaitingDeadline {
		return "", false
	}
	m, found := dateparse.Find(t.msg, t.now)
	if found {
		_, found = store.NormalizeDate(m.Date())
	}
	if !found {
		return fmt.Sprintf("I couldn't find a date there. When would you like to reach '%s'? Try something like 2026-06-01 or 'June 1'.", g.Goal), true
	}
	a.sessions.SetDeadline(t.session, m.Date())
	return fmt.Sprintf("Got it, deadline %s. How often do you want to work on it? (daily, every other day, weekdays, weekly, every two weeks, monthly)", m.Date()), true
}

func (a *Assistant) pendingCadence(ctx context.Context, t turn) (string, bool) {
	g, ok := a.sessions.Get(t.session)
	if !ok || g.Stage != session.StageAwaitingCadence {
		return "", false
	}
	cadence := session.ParseCadence(t.msg)
	a.sessions.Clear(t.session)

	plan, err := a.planner.Generate(ctx, g.Goal, g.Deadline)
	if err != nil {
		appLog.Error("chat: plan generation failed", err, "goal", appLog.Truncate(g.Goal, 60))
		return msgPlanFailed, true
	}
	return FormatPlan(plan, cadence), true
}

func (a *Assistant) summary(_ context.Context, t turn) (string, bool) {
	for _, kw := range summaryKeywords {
		if strings.Contains(t.low, kw) {
			return a.cal.Summarize(), true
		}
	}
	return "", false
}

func (a *Assistant) list(_ context.Context, t turn) (string, bool) {
	if !strings.Contains(t.low, "list") && !strings.Contains(t.low, "events") && !strings.HasPrefix(t.low, "what") {
		return "", false
	}
	if m, ok := dateparse.Find(t.msg, t.now); ok {
		return a.cal.EventsOn(m.Date()), true
	}
	return a.cal.ViewEvents(), true
}

func (a *Assistant) legacyAdd(_ context.Context, t turn) (string, bool) {
	for _, p := range legacyAddPrefixes {
		if !strings.HasPrefix(t.low, p) {
			continue
		}
		parts := strings.Split(t.msg[len(p):], "|")
		if len(parts) < 2 {
			return msgLegacyUsage, true
		}
		desc := ""
		if len(parts) > 2 {
			desc = parts[2]
		}
		return a.cal.AddEvent(parts[0], strings.TrimSpace(parts[1]), desc, ""), true
	}
	return "", false
}

func (a *Assistant) conversationalAdd(_ context.Context, t turn) (string, bool) {
	sub := addRe.FindStringSubmatch(t.msg)
	if sub == nil {
		return "", false
	}
	rest := strings.TrimSpace(sub[1])
	if rest == "" {
		return HelpText, true
	}

	m, ok := dateparse.Find(rest, t.now)
	if !ok {
		if len(strings.Fields(rest)) <= maxDatelessAdd {
			return msgNeedDate, true
		}
		return "", false
	}

	title := cutSpan(rest[:m.Start], m.TimeStart, m.TimeEnd, 0)
	title = stripConnectors(title)
	if title == "" {
		return msgNeedTitle, true
	}

	after := cutSpan(rest[m.End:], m.TimeStart, m.TimeEnd, m.End)
	desc := ""
	if d := descRe.FindStringSubmatch(after); d != nil {
		desc = strings.TrimSpace(d[1])
	}
	return a.cal.AddEvent(title, m.Value, desc, m.EndTime), true
}

func (a *Assistant) delete(_ context.Context, t turn) (string, bool) {
	if strings.HasPrefix(t.low, "delete:") {
		return a.cal.DeleteEvent(t.msg[len("delete:"):]), true
	}
	if sub := deleteRe.FindStringSubmatch(t.msg); sub != nil {
		return a.cal.DeleteEvent(sub[1]), true
	}
	return "", false
}

func (a *Assistant) goalCapture(_ context.Context, t turn) (string, bool) {
	if t.msg == "" {
		return "", false
	}
	a.sessions.Start(t.session, t.msg)
	return fmt.Sprintf("Sounds like a goal: '%s'. What's your deadline? (e.g. 2026-06-01, 'June 1', or 'tomorrow')", t.msg), true
}

func (a *Assistant) help(context.Context, turn) (string, bool) {
	return HelpText, true
}

// cutSpan removes the absolute byte span [start, end) from part, where
// part begins at offset base of the original text. Spans that do not fall
// inside part leave it unchanged.
func cutSpan(part string, start, end, base int) string {
	if start < 0 {
		return part
	}
	lo, hi := start-base, end-base
	if lo < 0 || hi > len(part) || lo >= hi {
		return part
	}
	return part[:lo] + " " + part[hi:]
}

func stripConnectors(s string) string {
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	for {
		trimmed := strings.TrimSpace(connectorRe.ReplaceAllString(s, ""))
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// FormatPlan renders a plan as a chat reply.
func FormatPlan(plan model.Plan, cadence string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan for '%s'", plan.Goal)
	var meta []string
	if plan.Deadline != "" {
		meta = append(meta, "deadline "+plan.Deadline)
	}
	if plan.EstimatedDays > 0 {
		meta = append(meta, fmt.Sprintf("about %d days", plan.EstimatedDays))
	}
	if cadence != "" {
		meta = append(meta, "cadence: "+cadence)
	}
	if len(meta) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
	}
	b.WriteString(":\n")
	for i, m := range plan.Milestones {
		fmt.Fprintf(&b, "%d. %s (due %s)\n", i+1, m.Title, m.Due)
		for _, step := range m.Steps {
			fmt.Fprintf(&b, "   - %s\n", step)
		}
	}
	if len(plan.CadenceSuggestions) > 0 {
		fmt.Fprintf(&b, "Suggested cadences: %s\n", strings.Join(plan.CadenceSuggestions, ", "))
	}
	b.WriteString("Use create_tasks to add these milestones to your calendar.")
	return b.String()
}
