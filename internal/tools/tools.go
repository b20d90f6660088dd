// Package tools is the external operation table shared by the HTTP and MCP
// transports. Every call produces a Result; failures never escape as Go
// errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"chatcal/internal/calendar"
	"chatcal/internal/chat"
	"chatcal/internal/ics"
	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/planner"
	"chatcal/internal/session"
)

var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrMissingInput  = errors.New("missing required input")
	ErrMalformedPlan = errors.New("malformed plan")
)

// Tool names.
const (
	AddEvent             = "add_event"
	ViewEvents           = "view_events"
	DeleteEvent          = "delete_event"
	SummarizeEvents      = "summarize_events"
	HandleMessage        = "handle_message"
	SetRecurrence        = "set_recurrence"
	ResearchAndBreakdown = "research_and_breakdown"
	CreateTasks          = "create_tasks"
	ExportCalendar       = "export_calendar"
	ImportCalendar       = "import_calendar"
)

// Kind tags a Result.
type Kind string

const (
	KindText  Kind = "text"
	KindPlan  Kind = "plan"
	KindError Kind = "error"
)

// Result is the outcome of a tool call. Exactly one of Text, Plan or Error
// is meaningful, as selected by Kind.
type Result struct {
	Kind  Kind
	Text  string
	Plan  *model.Plan
	Error string
}

func textResult(s string) Result { return Result{Kind: KindText, Text: s} }

func errorResult(err error) Result { return Result{Kind: KindError, Error: err.Error()} }

// Value returns the payload for JSON encoding: the text, the plan, or the
// error message.
func (r Result) Value() any {
	switch r.Kind {
	case KindPlan:
		return r.Plan
	case KindError:
		return r.Error
	default:
		return r.Text
	}
}

// Fetcher downloads a remote calendar for import_calendar.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (ics.FetchResult, error)
}

type handler func(ctx context.Context, in input) Result

// Dispatcher routes tool calls to the calendar, chat and planner.
type Dispatcher struct {
	cal       *calendar.Service
	assistant *chat.Assistant
	planner   planner.Generator
	fetcher   Fetcher
	now       func() time.Time
	handlers  map[string]handler
}

// Options wires a Dispatcher. Fetcher may be nil, which disables URL
// imports.
type Options struct {
	Calendar  *calendar.Service
	Assistant *chat.Assistant
	Planner   planner.Generator
	Fetcher   Fetcher
	Now       func() time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		cal:       opts.Calendar,
		assistant: opts.Assistant,
		planner:   opts.Planner,
		fetcher:   opts.Fetcher,
		now:       opts.Now,
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.handlers = map[string]handler{
		AddEvent:             d.addEvent,
		ViewEvents:           d.viewEvents,
		DeleteEvent:          d.deleteEvent,
		SummarizeEvents:      d.summarizeEvents,
		HandleMessage:        d.handleMessage,
		SetRecurrence:        d.setRecurrence,
		ResearchAndBreakdown: d.researchAndBreakdown,
		CreateTasks:          d.createTasks,
		ExportCalendar:       d.exportCalendar,
		ImportCalendar:       d.importCalendar,
	}
	return d
}

// Names lists the registered tools in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call runs the named tool. input may be nil.
func (d *Dispatcher) Call(ctx context.Context, name string, in map[string]any) Result {
	h, ok := d.handlers[name]
	if !ok {
		appLog.Warn("tools: unknown tool", "tool", name)
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownTool, name))
	}
	start := time.Now()
	res := h(ctx, input(in))
	appLog.Debug("tools: call", "tool", name, "kind", res.Kind, "took", time.Since(start))
	return res
}

// input wraps the raw argument map with cast-based accessors; transports
// deliver numbers as float64 or strings.
type input map[string]any

func (in input) str(key string) string {
	return strings.TrimSpace(cast.ToString(in[key]))
}

func (in input) required(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if in.str(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}
	return nil
}

func (in input) intOr(key string, def int) (int, error) {
	v, ok := in[key]
	if !ok || v == nil || in.str(key) == "" {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrMissingInput, key)
	}
	return n, nil
}

func (d *Dispatcher) addEvent(_ context.Context, in input) Result {
	if err := in.required("title", "date"); err != nil {
		return errorResult(err)
	}
	return textResult(d.cal.AddEvent(in.str("title"), in.str("date"), in.str("description"), in.str("end")))
}

func (d *Dispatcher) viewEvents(context.Context, input) Result {
	return textResult(d.cal.ViewEvents())
}

func (d *Dispatcher) deleteEvent(_ context.Context, in input) Result {
	if err := in.required("title"); err != nil {
		return errorResult(err)
	}
	return textResult(d.cal.DeleteEvent(in.str("title")))
}

func (d *Dispatcher) summarizeEvents(context.Context, input) Result {
	return textResult(d.cal.Summarize())
}

// handleMessage passes empty messages through; the assistant answers them
// with its help text.
func (d *Dispatcher) handleMessage(ctx context.Context, in input) Result {
	id := in.str("session_id")
	if id == "" {
		id = session.DefaultID
	}
	return textResult(d.assistant.HandleMessage(ctx, id, in.str("message")))
}

func (d *Dispatcher) setRecurrence(_ context.Context, in input) Result {
	if err := in.required("title", "frequency"); err != nil {
		return errorResult(err)
	}
	interval, err := in.intOr("interval", 1)
	if err != nil {
		return errorResult(err)
	}
	return textResult(d.cal.SetRecurrence(in.str("title"), in.str("frequency"), interval))
}

func (d *Dispatcher) researchAndBreakdown(ctx context.Context, in input) Result {
	if err := in.required("goal"); err != nil {
		return errorResult(err)
	}
	plan, err := d.planner.Generate(ctx, in.str("goal"), in.str("deadline"))
	if err != nil {
		return errorResult(err)
	}
	return Result{Kind: KindPlan, Plan: &plan}
}

func (d *Dispatcher) createTasks(_ context.Context, in input) Result {
	milestones, skipped, err := decodeMilestones(in["plan"])
	if err != nil {
		return errorResult(err)
	}
	created, invalid := d.cal.CreateTasks(model.Plan{Milestones: milestones})
	return textResult(calendar.CreateTasksMessage(created, skipped+invalid))
}

// decodeMilestones reads plan.milestones. Elements that are not milestone
// objects are counted as skipped rather than failing the batch.
func decodeMilestones(raw any) ([]model.Milestone, int, error) {
	if s, ok := raw.(string); ok {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, 0, fmt.Errorf("%w: plan is not a JSON object", ErrMalformedPlan)
		}
		raw = v
	}
	planMap, ok := raw.(map[string]any)
	if !ok {
		return nil, 0, fmt.Errorf("%w: plan must be an object", ErrMalformedPlan)
	}
	items, ok := planMap["milestones"].([]any)
	if !ok {
		return nil, 0, fmt.Errorf("%w: plan needs a milestones array", ErrMalformedPlan)
	}

	out := make([]model.Milestone, 0, len(items))
	skipped := 0
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		steps, _ := cast.ToStringSliceE(m["steps"])
		out = append(out, model.Milestone{
			Title: cast.ToString(m["title"]),
			Due:   cast.ToString(m["due"]),
			Steps: steps,
		})
	}
	return out, skipped, nil
}

func (d *Dispatcher) exportCalendar(context.Context, input) Result {
	return textResult(ics.Export(d.cal.Store().List(), d.now()))
}

func (d *Dispatcher) importCalendar(ctx context.Context, in input) Result {
	body := []byte(cast.ToString(in["ics"]))
	if url := in.str("url"); len(strings.TrimSpace(string(body))) == 0 && url != "" {
		if d.fetcher == nil {
			return errorResult(errors.New("importing from a URL is disabled"))
		}
		res, err := d.fetcher.Fetch(ctx, url)
		if err != nil {
			return errorResult(fmt.Errorf("fetch calendar: %w", err))
		}
		body = res.Body
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errorResult(fmt.Errorf("%w: ics or url", ErrMissingInput))
	}

	events, err := ics.Parse(body)
	if err != nil {
		return errorResult(fmt.Errorf("parse calendar: %w", err))
	}
	imported, skipped := 0, 0
	for _, ev := range events {
		if err := d.cal.Import(ev.Title, ev.Date, ev.Description, ev.End, ev.Frequency, ev.Interval); err != nil {
			appLog.Debug("tools: import skipped event", "uid", ev.UID, "err", err)
			skipped++
			continue
		}
		imported++
	}
	return textResult(fmt.Sprintf("Imported %d event(s). Skipped %d.", imported, skipped))
}
