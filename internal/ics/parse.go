package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/recurrence"
)

var ErrEmptyCalendar = errors.New("empty ICS body")

// ImportedEvent is a VEVENT reduced to what the event store keeps.
type ImportedEvent struct {
	UID         string
	Title       string
	Description string
	// Date is YYYY-MM-DD for all-day events, otherwise YYYY-MM-DDTHH:MM.
	Date string
	End  string

	// Frequency/Interval are set when the RRULE maps onto a supported
	// recurrence; RawRRule is kept either way.
	Frequency string
	Interval  int
	RawRRule  string
}

// Parse reads every VEVENT in body. Events without a summary or a start
// are logged and skipped; the rest are returned in document order.
func Parse(body []byte) ([]ImportedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyCalendar
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ImportedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Warn("ics: vevent skipped", "uid", ev.UID, "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics: parse completed", "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ImportedEvent, error) {
	var out ImportedEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = strings.TrimSpace(p.Value)
	}
	if out.Title == "" {
		return out, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = parseICSTime(dtStart.Value); err != nil {
			return out, err
		}
	}

	if isAllDay(dtStart) {
		out.Date = start.Format(model.DateLayout)
	} else {
		out.Date = start.UTC().Format(model.DateTimeLayout)
		if ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			if end, err := ve.GetEndAt(); err == nil && end.After(start) {
				out.End = end.UTC().Format(model.DateTimeLayout)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
		out.Frequency, out.Interval = mapRRule(p.Value)
	}
	return out, nil
}

// isAllDay reports VALUE=DATE or a DTSTART value without a time part.
func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// mapRRule translates the subset of RRULEs that a recurrence rule can
// express. Anything else returns an empty frequency.
func mapRRule(raw string) (string, int) {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		appLog.Debug("ics: unreadable RRULE", "rrule", raw, "err", err)
		return "", 0
	}
	n := opt.Interval
	if n < 1 {
		n = 1
	}

	switch opt.Freq {
	case rrule.DAILY:
		if isWorkWeek(opt.Byweekday) {
			return recurrence.FreqWeekdays, 1
		}
		if len(opt.Byweekday) == 0 {
			return recurrence.FreqDaily, n
		}
	case rrule.WEEKLY:
		if len(opt.Byweekday) <= 1 {
			return recurrence.FreqWeekly, n
		}
		if isWorkWeek(opt.Byweekday) && n == 1 {
			return recurrence.FreqWeekdays, 1
		}
	case rrule.MONTHLY:
		switch {
		case len(opt.Bymonthday) == 1 && opt.Bymonthday[0] > 0 && n == 1:
			return recurrence.FreqMonthlyOnDay, opt.Bymonthday[0]
		case len(opt.Bymonthday) == 0 && len(opt.Byweekday) == 0:
			return recurrence.FreqMonthly, n
		}
	}
	return "", 0
}

// isWorkWeek reports exactly MO-FR with no ordinal prefixes.
func isWorkWeek(days []rrule.Weekday) bool {
	if len(days) != 5 {
		return false
	}
	seen := 0
	for _, d := range days {
		if d.N() != 0 || d.Day() > rrule.FR.Day() {
			return false
		}
		seen |= 1 << d.Day()
	}
	return seen == 0b11111
}

// parseICSTime reads a bare DTSTART value when the library rejects it
// (usually an unknown TZID). Floating times are taken as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.Parse("20060102T150405", v)
	default:
		return time.Parse("20060102", v)
	}
}
