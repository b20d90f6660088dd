package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "chatcal/internal/log"
	"chatcal/internal/model"
	"chatcal/internal/recurrence"
)

// ProductID is written as the PRODID of exported calendars.
const ProductID = "-//chatcal//chatcal calendar//EN"

// Export renders events as an iCalendar document. Stored times carry no
// zone and are written as UTC. Events whose dates cannot be read are
// skipped.
func Export(events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)

	written := 0
	for _, ev := range events {
		if err := addEvent(cal, ev, now); err != nil {
			appLog.Warn("ics: event not exported", "id", ev.ID, "title", ev.Title, "err", err)
			continue
		}
		written++
	}
	appLog.Debug("ics: export built", "events", written)
	return cal.Serialize()
}

func addEvent(cal *ical.Calendar, ev model.Event, now time.Time) error {
	start, allDay, err := parseStored(ev.Date)
	if err != nil {
		return err
	}

	ve := cal.AddEvent(ev.ID)
	ve.SetDtStampTime(now.UTC())
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}

	if allDay {
		ve.SetAllDayStartAt(start)
	} else {
		ve.SetStartAt(start)
	}
	if ev.End != "" {
		if end, _, err := parseStored(ev.End); err == nil {
			ve.SetEndAt(end)
		}
	}

	if ev.Recurrence != nil {
		if rule, ok := recurrence.RRule(*ev.Recurrence); ok {
			ve.AddProperty(ical.ComponentPropertyRrule, rule)
		}
	}
	if ev.Milestone {
		ve.AddProperty(ical.ComponentPropertyCategories, "MILESTONE")
	}
	return nil
}

func parseStored(v string) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if len(v) == len(model.DateLayout) {
		t, err := time.Parse(model.DateLayout, v)
		return t, true, err
	}
	t, err := time.Parse(model.DateTimeLayout, v)
	return t, false, err
}
