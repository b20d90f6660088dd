// Package dateparse pulls a calendar date, and optionally a start/end time,
// out of free text such as "Add Dentist on March 5 2026 at 3pm".
//
// Matchers are tried in a fixed order and the first one that matches wins:
//
//  1. relative  - "today", "tomorrow"
//  2. iso       - 2026-03-05, 2026-03-05T15:30, 2026-03-05 15:30
//  3. slash     - 3/5, 3/5/26, 3/5/2026 (month first)
//  4. monthname - March 5, Mar 5th, March 5, 2026
//
// No cross-validation happens between classes: text holding both a slash
// date and a month-name date resolves to the slash date.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chatcal/internal/model"
)

// Match is the result of a successful Find.
type Match struct {
	// Value is YYYY-MM-DD, or YYYY-MM-DDTHH:MM when a start time was found.
	Value string
	// EndTime is YYYY-MM-DDTHH:MM on the same date when a time range was found.
	EndTime string

	// Start/End is the byte span of the date token in the input.
	Start int
	End   int

	// TimeStart/TimeEnd is the byte span of a detached time phrase
	// ("from 3pm to 5pm", "at 4pm"); both are -1 when there is none or the
	// time was part of the date token itself.
	TimeStart int
	TimeEnd   int

	// Matcher names the class that produced the date.
	Matcher string
}

// Date returns the YYYY-MM-DD part of Value.
func (m Match) Date() string {
	if len(m.Value) < len(model.DateLayout) {
		return m.Value
	}
	return m.Value[:len(model.DateLayout)]
}

type matcher struct {
	name string
	find func(s string, now time.Time) (Match, bool)
}

var matchers = []matcher{
	{name: "relative", find: findRelative},
	{name: "iso", find: findISO},
	{name: "slash", find: findSlash},
	{name: "monthname", find: findMonthName},
}

// Find returns the first date found in s, resolving relative words and
// missing years against now.
func Find(s string, now time.Time) (Match, bool) {
	for _, m := range matchers {
		match, ok := m.find(s, now)
		if !ok {
			continue
		}
		match.Matcher = m.name
		match.TimeStart, match.TimeEnd = -1, -1
		return attachTimes(s, match), true
	}
	return Match{}, false
}

const clockPattern = `\d{1,2}(?::\d{2})?(?:\s*[ap]m)?`

var (
	relativeRe  = regexp.MustCompile(`(?i)\b(today|tomorrow)\b`)
	isoRe       = regexp.MustCompile(`(?i)(\d{4}-\d{2}-\d{2})(?:[T ](\d{1,2}:\d{2}(?:\s*[ap]m)?))?`)
	slashRe     = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?`)
	monthNameRe = regexp.MustCompile(`(?i)\b([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s*(\d{4}))?\b`)

	rangeRe     = regexp.MustCompile(`(?i)(?:\b(from|between|at)\s+)?\b(` + clockPattern + `)\s*(?:to|until|through|-|–)\s*(` + clockPattern + `)\b`)
	continueRe  = regexp.MustCompile(`(?i)^\s*(?:to|until|through|-|–)\s*(` + clockPattern + `)\b`)
	atRe        = regexp.MustCompile(`(?i)\bat\s+(` + clockPattern + `)\b`)
	clockRe     = regexp.MustCompile(`(?i)^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	meridiemRe  = regexp.MustCompile(`(?i)(am|pm)$`)
	leadSpaceRe = regexp.MustCompile(`^\s*`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

func findRelative(s string, now time.Time) (Match, bool) {
	loc := relativeRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return Match{}, false
	}
	day := now
	if strings.EqualFold(s[loc[2]:loc[3]], "tomorrow") {
		day = now.AddDate(0, 0, 1)
	}
	return Match{Value: day.Format(model.DateLayout), Start: loc[0], End: loc[1]}, true
}

func findISO(s string, _ time.Time) (Match, bool) {
	loc := isoRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return Match{}, false
	}
	value := s[loc[2]:loc[3]]
	end := loc[1]
	if loc[4] >= 0 {
		clock, ok := ParseClock(s[loc[4]:loc[5]])
		if ok {
			value += "T" + clock
		} else {
			// "2026-03-05 99:99" keeps the date only.
			end = loc[3]
		}
	}
	return Match{Value: value, Start: loc[0], End: end}, true
}

func findSlash(s string, now time.Time) (Match, bool) {
	loc := slashRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return Match{}, false
	}
	month, _ := strconv.Atoi(s[loc[2]:loc[3]])
	day, _ := strconv.Atoi(s[loc[4]:loc[5]])
	year := now.Year()
	if loc[6] >= 0 {
		raw := s[loc[6]:loc[7]]
		switch len(raw) {
		case 2:
			yy, _ := strconv.Atoi(raw)
			year = 2000 + yy
		case 4:
			year, _ = strconv.Atoi(raw)
		default:
			return Match{}, false
		}
	}
	return Match{Value: isoDate(year, month, day), Start: loc[0], End: loc[1]}, true
}

func findMonthName(s string, now time.Time) (Match, bool) {
	for _, loc := range monthNameRe.FindAllStringSubmatchIndex(s, -1) {
		month, ok := months[strings.ToLower(s[loc[2]:loc[3]])]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(s[loc[4]:loc[5]])
		year := now.Year()
		if loc[6] >= 0 {
			year, _ = strconv.Atoi(s[loc[6]:loc[7]])
		}
		return Match{Value: isoDate(year, int(month), day), Start: loc[0], End: loc[1]}, true
	}
	return Match{}, false
}

func isoDate(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// attachTimes looks for a time range, or a single "at <time>", belonging
// to the date in m. A range right after the date token is preferred over
// one found elsewhere in the text.
func attachTimes(s string, m Match) Match {
	date := m.Date()

	if len(m.Value) > len(date) {
		// The date token already carries a start time; only an
		// immediate "to <time>" can extend it.
		if loc := continueRe.FindStringSubmatchIndex(s[m.End:]); loc != nil {
			if endClock, ok := ParseClock(s[m.End+loc[2] : m.End+loc[3]]); ok {
				m.EndTime = date + "T" + endClock
				m.TimeStart, m.TimeEnd = m.End+len(leadSpaceRe.FindString(s[m.End:])), m.End+loc[1]
			}
		}
		return m
	}

	masked := s[:m.Start] + strings.Repeat(" ", m.End-m.Start) + s[m.End:]

	if start, end, span, ok := findRange(masked, m.End, true); ok {
		return withRange(m, date, start, end, span)
	}
	if start, end, span, ok := findRange(masked, 0, false); ok {
		return withRange(m, date, start, end, span)
	}

	for _, loc := range atRe.FindAllStringSubmatchIndex(masked, -1) {
		if clock, ok := ParseClock(masked[loc[2]:loc[3]]); ok {
			m.Value = date + "T" + clock
			m.TimeStart, m.TimeEnd = loc[0], loc[1]
			return m
		}
	}
	return m
}

func withRange(m Match, date, start, end string, span [2]int) Match {
	m.Value = date + "T" + start
	m.EndTime = date + "T" + end
	m.TimeStart, m.TimeEnd = span[0], span[1]
	return m
}

// findRange scans s from offset for "X to Y" style phrases. With
// immediate set, only a phrase starting right after offset (whitespace
// allowed) counts. Bare number pairs such as "12-14" are ignored unless
// introduced by "from"/"between"/"at" or one side carries a colon or am/pm.
func findRange(s string, offset int, immediate bool) (string, string, [2]int, bool) {
	rest := s[offset:]
	for _, loc := range rangeRe.FindAllStringSubmatchIndex(rest, -1) {
		if immediate && strings.TrimSpace(rest[:loc[0]]) != "" {
			return "", "", [2]int{}, false
		}
		left := strings.TrimSpace(rest[loc[4]:loc[5]])
		right := strings.TrimSpace(rest[loc[6]:loc[7]])
		introduced := loc[2] >= 0
		if !introduced && !looksLikeClock(left) && !looksLikeClock(right) {
			continue
		}
		left, right = shareMeridiem(left, right)
		start, ok1 := ParseClock(left)
		end, ok2 := ParseClock(right)
		if !ok1 || !ok2 {
			continue
		}
		return start, end, [2]int{offset + loc[0], offset + loc[1]}, true
	}
	return "", "", [2]int{}, false
}

func looksLikeClock(tok string) bool {
	return strings.Contains(tok, ":") || meridiemRe.MatchString(tok)
}

// shareMeridiem copies am/pm from one side of a range to the other when
// only one side has it: "3-5pm" reads as 3pm-5pm, "11-1pm" as 11am-1pm.
func shareMeridiem(left, right string) (string, string) {
	lm := strings.ToLower(meridiemRe.FindString(left))
	rm := strings.ToLower(meridiemRe.FindString(right))
	switch {
	case lm == "" && rm != "":
		if hour12(left) <= hour12(right) {
			return left + rm, right
		}
		return left + flip(rm), right
	case lm != "" && rm == "":
		if hour12(right) >= hour12(left) {
			return left, right + lm
		}
		return left, right + flip(lm)
	}
	return left, right
}

func hour12(tok string) int {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(tok))
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	return h % 12
}

func flip(meridiem string) string {
	if meridiem == "am" {
		return "pm"
	}
	return "am"
}

// ParseClock normalizes "3pm", "3:30 pm", "15:30" or "9" to 24-hour HH:MM.
// Anything else, including out-of-range hours or minutes, is not a clock.
func ParseClock(tok string) (string, bool) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(tok))
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if minute > 59 {
		return "", false
	}
	switch strings.ToLower(m[3]) {
	case "am":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return "", false
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour > 23 {
			return "", false
		}
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
