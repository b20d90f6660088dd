package model

// Date layouts used for every stored date string. Lexicographic order of
// these strings is chronological order, which the store relies on.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04"
)

// Event is a single calendar entry as held by the in-memory store.
type Event struct {
	// ID is a random UUID; it doubles as the iCalendar UID on export.
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// Date is DateLayout or DateTimeLayout.
	Date string `json:"date"`
	// End, when set, is always DateTimeLayout.
	End string `json:"end,omitempty"`

	Recurrence *RecurrenceRule `json:"recurrence_rule,omitempty"`
	// NextDue is the first occurrence after the last computation, in the
	// same layout as Date.
	NextDue string `json:"next_due,omitempty"`

	Milestone bool `json:"milestone,omitempty"`
}

// RecurrenceRule is the simplified repeat rule attached to an event.
type RecurrenceRule struct {
	Frequency string `json:"frequency"`
	// Interval is the step multiplier, or the day of month for
	// monthly_on_day.
	Interval int `json:"interval"`
}

// Milestone is one dated checkpoint of a Plan.
type Milestone struct {
	Title string   `json:"title"`
	Due   string   `json:"due"`
	Steps []string `json:"steps"`
}

// Plan is the structured breakdown of a goal into milestones.
type Plan struct {
	Goal               string      `json:"goal"`
	Deadline           string      `json:"deadline,omitempty"`
	EstimatedDays      int         `json:"estimated_days"`
	Milestones         []Milestone `json:"milestones"`
	CadenceSuggestions []string    `json:"cadence_suggestions"`
}
