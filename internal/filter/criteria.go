// Package filter selects task records matching a conjunction of optional
// predicate groups.
package filter

import (
	"time"

	"github.com/msageha/taskscope/internal/model"
)

// Criteria is a conjunction. A nil or empty group never excludes a record.
type Criteria struct {
	Status    []model.Status `json:"status,omitempty" yaml:"status,omitempty"`
	Completed *bool          `json:"completed,omitempty" yaml:"completed,omitempty"`

	Text     *TextCriteria     `json:"text,omitempty" yaml:"text,omitempty"`
	Tags     *TagCriteria      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Priority *PriorityCriteria `json:"priority,omitempty" yaml:"priority,omitempty"`

	Due       *DateRange `json:"due,omitempty" yaml:"due,omitempty"`
	Start     *DateRange `json:"start,omitempty" yaml:"start,omitempty"`
	Scheduled *DateRange `json:"scheduled,omitempty" yaml:"scheduled,omitempty"`
	Done      *DateRange `json:"done,omitempty" yaml:"done,omitempty"`
	Created   *DateRange `json:"created,omitempty" yaml:"created,omitempty"`

	// DueRelative applies to the due date only. Any set predicate requires a due date.
	DueRelative *RelativeCriteria `json:"due_relative,omitempty" yaml:"due_relative,omitempty"`

	Location     *LocationCriteria   `json:"location,omitempty" yaml:"location,omitempty"`
	Recurrence   *RecurrenceCriteria `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	Dependencies *DependencyCriteria `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

type TextCriteria struct {
	// Includes must all occur, case-insensitively.
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	// Excludes must none occur.
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
	Regex    string   `json:"regex,omitempty" yaml:"regex,omitempty"`
}

type TagCriteria struct {
	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
}

type PriorityCriteria struct {
	Is    []model.Priority `json:"is,omitempty" yaml:"is,omitempty"`
	Above model.Priority   `json:"above,omitempty" yaml:"above,omitempty"`
	Below model.Priority   `json:"below,omitempty" yaml:"below,omitempty"`
}

// DateRange bounds are exclusive. On compares calendar days.
type DateRange struct {
	Before *time.Time `json:"before,omitempty" yaml:"before,omitempty"`
	On     *time.Time `json:"on,omitempty" yaml:"on,omitempty"`
	After  *time.Time `json:"after,omitempty" yaml:"after,omitempty"`
	Exists *bool      `json:"exists,omitempty" yaml:"exists,omitempty"`
}

// Localize moves date-only bounds, decoded as UTC midnight, to midnight of the
// same calendar day in loc. Bounds carrying a time of day are left as they are.
func (c *Criteria) Localize(loc *time.Location) {
	if c == nil || loc == nil {
		return
	}
	for _, dr := range []*DateRange{c.Due, c.Start, c.Scheduled, c.Done, c.Created} {
		if dr == nil {
			continue
		}
		for _, bound := range []**time.Time{&dr.Before, &dr.On, &dr.After} {
			if *bound != nil {
				*bound = localDay(**bound, loc)
			}
		}
	}
}

func localDay(t time.Time, loc *time.Location) *time.Time {
	if t.Location() != time.UTC || t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
		return &t
	}
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return &day
}

// RelativeCriteria selects by due date relative to the filter's clock. A
// record without a due date never matches a set predicate.
type RelativeCriteria struct {
	Overdue  bool `json:"overdue,omitempty" yaml:"overdue,omitempty"`
	Today    bool `json:"today,omitempty" yaml:"today,omitempty"`
	Tomorrow bool `json:"tomorrow,omitempty" yaml:"tomorrow,omitempty"`
	// ThisWeek runs from today through the coming Sunday.
	ThisWeek bool `json:"this_week,omitempty" yaml:"this_week,omitempty"`
	// NextWeek is the seven days starting the Monday after the coming Sunday.
	NextWeek   bool `json:"next_week,omitempty" yaml:"next_week,omitempty"`
	PastDays   *int `json:"past_days,omitempty" yaml:"past_days,omitempty"`
	FutureDays *int `json:"future_days,omitempty" yaml:"future_days,omitempty"`
}

func (r *RelativeCriteria) any() bool {
	return r.Overdue || r.Today || r.Tomorrow || r.ThisWeek || r.NextWeek || r.PastDays != nil || r.FutureDays != nil
}

type LocationCriteria struct {
	// Folder is a prefix of the parent folder, e.g. "projects/".
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`
	// File is a substring of the document path.
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

type RecurrenceCriteria struct {
	Has *bool `json:"has,omitempty" yaml:"has,omitempty"`
	// Pattern matches the rule string or the source phrase. It requires a recurrence.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

type DependencyCriteria struct {
	Has *bool `json:"has,omitempty" yaml:"has,omitempty"`
}

// Bool returns a pointer to v, for building criteria literals.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Time returns a pointer to v.
func Time(v time.Time) *time.Time { return &v }
