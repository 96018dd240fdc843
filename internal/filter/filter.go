package filter

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/msageha/taskscope/internal/model"
)

// Filter evaluates Criteria. The zero value uses time.Now, time.Local and
// drops regex errors.
type Filter struct {
	Now      func() time.Time
	Location *time.Location
	// OnError receives errors from predicates that failed open.
	OnError func(error)
}

// Apply returns the records of tasks that satisfy c, in input order.
// A nil c returns a copy of tasks.
func (f Filter) Apply(tasks []model.Task, c *Criteria) []model.Task {
	if c == nil {
		return slices.Clone(tasks)
	}
	m := f.compile(c)
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if m.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Match reports whether one record satisfies c.
func (f Filter) Match(t model.Task, c *Criteria) bool {
	if c == nil {
		return true
	}
	return f.compile(c).match(t)
}

type matcher struct {
	c     *Criteria
	loc   *time.Location
	today int
	regex *regexp.Regexp
}

func (f Filter) compile(c *Criteria) *matcher {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	m := &matcher{c: c, loc: loc, today: dayNumber(now(), loc)}

	if c.Text != nil && c.Text.Regex != "" {
		re, err := regexp.Compile("(?i)" + c.Text.Regex)
		if err != nil {
			if f.OnError != nil {
				f.OnError(fmt.Errorf("text regex %q ignored: %w", c.Text.Regex, err))
			}
		} else {
			m.regex = re
		}
	}
	return m
}

func (m *matcher) match(t model.Task) bool {
	c := m.c
	return m.matchStatus(t) &&
		m.matchText(t, c.Text) &&
		matchTags(t, c.Tags) &&
		matchPriority(t, c.Priority) &&
		m.matchDate(t.Dates.Due, c.Due) &&
		m.matchDate(t.Dates.Start, c.Start) &&
		m.matchDate(t.Dates.Scheduled, c.Scheduled) &&
		m.matchDate(t.Dates.Done, c.Done) &&
		m.matchDate(t.Dates.Created, c.Created) &&
		m.matchRelative(t.Dates.Due, c.DueRelative) &&
		matchLocation(t, c.Location) &&
		matchRecurrence(t, c.Recurrence) &&
		matchDependencies(t, c.Dependencies)
}

func (m *matcher) matchStatus(t model.Task) bool {
	if len(m.c.Status) > 0 && !slices.Contains(m.c.Status, t.State.Status) {
		return false
	}
	if m.c.Completed != nil && t.IsCompleted() != *m.c.Completed {
		return false
	}
	return true
}

func (m *matcher) matchText(t model.Task, tc *TextCriteria) bool {
	if tc == nil {
		return true
	}
	text := strings.ToLower(strings.TrimSpace(t.Line.Text))
	for _, term := range tc.Includes {
		if !strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	for _, term := range tc.Excludes {
		if term != "" && strings.Contains(text, strings.ToLower(term)) {
			return false
		}
	}
	if m.regex != nil && !m.regex.MatchString(text) {
		return false
	}
	return true
}

func matchTags(t model.Task, tc *TagCriteria) bool {
	if tc == nil {
		return true
	}
	has := func(tag string) bool {
		tag = normalizeTag(tag)
		for _, have := range t.Section.Tags {
			if strings.EqualFold(have, tag) {
				return true
			}
		}
		return false
	}
	for _, tag := range tc.Includes {
		if !has(tag) {
			return false
		}
	}
	for _, tag := range tc.Excludes {
		if has(tag) {
			return false
		}
	}
	return true
}

func normalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}

func matchPriority(t model.Task, pc *PriorityCriteria) bool {
	if pc == nil {
		return true
	}
	have, _ := model.ParsePriority(string(t.State.Priority))
	if len(pc.Is) > 0 {
		found := false
		for _, p := range pc.Is {
			if want, ok := model.ParsePriority(string(p)); ok && want == have {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if pc.Above != "" {
		threshold, ok := model.ParsePriority(string(pc.Above))
		if !ok || model.PriorityRank(have) >= model.PriorityRank(threshold) {
			return false
		}
	}
	if pc.Below != "" {
		threshold, ok := model.ParsePriority(string(pc.Below))
		if !ok || model.PriorityRank(have) <= model.PriorityRank(threshold) {
			return false
		}
	}
	return true
}

func (m *matcher) matchDate(d *time.Time, dr *DateRange) bool {
	if dr == nil {
		return true
	}
	if dr.Exists != nil && (d != nil) != *dr.Exists {
		return false
	}
	if d == nil {
		return true
	}
	if dr.Before != nil && !d.Before(*dr.Before) {
		return false
	}
	if dr.On != nil && dayNumber(*d, m.loc) != dayNumber(*dr.On, m.loc) {
		return false
	}
	if dr.After != nil && !d.After(*dr.After) {
		return false
	}
	return true
}

func (m *matcher) matchRelative(d *time.Time, rc *RelativeCriteria) bool {
	if rc == nil || !rc.any() {
		return true
	}
	if d == nil {
		return false
	}
	due := dayNumber(*d, m.loc)
	today := m.today

	if rc.Overdue && due >= today {
		return false
	}
	if rc.Today && due != today {
		return false
	}
	if rc.Tomorrow && due != today+1 {
		return false
	}
	weekday := weekdayOf(today)
	if rc.ThisWeek {
		end := today + 7 - weekday
		if due < today || due > end {
			return false
		}
	}
	if rc.NextWeek {
		start := today + 7 - weekday + 1
		if due < start || due > start+6 {
			return false
		}
	}
	if rc.PastDays != nil && (due < today-*rc.PastDays || due >= today) {
		return false
	}
	if rc.FutureDays != nil && (due < today || due > today+*rc.FutureDays) {
		return false
	}
	return true
}

func matchLocation(t model.Task, lc *LocationCriteria) bool {
	if lc == nil {
		return true
	}
	if lc.Folder != "" && !strings.HasPrefix(t.File.Folder(), lc.Folder) {
		return false
	}
	if lc.File != "" && !strings.Contains(t.File.Path, lc.File) {
		return false
	}
	return true
}

func matchRecurrence(t model.Task, rc *RecurrenceCriteria) bool {
	if rc == nil {
		return true
	}
	has := t.HasRecurrence()
	if rc.Has != nil && has != *rc.Has {
		return false
	}
	if rc.Pattern != "" {
		if !has {
			return false
		}
		p := strings.ToLower(rc.Pattern)
		if !strings.Contains(strings.ToLower(*t.Flow.Recurrence), p) &&
			!strings.Contains(strings.ToLower(t.Flow.RecurrenceText), p) {
			return false
		}
	}
	return true
}

func matchDependencies(t model.Task, dc *DependencyCriteria) bool {
	if dc == nil || dc.Has == nil {
		return true
	}
	return t.HasDependencies() == *dc.Has
}

// dayNumber counts calendar days since the Unix epoch for t's date in loc.
func dayNumber(t time.Time, loc *time.Location) int {
	y, mo, d := t.In(loc).Date()
	return int(time.Date(y, mo, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// weekdayOf returns 0 for Sunday through 6 for Saturday.
func weekdayOf(day int) int {
	// 1970-01-01 was a Thursday.
	return ((day%7)+7+4) % 7
}
