package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/taskscope/internal/model"
)

// Wednesday.
var now = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func testFilter() Filter {
	return Filter{Now: func() time.Time { return now }, Location: time.UTC}
}

func task(id string, opts ...func(*model.Task)) model.Task {
	t := model.Task{
		ID:    id,
		File:  model.NewFileInfo("projects/work/"+id+".md", nil),
		Line:  model.LineInfo{Number: 1, Text: "- [ ] " + id},
		State: model.StateInfo{Status: model.StatusTodo, Priority: model.PriorityNormal, Valid: true},
	}
	for _, o := range opts {
		o(&t)
	}
	return t
}

func due(d *time.Time) func(*model.Task) { return func(t *model.Task) { t.Dates.Due = d } }
func status(s model.Status) func(*model.Task) {
	return func(t *model.Task) { t.State.Status = s }
}
func priority(p model.Priority) func(*model.Task) {
	return func(t *model.Task) { t.State.Priority = p }
}
func text(s string) func(*model.Task) { return func(t *model.Task) { t.Line.Text = s } }
func tags(tt ...string) func(*model.Task) {
	return func(t *model.Task) { t.Section.Tags = tt }
}
func path(p string) func(*model.Task) {
	return func(t *model.Task) { t.File = model.NewFileInfo(p, nil) }
}

func ids(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestApply_NilCriteria(t *testing.T) {
	in := []model.Task{task("a"), task("b")}
	assert.Equal(t, in, testFilter().Apply(in, nil))
	assert.Equal(t, in, testFilter().Apply(in, &Criteria{}))
}

func TestApply_StatusAndCompleted(t *testing.T) {
	in := []model.Task{
		task("todo"),
		task("done", status(model.StatusDone)),
		task("cancelled", status(model.StatusCancelled)),
		task("doing", status(model.StatusInProgress)),
	}
	f := testFilter()

	assert.Equal(t, []string{"todo", "doing"}, ids(f.Apply(in, &Criteria{Completed: Bool(false)})))
	assert.Equal(t, []string{"done", "cancelled"}, ids(f.Apply(in, &Criteria{Completed: Bool(true)})))
	assert.Equal(t, []string{"todo", "doing"}, ids(f.Apply(in, &Criteria{
		Status: []model.Status{model.StatusTodo, model.StatusInProgress},
	})))
}

func TestApply_Text(t *testing.T) {
	in := []model.Task{
		task("a", text("- [ ] Call Alice about budget")),
		task("b", text("- [ ] Email Bob")),
		task("c", text("- [ ] call bob later")),
	}
	f := testFilter()

	assert.Equal(t, []string{"a", "c"}, ids(f.Apply(in, &Criteria{Text: &TextCriteria{Includes: []string{"CALL"}}})))
	assert.Equal(t, []string{"a"}, ids(f.Apply(in, &Criteria{Text: &TextCriteria{Includes: []string{"call"}, Excludes: []string{"bob"}}})))
	assert.Equal(t, []string{"b", "c"}, ids(f.Apply(in, &Criteria{Text: &TextCriteria{Regex: `b[o]b`}})))
}

func TestApply_BadRegexFailsOpen(t *testing.T) {
	in := []model.Task{task("a"), task("b")}
	var reported []error
	f := testFilter()
	f.OnError = func(err error) { reported = append(reported, err) }

	got := f.Apply(in, &Criteria{Text: &TextCriteria{Regex: "([unclosed"}})
	assert.Equal(t, []string{"a", "b"}, ids(got))
	require.Len(t, reported, 1, "compiled once per call")
}

func TestApply_Tags(t *testing.T) {
	in := []model.Task{
		task("a", tags("#work", "#urgent")),
		task("b", tags("#work")),
		task("c", tags("#home")),
		task("d"),
	}
	f := testFilter()

	assert.Equal(t, []string{"a"}, ids(f.Apply(in, &Criteria{Tags: &TagCriteria{Includes: []string{"#work", "urgent"}}})))
	assert.Equal(t, []string{"b", "c", "d"}, ids(f.Apply(in, &Criteria{Tags: &TagCriteria{Excludes: []string{"#URGENT"}}})))
}

func TestApply_Priority(t *testing.T) {
	in := []model.Task{
		task("highest", priority(model.PriorityHighest)),
		task("high", priority(model.PriorityHigh)),
		task("medium", priority(model.PriorityMedium)),
		task("low", priority(model.PriorityLow)),
		task("normal"),
	}
	f := testFilter()

	tests := []struct {
		name string
		pc   PriorityCriteria
		want []string
	}{
		{"is", PriorityCriteria{Is: []model.Priority{"high", "undefined"}}, []string{"high", "normal"}},
		{"above medium", PriorityCriteria{Above: model.PriorityMedium}, []string{"highest", "high"}},
		{"below medium", PriorityCriteria{Below: model.PriorityMedium}, []string{"low", "normal"}},
		{"above undefined", PriorityCriteria{Above: "undefined"}, []string{"highest", "high", "medium", "low"}},
		{"unknown threshold", PriorityCriteria{Above: "urgent"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := tt.pc
			assert.Equal(t, tt.want, ids(f.Apply(in, &Criteria{Priority: &pc})))
		})
	}
}

func TestApply_DateRange(t *testing.T) {
	in := []model.Task{
		task("jan5", due(date(2024, 1, 5))),
		task("jan10", due(date(2024, 1, 10))),
		task("jan20", due(date(2024, 1, 20))),
		task("none"),
	}
	f := testFilter()

	tests := []struct {
		name string
		dr   DateRange
		want []string
	}{
		{"before", DateRange{Before: date(2024, 1, 10)}, []string{"jan5", "none"}},
		{"after", DateRange{After: date(2024, 1, 10)}, []string{"jan20", "none"}},
		{"on", DateRange{On: date(2024, 1, 10)}, []string{"jan10", "none"}},
		{"between", DateRange{After: date(2024, 1, 1), Before: date(2024, 1, 15), Exists: Bool(true)}, []string{"jan5", "jan10"}},
		{"missing", DateRange{Exists: Bool(false)}, []string{"none"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr := tt.dr
			assert.Equal(t, tt.want, ids(f.Apply(in, &Criteria{Due: &dr})))
		})
	}
}

func TestApply_DueRelative(t *testing.T) {
	in := []model.Task{
		task("past", due(date(2024, 1, 3))),
		task("yesterday", due(date(2024, 1, 9))),
		task("today", due(date(2024, 1, 10))),
		task("tomorrow", due(date(2024, 1, 11))),
		task("sunday", due(date(2024, 1, 14))),
		task("nextmon", due(date(2024, 1, 15))),
		task("nextsun", due(date(2024, 1, 21))),
		task("later", due(date(2024, 1, 22))),
		task("none"),
	}
	f := testFilter()

	tests := []struct {
		name string
		rc   RelativeCriteria
		want []string
	}{
		{"overdue", RelativeCriteria{Overdue: true}, []string{"past", "yesterday"}},
		{"today", RelativeCriteria{Today: true}, []string{"today"}},
		{"tomorrow", RelativeCriteria{Tomorrow: true}, []string{"tomorrow"}},
		{"this week", RelativeCriteria{ThisWeek: true}, []string{"today", "tomorrow", "sunday"}},
		{"next week", RelativeCriteria{NextWeek: true}, []string{"nextmon", "nextsun"}},
		{"past 3 days", RelativeCriteria{PastDays: Int(3)}, []string{"yesterday"}},
		{"future 1 day", RelativeCriteria{FutureDays: Int(1)}, []string{"today", "tomorrow"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := tt.rc
			assert.Equal(t, tt.want, ids(f.Apply(in, &Criteria{DueRelative: &rc})))
		})
	}
}

func TestApply_DueRelativeRespectsLocation(t *testing.T) {
	// 2024-01-10 23:30 UTC is already 2024-01-11 in Tokyo.
	tokyo := time.FixedZone("JST", 9*3600)
	f := Filter{Now: func() time.Time { return time.Date(2024, 1, 10, 23, 30, 0, 0, time.UTC) }, Location: tokyo}
	d := time.Date(2024, 1, 11, 0, 0, 0, 0, tokyo)
	in := []model.Task{task("a", due(&d))}

	assert.Len(t, f.Apply(in, &Criteria{DueRelative: &RelativeCriteria{Today: true}}), 1)
}

func TestApply_Location(t *testing.T) {
	in := []model.Task{
		task("a", path("projects/work/plan.md")),
		task("b", path("projects/home.md")),
		task("c", path("inbox.md")),
	}
	f := testFilter()

	assert.Equal(t, []string{"a", "b"}, ids(f.Apply(in, &Criteria{Location: &LocationCriteria{Folder: "projects/"}})))
	assert.Equal(t, []string{"a"}, ids(f.Apply(in, &Criteria{Location: &LocationCriteria{Folder: "projects/work"}})))
	assert.Equal(t, []string{"b"}, ids(f.Apply(in, &Criteria{Location: &LocationCriteria{File: "home"}})))
}

func TestApply_RecurrenceAndDependencies(t *testing.T) {
	rule := "FREQ=WEEKLY;INTERVAL=1"
	in := []model.Task{
		task("rec", func(t *model.Task) {
			t.Flow.Recurrence = &rule
			t.Flow.RecurrenceText = "every week"
		}),
		task("dep", func(t *model.Task) { t.Flow.DependsOn = []string{"x"} }),
		task("plain"),
	}
	f := testFilter()

	assert.Equal(t, []string{"rec"}, ids(f.Apply(in, &Criteria{Recurrence: &RecurrenceCriteria{Has: Bool(true)}})))
	assert.Equal(t, []string{"dep", "plain"}, ids(f.Apply(in, &Criteria{Recurrence: &RecurrenceCriteria{Has: Bool(false)}})))
	assert.Equal(t, []string{"rec"}, ids(f.Apply(in, &Criteria{Recurrence: &RecurrenceCriteria{Pattern: "weekly"}})))
	assert.Equal(t, []string{"rec"}, ids(f.Apply(in, &Criteria{Recurrence: &RecurrenceCriteria{Pattern: "every week"}})))
	assert.Equal(t, []string{"dep"}, ids(f.Apply(in, &Criteria{Dependencies: &DependencyCriteria{Has: Bool(true)}})))
}

func TestApply_IsIdempotent(t *testing.T) {
	in := []model.Task{
		task("a", due(date(2024, 1, 9))),
		task("b", due(date(2024, 1, 12)), priority(model.PriorityHigh)),
		task("c"),
		task("d", due(date(2024, 2, 1)), status(model.StatusDone)),
	}
	criteria := []*Criteria{
		{Due: &DateRange{After: date(2024, 1, 1), Before: date(2024, 1, 31)}},
		{DueRelative: &RelativeCriteria{ThisWeek: true}},
		{Due: &DateRange{Exists: Bool(false)}, Completed: Bool(false)},
		{Done: &DateRange{On: date(2024, 1, 1)}},
	}
	f := testFilter()
	for i, c := range criteria {
		once := f.Apply(in, c)
		twice := f.Apply(once, c)
		assert.Equal(t, once, twice, "criteria %d", i)
	}
}

func TestMatch(t *testing.T) {
	f := testFilter()
	assert.True(t, f.Match(task("a"), nil))
	assert.False(t, f.Match(task("a"), &Criteria{Completed: Bool(true)}))
}

func TestCriteria_Localize(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	noon := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	c := &Criteria{
		Due:  &DateRange{On: date(2024, 1, 10)},
		Done: &DateRange{After: &noon},
	}
	c.Localize(ny)

	require.NotNil(t, c.Due.On)
	assert.True(t, time.Date(2024, 1, 10, 0, 0, 0, 0, ny).Equal(*c.Due.On))
	assert.True(t, noon.Equal(*c.Done.After), "time of day is kept")

	jan9 := time.Date(2024, 1, 9, 0, 0, 0, 0, ny)
	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, ny)
	in := []model.Task{task("jan9", due(&jan9)), task("jan10", due(&jan10))}
	f := Filter{Now: func() time.Time { return now }, Location: ny}
	assert.Equal(t, []string{"jan10"}, ids(f.Apply(in, &Criteria{Due: c.Due})))

	var nilCriteria *Criteria
	nilCriteria.Localize(ny)
}
