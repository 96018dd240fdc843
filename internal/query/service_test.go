package query

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/msageha/taskscope/internal/cache"
	"github.com/msageha/taskscope/internal/events"
	"github.com/msageha/taskscope/internal/extract"
	"github.com/msageha/taskscope/internal/filter"
	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/parse"
	"github.com/msageha/taskscope/internal/sorter"
)

// memVault serves documents from memory in sorted path order.
type memVault struct {
	mu    sync.Mutex
	docs  map[string]string
	reads map[string]int
}

func (v *memVault) List(context.Context) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	paths := make([]string, 0, len(v.docs))
	for p := range v.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (v *memVault) Read(_ context.Context, path string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reads[path]++
	c, ok := v.docs[path]
	if !ok {
		return "", errors.New("not found")
	}
	return c, nil
}

func (v *memVault) set(path, content string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if content == "" {
		delete(v.docs, path)
		return
	}
	v.docs[path] = content
}

// Wednesday 2024-01-10.
var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, docs map[string]string, opts ...ServiceOption) (*Service, *memVault, *events.Bus) {
	t.Helper()
	v := &memVault{docs: maps.Clone(docs), reads: map[string]int{}}
	log := logging.Discard()
	bus := events.NewBus(50)
	t.Cleanup(bus.Close)

	x := extract.New(v, parse.New(time.UTC, log), log)
	coord := NewCoordinator(v, x, cache.New(time.Minute), WithLogger(log), WithBus(bus))
	base := []ServiceOption{
		WithClock(func() time.Time { return testNow }),
		WithLocation(time.UTC),
		WithLocale(language.English),
		WithServiceBus(bus),
		WithServiceLogger(log),
	}
	return NewService(coord, append(base, opts...)...), v, bus
}

var vaultDocs = map[string]string{
	"inbox.md": `- [ ] Call plumber 📅 2024-01-10 ⏫
- [ ] Pay rent 📅 2024-01-09 🔼
- [x] Buy milk ✅ 2024-01-08 📅 2024-01-07
- [ ] Someday idea #ideas
`,
	"projects/alpha.md": `---
owner: sam
---
- [/] Draft proposal 📅 2024-01-12 #work 🆔 draft
- [ ] Review draft ⛔ draft 📅 2024-01-11 #work
- [ ] Weekly sync 🔁 every week 📅 2024-01-15 #work #meeting
- [-] Old plan ❌ 2024-01-02
`,
	"projects/beta/notes.md": `- [ ] Learn Go 🔺
- [x] Ship beta ✅ 2023-12-01
`,
}

func TestService_GetFilteredTasksPipeline(t *testing.T) {
	s, _, _ := newTestService(t, vaultDocs)
	ctx := context.Background()

	all := s.GetAllTasks(ctx)
	require.Len(t, all, 10)

	got := s.GetFilteredTasks(ctx, &Query{
		Criteria:   &filter.Criteria{Completed: filter.Bool(false)},
		Sort:       []sorter.Field{sorter.FieldDue},
		Directions: []sorter.Direction{sorter.Asc},
		Limit:      4,
		GroupBy:    sorter.GroupPath,
	})
	require.Len(t, got, 4)
	// Due order is rent, plumber, review, draft; grouping keeps bucket order of first appearance.
	assert.Equal(t, []string{"inbox.md#2", "inbox.md#1", "projects/alpha.md#5", "draft"}, ids(got))
	assert.Equal(t, "/", got[0].GroupLabel)
	assert.Equal(t, "projects", got[2].GroupLabel)

	assert.Equal(t, all, s.GetFilteredTasks(ctx, nil))
}

func TestService_NamedQueries(t *testing.T) {
	s, _, _ := newTestService(t, vaultDocs)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() []model.Task
		want []string
	}{
		{"pending", func() []model.Task { return s.Pending(ctx) }, []string{
			"inbox.md#1", "inbox.md#2", "inbox.md#4", "draft", "projects/alpha.md#5", "projects/alpha.md#6", "projects/beta/notes.md#1",
		}},
		{"completed", func() []model.Task { return s.Completed(ctx) }, []string{"inbox.md#3", "projects/alpha.md#7", "projects/beta/notes.md#2"}},
		{"today", func() []model.Task { return s.DueToday(ctx) }, []string{"inbox.md#1"}},
		{"tomorrow", func() []model.Task { return s.DueTomorrow(ctx) }, []string{"projects/alpha.md#5"}},
		{"overdue", func() []model.Task { return s.Overdue(ctx) }, []string{"inbox.md#2"}},
		{"this week", func() []model.Task { return s.ThisWeek(ctx) }, []string{"inbox.md#1", "projects/alpha.md#5", "draft"}},
		{"next week", func() []model.Task { return s.NextWeek(ctx) }, []string{"projects/alpha.md#6"}},
		// A completed record without a done date is not excluded by the range.
		{"recently completed", func() []model.Task { return s.RecentlyCompleted(ctx, 0) }, []string{"inbox.md#3", "projects/alpha.md#7"}},
		{"high priority", func() []model.Task { return s.HighPriority(ctx) }, []string{"inbox.md#1"}},
		{"by tag", func() []model.Task { return s.ByTags(ctx, "work", "#meeting") }, []string{"projects/alpha.md#6"}},
		{"by status", func() []model.Task { return s.ByStatus(ctx, model.StatusInProgress, model.StatusCancelled) }, []string{"draft", "projects/alpha.md#7"}},
		{"by priority", func() []model.Task { return s.ByPriority(ctx, model.PriorityHighest, model.PriorityMedium) }, []string{"inbox.md#2", "projects/beta/notes.md#1"}},
		{"by folder", func() []model.Task { return s.ByFolder(ctx, "projects/beta/") }, []string{"projects/beta/notes.md#1", "projects/beta/notes.md#2"}},
		{"by text", func() []model.Task { return s.ByText(ctx, "DRAFT") }, []string{"projects/alpha.md#5", "draft"}},
		{"in range", func() []model.Task {
			return s.InDateRange(ctx, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
		}, []string{"inbox.md#1", "projects/alpha.md#5", "draft"}},
		{"without due", func() []model.Task { return s.WithoutDueDate(ctx) }, []string{"projects/beta/notes.md#1", "inbox.md#4"}},
		{"recurring", func() []model.Task { return s.Recurring(ctx) }, []string{"projects/alpha.md#6"}},
		{"blocked", func() []model.Task { return s.Blocked(ctx) }, []string{"projects/alpha.md#5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.run()))
		})
	}
}

func TestService_Named(t *testing.T) {
	s, _, _ := newTestService(t, vaultDocs)
	ctx := context.Background()

	got, err := s.Named(ctx, "by-status", "in-progress")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft"}, ids(got))

	got, err = s.Named(ctx, "in-date-range", "2024-01-11", "2024-01-13")
	require.NoError(t, err)
	assert.Equal(t, []string{"draft"}, ids(got))

	for _, name := range NamedQueries() {
		args := map[string][]string{
			"by-tag": {"work"}, "by-status": {"todo"}, "by-priority": {"high"},
			"by-folder": {"projects/"}, "by-text": {"a"}, "in-date-range": {"2024-01-01", "2024-02-01"},
		}[name]
		_, err := s.Named(ctx, name, args...)
		assert.NoError(t, err, name)
	}

	_, err = s.Named(ctx, "by-tag")
	assert.Error(t, err)
	_, err = s.Named(ctx, "by-status", "sleeping")
	assert.Error(t, err)
	_, err = s.Named(ctx, "recently-completed", "many")
	assert.Error(t, err)
	_, err = s.Named(ctx, "everything")
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestService_Search(t *testing.T) {
	s, _, _ := newTestService(t, vaultDocs)
	ctx := context.Background()

	got := s.Search(ctx, "drft", 0)
	assert.ElementsMatch(t, []string{"draft", "projects/alpha.md#5"}, ids(got))

	assert.Len(t, s.Search(ctx, "e", 2), 2)
	assert.Nil(t, s.Search(ctx, "  ", 5))
}

func TestService_HandleDocumentEvent(t *testing.T) {
	s, v, bus := newTestService(t, vaultDocs)
	ctx := context.Background()
	updates := make(chan events.Event, 10)
	defer bus.Subscribe(func(e events.Event) { updates <- e }, events.EventTasksUpdated)()

	s.GetAllTasks(ctx)
	require.Equal(t, 1, v.reads["inbox.md"])

	v.set("inbox.md", "- [ ] Only one left\n")
	s.HandleDocumentEvent(DocumentEvent{Op: OpModified, Path: "inbox.md"})
	all := s.GetAllTasks(ctx)
	require.Len(t, all, 7)
	assert.Equal(t, "Only one left", all[0].Section.Description)
	assert.Equal(t, 2, v.reads["inbox.md"])
	assert.Equal(t, 1, v.reads["projects/alpha.md"])

	v.set("projects/beta/notes.md", "")
	v.set("projects/gamma.md", "- [ ] Moved\n")
	s.HandleDocumentEvent(DocumentEvent{Op: OpRenamed, OldPath: "projects/beta/notes.md", Path: "projects/gamma.md"})
	all = s.GetAllTasks(ctx)
	assert.Len(t, all, 6)
	assert.Equal(t, 1, v.reads["projects/alpha.md"])

	s.HandleDocumentEvent(DocumentEvent{Op: OpDeleted, Path: "projects", IsDir: true})
	assert.False(t, s.Coordinator().Cache().HasFileCache("projects/alpha.md"))

	for i := 0; i < 3; i++ {
		select {
		case e := <-updates:
			assert.Equal(t, events.EventTasksUpdated, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected tasks_updated event %d", i)
		}
	}
}

func TestService_InvalidateAndForceRefresh(t *testing.T) {
	s, v, _ := newTestService(t, vaultDocs)
	ctx := context.Background()

	s.GetAllTasks(ctx)
	s.InvalidateFileCache("inbox.md")
	s.GetAllTasks(ctx)
	assert.Equal(t, 2, v.reads["inbox.md"])
	assert.Equal(t, 1, v.reads["projects/alpha.md"])

	s.InvalidateAllCache()
	assert.False(t, s.Coordinator().Cache().IsGlobalCacheValid())

	s.ForceRefreshTasks(ctx)
	assert.Equal(t, 2, v.reads["projects/alpha.md"])
}

func TestService_BadRegexFailsOpen(t *testing.T) {
	s, _, _ := newTestService(t, vaultDocs)
	got := s.GetFilteredTasks(context.Background(), &Query{
		Criteria: &filter.Criteria{Text: &filter.TextCriteria{Regex: "(("}},
	})
	assert.Len(t, got, 10)
}

func TestService_InDateRangeSkipsUndated(t *testing.T) {
	s, _, _ := newTestService(t, map[string]string{
		"a.md": "- [ ] dated 📅 2024-01-12\n- [ ] undated\n",
	})
	got := s.InDateRange(context.Background(),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"a.md#1"}, ids(got))
}

func TestNewTestService_CopiesDocuments(t *testing.T) {
	docs := map[string]string{"a.md": "- [ ] one\n"}
	_, v, _ := newTestService(t, docs)
	v.set("a.md", "")
	v.set("b.md", "- [ ] two\n")
	assert.Equal(t, map[string]string{"a.md": "- [ ] one\n"}, docs)
}
