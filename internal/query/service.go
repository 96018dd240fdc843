package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/language"

	"github.com/msageha/taskscope/internal/cache"
	"github.com/msageha/taskscope/internal/events"
	"github.com/msageha/taskscope/internal/filter"
	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/sorter"
)

var ErrUnknownQuery = errors.New("unknown query")

// Query describes one call to GetFilteredTasks. The stages run in order:
// filter, sort, limit, group.
type Query struct {
	Criteria   *filter.Criteria
	Sort       []sorter.Field
	Directions []sorter.Direction
	// Limit keeps the first Limit records when positive.
	Limit   int
	GroupBy sorter.GroupField
}

type Service struct {
	coord  *Coordinator
	cache  *cache.Cache
	bus    *events.Bus
	logger *logging.Logger
	now    func() time.Time
	loc    *time.Location
	locale language.Tag
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the calendar used for relative dates and grouping.
func WithLocation(loc *time.Location) ServiceOption {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLocale(tag language.Tag) ServiceOption {
	return func(s *Service) { s.locale = tag }
}

func WithServiceBus(b *events.Bus) ServiceOption {
	return func(s *Service) { s.bus = b }
}

func WithServiceLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = l.With("query") }
}

func NewService(coord *Coordinator, opts ...ServiceOption) *Service {
	s := &Service{
		coord: coord,
		cache: coord.Cache(),
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Coordinator() *Coordinator {
	return s.coord
}

func (s *Service) GetAllTasks(ctx context.Context) []model.Task {
	return s.coord.AllTasks(ctx)
}

// GetFilteredTasks never fails. A nil q returns every record.
func (s *Service) GetFilteredTasks(ctx context.Context, q *Query) []model.Task {
	tasks := s.coord.AllTasks(ctx)
	if q == nil {
		return tasks
	}

	f := filter.Filter{
		Now:      s.now,
		Location: s.loc,
		OnError:  func(err error) { s.logger.Warnf("filter: %v", err) },
	}
	tasks = f.Apply(tasks, q.Criteria)

	opts := sorter.Options{Locale: s.locale, Location: s.loc}
	if len(q.Sort) > 0 {
		tasks = sorter.Sort(tasks, q.Sort, q.Directions, opts)
	}
	if q.Limit > 0 && len(tasks) > q.Limit {
		tasks = tasks[:q.Limit]
	}
	if q.GroupBy != "" {
		tasks = sorter.Group(tasks, q.GroupBy, opts)
	}
	return tasks
}

// Search ranks records by fuzzy match of text against their descriptions.
func (s *Service) Search(ctx context.Context, text string, limit int) []model.Task {
	tasks := s.coord.AllTasks(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	matches := fuzzy.FindFrom(text, descriptions(tasks))

	out := make([]model.Task, 0, len(matches))
	for _, m := range matches {
		out = append(out, tasks[m.Index])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// descriptions adapts records to fuzzy.Source.
type descriptions []model.Task

func (d descriptions) String(i int) string { return d[i].Section.Description }
func (d descriptions) Len() int            { return len(d) }

// InvalidateFileCache drops one document's records.
func (s *Service) InvalidateFileCache(path string) {
	s.cache.InvalidateFile(path)
	s.bus.Publish(events.Event{Type: events.EventTasksUpdated, Path: path, Reason: "invalidated"})
}

func (s *Service) InvalidateAllCache() {
	s.cache.InvalidateAll()
	s.bus.Publish(events.Event{Type: events.EventTasksUpdated, Reason: "invalidated all"})
}

func (s *Service) ForceRefreshTasks(ctx context.Context) []model.Task {
	s.bus.Publish(events.Event{Type: events.EventTasksUpdated, Reason: "force refresh"})
	return s.coord.ForceRefresh(ctx)
}

// Op is a document lifecycle operation reported by the host.
type Op string

const (
	OpModified Op = "modified"
	OpCreated  Op = "created"
	OpDeleted  Op = "deleted"
	OpRenamed  Op = "renamed"
)

type DocumentEvent struct {
	Op      Op
	Path    string
	OldPath string
	// IsDir marks folder events, which invalidate everything.
	IsDir bool
}

// HandleDocumentEvent maps a lifecycle notification onto cache invalidation.
func (s *Service) HandleDocumentEvent(e DocumentEvent) {
	s.logger.Debugf("document %s: %s (old %q, dir %v)", e.Op, e.Path, e.OldPath, e.IsDir)
	if e.IsDir {
		s.cache.InvalidateAll()
		s.bus.Publish(events.Event{Type: events.EventTasksUpdated, Path: e.Path, Reason: string(e.Op)})
		return
	}
	switch e.Op {
	case OpRenamed:
		if e.OldPath != "" {
			s.cache.InvalidateFile(e.OldPath)
		}
		s.cache.InvalidateFile(e.Path)
	case OpModified, OpCreated, OpDeleted:
		s.cache.InvalidateFile(e.Path)
	default:
		s.cache.InvalidateAll()
	}
	s.bus.Publish(events.Event{Type: events.EventTasksUpdated, Path: e.Path, Reason: string(e.Op)})
}

func (s *Service) run(ctx context.Context, c *filter.Criteria, dirs []sorter.Direction, keys ...sorter.Field) []model.Task {
	return s.GetFilteredTasks(ctx, &Query{Criteria: c, Sort: keys, Directions: dirs})
}

var (
	ascAsc = []sorter.Direction{sorter.Asc, sorter.Asc}
	desc   = []sorter.Direction{sorter.Desc}
)

func (s *Service) Pending(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{Completed: filter.Bool(false)}, nil)
}

func (s *Service) Completed(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{Completed: filter.Bool(true)}, nil)
}

func (s *Service) DueToday(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:   filter.Bool(false),
		DueRelative: &filter.RelativeCriteria{Today: true},
	}, ascAsc, sorter.FieldPriority, sorter.FieldText)
}

func (s *Service) DueTomorrow(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:   filter.Bool(false),
		DueRelative: &filter.RelativeCriteria{Tomorrow: true},
	}, ascAsc, sorter.FieldPriority, sorter.FieldText)
}

func (s *Service) Overdue(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:   filter.Bool(false),
		DueRelative: &filter.RelativeCriteria{Overdue: true},
	}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

func (s *Service) ThisWeek(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:   filter.Bool(false),
		DueRelative: &filter.RelativeCriteria{ThisWeek: true},
	}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

func (s *Service) NextWeek(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:   filter.Bool(false),
		DueRelative: &filter.RelativeCriteria{NextWeek: true},
	}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

// RecentlyCompleted returns records done within the last days days. A
// non-positive days means 7.
func (s *Service) RecentlyCompleted(ctx context.Context, days int) []model.Task {
	if days <= 0 {
		days = 7
	}
	after := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.run(ctx, &filter.Criteria{
		Completed: filter.Bool(true),
		Done:      &filter.DateRange{After: &after},
	}, desc, sorter.FieldDone)
}

func (s *Service) HighPriority(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed: filter.Bool(false),
		Priority:  &filter.PriorityCriteria{Is: []model.Priority{model.PriorityHigh}},
	}, nil, sorter.FieldDue)
}

func (s *Service) ByTags(ctx context.Context, tags ...string) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Tags: &filter.TagCriteria{Includes: tags},
	}, ascAsc, sorter.FieldPriority, sorter.FieldDue)
}

func (s *Service) ByStatus(ctx context.Context, statuses ...model.Status) []model.Task {
	return s.run(ctx, &filter.Criteria{Status: statuses}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

func (s *Service) ByPriority(ctx context.Context, priorities ...model.Priority) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Priority: &filter.PriorityCriteria{Is: priorities},
	}, ascAsc, sorter.FieldDue, sorter.FieldText)
}

func (s *Service) ByFolder(ctx context.Context, folder string) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Location: &filter.LocationCriteria{Folder: folder},
	}, ascAsc, sorter.FieldPriority, sorter.FieldDue)
}

func (s *Service) ByText(ctx context.Context, text string) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Text: &filter.TextCriteria{Includes: []string{text}},
	}, ascAsc, sorter.FieldPriority, sorter.FieldDue)
}

// InDateRange returns open records due strictly between start and end.
func (s *Service) InDateRange(ctx context.Context, start, end time.Time) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed: filter.Bool(false),
		Due:       &filter.DateRange{After: &start, Before: &end, Exists: filter.Bool(true)},
	}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

func (s *Service) WithoutDueDate(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed: filter.Bool(false),
		Due:       &filter.DateRange{Exists: filter.Bool(false)},
	}, ascAsc, sorter.FieldPriority, sorter.FieldText)
}

func (s *Service) Recurring(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Recurrence: &filter.RecurrenceCriteria{Has: filter.Bool(true)},
	}, ascAsc, sorter.FieldDue, sorter.FieldPriority)
}

// Blocked returns open records that depend on other records.
func (s *Service) Blocked(ctx context.Context) []model.Task {
	return s.run(ctx, &filter.Criteria{
		Completed:    filter.Bool(false),
		Dependencies: &filter.DependencyCriteria{Has: filter.Bool(true)},
	}, ascAsc, sorter.FieldPriority, sorter.FieldDue)
}

// NamedQueries lists the names accepted by Named, in display order.
func NamedQueries() []string {
	return []string{
		"pending", "completed", "today", "tomorrow", "overdue", "this-week",
		"next-week", "recently-completed", "high-priority", "by-tag",
		"by-status", "by-priority", "by-folder", "by-text", "in-date-range",
		"without-due-date", "recurring", "blocked",
	}
}

// Named runs a convenience query by name. Dates in args use YYYY-MM-DD.
func (s *Service) Named(ctx context.Context, name string, args ...string) ([]model.Task, error) {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("query %s needs %d argument(s)", name, n)
		}
		return nil
	}

	switch strings.ToLower(name) {
	case "pending":
		return s.Pending(ctx), nil
	case "completed":
		return s.Completed(ctx), nil
	case "today", "due-today":
		return s.DueToday(ctx), nil
	case "tomorrow", "due-tomorrow":
		return s.DueTomorrow(ctx), nil
	case "overdue":
		return s.Overdue(ctx), nil
	case "this-week":
		return s.ThisWeek(ctx), nil
	case "next-week":
		return s.NextWeek(ctx), nil
	case "recently-completed":
		days := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("query %s: days: %w", name, err)
			}
			days = n
		}
		return s.RecentlyCompleted(ctx, days), nil
	case "high-priority":
		return s.HighPriority(ctx), nil
	case "by-tag":
		if err := need(1); err != nil {
			return nil, err
		}
		return s.ByTags(ctx, args...), nil
	case "by-status":
		if err := need(1); err != nil {
			return nil, err
		}
		statuses := make([]model.Status, 0, len(args))
		for _, a := range args {
			st, ok := model.ParseStatus(a)
			if !ok {
				return nil, fmt.Errorf("query %s: unknown status %q", name, a)
			}
			statuses = append(statuses, st)
		}
		return s.ByStatus(ctx, statuses...), nil
	case "by-priority":
		if err := need(1); err != nil {
			return nil, err
		}
		priorities := make([]model.Priority, 0, len(args))
		for _, a := range args {
			p, ok := model.ParsePriority(a)
			if !ok {
				return nil, fmt.Errorf("query %s: unknown priority %q", name, a)
			}
			priorities = append(priorities, p)
		}
		return s.ByPriority(ctx, priorities...), nil
	case "by-folder":
		if err := need(1); err != nil {
			return nil, err
		}
		return s.ByFolder(ctx, args[0]), nil
	case "by-text":
		if err := need(1); err != nil {
			return nil, err
		}
		return s.ByText(ctx, strings.Join(args, " ")), nil
	case "in-date-range":
		if err := need(2); err != nil {
			return nil, err
		}
		start, err := time.ParseInLocation("2006-01-02", args[0], s.loc)
		if err != nil {
			return nil, fmt.Errorf("query %s: start: %w", name, err)
		}
		end, err := time.ParseInLocation("2006-01-02", args[1], s.loc)
		if err != nil {
			return nil, fmt.Errorf("query %s: end: %w", name, err)
		}
		return s.InDateRange(ctx, start, end), nil
	case "without-due-date":
		return s.WithoutDueDate(ctx), nil
	case "recurring":
		return s.Recurring(ctx), nil
	case "blocked":
		return s.Blocked(ctx), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
}
