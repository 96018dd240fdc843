package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/msageha/taskscope/internal/filter"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/query"
	"github.com/msageha/taskscope/internal/sorter"
)

// listFlags mirrors the list command's flags.
type listFlags struct {
	criteriaFile string
	statuses     []string
	done         bool
	pending      bool
	tags         []string
	excludeTags  []string
	text         []string
	excludeText  []string
	regex        string
	priorities   []string
	above        string
	below        string
	folder       string
	file         string
	dueBefore    string
	dueAfter     string
	dueOn        string
	noDue        bool
	overdue      bool
	today        bool
	thisWeek     bool
	nextDays     int
	recurring    bool
	blocked      bool
	sort         string
	group        string
	limit        int
}

var lf listFlags

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks matching filter flags",
	Long: `List tasks matching every given filter, then sort, limit and group them.

Examples:
  taskscope list --pending --tag work --sort due,priority:desc
  taskscope list --due-before 2024-02-01 --group path
  taskscope list --criteria saved.yaml --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := lf.build(current.loc, current.cfg.Query.DefaultSort, current.cfg.Limits.MaxResults)
		if err != nil {
			return err
		}
		tasks := current.service.GetFilteredTasks(cmd.Context(), q)
		return output(cmd.OutOrStdout(), tasks, current.loc)
	},
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&lf.criteriaFile, "criteria", "", "YAML file with filter criteria; flags are applied on top")
	f.StringSliceVar(&lf.statuses, "status", nil, "status: todo, in-progress, blocked, done, cancelled")
	f.BoolVar(&lf.done, "done", false, "only completed tasks")
	f.BoolVar(&lf.pending, "pending", false, "only open tasks")
	f.StringSliceVar(&lf.tags, "tag", nil, "require tag (repeatable)")
	f.StringSliceVar(&lf.excludeTags, "exclude-tag", nil, "reject tag (repeatable)")
	f.StringSliceVar(&lf.text, "text", nil, "require substring (repeatable)")
	f.StringSliceVar(&lf.excludeText, "exclude-text", nil, "reject substring (repeatable)")
	f.StringVar(&lf.regex, "regex", "", "case-insensitive regular expression on the task line")
	f.StringSliceVar(&lf.priorities, "priority", nil, "priority: highest, high, medium, low, lowest, normal")
	f.StringVar(&lf.above, "priority-above", "", "priority strictly above this level")
	f.StringVar(&lf.below, "priority-below", "", "priority strictly below this level")
	f.StringVar(&lf.folder, "folder", "", "folder prefix, e.g. projects/")
	f.StringVar(&lf.file, "file", "", "path substring")
	f.StringVar(&lf.dueBefore, "due-before", "", "due strictly before YYYY-MM-DD")
	f.StringVar(&lf.dueAfter, "due-after", "", "due strictly after YYYY-MM-DD")
	f.StringVar(&lf.dueOn, "due-on", "", "due on YYYY-MM-DD")
	f.BoolVar(&lf.noDue, "no-due", false, "only tasks without a due date")
	f.BoolVar(&lf.overdue, "overdue", false, "due before today")
	f.BoolVar(&lf.today, "today", false, "due today")
	f.BoolVar(&lf.thisWeek, "this-week", false, "due from today to the end of the week")
	f.IntVar(&lf.nextDays, "next", 0, "due within the next N days")
	f.BoolVar(&lf.recurring, "recurring", false, "only recurring tasks")
	f.BoolVar(&lf.blocked, "blocked", false, "only tasks with dependencies")
	f.StringVar(&lf.sort, "sort", "", "sort keys, e.g. due,priority:desc (default from query.default_sort)")
	f.StringVar(&lf.group, "group", "", "group by status, priority, due, path or tags")
	f.IntVar(&lf.limit, "limit", 0, "keep at most N tasks (0 = limits.max_results)")
}

func (f listFlags) build(loc *time.Location, defaultSort string, maxResults int) (*query.Query, error) {
	c := &filter.Criteria{}
	if f.criteriaFile != "" {
		data, err := os.ReadFile(f.criteriaFile)
		if err != nil {
			return nil, fmt.Errorf("read criteria: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decode criteria %s: %w", f.criteriaFile, err)
		}
		c.Localize(loc)
	}

	for _, s := range f.statuses {
		st, ok := model.ParseStatus(s)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		c.Status = append(c.Status, st)
	}
	switch {
	case f.done && f.pending:
		return nil, fmt.Errorf("--done and --pending are mutually exclusive")
	case f.done:
		c.Completed = filter.Bool(true)
	case f.pending:
		c.Completed = filter.Bool(false)
	}

	if len(f.text) > 0 || len(f.excludeText) > 0 || f.regex != "" {
		if c.Text == nil {
			c.Text = &filter.TextCriteria{}
		}
		c.Text.Includes = append(c.Text.Includes, f.text...)
		c.Text.Excludes = append(c.Text.Excludes, f.excludeText...)
		if f.regex != "" {
			c.Text.Regex = f.regex
		}
	}
	if len(f.tags) > 0 || len(f.excludeTags) > 0 {
		if c.Tags == nil {
			c.Tags = &filter.TagCriteria{}
		}
		c.Tags.Includes = append(c.Tags.Includes, f.tags...)
		c.Tags.Excludes = append(c.Tags.Excludes, f.excludeTags...)
	}

	if len(f.priorities) > 0 || f.above != "" || f.below != "" {
		if c.Priority == nil {
			c.Priority = &filter.PriorityCriteria{}
		}
		for _, s := range f.priorities {
			p, ok := model.ParsePriority(s)
			if !ok {
				return nil, fmt.Errorf("unknown priority %q", s)
			}
			c.Priority.Is = append(c.Priority.Is, p)
		}
		for _, b := range []struct {
			value string
			dst   *model.Priority
		}{
			{f.above, &c.Priority.Above},
			{f.below, &c.Priority.Below},
		} {
			if b.value == "" {
				continue
			}
			p, ok := model.ParsePriority(b.value)
			if !ok {
				return nil, fmt.Errorf("unknown priority %q", b.value)
			}
			*b.dst = p
		}
	}

	if f.folder != "" || f.file != "" {
		c.Location = &filter.LocationCriteria{Folder: f.folder, File: f.file}
	}

	if f.dueBefore != "" || f.dueAfter != "" || f.dueOn != "" || f.noDue {
		if c.Due == nil {
			c.Due = &filter.DateRange{}
		}
		for _, d := range []struct {
			flag, value string
			dst         **time.Time
		}{
			{"--due-before", f.dueBefore, &c.Due.Before},
			{"--due-after", f.dueAfter, &c.Due.After},
			{"--due-on", f.dueOn, &c.Due.On},
		} {
			if d.value == "" {
				continue
			}
			t, err := time.ParseInLocation("2006-01-02", d.value, loc)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.flag, err)
			}
			*d.dst = &t
		}
		if f.noDue {
			c.Due.Exists = filter.Bool(false)
		}
	}

	if f.overdue || f.today || f.thisWeek || f.nextDays > 0 {
		rc := &filter.RelativeCriteria{Overdue: f.overdue, Today: f.today, ThisWeek: f.thisWeek}
		if f.nextDays > 0 {
			rc.FutureDays = filter.Int(f.nextDays)
		}
		c.DueRelative = rc
	}
	if f.recurring {
		c.Recurrence = &filter.RecurrenceCriteria{Has: filter.Bool(true)}
	}
	if f.blocked {
		c.Dependencies = &filter.DependencyCriteria{Has: filter.Bool(true)}
	}

	q := &query.Query{Criteria: c, Limit: f.limit}
	if q.Limit <= 0 {
		q.Limit = maxResults
	}

	keys := f.sort
	if strings.TrimSpace(keys) == "" {
		keys = defaultSort
	}
	if strings.TrimSpace(keys) != "" {
		fields, dirs, err := sorter.ParseKeys(keys)
		if err != nil {
			return nil, err
		}
		q.Sort, q.Directions = fields, dirs
	}
	if f.group != "" {
		g, err := sorter.ParseGroupField(f.group)
		if err != nil {
			return nil, err
		}
		q.GroupBy = g
	}
	return q, nil
}
