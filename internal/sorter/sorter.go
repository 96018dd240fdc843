// Package sorter orders task records on several keys and groups them on one.
package sorter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/msageha/taskscope/internal/model"
)

type Field string

const (
	FieldDue       Field = "dueDate"
	FieldStart     Field = "startDate"
	FieldScheduled Field = "scheduledDate"
	FieldDone      Field = "doneDate"
	FieldCreated   Field = "createdDate"
	FieldCancelled Field = "cancelledDate"
	FieldPriority  Field = "priority"
	FieldStatus    Field = "status"
	FieldText      Field = "text"
	FieldPath      Field = "path"
)

var fieldAliases = map[string]Field{
	"duedate": FieldDue, "due": FieldDue,
	"startdate": FieldStart, "start": FieldStart,
	"scheduleddate": FieldScheduled, "scheduled": FieldScheduled,
	"donedate": FieldDone, "done": FieldDone,
	"createddate": FieldCreated, "created": FieldCreated,
	"cancelleddate": FieldCancelled, "cancelled": FieldCancelled,
	"priority": FieldPriority,
	"status":   FieldStatus,
	"text":     FieldText, "description": FieldText,
	"path": FieldPath, "file": FieldPath,
}

func ParseField(s string) (Field, error) {
	if f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	}
	return "", fmt.Errorf("unknown sort direction %q", s)
}

// ParseKeys parses a comma-separated list such as "due,priority:desc".
func ParseKeys(s string) ([]Field, []Direction, error) {
	var fields []Field
	var dirs []Direction
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dir, _ := strings.Cut(part, ":")
		f, err := ParseField(name)
		if err != nil {
			return nil, nil, err
		}
		d, err := ParseDirection(dir)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, f)
		dirs = append(dirs, d)
	}
	return fields, dirs, nil
}

type Options struct {
	// Locale selects the collation for text and path keys. The zero tag uses
	// the root collation.
	Locale language.Tag
	// Location is used to render due dates when grouping. Nil means time.Local.
	Location *time.Location
}

// Sort returns a stably sorted copy of tasks. Keys are compared in order and
// the first non-zero comparison wins. A missing direction means ascending.
// Missing dates sort last in either direction.
func Sort(tasks []model.Task, fields []Field, dirs []Direction, opts Options) []model.Task {
	out := slices.Clone(tasks)
	if len(fields) == 0 {
		return out
	}
	col := collate.New(opts.Locale)
	slices.SortStableFunc(out, func(a, b model.Task) int {
		for i, f := range fields {
			desc := i < len(dirs) && dirs[i] == Desc
			if c := compare(col, a, b, f, desc); c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

func compare(col *collate.Collator, a, b model.Task, f Field, desc bool) int {
	var c int
	switch f {
	case FieldDue:
		return compareDates(a.Dates.Due, b.Dates.Due, desc)
	case FieldStart:
		return compareDates(a.Dates.Start, b.Dates.Start, desc)
	case FieldScheduled:
		return compareDates(a.Dates.Scheduled, b.Dates.Scheduled, desc)
	case FieldDone:
		return compareDates(a.Dates.Done, b.Dates.Done, desc)
	case FieldCreated:
		return compareDates(a.Dates.Created, b.Dates.Created, desc)
	case FieldCancelled:
		return compareDates(a.Dates.Cancelled, b.Dates.Cancelled, desc)
	case FieldPriority:
		c = model.PriorityRank(a.State.Priority) - model.PriorityRank(b.State.Priority)
	case FieldStatus:
		c = model.StatusOrdinal(a.State.Status) - model.StatusOrdinal(b.State.Status)
	case FieldText:
		c = col.CompareString(strings.TrimSpace(a.Line.Text), strings.TrimSpace(b.Line.Text))
	case FieldPath:
		c = col.CompareString(a.File.Path, b.File.Path)
	}
	if desc {
		return -c
	}
	return c
}

func compareDates(a, b *time.Time, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c := a.Compare(*b)
	if desc {
		return -c
	}
	return c
}
