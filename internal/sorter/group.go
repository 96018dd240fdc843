package sorter

import (
	"fmt"
	"strings"
	"time"

	"github.com/msageha/taskscope/internal/model"
)

type GroupField string

const (
	GroupStatus   GroupField = "status"
	GroupPriority GroupField = "priority"
	GroupDue      GroupField = "dueDate"
	GroupPath     GroupField = "path"
	GroupTags     GroupField = "tags"
)

// Sentinel group labels.
const (
	LabelNoDueDate = "No Due Date"
	LabelNoTags    = "No Tags"
	LabelUnknown   = "Unknown"
)

func ParseGroupField(s string) (GroupField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "status":
		return GroupStatus, nil
	case "priority":
		return GroupPriority, nil
	case "duedate", "due":
		return GroupDue, nil
	case "path", "folder":
		return GroupPath, nil
	case "tags", "tag":
		return GroupTags, nil
	}
	return "", fmt.Errorf("unknown group field %q", s)
}

// Group labels every record and returns them bucket by bucket. Buckets appear
// in the order their first member appears. Members keep their input order.
func Group(tasks []model.Task, field GroupField, opts Options) []model.Task {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	var order []string
	buckets := map[string][]model.Task{}
	for _, t := range tasks {
		label := GroupLabel(t, field, loc)
		if _, ok := buckets[label]; !ok {
			order = append(order, label)
		}
		t.GroupLabel = label
		buckets[label] = append(buckets[label], t)
	}

	out := make([]model.Task, 0, len(tasks))
	for _, label := range order {
		out = append(out, buckets[label]...)
	}
	return out
}

// GroupLabel returns the bucket label of t for field.
func GroupLabel(t model.Task, field GroupField, loc *time.Location) string {
	switch field {
	case GroupStatus:
		if t.State.Status == "" {
			return LabelUnknown
		}
		return string(t.State.Status)
	case GroupPriority:
		if t.State.Priority == "" {
			return string(model.PriorityNormal)
		}
		return string(t.State.Priority)
	case GroupDue:
		if t.Dates.Due == nil {
			return LabelNoDueDate
		}
		return t.Dates.Due.In(loc).Format("2006-01-02")
	case GroupPath:
		if t.File.Path == "" {
			return LabelUnknown
		}
		if i := strings.LastIndex(t.File.Path, "/"); i > 0 {
			return t.File.Path[:i]
		}
		return "/"
	case GroupTags:
		if len(t.Section.Tags) == 0 {
			return LabelNoTags
		}
		return t.Section.Tags[0]
	}
	return LabelUnknown
}
