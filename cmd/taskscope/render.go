package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/msageha/taskscope/internal/model"
)

// Styles
var (
	groupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	dueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	tagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	invalidStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

var priorityMarks = map[model.Priority]string{
	model.PriorityHighest: "🔺",
	model.PriorityHigh:    "⏫",
	model.PriorityMedium:  "🔼",
	model.PriorityLow:     "🔽",
	model.PriorityLowest:  "⏬",
}

// renderTasks prints one line per record and a heading whenever the group
// label changes.
func renderTasks(w io.Writer, tasks []model.Task, now time.Time, loc *time.Location) {
	group := ""
	for i, t := range tasks {
		if t.GroupLabel != "" && (i == 0 || t.GroupLabel != group) {
			if i > 0 {
				fmt.Fprintln(w)
			}
			group = t.GroupLabel
			fmt.Fprintln(w, groupStyle.Render(group))
		}
		fmt.Fprintln(w, taskLine(t, now, loc))
	}
	fmt.Fprintln(w, summaryStyle.Render(fmt.Sprintf("%d task(s)", len(tasks))))
}

func taskLine(t model.Task, now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", t.State.Code)

	desc := t.Section.Description
	if t.IsCompleted() {
		desc = doneStyle.Render(desc)
	}
	b.WriteString(desc)

	if mark, ok := priorityMarks[t.State.Priority]; ok {
		b.WriteString(" " + mark)
	}
	if t.Dates.Due != nil {
		due := "📅 " + t.Dates.Due.In(loc).Format("2006-01-02")
		switch {
		case t.IsCompleted():
			b.WriteString(" " + due)
		case dueBefore(*t.Dates.Due, now, loc):
			b.WriteString(" " + overdueStyle.Render(due))
		default:
			b.WriteString(" " + dueStyle.Render(due))
		}
	}
	if len(t.Section.Tags) > 0 {
		b.WriteString(" " + tagStyle.Render(strings.Join(t.Section.Tags, " ")))
	}
	if !t.State.Valid {
		b.WriteString(" " + invalidStyle.Render("(invalid fields)"))
	}
	b.WriteString(" " + fileStyle.Render(fmt.Sprintf("(%s:%d)", t.File.Path, t.Line.Number)))
	return b.String()
}

// dueBefore reports whether due falls on an earlier calendar day than now.
func dueBefore(due, now time.Time, loc *time.Location) bool {
	dy, dm, dd := due.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	return time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).Before(time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC))
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func output(w io.Writer, tasks []model.Task, loc *time.Location) error {
	if jsonOutput {
		return renderJSON(w, tasks)
	}
	renderTasks(w, tasks, time.Now(), loc)
	return nil
}
