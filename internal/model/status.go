package model

import "strings"

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusBlocked    Status = "BLOCKED"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
	StatusNonTask    Status = "NON_TASK"
)

type statusInfo struct {
	status Status
	icon   string
	label  string
}

// Keyed by the character between the checkbox brackets.
var statusByCode = map[string]statusInfo{
	" ": {StatusTodo, "⬜", "Todo"},
	"/": {StatusInProgress, "🔄", "InProgress"},
	"B": {StatusBlocked, "🚧", "Blocked"},
	"x": {StatusDone, "✅", "Done"},
	"X": {StatusDone, "✅", "Done"},
	"-": {StatusCancelled, "❌", "Cancelled"},
	"~": {StatusNonTask, "➖", "NonTask"},
}

// Lifecycle ordinal used for sorting.
var statusOrder = map[Status]int{
	StatusTodo:       1,
	StatusInProgress: 2,
	StatusBlocked:    3,
	StatusDone:       4,
	StatusCancelled:  5,
	StatusNonTask:    6,
}

// StatusFromCode maps a checkbox character to its status, icon and label.
// Unknown characters are treated as todo.
func StatusFromCode(code string) (Status, string, string) {
	if info, ok := statusByCode[code]; ok {
		return info.status, info.icon, info.label
	}
	info := statusByCode[" "]
	return info.status, info.icon, info.label
}

func StatusOrdinal(s Status) int {
	if n, ok := statusOrder[s]; ok {
		return n
	}
	return statusOrder[StatusTodo]
}

// IsCompleted reports whether s ends the task lifecycle.
func IsCompleted(s Status) bool {
	return s == StatusDone || s == StatusCancelled
}

func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	_, ok := statusOrder[st]
	return st, ok
}
