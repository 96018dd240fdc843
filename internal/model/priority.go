package model

import "strings"

type Priority string

const (
	PriorityLowest  Priority = "lowest"
	PriorityLow     Priority = "low"
	PriorityNormal  Priority = "normal"
	PriorityMedium  Priority = "medium"
	PriorityHigh    Priority = "high"
	PriorityHighest Priority = "highest"
)

// Rank on the fixed ordinal scale, 1 is the most urgent. Normal doubles as
// "undefined" and ranks last.
var priorityRank = map[Priority]int{
	PriorityHighest: 1,
	PriorityHigh:    2,
	PriorityMedium:  3,
	PriorityLow:     4,
	PriorityLowest:  5,
	PriorityNormal:  6,
}

func PriorityRank(p Priority) int {
	if n, ok := priorityRank[p]; ok {
		return n
	}
	return priorityRank[PriorityNormal]
}

// ParsePriority accepts level names and the "undefined"/"none" aliases of normal.
func ParsePriority(s string) (Priority, bool) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "undefined", "none", "":
		return PriorityNormal, true
	default:
		p := Priority(v)
		_, ok := priorityRank[p]
		return p, ok
	}
}

type OnCompletion string

const (
	OnCompletionKeep   OnCompletion = "keep"
	OnCompletionDelete OnCompletion = "delete"
)

func ParseOnCompletion(s string) (OnCompletion, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(OnCompletionKeep):
		return OnCompletionKeep, true
	case string(OnCompletionDelete):
		return OnCompletionDelete, true
	}
	return "", false
}
