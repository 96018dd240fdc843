// Package model defines the task record produced by extraction and consumed by queries.
package model

import (
	"fmt"
	"path"
	"strings"
	"time"
)

type Task struct {
	ID         string      `json:"id" yaml:"id"`
	File       FileInfo    `json:"file" yaml:"file"`
	Line       LineInfo    `json:"line" yaml:"line"`
	State      StateInfo   `json:"state" yaml:"state"`
	Dates      DateInfo    `json:"dates" yaml:"dates"`
	Section    SectionInfo `json:"section" yaml:"section"`
	Flow       FlowInfo    `json:"flow" yaml:"flow"`
	GroupLabel string      `json:"group_label,omitempty" yaml:"group_label,omitempty"`
}

type FileInfo struct {
	Path string         `json:"path" yaml:"path"`
	Name string         `json:"name" yaml:"name"`
	Ext  string         `json:"ext" yaml:"ext"`
	Root string         `json:"root" yaml:"root"`
	Meta map[string]any `json:"meta" yaml:"meta"`
}

type LineInfo struct {
	Number int    `json:"number" yaml:"number"`
	Text   string `json:"text" yaml:"text"`
}

type StateInfo struct {
	Code     string   `json:"code" yaml:"code"`
	Status   Status   `json:"status" yaml:"status"`
	Icon     string   `json:"icon" yaml:"icon"`
	Label    string   `json:"label" yaml:"label"`
	Priority Priority `json:"priority" yaml:"priority"`
	Valid    bool     `json:"valid" yaml:"valid"`
}

type DateInfo struct {
	Due       *time.Time `json:"due" yaml:"due"`
	Start     *time.Time `json:"start" yaml:"start"`
	Scheduled *time.Time `json:"scheduled" yaml:"scheduled"`
	Created   *time.Time `json:"created" yaml:"created"`
	Done      *time.Time `json:"done" yaml:"done"`
	Cancelled *time.Time `json:"cancelled" yaml:"cancelled"`
}

type SectionInfo struct {
	Header      string   `json:"header" yaml:"header"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags" yaml:"tags"`
	Fields      []string `json:"fields" yaml:"fields"`
}

type FlowInfo struct {
	Recurrence     *string       `json:"recurrence" yaml:"recurrence"`
	RecurrenceText string        `json:"recurrence_text,omitempty" yaml:"recurrence_text,omitempty"`
	BlockLink      *string       `json:"block_link" yaml:"block_link"`
	DependsOn      []string      `json:"depends_on" yaml:"depends_on"`
	OnCompletion   *OnCompletion `json:"on_completion" yaml:"on_completion"`
}

// SyntheticID is the identifier used when a line carries no explicit id.
func SyntheticID(docPath string, lineNumber int) string {
	return fmt.Sprintf("%s#%d", docPath, lineNumber)
}

// NewFileInfo derives file attributes from a slash-separated document path.
func NewFileInfo(docPath string, meta map[string]any) FileInfo {
	base := path.Base(docPath)
	ext := strings.TrimPrefix(path.Ext(base), ".")
	name := strings.TrimSuffix(base, path.Ext(base))
	if docPath == "" {
		name = ""
	}
	return FileInfo{
		Path: docPath,
		Name: name,
		Ext:  ext,
		Root: rootFolder(docPath),
		Meta: meta,
	}
}

func rootFolder(docPath string) string {
	if docPath == "" {
		return "undefined"
	}
	parts := strings.Split(strings.TrimPrefix(docPath, "/"), "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return "root"
}

// Folder returns the parent folder including the trailing slash, or "" at the root.
func (f FileInfo) Folder() string {
	i := strings.LastIndex(f.Path, "/")
	if i < 0 {
		return ""
	}
	return f.Path[:i+1]
}

// Property looks up a front matter key case-insensitively.
func (f FileInfo) Property(key string) (any, bool) {
	for k, v := range f.Meta {
		if strings.EqualFold(k, key) {
			if list, ok := v.([]any); ok {
				out := make([]any, 0, len(list))
				for _, item := range list {
					if item != nil {
						out = append(out, item)
					}
				}
				return out, true
			}
			return v, true
		}
	}
	return nil, false
}

func (f FileInfo) HasProperty(key string) bool {
	v, ok := f.Property(key)
	return ok && v != nil
}

func (t Task) IsCompleted() bool {
	return IsCompleted(t.State.Status)
}

func (t Task) HasRecurrence() bool {
	return t.Flow.Recurrence != nil && *t.Flow.Recurrence != ""
}

func (t Task) HasDependencies() bool {
	return len(t.Flow.DependsOn) > 0
}
