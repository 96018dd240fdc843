// Package extract builds task records from the lines of one document.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/parse"
)

// Reader returns the full text of a document.
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// HintProvider optionally supplies a precomputed structural index for a
// document. ok is false when no hint is available.
type HintProvider interface {
	Hint(ctx context.Context, path, content string) (hint *Hint, ok bool)
}

type ListItem struct {
	// Line is 0-based.
	Line int
	// Task is the checkbox character, "" when the list item has none.
	Task string
}

type Hint struct {
	ListItems   []ListItem
	FrontMatter map[string]any
}

type Extractor struct {
	reader Reader
	hints  HintProvider
	parser *parse.Parser
	logger *logging.Logger
}

// New returns an extractor reading through r. If r also implements
// HintProvider its hints are used.
func New(r Reader, parser *parse.Parser, logger *logging.Logger) *Extractor {
	e := &Extractor{reader: r, parser: parser, logger: logger}
	if hp, ok := r.(HintProvider); ok {
		e.hints = hp
	}
	return e
}

// WithHints overrides the hint source. A nil provider disables hints.
func (e *Extractor) WithHints(hp HintProvider) *Extractor {
	e.hints = hp
	return e
}

func (e *Extractor) Extract(ctx context.Context, path string) ([]model.Task, error) {
	content, err := e.reader.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var hint *Hint
	if e.hints != nil {
		if h, ok := e.hints.Hint(ctx, path, content); ok {
			hint = h
		}
	}
	return e.ExtractContent(path, content, hint), nil
}

// ExtractContent is the pure part of Extract. A nil hint forces a full scan.
func (e *Extractor) ExtractContent(path, content string, hint *Hint) []model.Task {
	lines := splitLines(content)

	var meta map[string]any
	if hint != nil && hint.FrontMatter != nil {
		meta = hint.FrontMatter
	} else {
		m, err := FrontMatter(content)
		if err != nil {
			e.logger.Warnf("front matter of %s ignored: %v", path, err)
		}
		meta = m
	}
	file := FileInfoFor(path, meta)

	if hint != nil {
		var tasks []model.Task
		for _, item := range hint.ListItems {
			if item.Task == "" || item.Line < 0 || item.Line >= len(lines) {
				continue
			}
			if t, ok := e.buildTask(file, item.Line+1, lines[item.Line]); ok {
				tasks = append(tasks, t)
			}
		}
		if len(tasks) > 0 {
			return tasks
		}
	}

	var tasks []model.Task
	for i, line := range lines {
		if t, ok := e.buildTask(file, i+1, line); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func FileInfoFor(path string, meta map[string]any) model.FileInfo {
	return model.NewFileInfo(path, meta)
}

func (e *Extractor) buildTask(file model.FileInfo, number int, line string) (model.Task, bool) {
	if !parse.IsTaskLine(line) {
		return model.Task{}, false
	}
	sec, err := e.parser.Parse(line)
	if err != nil {
		return model.Task{}, false
	}

	status, icon, label := model.StatusFromCode(sec.StatusCode)
	d := sec.Data
	t := model.Task{
		ID:   d.ID,
		File: file,
		Line: model.LineInfo{Number: number, Text: strings.TrimSpace(line)},
		State: model.StateInfo{
			Code:     sec.StatusCode,
			Status:   status,
			Icon:     icon,
			Label:    label,
			Priority: d.Priority,
			Valid:    sec.Valid,
		},
		Dates: model.DateInfo{
			Due:       d.Due,
			Start:     d.Start,
			Scheduled: d.Scheduled,
			Created:   d.Created,
			Done:      d.Done,
			Cancelled: d.Cancelled,
		},
		Section: model.SectionInfo{
			Header:      sec.Header,
			Description: sec.Description,
			Tags:        sec.Tags,
			Fields:      sec.FieldTexts(),
		},
		Flow: model.FlowInfo{
			RecurrenceText: d.RecurrenceText,
			DependsOn:      d.DependsOn,
			OnCompletion:   d.OnCompletion,
		},
	}
	if t.ID == "" {
		t.ID = model.SyntheticID(file.Path, number)
	}
	if d.Recurrence != nil {
		rule := d.Recurrence.String()
		t.Flow.Recurrence = &rule
	}
	if sec.BlockLink != "" {
		bl := sec.BlockLink
		t.Flow.BlockLink = &bl
	}
	return t, true
}

// FrontMatter decodes a leading "---" delimited YAML block. It returns nil
// when the document has none.
func FrontMatter(content string) (map[string]any, error) {
	lines := splitLines(content)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, nil
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if s := strings.TrimSpace(lines[i]); s == "---" || s == "..." {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("front matter is not terminated")
	}
	block := strings.Join(lines[1:end], "\n")
	if strings.TrimSpace(block) == "" {
		return nil, nil
	}

	var meta map[string]any
	dec := yaml.NewDecoder(bytes.NewBufferString(block))
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode front matter: %w", err)
	}
	return meta, nil
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
