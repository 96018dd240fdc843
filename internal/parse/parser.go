// Package parse turns a single markdown checkbox line into a header, a
// description and typed fields keyed by emoji icons.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
	"github.com/msageha/taskscope/internal/recurrence"
)

var ErrNotTaskLine = errors.New("not a task line")

const dateLayout = "2006-01-02"

var (
	taskLineRegex  = regexp.MustCompile(`^[\t ]*(>*)\s*(-|\*|\+|\d+[.)]) {0,4}\[(.)\] {0,4}\S.*`)
	headerRegex    = regexp.MustCompile(`^[\t ]*(>*)\s*(-|\*|\+|\d+[.)]) {0,4}\[(.)\] {0,4}`)
	tagRegex       = regexp.MustCompile(`#[\p{L}\p{N}_/-]+`)
	blockLinkRegex = regexp.MustCompile(`\^[A-Za-z0-9-]+`)
	datePayload    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// IsTaskLine reports whether line has the checkbox list item shape with content after the box.
func IsTaskLine(line string) bool {
	return taskLineRegex.MatchString(line)
}

// FieldError describes a field whose payload failed its kind-specific check.
type FieldError struct {
	Property string
	Icon     string
	Payload  string
	Message  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Property, e.Icon, e.Message)
}

type Field struct {
	Icon    string
	Spec    IconSpec
	Payload string
	// Raw is the icon plus payload as it appeared on the line.
	Raw string
	// Text is Raw, followed by " @invalid <message>" when Err is set.
	Text string
	Err  error
}

func (f Field) Valid() bool { return f.Err == nil }

// Data is the structured result of all valid fields. For repeated icons the
// last valid occurrence wins.
type Data struct {
	Due            *time.Time
	Start          *time.Time
	Scheduled      *time.Time
	Done           *time.Time
	Cancelled      *time.Time
	Created        *time.Time
	Priority       model.Priority
	Recurrence     *recurrence.Rule
	RecurrenceText string
	ID             string
	DependsOn      []string
	OnCompletion   *model.OnCompletion
}

type Section struct {
	Header      string
	StatusCode  string
	Description string
	Fields      []Field
	Data        Data
	Tags        []string
	BlockLink   string
	Valid       bool
}

// FieldTexts returns the annotated text of each field in line order.
func (s *Section) FieldTexts() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Text
	}
	return out
}

func (s *Section) Errors() []error {
	var errs []error
	for _, f := range s.Fields {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Reconstruct joins header, description and raw fields back into a line.
func (s *Section) Reconstruct() string {
	parts := []string{s.Header}
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	for _, f := range s.Fields {
		parts = append(parts, f.Raw)
	}
	return strings.Join(parts, " ")
}

// RecurrenceFunc converts a recurrence phrase into a rule.
type RecurrenceFunc func(phrase string) (*recurrence.Rule, error)

type Parser struct {
	// Location anchors parsed dates at local midnight. Nil means time.Local.
	Location   *time.Location
	Logger     *logging.Logger
	Recurrence RecurrenceFunc
}

func New(loc *time.Location, logger *logging.Logger) *Parser {
	return &Parser{Location: loc, Logger: logger, Recurrence: recurrence.Parse}
}

func (p *Parser) location() *time.Location {
	if p == nil || p.Location == nil {
		return time.Local
	}
	return p.Location
}

// Parse splits line into its section parts and validates every field.
func (p *Parser) Parse(line string) (*Section, error) {
	m := headerRegex.FindStringSubmatchIndex(line)
	if m == nil {
		return nil, ErrNotTaskLine
	}

	sec := &Section{
		Header:     strings.TrimSpace(line[m[0]:m[1]]),
		StatusCode: line[m[6]:m[7]],
		Tags:       ExtractTags(line),
		BlockLink:  ExtractBlockLink(line),
		Data:       Data{Priority: model.PriorityNormal},
		Valid:      true,
	}

	rest := stripTokens(line[m[1]:])
	positions := iconPositions(rest)
	if len(positions) == 0 {
		sec.Description = strings.TrimSpace(rest)
		return sec, nil
	}
	sec.Description = strings.TrimSpace(rest[:positions[0]])

	for i, start := range positions {
		end := len(rest)
		if i+1 < len(positions) {
			end = positions[i+1]
		}
		f := p.parseField(strings.TrimSpace(rest[start:end]), &sec.Data)
		if f.Err != nil && !f.Spec.Soft() {
			sec.Valid = false
		}
		sec.Fields = append(sec.Fields, f)
	}
	return sec, nil
}

func (p *Parser) parseField(raw string, data *Data) Field {
	r, size := utf8.DecodeRuneInString(raw)
	spec := icons[r]
	body := raw[size:]
	if vs, n := utf8.DecodeRuneInString(body); vs == variationSelector {
		body = body[n:]
	}
	f := Field{
		Icon:    string(r),
		Spec:    spec,
		Payload: strings.TrimSpace(body),
		Raw:     raw,
		Text:    raw,
	}

	if msg := p.apply(&f, data); msg != "" {
		f.Err = &FieldError{Property: spec.Property, Icon: f.Icon, Payload: f.Payload, Message: msg}
		f.Text = raw + " @invalid " + msg
	}
	return f
}

// apply validates f and writes its value into data. It returns a non-empty
// message when the payload is rejected.
func (p *Parser) apply(f *Field, data *Data) string {
	switch f.Spec.Kind {
	case KindDate:
		if f.Payload == "" {
			return fmt.Sprintf("icon %s requires a YYYY-MM-DD date", f.Icon)
		}
		if !datePayload.MatchString(f.Payload) {
			return fmt.Sprintf("icon %s is not followed by a valid YYYY-MM-DD date", f.Icon)
		}
		d, err := time.ParseInLocation(dateLayout, f.Payload, p.location())
		if err != nil {
			return fmt.Sprintf("icon %s has an impossible date %s", f.Icon, f.Payload)
		}
		setDate(data, f.Spec.Property, d)

	case KindPriority:
		if f.Payload != "" {
			return fmt.Sprintf("icon %s must not be followed by other text", f.Icon)
		}
		data.Priority = f.Spec.Priority

	case KindID:
		if f.Payload == "" {
			return fmt.Sprintf("icon %s requires an identifier", f.Icon)
		}
		data.ID = f.Payload

	case KindDependency:
		var ids []string
		for _, id := range strings.Split(f.Payload, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return fmt.Sprintf("icon %s requires at least one identifier", f.Icon)
		}
		data.DependsOn = ids

	case KindCompletion:
		oc, ok := model.ParseOnCompletion(f.Payload)
		if !ok {
			return fmt.Sprintf("icon %s must be followed by keep or delete", f.Icon)
		}
		data.OnCompletion = &oc

	case KindRecurrence:
		if f.Payload == "" {
			return fmt.Sprintf("icon %s requires a recurrence phrase", f.Icon)
		}
		conv := p.Recurrence
		if conv == nil {
			conv = recurrence.Parse
		}
		rule, err := conv(f.Payload)
		if err != nil {
			p.Logger.Warnf("recurrence %q ignored: %v", f.Payload, err)
			return fmt.Sprintf("icon %s has an unsupported recurrence: %v", f.Icon, err)
		}
		data.Recurrence = rule
		data.RecurrenceText = f.Payload
	}
	return ""
}

func setDate(data *Data, property string, d time.Time) {
	switch property {
	case PropDue:
		data.Due = &d
	case PropStart:
		data.Start = &d
	case PropScheduled:
		data.Scheduled = &d
	case PropDone:
		data.Done = &d
	case PropCancelled:
		data.Cancelled = &d
	case PropCreated:
		data.Created = &d
	}
}

// iconPositions returns the byte offset of every field icon in s.
func iconPositions(s string) []int {
	var out []int
	for i, r := range s {
		if _, ok := icons[r]; ok {
			out = append(out, i)
		}
	}
	return out
}

// ExtractTags returns the distinct #tags of line in order of appearance.
// Purely numeric tokens such as "#12" are not tags.
func ExtractTags(line string) []string {
	var tags []string
	seen := map[string]bool{}
	for _, span := range tokenSpans(tagRegex, line) {
		tag := line[span[0]:span[1]]
		if !isTag(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// ExtractBlockLink returns the last ^anchor token of line, or "". Anchors need
// no leading whitespace, so "text^abc" links to "^abc".
func ExtractBlockLink(line string) string {
	spans := blockLinkRegex.FindAllStringIndex(line, -1)
	if len(spans) == 0 {
		return ""
	}
	last := spans[len(spans)-1]
	return line[last[0]:last[1]]
}

func isTag(tok string) bool {
	for _, r := range tok[1:] {
		if !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// tokenSpans returns matches of re that are delimited by whitespace or the
// ends of s.
func tokenSpans(re *regexp.Regexp, s string) [][]int {
	var out [][]int
	for _, m := range re.FindAllStringIndex(s, -1) {
		if m[0] > 0 {
			prev, _ := utf8.DecodeLastRuneInString(s[:m[0]])
			if !unicode.IsSpace(prev) {
				continue
			}
		}
		if m[1] < len(s) {
			next, _ := utf8.DecodeRuneInString(s[m[1]:])
			if !unicode.IsSpace(next) && !strings.ContainsRune(",.;:!?)", next) {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// stripTokens removes tags and block anchors, along with the whitespace
// preceding each, so they never reach field payloads.
func stripTokens(s string) string {
	spans := append(tagSpans(s), blockLinkRegex.FindAllStringIndex(s, -1)...)
	if len(spans) == 0 {
		return s
	}
	drop := make([]bool, len(s))
	for _, sp := range spans {
		start := sp[0]
		for start > 0 && (s[start-1] == ' ' || s[start-1] == '\t') {
			start--
		}
		for i := start; i < sp[1]; i++ {
			drop[i] = true
		}
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if !drop[i] {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func tagSpans(s string) [][]int {
	var out [][]int
	for _, sp := range tokenSpans(tagRegex, s) {
		if isTag(s[sp[0]:sp[1]]) {
			out = append(out, sp)
		}
	}
	return out
}
