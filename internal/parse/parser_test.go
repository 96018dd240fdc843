package parse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/taskscope/internal/logging"
	"github.com/msageha/taskscope/internal/model"
)

func newTestParser() *Parser {
	return New(time.UTC, logging.Discard())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse_DueAndPriority(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] Buy milk 📅 2024-01-10 ⏫")
	require.NoError(t, err)

	assert.Equal(t, "- [ ]", sec.Header)
	assert.Equal(t, " ", sec.StatusCode)
	assert.Equal(t, "Buy milk", sec.Description)
	assert.True(t, sec.Valid)
	require.NotNil(t, sec.Data.Due)
	assert.Equal(t, day(2024, 1, 10), *sec.Data.Due)
	assert.Equal(t, model.PriorityHigh, sec.Data.Priority)
	assert.Equal(t, []string{"📅 2024-01-10", "⏫"}, sec.FieldTexts())
}

func TestParse_BadDate(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] Bad date 📅 2024-13-45")
	require.NoError(t, err)

	assert.False(t, sec.Valid)
	assert.Equal(t, "Bad date", sec.Description)
	assert.Nil(t, sec.Data.Due)
	require.Len(t, sec.Fields, 1)

	var fe *FieldError
	require.True(t, errors.As(sec.Fields[0].Err, &fe))
	assert.Equal(t, PropDue, fe.Property)
	assert.True(t, strings.HasPrefix(sec.Fields[0].Text, "📅 2024-13-45 @invalid "))
}

func TestParse_NoFields(t *testing.T) {
	sec, err := newTestParser().Parse("  > * [x]   just text here")
	require.NoError(t, err)

	assert.Equal(t, "> * [x]", sec.Header)
	assert.Equal(t, "x", sec.StatusCode)
	assert.Equal(t, "just text here", sec.Description)
	assert.Empty(t, sec.Fields)
	assert.True(t, sec.Valid)
	assert.Equal(t, model.PriorityNormal, sec.Data.Priority)
}

func TestParse_NotTaskLine(t *testing.T) {
	for _, line := range []string{"plain text", "- [] nope", "text - [x] later"} {
		t.Run(line, func(t *testing.T) {
			_, err := newTestParser().Parse(line)
			assert.ErrorIs(t, err, ErrNotTaskLine)
		})
	}
}

func TestIsTaskLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"- [ ] a", true},
		{"\t- [x] done", true},
		{"1. [ ] numbered", true},
		{"2) [/] paren", true},
		{">> + [-] quoted", true},
		{"- [x]", false},
		{"- [x]    ", false},
		{"- [] empty box", false},
		{"random - [x] task", false},
	}
	for _, tt := range tests {
		if got := IsTaskLine(tt.line); got != tt.want {
			t.Errorf("IsTaskLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParse_AllKinds(t *testing.T) {
	line := "- [/] Ship it #work 🛫 2024-02-01 ⏳ 2024-02-02 ➕ 2024-01-01 🆔 abc123 ⛔ x1, ,x2 🏁 Delete 🔁 every week 🔺 ^blk-1"
	sec, err := newTestParser().Parse(line)
	require.NoError(t, err)

	assert.True(t, sec.Valid, "errors: %v", sec.Errors())
	assert.Equal(t, "Ship it", sec.Description)
	assert.Equal(t, []string{"#work"}, sec.Tags)
	assert.Equal(t, "^blk-1", sec.BlockLink)
	assert.Equal(t, day(2024, 2, 1), *sec.Data.Start)
	assert.Equal(t, day(2024, 2, 2), *sec.Data.Scheduled)
	assert.Equal(t, day(2024, 1, 1), *sec.Data.Created)
	assert.Equal(t, "abc123", sec.Data.ID)
	assert.Equal(t, []string{"x1", "x2"}, sec.Data.DependsOn)
	require.NotNil(t, sec.Data.OnCompletion)
	assert.Equal(t, model.OnCompletionDelete, *sec.Data.OnCompletion)
	require.NotNil(t, sec.Data.Recurrence)
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=1", sec.Data.Recurrence.String())
	assert.Equal(t, "every week", sec.Data.RecurrenceText)
	assert.Equal(t, model.PriorityHighest, sec.Data.Priority)
	assert.Len(t, sec.Fields, 8)
}

func TestParse_RecurrenceIsSoft(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] Water plants 🔁 every someday")
	require.NoError(t, err)

	assert.True(t, sec.Valid)
	assert.Nil(t, sec.Data.Recurrence)
	require.Len(t, sec.Fields, 1)
	assert.Error(t, sec.Fields[0].Err)
	assert.Contains(t, sec.Fields[0].Text, " @invalid ")
}

func TestParse_InvalidFields(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty date", "- [ ] a 📅"},
		{"date with text", "- [ ] a 📅 2024-01-01 later"},
		{"priority with text", "- [ ] a ⏫ now"},
		{"empty id", "- [ ] a 🆔 ⏫"},
		{"empty deps", "- [ ] a ⛔ , ,"},
		{"bad completion", "- [ ] a 🏁 archive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec, err := newTestParser().Parse(tt.line)
			require.NoError(t, err)
			assert.False(t, sec.Valid)
			assert.NotEmpty(t, sec.Errors())
		})
	}
}

func TestParse_VariationSelector(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] a ⏳️ 2024-03-04")
	require.NoError(t, err)
	assert.True(t, sec.Valid)
	require.NotNil(t, sec.Data.Scheduled)
	assert.Equal(t, day(2024, 3, 4), *sec.Data.Scheduled)
}

func TestParse_RepeatedIconLastWins(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] a 📅 2024-01-01 📅 2024-05-05")
	require.NoError(t, err)
	require.NotNil(t, sec.Data.Due)
	assert.Equal(t, day(2024, 5, 5), *sec.Data.Due)
	assert.Len(t, sec.Fields, 2)
}

func TestParse_Location(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	sec, err := New(tokyo, nil).Parse("- [ ] a 📅 2024-01-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, tokyo), *sec.Data.Due)
}

func TestParse_ReconstructIsIdempotent(t *testing.T) {
	lines := []string{
		"- [ ] Buy milk 📅 2024-01-10 ⏫",
		"* [x] Done thing ✅ 2024-01-02 📅 2024-01-01",
		"1. [ ] Recurring #home 🔁 every 2 weeks until 2024-12-31 🛫 2024-01-01",
		"- [-] Dropped ❌ 2024-02-02 🆔 id-1 ⛔ a,b 🏁 keep",
		"- [ ] no fields at all",
	}
	p := newTestParser()
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			first, err := p.Parse(line)
			require.NoError(t, err)
			second, err := p.Parse(first.Reconstruct())
			require.NoError(t, err)
			assert.Equal(t, first.Data, second.Data)
			assert.Equal(t, first.Description, second.Description)
			assert.Equal(t, first.FieldTexts(), second.FieldTexts())
		})
	}
}

func TestExtractTags(t *testing.T) {
	tags := ExtractTags("- [ ] a #one #two/sub #one #123 x#no #last,")
	assert.Equal(t, []string{"#one", "#two/sub", "#last"}, tags)
}

func TestExtractBlockLink(t *testing.T) {
	assert.Equal(t, "^second", ExtractBlockLink("- [ ] a ^first b ^second"))
	assert.Equal(t, "^y", ExtractBlockLink("- [ ] a x^y"))
	assert.Equal(t, "", ExtractBlockLink("- [ ] a ^ b"))
}

func TestParse_AttachedBlockLink(t *testing.T) {
	sec, err := newTestParser().Parse("- [ ] Read text^abc 📅 2024-01-10^def")
	require.NoError(t, err)

	assert.Equal(t, "^def", sec.BlockLink)
	assert.Equal(t, "Read text", sec.Description)
	assert.True(t, sec.Valid)
	require.NotNil(t, sec.Data.Due)
	assert.Equal(t, day(2024, 1, 10), *sec.Data.Due)
}

func TestLookupIcon(t *testing.T) {
	spec, ok := LookupIcon("⏫")
	require.True(t, ok)
	assert.Equal(t, KindPriority, spec.Kind)

	_, ok = LookupIcon("⏫️")
	assert.True(t, ok)
	_, ok = LookupIcon("x")
	assert.False(t, ok)
}
