// Package recurrence converts "every ..." phrases into validated RFC 5545 RRULE strings.
package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	ErrInvalidPhrase = errors.New("invalid recurrence phrase")
	ErrInvalidRule   = errors.New("invalid recurrence rule")
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

type Weekday string

const (
	Monday    Weekday = "MO"
	Tuesday   Weekday = "TU"
	Wednesday Weekday = "WE"
	Thursday  Weekday = "TH"
	Friday    Weekday = "FR"
	Saturday  Weekday = "SA"
	Sunday    Weekday = "SU"
)

const untilLayout = "20060102T150405Z"

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var units = map[string]Frequency{
	"day": Daily, "days": Daily,
	"week": Weekly, "weeks": Weekly,
	"month": Monthly, "months": Monthly,
	"year": Yearly, "years": Yearly,
}

var weekdayKeywords = map[string][]Weekday{
	"monday": {Monday}, "mondays": {Monday}, "mon": {Monday},
	"tuesday": {Tuesday}, "tuesdays": {Tuesday}, "tue": {Tuesday},
	"wednesday": {Wednesday}, "wednesdays": {Wednesday}, "wed": {Wednesday},
	"thursday": {Thursday}, "thursdays": {Thursday}, "thu": {Thursday},
	"friday": {Friday}, "fridays": {Friday}, "fri": {Friday},
	"saturday": {Saturday}, "saturdays": {Saturday}, "sat": {Saturday},
	"sunday": {Sunday}, "sundays": {Sunday}, "sun": {Sunday},
	"weekday":  {Monday, Tuesday, Wednesday, Thursday, Friday},
	"weekdays": {Monday, Tuesday, Wednesday, Thursday, Friday},
	"weekend":  {Saturday, Sunday},
	"weekends": {Saturday, Sunday},
}

type Rule struct {
	Freq     Frequency
	Interval int
	Until    *time.Time
	Count    int
	ByDay    []Weekday
}

// String renders the rule in normalized RRULE form.
func (r Rule) String() string {
	parts := []string{
		"FREQ=" + string(r.Freq),
		"INTERVAL=" + strconv.Itoa(r.Interval),
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilLayout))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if len(r.ByDay) > 0 {
		days := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			days[i] = string(d)
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	return strings.Join(parts, ";")
}

// Parse converts a phrase such as "every 2 weeks until 2024-12-31" into a Rule.
// The grammar is: every [N|other] <unit|weekday> [on] [weekday...] [until YYYY-MM-DD] [N times].
func Parse(phrase string) (*Rule, error) {
	tokens := tokenize(phrase)
	if len(tokens) == 0 || tokens[0] != "every" {
		return nil, fmt.Errorf("%w: %q must start with \"every\"", ErrInvalidPhrase, phrase)
	}

	rule := &Rule{Interval: 1}
	i := 1
	if i < len(tokens) {
		if n, err := strconv.Atoi(tokens[i]); err == nil {
			if n < 1 {
				return nil, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidPhrase, n)
			}
			rule.Interval = n
			i++
		} else if tokens[i] == "other" {
			rule.Interval = 2
			i++
		}
	}
	if i >= len(tokens) {
		return nil, fmt.Errorf("%w: %q has no unit", ErrInvalidPhrase, phrase)
	}

	unit := tokens[i]
	i++
	if freq, ok := units[unit]; ok {
		rule.Freq = freq
	} else if days, ok := weekdayKeywords[unit]; ok {
		rule.Freq = Weekly
		rule.addDays(days)
	} else {
		return nil, fmt.Errorf("%w: unknown unit %q", ErrInvalidPhrase, unit)
	}

	for i < len(tokens) {
		tok := tokens[i]
		switch {
		case tok == "on" || tok == "and":
			i++
		case tok == "until":
			if i+1 >= len(tokens) || !dateRegex.MatchString(tokens[i+1]) {
				return nil, fmt.Errorf("%w: \"until\" must be followed by YYYY-MM-DD", ErrInvalidPhrase)
			}
			until, err := time.Parse("2006-01-02", tokens[i+1])
			if err != nil {
				return nil, fmt.Errorf("%w: until date: %v", ErrInvalidPhrase, err)
			}
			rule.Until = &until
			i += 2
		case weekdayKeywords[tok] != nil:
			rule.addDays(weekdayKeywords[tok])
			i++
		default:
			n, err := strconv.Atoi(tok)
			if err != nil || i+1 >= len(tokens) || (tokens[i+1] != "times" && tokens[i+1] != "time") {
				return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidPhrase, tok)
			}
			if n < 1 {
				return nil, fmt.Errorf("%w: count must be positive, got %d", ErrInvalidPhrase, n)
			}
			rule.Count = n
			i += 2
		}
	}

	if rule.Until != nil && rule.Count > 0 {
		return nil, fmt.Errorf("%w: UNTIL and COUNT are mutually exclusive", ErrInvalidRule)
	}
	if err := Validate(rule.String()); err != nil {
		return nil, err
	}
	return rule, nil
}

// Validate checks a rule string against the RRULE grammar.
func Validate(rule string) error {
	if _, err := rrule.StrToRRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

func (r *Rule) addDays(days []Weekday) {
	for _, d := range days {
		dup := false
		for _, have := range r.ByDay {
			if have == d {
				dup = true
				break
			}
		}
		if !dup {
			r.ByDay = append(r.ByDay, d)
		}
	}
}

func tokenize(phrase string) []string {
	fields := strings.Fields(strings.ToLower(phrase))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ",;")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
