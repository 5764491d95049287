// Package rules classifies raw client log lines into named events using an
// injected, immutable rule table.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/appleblox/gamewatch/internal/config"
)

type Kind int

const (
	Literal Kind = iota
	Pattern
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Pattern:
		return "pattern"
	}
	return "unknown"
}

// Rule fires once per line that contains Substring (Literal) or matches
// Regexp (Pattern).
type Rule struct {
	Name      string
	Kind      Kind
	Substring string
	Regexp    *regexp.Regexp
}

// NewLiteral builds a substring rule.
func NewLiteral(name, substring string) Rule {
	return Rule{Name: name, Kind: Literal, Substring: substring}
}

// NewPattern builds a regex rule. It panics on an invalid expression, like
// regexp.MustCompile; use FromConfig for user-supplied patterns.
func NewPattern(name, expr string) Rule {
	return Rule{Name: name, Kind: Pattern, Regexp: regexp.MustCompile(expr)}
}

// match returns the payload for line and whether the rule fired. Literal
// rules carry the whole line; pattern rules carry the first full match.
func (r Rule) match(line string) (string, bool) {
	switch r.Kind {
	case Literal:
		if strings.Contains(line, r.Substring) {
			return line, true
		}
	case Pattern:
		if loc := r.Regexp.FindStringIndex(line); loc != nil {
			return line[loc[0]:loc[1]], true
		}
	}
	return "", false
}

// Table is an ordered rule set. Order decides the order of events emitted
// for a single line, never whether they are emitted.
type Table struct {
	rules []Rule
}

// NewTable copies rs into a table.
func NewTable(rs ...Rule) Table {
	return Table{rules: append([]Rule(nil), rs...)}
}

// Rules returns a copy of the table's rules.
func (t Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

func (t Table) Len() int { return len(t.rules) }

// FromConfig compiles YAML rule entries. Errors name the offending rule.
func FromConfig(entries []config.RuleConfig) (Table, error) {
	rs := make([]Rule, 0, len(entries))
	for i, e := range entries {
		switch {
		case e.Name == "":
			return Table{}, fmt.Errorf("rule %d: missing name", i)
		case e.Match != "" && e.Pattern != "":
			return Table{}, fmt.Errorf("rule %q: both match and pattern set", e.Name)
		case e.Match != "":
			rs = append(rs, NewLiteral(e.Name, e.Match))
		case e.Pattern != "":
			re, err := regexp.Compile(e.Pattern)
			if err != nil {
				return Table{}, fmt.Errorf("rule %q: %w", e.Name, err)
			}
			rs = append(rs, Rule{Name: e.Name, Kind: Pattern, Regexp: re})
		default:
			return Table{}, fmt.Errorf("rule %q: neither match nor pattern set", e.Name)
		}
	}
	return NewTable(rs...), nil
}

// Load returns the configured table, or Default when none is configured.
func Load(entries []config.RuleConfig) (Table, error) {
	if len(entries) == 0 {
		return Default(), nil
	}
	return FromConfig(entries)
}

// ExtractGroups re-parses an event payload with a narrower expression and
// returns its capture groups, or nil when it does not match.
func ExtractGroups(ev Event, re *regexp.Regexp) []string {
	m := re.FindStringSubmatch(ev.RawData)
	if m == nil {
		return nil
	}
	return m[1:]
}
