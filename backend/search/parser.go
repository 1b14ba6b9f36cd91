// Package search parses the query language of the tournament listing:
// free text mixed with key:value filters such as name:"Summer Cup",
// team:lions or updated:>=2026-05-01.
package search

import (
	"strings"
	"unicode"
)

// Operator defines the type of comparison for a filter.
type Operator string

const (
	OpEqual          Operator = "="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpRange          Operator = ".." // updated:2026-01..2026-02
)

// prefixOps is ordered so that two-character operators win.
var prefixOps = []Operator{OpGreaterOrEqual, OpLessOrEqual, OpGreater, OpLess}

// Filter is one key:value criterion.
type Filter struct {
	Key      string
	Value    string
	MaxValue string // OpRange only
	Operator Operator
}

// Query represents the parsed search query.
type Query struct {
	Filters  []Filter
	FreeText []string
}

// Lower returns a copy with free text and filter values lowercased, for
// case-insensitive matching. Keys listed in keep are left as they are.
func (q Query) Lower(keep ...string) Query {
	out := Query{
		Filters:  make([]Filter, len(q.Filters)),
		FreeText: make([]string, len(q.FreeText)),
	}
	for i, t := range q.FreeText {
		out.FreeText[i] = strings.ToLower(t)
	}
	for i, f := range q.Filters {
		out.Filters[i] = f
		if !contains(keep, f.Key) {
			out.Filters[i].Value = strings.ToLower(f.Value)
			out.Filters[i].MaxValue = strings.ToLower(f.MaxValue)
		}
	}
	return out
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool {
	return len(q.Filters) == 0 && len(q.FreeText) == 0
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Parse parses a search query string. Tokens are split on spaces outside
// quotes. A token with a single unquoted colon is a filter; anything else
// is free text.
func Parse(input string) Query {
	q := Query{
		Filters:  make([]Filter, 0),
		FreeText: make([]string, 0),
	}
	for _, token := range tokenize(input) {
		if f, ok := parseFilter(token); ok {
			q.Filters = append(q.Filters, f)
			continue
		}
		if strings.Contains(token, ":") {
			q.FreeText = append(q.FreeText, token)
		} else {
			q.FreeText = append(q.FreeText, unquote(token))
		}
	}
	return q
}

func parseFilter(token string) (Filter, bool) {
	key, val, ok := strings.Cut(token, ":")
	if !ok {
		return Filter{}, false
	}
	key = strings.ToLower(strings.TrimSpace(key))
	val = strings.TrimSpace(val)
	if key == "" || val == "" {
		return Filter{}, false
	}
	// A second unquoted colon is ambiguous (time:12:00).
	if strings.Contains(val, ":") && !isQuoted(val) {
		return Filter{}, false
	}

	if lo, hi, ok := strings.Cut(val, ".."); ok && !isQuoted(val) {
		return Filter{Key: key, Value: unquote(lo), MaxValue: unquote(hi), Operator: OpRange}, true
	}
	for _, op := range prefixOps {
		if rest, ok := strings.CutPrefix(val, string(op)); ok {
			return Filter{Key: key, Value: unquote(rest), Operator: op}, true
		}
	}
	return Filter{Key: key, Value: unquote(val), Operator: OpEqual}, true
}

// tokenize splits the string by spaces, respecting quotes. Quotes are
// kept in the tokens.
func tokenize(input string) []string {
	var tokens []string
	var cur strings.Builder
	var quote rune

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case unicode.IsSpace(r):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return tokens
}

func isQuoted(s string) bool {
	return strings.HasPrefix(s, "\"") || strings.HasPrefix(s, "'")
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
