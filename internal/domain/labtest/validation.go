package labtest

import (
	"fmt"
	"regexp"
)

// RuleKind classifies the input a test accepts.
type RuleKind int

const (
	KindFreeText RuleKind = iota
	KindInteger
	KindDecimal
)

func (k RuleKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	default:
		return "text"
	}
}

// Rule is the input-validation rule attached to a catalog entry. A value is
// accepted when it matches the whole pattern. A rule without a pattern
// accepts everything.
type Rule struct {
	Kind         RuleKind
	ErrorMessage string
	source       string
	re           *regexp.Regexp
}

// NewRule compiles pattern anchored at both ends.
func NewRule(kind RuleKind, pattern, errorMessage string) (Rule, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return Rule{}, fmt.Errorf("compile rule pattern %q: %w", pattern, err)
	}
	return Rule{Kind: kind, ErrorMessage: errorMessage, source: pattern, re: re}, nil
}

// MustRule is like NewRule but panics on an invalid pattern. It is meant for
// the static edition tables.
func MustRule(kind RuleKind, pattern, errorMessage string) Rule {
	r, err := NewRule(kind, pattern, errorMessage)
	if err != nil {
		panic(err)
	}
	return r
}

var (
	// IntegerRule accepts unsigned whole numbers.
	IntegerRule = MustRule(KindInteger, `\d+`, "Invalid number")
	// DecimalRule accepts unsigned numbers with at most one decimal point.
	DecimalRule = MustRule(KindDecimal, `\d+(?:\.\d*)?|\.\d+`, "Invalid number")
	// TextRule accepts any text.
	TextRule = MustRule(KindFreeText, `(?s).*`, "Invalid input")
	// AcceptAll is carried by category headers.
	AcceptAll = Rule{Kind: KindFreeText}
)

// Pattern returns the unanchored source pattern, or "" for AcceptAll.
func (r Rule) Pattern() string { return r.source }

// Matches reports whether value satisfies the rule's pattern in full.
func (r Rule) Matches(value string) bool {
	if r.re == nil {
		return true
	}
	return r.re.MatchString(value)
}

// Equal reports whether two rules have the same kind, message and pattern.
func (r Rule) Equal(o Rule) bool {
	return r.Kind == o.Kind && r.ErrorMessage == o.ErrorMessage && r.source == o.source
}

// Validate returns the rule's error message when a non-empty value does not
// match, and "" otherwise. Blank values are always accepted.
func Validate(value string, rule Rule) string {
	if value == "" {
		return ""
	}
	if !rule.Matches(value) {
		return rule.ErrorMessage
	}
	return ""
}
