// internal/types/rules.go
package types

/*
 * Domain types for interval rules.
 *
 * Provides the Rule tagged union, its Filter clause and the IntervalQuery
 * envelope used by internal/rules for parsing and compilation. JSON parsing
 * happens in internal/rules and the gRPC boundary converts Struct messages
 * into raw JSON before parsing. rules_json.go renders rules back into the
 * wire form.
 *
 * Key types:
 *   - Rule: exactly one of Match, AnyOf, AllOf, Prefix, Wildcard, Fuzzy
 *   - Filter: exactly one relation (with a reference Rule) or a Script
 *   - Fuzziness: symbolic (AUTO) or fixed edit distance
 *   - IntervalQuery: target field + rule + boost/name
 *
 * A Rule tree is built once per request and never mutated afterwards.
 */

// RuleKind identifies the populated variant of a Rule.
type RuleKind int

const (
	RuleUnspecified RuleKind = iota
	RuleMatch
	RuleAnyOf
	RuleAllOf
	RulePrefix
	RuleWildcard
	RuleFuzzy
)

var ruleKindNames = map[RuleKind]string{
	RuleMatch:    "match",
	RuleAnyOf:    "any_of",
	RuleAllOf:    "all_of",
	RulePrefix:   "prefix",
	RuleWildcard: "wildcard",
	RuleFuzzy:    "fuzzy",
}

// String returns the wire key of the rule kind.
func (k RuleKind) String() string {
	if name, ok := ruleKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// RuleKindFromString maps a wire key to its RuleKind.
func RuleKindFromString(s string) (RuleKind, bool) {
	for kind, name := range ruleKindNames {
		if name == s {
			return kind, true
		}
	}
	return RuleUnspecified, false
}

// Rule is a node of the rule tree. Exactly one variant pointer is set and
// matches Kind.
type Rule struct {
	Kind     RuleKind
	Match    *MatchRule
	AnyOf    *DisjunctionRule
	AllOf    *CombineRule
	Prefix   *PrefixRule
	Wildcard *WildcardRule
	Fuzzy    *FuzzyRule
}

// MatchRule analyzes Query into terms and matches them by proximity.
type MatchRule struct {
	Query    string
	MaxGaps  int    // -1 = unbounded
	Ordered  bool
	Analyzer string // empty = field search analyzer
	UseField string // empty = no masking
	Filter   *Filter
}

// DisjunctionRule matches any of its alternatives.
type DisjunctionRule struct {
	Intervals []Rule // non-empty
	Filter    *Filter
}

// CombineRule matches all of its sub-rules.
type CombineRule struct {
	Intervals []Rule // non-empty
	Ordered   bool
	MaxGaps   int // -1 = unbounded, 0 = adjacent
	Filter    *Filter
}

// PrefixRule matches terms starting with Prefix.
type PrefixRule struct {
	Prefix   string
	Analyzer string
	UseField string
}

// WildcardRule matches terms against a ?/* pattern.
type WildcardRule struct {
	Pattern  string
	Analyzer string
	UseField string
}

// FuzzyRule matches terms within an edit distance of Term.
type FuzzyRule struct {
	Term           string
	PrefixLength   int
	Fuzziness      Fuzziness
	Transpositions bool
	Analyzer       string
	UseField       string
}

// Fuzziness is an edit distance setting. Auto derives the distance from the
// term length: 0 below AutoLow runes, 1 below AutoHigh, 2 otherwise.
type Fuzziness struct {
	Auto     bool
	AutoLow  int
	AutoHigh int
	Edits    int // used when !Auto
}

// AutoFuzziness returns the default AUTO setting (AUTO:3,6).
func AutoFuzziness() Fuzziness {
	return Fuzziness{Auto: true, AutoLow: DefaultAutoFuzzyLow, AutoHigh: DefaultAutoFuzzyHigh}
}

// FilterKind identifies the populated variant of a Filter.
type FilterKind int

const (
	FilterUnspecified FilterKind = iota
	FilterContaining
	FilterNotContaining
	FilterContainedBy
	FilterNotContainedBy
	FilterOverlapping
	FilterNotOverlapping
	FilterBefore
	FilterAfter
	FilterScript
)

var filterKindNames = map[FilterKind]string{
	FilterContaining:     "containing",
	FilterNotContaining:  "not_containing",
	FilterContainedBy:    "contained_by",
	FilterNotContainedBy: "not_contained_by",
	FilterOverlapping:    "overlapping",
	FilterNotOverlapping: "not_overlapping",
	FilterBefore:         "before",
	FilterAfter:          "after",
	FilterScript:         "script",
}

// String returns the wire key of the filter kind.
func (k FilterKind) String() string {
	if name, ok := filterKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// FilterKindFromString maps a wire key to its FilterKind.
func FilterKindFromString(s string) (FilterKind, bool) {
	for kind, name := range filterKindNames {
		if name == s {
			return kind, true
		}
	}
	return FilterUnspecified, false
}

// Filter restricts the intervals of the rule it is attached to.
// Reference is set for relation kinds, Script for FilterScript.
type Filter struct {
	Kind      FilterKind
	Reference *Rule
	Script    *Script
}

// Script is a user predicate evaluated once per candidate interval.
type Script struct {
	Source string
	Lang   string
	Params map[string]any
}

// IntervalQuery is the top-level request: a rule bound to a field.
type IntervalQuery struct {
	Field string
	Rule  Rule
	Boost float64
	Name  string
}
