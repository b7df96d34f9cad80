// internal/types/rules_json.go
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire bodies of each rule kind. Field order is the output order; options
// equal to their defaults are omitted.
type (
	matchJSON struct {
		Query    string  `json:"query"`
		MaxGaps  *int    `json:"max_gaps,omitempty"`
		Ordered  bool    `json:"ordered,omitempty"`
		Analyzer string  `json:"analyzer,omitempty"`
		UseField string  `json:"use_field,omitempty"`
		Filter   *Filter `json:"filter,omitempty"`
	}

	anyOfJSON struct {
		Intervals []Rule  `json:"intervals"`
		Filter    *Filter `json:"filter,omitempty"`
	}

	allOfJSON struct {
		Intervals []Rule  `json:"intervals"`
		Ordered   bool    `json:"ordered,omitempty"`
		MaxGaps   *int    `json:"max_gaps,omitempty"`
		Filter    *Filter `json:"filter,omitempty"`
	}

	prefixJSON struct {
		Prefix   string `json:"prefix"`
		Analyzer string `json:"analyzer,omitempty"`
		UseField string `json:"use_field,omitempty"`
	}

	wildcardJSON struct {
		Pattern  string `json:"pattern"`
		Analyzer string `json:"analyzer,omitempty"`
		UseField string `json:"use_field,omitempty"`
	}

	fuzzyJSON struct {
		Term           string `json:"term"`
		PrefixLength   int    `json:"prefix_length,omitempty"`
		Fuzziness      any    `json:"fuzziness,omitempty"`
		Transpositions *bool  `json:"transpositions,omitempty"`
		Analyzer       string `json:"analyzer,omitempty"`
		UseField       string `json:"use_field,omitempty"`
	}

	scriptJSON struct {
		Source string         `json:"source"`
		Lang   string         `json:"lang,omitempty"`
		Params map[string]any `json:"params,omitempty"`
	}
)

// MarshalJSON renders the rule in the wire form accepted by the parser, so
// parsing the output yields an equal Rule.
func (r Rule) MarshalJSON() ([]byte, error) {
	var body any
	switch {
	case r.Kind == RuleMatch && r.Match != nil:
		m := r.Match
		body = matchJSON{
			Query:    m.Query,
			MaxGaps:  gapsOption(m.MaxGaps),
			Ordered:  m.Ordered,
			Analyzer: m.Analyzer,
			UseField: m.UseField,
			Filter:   m.Filter,
		}
	case r.Kind == RuleAnyOf && r.AnyOf != nil:
		body = anyOfJSON{Intervals: r.AnyOf.Intervals, Filter: r.AnyOf.Filter}
	case r.Kind == RuleAllOf && r.AllOf != nil:
		c := r.AllOf
		body = allOfJSON{
			Intervals: c.Intervals,
			Ordered:   c.Ordered,
			MaxGaps:   gapsOption(c.MaxGaps),
			Filter:    c.Filter,
		}
	case r.Kind == RulePrefix && r.Prefix != nil:
		body = prefixJSON(*r.Prefix)
	case r.Kind == RuleWildcard && r.Wildcard != nil:
		body = wildcardJSON(*r.Wildcard)
	case r.Kind == RuleFuzzy && r.Fuzzy != nil:
		f := r.Fuzzy
		fj := fuzzyJSON{
			Term:         f.Term,
			PrefixLength: f.PrefixLength,
			Analyzer:     f.Analyzer,
			UseField:     f.UseField,
		}
		switch {
		case f.Fuzziness == AutoFuzziness():
		case f.Fuzziness.Auto:
			fj.Fuzziness = f.Fuzziness.String()
		default:
			fj.Fuzziness = f.Fuzziness.Edits
		}
		if !f.Transpositions {
			fj.Transpositions = &f.Transpositions
		}
		body = fj
	default:
		return nil, fmt.Errorf("cannot marshal incomplete %s rule", r.Kind)
	}
	return json.Marshal(map[string]any{r.Kind.String(): body})
}

// MarshalJSON renders the filter as {"<kind>": <rule>} or {"script": {...}}.
func (f Filter) MarshalJSON() ([]byte, error) {
	var body any
	switch {
	case f.Kind == FilterScript && f.Script != nil:
		body = scriptJSON(*f.Script)
	case f.Kind != FilterUnspecified && f.Kind != FilterScript && f.Reference != nil:
		body = f.Reference
	default:
		return nil, fmt.Errorf("cannot marshal incomplete %s filter", f.Kind)
	}
	return json.Marshal(map[string]any{f.Kind.String(): body})
}

// String renders the fuzziness as "AUTO:low,high" or an edit count.
func (f Fuzziness) String() string {
	if f.Auto {
		return fmt.Sprintf("AUTO:%d,%d", f.AutoLow, f.AutoHigh)
	}
	return strconv.Itoa(f.Edits)
}

func gapsOption(n int) *int {
	if n == -1 {
		return nil
	}
	return &n
}
