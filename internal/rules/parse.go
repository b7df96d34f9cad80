// internal/rules/parse.go
package rules

import (
	"fmt"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/solatis/intervalq/internal/types"
)

/*
 * Rule tree parsing.
 *
 * Parses the JSON rule language into types.Rule trees. Object keys are
 * visited in document order (fastjson keeps order and duplicates), which is
 * what makes ambiguity errors deterministic: the first two rule or filter
 * keys found on one object are reported, and a repeated key counts as a
 * second occurrence rather than silently overwriting the first.
 *
 * Parse-time validation:
 *   - exactly one rule kind per rule object, one kind per filter object,
 *     one filter key per rule
 *   - unknown keys rejected with the enclosing object name
 *   - required keys (query, intervals, prefix, pattern, term, source)
 *   - integers for max_gaps/prefix_length, max_gaps >= -1,
 *     prefix_length >= 0, fuzziness <= 2
 *   - nesting bounded by types.MaxRuleDepth
 *
 * Field capability checks happen later, in the compiler.
 */

var parserPool fastjson.ParserPool

var ruleKeys = []string{"match", "any_of", "all_of", "prefix", "wildcard", "fuzzy"}

var filterKeys = []string{
	"containing", "not_containing", "contained_by", "not_contained_by",
	"overlapping", "not_overlapping", "before", "after", "script",
}

// ParseRule parses a single rule object, e.g. {"match": {"query": "..."}}.
func ParseRule(data []byte) (*types.Rule, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, &types.ParseError{Object: "intervals", Msg: fmt.Sprintf("[intervals] malformed JSON: %v", err)}
	}
	return parseRule(v, 0)
}

// ParseQuery parses a query envelope:
//
//	{"intervals": {"<field>": {<rule>, "boost": 1.0, "_name": "..."}}}
//
// The outer "intervals" wrapper may be omitted.
func ParseQuery(data []byte) (*types.IntervalQuery, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, &types.ParseError{Object: "intervals", Msg: fmt.Sprintf("[intervals] malformed JSON: %v", err)}
	}

	if obj, err := v.Object(); err == nil && obj.Len() == 1 {
		if inner := obj.Get("intervals"); inner != nil {
			v = inner
		}
	}

	var (
		field string
		body  *fastjson.Value
	)
	err = visitObject(v, "intervals", func(key string, val *fastjson.Value) error {
		if field != "" {
			return &types.ParseError{
				Object: "intervals",
				Key:    key,
				Msg:    fmt.Sprintf("[intervals] query doesn't support multiple fields, found [%s] and [%s]", field, key),
			}
		}
		field, body = key, val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if field == "" {
		return nil, &types.ParseError{Object: "intervals", Msg: "[intervals] requires a field"}
	}

	q := &types.IntervalQuery{Field: field, Boost: types.DefaultBoost}
	var ruleKind string
	var ruleBody *fastjson.Value
	err = visitObject(body, "intervals", func(key string, val *fastjson.Value) error {
		switch key {
		case "boost":
			f, err := coerceFloat(val)
			if err != nil {
				return invalidValue("intervals", key, val, err)
			}
			q.Boost = f
			return nil
		case "_name":
			s, err := coerceString(val)
			if err != nil {
				return invalidValue("intervals", key, val, err)
			}
			q.Name = s
			return nil
		}
		if !isRuleKey(key) {
			return unknownField("intervals", key)
		}
		if ruleKind != "" {
			return multipleRules(ruleKind, key)
		}
		ruleKind, ruleBody = key, val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ruleKind == "" {
		return nil, missingRule()
	}

	rule, err := parseRuleBody(ruleKind, ruleBody, 0)
	if err != nil {
		return nil, err
	}
	q.Rule = *rule
	return q, nil
}

// parseRule parses an object holding exactly one rule kind.
func parseRule(v *fastjson.Value, depth int) (*types.Rule, error) {
	if depth > types.MaxRuleDepth {
		return nil, &types.ParseError{
			Object: "intervals",
			Msg:    fmt.Sprintf("[intervals] rule nesting exceeds maximum depth of %d", types.MaxRuleDepth),
		}
	}

	var kind string
	var body *fastjson.Value
	err := visitObject(v, "intervals", func(key string, val *fastjson.Value) error {
		if !isRuleKey(key) {
			return unknownField("intervals", key)
		}
		if kind != "" {
			return multipleRules(kind, key)
		}
		kind, body = key, val
		return nil
	})
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return nil, missingRule()
	}
	return parseRuleBody(kind, body, depth)
}

func parseRuleBody(kind string, body *fastjson.Value, depth int) (*types.Rule, error) {
	switch kind {
	case "match":
		m, err := parseMatch(body, depth)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RuleMatch, Match: m}, nil
	case "any_of":
		d, err := parseDisjunction(body, depth)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RuleAnyOf, AnyOf: d}, nil
	case "all_of":
		c, err := parseCombine(body, depth)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RuleAllOf, AllOf: c}, nil
	case "prefix":
		p, err := parsePrefix(body)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RulePrefix, Prefix: p}, nil
	case "wildcard":
		w, err := parseWildcard(body)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RuleWildcard, Wildcard: w}, nil
	case "fuzzy":
		f, err := parseFuzzy(body)
		if err != nil {
			return nil, err
		}
		return &types.Rule{Kind: types.RuleFuzzy, Fuzzy: f}, nil
	default:
		return nil, unknownField("intervals", kind)
	}
}

func parseMatch(v *fastjson.Value, depth int) (*types.MatchRule, error) {
	m := &types.MatchRule{MaxGaps: -1}
	hasQuery := false

	err := visitObject(v, "match", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "query":
			m.Query, err = stringField("match", key, val)
			hasQuery = true
		case "max_gaps":
			m.MaxGaps, err = maxGapsField("match", val)
		case "ordered":
			m.Ordered, err = boolField("match", key, val)
		case "analyzer":
			m.Analyzer, err = stringField("match", key, val)
		case "use_field":
			m.UseField, err = stringField("match", key, val)
		case "filter":
			err = filterField(&m.Filter, val, depth)
		default:
			err = unknownField("match", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hasQuery {
		return nil, missingField("match", "query")
	}
	return m, nil
}

func parseDisjunction(v *fastjson.Value, depth int) (*types.DisjunctionRule, error) {
	d := &types.DisjunctionRule{}
	hasIntervals := false

	err := visitObject(v, "any_of", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "intervals":
			d.Intervals, err = parseIntervals("any_of", val, depth)
			hasIntervals = true
		case "filter":
			err = filterField(&d.Filter, val, depth)
		default:
			err = unknownField("any_of", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hasIntervals {
		return nil, missingField("any_of", "intervals")
	}
	return d, nil
}

func parseCombine(v *fastjson.Value, depth int) (*types.CombineRule, error) {
	c := &types.CombineRule{MaxGaps: -1}
	hasIntervals := false

	err := visitObject(v, "all_of", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "intervals":
			c.Intervals, err = parseIntervals("all_of", val, depth)
			hasIntervals = true
		case "ordered":
			c.Ordered, err = boolField("all_of", key, val)
		case "max_gaps":
			c.MaxGaps, err = maxGapsField("all_of", val)
		case "filter":
			err = filterField(&c.Filter, val, depth)
		default:
			err = unknownField("all_of", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !hasIntervals {
		return nil, missingField("all_of", "intervals")
	}
	return c, nil
}

// parseIntervals parses the non-empty rule list of any_of/all_of.
func parseIntervals(object string, v *fastjson.Value, depth int) ([]types.Rule, error) {
	items, err := v.Array()
	if err != nil {
		return nil, &types.ParseError{
			Object: object,
			Key:    "intervals",
			Msg:    fmt.Sprintf("[%s] [intervals] must be an array of rules, got [%s]", object, v.Type()),
		}
	}
	if len(items) == 0 {
		return nil, &types.ParseError{
			Object: object,
			Key:    "intervals",
			Msg:    fmt.Sprintf("[%s] [intervals] must not be empty", object),
		}
	}

	rules := make([]types.Rule, 0, len(items))
	for _, item := range items {
		r, err := parseRule(item, depth+1)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, nil
}

func parsePrefix(v *fastjson.Value) (*types.PrefixRule, error) {
	p := &types.PrefixRule{}
	err := visitObject(v, "prefix", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "prefix":
			p.Prefix, err = stringField("prefix", key, val)
		case "analyzer":
			p.Analyzer, err = stringField("prefix", key, val)
		case "use_field":
			p.UseField, err = stringField("prefix", key, val)
		default:
			err = unknownField("prefix", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.Prefix == "" {
		return nil, missingField("prefix", "prefix")
	}
	return p, nil
}

func parseWildcard(v *fastjson.Value) (*types.WildcardRule, error) {
	w := &types.WildcardRule{}
	err := visitObject(v, "wildcard", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "pattern":
			w.Pattern, err = stringField("wildcard", key, val)
		case "analyzer":
			w.Analyzer, err = stringField("wildcard", key, val)
		case "use_field":
			w.UseField, err = stringField("wildcard", key, val)
		default:
			err = unknownField("wildcard", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if w.Pattern == "" {
		return nil, missingField("wildcard", "pattern")
	}
	return w, nil
}

func parseFuzzy(v *fastjson.Value) (*types.FuzzyRule, error) {
	f := &types.FuzzyRule{
		Fuzziness:      types.AutoFuzziness(),
		Transpositions: true,
	}
	err := visitObject(v, "fuzzy", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "term":
			f.Term, err = stringField("fuzzy", key, val)
		case "prefix_length":
			f.PrefixLength, err = intField("fuzzy", key, val)
			if err == nil && f.PrefixLength < 0 {
				err = outOfRange("fuzzy", key, fmt.Sprintf("must be >= 0, got [%d]", f.PrefixLength))
			}
		case "transpositions":
			f.Transpositions, err = boolField("fuzzy", key, val)
		case "fuzziness":
			f.Fuzziness, err = fuzzinessField(val)
		case "analyzer":
			f.Analyzer, err = stringField("fuzzy", key, val)
		case "use_field":
			f.UseField, err = stringField("fuzzy", key, val)
		default:
			err = unknownField("fuzzy", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if f.Term == "" {
		return nil, missingField("fuzzy", "term")
	}
	return f, nil
}

// parseFilter parses a filter object holding exactly one relation or script.
func parseFilter(v *fastjson.Value, depth int) (*types.Filter, error) {
	var found string
	filter := &types.Filter{}

	err := visitObject(v, "filter", func(key string, val *fastjson.Value) error {
		kind, ok := types.FilterKindFromString(key)
		if !ok {
			return unknownField("filter", key)
		}
		if found != "" {
			return multipleFilters(found, key)
		}
		found = key
		filter.Kind = kind

		if kind == types.FilterScript {
			s, err := parseScript(val)
			if err != nil {
				return err
			}
			filter.Script = s
			return nil
		}

		ref, err := parseRule(val, depth+1)
		if err != nil {
			return err
		}
		filter.Reference = ref
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == "" {
		return nil, &types.ParseError{
			Object: "filter",
			Msg:    fmt.Sprintf("[filter] requires one of [%s]", strings.Join(filterKeys, ", ")),
		}
	}
	return filter, nil
}

// filterField parses a filter into dst. A rule carries at most one filter,
// so a repeated filter key conflicts like two kinds in one filter object.
func filterField(dst **types.Filter, v *fastjson.Value, depth int) error {
	f, err := parseFilter(v, depth)
	if err != nil {
		return err
	}
	if *dst != nil {
		return multipleFilters((*dst).Kind.String(), f.Kind.String())
	}
	*dst = f
	return nil
}

// parseScript accepts a bare source string or {"source", "params", "lang"}.
func parseScript(v *fastjson.Value) (*types.Script, error) {
	s := &types.Script{Lang: types.DefaultScriptLang}
	if v.Type() == fastjson.TypeString {
		s.Source = string(v.GetStringBytes())
		if s.Source == "" {
			return nil, missingField("script", "source")
		}
		return s, nil
	}

	err := visitObject(v, "script", func(key string, val *fastjson.Value) error {
		var err error
		switch key {
		case "source":
			s.Source, err = stringField("script", key, val)
		case "lang":
			s.Lang, err = stringField("script", key, val)
		case "params":
			if val.Type() != fastjson.TypeObject {
				return invalidValue("script", key, val, fmt.Errorf("expected an object"))
			}
			s.Params = toGo(val).(map[string]any)
		default:
			err = unknownField("script", key)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.Source == "" {
		return nil, missingField("script", "source")
	}
	return s, nil
}

// visitObject calls fn for each key of v in document order and stops at
// the first error.
func visitObject(v *fastjson.Value, object string, fn func(key string, val *fastjson.Value) error) error {
	obj, err := v.Object()
	if err != nil {
		return &types.ParseError{
			Object: object,
			Msg:    fmt.Sprintf("[%s] expected an object, got [%s]", object, v.Type()),
		}
	}

	var visitErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if visitErr != nil {
			return
		}
		visitErr = fn(string(key), val)
	})
	return visitErr
}

func stringField(object, key string, v *fastjson.Value) (string, error) {
	s, err := coerceString(v)
	if err != nil {
		return "", invalidValue(object, key, v, err)
	}
	return s, nil
}

func boolField(object, key string, v *fastjson.Value) (bool, error) {
	b, err := coerceBool(v)
	if err != nil {
		return false, invalidValue(object, key, v, err)
	}
	return b, nil
}

func intField(object, key string, v *fastjson.Value) (int, error) {
	n, err := coerceInt(v)
	if err != nil {
		return 0, invalidValue(object, key, v, err)
	}
	return n, nil
}

func maxGapsField(object string, v *fastjson.Value) (int, error) {
	n, err := intField(object, "max_gaps", v)
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, outOfRange(object, "max_gaps", fmt.Sprintf("must be >= -1, got [%d]", n))
	}
	return n, nil
}

func isRuleKey(key string) bool {
	for _, k := range ruleKeys {
		if k == key {
			return true
		}
	}
	return false
}

func unknownField(object, key string) error {
	return &types.ParseError{
		Object: object,
		Key:    key,
		Msg:    fmt.Sprintf("[%s] unknown field [%s]", object, key),
	}
}

func missingField(object, key string) error {
	return &types.ParseError{
		Object: object,
		Key:    key,
		Msg:    fmt.Sprintf("[%s] requires [%s]", object, key),
	}
}

func missingRule() error {
	return &types.ParseError{
		Object: "intervals",
		Msg:    fmt.Sprintf("[intervals] requires one of [%s]", strings.Join(ruleKeys, ", ")),
	}
}

func multipleRules(first, second string) error {
	return &types.ParseError{
		Object: "intervals",
		Key:    second,
		Msg:    fmt.Sprintf("Only one interval rule can be specified, found [%s] and [%s]", first, second),
	}
}

func multipleFilters(first, second string) error {
	return &types.ParseError{
		Object: "filter",
		Key:    second,
		Msg:    fmt.Sprintf("Only one filter can be specified, found [%s] and [%s]", first, second),
	}
}

func invalidValue(object, key string, v *fastjson.Value, err error) error {
	return &types.ParseError{
		Object: object,
		Key:    key,
		Msg:    fmt.Sprintf("[%s] failed to parse field [%s] with value [%s]: %v", object, key, literal(v), err),
	}
}

func outOfRange(object, key, detail string) error {
	return &types.ParseError{
		Object: object,
		Key:    key,
		Msg:    fmt.Sprintf("[%s] [%s] %s", object, key, detail),
	}
}
