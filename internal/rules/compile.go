// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/solatis/intervalq/internal/intervals"
	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/types"
)

/*
 * Rule compilation.
 *
 * Compiles a types.Rule tree against a resolved field into an
 * intervals.Source tree. Every compile function returns (source, cacheable)
 * and parents fold their children's flags with AND; a script filter
 * anywhere yields false for the whole query.
 *
 * Translation (T(w) = single-term leaf):
 *   - match: analyze into w1..wn; 0 terms match nothing, 1 term is T(w1),
 *     more are ordered/unordered(T(w1)..T(wn)) under maxgaps when >= 0
 *   - any_of: or(alternatives), input order kept
 *   - all_of: ordered/unordered(sub-rules), maxgaps when >= 0
 *   - prefix: exact term on the prefix sub-field when its length range
 *     covers the prefix, a wildcard-on-sub-field / exact-term pair when the
 *     prefix is shorter than min_chars, a prefix automaton otherwise
 *   - wildcard, fuzzy: multi-term automata on the search field
 *
 * Masking and filters: leaves with use_field are wrapped in
 * fixField(use_field, .) first; the filter then wraps the masked subject.
 * Relation references compile against the unmasked query field, so the
 * reference scans the query field's postings at evaluation time.
 *
 * Field checks: only a top-level field missing from the mapping relaxes to
 * no_intervals. Unknown use fields, non-text fields and fields without
 * positions are field-capability errors.
 */

// ScriptCompiler binds script filters to filter factories.
type ScriptCompiler interface {
	Compile(s types.Script) (intervals.FilterFactory, error)
}

type compiler struct {
	resolver *mapping.Resolver
	scripts  ScriptCompiler
	base     *mapping.FieldContext
}

// compileTop compiles rule against field, applying the unknown-field
// relaxation.
func compileTop(rule *types.Rule, field string, resolver *mapping.Resolver, scripts ScriptCompiler) (intervals.Source, bool, error) {
	base, err := resolver.Resolve(field, "")
	if err != nil {
		if errors.Is(err, types.ErrNoSuchField) {
			return intervals.NoIntervals("no such field [" + field + "]"), true, nil
		}
		return nil, false, err
	}
	if err := checkTextField(base); err != nil {
		return nil, false, err
	}

	c := &compiler{resolver: resolver, scripts: scripts, base: base}
	return c.compile(rule)
}

func (c *compiler) compile(rule *types.Rule) (intervals.Source, bool, error) {
	switch rule.Kind {
	case types.RuleMatch:
		return c.compileMatch(rule.Match)
	case types.RuleAnyOf:
		return c.compileDisjunction(rule.AnyOf)
	case types.RuleAllOf:
		return c.compileCombine(rule.AllOf)
	case types.RulePrefix:
		return c.compilePrefix(rule.Prefix)
	case types.RuleWildcard:
		return c.compileWildcard(rule.Wildcard)
	case types.RuleFuzzy:
		return c.compileFuzzy(rule.Fuzzy)
	default:
		return nil, false, fmt.Errorf("%w: rule kind %s", types.ErrParse, rule.Kind)
	}
}

func (c *compiler) compileMatch(m *types.MatchRule) (intervals.Source, bool, error) {
	fc, err := c.leafContext(m.UseField)
	if err != nil {
		return nil, false, err
	}
	an, err := c.analyzer(fc, m.Analyzer)
	if err != nil {
		return nil, false, err
	}

	tokens := an.Analyze(m.Query)

	var src intervals.Source
	switch len(tokens) {
	case 0:
		src = intervals.NoIntervals("no tokens")
	case 1:
		src = intervals.Term(tokens[0].Term)
	default:
		// Positions removed by the analyzer (stop words) still count as
		// gaps: every term after the first is widened to cover them.
		leaves := make([]intervals.Source, len(tokens))
		for i, tok := range tokens {
			leaves[i] = intervals.Term(tok.Term)
			if i > 0 {
				if gap := tok.Position - tokens[i-1].Position - 1; gap > 0 {
					leaves[i] = intervals.Extend(leaves[i], gap, 0)
				}
			}
		}
		src = combine(m.Ordered, leaves)
		if m.MaxGaps >= 0 {
			src = intervals.MaxGaps(m.MaxGaps, src)
		}
	}

	return c.finish(src, fc, m.Filter, true)
}

func (c *compiler) compileDisjunction(d *types.DisjunctionRule) (intervals.Source, bool, error) {
	subs, cacheable, err := c.compileAll(d.Intervals)
	if err != nil {
		return nil, false, err
	}
	return c.applyFilter(intervals.Or(subs...), d.Filter, cacheable)
}

func (c *compiler) compileCombine(a *types.CombineRule) (intervals.Source, bool, error) {
	subs, cacheable, err := c.compileAll(a.Intervals)
	if err != nil {
		return nil, false, err
	}
	src := combine(a.Ordered, subs)
	if a.MaxGaps >= 0 {
		src = intervals.MaxGaps(a.MaxGaps, src)
	}
	return c.applyFilter(src, a.Filter, cacheable)
}

func (c *compiler) compileAll(rules []types.Rule) ([]intervals.Source, bool, error) {
	subs := make([]intervals.Source, 0, len(rules))
	cacheable := true
	for i := range rules {
		src, ok, err := c.compile(&rules[i])
		if err != nil {
			return nil, false, err
		}
		subs = append(subs, src)
		cacheable = cacheable && ok
	}
	return subs, cacheable, nil
}

func (c *compiler) compilePrefix(p *types.PrefixRule) (intervals.Source, bool, error) {
	fc, err := c.leafContext(p.UseField)
	if err != nil {
		return nil, false, err
	}
	an, err := c.analyzer(fc, p.Analyzer)
	if err != nil {
		return nil, false, err
	}

	prefix := an.Normalize(p.Prefix)
	n := utf8.RuneCountInString(prefix)

	var src intervals.Source
	switch {
	case fc.PrefixField != "" && n >= fc.Prefixes.MinChars && n <= fc.Prefixes.MaxChars:
		src = intervals.FixField(fc.PrefixField, intervals.Term(prefix))
	case fc.PrefixField != "" && n < fc.Prefixes.MinChars:
		pattern := escapeWildcard(prefix) + strings.Repeat("?", fc.Prefixes.MinChars-n)
		a, err := intervals.WildcardAutomaton(pattern)
		if err != nil {
			return nil, false, automatonError("prefix", "prefix", err)
		}
		src = intervals.Or(
			intervals.FixField(fc.PrefixField, intervals.MultiTerm("wildcard", pattern, a, types.MaxExpansions)),
			intervals.Term(prefix),
		)
	default:
		a, err := intervals.PrefixAutomaton(prefix)
		if err != nil {
			return nil, false, automatonError("prefix", "prefix", err)
		}
		src = intervals.MultiTerm("prefix", prefix, a, types.MaxExpansions)
	}

	return c.finish(src, fc, nil, true)
}

func (c *compiler) compileWildcard(w *types.WildcardRule) (intervals.Source, bool, error) {
	fc, err := c.leafContext(w.UseField)
	if err != nil {
		return nil, false, err
	}
	an, err := c.analyzer(fc, w.Analyzer)
	if err != nil {
		return nil, false, err
	}

	pattern := an.Normalize(w.Pattern)
	a, err := intervals.WildcardAutomaton(pattern)
	if err != nil {
		return nil, false, automatonError("wildcard", "pattern", err)
	}
	return c.finish(intervals.MultiTerm("wildcard", pattern, a, types.MaxExpansions), fc, nil, true)
}

func (c *compiler) compileFuzzy(f *types.FuzzyRule) (intervals.Source, bool, error) {
	fc, err := c.leafContext(f.UseField)
	if err != nil {
		return nil, false, err
	}
	an, err := c.analyzer(fc, f.Analyzer)
	if err != nil {
		return nil, false, err
	}

	term := an.Normalize(f.Term)
	edits := editDistance(f.Fuzziness, utf8.RuneCountInString(term))
	a, err := intervals.FuzzyAutomaton(term, edits, f.PrefixLength, f.Transpositions)
	if err != nil {
		return nil, false, automatonError("fuzzy", "term", err)
	}
	return c.finish(intervals.MultiTerm("fuzzy", f.Term, a, types.MaxExpansions), fc, nil, true)
}

// finish masks a leaf source when its context is masked, then applies
// the filter.
func (c *compiler) finish(src intervals.Source, fc *mapping.FieldContext, filter *types.Filter, cacheable bool) (intervals.Source, bool, error) {
	if fc.Masked() {
		src = intervals.FixField(fc.SearchField, src)
	}
	return c.applyFilter(src, filter, cacheable)
}

func (c *compiler) applyFilter(src intervals.Source, filter *types.Filter, cacheable bool) (intervals.Source, bool, error) {
	if filter == nil {
		return src, cacheable, nil
	}

	if filter.Kind == types.FilterScript {
		if c.scripts == nil {
			return nil, false, types.ErrScriptsDisabled
		}
		factory, err := c.scripts.Compile(*filter.Script)
		if err != nil {
			return nil, false, err
		}
		return intervals.ScriptFiltered(src, filter.Script.Source, factory), false, nil
	}

	rel, err := relationFor(filter.Kind)
	if err != nil {
		return nil, false, err
	}
	ref, refCacheable, err := c.compile(filter.Reference)
	if err != nil {
		return nil, false, err
	}
	return intervals.Relate(rel, src, ref), cacheable && refCacheable, nil
}

// leafContext resolves the field a leaf scans: the query field, or its
// use_field mask.
func (c *compiler) leafContext(useField string) (*mapping.FieldContext, error) {
	fc := c.base
	if useField != "" {
		resolved, err := c.resolver.Resolve(c.base.Field, useField)
		if err != nil {
			var fe *types.FieldError
			if errors.As(err, &fe) && errors.Is(err, types.ErrNoSuchField) {
				return nil, &types.FieldError{Field: fe.Field, Msg: fe.Msg, Err: types.ErrFieldCapability}
			}
			return nil, err
		}
		if err := checkTextField(resolved); err != nil {
			return nil, err
		}
		fc = resolved
	}
	if !fc.HasPositions {
		return nil, &types.FieldError{
			Field: fc.SearchField,
			Type:  string(fc.Type),
			Msg:   fmt.Sprintf("Cannot create intervals over field [%s] with no positions indexed", fc.SearchField),
			Err:   types.ErrFieldCapability,
		}
	}
	return fc, nil
}

// analyzer returns the named analyzer, or the field's query analyzer.
func (c *compiler) analyzer(fc *mapping.FieldContext, name string) (*mapping.Analyzer, error) {
	if name == "" {
		return fc.Analyzer, nil
	}
	return c.resolver.Analyzer(name)
}

func checkTextField(fc *mapping.FieldContext) error {
	if fc.Type != mapping.TypeText {
		return &types.FieldError{
			Field: fc.SearchField,
			Type:  string(fc.Type),
			Msg: fmt.Sprintf("Can only use interval queries on text fields - not on [%s] which is of type [%s]",
				fc.SearchField, fc.Type),
			Err: types.ErrFieldCapability,
		}
	}
	return nil
}

func combine(ordered bool, sources []intervals.Source) intervals.Source {
	if ordered {
		return intervals.Ordered(sources...)
	}
	return intervals.Unordered(sources...)
}

// escapeWildcard quotes wildcard syntax in a literal term.
func escapeWildcard(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '?' || r == '*' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func automatonError(object, key string, err error) error {
	return &types.ParseError{
		Object: object,
		Key:    key,
		Msg:    fmt.Sprintf("[%s] %v", object, err),
	}
}
