// Package intervals provides the positional interval algebra targeted by the
// rule compiler.
//
// A Source is an immutable expression node. Leaves select token positions of
// one field (Term, MultiTerm); inner nodes combine, constrain, mask or filter
// the intervals of their operands. Trees may be shared and evaluated from
// many goroutines; the only per-goroutine state is the IntervalFilter a
// ScriptFilterSource obtains from its FilterFactory.
package intervals

import (
	"fmt"
	"strings"

	"github.com/blevesearch/vellum"
)

/*
 * Expression nodes and constructors.
 *
 * Constructors mirror the evaluator primitives: Term, Ordered, Unordered,
 * Or, MaxGaps, FixField, Relate (the eight relation combinators),
 * MultiTerm, ScriptFiltered and NoIntervals. Or, Ordered and Unordered
 * with a single operand return that operand unchanged; operand order is
 * always preserved and never deduplicated.
 *
 * String() renders a compact, deterministic form used in tests, logs and
 * the compile API response, e.g. maxgaps(10,ordered(hello,world)).
 */

// Interval is a span of token positions within one field of one document.
// Gaps is the number of positions inside the span not covered by operands.
type Interval struct {
	Start int
	End   int
	Gaps  int
}

// IntervalFilter decides whether a candidate interval is kept.
// Implementations are not required to be safe for concurrent use.
type IntervalFilter interface {
	Accept(iv Interval) bool
}

// FilterFactory produces IntervalFilters. Factories are shared by the
// compiled tree, so NewFilter must be safe for concurrent use.
type FilterFactory interface {
	NewFilter() IntervalFilter
}

// Source is a node of the interval expression tree.
type Source interface {
	fmt.Stringer
	children() []Source
}

// TermSource matches every position holding Term.
type TermSource struct {
	Term string
}

// CombineSource requires all operands, in order when Ordered is set.
type CombineSource struct {
	Ordered bool
	Sources []Source
}

// DisjunctionSource matches any operand.
type DisjunctionSource struct {
	Sources []Source
}

// MaxGapsSource drops intervals whose internal gaps exceed MaxGaps.
type MaxGapsSource struct {
	MaxGaps int
	Source  Source
}

// ExtendSource widens Source's intervals by Before positions on the left
// and After on the right.
type ExtendSource struct {
	Before int
	After  int
	Source Source
}

// FixFieldSource evaluates Source against Field's postings while reporting
// matches under the enclosing field. The innermost mask decides the field.
type FixFieldSource struct {
	Field  string
	Source Source
}

// RelationSource keeps Subject intervals that satisfy Relation against
// Reference.
type RelationSource struct {
	Relation  Relation
	Subject   Source
	Reference Source
}

// MultiTermSource matches positions whose term is accepted by Automaton.
// Kind is prefix, wildcard or fuzzy; Label is reported for highlighting
// and debugging only.
type MultiTermSource struct {
	Kind          string
	Label         string
	Automaton     vellum.Automaton
	MaxExpansions int
}

// ScriptFilterSource keeps Source intervals accepted by filters obtained
// from Factory.
type ScriptFilterSource struct {
	Source  Source
	Script  string
	Factory FilterFactory
}

// NoIntervalsSource never matches.
type NoIntervalsSource struct {
	Reason string
}

// Term returns a single-term leaf.
func Term(term string) Source {
	return &TermSource{Term: term}
}

// Ordered requires sources to appear in the given order without overlap.
func Ordered(sources ...Source) Source {
	if len(sources) == 1 {
		return sources[0]
	}
	return &CombineSource{Ordered: true, Sources: sources}
}

// Unordered requires all sources in any order without overlap.
func Unordered(sources ...Source) Source {
	if len(sources) == 1 {
		return sources[0]
	}
	return &CombineSource{Ordered: false, Sources: sources}
}

// Or matches any of sources.
func Or(sources ...Source) Source {
	if len(sources) == 1 {
		return sources[0]
	}
	return &DisjunctionSource{Sources: sources}
}

// MaxGaps bounds the internal gaps of source's intervals.
func MaxGaps(maxGaps int, source Source) Source {
	return &MaxGapsSource{MaxGaps: maxGaps, Source: source}
}

// Extend widens source's intervals. Zero widths return source unchanged.
func Extend(source Source, before, after int) Source {
	if before == 0 && after == 0 {
		return source
	}
	return &ExtendSource{Before: before, After: after, Source: source}
}

// FixField masks source so it scans field's postings.
func FixField(field string, source Source) Source {
	return &FixFieldSource{Field: field, Source: source}
}

// Relate wraps subject with the relation combinator against reference.
func Relate(rel Relation, subject, reference Source) Source {
	return &RelationSource{Relation: rel, Subject: subject, Reference: reference}
}

// MultiTerm returns a leaf matching all terms accepted by a.
func MultiTerm(kind, label string, a vellum.Automaton, maxExpansions int) Source {
	return &MultiTermSource{Kind: kind, Label: label, Automaton: a, MaxExpansions: maxExpansions}
}

// ScriptFiltered wraps source with a per-interval script predicate.
func ScriptFiltered(source Source, script string, factory FilterFactory) Source {
	return &ScriptFilterSource{Source: source, Script: script, Factory: factory}
}

// NoIntervals returns a leaf that never matches.
func NoIntervals(reason string) Source {
	return &NoIntervalsSource{Reason: reason}
}

func (s *TermSource) String() string { return s.Term }

func (s *TermSource) children() []Source { return nil }

func (s *CombineSource) String() string {
	name := "unordered"
	if s.Ordered {
		name = "ordered"
	}
	return name + "(" + joinSources(s.Sources) + ")"
}

func (s *CombineSource) children() []Source { return s.Sources }

func (s *DisjunctionSource) String() string {
	return "or(" + joinSources(s.Sources) + ")"
}

func (s *DisjunctionSource) children() []Source { return s.Sources }

func (s *MaxGapsSource) String() string {
	return fmt.Sprintf("maxgaps(%d,%s)", s.MaxGaps, s.Source)
}

func (s *MaxGapsSource) children() []Source { return []Source{s.Source} }

func (s *ExtendSource) String() string {
	return fmt.Sprintf("extend(%s,%d,%d)", s.Source, s.Before, s.After)
}

func (s *ExtendSource) children() []Source { return []Source{s.Source} }

func (s *FixFieldSource) String() string {
	return fmt.Sprintf("fixField(%s,%s)", s.Field, s.Source)
}

func (s *FixFieldSource) children() []Source { return []Source{s.Source} }

func (s *RelationSource) String() string {
	return fmt.Sprintf("%s(%s,%s)", s.Relation, s.Subject, s.Reference)
}

func (s *RelationSource) children() []Source { return []Source{s.Subject, s.Reference} }

func (s *MultiTermSource) String() string {
	return s.Kind + "(" + s.Label + ")"
}

func (s *MultiTermSource) children() []Source { return nil }

func (s *ScriptFilterSource) String() string {
	return fmt.Sprintf("script(%s,%q)", s.Source, s.Script)
}

func (s *ScriptFilterSource) children() []Source { return []Source{s.Source} }

func (s *NoIntervalsSource) String() string {
	return "no_intervals(" + s.Reason + ")"
}

func (s *NoIntervalsSource) children() []Source { return nil }

func joinSources(sources []Source) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Walk visits s and its operands depth-first, pre-order. Returning false
// from fn skips the node's operands.
func Walk(s Source, fn func(Source) bool) {
	if s == nil || !fn(s) {
		return
	}
	for _, c := range s.children() {
		Walk(c, fn)
	}
}
