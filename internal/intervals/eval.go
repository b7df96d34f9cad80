package intervals

import (
	"errors"
	"fmt"
	"sort"
)

/*
 * Reference evaluator over in-memory token streams.
 *
 * Evaluates a Source against a Document whose fields are plain token
 * sequences (token i sits at position i). It implements the evaluator
 * contract the compiler targets, without postings or scoring, so compiled
 * trees can be checked at evaluation level.
 *
 * Semantics:
 *   - term / multiterm: one [p,p] interval per matching position
 *   - ordered / unordered: operands must not overlap; results are minimal
 *     (an interval containing another result is dropped)
 *   - or: union of operand intervals, duplicates collapsed
 *   - maxgaps: keeps intervals with Gaps <= n
 *   - extend: widens each interval, clamping the start at position 0
 *   - fixField: evaluates the operand on the masking field
 *   - relations: keep subject intervals with (or without) a reference
 *     interval satisfying the relation
 *   - script: keeps intervals accepted by one filter per Evaluate call
 *
 * Gaps of a combination is its width minus the widths of its operands.
 */

// ErrTooManyExpansions is returned when a multi-term leaf matches more
// distinct terms than its MaxExpansions.
var ErrTooManyExpansions = errors.New("automaton expanded to too many terms")

// Document maps field names to token streams.
type Document map[string][]string

// Evaluate returns src's intervals over doc's field, ordered by start then end.
func Evaluate(src Source, doc Document, field string) ([]Interval, error) {
	e := &evaluator{doc: doc}
	out, err := e.eval(src, field)
	if err != nil {
		return nil, err
	}
	sortIntervals(out)
	return out, nil
}

type evaluator struct {
	doc Document
}

func (e *evaluator) eval(src Source, field string) ([]Interval, error) {
	switch s := src.(type) {
	case *TermSource:
		var out []Interval
		for pos, tok := range e.doc[field] {
			if tok == s.Term {
				out = append(out, Interval{Start: pos, End: pos})
			}
		}
		return out, nil

	case *MultiTermSource:
		return e.evalMultiTerm(s, field)

	case *CombineSource:
		if len(s.Sources) == 0 {
			return nil, nil
		}
		lists := make([][]Interval, len(s.Sources))
		for i, sub := range s.Sources {
			ivs, err := e.eval(sub, field)
			if err != nil {
				return nil, err
			}
			if len(ivs) == 0 {
				return nil, nil
			}
			sortIntervals(ivs)
			lists[i] = ivs
		}
		return combine(lists, s.Ordered), nil

	case *DisjunctionSource:
		var out []Interval
		for _, sub := range s.Sources {
			ivs, err := e.eval(sub, field)
			if err != nil {
				return nil, err
			}
			out = append(out, ivs...)
		}
		return dedupe(out), nil

	case *MaxGapsSource:
		ivs, err := e.eval(s.Source, field)
		if err != nil {
			return nil, err
		}
		out := ivs[:0]
		for _, iv := range ivs {
			if iv.Gaps <= s.MaxGaps {
				out = append(out, iv)
			}
		}
		return out, nil

	case *ExtendSource:
		ivs, err := e.eval(s.Source, field)
		if err != nil {
			return nil, err
		}
		out := make([]Interval, len(ivs))
		for i, iv := range ivs {
			start := iv.Start - s.Before
			if start < 0 {
				start = 0
			}
			out[i] = Interval{Start: start, End: iv.End + s.After, Gaps: iv.Gaps}
		}
		return out, nil

	case *FixFieldSource:
		return e.eval(s.Source, s.Field)

	case *RelationSource:
		subjects, err := e.eval(s.Subject, field)
		if err != nil {
			return nil, err
		}
		refs, err := e.eval(s.Reference, field)
		if err != nil {
			return nil, err
		}
		var out []Interval
		for _, subj := range subjects {
			found := false
			for _, ref := range refs {
				if s.Relation.holds(subj, ref) {
					found = true
					break
				}
			}
			if found != s.Relation.negated() {
				out = append(out, subj)
			}
		}
		return out, nil

	case *ScriptFilterSource:
		ivs, err := e.eval(s.Source, field)
		if err != nil {
			return nil, err
		}
		filter := s.Factory.NewFilter()
		var out []Interval
		for _, iv := range ivs {
			if filter.Accept(iv) {
				out = append(out, iv)
			}
		}
		return out, nil

	case *NoIntervalsSource:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported interval source %T", src)
	}
}

func (e *evaluator) evalMultiTerm(s *MultiTermSource, field string) ([]Interval, error) {
	tokens := e.doc[field]
	accepted := make(map[string]bool)
	var out []Interval
	for pos, tok := range tokens {
		ok, seen := accepted[tok]
		if !seen {
			ok = Accepts(s.Automaton, tok)
			accepted[tok] = ok
		}
		if ok {
			out = append(out, Interval{Start: pos, End: pos})
		}
	}

	if s.MaxExpansions > 0 {
		expansions := 0
		for _, ok := range accepted {
			if ok {
				expansions++
			}
		}
		if expansions > s.MaxExpansions {
			return nil, fmt.Errorf("%w: %s matched %d terms, limit %d", ErrTooManyExpansions, s, expansions, s.MaxExpansions)
		}
	}
	return out, nil
}

// combine chains one interval per operand without overlap. Unordered
// combinations try every operand order.
func combine(lists [][]Interval, ordered bool) []Interval {
	var out []Interval
	order := make([]int, len(lists))
	for i := range order {
		order[i] = i
	}

	var chain func(k int, start, end, covered int)
	chain = func(k int, start, end, covered int) {
		if k == len(order) {
			out = append(out, Interval{Start: start, End: end, Gaps: end - start + 1 - covered})
			return
		}
		for _, iv := range lists[order[k]] {
			if k > 0 && iv.Start <= end {
				continue
			}
			s := start
			if k == 0 {
				s = iv.Start
			}
			chain(k+1, s, iv.End, covered+iv.End-iv.Start+1)
		}
	}

	if ordered {
		chain(0, 0, 0, 0)
	} else {
		permute(order, 0, func() { chain(0, 0, 0, 0) })
	}
	return minimize(out)
}

func permute(order []int, k int, fn func()) {
	if k == len(order) {
		fn()
		return
	}
	for i := k; i < len(order); i++ {
		order[k], order[i] = order[i], order[k]
		permute(order, k+1, fn)
		order[k], order[i] = order[i], order[k]
	}
}

// minimize drops intervals that contain another interval.
func minimize(ivs []Interval) []Interval {
	ivs = dedupe(ivs)
	var out []Interval
	for i, a := range ivs {
		minimal := true
		for j, b := range ivs {
			if i != j && a.Start <= b.Start && b.End <= a.End {
				minimal = false
				break
			}
		}
		if minimal {
			out = append(out, a)
		}
	}
	return out
}

// dedupe collapses intervals with equal spans, keeping the smallest gaps.
func dedupe(ivs []Interval) []Interval {
	sortIntervals(ivs)
	var out []Interval
	for _, iv := range ivs {
		n := len(out)
		if n > 0 && out[n-1].Start == iv.Start && out[n-1].End == iv.End {
			if iv.Gaps < out[n-1].Gaps {
				out[n-1].Gaps = iv.Gaps
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func sortIntervals(ivs []Interval) {
	sort.SliceStable(ivs, func(i, j int) bool {
		if ivs[i].Start != ivs[j].Start {
			return ivs[i].Start < ivs[j].Start
		}
		if ivs[i].End != ivs[j].End {
			return ivs[i].End < ivs[j].End
		}
		return ivs[i].Gaps < ivs[j].Gaps
	})
}
