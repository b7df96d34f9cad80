// internal/rules/operators.go
package rules

import (
	"fmt"

	"github.com/solatis/intervalq/internal/intervals"
	"github.com/solatis/intervalq/internal/types"
)

/*
 * Relation filter operators.
 *
 * Maps the eight relation filter kinds onto evaluator combinators. Each is
 * binary, (subject, reference) -> subject', and the compiler only selects
 * the operator and supplies operands:
 *   - containing / not_containing
 *   - contained_by / not_contained_by
 *   - overlapping / not_overlapping
 *   - before / after
 */

var relationOperators = map[types.FilterKind]intervals.Relation{
	types.FilterContaining:     intervals.RelContaining,
	types.FilterNotContaining:  intervals.RelNotContaining,
	types.FilterContainedBy:    intervals.RelContainedBy,
	types.FilterNotContainedBy: intervals.RelNotContainedBy,
	types.FilterOverlapping:    intervals.RelOverlapping,
	types.FilterNotOverlapping: intervals.RelNotOverlapping,
	types.FilterBefore:         intervals.RelBefore,
	types.FilterAfter:          intervals.RelAfter,
}

// relationFor returns the combinator for a relation filter kind.
func relationFor(kind types.FilterKind) (intervals.Relation, error) {
	rel, ok := relationOperators[kind]
	if !ok {
		return 0, fmt.Errorf("filter [%s] is not a relation", kind)
	}
	return rel, nil
}
