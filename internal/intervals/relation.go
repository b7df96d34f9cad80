package intervals

// Relation selects the combinator a relation filter applies.
type Relation int

const (
	RelContaining Relation = iota
	RelNotContaining
	RelContainedBy
	RelNotContainedBy
	RelOverlapping
	RelNotOverlapping
	RelBefore
	RelAfter
)

var relationNames = [...]string{
	RelContaining:     "containing",
	RelNotContaining:  "notContaining",
	RelContainedBy:    "containedBy",
	RelNotContainedBy: "notContainedBy",
	RelOverlapping:    "overlapping",
	RelNotOverlapping: "notOverlapping",
	RelBefore:         "before",
	RelAfter:          "after",
}

func (r Relation) String() string {
	if r < 0 || int(r) >= len(relationNames) {
		return "unknown"
	}
	return relationNames[r]
}

// holds reports whether subject satisfies r against a single reference.
func (r Relation) holds(subject, ref Interval) bool {
	switch r {
	case RelContaining, RelNotContaining:
		return subject.Start <= ref.Start && ref.End <= subject.End
	case RelContainedBy, RelNotContainedBy:
		return ref.Start <= subject.Start && subject.End <= ref.End
	case RelOverlapping, RelNotOverlapping:
		return subject.Start <= ref.End && ref.Start <= subject.End
	case RelBefore:
		return subject.End < ref.Start
	case RelAfter:
		return subject.Start > ref.End
	default:
		return false
	}
}

// negated reports whether r keeps subjects with no satisfying reference.
func (r Relation) negated() bool {
	switch r {
	case RelNotContaining, RelNotContainedBy, RelNotOverlapping:
		return true
	default:
		return false
	}
}
