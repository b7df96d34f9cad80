package intervals

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"
	vregexp "github.com/blevesearch/vellum/regexp"
)

/*
 * Term automata for multi-term leaves.
 *
 * All automata are byte-level vellum DFAs, the same machinery bleve uses to
 * intersect queries with its term dictionaries:
 *   - wildcard: ? and * translated to a vellum regexp, other runes quoted
 *   - prefix: quoted prefix followed by .*
 *   - fuzzy: a Levenshtein DFA over the term suffix, behind an exact prefix
 *
 * Both vellum regexp and levenshtein DFAs use state 0 as the dead state,
 * which is why Accepts walks the automaton itself instead of using
 * vellum.AutomatonContains.
 */

// WildcardAutomaton compiles a ?/* pattern. A backslash escapes the next
// rune; a trailing backslash matches itself.
func WildcardAutomaton(pattern string) (vellum.Automaton, error) {
	var b strings.Builder
	b.WriteString("(?s)")
	escaped := false
	for _, r := range pattern {
		if escaped {
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '?':
			b.WriteString(".")
		case '*':
			b.WriteString(".*")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(regexp.QuoteMeta(`\`))
	}
	a, err := vregexp.New(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile wildcard [%s]: %w", pattern, err)
	}
	return a, nil
}

// PrefixAutomaton matches every term starting with prefix.
func PrefixAutomaton(prefix string) (vellum.Automaton, error) {
	a, err := vregexp.New("(?s)" + regexp.QuoteMeta(prefix) + ".*")
	if err != nil {
		return nil, fmt.Errorf("failed to compile prefix [%s]: %w", prefix, err)
	}
	return a, nil
}

// FuzzyAutomaton matches terms within edits of term. The first
// prefixLength runes must match exactly.
func FuzzyAutomaton(term string, edits, prefixLength int, transpositions bool) (vellum.Automaton, error) {
	if edits < 0 || edits > maxLevenshteinDistance {
		return nil, fmt.Errorf("edit distance must be between 0 and %d, got %d", maxLevenshteinDistance, edits)
	}

	prefix, rest := splitRunes(term, prefixLength)

	var inner vellum.Automaton
	if edits == 0 {
		a, err := vregexp.New("(?s)" + regexp.QuoteMeta(rest))
		if err != nil {
			return nil, fmt.Errorf("failed to compile fuzzy [%s]: %w", term, err)
		}
		inner = a
	} else {
		builder, err := levenshteinBuilder(uint8(edits), transpositions)
		if err != nil {
			return nil, err
		}
		dfa, err := builder.BuildDfa(rest, uint8(edits))
		if err != nil {
			return nil, fmt.Errorf("failed to compile fuzzy [%s]: %w", term, err)
		}
		inner = dfa
	}

	if prefix == "" {
		return inner, nil
	}
	return &prefixedAutomaton{prefix: []byte(prefix), inner: inner}, nil
}

// Accepts reports whether a matches term in full.
func Accepts(a vellum.Automaton, term string) bool {
	state := a.Start()
	for i := 0; i < len(term); i++ {
		if !a.CanMatch(state) {
			return false
		}
		state = a.Accept(state, term[i])
	}
	return a.CanMatch(state) && a.IsMatch(state)
}

const maxLevenshteinDistance = 2

type builderKey struct {
	distance       uint8
	transpositions bool
}

var (
	builderMu sync.Mutex
	builders  = make(map[builderKey]*levenshtein.LevenshteinAutomatonBuilder)
)

// levenshteinBuilder returns a cached builder; building the parametric DFA
// is the expensive step and depends only on the key.
func levenshteinBuilder(distance uint8, transpositions bool) (*levenshtein.LevenshteinAutomatonBuilder, error) {
	key := builderKey{distance: distance, transpositions: transpositions}

	builderMu.Lock()
	defer builderMu.Unlock()

	if b, ok := builders[key]; ok {
		return b, nil
	}
	b, err := levenshtein.NewLevenshteinAutomatonBuilder(distance, transpositions)
	if err != nil {
		return nil, fmt.Errorf("failed to build levenshtein automaton (distance %d): %w", distance, err)
	}
	builders[key] = b
	return b, nil
}

func splitRunes(s string, n int) (string, string) {
	if n <= 0 {
		return "", s
	}
	i := 0
	for count := 0; count < n && i < len(s); count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}

// prefixedAutomaton matches prefix exactly, then hands over to inner.
// States 1..len(prefix) walk the prefix; inner state s maps to
// len(prefix)+1+s. State 0 is dead, like the inner automata.
type prefixedAutomaton struct {
	prefix []byte
	inner  vellum.Automaton
}

func (p *prefixedAutomaton) offset() int {
	return len(p.prefix) + 1
}

func (p *prefixedAutomaton) Start() int {
	return 1
}

func (p *prefixedAutomaton) IsMatch(s int) bool {
	if s <= p.offset() {
		return false
	}
	return p.inner.IsMatch(s - p.offset())
}

func (p *prefixedAutomaton) CanMatch(s int) bool {
	if s <= 0 {
		return false
	}
	if s <= len(p.prefix) {
		return true
	}
	return p.inner.CanMatch(s - p.offset())
}

func (p *prefixedAutomaton) WillAlwaysMatch(s int) bool {
	if s <= p.offset() {
		return false
	}
	return p.inner.WillAlwaysMatch(s - p.offset())
}

func (p *prefixedAutomaton) Accept(s int, b byte) int {
	if s <= 0 {
		return 0
	}
	if s <= len(p.prefix) {
		if p.prefix[s-1] != b {
			return 0
		}
		if s == len(p.prefix) {
			return p.enter(p.inner.Start())
		}
		return s + 1
	}
	next := p.inner.Accept(s-p.offset(), b)
	return p.enter(next)
}

// enter maps an inner state into this automaton's state space.
func (p *prefixedAutomaton) enter(inner int) int {
	if inner <= 0 {
		return 0
	}
	return inner + p.offset()
}
