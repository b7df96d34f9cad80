// Package types provides domain models shared across intervalq components.
//
// rules.go holds the rule tree produced by the parser and rules_json.go its
// JSON rendering, errors.go the error taxonomy, ids.go the UUIDv7
// identifiers. Nothing here depends on the analysis or transport stacks so
// the model can be shared by the CLI, the gRPC service and tests without
// pulling either in.
package types

// Limits and defaults applied by the parser and compiler.
const (
	// MaxRuleDepth bounds rule nesting (any_of/all_of/filter references).
	// Parsing recurses per level; 64 levels is far beyond any hand-written rule.
	MaxRuleDepth = 64

	// MaxExpansions caps the number of index terms a prefix, wildcard or
	// fuzzy automaton may expand to.
	MaxExpansions = 128

	// MaxEditDistance is the largest edit distance a fuzzy rule may use.
	MaxEditDistance = 2

	// DefaultAutoFuzzyLow and DefaultAutoFuzzyHigh are the AUTO thresholds:
	// terms shorter than Low runes allow no edits, shorter than High one edit.
	DefaultAutoFuzzyLow  = 3
	DefaultAutoFuzzyHigh = 6

	// DefaultPrefixMinChars and DefaultPrefixMaxChars bound the prefix
	// lengths stored in an index_prefixes sub-field.
	DefaultPrefixMinChars = 2
	DefaultPrefixMaxChars = 5

	// PrefixFieldSuffix names the prefix sub-field of a text field.
	PrefixFieldSuffix = "._index_prefix"

	// DefaultScriptLang is the only script language accepted in filters.
	DefaultScriptLang = "starlark"

	// DefaultBoost is the boost of a query that does not set one.
	DefaultBoost = 1.0
)
