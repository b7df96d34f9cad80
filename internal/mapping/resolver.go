package mapping

import (
	"fmt"

	"github.com/solatis/intervalq/internal/types"
)

// FieldContext is the resolved view of the field a rule runs against.
// Field is the logical field matches are credited to, SearchField the
// field whose postings are scanned.
type FieldContext struct {
	Field        string
	SearchField  string
	Type         FieldType
	Analyzer     *Analyzer
	HasPositions bool
	PrefixField  string // empty when the search field has no prefix sub-field
	Prefixes     PrefixOptions
}

// Masked reports whether the context scans a different field than it
// reports.
func (fc *FieldContext) Masked() bool {
	return fc.SearchField != fc.Field
}

// Resolver answers field metadata lookups for one compile.
type Resolver struct {
	mapping   *Mapping
	analyzers *Analyzers
}

// NewResolver binds a mapping and its analyzer registry.
func NewResolver(m *Mapping) (*Resolver, error) {
	analyzers, err := m.Analyzers()
	if err != nil {
		return nil, err
	}
	return &Resolver{mapping: m, analyzers: analyzers}, nil
}

// Analyzer returns a named analyzer from the mapping's registry.
func (r *Resolver) Analyzer(name string) (*Analyzer, error) {
	return r.analyzers.Get(name)
}

// Resolve returns the context for field, masked by useField when set.
//
// An unknown field (or use field) yields a *types.FieldError wrapping
// types.ErrNoSuchField. A use field must share the field's query analyzer.
// Type and position checks are left to the caller, which decides whether
// they are fatal.
func (r *Resolver) Resolve(field, useField string) (*FieldContext, error) {
	target := field
	if useField != "" {
		target = useField
	}

	info, ok := r.mapping.Field(target)
	if !ok {
		return nil, &types.FieldError{
			Field: target,
			Msg:   fmt.Sprintf("No field found for [%s] in mapping", target),
			Err:   types.ErrNoSuchField,
		}
	}

	if useField != "" && useField != field {
		if base, ok := r.mapping.Field(field); ok && base.Type == TypeText && info.Type == TypeText {
			if base.QueryAnalyzer() != info.QueryAnalyzer() {
				return nil, &types.FieldError{
					Field: useField,
					Type:  string(info.Type),
					Msg: fmt.Sprintf("Cannot use field [%s] to mask [%s]: analyzer [%s] differs from [%s]",
						useField, field, info.QueryAnalyzer(), base.QueryAnalyzer()),
					Err: types.ErrFieldCapability,
				}
			}
		}
	}

	fc := &FieldContext{
		Field:        field,
		SearchField:  target,
		Type:         info.Type,
		HasPositions: info.Positions,
	}

	if info.Type == TypeText {
		an, err := r.analyzers.Get(info.QueryAnalyzer())
		if err != nil {
			return nil, fmt.Errorf("field [%s]: %w", target, err)
		}
		fc.Analyzer = an
	}

	if info.Prefixes != nil {
		fc.PrefixField = target + types.PrefixFieldSuffix
		fc.Prefixes = *info.Prefixes
	}

	return fc, nil
}
