package types

import "errors"

// Sentinel errors for intervalq operations.
var (
	// ErrParse indicates a structurally invalid rule tree.
	ErrParse = errors.New("malformed interval rule")

	// ErrFieldCapability indicates a field that cannot serve interval queries.
	ErrFieldCapability = errors.New("field cannot serve interval queries")

	// ErrNoSuchField indicates a field absent from the index mapping.
	ErrNoSuchField = errors.New("no such field")

	// ErrUnknownAnalyzer indicates an analyzer name not in the registry.
	ErrUnknownAnalyzer = errors.New("unknown analyzer")

	// ErrUnknownIndex indicates an index with no stored mapping.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrStore indicates the mapping store could not be reached or queried.
	ErrStore = errors.New("mapping store unavailable")

	// ErrScript indicates a script filter that failed to compile.
	ErrScript = errors.New("script filter failed")

	// ErrScriptsDisabled indicates a script filter in a request while scripts are off.
	ErrScriptsDisabled = errors.New("script filters are disabled")
)

// ParseError is a structural error raised while parsing a rule tree.
// Object is the enclosing object type, Key the offending key (may be empty).
type ParseError struct {
	Object string
	Key    string
	Msg    string
}

func (e *ParseError) Error() string {
	return e.Msg
}

// Unwrap lets callers match with errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// FieldError is a field-capability error raised during compilation.
type FieldError struct {
	Field string
	Type  string // declared type, empty when the field is unknown
	Msg   string
	Err   error // ErrFieldCapability or ErrNoSuchField
}

func (e *FieldError) Error() string {
	return e.Msg
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ScriptError wraps a script compilation failure with its source.
type ScriptError struct {
	Source string
	Err    error
}

func (e *ScriptError) Error() string {
	return "failed to compile script [" + e.Source + "]: " + e.Err.Error()
}

// Is reports ErrScript so callers can match without unwrapping the cause.
func (e *ScriptError) Is(target error) bool {
	return target == ErrScript
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
