// Package script compiles script filters into interval predicates.
//
// Scripts are Starlark expressions evaluated once per candidate interval
// with two bindings: interval (start, end, gaps) and params (the filter's
// parameter dict). The expression must produce a bool; anything else, or a
// runtime error, rejects the interval.
package script

import (
	"fmt"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/solatis/intervalq/internal/intervals"
	"github.com/solatis/intervalq/internal/types"
)

/*
 * Script filter adapter.
 *
 * Compile validates the language, converts params and resolves the
 * expression once, so syntax errors and undefined names fail the whole
 * query at compile time. The expression is wrapped as
 *   lambda interval, params: (<source>)
 * and every Filter instantiates its own lambda on its own thread; Starlark
 * threads are not safe for concurrent use, factories are.
 *
 * Each Accept call gets a fresh step budget (max_steps) so one runaway
 * interval cannot starve the rest of the document.
 */

var fileOptions = &syntax.FileOptions{}

// Engine compiles script filters.
type Engine struct {
	maxSteps uint64
	logger   *zap.Logger
}

// NewEngine creates an engine. maxSteps of 0 disables the step budget.
func NewEngine(maxSteps uint64, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{maxSteps: maxSteps, logger: logger}
}

// Compile binds a script to a FilterFactory.
func (e *Engine) Compile(s types.Script) (intervals.FilterFactory, error) {
	lang := s.Lang
	if lang == "" {
		lang = types.DefaultScriptLang
	}
	if lang != types.DefaultScriptLang {
		return nil, &types.ScriptError{Source: s.Source, Err: fmt.Errorf("unsupported lang [%s]", lang)}
	}

	if _, err := paramsDict(s.Params); err != nil {
		return nil, &types.ScriptError{Source: s.Source, Err: fmt.Errorf("invalid params: %w", err)}
	}

	wrapped := wrapSource(s.Source)
	if _, err := starlark.ExprFuncOptions(fileOptions, "script", wrapped, nil); err != nil {
		return nil, &types.ScriptError{Source: s.Source, Err: err}
	}

	return &Factory{
		source:   s.Source,
		wrapped:  wrapped,
		params:   s.Params,
		maxSteps: e.maxSteps,
		logger:   e.logger,
	}, nil
}

// wrapSource turns an expression into a two-argument lambda. The newline
// keeps a trailing comment from swallowing the closing parenthesis.
func wrapSource(source string) string {
	return "lambda interval, params: (" + source + "\n)"
}

// Factory produces per-goroutine filters for one compiled script.
type Factory struct {
	source   string
	wrapped  string
	params   map[string]any
	maxSteps uint64
	logger   *zap.Logger
}

// Source returns the script source.
func (f *Factory) Source() string {
	return f.source
}

// NewFilter instantiates the script on a new Starlark thread.
func (f *Factory) NewFilter() intervals.IntervalFilter {
	filter := &Filter{
		source:   f.source,
		maxSteps: f.maxSteps,
		logger:   f.logger,
		thread: &starlark.Thread{
			Name:  "interval-filter",
			Print: func(_ *starlark.Thread, _ string) {},
		},
	}

	params, err := paramsDict(f.params)
	if err != nil {
		filter.reportOnce(err)
		return filter
	}
	params.Freeze()
	filter.params = params

	fn, err := starlark.ExprFuncOptions(fileOptions, "script", f.wrapped, nil)
	if err != nil {
		filter.reportOnce(err)
		return filter
	}
	pred, err := starlark.Call(filter.thread, fn, nil, nil)
	if err != nil {
		filter.reportOnce(err)
		return filter
	}
	filter.pred = pred
	return filter
}

// Filter evaluates one script instance. Not safe for concurrent use.
type Filter struct {
	source   string
	thread   *starlark.Thread
	pred     starlark.Value
	params   *starlark.Dict
	maxSteps uint64
	logger   *zap.Logger
	report   sync.Once
}

// Accept runs the script against iv.
func (f *Filter) Accept(iv intervals.Interval) bool {
	if f.pred == nil {
		return false
	}

	f.thread.Uncancel()
	if f.maxSteps > 0 {
		f.thread.SetMaxExecutionSteps(f.thread.ExecutionSteps() + f.maxSteps)
	}

	v, err := starlark.Call(f.thread, f.pred, starlark.Tuple{intervalValue(iv), f.params}, nil)
	if err != nil {
		f.reportOnce(err)
		return false
	}
	b, ok := v.(starlark.Bool)
	if !ok {
		f.reportOnce(fmt.Errorf("script returned %s, want bool", v.Type()))
		return false
	}
	return bool(b)
}

// reportOnce logs the first runtime failure of this filter instance.
func (f *Filter) reportOnce(err error) {
	f.report.Do(func() {
		f.logger.Warn("script filter rejected interval",
			zap.String("script", f.source),
			zap.Error(err),
		)
	})
}
