package rules

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/intervalq/internal/intervals"
	"github.com/solatis/intervalq/internal/mapping"
	"github.com/solatis/intervalq/internal/types"
)

// Engine parses and compiles interval rules. It holds no per-query state
// and is safe for concurrent use.
type Engine struct {
	scripts ScriptCompiler
	logger  *zap.Logger
}

// NewEngine creates a rules engine. A nil scripts rejects script filters
// with types.ErrScriptsDisabled.
func NewEngine(scripts ScriptCompiler, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{scripts: scripts, logger: logger}
}

// CompiledQuery is a compiled query envelope.
type CompiledQuery struct {
	Field     string
	Source    intervals.Source
	Cacheable bool
	Boost     float64
	Name      string
}

// Compile parses a rule object and compiles it against field.
func (e *Engine) Compile(ctx context.Context, raw []byte, field string, resolver *mapping.Resolver) (intervals.Source, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	rule, err := ParseRule(raw)
	if err != nil {
		return nil, false, err
	}
	return e.CompileRule(rule, field, resolver)
}

// CompileRule compiles an already parsed rule against field.
func (e *Engine) CompileRule(rule *types.Rule, field string, resolver *mapping.Resolver) (intervals.Source, bool, error) {
	start := time.Now()
	src, cacheable, err := compileTop(rule, field, resolver, e.scripts)
	if err != nil {
		e.logger.Debug("interval rule rejected",
			zap.String("field", field),
			zap.Stringer("kind", rule.Kind),
			zap.Error(err),
		)
		return nil, false, err
	}

	e.logger.Debug("interval rule compiled",
		zap.String("field", field),
		zap.Stringer("source", src),
		zap.Bool("cacheable", cacheable),
		zap.Duration("elapsed", time.Since(start)),
	)
	return src, cacheable, nil
}

// CompileQuery parses a query envelope and compiles its rule.
func (e *Engine) CompileQuery(ctx context.Context, raw []byte, resolver *mapping.Resolver) (*CompiledQuery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	src, cacheable, err := e.CompileRule(&q.Rule, q.Field, resolver)
	if err != nil {
		return nil, err
	}
	return &CompiledQuery{
		Field:     q.Field,
		Source:    src,
		Cacheable: cacheable,
		Boost:     q.Boost,
		Name:      q.Name,
	}, nil
}
