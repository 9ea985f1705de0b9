package selector

import (
	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/roach88/statebox/internal/ir"
)

type exprEvaluator struct {
	cache ProgramCache
}

// NewExprEvaluator returns an Evaluator backed by expr-lang/expr. cache may
// be nil.
func NewExprEvaluator(cache ProgramCache) Evaluator {
	return &exprEvaluator{cache: cache}
}

func (e *exprEvaluator) Lang() Lang { return LangExpr }

func (e *exprEvaluator) Compile(source string) (Program, error) {
	key := cacheKey(LangExpr, source)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return &exprProgram{source: source, program: program}, nil
			}
		}
	}

	program, err := exprlang.Compile(source,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, compileError(LangExpr, source, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &exprProgram{source: source, program: program}, nil
}

type exprProgram struct {
	source  string
	program *exprvm.Program
}

func (p *exprProgram) Eval(state ir.State) (any, error) {
	vars := environment(state)
	env := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		env[k] = v
	}
	env["state"] = vars

	out, err := exprlang.Run(p.program, env)
	if err != nil {
		return nil, evalError(LangExpr, p.source, err)
	}
	return out, nil
}

func (p *exprProgram) Source() string { return p.source }
func (p *exprProgram) Lang() Lang     { return LangExpr }
