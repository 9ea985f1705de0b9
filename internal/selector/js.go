package selector

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/statebox/internal/ir"
)

type jsEvaluator struct {
	cache ProgramCache
}

// NewJSEvaluator returns an Evaluator backed by goja. cache may be nil.
//
// A goja.Runtime is not safe for concurrent use, so each evaluation runs in
// a fresh runtime; the compiled program is shared.
func NewJSEvaluator(cache ProgramCache) Evaluator {
	return &jsEvaluator{cache: cache}
}

func (e *jsEvaluator) Lang() Lang { return LangJS }

func (e *jsEvaluator) Compile(source string) (Program, error) {
	key := cacheKey(LangJS, source)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*goja.Program); ok {
				return &jsProgram{source: source, program: program}, nil
			}
		}
	}

	program, err := goja.Compile("selector", wrapExpression(source), false)
	if err != nil {
		return nil, compileError(LangJS, source, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &jsProgram{source: source, program: program}, nil
}

func wrapExpression(source string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", source)
}

type jsProgram struct {
	source  string
	program *goja.Program
}

func (p *jsProgram) Eval(state ir.State) (any, error) {
	vars := environment(state)

	vm := goja.New()
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return nil, evalError(LangJS, p.source, err)
		}
	}
	stateObj := vm.ToValue(vars)
	if err := vm.Set("state", stateObj); err != nil {
		return nil, evalError(LangJS, p.source, err)
	}

	value, err := vm.RunProgram(p.program)
	if err != nil {
		return nil, evalError(LangJS, p.source, err)
	}
	if fn, ok := goja.AssertFunction(value); ok {
		value, err = fn(goja.Undefined(), stateObj)
		if err != nil {
			return nil, evalError(LangJS, p.source, err)
		}
	}
	return value.Export(), nil
}

func (p *jsProgram) Source() string { return p.source }
func (p *jsProgram) Lang() Lang     { return LangJS }
