package selector

import (
	"slices"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"github.com/roach88/statebox/internal/ir"
)

type celEvaluator struct {
	cache ProgramCache
}

// NewCELEvaluator returns an Evaluator backed by cel-go. cache may be nil.
//
// CEL checks identifiers at compile time, so a program is built per distinct
// key set; Compile only validates the source against an environment that
// declares `state`.
func NewCELEvaluator(cache ProgramCache) Evaluator {
	return &celEvaluator{cache: cache}
}

func (e *celEvaluator) Lang() Lang { return LangCEL }

func (e *celEvaluator) Compile(source string) (Program, error) {
	env, err := celgo.NewEnv(celgo.Variable("state", celgo.DynType))
	if err != nil {
		return nil, compileError(LangCEL, source, err)
	}
	if _, issues := env.Parse(source); issues != nil && issues.Err() != nil {
		return nil, compileError(LangCEL, source, issues.Err())
	}
	return &celProgram{evaluator: e, source: source}, nil
}

// program returns a checked program for the given identifiers.
func (e *celEvaluator) program(source string, idents []string) (celgo.Program, error) {
	key := cacheKey(LangCEL, source, strings.Join(idents, ","))
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if prg, ok := cached.(celgo.Program); ok {
				return prg, nil
			}
		}
	}

	opts := []celgo.EnvOption{celgo.Variable("state", celgo.DynType)}
	for _, id := range idents {
		opts = append(opts, celgo.Variable(id, celgo.DynType))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Parse(source)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	checked, issues := env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(checked)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, prg)
	}
	return prg, nil
}

type celProgram struct {
	evaluator *celEvaluator
	source    string
}

func (p *celProgram) Eval(state ir.State) (any, error) {
	vars := environment(state)

	idents := make([]string, 0, len(vars))
	activation := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		if !celIdent(k) {
			continue
		}
		idents = append(idents, k)
		activation[k] = v
	}
	slices.Sort(idents)
	activation["state"] = vars

	prg, err := p.evaluator.program(p.source, idents)
	if err != nil {
		return nil, evalError(LangCEL, p.source, err)
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, evalError(LangCEL, p.source, err)
	}
	return out.Value(), nil
}

func (p *celProgram) Source() string { return p.source }
func (p *celProgram) Lang() Lang     { return LangCEL }

// celReserved are words CEL does not accept as variable names.
var celReserved = map[string]bool{
	"state": true, "true": true, "false": true, "null": true, "in": true,
	"as": true, "break": true, "const": true, "continue": true, "else": true,
	"for": true, "function": true, "if": true, "import": true, "let": true,
	"loop": true, "package": true, "namespace": true, "return": true,
	"var": true, "void": true, "while": true,
}

// celIdent reports whether key can be declared as a top-level CEL variable.
// Other keys are still reachable as state["key"].
func celIdent(key string) bool {
	if key == "" || celReserved[key] {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
