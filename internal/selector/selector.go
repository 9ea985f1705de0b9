package selector

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/statebox/internal/ir"
)

// Lang names a selector language.
type Lang string

const (
	LangExpr Lang = "expr"
	LangCEL  Lang = "cel"
	LangJS   Lang = "js"
)

// DefaultLang is used when a selector does not name its language.
const DefaultLang = LangExpr

// ErrUnknownLang is returned for an unsupported language name.
var ErrUnknownLang = errors.New("selector: unknown language")

// ParseLang resolves a language name; "" selects DefaultLang.
func ParseLang(name string) (Lang, error) {
	switch Lang(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultLang, nil
	case LangExpr:
		return LangExpr, nil
	case LangCEL:
		return LangCEL, nil
	case LangJS, "javascript":
		return LangJS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLang, name)
	}
}

// Program is a compiled selector.
type Program interface {
	// Eval derives a value from state.
	Eval(state ir.State) (any, error)

	// Source returns the selector text.
	Source() string

	// Lang returns the selector language.
	Lang() Lang
}

// Evaluator compiles selectors of one language.
type Evaluator interface {
	Lang() Lang
	Compile(source string) (Program, error)
}

// EvaluationError carries the language and source alongside the cause.
type EvaluationError struct {
	Lang  Lang
	Expr  string
	Phase string // "compile" or "eval"
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("selector: %s %s failed for %q: %v", e.Lang, e.Phase, e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

func compileError(lang Lang, source string, err error) error {
	return &EvaluationError{Lang: lang, Expr: source, Phase: "compile", Err: err}
}

func evalError(lang Lang, source string, err error) error {
	return &EvaluationError{Lang: lang, Expr: source, Phase: "eval", Err: err}
}

// ProgramCache stores compiled programs by key.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, program any)
}

// MapCache is a ProgramCache backed by a map.
//
// Thread-safety: safe for concurrent use.
type MapCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMapCache creates an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{programs: make(map[string]any)}
}

func (c *MapCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.programs[key]
	return p, ok
}

func (c *MapCache) Set(key string, program any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = program
}

// Len returns the number of cached programs.
func (c *MapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

// Set holds one Evaluator per language.
type Set struct {
	evaluators map[Lang]Evaluator
	cache      ProgramCache
	logger     *slog.Logger
}

// Option configures a Set.
type Option func(*Set)

// WithCache shares cache between the Set's evaluators.
func WithCache(cache ProgramCache) Option {
	return func(s *Set) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithLogger sets the logger used by Func for evaluation failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSet creates a Set with the expr, cel and js evaluators.
func NewSet(opts ...Option) *Set {
	s := &Set{
		cache:  NewMapCache(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.evaluators = map[Lang]Evaluator{
		LangExpr: NewExprEvaluator(s.cache),
		LangCEL:  NewCELEvaluator(s.cache),
		LangJS:   NewJSEvaluator(s.cache),
	}
	return s
}

// Compile compiles source in the named language ("" selects DefaultLang).
func (s *Set) Compile(lang, source string) (Program, error) {
	l, err := ParseLang(lang)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(source) == "" {
		return nil, compileError(l, source, errors.New("expression must not be empty"))
	}
	return s.evaluators[l].Compile(source)
}

// Func adapts p to a plain selector function. Evaluation errors are logged
// and yield nil.
func (s *Set) Func(p Program) func(ir.State) any {
	return func(state ir.State) any {
		v, err := p.Eval(state)
		if err != nil {
			s.logger.Warn("selector evaluation failed",
				"lang", p.Lang(),
				"expr", p.Source(),
				"error", err,
			)
			return nil
		}
		return v
	}
}

// environment flattens the enumerable state into a variable map.
func environment(state ir.State) map[string]any {
	keys := state.Keys()
	m := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := state.Get(k); ok {
			m[k] = v
		}
	}
	return m
}

func cacheKey(lang Lang, parts ...string) string {
	return string(lang) + "\x00" + strings.Join(parts, "\x00")
}
