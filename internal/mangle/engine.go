// Package mangle keeps the per-job delivery journal in a Mangle deductive
// database so delivery status is derived by rules instead of ad-hoc flags.
package mangle

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"gasnotifier/internal/config"
)

//go:embed delivery.mg
var deliverySchema []byte

// Journal predicates asserted by the sequencer.
const (
	PredRequested     = "requested"
	PredTransitioned  = "transitioned"
	PredCommitted     = "committed"
	PredFailed        = "failed"
	PredStopRequested = "stop_requested"
)

// Derived predicates.
const (
	PredDelivered         = "delivered"
	PredGreetingDelivered = "greeting_delivered"
	PredAborted           = "aborted"
	PredCutShort          = "cut_short"
)

// Fact is one journal entry.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// Engine wraps the Mangle store with a bounded buffer of asserted facts.
type Engine struct {
	cfg config.MangleConfig
	mu  sync.RWMutex

	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	facts []Fact
	index map[string][]int
}

// NewEngine loads the embedded delivery rules, or cfg.SchemaPath when set.
func NewEngine(cfg config.MangleConfig) (*Engine, error) {
	e := &Engine{
		cfg:   cfg,
		facts: make([]Fact, 0, cfg.FactBufferLimit),
		index: make(map[string][]int),
		store: factstore.NewSimpleInMemoryStore(),
	}

	if cfg.SchemaPath != "" {
		if err := e.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err := e.loadSource(deliverySchema); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	return e, nil
}

// LoadSchema parses and analyzes a Mangle schema file.
func (e *Engine) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	return e.loadSource(data)
}

func (e *Engine) loadSource(data []byte) error {
	sourceUnit, err := parse.Unit(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.programInfo = programInfo
	return nil
}

// AddFacts records facts in the buffer and the store, then re-evaluates the rules.
func (e *Engine) AddFacts(ctx context.Context, facts []Fact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	baseIdx := len(e.facts)
	e.facts = append(e.facts, facts...)
	if e.cfg.FactBufferLimit > 0 && len(e.facts) > e.cfg.FactBufferLimit {
		e.facts = e.facts[len(e.facts)-e.cfg.FactBufferLimit:]
		e.rebuildIndex()
	} else {
		for i, f := range facts {
			e.index[f.Predicate] = append(e.index[f.Predicate], baseIdx+i)
		}
	}

	for _, f := range facts {
		e.store.Add(factToAtom(f))
	}

	if e.programInfo != nil {
		if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}
	return nil
}

// Evaluate runs the program and returns every fact of predicate, asserted or derived.
func (e *Engine) Evaluate(ctx context.Context, predicate string) ([]Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.programInfo == nil {
		return nil, fmt.Errorf("engine not ready")
	}
	if err := engine.EvalProgram(e.programInfo, e.store); err != nil {
		return nil, fmt.Errorf("eval program: %w", err)
	}

	arity := -1
	for sym := range e.programInfo.Decls {
		if sym.Symbol == predicate {
			arity = sym.Arity
			break
		}
	}
	if arity < 0 {
		return nil, fmt.Errorf("unknown predicate %q", predicate)
	}

	args := make([]ast.BaseTerm, arity)
	for i := range args {
		args[i] = ast.Variable{Symbol: fmt.Sprintf("V%d", i)}
	}
	query := ast.Atom{Predicate: ast.PredicateSym{Symbol: predicate, Arity: arity}, Args: args}

	facts := make([]Fact, 0)
	err := e.store.GetFacts(query, func(atom ast.Atom) error {
		facts = append(facts, atomToFact(atom))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get facts: %w", err)
	}
	return facts, nil
}

// Holds reports whether predicate has a fact whose leading arguments equal args.
func (e *Engine) Holds(ctx context.Context, predicate string, args ...interface{}) (bool, error) {
	facts, err := e.Evaluate(ctx, predicate)
	if err != nil {
		return false, err
	}
	for _, f := range facts {
		if argsMatch(f.Args, args) {
			return true, nil
		}
	}
	return false, nil
}

// FactsByPredicate returns buffered (asserted) facts of predicate in insertion order.
func (e *Engine) FactsByPredicate(predicate string) []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()

	indices := e.index[predicate]
	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(e.facts) {
			results = append(results, e.facts[idx])
		}
	}
	return results
}

// Facts returns a copy of the buffered facts.
func (e *Engine) Facts() []Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Fact, len(e.facts))
	copy(out, e.facts)
	return out
}

func argsMatch(have, want []interface{}) bool {
	if len(have) < len(want) {
		return false
	}
	for i := range want {
		if fmt.Sprintf("%v", have[i]) != fmt.Sprintf("%v", want[i]) {
			return false
		}
	}
	return true
}

func factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func atomToFact(atom ast.Atom) Fact {
	args := make([]interface{}, len(atom.Args))
	for i, arg := range atom.Args {
		args[i] = convertConstant(arg)
	}
	return Fact{Predicate: atom.Predicate.Symbol, Args: args, Timestamp: time.Now()}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	case fmt.Stringer:
		return ast.String(val.String())
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	term, ok := c.(ast.Constant)
	if !ok {
		return fmt.Sprintf("%v", c)
	}
	switch term.Type {
	case ast.StringType:
		val, _ := term.StringValue()
		return val
	case ast.NumberType:
		if val, err := term.NumberValue(); err == nil {
			return val
		}
	case ast.Float64Type:
		if val, err := term.Float64Value(); err == nil {
			return val
		}
	}
	return term.String()
}

func (e *Engine) rebuildIndex() {
	e.index = make(map[string][]int)
	for i, f := range e.facts {
		e.index[f.Predicate] = append(e.index[f.Predicate], i)
	}
}
