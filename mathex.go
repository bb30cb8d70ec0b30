// Package mathex is the parser façade: it owns the symbol tables, the
// currently-set expression text, the compiled bytecode (recompiled
// lazily whenever a definition or the expression text changes), and a
// VM to run it. This is the type most callers construct directly;
// cmd/mathex, mathexls, and presets all build on top of it rather than
// reaching into compiler/token/symtab themselves.
package mathex

import (
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/compiler"
	"github.com/chazu/mathex/errs"
	"github.com/chazu/mathex/identlit"
	"github.com/chazu/mathex/internal/disasm"
	"github.com/chazu/mathex/symtab"
	"github.com/chazu/mathex/token"
	"github.com/chazu/mathex/vm"
)

// MaxIdentifierLength and MaxExpressionLength are the size limits
// enforced by symtab and token respectively, re-exported here since
// the façade is where most callers first look for them.
const (
	MaxIdentifierLength = symtab.MaxIdentifierLength
	MaxExpressionLength = token.MaxExpressionLength
)

// VarFactory is called for an otherwise-unknown identifier during
// compilation; returning true materializes it as a new variable
// instead of failing with an unassignable-token error.
type VarFactory = token.VarFactory

var builtinOperatorNames = []string{
	"+", "-", "*", "/", "^",
	"<", ">", "<=", ">=", "==", "!=",
	"&&", "||",
}

// Parser is not safe for concurrent use: compilation is single
// threaded and not re-entrant on one instance (spec.md §5).
type Parser struct {
	tables *symtab.Tables
	idents *identlit.Chain
	vm     *vm.VM

	expr       string
	prog       *bytecode.Program
	compileErr error
	compiled   bool

	optimize        bool
	builtinsEnabled bool
	nameChars       string
	opChars         string
	infixChars      string
	argSep          rune
	decimalSep      rune
	maxThreads      int
	varFactory      VarFactory
}

// New returns a Parser with the optimizer and built-in operators
// enabled, a "." decimal separator, and a "," argument separator.
func New() *Parser {
	p := &Parser{
		tables:          symtab.New(),
		vm:              vm.New(),
		optimize:        true,
		builtinsEnabled: true,
		argSep:          ',',
		decimalSep:      '.',
	}
	p.idents = identlit.Standard(p.decimalSep)
	markBuiltins(p.tables)
	return p
}

func markBuiltins(t *symtab.Tables) {
	for _, name := range builtinOperatorNames {
		t.MarkBuiltinBinary(name)
	}
}

func (p *Parser) invalidate() {
	p.compiled = false
	p.prog = nil
	p.compileErr = nil
}

// --- expression text ---

// SetExpression installs expr as the current expression and compiles
// it immediately, so a caller learns about a syntax error at the
// point it set the text rather than at the next Eval. Per spec.md
// §8's round-trip invariant, GetExpression returns expr verbatim even
// if compilation failed.
func (p *Parser) SetExpression(expr string) error {
	p.expr = expr
	p.invalidate()
	_, err := p.compile()
	return err
}

// GetExpression returns the text most recently passed to
// SetExpression.
func (p *Parser) GetExpression() string { return p.expr }

func (p *Parser) compile() (*bytecode.Program, error) {
	if p.compiled {
		return p.prog, p.compileErr
	}
	opts := compiler.Options{
		Optimize:        p.optimize,
		BuiltinsEnabled: p.builtinsEnabled,
		NameChars:       p.nameChars,
		OpChars:         p.opChars,
		InfixChars:      p.infixChars,
		ArgSep:          p.argSep,
		VarFactory:      p.varFactory,
	}
	prog, err := compiler.Compile(p.expr, p.tables, p.idents, opts)
	p.prog, p.compileErr, p.compiled = prog, err, true
	return prog, err
}

// GetNumResults reports how many top-level comma-separated results
// the current expression produces (spec.md §8's "b=a+1, b*b" scenario).
func (p *Parser) GetNumResults() (int, error) {
	prog, err := p.compile()
	if err != nil {
		return 0, err
	}
	return prog.NumResults, nil
}

// --- definitions ---

func (p *Parser) DefineVar(name string) (bytecode.VarHandle, error) {
	h, err := p.tables.DefineVar(name)
	if err == nil {
		p.invalidate()
	}
	return h, err
}

func (p *Parser) UndefineVar(name string) {
	p.tables.UndefineVar(name)
	p.invalidate()
}

func (p *Parser) DefineConst(name string, value float64) error {
	err := p.tables.DefineConst(name, value)
	if err == nil {
		p.invalidate()
	}
	return err
}

func (p *Parser) DefineString(name, value string) error {
	err := p.tables.DefineString(name, value)
	if err == nil {
		p.invalidate()
	}
	return err
}

func (p *Parser) DefineFunc(name string, fn *bytecode.FuncBinding) error {
	err := p.tables.DefineFunc(name, fn)
	if err == nil {
		p.invalidate()
	}
	return err
}

func (p *Parser) DefineInfix(name string, fn *bytecode.FuncBinding) error {
	err := p.tables.DefineInfix(name, fn)
	if err == nil {
		p.invalidate()
	}
	return err
}

func (p *Parser) DefinePostfix(name string, fn *bytecode.FuncBinding) error {
	err := p.tables.DefinePostfix(name, fn)
	if err == nil {
		p.invalidate()
	}
	return err
}

func (p *Parser) DefineBinary(name string, fn *bytecode.FuncBinding) error {
	err := p.tables.DefineBinary(name, fn)
	if err == nil {
		p.invalidate()
	}
	return err
}

// --- queries ---

// DefinedVariables returns every currently-defined variable name,
// whether or not the current expression references it.
func (p *Parser) DefinedVariables() []string { return p.tables.UsedVariables() }

// DefinedConstants returns every currently-defined constant name.
func (p *Parser) DefinedConstants() []string {
	names := make([]string, 0, len(p.tables.Constants))
	for name := range p.tables.Constants {
		names = append(names, name)
	}
	return names
}

// DefinedFunctions returns every currently-defined function name
// (ordinary, bulk, and string-prefixed alike).
func (p *Parser) DefinedFunctions() []string {
	names := make([]string, 0, len(p.tables.Functions))
	for name := range p.tables.Functions {
		names = append(names, name)
	}
	return names
}

// LookupVariable reports whether name is a currently-defined
// variable and its stable handle, for tooling (mathexls's hover) that
// needs to describe a binding without triggering a compile.
func (p *Parser) LookupVariable(name string) (bytecode.VarHandle, bool) {
	v, ok := p.tables.Variables[name]
	return v.Handle, ok
}

// LookupConstant reports whether name is a currently-defined numeric
// constant and its value.
func (p *Parser) LookupConstant(name string) (float64, bool) {
	v, ok := p.tables.Constants[name]
	return v, ok
}

// LookupString reports whether name is a currently-defined string
// constant and its value.
func (p *Parser) LookupString(name string) (string, bool) {
	v, ok := p.tables.Strings[name]
	return v, ok
}

// LookupFunction reports whether name is bound in any of the
// function/infix/postfix/binary tables and returns its binding.
func (p *Parser) LookupFunction(name string) (*bytecode.FuncBinding, bool) {
	if fn, ok := p.tables.Functions[name]; ok {
		return fn, true
	}
	if fn, ok := p.tables.Infix[name]; ok {
		return fn, true
	}
	if fn, ok := p.tables.Postfix[name]; ok {
		return fn, true
	}
	if fn, ok := p.tables.Binary[name]; ok {
		return fn, true
	}
	return nil, false
}

// UsedVariables compiles the current expression against a scratch
// copy of the symbol tables with unassignable identifiers suppressed
// into throwaway variables, and returns the distinct names touched.
// Unlike DefinedVariables, this never mutates the parser's own
// tables — it answers "what does this expression reference", not
// "what variables exist" (spec.md §4.1).
func (p *Parser) UsedVariables() ([]string, error) {
	scratch := cloneForQuery(p.tables)
	opts := compiler.Options{
		Optimize:             false,
		BuiltinsEnabled:      p.builtinsEnabled,
		NameChars:            p.nameChars,
		OpChars:              p.opChars,
		InfixChars:           p.infixChars,
		ArgSep:               p.argSep,
		SuppressUnassignable: true,
	}
	if _, err := compiler.Compile(p.expr, scratch, p.idents, opts); err != nil {
		return nil, err
	}
	return scratch.UsedVariables(), nil
}

// cloneForQuery copies every table except Variables, so that
// compiling against the clone resolves existing constants, strings,
// and functions correctly while leaving every bare identifier free to
// be picked up as a newly-touched variable.
func cloneForQuery(t *symtab.Tables) *symtab.Tables {
	clone := symtab.New()
	for name, v := range t.Constants {
		clone.Constants[name] = v
	}
	for name, v := range t.Strings {
		clone.Strings[name] = v
	}
	for name, fn := range t.Functions {
		clone.Functions[name] = fn
	}
	for name, fn := range t.Infix {
		clone.Infix[name] = fn
	}
	for name, fn := range t.Postfix {
		clone.Postfix[name] = fn
	}
	for name, fn := range t.Binary {
		clone.Binary[name] = fn
	}
	return clone
}

// VarSlotCount returns one more than the highest variable handle
// currently assigned, for callers sizing their own vars slice ahead
// of Eval/EvalAll/EvalBulk.
func (p *Parser) VarSlotCount() int {
	max := -1
	for _, v := range p.tables.Variables {
		if int(v.Handle) > max {
			max = int(v.Handle)
		}
	}
	return max + 1
}

// --- evaluation ---

// Eval compiles the current expression if needed and runs it once,
// returning the final (rightmost, for a comma-separated expression)
// result.
func (p *Parser) Eval(vars []float64) (float64, error) {
	prog, err := p.compile()
	if err != nil {
		return 0, err
	}
	return p.vm.Eval(prog, vars)
}

// EvalAll is like Eval but returns every top-level comma-separated
// result in source order.
func (p *Parser) EvalAll(vars []float64) ([]float64, error) {
	prog, err := p.compile()
	if err != nil {
		return nil, err
	}
	return p.vm.EvalAll(prog, vars)
}

// EvalBulk evaluates the current expression once per column of vars,
// fanning out across SetMaxThreads workers (spec.md §5).
func (p *Parser) EvalBulk(vars [][]float64, n int, out []float64) error {
	prog, err := p.compile()
	if err != nil {
		return err
	}
	return p.vm.EvalBulk(prog, vars, n, out, p.maxThreads)
}

// Disassemble compiles the current expression if needed and returns
// its text listing (internal/disasm).
func (p *Parser) Disassemble() (string, error) {
	prog, err := p.compile()
	if err != nil {
		return "", err
	}
	return disasm.Text(prog), nil
}

// CompiledProgram compiles the current expression if needed and
// returns the underlying bytecode, for tooling (cmd/mathex's "dump
// --format=cbor") that needs more than the text listing Disassemble
// gives.
func (p *Parser) CompiledProgram() (*bytecode.Program, error) {
	return p.compile()
}

// --- configuration ---

func (p *Parser) EnableOptimizer(enabled bool) {
	p.optimize = enabled
	p.invalidate()
}

func (p *Parser) EnableBuiltins(enabled bool) {
	p.builtinsEnabled = enabled
	if enabled {
		markBuiltins(p.tables)
	} else {
		p.tables.DisableBuiltins()
	}
	p.invalidate()
}

// SetMaxThreads bounds how many goroutines EvalBulk fans out across;
// <= 0 means "let the VM pick runtime.GOMAXPROCS(0)" (vm.EvalBulk's
// own default).
func (p *Parser) SetMaxThreads(n int) { p.maxThreads = n }

func (p *Parser) SetVarFactory(f VarFactory) {
	p.varFactory = f
	p.invalidate()
}

func (p *Parser) SetNameChars(chars string) {
	p.nameChars = chars
	p.invalidate()
}

func (p *Parser) SetOpChars(chars string) {
	p.opChars = chars
	p.invalidate()
}

func (p *Parser) SetInfixChars(chars string) {
	p.infixChars = chars
	p.invalidate()
}

func (p *Parser) SetArgSep(sep rune) {
	p.argSep = sep
	p.invalidate()
}

// SetDecimalSeparator and SetArgumentSeparator reject a separator
// that would collide with the other one, per spec.md §6's locale
// knobs contract; on success they also refresh the value-identifier
// chain, since DecimalLiteral closes over the separator it was built
// with.
func (p *Parser) SetDecimalSeparator(sep rune) error {
	if sep == p.argSep {
		return localeConflict(sep)
	}
	p.decimalSep = sep
	p.idents = identlit.Standard(sep)
	p.invalidate()
	return nil
}

func (p *Parser) SetArgumentSeparator(sep rune) error {
	if sep == p.decimalSep {
		return localeConflict(sep)
	}
	p.argSep = sep
	p.invalidate()
	return nil
}

// SetLocale sets both separators atomically, so swapping them (e.g.
// reloading a config where decimal and argument separator trade
// places) never trips the one-at-a-time conflict check that
// SetDecimalSeparator/SetArgumentSeparator apply.
func (p *Parser) SetLocale(decimalSep, argSep rune) error {
	if decimalSep == argSep {
		return localeConflict(decimalSep)
	}
	p.decimalSep = decimalSep
	p.argSep = argSep
	p.idents = identlit.Standard(decimalSep)
	p.invalidate()
	return nil
}

func localeConflict(sep rune) error {
	return errs.New(errs.Locale, 0, string(sep), "")
}

// SetIdentifierChain replaces the value-identifier chain compilation
// consults for numeric literals. presets.RegisterIntegerVariant uses
// this to swap in integer-only literal forms; most callers never need
// it, since New already wires up identlit.Standard.
func (p *Parser) SetIdentifierChain(chain *identlit.Chain) {
	p.idents = chain
	p.invalidate()
}
