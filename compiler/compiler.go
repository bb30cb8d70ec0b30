// Package compiler implements the shunting-yard driver: it consumes
// the token stream produced by package token and emits a
// bytecode.Program, maintaining the operator stack, the type-checking
// value stack, and the argument counters spec.md §4.2 describes.
package compiler

import (
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
	"github.com/chazu/mathex/identlit"
	"github.com/chazu/mathex/symtab"
	"github.com/chazu/mathex/token"
)

// Precedence table, low to high, per spec.md §4.2. User-defined binary
// operators carry their own explicit precedence (symtab.FuncBinding's
// Precedence field) rather than one of these constants.
const (
	precArgSep = iota
	precAssign
	precIf
	precElse
	precLor
	precLand
	precCmp
	precAddSub
	precMulDiv
	precPow
	precInfixUnary
	precPostfix
)

// Options configures a single compilation. The zero value is usable
// but turns the optimizer and the built-in operators off; empty
// character classes and a zero ArgSep keep the token reader's defaults.
type Options struct {
	Optimize             bool
	BuiltinsEnabled      bool
	NameChars, OpChars   string
	InfixChars           string
	ArgSep               rune
	VarFactory           token.VarFactory
	SuppressUnassignable bool
}

// valType discriminates the compiler's type-checking value stack; the
// only two legal operand types per spec.md §1's Non-goals are number
// and string.
type valType int

const (
	valNum valType = iota
	valStr
)

// valEntry is one value-stack slot: its type, and (for valStr) which
// string-pool index it names. Carrying the index on the stack entry
// itself, rather than in a single compiler-wide "pending string"
// field, is what lets string arguments nest correctly across function
// calls (e.g. `f("a", g("b", 1))`): each string's index travels with
// its own stack slot instead of being clobbered by the next one read.
type valEntry struct {
	typ      valType
	strIndex int
}

// entryKind discriminates the operator stack's union.
type entryKind int

const (
	entryOpen   entryKind = iota // '(' sentinel
	entryFunc                    // function header awaiting '('
	entryIf                      // pending '?'
	entryElse                    // pending ':'
	entryBinary                  // builtin or user binary operator
	entryAssign                  // pending '='
	entryUnary                   // infix (prefix) or postfix operator, arity 1
)

func isReducible(e opEntry) bool {
	switch e.kind {
	case entryBinary, entryUnary, entryAssign:
		return true
	default:
		return false
	}
}

type opEntry struct {
	kind  entryKind
	prec  int
	assoc bytecode.Assoc
	op    bytecode.Opcode      // entryBinary, builtin
	fn    *bytecode.FuncBinding // entryBinary (user op), entryUnary
	varh  bytecode.VarHandle   // entryAssign
	pos   int

	// entryFunc
	isBulk, isStr bool

	// entryIf / entryElse: instruction index of the IF/ELSE just emitted.
	jumpIdx int
}

type argFrame struct {
	kind  entryKind // entryFunc, entryOpen (bare grouping), entryIf, or entryElse
	count int
	empty bool
}

// Compile tokenizes and compiles expr against tables, returning the
// resulting program or the first *errs.Error encountered. Per spec.md
// §2's lifecycle note, callers are expected to recompile whenever the
// symbol tables or the expression text change; Compile itself is
// stateless across calls.
func Compile(expr string, tables *symtab.Tables, idents *identlit.Chain, opts Options) (*bytecode.Program, error) {
	em := bytecode.NewEmitter(opts.Optimize)
	rd := token.New(expr, tables, idents, em.Prog)
	rd.BuiltinsEnabled = opts.BuiltinsEnabled
	rd.VarFactory = opts.VarFactory
	rd.SuppressUnassignable = opts.SuppressUnassignable
	if opts.NameChars != "" {
		rd.NameChars = opts.NameChars
	}
	if opts.OpChars != "" {
		rd.OpChars = opts.OpChars
	}
	if opts.InfixChars != "" {
		rd.InfixChars = opts.InfixChars
	}
	if opts.ArgSep != 0 {
		rd.ArgSep = opts.ArgSep
	}

	if err := rd.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{em: em, rd: rd, tables: tables, numResults: 1}
	if err := c.run(); err != nil {
		return nil, err
	}
	return em.Prog, nil
}

type compiler struct {
	em     *bytecode.Emitter
	rd     *token.Reader
	tables *symtab.Tables

	opStack  []opEntry
	valStack []valEntry
	argStack []argFrame

	// lastVar remembers the variable handle read by the
	// most recently processed token, so pushAssign can recover it: the
	// grammar only allows "IDENT = ..." with the identifier immediately
	// before '=', so the token reader's own Kind tracking (prevKind)
	// already tells the compiler whether this holds.
	lastVar bytecode.VarHandle

	numResults int
}

func (c *compiler) run() error {
	prevKind := token.KindEOF // start-of-expression acts like "expect operand"

	for {
		tok, err := c.rd.Next()
		if err != nil {
			return err
		}
		if tok.Kind == token.KindEOF {
			return c.finish(tok.Pos)
		}
		if err := c.step(tok, prevKind); err != nil {
			return err
		}
		prevKind = tok.Kind
	}
}

func (c *compiler) step(tok token.Token, prevKind token.Kind) error {
	switch tok.Kind {
	case token.KindVal:
		c.em.Append(bytecode.Instruction{Op: bytecode.OpVal, Num: tok.Num, Pos: tok.Pos})
		c.pushValNum()
		return nil

	case token.KindVar:
		c.em.Append(bytecode.Instruction{Op: bytecode.OpVar, Var: tok.Var, Pos: tok.Pos})
		c.lastVar = tok.Var
		c.pushValNum()
		return nil

	case token.KindString:
		c.pushValStr(tok.StrIndex)
		return nil

	case token.KindOpen:
		return c.openParen(tok)

	case token.KindClose:
		return c.closeParen(tok)

	case token.KindArgSep:
		return c.argSep(tok)

	case token.KindIf:
		return c.openIf(tok)

	case token.KindElse:
		return c.closeIf(tok)

	case token.KindAssign:
		return c.pushAssign(tok, prevKind)

	case token.KindCmp:
		return c.pushBuiltinBinary(tok, precCmp, bytecode.AssocLeft)
	case token.KindAdditive:
		return c.pushBuiltinBinary(tok, precAddSub, bytecode.AssocLeft)
	case token.KindMultiplicative:
		return c.pushBuiltinBinary(tok, precMulDiv, bytecode.AssocLeft)
	case token.KindPower:
		return c.pushBuiltinBinary(tok, precPow, bytecode.AssocRight)
	case token.KindLogicalAnd:
		return c.pushLogical(tok, precLand, bytecode.OpLand)
	case token.KindLogicalOr:
		return c.pushLogical(tok, precLor, bytecode.OpLor)

	case token.KindInfixUnary:
		if err := c.reduceForPush(precInfixUnary, bytecode.AssocRight); err != nil {
			return err
		}
		c.opStack = append(c.opStack, opEntry{kind: entryUnary, prec: precInfixUnary, fn: tok.Func, pos: tok.Pos})
		return nil

	case token.KindPostfixUnary:
		return c.applyPostfix(tok)

	case token.KindFunc, token.KindBulkFunc, token.KindStringFunc:
		c.opStack = append(c.opStack, opEntry{
			kind:   entryFunc,
			fn:     tok.Func,
			pos:    tok.Pos,
			isBulk: tok.Kind == token.KindBulkFunc,
			isStr:  tok.Kind == token.KindStringFunc,
		})
		return nil

	case token.KindBinaryUserOp:
		return c.pushUserBinary(tok)

	default:
		return c.errorf(errs.UnassignableToken, tok)
	}
}

// pushValNum/pushValStr push a freshly produced value. Marking the
// enclosing argument frame non-empty here (rather than for every
// token) is what lets "f()" and "a?:b" be told apart from "f(1)" and
// "a?1:b": a frame only becomes non-empty once something actually
// lands on the value stack inside it.
func (c *compiler) pushValNum() {
	c.valStack = append(c.valStack, valEntry{typ: valNum})
	c.markNonEmpty()
}

func (c *compiler) pushValStr(idx int) {
	c.valStack = append(c.valStack, valEntry{typ: valStr, strIndex: idx})
	c.markNonEmpty()
}

func (c *compiler) markNonEmpty() {
	if len(c.argStack) > 0 {
		c.argStack[len(c.argStack)-1].empty = false
	}
}

func (c *compiler) popValEntry(pos int) (valEntry, error) {
	n := len(c.valStack)
	if n == 0 {
		return valEntry{}, c.errorfAt(errs.ValExpected, pos, "")
	}
	e := c.valStack[n-1]
	c.valStack = c.valStack[:n-1]
	return e, nil
}

func (c *compiler) errorf(code errs.Code, tok token.Token) error {
	return errs.New(code, tok.Pos, tok.Text, c.rd.Expr())
}

func (c *compiler) errorfAt(code errs.Code, pos int, tokText string) error {
	return errs.New(code, pos, tokText, c.rd.Expr())
}

// reduceOne pops the top operator-stack entry, which must be
// reducible, and emits the instruction it represents.
func (c *compiler) reduceOne() error {
	n := len(c.opStack)
	e := c.opStack[n-1]
	c.opStack = c.opStack[:n-1]

	switch e.kind {
	case entryBinary:
		b, err := c.popValEntry(e.pos)
		if err != nil {
			return err
		}
		a, err := c.popValEntry(e.pos)
		if err != nil {
			return err
		}
		if a.typ != valNum || b.typ != valNum {
			return c.errorfAt(errs.OprtTypeConflict, e.pos, "")
		}
		if e.fn != nil {
			c.em.EmitFunc(bytecode.OpFunc, e.fn, 2, -1, e.pos)
		} else {
			c.em.EmitBinary(e.op, e.pos)
		}
		c.pushValNum()

	case entryUnary:
		a, err := c.popValEntry(e.pos)
		if err != nil {
			return err
		}
		if a.typ != valNum {
			return c.errorfAt(errs.OprtTypeConflict, e.pos, "")
		}
		c.em.EmitFunc(bytecode.OpFunc, e.fn, 1, -1, e.pos)
		c.pushValNum()

	case entryAssign:
		a, err := c.popValEntry(e.pos)
		if err != nil {
			return err
		}
		if a.typ != valNum {
			return c.errorfAt(errs.OprtTypeConflict, e.pos, "")
		}
		c.em.Append(bytecode.Instruction{Op: bytecode.OpAssign, Var: e.varh, Pos: e.pos})
		c.pushValNum()
	}
	return nil
}

// reduceForPush implements spec.md §4.2's reduction rule: before
// pushing a binary operator of precedence P with associativity A,
// repeatedly reduce the top of the operator stack while its
// precedence P' satisfies either (P' > P) or (P' == P and A is left).
func (c *compiler) reduceForPush(prec int, assoc bytecode.Assoc) error {
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if !isReducible(top) {
			break
		}
		if !(top.prec > prec || (top.prec == prec && assoc == bytecode.AssocLeft)) {
			break
		}
		if err := c.reduceOne(); err != nil {
			return err
		}
	}
	return nil
}

// reduceAll reduces every reducible entry down to the nearest barrier
// (entryOpen/entryFunc/entryIf/entryElse, or the stack bottom).
func (c *compiler) reduceAll() error {
	for len(c.opStack) > 0 && isReducible(c.opStack[len(c.opStack)-1]) {
		if err := c.reduceOne(); err != nil {
			return err
		}
	}
	return nil
}

// closeConditionals finalizes every completed ternary sitting on top
// of the operator stack: once an else-branch has been fully reduced,
// this emits ENDIF, patches the matching ELSE's jump target, and
// leaves the ternary's single result value on the value stack.
func (c *compiler) closeConditionals() error {
	for len(c.opStack) > 0 && c.opStack[len(c.opStack)-1].kind == entryElse {
		e := c.opStack[len(c.opStack)-1]
		c.opStack = c.opStack[:len(c.opStack)-1]

		if len(c.argStack) == 0 || c.argStack[len(c.argStack)-1].kind != entryElse {
			return c.errorfAt(errs.InternalError, e.pos, "")
		}
		frame := c.argStack[len(c.argStack)-1]
		c.argStack = c.argStack[:len(c.argStack)-1]
		if frame.empty {
			return c.errorfAt(errs.ValExpected, e.pos, "")
		}

		v, err := c.popValEntry(e.pos)
		if err != nil {
			return err
		}
		if v.typ != valNum {
			return c.errorfAt(errs.OprtTypeConflict, e.pos, "")
		}

		endifIdx := c.em.Append(bytecode.Instruction{Op: bytecode.OpEndIf, Pos: e.pos})
		c.em.PatchJump(e.jumpIdx, endifIdx)
		c.pushValNum()
	}
	return nil
}

// reduceBoundary is what every reduction boundary (argument
// separator, closing paren, or end of input) calls: it alternates
// reduceAll and closeConditionals until neither makes progress, so a
// value produced by closing one ternary can in turn satisfy an
// operator (or an outer ternary) waiting below it.
func (c *compiler) reduceBoundary() error {
	for {
		if err := c.reduceAll(); err != nil {
			return err
		}
		if len(c.opStack) == 0 || c.opStack[len(c.opStack)-1].kind != entryElse {
			return nil
		}
		if err := c.closeConditionals(); err != nil {
			return err
		}
	}
}

func (c *compiler) pushBuiltinBinary(tok token.Token, prec int, assoc bytecode.Assoc) error {
	if err := c.reduceForPush(prec, assoc); err != nil {
		return err
	}
	c.opStack = append(c.opStack, opEntry{kind: entryBinary, prec: prec, assoc: assoc, op: tok.Op, pos: tok.Pos})
	return nil
}

func (c *compiler) pushLogical(tok token.Token, prec int, op bytecode.Opcode) error {
	if err := c.reduceForPush(prec, bytecode.AssocLeft); err != nil {
		return err
	}
	c.opStack = append(c.opStack, opEntry{kind: entryBinary, prec: prec, assoc: bytecode.AssocLeft, op: op, pos: tok.Pos})
	return nil
}

func (c *compiler) pushUserBinary(tok token.Token) error {
	fn := tok.Func
	if err := c.reduceForPush(fn.Precedence, fn.Assoc); err != nil {
		return err
	}
	c.opStack = append(c.opStack, opEntry{kind: entryBinary, prec: fn.Precedence, assoc: fn.Assoc, fn: fn, pos: tok.Pos})
	return nil
}

func (c *compiler) applyPostfix(tok token.Token) error {
	a, err := c.popValEntry(tok.Pos)
	if err != nil {
		return err
	}
	if a.typ != valNum {
		return c.errorfAt(errs.OprtTypeConflict, tok.Pos, tok.Text)
	}
	c.em.EmitFunc(bytecode.OpFunc, tok.Func, 1, -1, tok.Pos)
	c.pushValNum()
	return nil
}

// pushAssign handles '='. Per spec.md §4.2, assignment is legal only
// when the token immediately to its left was a bare variable
// reference; that token already (optimistically) emitted an OpVar
// read, which this discards since ASSIGN only needs the handle, not
// the variable's current value.
func (c *compiler) pushAssign(tok token.Token, prevKind token.Kind) error {
	if prevKind != token.KindVar {
		return c.errorfAt(errs.InvalidVarPtr, tok.Pos, tok.Text)
	}
	c.em.DropLast(1)
	if _, err := c.popValEntry(tok.Pos); err != nil {
		return err
	}
	if err := c.reduceForPush(precAssign, bytecode.AssocRight); err != nil {
		return err
	}
	c.opStack = append(c.opStack, opEntry{kind: entryAssign, prec: precAssign, varh: c.lastVar, pos: tok.Pos})
	return nil
}

// openParen pushes the '(' sentinel and a fresh argument counter,
// marking whether this paren opens a function call's argument list
// (the operator stack's top is a pending function header) or a bare
// grouping.
func (c *compiler) openParen(tok token.Token) error {
	kind := entryOpen
	if len(c.opStack) > 0 && c.opStack[len(c.opStack)-1].kind == entryFunc {
		kind = entryFunc
	}
	c.opStack = append(c.opStack, opEntry{kind: entryOpen, pos: tok.Pos})
	c.argStack = append(c.argStack, argFrame{kind: kind, count: 1, empty: true})
	return nil
}

// closeParen reduces until the matching '(' and, if a function header
// sits immediately below it, consumes it with the current argument
// count.
func (c *compiler) closeParen(tok token.Token) error {
	if err := c.reduceBoundary(); err != nil {
		return err
	}
	if len(c.opStack) == 0 {
		return c.errorf(errs.MissingParens, tok)
	}
	top := c.opStack[len(c.opStack)-1]
	if top.kind == entryIf {
		return c.errorfAt(errs.MissingElseClause, top.pos, "")
	}
	if top.kind != entryOpen {
		return c.errorf(errs.MissingParens, tok)
	}
	c.opStack = c.opStack[:len(c.opStack)-1]

	if len(c.argStack) == 0 {
		return c.errorf(errs.MissingParens, tok)
	}
	frame := c.argStack[len(c.argStack)-1]
	c.argStack = c.argStack[:len(c.argStack)-1]
	argc := frame.count
	if frame.empty {
		argc = 0
	}

	if len(c.opStack) > 0 && c.opStack[len(c.opStack)-1].kind == entryFunc {
		fe := c.opStack[len(c.opStack)-1]
		c.opStack = c.opStack[:len(c.opStack)-1]
		return c.emitFuncCall(fe, argc)
	}

	// Bare grouping: exactly one value must be inside.
	if frame.empty {
		return c.errorf(errs.ValExpected, tok)
	}
	if argc != 1 {
		return c.errorf(errs.UnexpectedArgSep, tok)
	}
	return nil
}

func (c *compiler) checkArity(fn *bytecode.FuncBinding, argc int, pos int) error {
	if fn.IsVariadic() {
		if argc == 0 {
			return c.errorfAt(errs.TooFewParams, pos, fn.Name)
		}
		return nil
	}
	if argc < fn.Arity {
		return c.errorfAt(errs.TooFewParams, pos, fn.Name)
	}
	if argc > fn.Arity {
		return c.errorfAt(errs.TooManyParams, pos, fn.Name)
	}
	return nil
}

// emitFuncCall consumes the argc value-stack entries belonging to a
// just-closed function call and emits the corresponding FUNC,
// FUNC_BULK, or FUNC_STR instruction.
func (c *compiler) emitFuncCall(fe opEntry, argc int) error {
	fn := fe.fn

	if fe.isStr {
		numArgc := argc - 1
		if numArgc < 0 {
			return c.errorfAt(errs.StringExpected, fe.pos, fn.Name)
		}
		if err := c.checkArity(fn, numArgc, fe.pos); err != nil {
			return err
		}
		for i := 0; i < numArgc; i++ {
			v, err := c.popValEntry(fe.pos)
			if err != nil {
				return err
			}
			if v.typ != valNum {
				return c.errorfAt(errs.OprtTypeConflict, fe.pos, fn.Name)
			}
		}
		s, err := c.popValEntry(fe.pos)
		if err != nil {
			return err
		}
		if s.typ != valStr {
			return c.errorfAt(errs.StringExpected, fe.pos, fn.Name)
		}
		c.em.EmitFunc(bytecode.OpFuncStr, fn, numArgc, s.strIndex, fe.pos)
		c.pushValNum()
		return nil
	}

	if err := c.checkArity(fn, argc, fe.pos); err != nil {
		return err
	}
	for i := 0; i < argc; i++ {
		v, err := c.popValEntry(fe.pos)
		if err != nil {
			return err
		}
		if v.typ != valNum {
			return c.errorfAt(errs.OprtTypeConflict, fe.pos, fn.Name)
		}
	}
	op := bytecode.OpFunc
	if fe.isBulk {
		op = bytecode.OpFuncBulk
	}
	c.em.EmitFunc(op, fn, argc, -1, fe.pos)
	c.pushValNum()
	return nil
}

// argSep handles ','. At the top level (no enclosing '(' or '?') this
// is spec.md §8's "multiple results" separator (`"b=a+1, b*b"`), not
// a function argument separator: it just increments the result count
// and leaves the already-reduced value on the stack. Inside a ternary
// branch a comma is always illegal, since each branch must hold
// exactly one value.
func (c *compiler) argSep(tok token.Token) error {
	if err := c.reduceBoundary(); err != nil {
		return err
	}
	if len(c.argStack) == 0 {
		c.numResults++
		return nil
	}
	top := &c.argStack[len(c.argStack)-1]
	if top.kind == entryIf || top.kind == entryElse {
		return c.errorf(errs.UnexpectedArgSep, tok)
	}
	top.count++
	top.empty = false
	return nil
}

// openIf handles '?': the condition expression to its left must
// already be fully reduced to one numeric value.
func (c *compiler) openIf(tok token.Token) error {
	if err := c.reduceForPush(precIf, bytecode.AssocLeft); err != nil {
		return err
	}
	cond, err := c.popValEntry(tok.Pos)
	if err != nil {
		return err
	}
	if cond.typ != valNum {
		return c.errorfAt(errs.OprtTypeConflict, tok.Pos, tok.Text)
	}
	idx := c.em.Append(bytecode.Instruction{Op: bytecode.OpIf, Pos: tok.Pos})
	c.opStack = append(c.opStack, opEntry{kind: entryIf, jumpIdx: idx, pos: tok.Pos})
	c.argStack = append(c.argStack, argFrame{kind: entryIf, count: 1, empty: true})
	return nil
}

// closeIf handles ':': it closes the then-branch, emits ELSE, and
// opens the else-branch.
func (c *compiler) closeIf(tok token.Token) error {
	if err := c.reduceBoundary(); err != nil {
		return err
	}
	if len(c.argStack) == 0 || c.argStack[len(c.argStack)-1].kind != entryIf {
		return c.errorf(errs.MisplacedColon, tok)
	}
	frame := c.argStack[len(c.argStack)-1]
	c.argStack = c.argStack[:len(c.argStack)-1]
	if frame.empty {
		return c.errorf(errs.ValExpected, tok)
	}

	if len(c.opStack) == 0 || c.opStack[len(c.opStack)-1].kind != entryIf {
		return c.errorf(errs.MisplacedColon, tok)
	}
	ifEntry := c.opStack[len(c.opStack)-1]
	c.opStack = c.opStack[:len(c.opStack)-1]

	then, err := c.popValEntry(tok.Pos)
	if err != nil {
		return err
	}
	if then.typ != valNum {
		return c.errorfAt(errs.OprtTypeConflict, tok.Pos, tok.Text)
	}

	elseIdx := c.em.Append(bytecode.Instruction{Op: bytecode.OpElse, Pos: tok.Pos})
	c.em.PatchJump(ifEntry.jumpIdx, elseIdx)
	c.opStack = append(c.opStack, opEntry{kind: entryElse, jumpIdx: elseIdx, pos: tok.Pos})
	c.argStack = append(c.argStack, argFrame{kind: entryElse, count: 1, empty: true})
	return nil
}

// finish is called at end-of-input: it closes out every pending
// reduction, checks the operator stack is empty (else a paren or a
// ternary was left unterminated), appends END, and records the
// program's result count and peak stack depth.
func (c *compiler) finish(pos int) error {
	if err := c.reduceBoundary(); err != nil {
		return err
	}
	if len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if top.kind == entryIf {
			return c.errorfAt(errs.MissingElseClause, top.pos, "")
		}
		return c.errorfAt(errs.MissingParens, top.pos, "")
	}
	if len(c.valStack) != c.numResults {
		return c.errorfAt(errs.UnexpectedEOF, pos, "")
	}

	c.em.Append(bytecode.Instruction{Op: bytecode.OpEnd, Pos: pos})
	c.em.Prog.NumResults = c.numResults
	c.em.Prog.PeakStack = c.em.Prog.ComputePeakStack()
	return nil
}
