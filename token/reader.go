package token

import (
	"strings"
	"unicode"

	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
	"github.com/chazu/mathex/identlit"
	"github.com/chazu/mathex/symtab"
)

// MaxExpressionLength bounds the source text Reader will tokenize,
// grounded on the original implementation's expression-length cap.
const MaxExpressionLength = 10000

// VarFactory materializes a variable binding the first time an
// otherwise-unknown identifier is referenced. It returns false to
// decline (the reader then reports ecUNASSIGNABLE_TOKEN-equivalent
// errs.UnassignableToken).
type VarFactory func(name string) bool

// Reader produces one Token per call to Next, consulting Tables for
// names and Idents for numeric literals, and tracking rune position
// for diagnostics (spec.md §4.1).
type Reader struct {
	expr []rune
	pos  int

	NameChars   string
	OpChars     string
	InfixChars  string
	ArgSep      rune

	Tables *symtab.Tables
	Idents *identlit.Chain
	Pool   *bytecode.Program

	BuiltinsEnabled bool
	VarFactory      VarFactory

	// SuppressUnassignable makes an otherwise-unassignable identifier
	// become a throwaway variable reference instead of an error, used
	// only by the "collect used variables" query (spec.md §4.1).
	SuppressUnassignable bool

	expectOperand bool
	prevEnd       int
}

// New returns a Reader over expr with non-empty default character
// classes. Reader itself does not check the classes again if a caller
// overwrites them; compiler.Compile only ever replaces them with
// non-empty values.
func New(expr string, tables *symtab.Tables, idents *identlit.Chain, pool *bytecode.Program) *Reader {
	r := &Reader{
		expr:            []rune(expr),
		NameChars:       "0123456789_abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
		OpChars:         "+-*^/?<>=#!$%&|~'_",
		InfixChars:      "/+-!^",
		ArgSep:          ',',
		Tables:          tables,
		Idents:          idents,
		Pool:            pool,
		BuiltinsEnabled: true,
		expectOperand:   true,
	}
	return r
}

// Pos returns the current 1-based rune position.
func (r *Reader) Pos() int { return r.pos + 1 }

// Expr returns the full source text being tokenized, for embedding in
// diagnostics raised after tokenization (e.g. by the compiler).
func (r *Reader) Expr() string { return string(r.expr) }

func (r *Reader) errorf(code errs.Code, tok string) *errs.Error {
	return errs.New(code, r.Pos(), tok, string(r.expr))
}

func (r *Reader) validate() *errs.Error {
	if len(r.expr) == 0 {
		return r.errorf(errs.EmptyExpression, "")
	}
	if len(r.expr) > MaxExpressionLength {
		return r.errorf(errs.ExpressionTooLong, "")
	}
	for _, c := range r.expr {
		if c < 0x20 && c != '\t' && c != '\n' && c != '\r' {
			return r.errorf(errs.InvalidCharactersFound, string(c))
		}
	}
	return nil
}

// Validate checks the whole expression up front for the boundary
// conditions spec.md §8 calls out (empty, too long, non-printable).
func (r *Reader) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	return nil
}

func (r *Reader) eof() bool { return r.pos >= len(r.expr) }

func (r *Reader) skipSpace() {
	for !r.eof() && unicode.IsSpace(r.expr[r.pos]) {
		r.pos++
	}
}

func in(set string, c rune) bool { return strings.ContainsRune(set, c) }

// Next returns the next token in the stream, or an *errs.Error.
func (r *Reader) Next() (Token, error) {
	r.skipSpace()
	start := r.pos

	if r.eof() {
		return Token{Kind: KindEOF, Pos: r.Pos()}, nil
	}

	c := r.expr[r.pos]

	switch {
	case c == '"':
		return r.readString()
	case c == '(':
		r.pos++
		r.expectOperand = true
		return Token{Kind: KindOpen, Pos: start + 1, Text: "("}, nil
	case c == ')':
		r.pos++
		r.expectOperand = false
		return Token{Kind: KindClose, Pos: start + 1, Text: ")"}, nil
	case c == r.ArgSep:
		r.pos++
		r.expectOperand = true
		return Token{Kind: KindArgSep, Pos: start + 1, Text: string(c)}, nil
	case c == '?':
		r.pos++
		r.expectOperand = true
		return Token{Kind: KindIf, Pos: start + 1, Text: "?"}, nil
	case c == ':':
		r.pos++
		r.expectOperand = true
		return Token{Kind: KindElse, Pos: start + 1, Text: ":"}, nil
	}

	if in(r.OpChars, c) {
		if tok, ok := r.readOperator(); ok {
			return tok, nil
		}
	}

	if in(r.NameChars, c) && !isDigit(c) {
		return r.readIdentifier()
	}

	if tok, err := r.readNumber(); err == nil {
		return tok, nil
	}

	return Token{}, r.errorf(errs.UnassignableToken, string(c))
}

func (r *Reader) readString() (Token, error) {
	start := r.pos
	r.pos++ // opening quote
	var sb strings.Builder
	for {
		if r.eof() {
			return Token{}, errs.New(errs.UnterminatedString, start+1, string(r.expr[start:]), string(r.expr))
		}
		c := r.expr[r.pos]
		if c == '"' {
			r.pos++
			break
		}
		if c == '\\' && r.pos+1 < len(r.expr) {
			r.pos++
			sb.WriteRune(r.expr[r.pos])
			r.pos++
			continue
		}
		sb.WriteRune(c)
		r.pos++
	}
	r.expectOperand = false
	idx := -1
	if r.Pool != nil {
		idx = r.Pool.AddString(sb.String())
	}
	return Token{Kind: KindString, Pos: start + 1, Text: sb.String(), StrIndex: idx}, nil
}

// opRun returns the maximal contiguous run of operator-class
// characters starting at the current position.
func (r *Reader) opRun() string {
	i := r.pos
	for i < len(r.expr) && in(r.OpChars, r.expr[i]) {
		i++
	}
	return string(r.expr[r.pos:i])
}

func (r *Reader) readOperator() (Token, bool) {
	run := r.opRun()
	start := r.pos

	for length := len(run); length >= 1; length-- {
		cand := run[:length]
		if tok, ok := r.matchOperator(cand, start); ok {
			r.pos += length
			return tok, true
		}
	}
	return Token{}, false
}

var builtinBinary = map[string]struct {
	Kind Kind
	Op   bytecode.Opcode
}{
	"==": {KindCmp, bytecode.OpEq},
	"!=": {KindCmp, bytecode.OpNeq},
	"<=": {KindCmp, bytecode.OpLe},
	">=": {KindCmp, bytecode.OpGe},
	"&&": {KindLogicalAnd, 0},
	"||": {KindLogicalOr, 0},
	"<":  {KindCmp, bytecode.OpLt},
	">":  {KindCmp, bytecode.OpGt},
	"+":  {KindAdditive, bytecode.OpAdd},
	"-":  {KindAdditive, bytecode.OpSub},
	"*":  {KindMultiplicative, bytecode.OpMul},
	"/":  {KindMultiplicative, bytecode.OpDiv},
	"^":  {KindPower, bytecode.OpPow},
}

func (r *Reader) matchOperator(cand string, startRune int) (Token, bool) {
	pos := startRune + 1

	if !r.expectOperand {
		if cand == "=" {
			r.expectOperand = true
			return Token{Kind: KindAssign, Pos: pos, Text: cand}, true
		}
		if r.BuiltinsEnabled {
			if b, ok := builtinBinary[cand]; ok {
				r.expectOperand = true
				return Token{Kind: b.Kind, Op: b.Op, Pos: pos, Text: cand}, true
			}
		}
		if fn, ok := r.Tables.Postfix[cand]; ok {
			return Token{Kind: KindPostfixUnary, Func: fn, Pos: pos, Text: cand}, true
		}
		if fn, ok := r.Tables.Binary[cand]; ok {
			r.expectOperand = true
			return Token{Kind: KindBinaryUserOp, Func: fn, Pos: pos, Text: cand}, true
		}
		return Token{}, false
	}

	// expecting an operand: only infix (prefix) operators are legal here.
	if (cand == "+" || cand == "-") && r.BuiltinsEnabled {
		return Token{Kind: KindInfixUnary, Func: signBinding(cand), Pos: pos, Text: cand}, true
	}
	if fn, ok := r.Tables.Infix[cand]; ok {
		return Token{Kind: KindInfixUnary, Func: fn, Pos: pos, Text: cand}, true
	}
	return Token{}, false
}

var unaryPlus = &bytecode.FuncBinding{Name: "+", Arity: 1, Optimizable: true, Num: func(a []float64) float64 { return a[0] }}
var unaryMinus = &bytecode.FuncBinding{Name: "-", Arity: 1, Optimizable: true, Num: func(a []float64) float64 { return -a[0] }}

func signBinding(cand string) *bytecode.FuncBinding {
	if cand == "-" {
		return unaryMinus
	}
	return unaryPlus
}

func (r *Reader) readIdentifier() (Token, error) {
	start := r.pos
	i := r.pos
	for i < len(r.expr) && in(r.NameChars, r.expr[i]) {
		i++
	}
	name := string(r.expr[start:i])
	if len(name) > symtab.MaxIdentifierLength {
		r.pos = i
		return Token{}, r.errorf(errs.IdentifierTooLong, name)
	}

	if v, ok := r.Tables.Constants[name]; ok {
		r.pos = i
		r.expectOperand = false
		return Token{Kind: KindVal, Num: v, Pos: start + 1, Text: name}, nil
	}
	if v, ok := r.Tables.Variables[name]; ok {
		r.pos = i
		r.expectOperand = false
		return Token{Kind: KindVar, Var: v.Handle, Pos: start + 1, Text: name}, nil
	}
	if val, ok := r.Tables.Strings[name]; ok {
		r.pos = i
		r.expectOperand = false
		idx := -1
		if r.Pool != nil {
			idx = r.Pool.AddString(val)
		}
		return Token{Kind: KindString, StrIndex: idx, Pos: start + 1, Text: name}, nil
	}
	if fn, ok := r.Tables.Functions[name]; ok {
		r.pos = i
		r.expectOperand = true // function application expects '(' next
		kind := KindFunc
		switch {
		case fn.Str != nil:
			kind = KindStringFunc
		case fn.Bulk != nil:
			kind = KindBulkFunc
		}
		return Token{Kind: kind, Func: fn, Pos: start + 1, Text: name}, nil
	}

	// Unknown identifier: try the variable factory, then the
	// used-variables-query suppression, then fail.
	r.pos = i
	if r.VarFactory != nil && r.VarFactory(name) {
		h, err := r.Tables.DefineVar(name)
		if err != nil {
			return Token{}, err
		}
		r.expectOperand = false
		return Token{Kind: KindVar, Var: h, Pos: start + 1, Text: name}, nil
	}
	if r.SuppressUnassignable {
		h, err := r.Tables.DefineVar(name)
		if err != nil {
			return Token{}, err
		}
		r.expectOperand = false
		return Token{Kind: KindVar, Var: h, Pos: start + 1, Text: name}, nil
	}
	return Token{}, errs.New(errs.UnassignableToken, start+1, name, string(r.expr))
}

func (r *Reader) readNumber() (Token, error) {
	if r.Idents == nil {
		return Token{}, r.errorf(errs.UnassignableToken, string(r.expr[r.pos]))
	}
	newPos, val, ok := r.Idents.Identify(r.expr, r.pos)
	if !ok {
		return Token{}, r.errorf(errs.UnassignableToken, string(r.expr[r.pos]))
	}
	start := r.pos
	r.pos = newPos
	r.expectOperand = false
	return Token{Kind: KindVal, Num: val, Pos: start + 1, Text: string(r.expr[start:newPos])}, nil
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
