// Package token implements the expression tokenizer: a lazy,
// state-aware stream of typed tokens consulted by the compiler. The
// tokenizer consults the symbol tables and the value-identifier chain
// to recognize names and literals, and tracks rune position for
// diagnostics.
package token

import "github.com/chazu/mathex/bytecode"

// Kind discriminates the token payload union. Every kind the grammar
// in spec.md §6 can produce has an entry here.
type Kind int

const (
	KindEOF Kind = iota
	KindVal
	KindVar
	KindString
	KindOpen
	KindClose
	KindArgSep
	KindIf   // '?'
	KindElse // ':'
	KindAssign
	KindCmp            // < > <= >= == !=
	KindAdditive       // + -
	KindMultiplicative // * /
	KindPower          // ^
	KindLogicalAnd     // &&
	KindLogicalOr      // ||
	KindInfixUnary     // registered prefix operator
	KindPostfixUnary   // registered postfix operator
	KindFunc           // ordinary or variadic numeric function
	KindBulkFunc
	KindStringFunc
	KindBinaryUserOp // user-defined binary operator
)

// Token is a tagged record: Kind selects which of the payload fields
// are meaningful.
type Token struct {
	Kind Kind
	Pos  int // 1-based rune position where the token starts
	Text string

	Num      float64
	Var      bytecode.VarHandle
	StrIndex int
	Func     *bytecode.FuncBinding
	Op       bytecode.Opcode // meaningful for Cmp/Additive/Multiplicative/Power/LogicalAnd/LogicalOr
}
