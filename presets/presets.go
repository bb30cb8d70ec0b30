// Package presets installs the function, constant, and operator sets
// muparser ships by default (InitCharSets/InitFun) on top of a bare
// mathex.Parser. None of this needs privileged access to the core:
// every installer here is an ordinary consumer of the façade's public
// Define* methods, which is the "thin convenience wrapper" spec.md
// keeps out of the core package but a complete repository still ships.
package presets

import (
	"math"

	"github.com/chazu/mathex"
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/identlit"
)

// RegisterStandard installs the constants and functions a fresh
// mathex.Parser needs to behave like a general
// purpose calculator. Built-in operators (+ - * / ^ && || comparisons
// = ?:) are always available once BuiltinsEnabled is true (the
// Parser default); this only adds names the core has no opinion about.
func RegisterStandard(p *mathex.Parser) error {
	if err := p.DefineConst("_pi", math.Pi); err != nil {
		return err
	}
	if err := p.DefineConst("_e", math.E); err != nil {
		return err
	}

	for _, f := range standardUnary {
		if err := p.DefineFunc(f.name, unary(f.fn)); err != nil {
			return err
		}
	}

	if err := p.DefineFunc("min", variadic(minOf)); err != nil {
		return err
	}
	if err := p.DefineFunc("max", variadic(maxOf)); err != nil {
		return err
	}
	if err := p.DefineFunc("sum", variadic(sumOf)); err != nil {
		return err
	}
	if err := p.DefineFunc("avg", variadic(avgOf)); err != nil {
		return err
	}
	return nil
}

var standardUnary = []struct {
	name string
	fn   func(float64) float64
}{
	{"sin", math.Sin}, {"cos", math.Cos}, {"tan", math.Tan},
	{"asin", math.Asin}, {"acos", math.Acos}, {"atan", math.Atan},
	{"sinh", math.Sinh}, {"cosh", math.Cosh}, {"tanh", math.Tanh},
	{"sqrt", math.Sqrt}, {"log", math.Log}, {"log2", math.Log2},
	{"log10", math.Log10}, {"exp", math.Exp}, {"abs", math.Abs},
}

func unary(fn func(float64) float64) *bytecode.FuncBinding {
	return &bytecode.FuncBinding{
		Arity:       1,
		Optimizable: true,
		Num:         func(a []float64) float64 { return fn(a[0]) },
	}
}

func variadic(fn func([]float64) float64) *bytecode.FuncBinding {
	return &bytecode.FuncBinding{
		Arity:       -1,
		Optimizable: true,
		Num:         fn,
	}
}

func minOf(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(a []float64) float64 {
	m := a[0]
	for _, v := range a[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumOf(a []float64) float64 {
	var total float64
	for _, v := range a {
		total += v
	}
	return total
}

func avgOf(a []float64) float64 {
	return sumOf(a) / float64(len(a))
}

// integer-variant operator precedences, on the same 0..11 scale the
// core's own precedence table uses: multiplicative-class ops share
// mul/div's slot, bitwise and/or sit near the logical operators they
// parallel.
const (
	precBitwiseOr  = 4
	precBitwiseAnd = 5
	precShift      = 8
	precIntMulDiv  = 8
)

// RegisterIntegerVariant mirrors muparser's ParserInt: it restricts
// numeric literals to integer forms (decimal, hex, binary) and adds
// the integer-only operators % & | << >> ~ // on top of whatever
// RegisterStandard already installed. It does not remove the
// floating-point built-ins; '/' still divides normally, and '//' is
// the new truncating-integer division.
func RegisterIntegerVariant(p *mathex.Parser) error {
	p.SetOpChars("+-*^/?<>=#!$%&|~'_")
	p.SetInfixChars("/+-!^~")
	p.SetIdentifierChain(IntegerLiteralChain())

	if err := p.DefineBinary("%", binaryOp(precIntMulDiv, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) % int64(b))
	})); err != nil {
		return err
	}
	if err := p.DefineBinary("//", binaryOp(precIntMulDiv, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) / int64(b))
	})); err != nil {
		return err
	}
	if err := p.DefineBinary("&", binaryOp(precBitwiseAnd, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) & int64(b))
	})); err != nil {
		return err
	}
	if err := p.DefineBinary("|", binaryOp(precBitwiseOr, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) | int64(b))
	})); err != nil {
		return err
	}
	if err := p.DefineBinary("<<", binaryOp(precShift, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) << uint64(int64(b)))
	})); err != nil {
		return err
	}
	if err := p.DefineBinary(">>", binaryOp(precShift, bytecode.AssocLeft, func(a, b float64) float64 {
		return float64(int64(a) >> uint64(int64(b)))
	})); err != nil {
		return err
	}
	if err := p.DefineInfix("~", &bytecode.FuncBinding{
		Arity:       1,
		Optimizable: true,
		Num:         func(a []float64) float64 { return float64(^int64(a[0])) },
	}); err != nil {
		return err
	}
	return nil
}

func binaryOp(prec int, assoc bytecode.Assoc, fn func(a, b float64) float64) *bytecode.FuncBinding {
	return &bytecode.FuncBinding{
		Precedence:  prec,
		Assoc:       assoc,
		Optimizable: true,
		Num:         func(a []float64) float64 { return fn(a[0], a[1]) },
	}
}

// IntegerLiteralChain returns the value-identifier chain
// RegisterIntegerVariant's companion: hex and binary literals still
// read as before, but plain decimal digits parse as integers with no
// fractional or exponent part, matching muparser's ParserInt.
func IntegerLiteralChain() *identlit.Chain {
	c := identlit.NewChain()
	c.Add(identlit.IntegerLiteral{})
	c.Add(identlit.HexLiteral{})
	c.Add(identlit.BinaryLiteral{})
	return c
}
