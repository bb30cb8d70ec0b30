package bytecode

import "math"

// Emitter accumulates instructions into a Program, applying the
// peephole optimizer's local pattern rewrites at emit time when
// Optimize is set. The compiler owns one Emitter per compiled
// expression; structural instructions that need later patching (IF,
// ELSE) go through Append directly so the compiler can
// keep their index.
type Emitter struct {
	Prog     *Program
	Optimize bool
}

// NewEmitter creates an emitter over a fresh, empty Program.
func NewEmitter(optimize bool) *Emitter {
	return &Emitter{Prog: &Program{}, Optimize: optimize}
}

// Append adds an instruction unconditionally (no fusion) and returns
// its index, for instructions the compiler needs to revisit (jump
// patching) or that peephole rules never touch (IF/ELSE/ENDIF/END,
// VAR, VAL, ASSIGN).
func (e *Emitter) Append(i Instruction) int {
	e.Prog.Instrs = append(e.Prog.Instrs, i)
	return len(e.Prog.Instrs) - 1
}

// Len returns the number of instructions emitted so far.
func (e *Emitter) Len() int { return len(e.Prog.Instrs) }

// DropLast discards the last n instructions unconditionally, for
// callers that emitted an instruction speculatively and learned
// afterward that it is not needed (the compiler uses this to discard
// the VAR read it optimistically emits for an assignment's LHS before
// it has seen the '=' that turns the read into a write).
func (e *Emitter) DropLast(n int) {
	l := len(e.Prog.Instrs)
	e.Prog.Instrs = e.Prog.Instrs[:l-n]
}

// At returns the instruction at index idx.
func (e *Emitter) At(idx int) Instruction { return e.Prog.Instrs[idx] }

// PatchJump sets the jump target of an IF/ELSE instruction already
// emitted at idx.
func (e *Emitter) PatchJump(idx, target int) {
	e.Prog.Instrs[idx].Jump = target
}

// EmitBinary appends a binary arithmetic/comparison/logical
// instruction, first trying fuseBinary's peephole fusions against the
// tail of the stream; when a fusion applies, the operator is folded
// into the rewritten tail and no separate instruction is appended.
func (e *Emitter) EmitBinary(op Opcode, pos int) {
	if e.Optimize && e.fuseBinary(op, pos) {
		return
	}
	e.Append(Instruction{Op: op, Pos: pos})
}

// EmitFunc appends a function call instruction (ordinary, bulk, or
// string-prefixed), folding it to a single VAL when fn is optimizable
// and every argument is already a constant.
func (e *Emitter) EmitFunc(op Opcode, fn *FuncBinding, argc int, strIndex int, pos int) {
	if e.Optimize && op == OpFunc && e.foldFunc(fn, argc, pos) {
		return
	}
	e.Append(Instruction{Op: op, Func: fn, Argc: argc, StrIndex: strIndex, Pos: pos})
}

// tail returns the last n instructions without removing them.
func (e *Emitter) tail(n int) []Instruction {
	l := len(e.Prog.Instrs)
	if l < n {
		return nil
	}
	return e.Prog.Instrs[l-n:]
}

// truncateAndAppend drops the last n instructions and appends repl in
// their place.
func (e *Emitter) truncateAndAppend(n int, repl Instruction) {
	l := len(e.Prog.Instrs)
	e.Prog.Instrs = append(e.Prog.Instrs[:l-n], repl)
}

func isVal(i Instruction) bool    { return i.Op == OpVal }
func isVar(i Instruction) bool    { return i.Op == OpVar }
func isVarMul(i Instruction) bool { return i.Op == OpVarMul }

func binOpValue(op Opcode, a, b float64) (float64, bool) {
	switch op {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		if b == 0 {
			return 0, false // preserve the runtime divide-by-zero diagnostic
		}
		return a / b, true
	case OpPow:
		return math.Pow(a, b), true
	case OpLt:
		return boolVal(a < b), true
	case OpGt:
		return boolVal(a > b), true
	case OpLe:
		return boolVal(a <= b), true
	case OpGe:
		return boolVal(a >= b), true
	case OpEq:
		return boolVal(a == b), true
	case OpNeq:
		return boolVal(a != b), true
	case OpLand:
		return boolVal(a != 0 && b != 0), true
	case OpLor:
		return boolVal(a != 0 || b != 0), true
	default:
		return 0, false
	}
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// fuseBinary implements spec.md §4.3's peephole rules against the
// instruction stream's tail. It returns true if it consumed the
// binary operator by rewriting the tail, false if the caller should
// append op as an ordinary instruction.
func (e *Emitter) fuseBinary(op Opcode, pos int) bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpPow, OpLt, OpGt, OpLe, OpGe, OpEq, OpNeq, OpLand, OpLor:
	default:
		return false
	}

	if t := e.tail(2); t != nil {
		a, b := t[0], t[1]

		// Constant fold: VAL a; VAL b; OP -> VAL result.
		if isVal(a) && isVal(b) {
			if v, ok := binOpValue(op, a.Num, b.Num); ok {
				e.truncateAndAppend(2, Instruction{Op: OpVal, Num: v, Pos: pos})
				return true
			}
		}

		// x^k for small integer k, k in 0..4.
		if op == OpPow && isVar(a) && isVal(b) {
			if k, ok := smallPowerExponent(b.Num); ok {
				e.rewriteSmallPower(a.Var, k, pos)
				return true
			}
		}

		// VAL a + VAR x / VAL a - VAR x
		if isVal(a) && isVar(b) && (op == OpAdd || op == OpSub) {
			mul := 1.0
			if op == OpSub {
				mul = -1.0
			}
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: b.Var, Mul: mul, Add: a.Num, Pos: pos})
			return true
		}

		// VAR x + VAL a / VAR x - VAL a
		if isVar(a) && isVal(b) && (op == OpAdd || op == OpSub) {
			add := b.Num
			if op == OpSub {
				add = -b.Num
			}
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: a.Var, Mul: 1, Add: add, Pos: pos})
			return true
		}

		// VARMUL(k,c,x) +/- VAL a
		if isVarMul(a) && isVal(b) && (op == OpAdd || op == OpSub) {
			add := b.Num
			if op == OpSub {
				add = -b.Num
			}
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: a.Var, Mul: a.Mul, Add: a.Add + add, Pos: pos})
			return true
		}

		// VAL a +/- VARMUL(k,c,x)
		if isVal(a) && isVarMul(b) && (op == OpAdd || op == OpSub) {
			mul, add := b.Mul, a.Num+b.Add
			if op == OpSub {
				mul, add = -b.Mul, a.Num-b.Add
			}
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: b.Var, Mul: mul, Add: add, Pos: pos})
			return true
		}

		// Like-variable combinations: VAR x +/- VAR x, VARMUL(x) +/- VARMUL(x),
		// VAR x +/- VARMUL(x), VARMUL(x) +/- VAR x.
		if (op == OpAdd || op == OpSub) && sameVariable(a, b) {
			k1, c1 := affineCoeffs(a)
			k2, c2 := affineCoeffs(b)
			var k, c float64
			if op == OpAdd {
				k, c = k1+k2, c1+c2
			} else {
				k, c = k1-k2, c1-c2
			}
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: varHandleOf(a), Mul: k, Add: c, Pos: pos})
			return true
		}

		// VAL a * VAR x / VAR x * VAL a
		if op == OpMul && isVal(a) && isVar(b) {
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: b.Var, Mul: a.Num, Add: 0, Pos: pos})
			return true
		}
		if op == OpMul && isVar(a) && isVal(b) {
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: a.Var, Mul: b.Num, Add: 0, Pos: pos})
			return true
		}

		// VARMUL(k,c,x) * VAL a / VAL a * VARMUL(k,c,x)
		if op == OpMul && isVarMul(a) && isVal(b) {
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: a.Var, Mul: a.Mul * b.Num, Add: a.Add * b.Num, Pos: pos})
			return true
		}
		if op == OpMul && isVal(a) && isVarMul(b) {
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: b.Var, Mul: b.Mul * a.Num, Add: b.Add * a.Num, Pos: pos})
			return true
		}

		// x * x -> VARPOW2
		if op == OpMul && isVar(a) && isVar(b) && a.Var == b.Var {
			e.truncateAndAppend(2, Instruction{Op: OpVarPow2, Var: a.Var, Pos: pos})
			return true
		}

		// VARMUL(k,c,x) / VAL a, a != 0
		if op == OpDiv && isVarMul(a) && isVal(b) && b.Num != 0 {
			e.truncateAndAppend(2, Instruction{Op: OpVarMul, Var: a.Var, Mul: a.Mul / b.Num, Add: a.Add / b.Num, Pos: pos})
			return true
		}
	}

	return false
}

func sameVariable(a, b Instruction) bool {
	av, aok := varHandleOfOK(a)
	bv, bok := varHandleOfOK(b)
	return aok && bok && av == bv
}

func varHandleOf(i Instruction) VarHandle {
	v, _ := varHandleOfOK(i)
	return v
}

func varHandleOfOK(i Instruction) (VarHandle, bool) {
	switch i.Op {
	case OpVar, OpVarMul:
		return i.Var, true
	default:
		return 0, false
	}
}

func affineCoeffs(i Instruction) (mul, add float64) {
	switch i.Op {
	case OpVar:
		return 1, 0
	case OpVarMul:
		return i.Mul, i.Add
	default:
		return 0, 0
	}
}

// smallPowerExponent reports whether v is an integer in [0,4], the
// range the optimizer rewrites VAR^k into specialized opcodes for.
func smallPowerExponent(v float64) (int, bool) {
	k := int(v)
	if float64(k) != v || k < 0 || k > 4 {
		return 0, false
	}
	return k, true
}

func (e *Emitter) rewriteSmallPower(v VarHandle, k int, pos int) {
	switch k {
	case 0:
		e.truncateAndAppend(2, Instruction{Op: OpVal, Num: 1, Pos: pos})
	case 1:
		e.truncateAndAppend(2, Instruction{Op: OpVar, Var: v, Pos: pos})
	case 2:
		e.truncateAndAppend(2, Instruction{Op: OpVarPow2, Var: v, Pos: pos})
	case 3:
		e.truncateAndAppend(2, Instruction{Op: OpVarPow3, Var: v, Pos: pos})
	case 4:
		e.truncateAndAppend(2, Instruction{Op: OpVarPow4, Var: v, Pos: pos})
	}
}

// foldFunc implements the "function fold" peephole rule: a
// fixed-arity optimizable function whose top Argc instructions are
// all VAL is invoked at compile time and replaced with a single VAL.
// Unary plus (arity 1, identity callback named "+") is elided
// entirely rather than invoked.
func (e *Emitter) foldFunc(fn *FuncBinding, argc int, pos int) bool {
	if fn == nil || !fn.Optimizable || fn.Arity < 0 {
		return false
	}
	if fn.Arity == 1 && fn.Name == "+" {
		// Unary plus is a no-op: drop the function call, leave the
		// single already-emitted operand in place.
		return true
	}
	if fn.Num == nil {
		return false
	}
	t := e.tail(argc)
	if t == nil {
		return false
	}
	args := make([]float64, argc)
	for idx, instr := range t {
		if !isVal(instr) {
			return false
		}
		args[idx] = instr.Num
	}
	result := fn.Num(args)
	e.truncateAndAppend(argc, Instruction{Op: OpVal, Num: result, Pos: pos})
	return true
}
