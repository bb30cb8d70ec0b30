package bytecode

import "testing"

func TestConstantFold(t *testing.T) {
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVal, Num: 2})
	e.Append(Instruction{Op: OpVal, Num: 3})
	e.EmitBinary(OpAdd, 0)

	if len(e.Prog.Instrs) != 1 {
		t.Fatalf("len(Instrs) = %d, want 1", len(e.Prog.Instrs))
	}
	if got := e.Prog.Instrs[0]; got.Op != OpVal || got.Num != 5 {
		t.Errorf("folded instruction = %+v, want VAL 5", got)
	}
}

func TestConstantFoldSkipsDivByZero(t *testing.T) {
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVal, Num: 1})
	e.Append(Instruction{Op: OpVal, Num: 0})
	e.EmitBinary(OpDiv, 0)

	if len(e.Prog.Instrs) != 3 {
		t.Fatalf("len(Instrs) = %d, want 3 (unfused, left for the VM to raise divide-by-zero)", len(e.Prog.Instrs))
	}
}

func TestSmallPowerRewrite(t *testing.T) {
	tests := []struct {
		k    float64
		want Opcode
	}{
		{0, OpVal},
		{1, OpVar},
		{2, OpVarPow2},
		{3, OpVarPow3},
		{4, OpVarPow4},
	}
	for _, tt := range tests {
		e := NewEmitter(true)
		e.Append(Instruction{Op: OpVar, Var: 7})
		e.Append(Instruction{Op: OpVal, Num: tt.k})
		e.EmitBinary(OpPow, 0)

		if len(e.Prog.Instrs) != 1 {
			t.Fatalf("k=%v: len(Instrs) = %d, want 1", tt.k, len(e.Prog.Instrs))
		}
		if got := e.Prog.Instrs[0].Op; got != tt.want {
			t.Errorf("k=%v: op = %v, want %v", tt.k, got, tt.want)
		}
	}
}

func TestLargePowerNotRewritten(t *testing.T) {
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVar, Var: 1})
	e.Append(Instruction{Op: OpVal, Num: 5})
	e.EmitBinary(OpPow, 0)

	if len(e.Prog.Instrs) != 3 {
		t.Fatalf("len(Instrs) = %d, want 3 (no rewrite for exponent 5)", len(e.Prog.Instrs))
	}
}

func TestAffineFusionValPlusVar(t *testing.T) {
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVal, Num: 3})
	e.Append(Instruction{Op: OpVar, Var: 2})
	e.EmitBinary(OpAdd, 0)

	want := Instruction{Op: OpVarMul, Var: 2, Mul: 1, Add: 3}
	if got := e.Prog.Instrs[0]; got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestAffineFusionChain(t *testing.T) {
	// (2*x + 3) - 1 -> VARMUL(2, 2, x)
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVal, Num: 2})
	e.Append(Instruction{Op: OpVar, Var: 9})
	e.EmitBinary(OpMul, 0)
	e.Append(Instruction{Op: OpVal, Num: 3})
	e.EmitBinary(OpAdd, 0)
	e.Append(Instruction{Op: OpVal, Num: 1})
	e.EmitBinary(OpSub, 0)

	want := Instruction{Op: OpVarMul, Var: 9, Mul: 2, Add: 2}
	if len(e.Prog.Instrs) != 1 {
		t.Fatalf("len(Instrs) = %d, want 1, instrs=%+v", len(e.Prog.Instrs), e.Prog.Instrs)
	}
	if got := e.Prog.Instrs[0]; got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSameVariableMultiplyFusesToPow2(t *testing.T) {
	e := NewEmitter(true)
	e.Append(Instruction{Op: OpVar, Var: 4})
	e.Append(Instruction{Op: OpVar, Var: 4})
	e.EmitBinary(OpMul, 0)

	want := Instruction{Op: OpVarPow2, Var: 4}
	if got := e.Prog.Instrs[0]; got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFoldFunc(t *testing.T) {
	e := NewEmitter(true)
	fn := &FuncBinding{Name: "square", Arity: 1, Optimizable: true, Num: func(a []float64) float64 { return a[0] * a[0] }}
	e.Append(Instruction{Op: OpVal, Num: 3})
	e.EmitFunc(OpFunc, fn, 1, -1, 0)

	if len(e.Prog.Instrs) != 1 || e.Prog.Instrs[0].Op != OpVal || e.Prog.Instrs[0].Num != 9 {
		t.Errorf("Instrs = %+v, want a single VAL 9", e.Prog.Instrs)
	}
}

func TestFoldFuncSkippedWhenNotOptimizable(t *testing.T) {
	e := NewEmitter(true)
	fn := &FuncBinding{Name: "rand", Arity: 0, Optimizable: false, Num: func(a []float64) float64 { return 42 }}
	e.EmitFunc(OpFunc, fn, 0, -1, 0)

	if len(e.Prog.Instrs) != 1 || e.Prog.Instrs[0].Op != OpFunc {
		t.Errorf("Instrs = %+v, want the FUNC call left in place", e.Prog.Instrs)
	}
}

func TestUnaryPlusElided(t *testing.T) {
	e := NewEmitter(true)
	plus := &FuncBinding{Name: "+", Arity: 1, Optimizable: true}
	e.Append(Instruction{Op: OpVar, Var: 0})
	e.EmitFunc(OpFunc, plus, 1, -1, 0)

	if len(e.Prog.Instrs) != 1 || e.Prog.Instrs[0].Op != OpVar {
		t.Errorf("Instrs = %+v, want the unary plus elided leaving VAR", e.Prog.Instrs)
	}
}
