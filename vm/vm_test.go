package vm

import (
	"testing"

	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
)

func prog(instrs ...bytecode.Instruction) *bytecode.Program {
	p := &bytecode.Program{Instrs: append(instrs, bytecode.Instruction{Op: bytecode.OpEnd})}
	p.PeakStack = len(instrs) + 1
	return p
}

func TestEvalArithmetic(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVal, Num: 2},
		bytecode.Instruction{Op: bytecode.OpVal, Num: 3},
		bytecode.Instruction{Op: bytecode.OpVal, Num: 4},
		bytecode.Instruction{Op: bytecode.OpMul},
		bytecode.Instruction{Op: bytecode.OpAdd},
	)
	got, err := New().Eval(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 14 {
		t.Errorf("2+3*4 = %v, want 14", got)
	}
}

func TestEvalAssignWritesCallerStorage(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVal, Num: 5},
		bytecode.Instruction{Op: bytecode.OpAssign, Var: 0},
	)
	vars := []float64{0}
	got, err := New().Eval(p, vars)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("x=5 evaluates to %v, want 5", got)
	}
	if vars[0] != 5 {
		t.Errorf("vars[0] = %v, want 5 written back to caller storage", vars[0])
	}
}

func TestEvalDivByZero(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVal, Num: 1},
		bytecode.Instruction{Op: bytecode.OpVal, Num: 0},
		bytecode.Instruction{Op: bytecode.OpDiv, Pos: 3},
	)
	_, err := New().Eval(p, nil)
	if err == nil {
		t.Fatal("expected a divide-by-zero error")
	}
	if e, ok := err.(*errs.Error); !ok || e.Code != errs.DivByZero {
		t.Errorf("err = %v, want DivByZero", err)
	}
}

func TestEvalConditional(t *testing.T) {
	// 1 ? 10 : 20, with jump targets wired by hand as the compiler would.
	instrs := []bytecode.Instruction{
		{Op: bytecode.OpVal, Num: 1},
		{Op: bytecode.OpIf, Jump: 3},
		{Op: bytecode.OpVal, Num: 10},
		{Op: bytecode.OpElse, Jump: 5},
		{Op: bytecode.OpVal, Num: 20},
		{Op: bytecode.OpEndIf},
		{Op: bytecode.OpEnd},
	}
	p := &bytecode.Program{Instrs: instrs, PeakStack: 2}
	got, err := New().Eval(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 10 {
		t.Errorf("1?10:20 = %v, want 10", got)
	}
}

func TestEvalFunc(t *testing.T) {
	max := &bytecode.FuncBinding{Name: "max", Arity: 2, Num: func(a []float64) float64 {
		if a[0] > a[1] {
			return a[0]
		}
		return a[1]
	}}
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVal, Num: 3},
		bytecode.Instruction{Op: bytecode.OpVal, Num: 7},
		bytecode.Instruction{Op: bytecode.OpFunc, Func: max, Argc: 2},
	)
	got, err := New().Eval(p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 7 {
		t.Errorf("max(3,7) = %v, want 7", got)
	}
}

func TestEvalBulkSingleThreaded(t *testing.T) {
	// 2*x + 1 over x in [0,1,2,3,4]
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVarMul, Var: 0, Mul: 2, Add: 1},
	)
	vars := [][]float64{{0, 1, 2, 3, 4}}
	out := make([]float64, 5)
	if err := New().EvalBulk(p, vars, 5, out, 1); err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 3, 5, 7, 9}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEvalBulkMultiThreaded(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVarPow2, Var: 0},
	)
	n := 100
	xs := make([]float64, n)
	want := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
		want[i] = float64(i) * float64(i)
	}
	vars := [][]float64{xs}
	out := make([]float64, n)
	if err := New().EvalBulk(p, vars, n, out, 4); err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEvalBulkPropagatesError(t *testing.T) {
	p := prog(
		bytecode.Instruction{Op: bytecode.OpVal, Num: 1},
		bytecode.Instruction{Op: bytecode.OpVar, Var: 0},
		bytecode.Instruction{Op: bytecode.OpDiv},
	)
	vars := [][]float64{{1, 0, 2}}
	out := make([]float64, 3)
	err := New().EvalBulk(p, vars, 3, out, 1)
	if err == nil {
		t.Fatal("expected a propagated divide-by-zero error")
	}
}
