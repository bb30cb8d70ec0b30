package symtab

import (
	"testing"

	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
)

func asErr(t *testing.T, err error) *errs.Error {
	t.Helper()
	e, ok := err.(*errs.Error)
	if !ok {
		t.Fatalf("error is %T, not *errs.Error", err)
	}
	return e
}

func TestDefineVarStableHandle(t *testing.T) {
	tb := New()
	h1, err := tb.DefineVar("x")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := tb.DefineVar("x")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Errorf("handle changed across redefinition: %v vs %v", h1, h2)
	}
}

func TestUndefineVarRestoresVirginState(t *testing.T) {
	tb := New()
	if _, err := tb.DefineVar("x"); err != nil {
		t.Fatal(err)
	}
	tb.UndefineVar("x")
	if _, ok := tb.Variables["x"]; ok {
		t.Error("x still present after UndefineVar")
	}
	if len(tb.UsedVariables()) != 0 {
		t.Error("UsedVariables() not empty after UndefineVar")
	}
}

func TestNameConflictAcrossTables(t *testing.T) {
	tb := New()
	if err := tb.DefineConst("pi", 3.14); err != nil {
		t.Fatal(err)
	}
	if _, err := tb.DefineVar("pi"); err == nil {
		t.Fatal("expected a name conflict defining a variable named like an existing constant")
	} else if asErr(t, err).Code != errs.NameConflict {
		t.Errorf("code = %v, want NameConflict", asErr(t, err).Code)
	}
}

func TestInfixAndBinaryMayShareAName(t *testing.T) {
	tb := New()
	minus := &bytecode.FuncBinding{Num: func(a []float64) float64 { return -a[0] }}
	if err := tb.DefineInfix("-", minus); err != nil {
		t.Fatal(err)
	}
	binMinus := &bytecode.FuncBinding{Precedence: 10, Num: func(a []float64) float64 { return a[0] - a[1] }}
	if err := tb.DefineBinary("-", binMinus); err != nil {
		t.Fatalf("infix and binary operators of the same name should not conflict: %v", err)
	}
}

func TestBuiltinOverloadIsOneSided(t *testing.T) {
	tb := New()
	builtinPlus := &bytecode.FuncBinding{Precedence: 6, Num: func(a []float64) float64 { return a[0] + a[1] }}
	if err := tb.DefineBinary("+", builtinPlus); err != nil {
		t.Fatal(err)
	}
	tb.MarkBuiltinBinary("+")

	userPlus := &bytecode.FuncBinding{Precedence: 6, Num: func(a []float64) float64 { return a[0] + a[1] + 1 }}
	if err := tb.DefineBinary("+", userPlus); err == nil {
		t.Fatal("user operator should not be able to shadow a built-in")
	}

	// Disabling built-ins lifts the restriction (asymmetric by design).
	tb.DisableBuiltins()
	delete(tb.Binary, "+")
	if err := tb.DefineBinary("+", userPlus); err != nil {
		t.Fatalf("after DisableBuiltins, user should be able to define +: %v", err)
	}
}

func TestDefineVarTooLong(t *testing.T) {
	tb := New()
	long := make([]byte, MaxIdentifierLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := tb.DefineVar(string(long)); err == nil {
		t.Fatal("expected identifier-too-long error")
	} else if asErr(t, err).Code != errs.IdentifierTooLong {
		t.Errorf("code = %v, want IdentifierTooLong", asErr(t, err).Code)
	}
}
