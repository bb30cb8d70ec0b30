package token

import (
	"testing"

	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
	"github.com/chazu/mathex/identlit"
	"github.com/chazu/mathex/symtab"
)

func newTestReader(expr string) (*Reader, *symtab.Tables) {
	tb := symtab.New()
	prog := &bytecode.Program{}
	r := New(expr, tb, identlit.Standard('.'), prog)
	return r, tb
}

func kinds(t *testing.T, r *Reader) []Kind {
	t.Helper()
	var got []Kind
	for {
		tok, err := r.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		got = append(got, tok.Kind)
		if tok.Kind == KindEOF {
			return got
		}
	}
}

func TestTokenizeArithmeticExpression(t *testing.T) {
	r, _ := newTestReader("2+3*4")
	got := kinds(t, r)
	want := []Kind{KindVal, KindAdditive, KindVal, KindMultiplicative, KindVal, KindEOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnaryMinusIsInfixAtStart(t *testing.T) {
	r, _ := newTestReader("-3+4")
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindInfixUnary || tok.Text != "-" {
		t.Errorf("got %+v, want infix unary minus", tok)
	}
}

func TestComparisonOperatorsLongestMatch(t *testing.T) {
	r, _ := newTestReader("1<=2")
	_, _ = r.Next() // "1"
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindCmp || tok.Op != bytecode.OpLe {
		t.Errorf("got %+v, want CMP LE (not LT followed by unexpected '=')", tok)
	}
}

func TestDisablingBuiltinsFallsThroughToUserBinary(t *testing.T) {
	r, tb := newTestReader("1+2")
	r.BuiltinsEnabled = false
	plus := &bytecode.FuncBinding{Precedence: 6, Num: func(a []float64) float64 { return a[0] + a[1] }}
	if err := tb.DefineBinary("+", plus); err != nil {
		t.Fatal(err)
	}
	_, _ = r.Next() // "1"
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindBinaryUserOp || tok.Func != plus {
		t.Errorf("got %+v, want user-defined binary '+'", tok)
	}
}

func TestUnknownIdentifierIsUnassignableByDefault(t *testing.T) {
	r, _ := newTestReader("foo+1")
	if _, err := r.Next(); err == nil {
		t.Fatal("expected an error for an unassignable identifier")
	} else if e, ok := err.(*errs.Error); !ok || e.Code != errs.UnassignableToken {
		t.Errorf("err = %v, want UnassignableToken", err)
	}
}

func TestVarFactoryMaterializesVariable(t *testing.T) {
	r, tb := newTestReader("foo+1")
	r.VarFactory = func(name string) bool { return name == "foo" }
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindVar {
		t.Fatalf("got %+v, want KindVar", tok)
	}
	if _, ok := tb.Variables["foo"]; !ok {
		t.Error("foo was not installed into the variable table")
	}
}

func TestSuppressUnassignableForUsedVariableQuery(t *testing.T) {
	r, _ := newTestReader("foo+bar")
	r.SuppressUnassignable = true
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindVar {
		t.Fatalf("got %+v, want KindVar", tok)
	}
}

func TestStringLiteral(t *testing.T) {
	r, _ := newTestReader(`"hello"+1`)
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindString || tok.Text != "hello" {
		t.Errorf("got %+v, want string literal hello", tok)
	}
}

func TestFunctionCallRecognizesKind(t *testing.T) {
	r, tb := newTestReader("sin(1)")
	sin := &bytecode.FuncBinding{Arity: 1, Num: func(a []float64) float64 { return a[0] }}
	if err := tb.DefineFunc("sin", sin); err != nil {
		t.Fatal(err)
	}
	tok, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if tok.Kind != KindFunc || tok.Func != sin {
		t.Errorf("got %+v, want KindFunc sin", tok)
	}
}

func TestEmptyExpressionValidation(t *testing.T) {
	r, _ := newTestReader("")
	if err := r.Validate(); err == nil {
		t.Fatal("expected EmptyExpression error")
	} else if e, ok := err.(*errs.Error); !ok || e.Code != errs.EmptyExpression {
		t.Errorf("err = %v, want EmptyExpression", err)
	}
}

func TestConditionalTokens(t *testing.T) {
	r, _ := newTestReader("1?2:3")
	got := kinds(t, r)
	want := []Kind{KindVal, KindIf, KindVal, KindElse, KindVal, KindEOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
