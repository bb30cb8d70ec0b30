package disasm

import (
	"strings"
	"testing"

	"github.com/chazu/mathex/bytecode"
)

func sampleProgram() *bytecode.Program {
	return &bytecode.Program{
		Instrs: []bytecode.Instruction{
			{Op: bytecode.OpVal, Num: 2},
			{Op: bytecode.OpVarMul, Var: 0, Mul: 3, Add: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpEnd},
		},
		PeakStack: 2,
	}
}

func TestTextListsEveryInstruction(t *testing.T) {
	out := Text(sampleProgram())
	if strings.Count(out, "\n") < 4 {
		t.Errorf("listing looks too short:\n%s", out)
	}
	if !strings.Contains(out, "VARMUL") {
		t.Errorf("listing missing VARMUL:\n%s", out)
	}
	if !strings.Contains(out, "peak stack depth: 2") {
		t.Errorf("listing missing peak stack depth:\n%s", out)
	}
}

func TestTraceMarshalRoundTrip(t *testing.T) {
	tr := NewTrace("2+3*x", sampleProgram())
	data, err := tr.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "2+3*x" || got.NumInstr != 4 || got.PeakStack != 2 {
		t.Errorf("got %+v, want source/NumInstr/PeakStack to round-trip", got)
	}
}

func TestInstructionFormatsFuncCall(t *testing.T) {
	fn := &bytecode.FuncBinding{Name: "sin", Arity: 1}
	line := Instruction(bytecode.Instruction{Op: bytecode.OpFunc, Func: fn, Argc: 1}, &bytecode.Program{})
	if !strings.Contains(line, "sin") || !strings.Contains(line, "argc=1") {
		t.Errorf("got %q", line)
	}
}
