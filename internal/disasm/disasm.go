// Package disasm renders a compiled bytecode.Program as a readable
// listing, and as a CBOR-encodable trace a caller can archive or diff
// (see the cmd/mathex dump subcommand).
package disasm

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/mathex/bytecode"
)

// Text returns a human-readable listing of prog, one instruction per
// line, indexed the way the VM's jump targets address them.
func Text(prog *bytecode.Program) string {
	var sb strings.Builder
	if len(prog.Strings) > 0 {
		sb.WriteString("; Strings:\n")
		for i, s := range prog.Strings {
			display := s
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %q\n", i, display))
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("; peak stack depth: %d\n", prog.PeakStack))
	for i, instr := range prog.Instrs {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", i, Instruction(instr, prog)))
	}
	return sb.String()
}

// Instruction formats a single instruction, resolving string-pool
// indices and jump targets against prog for readability.
func Instruction(instr bytecode.Instruction, prog *bytecode.Program) string {
	switch instr.Op {
	case bytecode.OpVal:
		return fmt.Sprintf("%-8s %g", instr.Op, instr.Num)
	case bytecode.OpVar, bytecode.OpVarPow2, bytecode.OpVarPow3, bytecode.OpVarPow4:
		return fmt.Sprintf("%-8s $%d", instr.Op, instr.Var)
	case bytecode.OpVarMul:
		return fmt.Sprintf("%-8s $%d * %g + %g", instr.Op, instr.Var, instr.Mul, instr.Add)
	case bytecode.OpAssign:
		return fmt.Sprintf("%-8s $%d", instr.Op, instr.Var)
	case bytecode.OpIf, bytecode.OpElse:
		return fmt.Sprintf("%-8s -> %04d", instr.Op, instr.Jump)
	case bytecode.OpFunc, bytecode.OpFuncBulk:
		name := "?"
		if instr.Func != nil {
			name = instr.Func.Name
		}
		return fmt.Sprintf("%-8s %s argc=%d", instr.Op, name, instr.Argc)
	case bytecode.OpFuncStr:
		name := "?"
		if instr.Func != nil {
			name = instr.Func.Name
		}
		s := ""
		if instr.StrIndex >= 0 && instr.StrIndex < len(prog.Strings) {
			s = prog.Strings[instr.StrIndex]
		}
		return fmt.Sprintf("%-8s %s %q argc=%d", instr.Op, name, s, instr.Argc)
	default:
		return instr.Op.String()
	}
}

// Trace is a CBOR-encodable snapshot of a compiled program, suitable
// for archiving alongside the source expression that produced it
// (a listing and summary, never a re-loadable bytecode.Program
// itself).
type Trace struct {
	Source   string   `cbor:"source"`
	Listing  string   `cbor:"listing"`
	PeakStack int     `cbor:"peak_stack"`
	NumInstr int      `cbor:"num_instr"`
	Strings  []string `cbor:"strings"`
}

// NewTrace builds a Trace for prog, compiled from source.
func NewTrace(source string, prog *bytecode.Program) Trace {
	return Trace{
		Source:    source,
		Listing:   Text(prog),
		PeakStack: prog.PeakStack,
		NumInstr:  len(prog.Instrs),
		Strings:   prog.Strings,
	}
}

// Marshal encodes t as CBOR.
func (t Trace) Marshal() ([]byte, error) {
	return cbor.Marshal(t)
}

// Unmarshal decodes CBOR-encoded bytes produced by Marshal.
func Unmarshal(data []byte) (Trace, error) {
	var t Trace
	err := cbor.Unmarshal(data, &t)
	return t, err
}
