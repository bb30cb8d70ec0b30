// Package symtab holds the name-to-binding tables the token reader and
// compiler consult: variables, constants, string constants, and the
// four operator/function tables (infix, postfix, binary, function).
package symtab

import (
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
)

// MaxIdentifierLength bounds every name accepted by Define*, grounded
// on the original implementation's identifier cap.
const MaxIdentifierLength = 100

// Variable is a name bound to a stable VarHandle. The parser never
// owns the storage a handle ultimately resolves to; that is the
// caller's contract for the duration of any evaluation (see the vars
// argument of vm.VM.Eval).
type Variable struct {
	Name   string
	Handle bytecode.VarHandle
}

// Tables owns every name scope the compiler and token reader consult.
// Symbol-table mutation invalidates any previously compiled bytecode;
// callers own enforcing that (see the mathex façade).
type Tables struct {
	Variables map[string]Variable
	Constants map[string]float64

	// Strings maps a named string constant to its value. The value is
	// copied into whichever Program a given Compile call is building
	// (see token.Reader.readIdentifier), rather than recorded as a
	// pool index here, since each Compile call starts a fresh pool.
	Strings map[string]string

	Functions map[string]*bytecode.FuncBinding
	Infix     map[string]*bytecode.FuncBinding
	Postfix   map[string]*bytecode.FuncBinding
	Binary    map[string]*bytecode.FuncBinding

	builtinBinary map[string]bool // names marked by MarkBuiltinBinary, for the one-sided overload check

	nextHandle bytecode.VarHandle
}

// New returns an empty table set.
func New() *Tables {
	return &Tables{
		Variables:     make(map[string]Variable),
		Constants:     make(map[string]float64),
		Strings:       make(map[string]string),
		Functions:     make(map[string]*bytecode.FuncBinding),
		Infix:         make(map[string]*bytecode.FuncBinding),
		Postfix:       make(map[string]*bytecode.FuncBinding),
		Binary:        make(map[string]*bytecode.FuncBinding),
		builtinBinary: make(map[string]bool),
	}
}

func validName(name string) bool {
	if name == "" || len(name) > MaxIdentifierLength {
		return false
	}
	return true
}

// conflict reports whether name is already bound in any table that is
// never exempt from conflicting: variables, constants, string
// constants, functions, and postfix operators. Per spec.md §4.5, a name may appear in
// one of {infix, binary} without conflicting with the other, so
// those two tables are checked separately by their own Define* methods.
func (t *Tables) conflict(name string) bool {
	if _, ok := t.Variables[name]; ok {
		return true
	}
	if _, ok := t.Constants[name]; ok {
		return true
	}
	if _, ok := t.Strings[name]; ok {
		return true
	}
	if _, ok := t.Functions[name]; ok {
		return true
	}
	if _, ok := t.Postfix[name]; ok {
		return true
	}
	return false
}

// DefineVar installs or updates a variable binding, returning its
// handle. Re-defining an existing variable name keeps its handle
// stable (so previously compiled references to it, if any survive
// unrelated recompilation, stay valid).
func (t *Tables) DefineVar(name string) (bytecode.VarHandle, error) {
	if !validName(name) {
		return 0, errs.New(errs.IdentifierTooLong, 0, name, "")
	}
	if v, ok := t.Variables[name]; ok {
		return v.Handle, nil
	}
	if t.conflictExceptVariable(name) {
		return 0, errs.New(errs.NameConflict, 0, name, "")
	}
	h := t.nextHandle
	t.nextHandle++
	t.Variables[name] = Variable{Name: name, Handle: h}
	return h, nil
}

func (t *Tables) conflictExceptVariable(name string) bool {
	if _, ok := t.Constants[name]; ok {
		return true
	}
	if _, ok := t.Strings[name]; ok {
		return true
	}
	if _, ok := t.Functions[name]; ok {
		return true
	}
	if _, ok := t.Postfix[name]; ok {
		return true
	}
	return false
}

// UndefineVar removes a variable binding. After this call the table
// behaves as though the variable had never been defined (spec.md §8's
// round-trip invariant).
func (t *Tables) UndefineVar(name string) {
	delete(t.Variables, name)
}

// DefineConst installs a constant binding.
func (t *Tables) DefineConst(name string, value float64) error {
	if !validName(name) {
		return errs.New(errs.IdentifierTooLong, 0, name, "")
	}
	if t.conflict(name) {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	t.Constants[name] = value
	return nil
}

// DefineString installs a string constant under name. Its value is
// copied into each program's string pool as it is referenced, so the
// binding survives any number of later recompilations.
func (t *Tables) DefineString(name, value string) error {
	if !validName(name) {
		return errs.New(errs.IdentifierTooLong, 0, name, "")
	}
	if t.conflict(name) {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	t.Strings[name] = value
	return nil
}

// DefineFunc installs a function binding.
func (t *Tables) DefineFunc(name string, fn *bytecode.FuncBinding) error {
	if !validName(name) {
		return errs.New(errs.IdentifierTooLong, 0, name, "")
	}
	if fn.Num == nil && fn.Str == nil && fn.Bulk == nil {
		return errs.New(errs.InvalidFunPtr, 0, name, "")
	}
	if t.conflict(name) {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	fn.Name = name
	t.Functions[name] = fn
	return nil
}

// DefineInfix installs a prefix ("infix" in the original terminology)
// unary operator.
func (t *Tables) DefineInfix(name string, fn *bytecode.FuncBinding) error {
	if !validName(name) {
		return errs.New(errs.InvalidInfixIdent, 0, name, "")
	}
	if _, ok := t.Variables[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	if _, ok := t.Constants[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	if _, ok := t.Functions[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	fn.Name = name
	fn.Arity = 1
	t.Infix[name] = fn
	return nil
}

// DefinePostfix installs a postfix unary operator.
func (t *Tables) DefinePostfix(name string, fn *bytecode.FuncBinding) error {
	if !validName(name) {
		return errs.New(errs.InvalidPostfixIdent, 0, name, "")
	}
	if t.conflict(name) {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	fn.Name = name
	fn.Arity = 1
	t.Postfix[name] = fn
	return nil
}

// DefineBinary installs a user binary operator. Per the open question
// in spec.md §9, this check is intentionally one-sided: a user
// operator may never shadow a name MarkBuiltinBinary marked, but if
// the caller has disabled built-ins first (DisableBuiltins), defining
// a same-named operator is permitted. This asymmetry is preserved
// verbatim from the original rather than "fixed".
func (t *Tables) DefineBinary(name string, fn *bytecode.FuncBinding) error {
	if !validName(name) {
		return errs.New(errs.InvalidBinOpIdent, 0, name, "")
	}
	if fn.Precedence < 0 {
		return errs.New(errs.OptPriority, 0, name, "")
	}
	if t.builtinBinary[name] {
		return errs.New(errs.BuiltinOverload, 0, name, "")
	}
	if _, ok := t.Variables[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	if _, ok := t.Constants[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	if _, ok := t.Functions[name]; ok {
		return errs.New(errs.NameConflict, 0, name, "")
	}
	fn.Name = name
	t.Binary[name] = fn
	return nil
}

// DisableBuiltins forgets which binary operator names were marked
// by MarkBuiltinBinary (see DefineBinary's one-sided check) without
// removing the bindings themselves; callers that want them gone
// entirely should also delete from Binary.
func (t *Tables) DisableBuiltins() {
	for name := range t.builtinBinary {
		delete(t.builtinBinary, name)
	}
}

// MarkBuiltinBinary records name as a built-in binary operator, for
// DefineBinary's overload check.
func (t *Tables) MarkBuiltinBinary(name string) {
	t.builtinBinary[name] = true
}

// UsedVariables returns the names of every currently-defined variable.
func (t *Tables) UsedVariables() []string {
	names := make([]string, 0, len(t.Variables))
	for name := range t.Variables {
		names = append(names, name)
	}
	return names
}
