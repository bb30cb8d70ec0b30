// Package errs defines the error model shared by the tokenizer, compiler,
// and virtual machine: a code-indexed catalogue of message templates plus
// a single Error type carrying the failing token's position and text.
package errs

import (
	"fmt"
	"strconv"
	"strings"
)

// Code identifies a class of compilation or evaluation failure.
type Code int

const (
	Unknown Code = iota
	UnassignableToken
	InternalError
	InvalidName
	InvalidBinOpIdent
	InvalidInfixIdent
	InvalidPostfixIdent
	InvalidFunPtr
	EmptyExpression
	InvalidVarPtr
	UnexpectedOperator
	UnexpectedEOF
	UnexpectedArgSep
	UnexpectedParens
	UnexpectedFun
	UnexpectedVal
	UnexpectedVar
	UnexpectedArg
	MissingParens
	TooManyParams
	TooFewParams
	DivByZero
	DomainError
	NameConflict
	OptPriority
	BuiltinOverload
	UnexpectedStr
	UnterminatedString
	StringExpected
	ValExpected
	OprtTypeConflict
	StrResult
	Generic
	Locale
	UnexpectedConditional
	MissingElseClause
	MisplacedColon
	UnreasonableBulkSize
	IdentifierTooLong
	ExpressionTooLong
	InvalidCharactersFound
)

// codeNames mirrors the catalogue keys used when loading a TOML resource,
// so `errs.LoadCatalog` can validate a custom table names every code.
var codeNames = map[Code]string{
	UnassignableToken:      "unassignable_token",
	InternalError:          "internal_error",
	InvalidName:            "invalid_name",
	InvalidBinOpIdent:      "invalid_binop_ident",
	InvalidInfixIdent:      "invalid_infix_ident",
	InvalidPostfixIdent:    "invalid_postfix_ident",
	InvalidFunPtr:          "invalid_fun_ptr",
	EmptyExpression:        "empty_expression",
	InvalidVarPtr:          "invalid_var_ptr",
	UnexpectedOperator:     "unexpected_operator",
	UnexpectedEOF:          "unexpected_eof",
	UnexpectedArgSep:       "unexpected_arg_sep",
	UnexpectedParens:       "unexpected_parens",
	UnexpectedFun:          "unexpected_fun",
	UnexpectedVal:          "unexpected_val",
	UnexpectedVar:          "unexpected_var",
	UnexpectedArg:          "unexpected_arg",
	MissingParens:          "missing_parens",
	TooManyParams:          "too_many_params",
	TooFewParams:           "too_few_params",
	DivByZero:              "div_by_zero",
	DomainError:            "domain_error",
	NameConflict:           "name_conflict",
	OptPriority:            "opt_priority",
	BuiltinOverload:        "builtin_overload",
	UnexpectedStr:          "unexpected_str",
	UnterminatedString:     "unterminated_string",
	StringExpected:         "string_expected",
	ValExpected:            "val_expected",
	OprtTypeConflict:       "oprt_type_conflict",
	StrResult:              "str_result",
	Generic:                "generic",
	Locale:                 "locale",
	UnexpectedConditional:  "unexpected_conditional",
	MissingElseClause:      "missing_else_clause",
	MisplacedColon:         "misplaced_colon",
	UnreasonableBulkSize:   "unreasonable_bulk_size",
	IdentifierTooLong:      "identifier_too_long",
	ExpressionTooLong:      "expression_too_long",
	InvalidCharactersFound: "invalid_characters_found",
}

// Error is the single failure channel for the tokenizer, compiler, and VM.
// It carries everything a caller needs to render a diagnostic: the code,
// the rune position the failure was detected at, the offending token
// text (if any), and the full expression text being processed.
type Error struct {
	Code  Code
	Pos   int
	Token string
	Expr  string
}

func (e *Error) Error() string {
	msg := activeCatalog.render(e.Code, e.Pos, e.Token)
	if e.Expr == "" {
		return msg
	}
	return fmt.Sprintf("%s (in %q)", msg, e.Expr)
}

// New constructs an Error. Pos is a 1-based rune position, 0 if unknown.
func New(code Code, pos int, token, expr string) *Error {
	return &Error{Code: code, Pos: pos, Token: token, Expr: expr}
}

// catalog is a code-indexed message-template table. Templates may embed
// the placeholders $TOK$ and $POS$, substituted at render time.
type catalog struct {
	templates map[Code]string
}

func (c *catalog) render(code Code, pos int, tok string) string {
	tpl, ok := c.templates[code]
	if !ok {
		tpl = "parser error"
	}
	tpl = strings.ReplaceAll(tpl, "$TOK$", tok)
	tpl = strings.ReplaceAll(tpl, "$POS$", strconv.Itoa(pos))
	return tpl
}

var activeCatalog = &catalog{templates: defaultTemplates()}

// SetCatalog installs a loaded catalogue (see LoadCatalog) as the one used
// to render Error.Error(). Passing nil restores the embedded default.
func SetCatalog(tpls map[Code]string) {
	if tpls == nil {
		activeCatalog = &catalog{templates: defaultTemplates()}
		return
	}
	activeCatalog = &catalog{templates: tpls}
}
