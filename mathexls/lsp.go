// Package mathexls is a minimal language server for expression text:
// one diagnostic pass per document change, plus hover and completion
// over whatever variables, constants, and functions are currently
// registered. It mirrors the wiring shape of a maggie-style LSP
// bridge, with a *mathex.Parser standing in for a VM.
package mathexls

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/mathex"
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/errs"
	"github.com/chazu/mathex/presets"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "mathex-lsp"

// Server bridges LSP editor features to a mathex.Parser via evalWorker.
type Server struct {
	worker *evalWorker

	mu   sync.Mutex
	docs map[string]string // URI -> full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewServer creates a Server with the standard function/constant
// preset registered on a fresh evaluator.
func NewServer() (*Server, error) {
	p := mathex.New()
	if err := presets.RegisterStandard(p); err != nil {
		return nil, fmt.Errorf("registering standard presets: %w", err)
	}

	s := &Server{
		worker:  newEvalWorker(p),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentCompletion: s.textDocumentCompletion,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s, nil
}

// Run starts the server on stdio. Blocks until the client disconnects.
func (s *Server) Run() error {
	return s.server.RunStdio()
}

// --- lifecycle ---

func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "mathex LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *Server) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- document synchronization ---

func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return nil
	}
	last := params.ContentChanges[len(params.ContentChanges)-1]
	whole, ok := last.(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.docs[string(uri)] = whole.Text
	s.mu.Unlock()
	s.publishDiagnostics(ctx, uri, whole.Text)
	return nil
}

func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- language features ---

func (s *Server) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	s.mu.Lock()
	text, ok := s.docs[string(params.TextDocument.URI)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(p *mathex.Parser) interface{} {
		return hoverFor(p, word)
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *Server) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	s.mu.Lock()
	text, ok := s.docs[string(params.TextDocument.URI)]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)

	result, err := s.worker.Do(func(p *mathex.Parser) interface{} {
		return completionsFor(p, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// hoverFor describes whatever binding word currently resolves to.
// Runs on the worker goroutine.
func hoverFor(p *mathex.Parser, word string) *protocol.Hover {
	if h, ok := p.LookupVariable(word); ok {
		return markdownHover(fmt.Sprintf("**%s**\n\nvariable, slot %d", word, h))
	}
	if v, ok := p.LookupConstant(word); ok {
		return markdownHover(fmt.Sprintf("**%s**\n\nconstant = `%g`", word, v))
	}
	if v, ok := p.LookupString(word); ok {
		return markdownHover(fmt.Sprintf("**%s**\n\nstring constant = %q", word, v))
	}
	if fn, ok := p.LookupFunction(word); ok {
		return markdownHover(fmt.Sprintf("**%s**\n\n%s", word, describeFunc(fn)))
	}
	return nil
}

func describeFunc(fn *bytecode.FuncBinding) string {
	arity := fmt.Sprintf("%d argument(s)", fn.Arity)
	if fn.Arity < 0 {
		arity = "variadic"
	}
	assoc := "left-assoc"
	if fn.Assoc == bytecode.AssocRight {
		assoc = "right-assoc"
	}
	if fn.Precedence > 0 {
		return fmt.Sprintf("operator, precedence %d, %s", fn.Precedence, assoc)
	}
	return "function, " + arity
}

func markdownHover(text string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: text,
		},
	}
}

// completionsFor lists every currently-defined name with a matching
// prefix. Runs on the worker goroutine.
func completionsFor(p *mathex.Parser, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lower := strings.ToLower(prefix)

	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(name), lower) {
			return
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	for _, name := range p.DefinedVariables() {
		add(name, protocol.CompletionItemKindVariable, "variable")
	}
	for _, name := range p.DefinedConstants() {
		add(name, protocol.CompletionItemKindConstant, "constant")
	}
	for _, name := range p.DefinedFunctions() {
		add(name, protocol.CompletionItemKindFunction, "function")
	}

	const maxItems = 200
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// --- diagnostics ---

// publishDiagnostics recompiles every non-blank line of text as a
// standalone expression and reports every compile failure. Bare
// identifiers seen anywhere in the document are pre-declared as
// variables first, so an earlier line's assignment-style use of a
// name doesn't make a later line referencing it look unassignable.
func (s *Server) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(p *mathex.Parser) interface{} {
		return compileDocument(p, text)
	})
	if err != nil {
		return
	}
	diagnostics, _ := result.([]protocol.Diagnostic)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func compileDocument(p *mathex.Parser, text string) []protocol.Diagnostic {
	lines := strings.Split(text, "\n")

	known := make(map[string]bool)
	for _, name := range p.DefinedVariables() {
		known[name] = true
	}
	for _, line := range lines {
		for _, name := range identifiersIn(line) {
			if known[name] {
				continue
			}
			if _, err := p.DefineVar(name); err == nil {
				known[name] = true
			}
		}
	}

	var diagnostics []protocol.Diagnostic
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := p.SetExpression(line); err != nil {
			diagnostics = append(diagnostics, diagnosticFor(i, line, err))
		}
	}
	return diagnostics
}

func diagnosticFor(lineIdx int, line string, err error) protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName

	var col, length int
	var mathErr *errs.Error
	if errors.As(err, &mathErr) && mathErr.Pos > 0 {
		col = mathErr.Pos - 1
		length = len([]rune(mathErr.Token))
	}
	if length == 0 {
		length = 1
	}

	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(lineIdx), Character: protocol.UInteger(col)},
			End:   protocol.Position{Line: protocol.UInteger(lineIdx), Character: protocol.UInteger(col + length)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
}

// --- text extraction ---

func identifiersIn(expr string) []string {
	var names []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			names = append(names, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_':
			cur.WriteRune(r)
		case r >= '0' && r <= '9' && cur.Len() > 0:
			cur.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return names
}

func extractPrefix(text string, pos protocol.Position) string {
	line, col := lineAt(text, pos)
	if line == "" && col == 0 {
		return ""
	}
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	return line[start:col]
}

func extractWord(text string, pos protocol.Position) string {
	line, col := lineAt(text, pos)
	start := col
	for start > 0 && isIdentByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isIdentByte(line[end]) {
		end++
	}
	if start == end {
		return ""
	}
	return line[start:end]
}

func isIdentByte(b byte) bool {
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func lineAt(text string, pos protocol.Position) (string, int) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col
}

func boolPtr(b bool) *bool { return &b }
