// mathex is a REPL/batch evaluator for expressions, built on top of
// the mathex package and the presets.RegisterStandard function set.
//
// Usage:
//
//	mathex eval '<expr>' [-var name=value ...]
//	mathex repl [-db path]
//	mathex bulk '<expr>' -var name=a,b,c ...
//	mathex dump '<expr>' [-format text|cbor]
//	mathex history [-db path] [-session id]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chazu/mathex"
	"github.com/chazu/mathex/bytecode"
	"github.com/chazu/mathex/internal/disasm"
	"github.com/chazu/mathex/mathexhist"
	"github.com/chazu/mathex/presets"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	switch cmd {
	case "eval":
		code = cmdEval(args)
	case "repl":
		code = cmdRepl(args)
	case "bulk":
		code = cmdBulk(args)
	case "dump":
		code = cmdDump(args)
	case "history":
		code = cmdHistory(args)
	case "-h", "--help", "help":
		usage()
		code = 0
	default:
		fmt.Fprintf(os.Stderr, "mathex: unknown command %q\n", cmd)
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  mathex eval '<expr>' [-var name=value ...]
  mathex repl [-db path]
  mathex bulk '<expr>' -var name=a,b,c [-var name2=...]
  mathex dump '<expr>' [-format text|cbor]
  mathex history [-db path] [-session id]
`)
}

// varFlags collects repeated -var name=value flags into a map.
type varFlags map[string]string

func (v varFlags) String() string { return "" }

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[name] = value
	return nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mathex_history.db"
	}
	return filepath.Join(home, ".mathex_history.db")
}

// newEvaluator returns a Parser with the standard preset registered,
// ready to have variables defined and an expression set.
func newEvaluator() *mathex.Parser {
	p := mathex.New()
	if err := presets.RegisterStandard(p); err != nil {
		fmt.Fprintf(os.Stderr, "mathex: registering standard presets: %v\n", err)
		os.Exit(1)
	}
	return p
}

// defineVars declares each -var name in p and returns the value each
// handle should be set to, so the caller fills a slots slice once
// compilation (and therefore VarSlotCount) is final.
func defineVars(p *mathex.Parser, raw varFlags) (map[bytecode.VarHandle]float64, error) {
	vals := make(map[bytecode.VarHandle]float64, len(raw))
	for name, text := range raw {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("-var %s: %w", name, err)
		}
		h, err := p.DefineVar(name)
		if err != nil {
			return nil, err
		}
		vals[h] = v
	}
	return vals, nil
}

func cmdEval(args []string) int {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	var vars varFlags = make(varFlags)
	fs.Var(vars, "var", "name=value, repeatable")
	fs.Parse(args)

	// Flags may also follow the expression.
	rest := fs.Args()
	if len(rest) > 0 {
		fs.Parse(rest[1:])
	}
	if len(rest) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "mathex eval: expected exactly one expression argument")
		return 2
	}
	expr := rest[0]

	p := newEvaluator()
	varVals, err := defineVars(p, vars)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathex:", err)
		return 1
	}
	if err := p.SetExpression(expr); err != nil {
		fmt.Fprintln(os.Stderr, "mathex: compile error:", err)
		return 1
	}
	slots := make([]float64, p.VarSlotCount())
	for h, v := range varVals {
		slots[h] = v
	}

	results, err := p.EvalAll(slots)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathex: eval error:", err)
		return 1
	}
	printResults(os.Stdout, results)
	return 0
}

func printResults(w *os.File, results []float64) {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = strconv.FormatFloat(r, 'g', -1, 64)
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

func cmdRepl(args []string) int {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	dbPath := fs.String("db", defaultHistoryPath(), "history database path")
	fs.Parse(args)

	store, err := mathexhist.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathex: opening history db:", err)
		return 1
	}
	defer store.Close()

	sessionID := uuid.New().String()
	p := newEvaluator()
	knownVars := map[string]bool{}

	fmt.Printf("mathex REPL (session %s, type 'exit' to quit)\n", sessionID)
	scanner := bufio.NewScanner(os.Stdin)
	seq := 0
	for {
		fmt.Print(">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		for _, name := range identifiersIn(line) {
			if !knownVars[name] {
				if _, err := p.DefineVar(name); err == nil {
					knownVars[name] = true
				}
			}
		}

		if err := p.SetExpression(line); err != nil {
			fmt.Println("error:", err)
			continue
		}
		results, err := p.EvalAll(make([]float64, p.VarSlotCount()))
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		printResults(os.Stdout, results)
		if err := store.Record(sessionID, seq, line, results); err != nil {
			fmt.Fprintln(os.Stderr, "mathex: recording history:", err)
		}
		seq++
	}
	fmt.Println()
	return 0
}

// identifiersIn is a permissive best-effort scan for bare-word
// identifiers, used by the REPL to pre-declare "a=1" style variable
// assignments before compiling: the compiler itself rejects unknown
// identifiers rather than auto-declaring them.
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

func cmdBulk(args []string) int {
	fs := flag.NewFlagSet("bulk", flag.ExitOnError)
	var vars varFlags = make(varFlags)
	fs.Var(vars, "var", "name=v1,v2,v3,...  repeatable")
	fs.Parse(args)

	// Flags may also follow the expression.
	rest := fs.Args()
	if len(rest) > 0 {
		fs.Parse(rest[1:])
	}
	if len(rest) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "mathex bulk: expected exactly one expression argument")
		return 2
	}
	expr := rest[0]

	p := newEvaluator()
	columns := make(map[bytecode.VarHandle][]float64, len(vars))
	n := -1
	for name, csv := range vars {
		h, err := p.DefineVar(name)
		if err != nil {
			fmt.Fprintln(os.Stderr, "mathex:", err)
			return 1
		}
		vals, err := parseFloatCSV(csv)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mathex: -var %s: %v\n", name, err)
			return 1
		}
		if n == -1 {
			n = len(vals)
		} else if len(vals) != n {
			fmt.Fprintf(os.Stderr, "mathex: -var %s has %d values, want %d\n", name, len(vals), n)
			return 1
		}
		columns[h] = vals
	}
	if n <= 0 {
		fmt.Fprintln(os.Stderr, "mathex bulk: at least one -var column is required")
		return 2
	}

	if err := p.SetExpression(expr); err != nil {
		fmt.Fprintln(os.Stderr, "mathex: compile error:", err)
		return 1
	}

	matrix := make([][]float64, p.VarSlotCount())
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for h, vals := range columns {
		matrix[h] = vals
	}

	out := make([]float64, n)
	if err := p.EvalBulk(matrix, n, out); err != nil {
		fmt.Fprintln(os.Stderr, "mathex: bulk eval error:", err)
		return 1
	}
	for _, v := range out {
		fmt.Println(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return 0
}

func parseFloatCSV(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	vals := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func cmdDump(args []string) int {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	format := fs.String("format", "text", "output format: text or cbor")
	fs.Parse(args)

	// Flags may also follow the expression.
	rest := fs.Args()
	if len(rest) > 0 {
		fs.Parse(rest[1:])
	}
	if len(rest) == 0 || fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "mathex dump: expected exactly one expression argument")
		return 2
	}
	expr := rest[0]

	p := newEvaluator()
	if err := p.SetExpression(expr); err != nil {
		fmt.Fprintln(os.Stderr, "mathex: compile error:", err)
		return 1
	}

	switch *format {
	case "text":
		text, err := p.Disassemble()
		if err != nil {
			fmt.Fprintln(os.Stderr, "mathex:", err)
			return 1
		}
		fmt.Print(text)
	case "cbor":
		prog, err := p.CompiledProgram()
		if err != nil {
			fmt.Fprintln(os.Stderr, "mathex: compile error:", err)
			return 1
		}
		trace := disasm.NewTrace(expr, prog)
		data, err := trace.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, "mathex: encoding cbor:", err)
			return 1
		}
		os.Stdout.Write(data)
	default:
		fmt.Fprintf(os.Stderr, "mathex dump: unknown format %q\n", *format)
		return 2
	}
	return 0
}

func cmdHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dbPath := fs.String("db", defaultHistoryPath(), "history database path")
	session := fs.String("session", "", "restrict to one session id")
	fs.Parse(args)

	store, err := mathexhist.Open(*dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathex: opening history db:", err)
		return 1
	}
	defer store.Close()

	var entries []mathexhist.Entry
	if *session != "" {
		entries, err = store.Session(*session)
	} else {
		entries, err = store.Recent(100)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathex: reading history:", err)
		return 1
	}

	for _, e := range entries {
		fmt.Printf("%s [%s#%d] %s => %v\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.SessionID, e.Seq, e.Expr, e.Results)
	}
	return 0
}
