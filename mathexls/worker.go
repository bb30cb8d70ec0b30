package mathexls

import (
	"fmt"

	"github.com/chazu/mathex"
)

// evalRequest represents a unit of work to be executed on the parser
// goroutine.
type evalRequest struct {
	fn   func(*mathex.Parser) interface{}
	done chan evalResult
}

// evalResult holds the return value from a parser operation.
type evalResult struct {
	value interface{}
	err   error
}

// evalWorker serializes all access to a *mathex.Parser through a
// single goroutine. A Parser is not safe for concurrent use (its own
// doc comment says so), and the LSP server otherwise receives
// DidChange, Hover, and Completion requests concurrently.
type evalWorker struct {
	parser   *mathex.Parser
	requests chan evalRequest
	quit     chan struct{}
}

// newEvalWorker creates an evalWorker and starts its processing
// goroutine.
func newEvalWorker(p *mathex.Parser) *evalWorker {
	w := &evalWorker{
		parser:   p,
		requests: make(chan evalRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *evalWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

func (w *evalWorker) execute(fn func(*mathex.Parser) interface{}) evalResult {
	var result evalResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.parser)
	}()
	return result
}

// Do submits fn for execution on the parser goroutine and blocks
// until it completes.
func (w *evalWorker) Do(fn func(*mathex.Parser) interface{}) (interface{}, error) {
	req := evalRequest{fn: fn, done: make(chan evalResult, 1)}
	w.requests <- req
	result := <-req.done
	return result.value, result.err
}

// Stop shuts down the worker goroutine.
func (w *evalWorker) Stop() {
	close(w.quit)
}
