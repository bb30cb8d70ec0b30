// mathexls runs a language server for expression documents over
// stdio: one diagnostic pass per change, plus hover and completion
// against whatever names are currently registered.
//
// Usage:
//
//	mathexls
package main

import (
	"fmt"
	"os"

	"github.com/chazu/mathex/mathexls"
)

func main() {
	srv, err := mathexls.NewServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mathexls:", err)
		os.Exit(1)
	}
	if err := srv.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "mathexls:", err)
		os.Exit(1)
	}
}
