// Package cli implements the padessign command line: sign, verify and serve.
package cli

import (
	"fmt"
	"os"
)

// osExit is swapped in tests.
var osExit = os.Exit

// Usage prints the top-level help.
func Usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  sign    Sign a PDF file with a local key (demo flow)")
	fmt.Println("  verify  Verify a PDF signature")
	fmt.Println("  serve   Serve the signing workflow over HTTP")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

// Run dispatches the subcommand.
func Run() {
	if len(os.Args) < 2 {
		Usage()
		return
	}
	switch os.Args[1] {
	case "sign":
		SignCommand()
	case "verify":
		VerifyCommand()
	case "serve":
		ServeCommand()
	default:
		Usage()
	}
}
