package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/evidensys/padessign"
)

// VerifyCommand verifies a signed PDF and prints the report as JSON.
func VerifyCommand() {
	verifyFlags := flag.NewFlagSet("verify", flag.ExitOnError)

	var configFile string
	verifyFlags.StringVar(&configFile, "config", "", "Path to a toml configuration file")

	verifyFlags.Usage = func() {
		fmt.Printf("Usage: %s verify [options] <input.pdf>\n\n", os.Args[0])
		fmt.Println("Verify the digital signature of a PDF file")
		fmt.Println("\nOptions:")
		verifyFlags.PrintDefaults()
	}

	if err := verifyFlags.Parse(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}
	if verifyFlags.NArg() < 1 {
		verifyFlags.Usage()
		osExit(1)
		return
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	input, err := os.ReadFile(verifyFlags.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	workflow := padessign.New(cfg, nil)
	report, err := workflow.Verify(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	if !report.CryptographicallyValid {
		osExit(2)
	}
}
