package cli

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/evidensys/padessign"
	"github.com/evidensys/padessign/config"
	"github.com/evidensys/padessign/demo"
)

// SignCommand runs the whole workflow locally: prepare, pre-sign, sign the
// attribute DER with a PEM RSA key, finalize. It exists to demonstrate and
// exercise the pipeline; production signers keep the key in an HSM and only
// ever see the pre-sign output.
func SignCommand() {
	signFlags := flag.NewFlagSet("sign", flag.ExitOnError)

	var configFile string
	var keyFile string
	var certFile string
	var chainFile string
	var timestamp bool
	var tsaURL string
	var demoInput bool

	signFlags.StringVar(&configFile, "config", "", "Path to a toml configuration file")
	signFlags.StringVar(&keyFile, "key", "", "PEM RSA private key (demo signer)")
	signFlags.StringVar(&certFile, "cert", "", "PEM signer certificate")
	signFlags.StringVar(&chainFile, "chain", "", "PEM intermediate chain (optional)")
	signFlags.BoolVar(&timestamp, "timestamp", false, "Request an RFC 3161 token (B-T)")
	signFlags.StringVar(&tsaURL, "tsa", "", "Override the TSA URL")
	signFlags.BoolVar(&demoInput, "demo", false, "Generate a demo document instead of reading input.pdf")

	signFlags.Usage = func() {
		fmt.Printf("Usage: %s sign [options] <input.pdf> <output.pdf>\n\n", os.Args[0])
		fmt.Println("Sign a PDF file with a local RSA key")
		fmt.Println("\nOptions:")
		signFlags.PrintDefaults()
	}

	if err := signFlags.Parse(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	args := signFlags.Args()
	if (!demoInput && len(args) < 2) || (demoInput && len(args) < 1) {
		signFlags.Usage()
		osExit(1)
		return
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}
	if tsaURL != "" {
		cfg.TSA.URL = tsaURL
	}
	if timestamp {
		cfg.PDF.SignatureLevel = config.LevelBT
	}

	logger, _ := zap.NewProduction()
	defer func() {
		_ = logger.Sync()
	}()

	var input []byte
	output := args[len(args)-1]
	if demoInput {
		input = demo.Generate(demo.Options{
			SignerName: cfg.Info.SignerName,
			Location:   cfg.Info.Location,
			Reason:     cfg.Info.Reason,
		})
	} else {
		input, err = os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			osExit(1)
			return
		}
	}

	key, err := readRSAKey(keyFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}
	var chainPEM []byte
	if chainFile != "" {
		chainPEM, err = os.ReadFile(chainFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			osExit(1)
			return
		}
	}

	workflow := padessign.New(cfg, logger)

	prepared, err := workflow.Prepare(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	attrs, err := workflow.PreSign(prepared.MessageDigest, certPEM)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	signature, err := signAttributes(key, attrs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	result, err := workflow.Finalize(context.Background(), padessign.FinalizeInput{
		PreparedPDF:    prepared.Bytes,
		SignedAttrsDER: attrs,
		Signature:      signature,
		SignerCertPEM:  certPEM,
		ChainPEM:       chainPEM,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	if err := os.WriteFile(output, result.SignedPDF, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
		return
	}

	level := "B-B"
	if result.Timestamped {
		level = "B-T"
	}
	fmt.Printf("Signed %s (%s)\n", output, level)
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// signAttributes is the demo stand-in for the external signer: RSA PKCS#1
// v1.5 over SHA-256 of the attribute DER.
func signAttributes(key *rsa.PrivateKey, attrs []byte) ([]byte, error) {
	digest := sha256.Sum256(attrs)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

func readRSAKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("a -key file is required")
	}
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("key in %s does not parse: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not RSA", path)
	}
	return key, nil
}
