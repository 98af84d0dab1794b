// Package config holds the toml-backed runtime configuration of the signing
// workflow.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Levels accepted for the signature_level option.
const (
	LevelBB = "B-B"
	LevelBT = "B-T"
)

// Info is the human-facing signature metadata.
type Info struct {
	SignerName  string `toml:"signer_name"`
	Reason      string `toml:"reason"`
	Location    string `toml:"location"`
	ContactInfo string `toml:"contact_info"`
}

// TSA configures the time-stamp authority used for B-T signatures.
type TSA struct {
	URL            string `toml:"url"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// PDF configures document preparation.
type PDF struct {
	FieldName          string `toml:"field_name"`
	PlaceholderHexSize int    `toml:"placeholder_hex_size"`
	SignatureLevel     string `toml:"signature_level"`
}

// Chain configures AIA chain building and validation.
type Chain struct {
	MaxChainLength int      `toml:"max_chain_length"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	TrustedRoots   []string `toml:"trusted_roots"`

	// HintPatterns are the subject/issuer substrings that trigger AIA
	// chain autodiscovery when the caller supplies no chain.
	HintPatterns []string `toml:"hint_patterns"`
}

// Config is the root of the configuration.
type Config struct {
	Info  Info  `toml:"info"`
	TSA   TSA   `toml:"tsa"`
	PDF   PDF   `toml:"pdf"`
	Chain Chain `toml:"chain"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TSA: TSA{TimeoutSeconds: 10},
		PDF: PDF{
			FieldName:          "Signature1",
			PlaceholderHexSize: 16384,
			SignatureLevel:     LevelBB,
		},
		Chain: Chain{
			MaxChainLength: 10,
			TimeoutSeconds: 10,
			HintPatterns:   []string{"ASIP-SANTE", "IGC-SANTE", "CPS"},
		},
	}
}

// Load reads a toml file over the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := os.Stat(path); err != nil {
		return c, fmt.Errorf("config file is missing: %s", path)
	}
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return c, fmt.Errorf("config file does not parse: %w", err)
	}
	return c, nil
}
