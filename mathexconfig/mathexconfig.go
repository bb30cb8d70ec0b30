// Package mathexconfig loads locale and character-class settings from
// TOML, mirroring the teacher's manifest package's Load/FindAndLoad
// shape but for a parser's locale knobs instead of a project manifest.
package mathexconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mathex"
	"github.com/chazu/mathex/errs"
)

// Config is the parsed contents of a mathex.toml file.
type Config struct {
	Locale  Locale  `toml:"locale"`
	Charset Charset `toml:"charset"`
}

// Locale configures the decimal and argument separators.
type Locale struct {
	DecimalSeparator  string `toml:"decimal_separator"`
	ArgumentSeparator string `toml:"argument_separator"`
}

// Charset configures the three character classes the token reader
// consults (spec.md §4.1).
type Charset struct {
	NameChars  string `toml:"name_chars"`
	OpChars    string `toml:"op_chars"`
	InfixChars string `toml:"infix_chars"`
}

// Load parses a mathex.toml file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the three character classes are non-empty and that
// the two separators differ, per spec.md §4.1/§6.
func (c *Config) Validate() error {
	if c.Charset.NameChars == "" || c.Charset.OpChars == "" || c.Charset.InfixChars == "" {
		return errs.New(errs.Locale, 0, "", "charset entries must be non-empty")
	}
	dec := []rune(c.Locale.DecimalSeparator)
	arg := []rune(c.Locale.ArgumentSeparator)
	if len(dec) != 1 || len(arg) != 1 {
		return errs.New(errs.Locale, 0, "", "decimal_separator and argument_separator must be single characters")
	}
	if dec[0] == arg[0] {
		return errs.New(errs.Locale, 0, string(dec[0]), "decimal_separator and argument_separator must differ")
	}
	return nil
}

// ApplyConfig pushes c into p's character-class and locale settings.
func ApplyConfig(p *mathex.Parser, c *Config) error {
	dec := []rune(c.Locale.DecimalSeparator)[0]
	arg := []rune(c.Locale.ArgumentSeparator)[0]
	if err := p.SetLocale(dec, arg); err != nil {
		return err
	}
	p.SetNameChars(c.Charset.NameChars)
	p.SetOpChars(c.Charset.OpChars)
	p.SetInfixChars(c.Charset.InfixChars)
	return nil
}
