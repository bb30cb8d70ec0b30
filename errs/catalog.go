package errs

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed catalog_en.toml
var defaultCatalogTOML []byte

// catalogFile mirrors the TOML layout: one table of message templates
// keyed by the code's snake_case name (see codeNames).
type catalogFile struct {
	Messages map[string]string `toml:"messages"`
}

func defaultTemplates() map[Code]string {
	tpls, err := parseCatalogTOML(defaultCatalogTOML)
	if err != nil {
		// The embedded catalogue ships with the package; a parse failure
		// here means the resource was corrupted at build time.
		panic(fmt.Sprintf("errs: embedded catalog_en.toml is invalid: %v", err))
	}
	return tpls
}

func parseCatalogTOML(data []byte) (map[Code]string, error) {
	var f catalogFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("errs: decode catalog: %w", err)
	}
	tpls := make(map[Code]string, len(codeNames))
	for code, name := range codeNames {
		msg, ok := f.Messages[name]
		if !ok {
			return nil, fmt.Errorf("errs: catalog missing message for %q", name)
		}
		tpls[code] = msg
	}
	return tpls, nil
}

// LoadCatalog reads a TOML message catalogue from path and returns a
// code-indexed template table suitable for SetCatalog. Every code must
// have an entry; a partial catalogue is rejected so a misconfigured
// locale file never silently falls back to "parser error" at runtime.
func LoadCatalog(path string) (map[Code]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("errs: read %s: %w", path, err)
	}
	return parseCatalogTOML(data)
}
