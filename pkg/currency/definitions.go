package currency

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultDefinitions []byte

// Definitions is a set of currencies keyed by locale
type Definitions map[string]PaymentCurrency

type definitionsFile struct {
	Currencies []PaymentCurrency `yaml:"currencies"`
}

// LoadDefinitions parses YAML currency definitions.
// Fields omitted in the document take the column defaults.
func LoadDefinitions(r io.Reader) (Definitions, error) {
	var raw struct {
		Currencies []yaml.Node `yaml:"currencies"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if err == io.EOF {
			return Definitions{}, nil
		}
		return nil, fmt.Errorf("failed to decode currency definitions: %w", err)
	}

	defs := make(Definitions, len(raw.Currencies))
	for i, node := range raw.Currencies {
		c := New("", "", "")
		if err := node.Decode(&c); err != nil {
			return nil, fmt.Errorf("currency %d: %w", i, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("currency %d (%s): %w", i, c.Locale, err)
		}
		if _, exists := defs[c.Locale]; exists {
			return nil, fmt.Errorf("duplicate currency locale: %s", c.Locale)
		}
		defs[c.Locale] = c
	}
	return defs, nil
}

// LoadDefinitionsFile reads definitions from path
func LoadDefinitionsFile(path string) (Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open currency definitions: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f)
}

// DefaultDefinitions returns the built-in currency set
func DefaultDefinitions() Definitions {
	defs, err := LoadDefinitions(bytes.NewReader(defaultDefinitions))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded currency definitions: %v", err))
	}
	return defs
}

// Lookup returns the currency for a locale
func (d Definitions) Lookup(locale string) (PaymentCurrency, bool) {
	c, ok := d[locale]
	return c, ok
}

// Sorted returns the currencies ordered by locale
func (d Definitions) Sorted() []PaymentCurrency {
	out := make([]PaymentCurrency, 0, len(d))
	for _, c := range d {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Locale < out[j].Locale })
	return out
}

// Marshal encodes the definitions back to YAML
func (d Definitions) Marshal() ([]byte, error) {
	return yaml.Marshal(definitionsFile{Currencies: d.Sorted()})
}
