package serp

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FranksOps/profilematch/internal/linkid"
)

//go:embed engines.yaml
var builtinEngines []byte

// DefaultEngines are queried when no engines are configured. The first two
// are the pair that gets reconciled.
var DefaultEngines = []string{"google", "bing"}

type engineFile struct {
	Engines []engineEntry `yaml:"engines"`
}

// engineEntry is an EngineSpec as written in yaml. Style is a pointer so an
// override can leave it unset.
type engineEntry struct {
	Name         string        `yaml:"name"`
	HomeURL      string        `yaml:"home_url"`
	FormSelector string        `yaml:"form_selector"`
	QueryField   string        `yaml:"query_field"`
	SubmitName   string        `yaml:"submit_name"`
	LinkPattern  string        `yaml:"link_pattern"`
	Style        *linkid.Style `yaml:"style"`
}

// Catalog is a set of engine definitions keyed by name.
type Catalog struct {
	specs map[string]EngineSpec
	order []string
}

// BuiltinCatalog returns the compiled-in engine definitions.
func BuiltinCatalog() (*Catalog, error) {
	c := &Catalog{specs: make(map[string]EngineSpec)}
	if err := c.Merge(bytes.NewReader(builtinEngines)); err != nil {
		return nil, fmt.Errorf("builtin engines: %w", err)
	}
	return c, nil
}

// LoadCatalog returns the built-in definitions overlaid with the engines in
// path. An empty path returns the built-ins.
func LoadCatalog(path string) (*Catalog, error) {
	c, err := BuiltinCatalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine file: %w", err)
	}
	defer f.Close()

	if err := c.Merge(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Merge adds or replaces engines from a yaml document. Fields a replacement
// leaves empty keep the existing definition's value.
func (c *Catalog) Merge(r io.Reader) error {
	var ef engineFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ef); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode engines: %w", err)
	}

	for _, e := range ef.Engines {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		old, exists := c.specs[name]
		s := overlay(old, e)
		s.Name = name
		if err := s.Validate(); err != nil {
			return err
		}
		if !exists {
			c.order = append(c.order, name)
		}
		c.specs[name] = s
	}
	return nil
}

func overlay(base EngineSpec, s engineEntry) EngineSpec {
	if s.HomeURL != "" {
		base.HomeURL = s.HomeURL
	}
	if s.FormSelector != "" {
		base.FormSelector = s.FormSelector
	}
	if s.QueryField != "" {
		base.QueryField = s.QueryField
	}
	if s.SubmitName != "" {
		base.SubmitName = s.SubmitName
	}
	if s.LinkPattern != "" {
		base.LinkPattern = s.LinkPattern
	}
	if s.Style != nil {
		base.Style = *s.Style
	}
	return base
}

// Get returns the named engine definition.
func (c *Catalog) Get(name string) (EngineSpec, bool) {
	s, ok := c.specs[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Names returns engine names in definition order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Select returns the named definitions in the order given.
func (c *Catalog) Select(names []string) ([]EngineSpec, error) {
	out := make([]EngineSpec, 0, len(names))
	for _, n := range names {
		s, ok := c.Get(n)
		if !ok {
			return nil, fmt.Errorf("unknown engine %q (known: %s)", n, strings.Join(c.order, ", "))
		}
		out = append(out, s)
	}
	return out, nil
}
