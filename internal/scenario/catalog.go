// Package scenario holds the crisis scenario catalog and the keyword matcher
// that picks a scenario for a free-text description.
package scenario

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/raphaelgruber/wspiernik/internal/parser"
)

//go:embed seed/*.md
var seedFS embed.FS

// Definition is an immutable crisis scenario: trigger keywords, a fixed
// sequence of follow-up questions and a prompt template.
type Definition struct {
	Key       string
	Name      string
	Order     int
	Keywords  []string
	Questions []string
	// Prompt may contain {facts_json}, replaced with the known facts.
	Prompt string
}

// RenderPrompt fills the template placeholders.
func (d Definition) RenderPrompt(factsJSON string) string {
	return strings.ReplaceAll(d.Prompt, "{facts_json}", factsJSON)
}

// Catalog is an ordered, read-only set of scenario definitions.
type Catalog struct {
	defs  []Definition
	byKey map[string]int
}

// SeedFS returns the scenario files shipped with the binary.
func SeedFS() (fs.FS, error) {
	sub, err := fs.Sub(seedFS, "seed")
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	return sub, nil
}

// Default loads the scenarios shipped with the binary.
func Default() (*Catalog, error) {
	sub, err := SeedFS()
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// Load reads every *.md file at the root of fsys. Definitions are ordered by
// their "order" frontmatter field, then by key.
func Load(fsys fs.FS, extra ...fs.FS) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]int)}
	for _, src := range append([]fs.FS{fsys}, extra...) {
		entries, err := fs.ReadDir(src, ".")
		if err != nil {
			return nil, fmt.Errorf("read scenario dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || path.Ext(e.Name()) != ".md" {
				continue
			}
			raw, err := fs.ReadFile(src, e.Name())
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", e.Name(), err)
			}
			def, err := parseDefinition(string(raw))
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
			}
			c.put(def)
		}
	}

	sort.SliceStable(c.defs, func(i, j int) bool {
		if c.defs[i].Order != c.defs[j].Order {
			return c.defs[i].Order < c.defs[j].Order
		}
		return c.defs[i].Key < c.defs[j].Key
	})
	for i, d := range c.defs {
		c.byKey[d.Key] = i
	}
	return c, nil
}

// put adds def, replacing an earlier definition with the same key.
func (c *Catalog) put(def Definition) {
	if i, ok := c.byKey[def.Key]; ok {
		c.defs[i] = def
		return
	}
	c.byKey[def.Key] = len(c.defs)
	c.defs = append(c.defs, def)
}

// frontmatter is the metadata block of a scenario file.
type frontmatter struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Order    *int     `yaml:"order"`
	Keywords []string `yaml:"keywords"`
}

const defaultOrder = 100

func parseDefinition(content string) (Definition, error) {
	var fm frontmatter
	doc, err := parser.Parse(content, &fm)
	if err != nil {
		return Definition{}, err
	}
	def := Definition{
		Key:      strings.TrimSpace(fm.Key),
		Name:     fm.Name,
		Order:    defaultOrder,
		Keywords: fm.Keywords,
	}
	if def.Name == "" {
		def.Name = doc.Title
	}
	if fm.Order != nil {
		def.Order = *fm.Order
	}
	if def.Key == "" {
		return Definition{}, fmt.Errorf("missing key")
	}
	if len(def.Keywords) == 0 {
		return Definition{}, fmt.Errorf("scenario %s has no keywords", def.Key)
	}
	if s, ok := doc.Section("Questions"); ok {
		def.Questions = parser.ListItems(s.Content)
	}
	if len(def.Questions) == 0 {
		return Definition{}, fmt.Errorf("scenario %s has no questions", def.Key)
	}
	if s, ok := doc.Section("Prompt"); ok {
		def.Prompt = s.Content
	}
	return def, nil
}

// All returns the definitions in enumeration order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get returns the definition with the given key.
func (c *Catalog) Get(key string) (Definition, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}
