package matcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"larder/internal/textutil"
)

const (
	nameConfidence     = 1.0
	aliasConfidence    = 0.95
	singularConfidence = 0.85
)

// Entry is one catalog ingredient.
type Entry struct {
	ID      string   `toml:"id"`
	Name    string   `toml:"name"`
	Aliases []string `toml:"aliases"`
}

type catalogFile struct {
	Ingredient []Entry `toml:"ingredient"`
}

type hit struct {
	entry      *Entry
	confidence float64
}

// Catalog matches lines by exact lookup of folded names and aliases.
type Catalog struct {
	entries []Entry
	byID    map[string]*Entry
	index   map[string]hit
}

// LoadCatalog reads a catalog file of [[ingredient]] tables.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog TOML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&file); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("parse catalog: line %d column %d: %w", row, col, err)
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(file.Ingredient)
}

// NewCatalog indexes entries. Entries without an id get one derived from the
// name. Duplicate ids, or a name or alias claimed by two entries, are errors.
func NewCatalog(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]*Entry, len(entries)),
		index:   make(map[string]hit, len(entries)*2),
	}
	copy(c.entries, entries)
	for i := range c.entries {
		e := &c.entries[i]
		e.Name = textutil.CleanName(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("catalog entry %d: name is required", i+1)
		}
		if strings.TrimSpace(e.ID) == "" {
			e.ID = textutil.SanitizeToken(e.Name)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate id", e.ID)
		}
		c.byID[e.ID] = e
		if err := c.add(e.Name, e, nameConfidence); err != nil {
			return nil, err
		}
		for _, alias := range e.Aliases {
			if err := c.add(alias, e, aliasConfidence); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Catalog) add(name string, e *Entry, confidence float64) error {
	key := textutil.FoldName(name)
	if key == "" {
		return nil
	}
	if existing, ok := c.index[key]; ok && existing.entry.ID != e.ID {
		return fmt.Errorf("catalog name %q maps to both %q and %q", name, existing.entry.ID, e.ID)
	}
	c.index[key] = hit{entry: e, confidence: confidence}
	return nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup returns the entry with id.
func (c *Catalog) Lookup(id string) (Entry, bool) {
	e, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Match resolves req against the catalog. When the ingredient stage already
// ran, only the measure is parsed and the existing ingredient is echoed back.
func (c *Catalog) Match(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	line := textutil.FirstNonEmpty(req.CleanedName, req.RawName)
	m := splitMeasure(textutil.FoldName(line))

	var result Result
	if m.unit != nil {
		result.Unit = m.unit
		conf := unitConfidence
		result.UnitConfidence = &conf
	}
	if m.quantity != nil {
		result.Quantity = m.quantity
		conf := quantityConfidence
		result.QuantityConfidence = &conf
	}

	if req.ResolvedIngredientID != "" {
		result.IngredientID = req.ResolvedIngredientID
		result.Confidence = 1
		if e, ok := c.byID[req.ResolvedIngredientID]; ok {
			result.CanonicalName = e.Name
		}
		return result, nil
	}

	h, ok := c.find(m.name)
	if !ok {
		return Result{}, fmt.Errorf("%w for %q", ErrNoMatch, line)
	}
	result.IngredientID = h.entry.ID
	result.CanonicalName = h.entry.Name
	result.Confidence = h.confidence
	return result, nil
}

func (c *Catalog) find(name string) (hit, bool) {
	name = strings.Trim(name, " ,.;:-")
	if h, ok := c.index[name]; ok {
		return h, true
	}
	for _, suffix := range []string{"es", "s"} {
		if base, ok := strings.CutSuffix(name, suffix); ok && base != "" {
			if h, ok := c.index[base]; ok {
				return hit{entry: h.entry, confidence: min(h.confidence, singularConfidence)}, true
			}
		}
	}
	return hit{}, false
}
