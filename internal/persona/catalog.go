package persona

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrUnknownPersona viene restituito quando un id non è nel catalogo
var ErrUnknownPersona = errors.New("unknown persona")

// Catalog è la tabella read-only delle persona disponibili
type Catalog struct {
	byID  map[string]PersonaConfig
	order []string
}

// NewCatalog crea un catalogo validando ogni persona.
// L'ordine di dichiarazione è preservato.
func NewCatalog(personas ...PersonaConfig) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one persona")
	}

	c := &Catalog{
		byID:  make(map[string]PersonaConfig, len(personas)),
		order: make([]string, 0, len(personas)),
	}

	for _, p := range personas {
		if err := p.compile(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate persona id %q", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}

	return c, nil
}

// Lookup restituisce la persona con l'id indicato
func (c *Catalog) Lookup(id string) (PersonaConfig, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// MustLookup restituisce la persona o va in panic se l'id non esiste.
// Da usare solo con id provenienti da IDs().
func (c *Catalog) MustLookup(id string) PersonaConfig {
	p, ok := c.byID[id]
	if !ok {
		panic(fmt.Sprintf("%v: %q", ErrUnknownPersona, id))
	}
	return p
}

// IDs restituisce gli id in ordine di dichiarazione
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// All restituisce tutte le persona in ordine di dichiarazione
func (c *Catalog) All() []PersonaConfig {
	out := make([]PersonaConfig, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len restituisce il numero di persona nel catalogo
func (c *Catalog) Len() int {
	return len(c.order)
}

// catalogFile è il formato del file YAML delle persona
type catalogFile struct {
	Personas []PersonaConfig `yaml:"personas"`
}

// LoadFile carica un catalogo da file YAML
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}
	return Parse(data)
}

// Parse costruisce un catalogo da un documento YAML
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}
	return NewCatalog(f.Personas...)
}

// Load restituisce il catalogo dal file indicato, o quello di default se path è vuoto
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
