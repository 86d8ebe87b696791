// Package catalog serves the read-only task templates orders are created from.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/commentgig/backend/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is safe for concurrent use; it is never mutated after Load.
type Catalog struct {
	templates map[string]*models.TaskTemplate
	schemas   map[string]*jsonschema.Schema
	ids       []string
}

type fileTemplate struct {
	ID                 string             `yaml:"id"`
	Kind               models.TaskKind    `yaml:"kind"`
	Title              string             `yaml:"title"`
	UnitPrice          string             `yaml:"unit_price"`
	RequiredProofTypes []models.ProofType `yaml:"required_proof_types"`
	EstimatedMinutes   int                `yaml:"estimated_minutes"`
	ProofSchema        string             `yaml:"proof_schema"`
}

type file struct {
	Templates []fileTemplate `yaml:"templates"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalog from path; an empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %q: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		templates: make(map[string]*models.TaskTemplate, len(f.Templates)),
		schemas:   make(map[string]*jsonschema.Schema),
	}
	for _, ft := range f.Templates {
		if ft.ID == "" {
			return nil, fmt.Errorf("catalog: template without id")
		}
		if _, dup := c.templates[ft.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate template %q", ft.ID)
		}
		switch ft.Kind {
		case models.TaskKindComment, models.TaskKindAccountRental, models.TaskKindVideo:
		default:
			return nil, fmt.Errorf("catalog: template %q has unknown kind %q", ft.ID, ft.Kind)
		}
		price, err := decimal.NewFromString(ft.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("catalog: template %q unit_price: %w", ft.ID, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("catalog: template %q has negative unit_price", ft.ID)
		}
		for _, pt := range ft.RequiredProofTypes {
			if pt != models.ProofScreenshot && pt != models.ProofLink {
				return nil, fmt.Errorf("catalog: template %q has unknown proof type %q", ft.ID, pt)
			}
		}
		if ft.ProofSchema != "" {
			schema, err := jsonschema.CompileString("https://commentgig.dev/schemas/"+ft.ID+".proof", ft.ProofSchema)
			if err != nil {
				return nil, fmt.Errorf("compile proof schema %q: %w", ft.ID, err)
			}
			c.schemas[ft.ID] = schema
		}
		c.templates[ft.ID] = &models.TaskTemplate{
			ID:                 ft.ID,
			Kind:               ft.Kind,
			Title:              ft.Title,
			UnitPrice:          price,
			RequiredProofTypes: ft.RequiredProofTypes,
			EstimatedMinutes:   ft.EstimatedMinutes,
			ProofSchema:        ft.ProofSchema,
		}
		c.ids = append(c.ids, ft.ID)
	}
	sort.Strings(c.ids)
	return c, nil
}

// Template returns a copy of the template so callers cannot mutate the catalog.
func (c *Catalog) Template(id string) (models.TaskTemplate, bool) {
	t, ok := c.templates[id]
	if !ok {
		return models.TaskTemplate{}, false
	}
	cp := *t
	cp.RequiredProofTypes = append([]models.ProofType(nil), t.RequiredProofTypes...)
	return cp, true
}

func (c *Catalog) List() []models.TaskTemplate {
	out := make([]models.TaskTemplate, 0, len(c.ids))
	for _, id := range c.ids {
		t, _ := c.Template(id)
		out = append(out, t)
	}
	return out
}

// ValidateProof checks proof against the template's required artifacts and
// its metadata schema, if any.
func (c *Catalog) ValidateProof(templateID string, proof models.Proof) error {
	t, ok := c.templates[templateID]
	if !ok {
		return models.ErrInvalidTemplate
	}
	if t.Requires(models.ProofScreenshot) && proof.ScreenshotRef == "" {
		return fmt.Errorf("%w: screenshot", models.ErrIncompleteProof)
	}
	if t.Requires(models.ProofLink) {
		if proof.ReviewLink == "" {
			return fmt.Errorf("%w: review link", models.ErrIncompleteProof)
		}
		if !validLink(proof.ReviewLink) {
			return fmt.Errorf("%w: review link must be an absolute http(s) URL", models.ErrIncompleteProof)
		}
	}
	schema, ok := c.schemas[templateID]
	if !ok {
		return nil
	}
	if len(proof.Metadata) == 0 {
		return fmt.Errorf("%w: metadata", models.ErrIncompleteProof)
	}
	var doc interface{}
	if err := json.Unmarshal(proof.Metadata, &doc); err != nil {
		return fmt.Errorf("%w: metadata is not valid JSON", models.ErrIncompleteProof)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIncompleteProof, err)
	}
	return nil
}

func validLink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
