// Package checklist supplies the ordered checklist items for each equipment
// category from a static, versioned catalog.
package checklist

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"gopkg.in/yaml.v3"

	"github.com/ukydev/fleet-safety/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownCategory is returned for a category the catalog does not define.
var ErrUnknownCategory = errors.New("unknown equipment category")

// TemplateItem is one catalog row.
type TemplateItem struct {
	Slug               string                `yaml:"slug"`
	Category           string                `yaml:"category"`
	Name               string                `yaml:"name"`
	SafetyCritical     bool                  `yaml:"safety_critical"`
	Compliance         bool                  `yaml:"compliance"`
	ComplianceStandard string                `yaml:"compliance_standard"`
	SeverityOnFail     models.DefectSeverity `yaml:"severity_on_fail"`
}

// Template is the ordered item list for one category.
type Template struct {
	Key     string         `yaml:"-"`
	Version string         `yaml:"-"`
	Name    string         `yaml:"name"`
	Items   []TemplateItem `yaml:"items"`
}

type catalogFile struct {
	Version   string              `yaml:"version"`
	Templates map[string]Template `yaml:"templates"`
	Quick     Template            `yaml:"quick"`
}

// Provider serves templates. It is read-only after construction and safe for
// concurrent use.
type Provider struct {
	version   string
	templates map[string]Template
	quick     Template
}

// NewProvider loads the embedded catalog.
func NewProvider() (*Provider, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// Load parses a catalog document.
func Load(r io.Reader) (*Provider, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode checklist catalog: %w", err)
	}
	if file.Version == "" {
		return nil, errors.New("checklist catalog: version is required")
	}

	p := &Provider{version: file.Version, templates: make(map[string]Template, len(file.Templates))}
	for key, tpl := range file.Templates {
		tpl.Key, tpl.Version = key, file.Version
		if err := tpl.validate(); err != nil {
			return nil, err
		}
		p.templates[key] = tpl
	}

	file.Quick.Key, file.Quick.Version = "driver_quick", file.Version
	if err := file.Quick.validate(); err != nil {
		return nil, err
	}
	for _, it := range file.Quick.Items {
		if it.Slug == "" {
			return nil, fmt.Errorf("checklist catalog: quick item %q has no slug", it.Name)
		}
	}
	p.quick = file.Quick
	return p, nil
}

func (t Template) validate() error {
	if len(t.Items) == 0 {
		return fmt.Errorf("checklist catalog: template %q has no items", t.Key)
	}
	seen := make(map[string]bool)
	for _, it := range t.Items {
		if it.Name == "" || it.Category == "" {
			return fmt.Errorf("checklist catalog: template %q has an item without name or category", t.Key)
		}
		if it.SeverityOnFail != "" && !it.SeverityOnFail.IsDefect() {
			return fmt.Errorf("checklist catalog: template %q item %q: invalid severity_on_fail %q", t.Key, it.Name, it.SeverityOnFail)
		}
		if it.Slug != "" {
			if seen[it.Slug] {
				return fmt.Errorf("checklist catalog: template %q has duplicate slug %q", t.Key, it.Slug)
			}
			seen[it.Slug] = true
		}
	}
	return nil
}

// Version returns the catalog version.
func (p *Provider) Version() string {
	return p.version
}

// Categories lists the equipment categories in the catalog.
func (p *Provider) Categories() []string {
	keys := make([]string, 0, len(p.templates))
	for k := range p.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Template returns the template for an equipment category.
func (p *Provider) Template(category string) (Template, error) {
	tpl, ok := p.templates[category]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return tpl, nil
}

// QuickTemplate returns the eight-item driver quick check.
func (p *Provider) QuickTemplate() Template {
	return p.quick
}

// Slugs lists the item slugs of the template in order.
func (t Template) Slugs() []string {
	out := make([]string, 0, len(t.Items))
	for _, it := range t.Items {
		if it.Slug != "" {
			out = append(out, it.Slug)
		}
	}
	return out
}

// Instantiate builds fresh pending items in catalog order.
func (t Template) Instantiate() []models.InspectionItem {
	items := make([]models.InspectionItem, len(t.Items))
	for i, it := range t.Items {
		items[i] = models.InspectionItem{
			ID:                 primitive.NewObjectID(),
			Category:           it.Category,
			Name:               it.Name,
			Slug:               it.Slug,
			Sequence:           i + 1,
			Result:             models.ItemResultPending,
			SeverityOnFail:     it.SeverityOnFail,
			SafetyCritical:     it.SafetyCritical,
			Compliance:         it.Compliance,
			ComplianceStandard: it.ComplianceStandard,
		}
	}
	return items
}
