// Package catalog holds model template definitions and seeds them into
// the run store.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/jdziat/durable-training/pkg/core"
	"github.com/jdziat/durable-training/pkg/security"
)

//go:embed templates.yaml
var builtinYAML []byte

// Field describes one tunable hyperparameter for display and validation.
type Field struct {
	Key     string   `yaml:"key" json:"key"`
	Label   string   `yaml:"label" json:"label"`
	Type    string   `yaml:"type" json:"type"`
	Default any      `yaml:"default" json:"default"`
	Min     *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Options []any    `yaml:"options,omitempty" json:"options,omitempty"`
	Info    string   `yaml:"info,omitempty" json:"info,omitempty"`
}

// Definition is one template as written in a catalog file.
type Definition struct {
	Name     string         `yaml:"name"`
	TaskType string         `yaml:"task_type"`
	Defaults map[string]any `yaml:"defaults"`
	Schema   []Field        `yaml:"schema"`
}

type file struct {
	Templates []Definition `yaml:"templates"`
}

// Builtin returns the templates shipped with trainerd.
func Builtin() []Definition {
	defs, err := Decode(bytes.NewReader(builtinYAML))
	if err != nil {
		panic(fmt.Sprintf("catalog: builtin templates: %v", err))
	}
	return defs
}

// LoadFile reads a YAML catalog.
func LoadFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	defs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Decode parses and validates a YAML catalog.
func Decode(r io.Reader) ([]Definition, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode template catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Templates))
	for _, d := range f.Templates {
		if err := security.ValidateTemplateName(d.Name); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("template %s defined twice", d.Name)
		}
		seen[d.Name] = true
		if d.TaskType == "" {
			return nil, fmt.Errorf("template %s has no task_type", d.Name)
		}
	}
	return f.Templates, nil
}

// Template converts d into its stored form.
func (d Definition) Template() (*core.Template, error) {
	schema, err := json.Marshal(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema of %s: %w", d.Name, err)
	}
	defaults := datatypes.JSONMap{}
	for k, v := range d.Defaults {
		defaults[k] = v
	}
	return &core.Template{
		Name:                   d.Name,
		TaskType:               d.TaskType,
		DefaultHyperparameters: defaults,
		Schema:                 datatypes.JSON(schema),
	}, nil
}

// TemplateSaver persists templates.
type TemplateSaver interface {
	SaveTemplate(ctx context.Context, tpl *core.Template) error
}

// Seed upserts defs into store. Existing templates of the same name are
// replaced, so seeding twice is a no-op.
func Seed(ctx context.Context, store TemplateSaver, defs []Definition) error {
	for _, d := range defs {
		tpl, err := d.Template()
		if err != nil {
			return err
		}
		if err := store.SaveTemplate(ctx, tpl); err != nil {
			return fmt.Errorf("seed template %s: %w", d.Name, err)
		}
	}
	return nil
}
