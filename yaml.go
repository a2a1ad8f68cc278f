package flowline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solenne/flowline/pkg/api"
)

// yamlDefinition is the YAML authoring shape of a workflow definition.
// Steps and triggers reuse the api types directly; the envelope differs
// slightly from the persisted form (start, default) to read naturally.
type yamlDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Tenant      string `yaml:"tenant"`
	SubjectType string `yaml:"subjectType"`
	Status      string `yaml:"status"`
	Default     bool   `yaml:"default"`

	Start    string        `yaml:"start"`
	Triggers []api.Trigger `yaml:"triggers"`
	Steps    []api.Step    `yaml:"steps"`
}

// ParseDefinitionYAML parses and validates a workflow definition from its
// YAML authoring form. The result has no ID or version; pass it to
// Engine.CreateDefinition to persist it.
func ParseDefinitionYAML(src []byte) (*api.WorkflowDefinition, error) {
	var doc yamlDefinition
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}

	status := api.DefinitionStatus(doc.Status)
	if doc.Status == "" {
		status = api.DefinitionDraft
	}

	start := doc.Start
	if start == "" && len(doc.Steps) > 0 {
		start = doc.Steps[0].ID
	}

	def := &api.WorkflowDefinition{
		Name:        doc.Name,
		Description: doc.Description,
		Tenant:      doc.Tenant,
		SubjectType: doc.SubjectType,
		Status:      status,
		IsDefault:   doc.Default,
		StartStepID: start,
		Triggers:    doc.Triggers,
		Steps:       doc.Steps,
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDefinitionFile reads and parses a workflow definition YAML file.
func LoadDefinitionFile(path string) (*api.WorkflowDefinition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	return ParseDefinitionYAML(src)
}
