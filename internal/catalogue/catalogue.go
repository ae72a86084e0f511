// Package catalogue loads SLO definitions from YAML and validates them against
// a JSON schema before they are synced into the store.
package catalogue

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/apflow/ap-slo-engine/internal/models"
)

//go:embed default.yaml
var defaultCatalogue []byte

// namespace seeds deterministic SLO ids derived from names.
var namespace = uuid.MustParse("6f1c2a4e-9b7d-4c3e-8a51-2d0f7e6b9c14")

// ErrInvalidCatalogue wraps schema and semantic violations.
var ErrInvalidCatalogue = errors.New("invalid slo catalogue")

const schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["slos"],
  "additionalProperties": false,
  "properties": {
    "slos": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "sliType", "target", "errorBudgetPercentage", "alertingThresholdPercentage", "measurementPeriod"],
        "properties": {
          "id": {"type": "string", "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "sliType": {"enum": ["time_to_ready", "validation_pass_rate", "duplicate_recall", "approval_latency", "processing_success_rate", "extraction_accuracy", "exception_resolution_time"]},
          "target": {"type": "number", "exclusiveMinimum": 0},
          "targetUnit": {"type": "string"},
          "errorBudgetPercentage": {"type": "number", "minimum": 0, "maximum": 100},
          "alertingThresholdPercentage": {"type": "number", "minimum": 0, "maximum": 100},
          "measurementPeriod": {"enum": ["hourly", "daily", "weekly", "monthly", "quarterly"]},
          "burnRateAlertThreshold": {"type": "number", "minimum": 0},
          "active": {"type": "boolean"}
        }
      }
    }
  }
}`

// File is the on-disk catalogue document.
type File struct {
	SLOs []Entry `yaml:"slos"`
}

// Entry is one SLO as written in a catalogue file.
type Entry struct {
	ID                          string  `yaml:"id"`
	Name                        string  `yaml:"name"`
	Description                 string  `yaml:"description"`
	SLIType                     string  `yaml:"sliType"`
	Target                      float64 `yaml:"target"`
	TargetUnit                  string  `yaml:"targetUnit"`
	ErrorBudgetPercentage       float64 `yaml:"errorBudgetPercentage"`
	AlertingThresholdPercentage float64 `yaml:"alertingThresholdPercentage"`
	MeasurementPeriod           string  `yaml:"measurementPeriod"`
	BurnRateAlertThreshold      float64 `yaml:"burnRateAlertThreshold"`
	Active                      *bool   `yaml:"active"`
}

// Load reads the catalogue at path, or the built-in catalogue when path is empty.
func Load(path string) ([]models.SLODefinition, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// Default returns the built-in catalogue with one SLO per SLI type.
func Default() ([]models.SLODefinition, error) {
	return Parse(defaultCatalogue)
}

// Validate checks a raw document against the catalogue schema and returns
// human-readable violations. A nil slice means the document is valid.
func Validate(data []byte) ([]string, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if doc == nil {
		return []string{"(root): document is empty"}, nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate catalogue: %w", err)
	}
	var problems []string
	if !result.Valid() {
		problems = make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return problems, nil
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	names := make(map[string]struct{}, len(file.SLOs))
	ids := make(map[string]struct{}, len(file.SLOs))
	for i, entry := range file.SLOs {
		key := strings.ToLower(strings.TrimSpace(entry.Name))
		if _, dup := names[key]; dup {
			problems = append(problems, fmt.Sprintf("slos.%d.name: duplicate name %q", i, entry.Name))
		}
		names[key] = struct{}{}
		id := entryID(entry)
		if _, dup := ids[id]; dup {
			problems = append(problems, fmt.Sprintf("slos.%d.id: duplicate id %s", i, id))
		}
		ids[id] = struct{}{}
	}
	return problems, nil
}

// Parse validates data and converts it into definitions.
func Parse(data []byte) ([]models.SLODefinition, error) {
	problems, err := Validate(data)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalogue, strings.Join(problems, "; "))
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	defs := make([]models.SLODefinition, 0, len(file.SLOs))
	for _, entry := range file.SLOs {
		def, err := entry.definition()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalogue, entry.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// DefinitionID is the id assigned to a catalogue entry that does not carry one.
// It only depends on the name, so reloading the catalogue keeps ids stable.
func DefinitionID(name string) string {
	return uuid.NewSHA1(namespace, []byte(strings.ToLower(strings.TrimSpace(name)))).String()
}

func entryID(e Entry) string {
	if e.ID != "" {
		return strings.ToLower(e.ID)
	}
	return DefinitionID(e.Name)
}

func (e Entry) definition() (models.SLODefinition, error) {
	sliType, err := models.ParseSLIType(e.SLIType)
	if err != nil {
		return models.SLODefinition{}, err
	}
	period, err := models.ParseMeasurementPeriod(e.MeasurementPeriod)
	if err != nil {
		return models.SLODefinition{}, err
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return models.SLODefinition{
		ID:                          entryID(e),
		Name:                        strings.TrimSpace(e.Name),
		Description:                 e.Description,
		SLIType:                     sliType,
		TargetValue:                 e.Target,
		TargetUnit:                  e.TargetUnit,
		ErrorBudgetPercentage:       e.ErrorBudgetPercentage,
		AlertingThresholdPercentage: e.AlertingThresholdPercentage,
		MeasurementPeriod:           period,
		BurnRateAlertThreshold:      e.BurnRateAlertThreshold,
		IsActive:                    active,
	}, nil
}
