package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/irts/internal/ir"
	"github.com/roach88/irts/internal/mapper"
)

// Scenario defines a reconciliation scenario.
// Steps run in order against a fresh store; assertions check the final
// state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules is an optional rule file (CUE or YAML), relative to the scenario
	// file. The built-in rules are used when empty.
	Rules string `yaml:"rules,omitempty"`

	// Unmapped is the unmapped field policy (drop or passthrough).
	Unmapped string `yaml:"unmapped,omitempty"`

	// Mappings and Transformations are written straight into the rule
	// tables after the rule file is seeded. They bypass rule validation, so
	// scenarios can exercise rules an operator edited by hand.
	Mappings        []Mapping        `yaml:"mappings,omitempty"`
	Transformations []Transformation `yaml:"transformations,omitempty"`

	// Steps are reconciliations or identity resolutions.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store state.
	Assertions []Assertion `yaml:"assertions"`
}

// Mapping is a raw mapping row.
type Mapping struct {
	Source   string `yaml:"source"`
	Field    string `yaml:"field"`
	Parent   string `yaml:"parent,omitempty"`
	Standard string `yaml:"standard"`
}

// Transformation is a raw transformation row.
type Transformation struct {
	Source    string `yaml:"source"`
	Field     string `yaml:"field"`
	Type      string `yaml:"type"`
	Parameter string `yaml:"parameter,omitempty"`
	Value     string `yaml:"value,omitempty"`
	Priority  int    `yaml:"priority,omitempty"`
}

// Step is one action of a scenario. A step with Resolve set runs the
// identity resolver; any other step reconciles a record.
type Step struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	ID     string `yaml:"id"`

	// Fields are raw source fields, mapped and transformed before
	// reconciliation. Tree is an already mapped tree. At most one is set;
	// a step with neither reconciles an empty record.
	Fields []FieldSpec `yaml:"fields,omitempty"`
	Tree   []NodeSpec  `yaml:"tree,omitempty"`

	// Payload is the raw document stored alongside the tree.
	Payload string `yaml:"payload,omitempty"`
	Format  string `yaml:"format,omitempty"`

	Resolve *ResolveSpec `yaml:"resolve,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// FieldSpec is a raw field in source vocabulary.
type FieldSpec struct {
	Name     string      `yaml:"name"`
	Value    string      `yaml:"value,omitempty"`
	Children []FieldSpec `yaml:"children,omitempty"`
}

// NodeSpec is a mapped tree node. Place is assigned by input order.
type NodeSpec struct {
	Field    string     `yaml:"field"`
	Value    *string    `yaml:"value,omitempty"`
	Children []NodeSpec `yaml:"children,omitempty"`
}

// ResolveSpec holds the identity attributes of a candidate. The
// candidate's source and id come from the step.
type ResolveSpec struct {
	IDField string `yaml:"id_field,omitempty"`
	DOI     string `yaml:"doi,omitempty"`
	Title   string `yaml:"title,omitempty"`
	Type    string `yaml:"type,omitempty"`
}

// Expect is checked against the outcome of a step. Unset fields are not
// checked.
type Expect struct {
	Record     string `yaml:"record,omitempty"`
	Document   string `yaml:"document,omitempty"`
	Created    *int   `yaml:"created,omitempty"`
	Superseded *int   `yaml:"superseded,omitempty"`
	Retired    *int   `yaml:"retired,omitempty"`
	Relinked   *int   `yaml:"relinked,omitempty"`
	Unchanged  *int   `yaml:"unchanged,omitempty"`

	// Match is "existing" or "new" for resolve steps; Ref is "source:id".
	Match  string `yaml:"match,omitempty"`
	Ref    string `yaml:"ref,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Error is a substring the step's error must contain. A step with an
	// expected error is rolled back and the scenario continues.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of active_value, history, active_count, no_dangling,
	// message_count.
	Type string `yaml:"type"`

	Source string `yaml:"source,omitempty"`
	ID     string `yaml:"id,omitempty"`
	Field  string `yaml:"field,omitempty"`

	// Place selects one sibling for active_value; any place matches when
	// nil.
	Place *int `yaml:"place,omitempty"`

	// Value is the expected active value (active_value). Absent asserts that
	// no active row carries the field.
	Value  *string `yaml:"value,omitempty"`
	Absent bool    `yaml:"absent,omitempty"`

	// Values is the expected value history, oldest first (history).
	Values []string `yaml:"values,omitempty"`

	// Count is the expected number of rows (active_count) or messages
	// (message_count).
	Count *int `yaml:"count,omitempty"`

	// Process and MessageType filter messages (message_count).
	Process     string `yaml:"process,omitempty"`
	MessageType string `yaml:"message_type,omitempty"`
}

// Assertion type constants.
const (
	AssertActiveValue  = "active_value"
	AssertHistory      = "history"
	AssertActiveCount  = "active_count"
	AssertNoDangling   = "no_dangling"
	AssertMessageCount = "message_count"
)

// LoadScenario reads and parses a scenario YAML file. The rule path is
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the rule path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Rules != "" && !filepath.IsAbs(scenario.Rules) && basePath != "" {
		scenario.Rules = filepath.Join(basePath, scenario.Rules)
	}
	if scenario.Rules != "" {
		if _, err := os.Stat(scenario.Rules); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: rule file not found: %s", scenario.Rules)
		}
	}
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Unmapped != "" {
		if _, err := mapper.ParseUnmappedPolicy(s.Unmapped); err != nil {
			return err
		}
	}

	for i, m := range s.Mappings {
		if m.Source == "" || m.Field == "" || m.Standard == "" {
			return fmt.Errorf("mappings[%d]: source, field and standard are required", i)
		}
	}
	for i, t := range s.Transformations {
		if t.Source == "" || t.Field == "" || t.Type == "" {
			return fmt.Errorf("transformations[%d]: source, field and type are required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	if st.Source == "" {
		return fmt.Errorf("steps[%d]: source is required", index)
	}
	if st.ID == "" {
		return fmt.Errorf("steps[%d]: id is required", index)
	}
	if len(st.Fields) > 0 && len(st.Tree) > 0 {
		return fmt.Errorf("steps[%d]: fields and tree are mutually exclusive", index)
	}
	if st.Resolve != nil && (len(st.Fields) > 0 || len(st.Tree) > 0 || st.Payload != "") {
		return fmt.Errorf("steps[%d]: resolve steps take no fields, tree or payload", index)
	}
	if st.Payload != "" {
		if _, err := ir.ParseFormat(st.Format); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	}
	if st.Expect != nil && st.Expect.Match != "" && st.Resolve == nil {
		return fmt.Errorf("steps[%d].expect: match is only valid on resolve steps", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertActiveValue:
		if a.Source == "" || a.ID == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: source, id and field are required for active_value", index)
		}
		if a.Value == nil && !a.Absent {
			return fmt.Errorf("assertions[%d]: value or absent is required for active_value", index)
		}
	case AssertHistory:
		if a.Source == "" || a.ID == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: source, id and field are required for history", index)
		}
	case AssertActiveCount:
		if a.Source == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: source and id are required for active_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for active_count", index)
		}
	case AssertNoDangling:
	case AssertMessageCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for message_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
