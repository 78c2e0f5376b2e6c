package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bindform/internal/config"
)

// Scenario is a scripted binding session: a form, an initial object,
// user and programmatic steps, and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Form is the HTML of the document holding the form.
	Form string `yaml:"form"`

	// Object is the initial bound object. Omitted means empty.
	Object map[string]any `yaml:"object,omitempty"`

	// Config uses the config file schema. Keys left out keep their
	// defaults; storage is ignored (scenarios use an in-memory backend).
	Config config.File `yaml:"config"`

	// Rules holds inline CUE constraints, merged over config.rules.
	Rules string `yaml:"rules,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action.
type Step struct {
	// Type is one of the Step* constants.
	Type string `yaml:"type"`

	// Field is the field name (type, check, select, remove) or the path
	// (set).
	Field string `yaml:"field,omitempty"`

	// Text is typed into the field (type).
	Text string `yaml:"text,omitempty"`

	// Value is the value written (set) or the checkbox/radio value to
	// pick (check).
	Value any `yaml:"value,omitempty"`

	// Values is the selection (select).
	Values []string `yaml:"values,omitempty"`

	// Checked sets a checkbox state (check). Defaults to true.
	Checked *bool `yaml:"checked,omitempty"`

	// Object is merged into the bound object (import).
	Object map[string]any `yaml:"object,omitempty"`

	// HTML is appended to the form (append).
	HTML string `yaml:"html,omitempty"`

	// Duration advances the fake clock (wait). Defaults to one second.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Ref is a history entry ID or timestamp (restore).
	Ref string `yaml:"ref,omitempty"`

	// Veto makes OnBeforeSubmit refuse this submission (submit).
	Veto bool `yaml:"veto,omitempty"`

	// Fail makes the submission handler return this error (submit).
	Fail string `yaml:"fail,omitempty"`

	// ExpectError requires the step to fail with an error containing
	// this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step types.
const (
	StepType    = "type"
	StepCheck   = "check"
	StepSelect  = "select"
	StepSet     = "set"
	StepImport  = "import"
	StepAppend  = "append"
	StepRemove  = "remove"
	StepWait    = "wait"
	StepSubmit  = "submit"
	StepRestore = "restore"
	StepSave    = "save"
	StepUnbind  = "unbind"
)

// DefaultWait is the clock advance of a wait step without a duration.
const DefaultWait = time.Second

// Assertion checks the outcome of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path is an object path (object, empty for the whole object), a
	// field name (field) or a hook path filter (trace_*).
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value (object, field), or the expected
	// hook value (trace_contains, optional).
	Expect any `yaml:"expect,omitempty"`

	// Invalid checks the validation class on a field (field).
	Invalid *bool `yaml:"invalid,omitempty"`

	// Hook names the traced hook (trace_count, trace_contains).
	Hook string `yaml:"hook,omitempty"`

	// Count is the expected number of entries or events.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertObject        = "object"
	AssertField         = "field"
	AssertHistoryCount  = "history_count"
	AssertTraceCount    = "trace_count"
	AssertTraceContains = "trace_contains"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// errors. config.rules resolves against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes a scenario. Config starts from config.Default().
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	scenario := Scenario{Config: *config.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if r := scenario.Config.Rules; r != "" && !filepath.IsAbs(r) && baseDir != "" {
		scenario.Config.Rules = filepath.Join(baseDir, r)
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
	if s.Form == "" {
		return fmt.Errorf("form is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	s.Config.Storage = config.StorageConfig{Driver: config.DriverMemory}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, st *Step) error {
	switch st.Type {
	case StepType, StepCheck, StepSelect, StepRemove:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for %s", index, st.Type)
		}
	case StepSet:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for set", index)
		}
	case StepImport:
		if st.Object == nil {
			return fmt.Errorf("steps[%d]: object is required for import", index)
		}
	case StepAppend:
		if st.HTML == "" {
			return fmt.Errorf("steps[%d]: html is required for append", index)
		}
	case StepWait:
		if st.Duration < 0 {
			return fmt.Errorf("steps[%d]: duration must not be negative", index)
		}
	case StepRestore:
		if st.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required for restore", index)
		}
	case StepSubmit, StepSave, StepUnbind:
	case "":
		return fmt.Errorf("steps[%d]: type is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step type %q", index, st.Type)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertObject:
	case AssertField:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for field", index)
		}
		if a.Expect == nil && a.Invalid == nil {
			return fmt.Errorf("assertions[%d]: expect or invalid is required for field", index)
		}
	case AssertHistoryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertTraceCount:
		if a.Hook == "" {
			return fmt.Errorf("assertions[%d]: hook is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceContains:
		if a.Hook == "" {
			return fmt.Errorf("assertions[%d]: hook is required for trace_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
