package progress

import (
	"errors"
	"fmt"
)

// Stage maps a stage name to the cumulative progress reached on entering it.
type Stage struct {
	Name      string `yaml:"name" mapstructure:"name"`
	Threshold int    `yaml:"threshold" mapstructure:"threshold"`
}

// Table is an ordered list of stages with non-decreasing thresholds.
type Table []Stage

// DefaultStages is the requirements-analysis agent pipeline.
func DefaultStages() Table {
	return Table{
		{Name: "load_document", Threshold: 10},
		{Name: "retrieve_context", Threshold: 20},
		{Name: "extract_requirements", Threshold: 35},
		{Name: "classify_requirements", Threshold: 45},
		{Name: "detect_ambiguities", Threshold: 55},
		{Name: "hitl_ambiguity_review", Threshold: 60},
		{Name: "refine_requirements", Threshold: 70},
		{Name: "build_traceability", Threshold: 80},
		{Name: "generate_spec_document", Threshold: 90},
		{Name: "hitl_final_review", Threshold: 95},
		{Name: "finalize_deliverables", Threshold: 98},
	}
}

// Threshold returns the threshold for name.
func (t Table) Threshold(name string) (int, bool) {
	for _, s := range t {
		if s.Name == name {
			return s.Threshold, true
		}
	}
	return 0, false
}

// Index returns the position of name, or -1.
func (t Table) Index(name string) int {
	for i, s := range t {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks names are set and unique and thresholds lie in 0..100
// without decreasing.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("stage table is empty")
	}
	seen := make(map[string]bool, len(t))
	prev := 0
	for i, s := range t {
		if s.Name == "" {
			return fmt.Errorf("stage %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("stage %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.Threshold < 0 || s.Threshold > 100 {
			return fmt.Errorf("stage %q: threshold %d out of range 0-100", s.Name, s.Threshold)
		}
		if s.Threshold < prev {
			return fmt.Errorf("stage %q: threshold %d below previous %d", s.Name, s.Threshold, prev)
		}
		prev = s.Threshold
	}
	return nil
}
