package plans

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/clipforge/clipforge/internal/models"
)

// PlanRef is the minimal identity parsed before full validation; the
// coordinator needs only this to dedupe and supersede.
type PlanRef struct {
	PlanID  string `json:"plan_id"`
	AssetID string `json:"asset_id"`
	Path    string `json:"-"`
}

// Load reads and decodes a plan file. Decode failures are reported as a
// single-violation ValidationError so the caller sees a uniform error shape.
func Load(path string) (*models.EditingPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan models.EditingPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, &ValidationError{Violations: []Violation{{
			Field:   "(document)",
			Rule:    "json",
			Message: fmt.Sprintf("plan is not valid JSON: %v", err),
		}}}
	}

	return &plan, nil
}

// LoadRef reads just enough of a plan file to identify it.
func LoadRef(path string) (*PlanRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var ref PlanRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parsing plan identity: %w", err)
	}
	if ref.PlanID == "" || ref.AssetID == "" {
		return nil, fmt.Errorf("plan file %s missing plan_id or asset_id", path)
	}
	ref.Path = path
	return &ref, nil
}
