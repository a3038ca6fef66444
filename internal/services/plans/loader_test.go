package plans

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writePlanFile(t, `{
		"plan_id": "plan-1",
		"asset_id": "asset-1",
		"cuts": [{"action": "keep", "start": 0, "end": 5}]
	}`)

	plan, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", plan.PlanID)
	assert.Equal(t, "asset-1", plan.AssetID)
	require.Len(t, plan.Cuts, 1)
	assert.Equal(t, 5.0, plan.Cuts[0].End)
}

func TestLoadInvalidJSONIsValidationError(t *testing.T) {
	path := writePlanFile(t, `{not json`)

	_, err := Load(path)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Violations, 1)
	assert.Equal(t, "json", vErr.Violations[0].Rule)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	var vErr *ValidationError
	assert.False(t, errors.As(err, &vErr))
}

func TestLoadRef(t *testing.T) {
	path := writePlanFile(t, `{"plan_id": "plan-1", "asset_id": "asset-1", "cuts": []}`)

	ref, err := LoadRef(path)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", ref.PlanID)
	assert.Equal(t, "asset-1", ref.AssetID)
	assert.Equal(t, path, ref.Path)
}

func TestLoadRefRequiresIdentity(t *testing.T) {
	path := writePlanFile(t, `{"plan_id": "plan-1"}`)

	_, err := LoadRef(path)
	assert.Error(t, err)
}
