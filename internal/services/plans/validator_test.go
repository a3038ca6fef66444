package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
)

type trackSet map[string]bool

func (s trackSet) HasTrack(id string) bool { return s[id] }

func testAsset() *models.SourceAsset {
	return &models.SourceAsset{
		ID:       "asset-1",
		Path:     "/assets/asset-1.mp4",
		Duration: 60,
		Width:    1920,
		Height:   1080,
		HasAudio: true,
	}
}

func validPlan() *models.EditingPlan {
	return &models.EditingPlan{
		PlanID:  "plan-1",
		AssetID: "asset-1",
		Mood:    models.MoodEnergetic,
		Cuts: []models.CutInstruction{
			{Start: 0, End: 30, Action: models.CutActionKeep},
			{Start: 30, End: 40, Action: models.CutActionRemove},
		},
		BGM:        models.BGMPreference{Mode: models.BGMModeAuto},
		FocusPoint: 0.5,
	}
}

func TestValidateAcceptsValidPlan(t *testing.T) {
	v := NewValidator(trackSet{"bgm-1": true})

	validated, err := v.Validate(validPlan(), testAsset())
	require.NoError(t, err)
	assert.Equal(t, "plan-1", validated.Plan.PlanID)
	assert.Equal(t, "asset-1", validated.Asset.ID)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.EditingPlan)
		wantRule string
	}{
		{
			name:     "unknown effect type",
			mutate:   func(p *models.EditingPlan) { p.Effects = []models.EffectInstruction{{Timestamp: 1, Type: "spin"}} },
			wantRule: "enum",
		},
		{
			name:     "unknown mood",
			mutate:   func(p *models.EditingPlan) { p.Mood = "gloomy" },
			wantRule: "enum",
		},
		{
			name:     "unknown transition",
			mutate:   func(p *models.EditingPlan) { p.Transition = "dissolve" },
			wantRule: "enum",
		},
		{
			name:     "cut end before start",
			mutate:   func(p *models.EditingPlan) { p.Cuts[0].End = -1 },
			wantRule: "order",
		},
		{
			name:     "cut beyond asset duration",
			mutate:   func(p *models.EditingPlan) { p.Cuts[1].End = 90 },
			wantRule: "range",
		},
		{
			name:     "caption without text",
			mutate:   func(p *models.EditingPlan) { p.Captions = []models.CaptionInstruction{{Timestamp: 2, Style: models.CaptionStyleWhite}} },
			wantRule: "required",
		},
		{
			name:     "focus point out of range",
			mutate:   func(p *models.EditingPlan) { p.FocusPoint = 1.5 },
			wantRule: "range",
		},
		{
			name:     "explicit bgm track missing from library",
			mutate:   func(p *models.EditingPlan) { p.BGM = models.BGMPreference{Mode: models.BGMModeExplicit, TrackID: "nope"} },
			wantRule: "exists",
		},
		{
			name:     "speech interval inverted",
			mutate:   func(p *models.EditingPlan) { p.Speech = []models.SpeechInterval{{Start: 5, End: 2}} },
			wantRule: "order",
		},
		{
			name: "crop focus shift without valid focus",
			mutate: func(p *models.EditingPlan) {
				p.Effects = []models.EffectInstruction{{Timestamp: 1, Type: models.EffectCropFocusShift, Focus: 2}}
			},
			wantRule: "range",
		},
	}

	v := NewValidator(trackSet{"bgm-1": true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := validPlan()
			tt.mutate(plan)

			_, err := v.Validate(plan, testAsset())
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			rules := make([]string, 0, len(vErr.Violations))
			for _, viol := range vErr.Violations {
				rules = append(rules, viol.Rule)
			}
			assert.Contains(t, rules, tt.wantRule)
		})
	}
}

func TestValidateEnumeratesAllViolations(t *testing.T) {
	plan := validPlan()
	plan.Mood = "gloomy"
	plan.FocusPoint = -0.2
	plan.Effects = []models.EffectInstruction{{Timestamp: 1, Type: "spin"}}

	v := NewValidator(nil)
	_, err := v.Validate(plan, testAsset())
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.GreaterOrEqual(t, len(vErr.Violations), 3)
	assert.Equal(t, "plan-1", vErr.PlanID)
}

func TestValidateAssetMismatch(t *testing.T) {
	plan := validPlan()
	plan.AssetID = "asset-2"

	_, err := NewValidator(nil).Validate(plan, testAsset())
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "asset_id", vErr.Violations[0].Field)
}
