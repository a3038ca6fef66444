package filtergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/timeline"
)

func testOptions() Options {
	return Options{
		OutputWidth:        1080,
		OutputHeight:       1920,
		TransitionDuration: 0.5,
		DuckAttenuationDB:  12,
		DuckAttackMs:       50,
		DuckReleaseMs:      300,
		BGMGain:            0.35,
		SEFade:             0.05,
	}
}

func landscapeAsset() *models.SourceAsset {
	return &models.SourceAsset{
		ID:        "asset-1",
		Path:      "/assets/asset-1.mp4",
		Duration:  60,
		FrameRate: 30,
		Width:     1920,
		Height:    1080,
		HasAudio:  true,
	}
}

func resolve(t *testing.T, plan *models.EditingPlan, duration float64) *timeline.ResolvedPlan {
	t.Helper()
	tl, err := timeline.Resolve(plan.Cuts, duration)
	require.NoError(t, err)
	resolved, _ := timeline.ResolveInstructions(plan, tl)
	return resolved
}

func basicPlan() *models.EditingPlan {
	return &models.EditingPlan{
		PlanID:  "plan-1",
		AssetID: "asset-1",
		Mood:    models.MoodEnergetic,
		Cuts: []models.CutInstruction{
			{Start: 0, End: 20, Action: models.CutActionKeep},
			{Start: 20, End: 30, Action: models.CutActionRemove},
			{Start: 30, End: 60, Action: models.CutActionKeep},
		},
		BGM:        models.BGMPreference{Mode: models.BGMModeAuto},
		FocusPoint: 0.5,
	}
}

func buildInputs(t *testing.T, plan *models.EditingPlan) Inputs {
	return Inputs{
		Asset:    landscapeAsset(),
		Plan:     plan,
		Resolved: resolve(t, plan, 60),
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	plan := basicPlan()
	plan.Captions = []models.CaptionInstruction{{Timestamp: 5, Text: "hello", Style: models.CaptionStyleYellow}}
	plan.Effects = []models.EffectInstruction{{Timestamp: 10, Type: models.EffectZoomIn, Window: 2}}
	plan.Speech = []models.SpeechInterval{{Start: 1, End: 4}}
	plan.AutoDuck = true

	b := NewBuilder(testOptions())

	first, err := b.Build(buildInputs(t, plan))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.Build(buildInputs(t, plan))
		require.NoError(t, err)
		assert.Equal(t, first.FilterComplex(), again.FilterComplex())
		assert.Equal(t, first.Inputs, again.Inputs)
	}
}

func TestBuildVideoChain(t *testing.T) {
	b := NewBuilder(testOptions())
	g, err := b.Build(buildInputs(t, basicPlan()))
	require.NoError(t, err)

	fc := g.FilterComplex()
	assert.Contains(t, fc, "trim=start=0:end=20")
	assert.Contains(t, fc, "trim=start=30:end=60")
	assert.Contains(t, fc, "concat=n=2:v=1:a=0")
	// 16:9 source cropped to 9:16 around a centred focus point:
	// width 1080*1080/1920 = 607, x = 0.5*1920 - 607/2.
	assert.Contains(t, fc, "crop=w=607:h=1080")
	assert.Contains(t, fc, "scale=w=1080:h=1920")
	assert.InDelta(t, 50.0, g.OutputDuration, 1e-9)
	require.NoError(t, g.Validate())
}

func TestBuildEmptyTimelineFails(t *testing.T) {
	plan := basicPlan()
	plan.Cuts = []models.CutInstruction{{Start: 0, End: 60, Action: models.CutActionRemove}}

	_, err := NewBuilder(testOptions()).Build(buildInputs(t, plan))
	require.Error(t, err)
	var bErr *BuildError
	require.ErrorAs(t, err, &bErr)
}

func TestBuildTransitions(t *testing.T) {
	plan := basicPlan()
	plan.Transition = models.TransitionFade

	g, err := NewBuilder(testOptions()).Build(buildInputs(t, plan))
	require.NoError(t, err)

	fc := g.FilterComplex()
	assert.Contains(t, fc, "xfade=transition=fade:duration=0.5:offset=19.5")
	// The audio join crossfades too, so both streams shorten together.
	assert.Contains(t, fc, "acrossfade=d=0.5")
	assert.NotContains(t, fc, "concat=n=2:v=0:a=1")
	// One crossfade shortens the joined stream by the transition duration.
	assert.InDelta(t, 49.5, g.OutputDuration, 1e-9)
}

func TestBuildTransitionRemapsTailInstructions(t *testing.T) {
	plan := basicPlan()
	plan.Transition = models.TransitionFade
	plan.Cuts = []models.CutInstruction{
		{Start: 0, End: 5, Action: models.CutActionKeep},
		{Start: 5, End: 8, Action: models.CutActionRemove},
		{Start: 8, End: 12, Action: models.CutActionKeep},
	}
	plan.Captions = []models.CaptionInstruction{{Timestamp: 11.9, Text: "outro", Style: models.CaptionStyleWhite}}
	plan.SoundEffects = []models.SoundEffectPlacement{{Timestamp: 11.9, Type: models.SoundEffectImpact}}

	asset := landscapeAsset()
	asset.Duration = 12
	in := Inputs{
		Asset:    asset,
		Plan:     plan,
		Resolved: resolve(t, plan, 12),
		SEPaths:  []string{"/se/impact.wav"},
	}

	g, err := NewBuilder(testOptions()).Build(in)
	require.NoError(t, err)

	// 9s of retained material joins into 8.5s across one crossfade. The
	// caption and SE resolved at output 8.9 land at 8.4 in the joined
	// timebase instead of failing the duration check.
	assert.InDelta(t, 8.5, g.OutputDuration, 1e-9)
	fc := g.FilterComplex()
	assert.Contains(t, fc, "between(t,8.4,8.5)")
	assert.Contains(t, fc, "adelay=delays=8400:all=1")
}

func TestBuildTransitionFallsBackOnShortSegment(t *testing.T) {
	plan := basicPlan()
	plan.Transition = models.TransitionWipeLeft
	plan.Cuts = []models.CutInstruction{
		{Start: 0, End: 0.3, Action: models.CutActionKeep}, // shorter than the transition
		{Start: 0.3, End: 30, Action: models.CutActionRemove},
		{Start: 30, End: 60, Action: models.CutActionKeep},
	}

	g, err := NewBuilder(testOptions()).Build(buildInputs(t, plan))
	require.NoError(t, err)
	assert.Contains(t, g.FilterComplex(), "concat=")
	assert.NotContains(t, g.FilterComplex(), "xfade")
}

func TestBuildAudioVariants(t *testing.T) {
	t.Run("video only when no audio sources", func(t *testing.T) {
		in := buildInputs(t, basicPlan())
		in.Asset.HasAudio = false

		g, err := NewBuilder(testOptions()).Build(in)
		require.NoError(t, err)
		assert.Empty(t, g.AudioOut)
		assert.NotContains(t, g.FilterComplex(), "amix")
	})

	t.Run("base audio passes through without mixing", func(t *testing.T) {
		g, err := NewBuilder(testOptions()).Build(buildInputs(t, basicPlan()))
		require.NoError(t, err)
		assert.NotEmpty(t, g.AudioOut)
		assert.Contains(t, g.FilterComplex(), "atrim=start=0:end=20")
		assert.NotContains(t, g.FilterComplex(), "amix")
	})

	t.Run("bgm mixes against silent anchor when source has no audio", func(t *testing.T) {
		in := buildInputs(t, basicPlan())
		in.Asset.HasAudio = false
		in.BGMPath = "/bgm/track.mp3"

		g, err := NewBuilder(testOptions()).Build(in)
		require.NoError(t, err)
		fc := g.FilterComplex()
		assert.Contains(t, fc, "anullsrc")
		assert.Contains(t, fc, "aloop=loop=-1")
		assert.Contains(t, fc, "amix=inputs=2:duration=first:normalize=0")
		assert.Equal(t, []string{"/assets/asset-1.mp4", "/bgm/track.mp3"}, g.Inputs)
	})

	t.Run("sound effects are faded and delayed", func(t *testing.T) {
		plan := basicPlan()
		plan.SoundEffects = []models.SoundEffectPlacement{{Timestamp: 35, Type: models.SoundEffectImpact}}
		in := buildInputs(t, plan)
		in.SEPaths = []string{"/se/impact.wav"}

		g, err := NewBuilder(testOptions()).Build(in)
		require.NoError(t, err)
		fc := g.FilterComplex()
		assert.Contains(t, fc, "afade=t=in:st=0:d=0.05")
		// Source 35s maps to output 25s after the 10s removal.
		assert.Contains(t, fc, "adelay=delays=25000:all=1")
	})
}

func TestBuildDucking(t *testing.T) {
	plan := basicPlan()
	plan.AutoDuck = true
	plan.Speech = []models.SpeechInterval{{Start: 2, End: 6}}
	in := buildInputs(t, plan)
	in.BGMPath = "/bgm/track.mp3"

	g, err := NewBuilder(testOptions()).Build(in)
	require.NoError(t, err)

	fc := g.FilterComplex()
	assert.Contains(t, fc, "eval=frame")
	assert.Contains(t, fc, "between(t,1.95,6.3)") // attack and release widen the window

	t.Run("constant volume without speech", func(t *testing.T) {
		quiet := basicPlan()
		quiet.AutoDuck = true
		qin := buildInputs(t, quiet)
		qin.BGMPath = "/bgm/track.mp3"

		qg, err := NewBuilder(testOptions()).Build(qin)
		require.NoError(t, err)
		assert.Contains(t, qg.FilterComplex(), "volume=volume=0.35")
	})
}

func TestDuckGainCurve(t *testing.T) {
	b := NewBuilder(testOptions())
	iv := timeline.Interval{Start: 2, End: 6}

	full := 0.35
	ducked := full * 0.251188643150958 // -12 dB

	assert.InDelta(t, full, b.DuckGain(0.5, iv), 1e-9)     // well before speech
	assert.InDelta(t, ducked, b.DuckGain(4.0, iv), 1e-6)   // mid speech
	assert.InDelta(t, full, b.DuckGain(10.0, iv), 1e-9)    // well after release
	assert.InDelta(t, ducked, b.DuckGain(2.0, iv), 1e-6)   // attack completes at speech start
	assert.Greater(t, b.DuckGain(6.2, iv), ducked)         // release ramping back up
	assert.Less(t, b.DuckGain(6.2, iv), full)
}

func TestCropXClamping(t *testing.T) {
	tests := []struct {
		name  string
		focus float64
		want  float64
	}{
		{"centred", 0.5, 656.5},
		{"far left clamps to zero", 0.0, 0},
		{"far right clamps to frame edge", 1.0, 1313},
		{"slightly left", 0.2, 80.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CropX(tt.focus, 1920, 607)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1920.0-607)
		})
	}
}

func TestClipOverlapsLaterEffectWins(t *testing.T) {
	t.Run("partial overlap clips the earlier tail", func(t *testing.T) {
		effects := []timeline.ResolvedEffect{
			{Start: 1, End: 5, Type: models.EffectZoomIn},
			{Start: 3, End: 7, Type: models.EffectPanLeft},
		}

		clipped := clipOverlaps(effects)
		require.Len(t, clipped, 2)
		assert.InDelta(t, 3.0, clipped[0].End, 1e-9) // earlier effect clipped at the later start
		assert.InDelta(t, 3.0, clipped[1].Start, 1e-9)
		assert.InDelta(t, 7.0, clipped[1].End, 1e-9)
	})

	t.Run("nested window splits the earlier effect", func(t *testing.T) {
		effects := []timeline.ResolvedEffect{
			{Start: 0, End: 10, Type: models.EffectZoomIn},
			{Start: 2, End: 4, Type: models.EffectPanLeft},
		}

		clipped := clipOverlaps(effects)
		require.Len(t, clipped, 3)
		assert.Equal(t, models.EffectZoomIn, clipped[0].Type)
		assert.InDelta(t, 2.0, clipped[0].End, 1e-9)
		assert.Equal(t, models.EffectPanLeft, clipped[1].Type)
		assert.Equal(t, models.EffectZoomIn, clipped[2].Type)
		// The earlier effect resumes once the later window ends.
		assert.InDelta(t, 4.0, clipped[2].Start, 1e-9)
		assert.InDelta(t, 10.0, clipped[2].End, 1e-9)
	})
}

func TestClipOverlapsDropsSwallowedEffect(t *testing.T) {
	effects := []timeline.ResolvedEffect{
		{Start: 1, End: 5, Type: models.EffectZoomIn},
		{Start: 1, End: 6, Type: models.EffectZoomOut},
	}

	clipped := clipOverlaps(effects)
	require.Len(t, clipped, 1)
	assert.Equal(t, models.EffectZoomOut, clipped[0].Type)
}

func TestBuildRejectsWindowBeyondOutput(t *testing.T) {
	in := buildInputs(t, basicPlan())
	in.Resolved.Effects = []timeline.ResolvedEffect{
		{Start: 45, End: 55, Type: models.EffectZoomIn}, // output is only 50s long
	}

	_, err := NewBuilder(testOptions()).Build(in)
	require.Error(t, err)
	var bErr *BuildError
	require.ErrorAs(t, err, &bErr)
	assert.Contains(t, bErr.Message, "outside output range")
}

func TestEscapeDrawtext(t *testing.T) {
	assert.Equal(t, `it\'s 50\% done\: yes`, escapeDrawtext(`it's 50% done: yes`))
	assert.Equal(t, `a\\b`, escapeDrawtext(`a\b`))
}
