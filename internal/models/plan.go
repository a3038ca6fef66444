package models

// CutAction says whether a cut interval is kept or removed.
type CutAction string

const (
	CutActionKeep   CutAction = "keep"
	CutActionRemove CutAction = "remove"
)

// Known reports whether the action is one of the enumerated values.
func (a CutAction) Known() bool {
	return a == CutActionKeep || a == CutActionRemove
}

// EffectType identifies a visual effect instruction.
type EffectType string

const (
	EffectCropFocusShift EffectType = "crop_focus_shift"
	EffectZoomIn         EffectType = "zoom_in"
	EffectZoomOut        EffectType = "zoom_out"
	EffectPanLeft        EffectType = "pan_left"
	EffectPanRight       EffectType = "pan_right"
)

func (e EffectType) Known() bool {
	switch e {
	case EffectCropFocusShift, EffectZoomIn, EffectZoomOut, EffectPanLeft, EffectPanRight:
		return true
	}
	return false
}

// CaptionStyle selects an entry from the closed caption style table.
type CaptionStyle string

const (
	CaptionStyleYellow CaptionStyle = "yellow"
	CaptionStyleWhite  CaptionStyle = "white"
	CaptionStyleCyan   CaptionStyle = "cyan"
)

func (s CaptionStyle) Known() bool {
	return s == CaptionStyleYellow || s == CaptionStyleWhite || s == CaptionStyleCyan
}

// SoundEffectType identifies a sound effect clip in the SE library.
type SoundEffectType string

const (
	SoundEffectImpact    SoundEffectType = "impact"
	SoundEffectWhoosh    SoundEffectType = "whoosh"
	SoundEffectLaugh     SoundEffectType = "laugh"
	SoundEffectCorrect   SoundEffectType = "correct"
	SoundEffectIncorrect SoundEffectType = "incorrect"
)

func (t SoundEffectType) Known() bool {
	switch t {
	case SoundEffectImpact, SoundEffectWhoosh, SoundEffectLaugh, SoundEffectCorrect, SoundEffectIncorrect:
		return true
	}
	return false
}

// Mood tags the overall tone of the edit; BGM auto-selection matches on it.
type Mood string

const (
	MoodEnergetic  Mood = "energetic"
	MoodCalm       Mood = "calm"
	MoodMysterious Mood = "mysterious"
	MoodUpbeat     Mood = "upbeat"
)

func (m Mood) Known() bool {
	return m == MoodEnergetic || m == MoodCalm || m == MoodMysterious || m == MoodUpbeat
}

// TransitionType is the xfade transition applied at retained-segment
// boundaries. Empty means hard cuts.
type TransitionType string

const (
	TransitionNone       TransitionType = ""
	TransitionFade       TransitionType = "fade"
	TransitionWipeLeft   TransitionType = "wipeleft"
	TransitionSlideUp    TransitionType = "slideup"
	TransitionCircleOpen TransitionType = "circleopen"
)

func (t TransitionType) Known() bool {
	switch t {
	case TransitionNone, TransitionFade, TransitionWipeLeft, TransitionSlideUp, TransitionCircleOpen:
		return true
	}
	return false
}

// BGMMode selects how the background music track is chosen.
type BGMMode string

const (
	BGMModeAuto     BGMMode = "auto"
	BGMModeExplicit BGMMode = "explicit"
)

func (m BGMMode) Known() bool {
	return m == BGMModeAuto || m == BGMModeExplicit
}

// CutInstruction is one keep/remove interval in source time, seconds.
type CutInstruction struct {
	Start  float64   `json:"start"`
	End    float64   `json:"end"`
	Action CutAction `json:"action"`
}

// CaptionInstruction overlays text at a source timestamp.
type CaptionInstruction struct {
	Timestamp float64      `json:"timestamp"`
	Text      string       `json:"text"`
	Style     CaptionStyle `json:"style"`
}

// EffectInstruction applies a visual effect starting at Timestamp for
// Window seconds. Focus is only meaningful for crop_focus_shift and gives
// the horizontal subject coordinate (0..1) during the window.
type EffectInstruction struct {
	Timestamp float64    `json:"timestamp"`
	Type      EffectType `json:"type"`
	Window    float64    `json:"window,omitempty"`
	Focus     float64    `json:"focus,omitempty"`
}

// SoundEffectPlacement mixes a short SE clip in at a source timestamp.
type SoundEffectPlacement struct {
	Timestamp float64         `json:"timestamp"`
	Type      SoundEffectType `json:"type"`
}

// BGMPreference selects the background music track.
type BGMPreference struct {
	Mode    BGMMode `json:"mode"`
	TrackID string  `json:"track_id,omitempty"`
}

// SpeechInterval marks a source-time range where speech is present.
// Supplied by the plan producer, never computed here.
type SpeechInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ThumbnailSpec picks the frame (and optional overlay text) for the
// published thumbnail image.
type ThumbnailSpec struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text,omitempty"`
}

// EditingPlan is the machine-generated instruction set consumed by the
// pipeline. Immutable once validated; owned by exactly one render job.
type EditingPlan struct {
	PlanID       string                 `json:"plan_id"`
	AssetID      string                 `json:"asset_id"`
	Mood         Mood                   `json:"mood"`
	Cuts         []CutInstruction       `json:"cuts"`
	Captions     []CaptionInstruction   `json:"captions,omitempty"`
	Effects      []EffectInstruction    `json:"effects,omitempty"`
	SoundEffects []SoundEffectPlacement `json:"sound_effects,omitempty"`
	BGM          BGMPreference          `json:"bgm"`
	AutoDuck     bool                   `json:"auto_duck"`
	Speech       []SpeechInterval       `json:"speech,omitempty"`
	Transition   TransitionType         `json:"transition,omitempty"`
	FocusPoint   float64                `json:"focus_point"`
	Thumbnail    *ThumbnailSpec         `json:"thumbnail,omitempty"`
}
