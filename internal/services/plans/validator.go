package plans

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/models"
)

// Violation is one broken validation rule. The field path points at the
// offending instruction so the plan producer can fix it.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError enumerates every violation found, not just the first, so
// a caller can fix a plan in one round trip.
type ValidationError struct {
	PlanID     string      `json:"plan_id"`
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Field + ": " + v.Message
	}
	return fmt.Sprintf("plan %s failed validation with %d violation(s): %s",
		e.PlanID, len(e.Violations), strings.Join(msgs, "; "))
}

// TrackSet answers whether an explicit BGM track id exists in the library.
type TrackSet interface {
	HasTrack(id string) bool
}

// ValidatedPlan pairs a plan that passed every check with the asset it
// targets. Construction goes through Validate only.
type ValidatedPlan struct {
	Plan  *models.EditingPlan `json:"plan"`
	Asset *models.SourceAsset `json:"asset"`
}

// Validator semantically checks editing plans against their source asset.
type Validator struct {
	tracks TrackSet
}

// NewValidator creates a Validator. tracks may be nil when no BGM library
// is configured; explicit track references are then violations.
func NewValidator(tracks TrackSet) *Validator {
	return &Validator{tracks: tracks}
}

// Validate checks the plan against the asset's actual duration and the
// enumerated instruction vocabularies. Unknown enum values are rejected,
// never defaulted: silent defaulting would hide plan-generation bugs.
func (v *Validator) Validate(plan *models.EditingPlan, asset *models.SourceAsset) (*ValidatedPlan, error) {
	var vs []Violation
	add := func(field, rule, format string, args ...interface{}) {
		vs = append(vs, Violation{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	if plan.PlanID == "" {
		add("plan_id", "required", "plan_id must not be empty")
	}
	if plan.AssetID == "" {
		add("asset_id", "required", "asset_id must not be empty")
	} else if plan.AssetID != asset.ID {
		add("asset_id", "asset_match", "plan targets asset %q but was validated against %q", plan.AssetID, asset.ID)
	}

	if !plan.Mood.Known() {
		add("mood", "enum", "unknown mood %q", plan.Mood)
	}
	if !plan.Transition.Known() {
		add("transition", "enum", "unknown transition %q", plan.Transition)
	}
	if plan.FocusPoint < 0 || plan.FocusPoint > 1 {
		add("focus_point", "range", "focus_point %.3f outside [0,1]", plan.FocusPoint)
	}

	dur := asset.Duration
	inRange := func(t float64) bool { return t >= 0 && t <= dur }

	for i, c := range plan.Cuts {
		field := fmt.Sprintf("cuts[%d]", i)
		if !c.Action.Known() {
			add(field+".action", "enum", "unknown cut action %q", c.Action)
		}
		if !inRange(c.Start) || !inRange(c.End) {
			add(field, "range", "[%.3f,%.3f) outside [0,%.3f]", c.Start, c.End, dur)
		}
		if c.End <= c.Start {
			add(field, "order", "end %.3f is not after start %.3f", c.End, c.Start)
		}
	}

	for i, c := range plan.Captions {
		field := fmt.Sprintf("captions[%d]", i)
		if !inRange(c.Timestamp) {
			add(field+".timestamp", "range", "%.3f outside [0,%.3f]", c.Timestamp, dur)
		}
		if c.Text == "" {
			add(field+".text", "required", "caption text must not be empty")
		}
		if !c.Style.Known() {
			add(field+".style", "enum", "unknown caption style %q", c.Style)
		}
	}

	for i, e := range plan.Effects {
		field := fmt.Sprintf("effects[%d]", i)
		if !e.Type.Known() {
			add(field+".type", "enum", "unknown effect type %q", e.Type)
		}
		if !inRange(e.Timestamp) {
			add(field+".timestamp", "range", "%.3f outside [0,%.3f]", e.Timestamp, dur)
		}
		if e.Window < 0 {
			add(field+".window", "range", "window %.3f must not be negative", e.Window)
		}
		if e.Type == models.EffectCropFocusShift && (e.Focus < 0 || e.Focus > 1) {
			add(field+".focus", "range", "focus %.3f outside [0,1]", e.Focus)
		}
	}

	for i, se := range plan.SoundEffects {
		field := fmt.Sprintf("sound_effects[%d]", i)
		if !se.Type.Known() {
			add(field+".type", "enum", "unknown sound effect type %q", se.Type)
		}
		if !inRange(se.Timestamp) {
			add(field+".timestamp", "range", "%.3f outside [0,%.3f]", se.Timestamp, dur)
		}
	}

	switch {
	case !plan.BGM.Mode.Known():
		add("bgm.mode", "enum", "unknown bgm mode %q", plan.BGM.Mode)
	case plan.BGM.Mode == models.BGMModeExplicit:
		if plan.BGM.TrackID == "" {
			add("bgm.track_id", "required", "explicit bgm mode requires a track_id")
		} else if v.tracks == nil || !v.tracks.HasTrack(plan.BGM.TrackID) {
			add("bgm.track_id", "exists", "bgm track %q not in library", plan.BGM.TrackID)
		}
	}

	for i, sp := range plan.Speech {
		field := fmt.Sprintf("speech[%d]", i)
		if !inRange(sp.Start) || !inRange(sp.End) {
			add(field, "range", "[%.3f,%.3f) outside [0,%.3f]", sp.Start, sp.End, dur)
		}
		if sp.End <= sp.Start {
			add(field, "order", "end %.3f is not after start %.3f", sp.End, sp.Start)
		}
	}

	if t := plan.Thumbnail; t != nil && !inRange(t.Timestamp) {
		add("thumbnail.timestamp", "range", "%.3f outside [0,%.3f]", t.Timestamp, dur)
	}

	if len(vs) > 0 {
		return nil, &ValidationError{PlanID: plan.PlanID, Violations: vs}
	}

	return &ValidatedPlan{Plan: plan, Asset: asset}, nil
}
