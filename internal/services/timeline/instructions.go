package timeline

import (
	"math"
	"sort"

	"github.com/clipforge/clipforge/internal/models"
)

// defaultEffectWindow is used when an effect instruction omits its window.
const defaultEffectWindow = 1.5

// ResolvedCaption is a caption re-expressed in output time.
type ResolvedCaption struct {
	Time  float64             `json:"time"`
	Text  string              `json:"text"`
	Style models.CaptionStyle `json:"style"`
}

// ResolvedEffect is a visual effect window re-expressed in output time.
type ResolvedEffect struct {
	Start float64           `json:"start"`
	End   float64           `json:"end"`
	Type  models.EffectType `json:"type"`
	Focus float64           `json:"focus,omitempty"`
}

// ResolvedSoundEffect is an SE placement re-expressed in output time.
type ResolvedSoundEffect struct {
	Time float64                `json:"time"`
	Type models.SoundEffectType `json:"type"`
}

// Interval is a half-open output-time range.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ResolvedPlan carries every non-cut instruction remapped to output time.
// Lists are sorted by output time; this ordering is part of the graph
// builder's determinism contract.
type ResolvedPlan struct {
	Timeline     *Timeline             `json:"timeline"`
	Captions     []ResolvedCaption     `json:"captions,omitempty"`
	Effects      []ResolvedEffect      `json:"effects,omitempty"`
	SoundEffects []ResolvedSoundEffect `json:"sound_effects,omitempty"`
	Speech       []Interval            `json:"speech,omitempty"`
}

// DroppedInstruction records why an instruction did not survive resolution.
type DroppedInstruction struct {
	Kind       string  `json:"kind"`
	SourceTime float64 `json:"source_time"`
	Reason     string  `json:"reason"`
}

// Report lists every instruction dropped during resolution. Drops are
// expected (the plan may caption removed material) but always diagnosed,
// never silent.
type Report struct {
	Dropped []DroppedInstruction `json:"dropped,omitempty"`
}

func (r *Report) drop(kind string, srcTime float64, reason string) {
	r.Dropped = append(r.Dropped, DroppedInstruction{Kind: kind, SourceTime: srcTime, Reason: reason})
}

// ResolveInstructions remaps every caption, effect, SE placement, and
// speech interval from source time to output time. Instructions whose
// source timestamp falls inside removed material are dropped with a
// diagnostic.
func ResolveInstructions(plan *models.EditingPlan, tl *Timeline) (*ResolvedPlan, *Report) {
	resolved := &ResolvedPlan{Timeline: tl}
	report := &Report{}

	for _, c := range plan.Captions {
		out, ok := tl.MapTime(c.Timestamp)
		if !ok {
			report.drop("caption", c.Timestamp, "timestamp inside removed interval")
			continue
		}
		resolved.Captions = append(resolved.Captions, ResolvedCaption{
			Time:  out,
			Text:  c.Text,
			Style: c.Style,
		})
	}

	for _, e := range plan.Effects {
		window := e.Window
		if window <= 0 {
			window = defaultEffectWindow
		}
		start, ok := tl.MapTime(e.Timestamp)
		if !ok {
			report.drop(string(e.Type), e.Timestamp, "effect start inside removed interval")
			continue
		}
		end := tl.mapClipped(e.Timestamp + window)
		if end <= start {
			report.drop(string(e.Type), e.Timestamp, "effect window fully removed")
			continue
		}
		resolved.Effects = append(resolved.Effects, ResolvedEffect{
			Start: start,
			End:   end,
			Type:  e.Type,
			Focus: e.Focus,
		})
	}

	for _, se := range plan.SoundEffects {
		out, ok := tl.MapTime(se.Timestamp)
		if !ok {
			report.drop(string(se.Type), se.Timestamp, "timestamp inside removed interval")
			continue
		}
		resolved.SoundEffects = append(resolved.SoundEffects, ResolvedSoundEffect{
			Time: out,
			Type: se.Type,
		})
	}

	resolved.Speech = remapSpeech(plan.Speech, tl)

	sort.SliceStable(resolved.Captions, func(i, j int) bool {
		return resolved.Captions[i].Time < resolved.Captions[j].Time
	})
	sort.SliceStable(resolved.Effects, func(i, j int) bool {
		return resolved.Effects[i].Start < resolved.Effects[j].Start
	})
	sort.SliceStable(resolved.SoundEffects, func(i, j int) bool {
		return resolved.SoundEffects[i].Time < resolved.SoundEffects[j].Time
	})

	return resolved, report
}

// remapSpeech intersects source speech intervals with retained segments and
// returns the merged output-time intervals. Speech falling in removed
// material simply disappears; no diagnostic is needed since speech flags
// annotate the source rather than instruct an edit.
func remapSpeech(speech []models.SpeechInterval, tl *Timeline) []Interval {
	var out []Interval
	for _, sp := range speech {
		for _, seg := range tl.Segments {
			lo := math.Max(sp.Start, seg.SourceStart)
			hi := math.Min(sp.End, seg.SourceEnd)
			if hi-lo <= epsilon {
				continue
			}
			out = append(out, Interval{
				Start: seg.OutputStart + (lo - seg.SourceStart),
				End:   seg.OutputStart + (hi - seg.SourceStart),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	// Merge touching intervals so the ducking node gets a minimal set.
	merged := out[:0]
	for _, iv := range out {
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End+epsilon {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}
