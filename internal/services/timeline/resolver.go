package timeline

import (
	"fmt"
	"math"
	"sort"

	"github.com/clipforge/clipforge/internal/models"
)

// epsilon absorbs float accumulation noise when comparing timestamps.
const epsilon = 1e-9

// ResolutionError indicates an internal consistency failure in timeline
// math. It should never occur on validated input; seeing one means a
// resolver bug, so it carries full diagnostic context and is fatal.
type ResolutionError struct {
	Message string
	Details string
}

func (e *ResolutionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("timeline resolution failed: %s (%s)", e.Message, e.Details)
	}
	return "timeline resolution failed: " + e.Message
}

// Segment maps one retained source interval onto the output timeline.
type Segment struct {
	SourceStart float64 `json:"source_start"`
	SourceEnd   float64 `json:"source_end"`
	OutputStart float64 `json:"output_start"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.SourceEnd - s.SourceStart
}

// OutputEnd returns the segment's end position in output time.
func (s Segment) OutputEnd() float64 {
	return s.OutputStart + s.Duration()
}

// Timeline is the ordered set of retained segments. Output time is strictly
// monotonic and gapless; OutputDuration equals the sum of segment lengths.
type Timeline struct {
	Segments       []Segment `json:"segments"`
	OutputDuration float64   `json:"output_duration"`
}

// Empty reports whether every part of the source was removed.
func (t *Timeline) Empty() bool {
	return len(t.Segments) == 0
}

// MapTime remaps a source timestamp to output time. The second return is
// false when the timestamp falls inside removed material; callers must drop
// the instruction, never shift it into adjacent content.
func (t *Timeline) MapTime(src float64) (float64, bool) {
	i := sort.Search(len(t.Segments), func(i int) bool {
		return t.Segments[i].SourceEnd > src
	})
	if i == len(t.Segments) {
		return 0, false
	}
	seg := t.Segments[i]
	if src < seg.SourceStart-epsilon {
		return 0, false
	}
	return seg.OutputStart + (src - seg.SourceStart), true
}

// mapClipped remaps a source timestamp, clipping into retained output range
// when it falls in removed material: the result is the output position of
// the nearest retained content at or before src. Used only for the *end* of
// windowed instructions; starts in removed material are dropped instead.
func (t *Timeline) mapClipped(src float64) float64 {
	if out, ok := t.MapTime(src); ok {
		return out
	}
	// src sits in a gap or past the last segment; clip to the output end of
	// the previous segment.
	i := sort.Search(len(t.Segments), func(i int) bool {
		return t.Segments[i].SourceStart > src
	})
	if i == 0 {
		return 0
	}
	return t.Segments[i-1].OutputEnd()
}

// Normalize turns an arbitrary cut list into a non-overlapping, fully
// ordered partition of [0, duration). Uncovered regions become implicit
// keeps; where keep and remove overlap, remove wins. Adjacent intervals with
// the same action are merged.
func Normalize(cuts []models.CutInstruction, duration float64) []models.CutInstruction {
	// Collect elementary boundaries.
	bounds := []float64{0, duration}
	for _, c := range cuts {
		if c.Start > 0 && c.Start < duration {
			bounds = append(bounds, c.Start)
		}
		if c.End > 0 && c.End < duration {
			bounds = append(bounds, c.End)
		}
	}
	sort.Float64s(bounds)
	bounds = dedupe(bounds)

	var partition []models.CutInstruction
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if hi-lo <= epsilon {
			continue
		}
		action := actionAt(cuts, (lo+hi)/2)

		if n := len(partition); n > 0 && partition[n-1].Action == action && math.Abs(partition[n-1].End-lo) <= epsilon {
			partition[n-1].End = hi
			continue
		}
		partition = append(partition, models.CutInstruction{Start: lo, End: hi, Action: action})
	}

	return partition
}

// actionAt decides the cut action at a point: remove takes precedence over
// keep, and points covered by no instruction default to keep.
func actionAt(cuts []models.CutInstruction, t float64) models.CutAction {
	action := models.CutActionKeep
	for _, c := range cuts {
		if t >= c.Start && t < c.End && c.Action == models.CutActionRemove {
			return models.CutActionRemove
		}
	}
	return action
}

func dedupe(sorted []float64) []float64 {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v-out[len(out)-1] > epsilon {
			out = append(out, v)
		}
	}
	return out
}

// Resolve applies the cut instructions to the source duration and produces
// the output timeline: retained segments with contiguous output offsets
// assigned by cumulative sum in source order.
func Resolve(cuts []models.CutInstruction, duration float64) (*Timeline, error) {
	if duration <= 0 {
		return nil, &ResolutionError{Message: "non-positive source duration",
			Details: fmt.Sprintf("duration=%f", duration)}
	}

	partition := Normalize(cuts, duration)

	tl := &Timeline{}
	var offset float64
	for _, p := range partition {
		if p.Action != models.CutActionKeep {
			continue
		}
		tl.Segments = append(tl.Segments, Segment{
			SourceStart: p.Start,
			SourceEnd:   p.End,
			OutputStart: offset,
		})
		offset += p.End - p.Start
	}
	tl.OutputDuration = offset

	if err := tl.check(); err != nil {
		return nil, err
	}

	return tl, nil
}

// check verifies the timeline invariants: strictly monotonic, gapless
// output, total duration equal to the retained sum.
func (t *Timeline) check() error {
	var sum float64
	for i, seg := range t.Segments {
		if seg.SourceEnd <= seg.SourceStart {
			return &ResolutionError{Message: "empty retained segment",
				Details: fmt.Sprintf("segment %d: [%f,%f)", i, seg.SourceStart, seg.SourceEnd)}
		}
		if math.Abs(seg.OutputStart-sum) > epsilon {
			return &ResolutionError{Message: "output timeline has a gap or overlap",
				Details: fmt.Sprintf("segment %d: output_start=%f want %f", i, seg.OutputStart, sum)}
		}
		if i > 0 && seg.SourceStart < t.Segments[i-1].SourceEnd-epsilon {
			return &ResolutionError{Message: "retained segments out of order",
				Details: fmt.Sprintf("segment %d starts at %f before previous end %f",
					i, seg.SourceStart, t.Segments[i-1].SourceEnd)}
		}
		sum += seg.Duration()
	}
	if math.Abs(sum-t.OutputDuration) > epsilon {
		return &ResolutionError{Message: "output duration does not equal retained sum",
			Details: fmt.Sprintf("sum=%f output_duration=%f", sum, t.OutputDuration)}
	}
	return nil
}
