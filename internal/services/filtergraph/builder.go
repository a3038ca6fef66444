package filtergraph

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/clipforge/clipforge/internal/models"
	"github.com/clipforge/clipforge/internal/services/timeline"
)

const (
	// epsilon tolerance for window bounds checks, matching the resolver.
	epsilon = 1e-9

	// defaultCaptionDuration is how long a caption stays on screen.
	defaultCaptionDuration = 2.0

	// seNominalDuration bounds the fade-out placement for SE clips. Library
	// clips are short one-shots; anything longer just fades a little early.
	seNominalDuration = 1.0

	zoomMax = 1.3
	panZoom = 1.15
)

// Options are the encode-independent knobs the graph depends on. They come
// from the output and ducking config sections; the builder itself never
// reads config so it stays a pure function of its arguments.
type Options struct {
	OutputWidth        int
	OutputHeight       int
	TransitionDuration float64
	CaptionDuration    float64
	DuckAttenuationDB  float64
	DuckAttackMs       int
	DuckReleaseMs      int
	BGMGain            float64
	SEFade             float64
}

// Inputs is everything a graph is built from. SEPaths is parallel to
// Resolved.SoundEffects; BGMPath is empty when no track was selected.
type Inputs struct {
	Asset    *models.SourceAsset
	Plan     *models.EditingPlan
	Resolved *timeline.ResolvedPlan
	BGMPath  string
	SEPaths  []string
}

// Builder constructs filter graphs. Building is deterministic: the same
// inputs and options always yield the same graph, node for node.
type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	if opts.CaptionDuration <= 0 {
		opts.CaptionDuration = defaultCaptionDuration
	}
	return &Builder{opts: opts}
}

// Build assembles the complete graph for one resolved plan.
func (b *Builder) Build(in Inputs) (*Graph, error) {
	tl := in.Resolved.Timeline
	if tl.Empty() {
		return nil, &BuildError{Node: "(graph)", Message: "timeline has no retained material"}
	}
	if len(in.SEPaths) != len(in.Resolved.SoundEffects) {
		return nil, &BuildError{Node: "(graph)", Message: fmt.Sprintf("have %d SE paths for %d placements", len(in.SEPaths), len(in.Resolved.SoundEffects))}
	}

	g := &Graph{
		Inputs:         []string{in.Asset.Path},
		OutputDuration: tl.OutputDuration,
	}

	// Crossfades consume one transition window per boundary, so both the
	// output duration and every instruction time move to the shortened
	// timebase before any window is checked or rendered.
	if b.xfadeActive(in) {
		d := b.opts.TransitionDuration
		joined := tl.OutputDuration - float64(len(tl.Segments)-1)*d
		in.Resolved = remapForTransitions(in.Resolved, d, joined)
		g.OutputDuration = joined
	}

	bgmInput := -1
	if in.BGMPath != "" {
		bgmInput = len(g.Inputs)
		g.Inputs = append(g.Inputs, in.BGMPath)
	}
	seInputs := make([]int, len(in.SEPaths))
	for i, p := range in.SEPaths {
		seInputs[i] = len(g.Inputs)
		g.Inputs = append(g.Inputs, p)
	}

	if err := b.buildVideo(g, in); err != nil {
		return nil, err
	}
	if err := b.buildAudio(g, in, bgmInput, seInputs); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) buildVideo(g *Graph, in Inputs) error {
	tl := in.Resolved.Timeline
	segs := tl.Segments

	segLabels := make([]string, len(segs))
	for i, s := range segs {
		trimmed := fmt.Sprintf("vt%d", i)
		g.Nodes = append(g.Nodes, Node{
			Op:      "trim",
			Args:    []Arg{{"start", fnum(s.SourceStart)}, {"end", fnum(s.SourceEnd)}},
			Inputs:  []string{"0:v"},
			Outputs: []string{trimmed},
			Media:   MediaVideo,
		})
		segLabels[i] = fmt.Sprintf("vs%d", i)
		g.Nodes = append(g.Nodes, Node{
			Op:      "setpts",
			Args:    []Arg{{"", "PTS-STARTPTS"}},
			Inputs:  []string{trimmed},
			Outputs: []string{segLabels[i]},
			Media:   MediaVideo,
		})
	}

	cur := b.joinSegments(g, in, segLabels)

	motion, focusShifts := splitEffects(clipOverlaps(in.Resolved.Effects))
	for _, e := range append(motion, focusShifts...) {
		if err := b.checkWindow("effect "+string(e.Type), e.Start, e.End, g.OutputDuration); err != nil {
			return err
		}
	}

	if len(motion) > 0 {
		out := "vfx"
		g.Nodes = append(g.Nodes, Node{
			Op: "zoompan",
			Args: []Arg{
				{"z", quote(motionZoomExpr(motion))},
				{"x", quote(motionXExpr(motion))},
				{"y", "'(ih-ih/zoom)/2'"},
				{"d", "1"},
				{"s", fmt.Sprintf("%dx%d", in.Asset.Width, in.Asset.Height)},
				{"fps", fnum(in.Asset.FrameRate)},
			},
			Inputs:  []string{cur},
			Outputs: []string{out},
			Media:   MediaVideo,
		})
		cur = out
	}

	cur = b.smartCrop(g, in, cur, focusShifts)

	scaled := "vscaled"
	g.Nodes = append(g.Nodes, Node{
		Op:      "scale",
		Args:    []Arg{{"w", strconv.Itoa(b.opts.OutputWidth)}, {"h", strconv.Itoa(b.opts.OutputHeight)}},
		Inputs:  []string{cur},
		Outputs: []string{scaled},
		Media:   MediaVideo,
	})
	cur = scaled

	sar := "vsar"
	g.Nodes = append(g.Nodes, Node{
		Op:      "setsar",
		Args:    []Arg{{"", "1"}},
		Inputs:  []string{cur},
		Outputs: []string{sar},
		Media:   MediaVideo,
	})
	cur = sar

	for i, c := range in.Resolved.Captions {
		if err := b.checkWindow("caption", c.Time, c.Time, g.OutputDuration); err != nil {
			return err
		}
		end := math.Min(c.Time+b.opts.CaptionDuration, g.OutputDuration)
		out := fmt.Sprintf("vcap%d", i)
		g.Nodes = append(g.Nodes, Node{
			Op:      "drawtext",
			Args:    b.drawtextArgs(c, end),
			Inputs:  []string{cur},
			Outputs: []string{out},
			Media:   MediaVideo,
		})
		cur = out
	}

	g.VideoOut = cur
	return nil
}

// xfadeActive reports whether segment joins crossfade: the plan asks for a
// transition and every segment is long enough to donate the fade window.
// When any segment is too short the whole join falls back to a hard concat.
func (b *Builder) xfadeActive(in Inputs) bool {
	segs := in.Resolved.Timeline.Segments
	d := b.opts.TransitionDuration
	if len(segs) < 2 || in.Plan.Transition == models.TransitionNone || d <= 0 {
		return false
	}
	for _, s := range segs {
		if s.Duration() <= d {
			return false
		}
	}
	return true
}

// remapForTransitions moves instruction times from the concatenated
// timebase into the crossfaded one: every segment boundary before an
// instruction has consumed one transition window. Interval ends never map
// before their starts, and everything clamps into [0, joined].
func remapForTransitions(rp *timeline.ResolvedPlan, d, joined float64) *timeline.ResolvedPlan {
	segs := rp.Timeline.Segments
	at := func(t float64) float64 {
		k := 0
		for i := 1; i < len(segs); i++ {
			if t >= segs[i].OutputStart-epsilon {
				k = i
			}
		}
		t -= float64(k) * d
		return math.Max(0, math.Min(t, joined))
	}

	out := &timeline.ResolvedPlan{Timeline: rp.Timeline}
	for _, c := range rp.Captions {
		c.Time = at(c.Time)
		out.Captions = append(out.Captions, c)
	}
	for _, e := range rp.Effects {
		e.Start = at(e.Start)
		e.End = math.Max(e.Start, at(e.End))
		out.Effects = append(out.Effects, e)
	}
	for _, se := range rp.SoundEffects {
		se.Time = at(se.Time)
		out.SoundEffects = append(out.SoundEffects, se)
	}
	for _, sp := range rp.Speech {
		sp.Start = at(sp.Start)
		sp.End = math.Max(sp.Start, at(sp.End))
		out.Speech = append(out.Speech, sp)
	}
	return out
}

// joinSegments concatenates retained segments, crossfading at boundaries
// when the plan asks for a transition. The shortened duration and the
// instruction remap were already applied in Build.
func (b *Builder) joinSegments(g *Graph, in Inputs, segLabels []string) string {
	segs := in.Resolved.Timeline.Segments
	if len(segLabels) == 1 {
		return segLabels[0]
	}

	if !b.xfadeActive(in) {
		g.Nodes = append(g.Nodes, Node{
			Op:      "concat",
			Args:    []Arg{{"n", strconv.Itoa(len(segLabels))}, {"v", "1"}, {"a", "0"}},
			Inputs:  segLabels,
			Outputs: []string{"vcat"},
			Media:   MediaVideo,
		})
		return "vcat"
	}

	d := b.opts.TransitionDuration
	cur := segLabels[0]
	joined := segs[0].Duration()
	for i := 1; i < len(segLabels); i++ {
		out := fmt.Sprintf("vxf%d", i)
		offset := joined - d
		g.Nodes = append(g.Nodes, Node{
			Op: "xfade",
			Args: []Arg{
				{"transition", string(in.Plan.Transition)},
				{"duration", fnum(d)},
				{"offset", fnum(offset)},
			},
			Inputs:  []string{cur, segLabels[i]},
			Outputs: []string{out},
			Media:   MediaVideo,
		})
		cur = out
		joined += segs[i].Duration() - d
	}
	return cur
}

// smartCrop reframes to the output aspect around the plan's focus point.
// The crop rectangle is clamped inside the frame; crop_focus_shift effect
// windows override the focus for their duration.
func (b *Builder) smartCrop(g *Graph, in Inputs, cur string, shifts []timeline.ResolvedEffect) string {
	srcW, srcH := float64(in.Asset.Width), float64(in.Asset.Height)
	cropW := math.Floor(srcH * float64(b.opts.OutputWidth) / float64(b.opts.OutputHeight))
	if cropW >= srcW {
		return cur // source is already at least as narrow as the target
	}

	xExpr := fnum(CropX(in.Plan.FocusPoint, srcW, cropW))
	for i := len(shifts) - 1; i >= 0; i-- {
		s := shifts[i]
		x := fnum(CropX(s.Focus, srcW, cropW))
		xExpr = fmt.Sprintf("if(between(t,%s,%s),%s,%s)", fnum(s.Start), fnum(s.End), x, xExpr)
	}

	out := "vcrop"
	g.Nodes = append(g.Nodes, Node{
		Op: "crop",
		Args: []Arg{
			{"w", fnum(cropW)},
			{"h", fnum(srcH)},
			{"x", quote(xExpr)},
			{"y", "0"},
		},
		Inputs:  []string{cur},
		Outputs: []string{out},
		Media:   MediaVideo,
	})
	return out
}

func (b *Builder) drawtextArgs(c timeline.ResolvedCaption, end float64) []Arg {
	st := captionStyles[c.Style]
	args := []Arg{
		{"text", quote(escapeDrawtext(c.Text))},
		{"fontcolor", st.FontColor},
		{"fontsize", fmt.Sprintf("h/%d", st.FontSizeDiv)},
		{"borderw", strconv.Itoa(st.BorderW)},
		{"bordercolor", st.BorderColor},
		{"x", "(w-text_w)/2"},
		{"y", fmt.Sprintf("h*%s", fnum(st.YFrac))},
	}
	if st.Box {
		args = append(args, Arg{"box", "1"}, Arg{"boxcolor", st.BoxColor}, Arg{"boxborderw", "12"})
	}
	args = append(args, Arg{"enable", quote(fmt.Sprintf("between(t,%s,%s)", fnum(c.Time), fnum(end)))})
	return args
}

func (b *Builder) buildAudio(g *Graph, in Inputs, bgmInput int, seInputs []int) error {
	tl := in.Resolved.Timeline
	hasExtras := bgmInput >= 0 || len(seInputs) > 0

	var base string
	switch {
	case in.Asset.HasAudio:
		segLabels := make([]string, len(tl.Segments))
		for i, s := range tl.Segments {
			trimmed := fmt.Sprintf("at%d", i)
			g.Nodes = append(g.Nodes, Node{
				Op:      "atrim",
				Args:    []Arg{{"start", fnum(s.SourceStart)}, {"end", fnum(s.SourceEnd)}},
				Inputs:  []string{"0:a"},
				Outputs: []string{trimmed},
				Media:   MediaAudio,
			})
			segLabels[i] = fmt.Sprintf("as%d", i)
			g.Nodes = append(g.Nodes, Node{
				Op:      "asetpts",
				Args:    []Arg{{"", "PTS-STARTPTS"}},
				Inputs:  []string{trimmed},
				Outputs: []string{segLabels[i]},
				Media:   MediaAudio,
			})
		}
		switch {
		case len(segLabels) == 1:
			base = segLabels[0]
		case b.xfadeActive(in):
			// Mirror the video crossfades so the audio stream shortens by
			// the same amount at every boundary.
			cur := segLabels[0]
			for i := 1; i < len(segLabels); i++ {
				out := fmt.Sprintf("axf%d", i)
				g.Nodes = append(g.Nodes, Node{
					Op:      "acrossfade",
					Args:    []Arg{{"d", fnum(b.opts.TransitionDuration)}},
					Inputs:  []string{cur, segLabels[i]},
					Outputs: []string{out},
					Media:   MediaAudio,
				})
				cur = out
			}
			base = cur
		default:
			base = "acat"
			g.Nodes = append(g.Nodes, Node{
				Op:      "concat",
				Args:    []Arg{{"n", strconv.Itoa(len(segLabels))}, {"v", "0"}, {"a", "1"}},
				Inputs:  segLabels,
				Outputs: []string{base},
				Media:   MediaAudio,
			})
		}
	case hasExtras:
		// Silent anchor so SE and BGM still land on a stream of the right
		// length.
		g.Nodes = append(g.Nodes, Node{
			Op:      "anullsrc",
			Args:    []Arg{{"channel_layout", "stereo"}, {"sample_rate", "48000"}},
			Outputs: []string{"anull"},
			Media:   MediaAudio,
		})
		base = "abase"
		g.Nodes = append(g.Nodes, Node{
			Op:      "atrim",
			Args:    []Arg{{"start", "0"}, {"end", fnum(g.OutputDuration)}},
			Inputs:  []string{"anull"},
			Outputs: []string{base},
			Media:   MediaAudio,
		})
	default:
		g.AudioOut = "" // video-only output
		return nil
	}

	mixIn := []string{base}

	if bgmInput >= 0 {
		looped := "bgmloop"
		g.Nodes = append(g.Nodes, Node{
			Op:      "aloop",
			Args:    []Arg{{"loop", "-1"}, {"size", "2147483647"}},
			Inputs:  []string{fmt.Sprintf("%d:a", bgmInput)},
			Outputs: []string{looped},
			Media:   MediaAudio,
		})
		trimmed := "bgmtrim"
		g.Nodes = append(g.Nodes, Node{
			Op:      "atrim",
			Args:    []Arg{{"start", "0"}, {"end", fnum(g.OutputDuration)}},
			Inputs:  []string{looped},
			Outputs: []string{trimmed},
			Media:   MediaAudio,
		})
		bgm := "bgm"
		g.Nodes = append(g.Nodes, Node{
			Op:      "volume",
			Args:    b.bgmVolumeArgs(in),
			Inputs:  []string{trimmed},
			Outputs: []string{bgm},
			Media:   MediaAudio,
		})
		mixIn = append(mixIn, bgm)
	}

	for i, se := range in.Resolved.SoundEffects {
		if err := b.checkWindow("sound effect "+string(se.Type), se.Time, se.Time, g.OutputDuration); err != nil {
			return err
		}
		src := fmt.Sprintf("%d:a", seInputs[i])
		fadeIn := fmt.Sprintf("sefi%d", i)
		g.Nodes = append(g.Nodes, Node{
			Op:      "afade",
			Args:    []Arg{{"t", "in"}, {"st", "0"}, {"d", fnum(b.opts.SEFade)}},
			Inputs:  []string{src},
			Outputs: []string{fadeIn},
			Media:   MediaAudio,
		})
		fadeOut := fmt.Sprintf("sefo%d", i)
		g.Nodes = append(g.Nodes, Node{
			Op:      "afade",
			Args:    []Arg{{"t", "out"}, {"st", fnum(seNominalDuration - b.opts.SEFade)}, {"d", fnum(b.opts.SEFade)}},
			Inputs:  []string{fadeIn},
			Outputs: []string{fadeOut},
			Media:   MediaAudio,
		})
		delayed := fmt.Sprintf("se%d", i)
		ms := int(math.Round(se.Time * 1000))
		g.Nodes = append(g.Nodes, Node{
			Op:      "adelay",
			Args:    []Arg{{"delays", strconv.Itoa(ms)}, {"all", "1"}},
			Inputs:  []string{fadeOut},
			Outputs: []string{delayed},
			Media:   MediaAudio,
		})
		mixIn = append(mixIn, delayed)
	}

	if len(mixIn) == 1 {
		g.AudioOut = base
		return nil
	}

	g.Nodes = append(g.Nodes, Node{
		Op: "amix",
		Args: []Arg{
			{"inputs", strconv.Itoa(len(mixIn))},
			{"duration", "first"},
			{"normalize", "0"},
		},
		Inputs:  mixIn,
		Outputs: []string{"aout"},
		Media:   MediaAudio,
	})
	g.AudioOut = "aout"
	return nil
}

func (b *Builder) bgmVolumeArgs(in Inputs) []Arg {
	if !in.Plan.AutoDuck || len(in.Resolved.Speech) == 0 {
		return []Arg{{"volume", fnum(b.opts.BGMGain)}}
	}
	return []Arg{
		{"volume", quote(b.duckExpr(in.Resolved.Speech))},
		{"eval", "frame"},
	}
}

// duckExpr builds the BGM volume automation: base gain everywhere, ramping
// down to the ducked level across the attack window before each speech
// interval and back up across the release window after it.
func (b *Builder) duckExpr(speech []timeline.Interval) string {
	g := b.opts.BGMGain
	ducked := g * math.Pow(10, -b.opts.DuckAttenuationDB/20)
	attack := float64(b.opts.DuckAttackMs) / 1000
	release := float64(b.opts.DuckReleaseMs) / 1000

	expr := fnum(g)
	for i := len(speech) - 1; i >= 0; i-- {
		iv := speech[i]
		from := math.Max(0, iv.Start-attack)
		to := iv.End + release
		ramp := fmt.Sprintf("min(1,min((t-%s)/%s,(%s-t)/%s))",
			fnum(from), fnum(attack), fnum(to), fnum(release))
		level := fmt.Sprintf("%s-%s*%s", fnum(g), fnum(g-ducked), ramp)
		expr = fmt.Sprintf("if(between(t,%s,%s),%s,%s)", fnum(from), fnum(to), level, expr)
	}
	return expr
}

// DuckGain is the numeric counterpart of the ducking expression for a
// single speech interval. Exposed so the automation curve can be checked
// directly.
func (b *Builder) DuckGain(t float64, iv timeline.Interval) float64 {
	g := b.opts.BGMGain
	ducked := g * math.Pow(10, -b.opts.DuckAttenuationDB/20)
	attack := float64(b.opts.DuckAttackMs) / 1000
	release := float64(b.opts.DuckReleaseMs) / 1000

	from := math.Max(0, iv.Start-attack)
	to := iv.End + release
	if t < from || t > to {
		return g
	}
	ramp := math.Min(1, math.Min((t-from)/attack, (to-t)/release))
	if ramp < 0 {
		ramp = 0
	}
	return g - (g-ducked)*ramp
}

// CropX returns the clamped left edge of a crop window of width cropW in a
// frame of width srcW, centred on the focus fraction.
func CropX(focus, srcW, cropW float64) float64 {
	x := focus*srcW - cropW/2
	return math.Max(0, math.Min(x, srcW-cropW))
}

// clipOverlaps enforces priority between overlapping effect windows: the
// later-starting effect owns the overlapping region, and the earlier effect
// keeps whatever remains on either side of it. Fragments clipped to nothing
// are removed.
func clipOverlaps(effects []timeline.ResolvedEffect) []timeline.ResolvedEffect {
	var out []timeline.ResolvedEffect
	for i, e := range effects {
		fragments := []timeline.ResolvedEffect{e}
		for _, later := range effects[i+1:] {
			var kept []timeline.ResolvedEffect
			for _, f := range fragments {
				if later.Start >= f.End-epsilon || later.End <= f.Start+epsilon {
					kept = append(kept, f)
					continue
				}
				if later.Start-f.Start > epsilon {
					head := f
					head.End = later.Start
					kept = append(kept, head)
				}
				if f.End-later.End > epsilon {
					tail := f
					tail.Start = later.End
					kept = append(kept, tail)
				}
			}
			fragments = kept
		}
		for _, f := range fragments {
			if f.End-f.Start > epsilon {
				out = append(out, f)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func splitEffects(effects []timeline.ResolvedEffect) (motion, focusShifts []timeline.ResolvedEffect) {
	for _, e := range effects {
		if e.Type == models.EffectCropFocusShift {
			focusShifts = append(focusShifts, e)
		} else {
			motion = append(motion, e)
		}
	}
	return motion, focusShifts
}

// motionZoomExpr composes the zoompan zoom expression for every motion
// window; outside all windows the zoom is 1.
func motionZoomExpr(motion []timeline.ResolvedEffect) string {
	expr := "1"
	for i := len(motion) - 1; i >= 0; i-- {
		e := motion[i]
		prog := fmt.Sprintf("(it-%s)/%s", fnum(e.Start), fnum(e.End-e.Start))
		var z string
		switch e.Type {
		case models.EffectZoomIn:
			z = fmt.Sprintf("1+%s*%s", fnum(zoomMax-1), prog)
		case models.EffectZoomOut:
			z = fmt.Sprintf("%s-%s*%s", fnum(zoomMax), fnum(zoomMax-1), prog)
		default: // pans hold a fixed zoom so there is room to move
			z = fnum(panZoom)
		}
		expr = fmt.Sprintf("if(between(it,%s,%s),%s,%s)", fnum(e.Start), fnum(e.End), z, expr)
	}
	return expr
}

// motionXExpr composes the zoompan x expression: centred by default, pans
// sweep the zoom window across the frame over their duration.
func motionXExpr(motion []timeline.ResolvedEffect) string {
	const centre = "(iw-iw/zoom)/2"
	expr := centre
	for i := len(motion) - 1; i >= 0; i-- {
		e := motion[i]
		var x string
		prog := fmt.Sprintf("(it-%s)/%s", fnum(e.Start), fnum(e.End-e.Start))
		switch e.Type {
		case models.EffectPanLeft:
			x = fmt.Sprintf("(iw-iw/zoom)*(1-%s)", prog)
		case models.EffectPanRight:
			x = fmt.Sprintf("(iw-iw/zoom)*%s", prog)
		default:
			continue // zooms stay centred
		}
		expr = fmt.Sprintf("if(between(it,%s,%s),%s,%s)", fnum(e.Start), fnum(e.End), x, expr)
	}
	return expr
}

func (b *Builder) checkWindow(what string, start, end, limit float64) error {
	if start < -epsilon || end > limit+epsilon || end < start-epsilon {
		return &BuildError{
			Node:    what,
			Message: fmt.Sprintf("window [%s, %s] outside output range [0, %s]", fnum(start), fnum(end), fnum(limit)),
		}
	}
	return nil
}

// fnum formats a float with up to four decimals and no trailing zeros, so
// rendered graphs are stable across runs.
func fnum(v float64) string {
	return strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
}

func quote(s string) string {
	return "'" + s + "'"
}
