package filtergraph

import (
	"fmt"
	"regexp"
	"strings"
)

// Media types a node's ports: a node consumes and produces exactly one
// media kind.
type Media int

const (
	MediaVideo Media = iota
	MediaAudio
)

func (m Media) String() string {
	if m == MediaAudio {
		return "audio"
	}
	return "video"
}

// BuildError indicates the plan asked for a graph that cannot be built,
// e.g. a node window outside the output duration. Always fatal; the
// builder never clamps silently.
type BuildError struct {
	Node    string
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("filter graph build failed at %s: %s", e.Node, e.Message)
}

// Arg is one filter argument. Order is preserved so graph rendering is
// byte-for-byte deterministic.
type Arg struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Node is one processing step. Inputs reference either a source stream pad
// ("0:v", "1:a") or the output label of an earlier node; source nodes
// (e.g. anullsrc) have no inputs.
type Node struct {
	Op      string   `json:"op"`
	Args    []Arg    `json:"args,omitempty"`
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs"`
	Media   Media    `json:"media"`
}

// Graph is an ordered, immutable processing graph. Nodes appear in
// dependency order; rendering concatenates them into a single ffmpeg
// filter_complex program. Built exactly once per job and executed exactly
// once.
type Graph struct {
	Inputs         []string `json:"inputs"` // file paths in input-index order
	Nodes          []Node   `json:"nodes"`
	VideoOut       string   `json:"video_out"`
	AudioOut       string   `json:"audio_out,omitempty"`
	OutputDuration float64  `json:"output_duration"`
}

// NodeCount returns the number of processing nodes.
func (g *Graph) NodeCount() int {
	return len(g.Nodes)
}

// FilterComplex renders the graph as an ffmpeg filter_complex program.
// Identical graphs render to identical strings.
func (g *Graph) FilterComplex() string {
	parts := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		var b strings.Builder
		for _, in := range n.Inputs {
			b.WriteString("[" + in + "]")
		}
		b.WriteString(n.Op)
		for i, a := range n.Args {
			if i == 0 {
				b.WriteString("=")
			} else {
				b.WriteString(":")
			}
			if a.Key != "" {
				b.WriteString(a.Key + "=")
			}
			b.WriteString(a.Value)
		}
		for _, out := range n.Outputs {
			b.WriteString("[" + out + "]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ";")
}

var sourcePad = regexp.MustCompile(`^\d+:(v|a)$`)

// Validate checks structural soundness: every input is either a source
// stream pad or the output of an earlier node, every intermediate label is
// consumed exactly once, and the declared output labels exist.
func (g *Graph) Validate() error {
	produced := map[string]Media{}
	consumed := map[string]bool{}

	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			if sourcePad.MatchString(in) {
				continue
			}
			media, ok := produced[in]
			if !ok {
				return &BuildError{Node: n.Op, Message: fmt.Sprintf("input %q produced by no earlier node", in)}
			}
			if media != n.Media {
				return &BuildError{Node: n.Op, Message: fmt.Sprintf("input %q is %s but node consumes %s", in, media, n.Media)}
			}
			if consumed[in] {
				return &BuildError{Node: n.Op, Message: fmt.Sprintf("input %q consumed twice", in)}
			}
			consumed[in] = true
		}
		for _, out := range n.Outputs {
			if _, dup := produced[out]; dup {
				return &BuildError{Node: n.Op, Message: fmt.Sprintf("output label %q produced twice", out)}
			}
			produced[out] = n.Media
		}
	}

	if _, ok := produced[g.VideoOut]; !ok {
		return &BuildError{Node: "(graph)", Message: fmt.Sprintf("video output %q never produced", g.VideoOut)}
	}
	if g.AudioOut != "" {
		if _, ok := produced[g.AudioOut]; !ok {
			return &BuildError{Node: "(graph)", Message: fmt.Sprintf("audio output %q never produced", g.AudioOut)}
		}
	}

	for label := range produced {
		if label != g.VideoOut && label != g.AudioOut && !consumed[label] {
			return &BuildError{Node: "(graph)", Message: fmt.Sprintf("dangling label %q", label)}
		}
	}

	return nil
}
