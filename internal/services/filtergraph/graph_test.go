package filtergraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterComplexRendering(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{
				Op:      "trim",
				Args:    []Arg{{"start", "0"}, {"end", "5"}},
				Inputs:  []string{"0:v"},
				Outputs: []string{"vt0"},
				Media:   MediaVideo,
			},
			{
				Op:      "setpts",
				Args:    []Arg{{"", "PTS-STARTPTS"}},
				Inputs:  []string{"vt0"},
				Outputs: []string{"vout"},
				Media:   MediaVideo,
			},
		},
		VideoOut: "vout",
	}

	assert.Equal(t, "[0:v]trim=start=0:end=5[vt0];[vt0]setpts=PTS-STARTPTS[vout]", g.FilterComplex())
}

func TestGraphValidate(t *testing.T) {
	valid := func() *Graph {
		return &Graph{
			Nodes: []Node{
				{Op: "trim", Inputs: []string{"0:v"}, Outputs: []string{"a"}, Media: MediaVideo},
				{Op: "scale", Inputs: []string{"a"}, Outputs: []string{"vout"}, Media: MediaVideo},
			},
			VideoOut: "vout",
		}
	}

	t.Run("valid graph", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	t.Run("undefined input", func(t *testing.T) {
		g := valid()
		g.Nodes[1].Inputs = []string{"missing"}
		err := g.Validate()
		require.Error(t, err)
		var bErr *BuildError
		require.ErrorAs(t, err, &bErr)
		assert.Contains(t, bErr.Message, "missing")
	})

	t.Run("label consumed twice", func(t *testing.T) {
		g := valid()
		g.Nodes = append(g.Nodes, Node{Op: "crop", Inputs: []string{"a"}, Outputs: []string{"b"}, Media: MediaVideo})
		assert.Error(t, g.Validate())
	})

	t.Run("duplicate output label", func(t *testing.T) {
		g := valid()
		g.Nodes = append(g.Nodes, Node{Op: "crop", Inputs: []string{"vout"}, Outputs: []string{"a"}, Media: MediaVideo})
		assert.Error(t, g.Validate())
	})

	t.Run("media mismatch", func(t *testing.T) {
		g := valid()
		g.Nodes[1].Media = MediaAudio
		assert.Error(t, g.Validate())
	})

	t.Run("missing video output", func(t *testing.T) {
		g := valid()
		g.VideoOut = "nope"
		assert.Error(t, g.Validate())
	})

	t.Run("dangling intermediate label", func(t *testing.T) {
		g := valid()
		g.Nodes = append(g.Nodes, Node{Op: "anullsrc", Outputs: []string{"dangling"}, Media: MediaAudio})
		assert.Error(t, g.Validate())
	})
}
