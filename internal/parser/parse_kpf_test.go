package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const kpfBasicYAML = `- { meta: "example annotations" }
- { geom: { id0: 1, id1: 7, ts0: 0, g0: 10 20 30 40, conf: 0.9 } }
- { geom: { id0: 2, id1: 7, ts0: 1, g0: 12 22 32 42, conf: 0.85 } }
- { geom: { id0: 3, id1: 7, ts0: 2, g0: 14 24 34 44, conf: 0.4 } }
- { geom: { id0: 4, id1: 9, ts0: 5, g0: 100 100 50 50 } }
- { types: { id1: 7, cset3: { fish: 0.9 } } }
- { types: { id1: 9, cset3: { rock: 0.6, scallop: 0.3 } } }
- { act: { act2: { swimming: 1.0 }, id2: 3, actors: [ { id1: 7 } ] } }
`

func TestLoadKPFTracks_Basic(t *testing.T) {
	p := newTestParser()
	doc, err := p.LoadKPFTracks(readers(kpfBasicYAML))
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 2)

	track := doc.Tracks[7]
	require.NotNil(t, track)
	assert.Equal(t, 0, track.Begin)
	assert.Equal(t, 2, track.End)
	require.Len(t, track.Features, 3)
	assert.InDelta(t, 0.9, track.Features[0].Confidence, 1e-9)
	assert.InDelta(t, 0.85, track.Features[1].Confidence, 1e-9)
	assert.InDelta(t, 0.4, track.Features[2].Confidence, 1e-9)
	assert.True(t, track.Features[0].Keyframe)

	name, conf, ok := track.Category()
	require.True(t, ok)
	assert.Equal(t, "fish", name)
	assert.InDelta(t, 0.9, conf, 1e-9)
	assert.Equal(t, "swimming", track.Attributes["activity"])

	other := doc.Tracks[9]
	require.NotNil(t, other)
	// Missing conf defaults to full confidence, inverted corners are reordered.
	assert.InDelta(t, 1.0, other.Features[0].Confidence, 1e-9)
	assert.Equal(t, [4]float64{50, 50, 100, 100}, other.Features[0].Bounds)
	require.Len(t, other.ConfidencePairs, 2)
	assert.Equal(t, "rock", other.ConfidencePairs[0].Name)
}

func TestLoadKPFTracks_UnknownTrackReferencesSkipped(t *testing.T) {
	const stream = `- { geom: { id0: 1, id1: 1, ts0: 0, g0: 0 0 5 5 } }
- { types: { id1: 99, cset3: { fish: 1.0 } } }
- { act: { act2: { running: 1.0 }, id2: 1, actors: [ { id1: 99 } ] } }
`
	p := newTestParser()
	doc, err := p.LoadKPFTracks(readers(stream))
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 1)
	assert.Empty(t, doc.Tracks[1].ConfidencePairs)
	assert.NotContains(t, doc.Tracks[1].Attributes, "activity")
}

func TestLoadKPFTracks_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json object fed as kpf", `{"images": [], "annotations": [], "categories": []}`},
		{"csv fed as kpf", "0,img.png,0,10,20,30,40,1.0,-1\n"},
		{"geom missing track id", "- { geom: { ts0: 0, g0: 0 0 5 5 } }\n"},
		{"geom malformed g0", "- { geom: { id1: 1, ts0: 0, g0: 1 2 3 } }\n"},
		{"geom negative frame", "- { geom: { id1: 1, ts0: -4, g0: 0 0 5 5 } }\n"},
		{"no recognizable packets", "- { bogus: 1 }\n"},
		{"empty input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser()
			_, err := p.LoadKPFTracks(readers(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrWrongDataType)
		})
	}
}

func TestLoadKPFTracks_MultipleSources(t *testing.T) {
	first := "- { geom: { id1: 1, ts0: 0, g0: 0 0 5 5 } }\n"
	second := "- { geom: { id1: 1, ts0: 1, g0: 1 1 6 6 } }\n- { types: { id1: 1, cset3: { fish: 1.0 } } }\n"

	p := newTestParser()
	doc, err := p.LoadKPFTracks(readers(first, second))
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 1)
	assert.Len(t, doc.Tracks[1].Features, 2)
}
