package parser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dive-annotations/trackconv/internal/model"
)

const viameBasicCSV = `# 1: Detection or Track-id,2: Video or Image Identifier,3: Unique Frame Identifier,4-7: Img-bbox(TL_x,TL_y,BR_x,BR_y),8: Detection or Length Confidence,9: Target Length (0 or -1 if invalid),10-11+: Repeated Species, Confidence Pairs or Attributes
0,frame0001.png,0,10,20,30,40,0.9,-1,fish,0.9
0,frame0002.png,1,12,22,32,42,0.8,-1,fish,0.8
1,frame0001.png,0,50,60,70,80,0.5,-1,scallop,0.5,rock,0.3
`

func TestLoadViameCSV_Basic(t *testing.T) {
	p := newTestParser()
	doc, err := p.LoadViameCSV(readers(viameBasicCSV))
	require.NoError(t, err)

	require.Len(t, doc.Tracks, 2)

	track := doc.Tracks[0]
	require.NotNil(t, track)
	assert.Equal(t, 0, track.Begin)
	assert.Equal(t, 1, track.End)
	require.Len(t, track.Features, 2)
	assert.Equal(t, [4]float64{10, 20, 30, 40}, track.Features[0].Bounds)
	assert.InDelta(t, 0.9, track.Features[0].Confidence, 1e-9)

	name, conf, ok := track.Category()
	require.True(t, ok)
	assert.Equal(t, "fish", name)
	assert.InDelta(t, 0.9, conf, 1e-9)

	multi := doc.Tracks[1]
	require.NotNil(t, multi)
	require.Len(t, multi.ConfidencePairs, 2)
	assert.Equal(t, "scallop", multi.ConfidencePairs[0].Name)
	assert.Equal(t, "rock", multi.ConfidencePairs[1].Name)

	assert.Equal(t, []string{"frame0001.png", "frame0002.png"}, doc.Filenames)
}

func TestLoadViameCSV_Markers(t *testing.T) {
	const csv = `1,img.png,0,10,20,30,40,1.0,55.5,fish,1.0,(kp) head 22 22,(kp) tail 33 33,(atr) size 12,(trk-atr) caught true,(poly) 10 20 30 20 30 40
`
	p := newTestParser()
	doc, err := p.LoadViameCSV(readers(csv))
	require.NoError(t, err)

	track := doc.Tracks[1]
	require.NotNil(t, track)
	f := track.Features[0]

	require.NotNil(t, f.Head)
	assert.Equal(t, [2]float64{22, 22}, *f.Head)
	require.NotNil(t, f.Tail)
	assert.Equal(t, [2]float64{33, 33}, *f.Tail)
	assert.InDelta(t, 55.5, f.FishLength, 1e-9)

	assert.Equal(t, 12.0, f.Attributes["size"])
	assert.Equal(t, true, track.Attributes["caught"])

	require.NotNil(t, f.Geometry)
	poly, ok := f.Geometry.AsPolygon()
	require.True(t, ok)
	seq := poly.ExteriorRing().Coordinates()
	// Ring is closed, so the three points come back with the first repeated.
	assert.Equal(t, 4, seq.Length())

	sizeDef, ok := doc.Attributes[model.AttributeKey(model.BelongsDetection, "size")]
	require.True(t, ok)
	assert.Equal(t, model.DatatypeNumber, sizeDef.Datatype)

	caughtDef, ok := doc.Attributes[model.AttributeKey(model.BelongsTrack, "caught")]
	require.True(t, ok)
	assert.Equal(t, model.DatatypeBoolean, caughtDef.Datatype)
}

func TestLoadViameCSV_AttributeTypeConflict(t *testing.T) {
	const csv = `0,img.png,0,10,20,30,40,1.0,-1,fish,1.0,(atr) size 12
0,img.png,1,10,20,30,40,1.0,-1,fish,1.0,(atr) size large
`
	p := newTestParser()
	_, err := p.LoadViameCSV(readers(csv))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttributeTypeConflict)
}

func TestLoadViameCSV_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"comments only", "# header line only\n"},
		{"too few columns", "0,img.png,0,10,20\n"},
		{"non-numeric track id", "abc,img.png,0,10,20,30,40,1.0,-1\n"},
		{"non-numeric bounds", "0,img.png,0,x,20,30,40,1.0,-1\n"},
		{"yaml fed as csv", "- { geom: { id1: 7 } }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser()
			_, err := p.LoadViameCSV(readers(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrWrongDataType)
		})
	}
}

func TestLoadViameCSV_DuplicateFrames(t *testing.T) {
	const csv = `0,img.png,0,10,20,30,40,0.9,-1,fish,0.9
0,img.png,0,11,21,31,41,0.8,-1,fish,0.8
`
	t.Run("reject", func(t *testing.T) {
		p := newTestParser()
		_, err := p.LoadViameCSV(readers(csv))
		require.Error(t, err)
	})

	t.Run("merge keeps latest", func(t *testing.T) {
		p := newTestParser(WithDuplicateFramePolicy(DuplicateMerge))
		doc, err := p.LoadViameCSV(readers(csv))
		require.NoError(t, err)
		require.Len(t, doc.Tracks[0].Features, 1)
		assert.Equal(t, [4]float64{11, 21, 31, 41}, doc.Tracks[0].Features[0].Bounds)
	})
}

func TestLoadViameCSV_MultipleSources(t *testing.T) {
	first := "0,img0.png,0,10,20,30,40,0.9,-1,fish,0.9\n"
	second := "1,img1.png,1,50,60,70,80,0.5,-1,rock,0.5\n"

	p := newTestParser()
	doc, err := p.LoadViameCSV(readers(first, second))
	require.NoError(t, err)
	assert.Len(t, doc.Tracks, 2)
}

func readers(chunks ...string) []io.Reader {
	out := make([]io.Reader, len(chunks))
	for i, c := range chunks {
		out[i] = strings.NewReader(c)
	}
	return out
}
