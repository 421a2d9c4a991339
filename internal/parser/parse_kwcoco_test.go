package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dive-annotations/trackconv/internal/model"
)

const cocoBasicJSON = `{
  "images": [
    {"id": 1, "file_name": "frame_2.png"},
    {"id": 2, "file_name": "frame_10.png"},
    {"id": 3, "file_name": "frame_1.png"}
  ],
  "categories": [
    {"id": 1, "name": "fish"},
    {"id": 2, "name": "rock"}
  ],
  "annotations": [
    {"id": 10, "image_id": 3, "category_id": 1, "track_id": 5, "bbox": [10, 20, 20, 20], "score": 0.9},
    {"id": 11, "image_id": 1, "category_id": 1, "track_id": 5, "bbox": [12, 22, 20, 20], "score": 0.8},
    {"id": 12, "image_id": 2, "category_id": 2, "bbox": [50, 60, 20, 20]}
  ]
}`

func TestLoadCocoTracks_Basic(t *testing.T) {
	p := newTestParser()
	doc, err := p.LoadCocoTracks(readers(cocoBasicJSON))
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 2)

	// Filenames sort numerically, so frame_10 follows frame_2.
	assert.Equal(t, []string{"frame_1.png", "frame_2.png", "frame_10.png"}, doc.Filenames)

	track := doc.Tracks[5]
	require.NotNil(t, track)
	require.Len(t, track.Features, 2)
	assert.Equal(t, 0, track.Features[0].Frame)
	assert.Equal(t, 1, track.Features[1].Frame)
	// bbox is x,y,w,h; bounds are corner pairs.
	assert.Equal(t, [4]float64{10, 20, 30, 40}, track.Features[0].Bounds)
	// The category pair keeps the highest score seen across the group's
	// annotations, not the last one.
	name, conf, ok := track.Category()
	require.True(t, ok)
	assert.Equal(t, "fish", name)
	assert.InDelta(t, 0.9, conf, 1e-9)

	// No track_id: the annotation id becomes a singleton track id.
	singleton := doc.Tracks[12]
	require.NotNil(t, singleton)
	require.Len(t, singleton.Features, 1)
	assert.Equal(t, 2, singleton.Features[0].Frame)
	assert.InDelta(t, 1.0, singleton.Features[0].Confidence, 1e-9)
}

func TestLoadCocoTracks_ExplicitFrameIndex(t *testing.T) {
	const doc = `{
  "images": [
    {"id": 1, "file_name": "b.png", "frame_index": 4},
    {"id": 2, "file_name": "a.png", "frame_index": 0}
  ],
  "categories": [{"id": 1, "name": "fish"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5]}
  ]
}`
	p := newTestParser()
	out, err := p.LoadCocoTracks(readers(doc))
	require.NoError(t, err)
	assert.Equal(t, 4, out.Tracks[1].Features[0].Frame)
}

func TestLoadCocoTracks_AttributePromotion(t *testing.T) {
	const doc = `{
  "images": [{"id": 1, "file_name": "a.png"}],
  "categories": [{"id": 1, "name": "fish"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5],
     "size": 12.5, "tagged": true, "notes": "blurry", "area": 25}
  ]
}`
	p := newTestParser()
	out, err := p.LoadCocoTracks(readers(doc))
	require.NoError(t, err)

	f := out.Tracks[1].Features[0]
	assert.Equal(t, 12.5, f.Attributes["size"])
	assert.Equal(t, true, f.Attributes["tagged"])
	assert.Equal(t, "blurry", f.Attributes["notes"])
	// Canonical COCO fields never promote.
	assert.NotContains(t, f.Attributes, "area")

	assert.Equal(t, model.DatatypeNumber,
		out.Attributes[model.AttributeKey(model.BelongsDetection, "size")].Datatype)
	assert.Equal(t, model.DatatypeBoolean,
		out.Attributes[model.AttributeKey(model.BelongsDetection, "tagged")].Datatype)
	assert.Equal(t, model.DatatypeText,
		out.Attributes[model.AttributeKey(model.BelongsDetection, "notes")].Datatype)
}

func TestLoadCocoTracks_Geometry(t *testing.T) {
	const doc = `{
  "images": [{"id": 1, "file_name": "a.png"}],
  "categories": [{"id": 1, "name": "fish"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5],
     "keypoints": [1, 2, 2, 3, 4, 0]},
    {"id": 2, "image_id": 1, "category_id": 1, "track_id": 9, "bbox": [0, 0, 5, 5],
     "segmentation": [[0, 0, 5, 0, 5, 5]]}
  ]
}`
	p := newTestParser()
	out, err := p.LoadCocoTracks(readers(doc))
	require.NoError(t, err)

	kp := out.Tracks[1].Features[0]
	require.NotNil(t, kp.Geometry)
	mp, ok := kp.Geometry.AsMultiPoint()
	require.True(t, ok)
	// The zero-visibility keypoint is dropped.
	assert.Equal(t, 1, mp.NumPoints())

	seg := out.Tracks[9].Features[0]
	require.NotNil(t, seg.Geometry)
	poly, ok := seg.Geometry.AsPolygon()
	require.True(t, ok)
	assert.Equal(t, 4, poly.ExteriorRing().Coordinates().Length())
}

func TestLoadCocoTracks_DegenerateSegmentationSkipped(t *testing.T) {
	// A two-point ring cannot build a polygon; the detection survives with
	// its bounding box and no geometry.
	const doc = `{
  "images": [{"id": 1, "file_name": "a.png"}],
  "categories": [{"id": 1, "name": "fish"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5],
     "segmentation": [[0, 0, 5, 5]]}
  ]
}`
	p := newTestParser()
	out, err := p.LoadCocoTracks(readers(doc))
	require.NoError(t, err)

	f := out.Tracks[1].Features[0]
	assert.Nil(t, f.Geometry)
	assert.Equal(t, [4]float64{0, 0, 5, 5}, f.Bounds)
}

func TestLoadCocoTracks_UnknownImageDropped(t *testing.T) {
	const doc = `{
  "images": [{"id": 1, "file_name": "a.png"}],
  "categories": [{"id": 1, "name": "fish"}],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 5, 5]},
    {"id": 2, "image_id": 404, "category_id": 1, "bbox": [0, 0, 5, 5]}
  ]
}`
	p := newTestParser()
	out, err := p.LoadCocoTracks(readers(doc))
	require.NoError(t, err)
	assert.Len(t, out.Tracks, 1)
	assert.Contains(t, out.Tracks, 1)
}

func TestLoadCocoTracks_StructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"csv fed as coco", "0,img.png,0,10,20,30,40,1.0,-1\n"},
		{"yaml fed as coco", "- { geom: { id1: 7 } }\n"},
		{"missing images", `{"annotations": []}`},
		{"missing annotations", `{"images": []}`},
		{"short bbox", `{"images": [{"id": 1, "file_name": "a.png"}], "annotations": [{"id": 1, "image_id": 1, "bbox": [1, 2]}]}`},
		{"empty input", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestParser()
			_, err := p.LoadCocoTracks(readers(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrWrongDataType)
		})
	}
}
