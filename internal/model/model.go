// Package model defines the canonical in-memory representation of object
// tracks: one Track per tracked object, holding an ordered sequence of
// per-frame Features. The JSON serialization of these types is the native
// interchange document, a mapping of track id to Track.
package model

import (
	"encoding/json"
	"fmt"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"
)

// Attribute datatypes understood by downstream consumers.
const (
	DatatypeBoolean = "boolean"
	DatatypeNumber  = "number"
	DatatypeText    = "text"
)

// Attribute scopes.
const (
	BelongsTrack     = "track"
	BelongsDetection = "detection"
)

// ConfidencePair is a (category, confidence) tuple. It serializes as a
// two-element JSON array, e.g. ["fish", 0.87].
type ConfidencePair struct {
	Name       string
	Confidence float64
}

// MarshalJSON encodes the pair as ["name", confidence].
func (p ConfidencePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Name, p.Confidence})
}

// UnmarshalJSON decodes a ["name", confidence] tuple.
func (p *ConfidencePair) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("confidence pair is not an array: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("confidence pair must have 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &p.Name); err != nil {
		return fmt.Errorf("confidence pair name: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &p.Confidence); err != nil {
		return fmt.Errorf("confidence pair value: %w", err)
	}
	return nil
}

// Feature is one frame's observation of a track: bounding box, confidence,
// optional richer geometry and free-form attributes.
type Feature struct {
	Frame      int        `json:"frame"`
	Bounds     [4]float64 `json:"bounds"` // x1, y1, x2, y2
	Confidence float64    `json:"confidence"`

	// Optional geometry beyond the bounding box. Geometry holds a polygon
	// or keypoint multipoint and serializes as a GeoJSON geometry object.
	Geometry   *geom.Geometry `json:"geometry,omitempty"`
	Head       *[2]float64    `json:"head,omitempty"`
	Tail       *[2]float64    `json:"tail,omitempty"`
	FishLength float64        `json:"fishLength,omitempty"`

	Keyframe    bool `json:"keyframe,omitempty"`
	Interpolate bool `json:"interpolate,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// SetAttribute lazily allocates the attribute map and stores value.
func (f *Feature) SetAttribute(name string, value any) {
	if f.Attributes == nil {
		f.Attributes = map[string]any{}
	}
	f.Attributes[name] = value
}

// Track is a single object's identity-linked sequence of per-frame features.
// Features are kept ordered by strictly increasing frame; Begin and End
// always equal the first and last feature frame.
type Track struct {
	TrackID         int              `json:"trackId"`
	Begin           int              `json:"begin"`
	End             int              `json:"end"`
	ConfidencePairs []ConfidencePair `json:"confidencePairs"`
	Attributes      map[string]any   `json:"attributes,omitempty"`
	Features        []Feature        `json:"features"`
}

// NewTrack creates an empty track with the given id.
func NewTrack(id int) *Track {
	return &Track{TrackID: id}
}

// AddFeature inserts f in frame order. A feature for an already-present
// frame is an error; callers wanting replace semantics use MergeFeature.
func (t *Track) AddFeature(f Feature) error {
	i, exists := t.featureIndex(f.Frame)
	if exists {
		return fmt.Errorf("track %d already has a feature at frame %d", t.TrackID, f.Frame)
	}
	t.Features = append(t.Features, Feature{})
	copy(t.Features[i+1:], t.Features[i:])
	t.Features[i] = f
	t.updateRange()
	return nil
}

// MergeFeature inserts f in frame order, replacing any existing feature at
// the same frame.
func (t *Track) MergeFeature(f Feature) {
	if i, exists := t.featureIndex(f.Frame); exists {
		t.Features[i] = f
		return
	}
	_ = t.AddFeature(f)
}

// FeatureAt returns the feature at the given frame, if present.
func (t *Track) FeatureAt(frame int) (*Feature, bool) {
	if i, exists := t.featureIndex(frame); exists {
		return &t.Features[i], true
	}
	return nil, false
}

func (t *Track) featureIndex(frame int) (int, bool) {
	i := sort.Search(len(t.Features), func(i int) bool {
		return t.Features[i].Frame >= frame
	})
	return i, i < len(t.Features) && t.Features[i].Frame == frame
}

func (t *Track) updateRange() {
	if len(t.Features) == 0 {
		t.Begin, t.End = 0, 0
		return
	}
	t.Begin = t.Features[0].Frame
	t.End = t.Features[len(t.Features)-1].Frame
}

// SetConfidencePair records a category confidence for the track, replacing
// any existing pair with the same name. Pairs stay sorted by descending
// confidence so the first pair is always the track's category.
func (t *Track) SetConfidencePair(name string, confidence float64) {
	for i := range t.ConfidencePairs {
		if t.ConfidencePairs[i].Name == name {
			t.ConfidencePairs[i].Confidence = confidence
			t.sortPairs()
			return
		}
	}
	t.ConfidencePairs = append(t.ConfidencePairs, ConfidencePair{Name: name, Confidence: confidence})
	t.sortPairs()
}

func (t *Track) sortPairs() {
	sort.SliceStable(t.ConfidencePairs, func(i, j int) bool {
		return t.ConfidencePairs[i].Confidence > t.ConfidencePairs[j].Confidence
	})
}

// Category returns the track's highest-confidence category. The bool is
// false when the track has no confidence pairs.
func (t *Track) Category() (string, float64, bool) {
	if len(t.ConfidencePairs) == 0 {
		return "", 0, false
	}
	return t.ConfidencePairs[0].Name, t.ConfidencePairs[0].Confidence, true
}

// SetAttribute lazily allocates the track attribute map and stores value.
func (t *Track) SetAttribute(name string, value any) {
	if t.Attributes == nil {
		t.Attributes = map[string]any{}
	}
	t.Attributes[name] = value
}
