package model

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// AttributeDefinition describes the declared type of an attribute seen in a
// source document, so consumers know how to interpret its values. Definitions
// are keyed by Key, which scopes the name to track or detection level.
type AttributeDefinition struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	BelongsTo string   `json:"belongs"`
	Datatype  string   `json:"datatype"`
	Values    []string `json:"values,omitempty"`
}

// AttributeKey builds the table key for an attribute, e.g. "detection_size".
func AttributeKey(belongsTo, name string) string {
	return belongsTo + "_" + name
}

// Document is the top-level conversion artifact: all tracks keyed by id,
// the attribute definition side table, and optional source metadata. A
// Document is built fresh by one reader and discarded after one conversion.
type Document struct {
	Tracks     map[int]*Track
	Attributes map[string]AttributeDefinition

	// Filenames maps frame index to the source image name, when the
	// source format carries one. FPS is the annotation frame rate.
	Filenames []string
	FPS       float64
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{
		Tracks:     map[int]*Track{},
		Attributes: map[string]AttributeDefinition{},
	}
}

// Track returns the track with the given id, creating it if absent.
func (d *Document) Track(id int) *Track {
	t, ok := d.Tracks[id]
	if !ok {
		t = NewTrack(id)
		d.Tracks[id] = t
	}
	return t
}

// TrackIDs returns all track ids in ascending order.
func (d *Document) TrackIDs() []int {
	ids := make([]int, 0, len(d.Tracks))
	for id := range d.Tracks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// WriteJSON writes the native serialization: a JSON object mapping track id
// to Track.
func (d *Document) WriteJSON(w io.Writer) error {
	if err := json.NewEncoder(w).Encode(d.Tracks); err != nil {
		return fmt.Errorf("error encoding track document: %w", err)
	}
	return nil
}

// WriteAttributesJSON writes the attribute definition table as an indented
// JSON object keyed by attribute key.
func (d *Document) WriteAttributesJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d.Attributes); err != nil {
		return fmt.Errorf("error encoding attribute definitions: %w", err)
	}
	return nil
}
