package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dive-annotations/trackconv/internal/model"
)

// LoadDiveJSON parses the native serialization: a JSON object mapping track
// id to Track. Parsing is an identity operation on content; every track is
// validated against the canonical schema so corrupt documents never pass
// through conversion unnoticed.
func (p *Parser) LoadDiveJSON(sources []io.Reader) (*model.Document, error) {
	var tracks map[int]*model.Track
	if err := json.NewDecoder(io.MultiReader(sources...)).Decode(&tracks); err != nil {
		return nil, wrongDataf("not a track JSON document: %v", err)
	}
	if tracks == nil {
		return nil, wrongDataf("track JSON document is null")
	}

	doc := model.NewDocument()
	for id, t := range tracks {
		if t == nil {
			return nil, wrongDataf("track %d is null", id)
		}
		if t.TrackID != id {
			return nil, wrongDataf("track key %d does not match trackId %d", id, t.TrackID)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid track: %w", err)
		}
		doc.Tracks[id] = t
	}
	return doc, nil
}
