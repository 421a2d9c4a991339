package model

import "fmt"

// Validate checks the track against the canonical schema constraints:
// at least one feature, non-negative strictly increasing frames, confidence
// values in [0, 1], well-formed bounds, and a consistent frame range.
func (t *Track) Validate() error {
	if len(t.Features) == 0 {
		return fmt.Errorf("track %d has no features", t.TrackID)
	}
	prev := -1
	for _, f := range t.Features {
		if f.Frame < 0 {
			return fmt.Errorf("track %d: negative frame %d", t.TrackID, f.Frame)
		}
		if f.Frame <= prev {
			return fmt.Errorf("track %d: frames not strictly increasing at %d", t.TrackID, f.Frame)
		}
		prev = f.Frame
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("track %d frame %d: confidence %v out of [0,1]", t.TrackID, f.Frame, f.Confidence)
		}
		if f.Bounds[0] > f.Bounds[2] || f.Bounds[1] > f.Bounds[3] {
			return fmt.Errorf("track %d frame %d: inverted bounds %v", t.TrackID, f.Frame, f.Bounds)
		}
	}
	for _, p := range t.ConfidencePairs {
		if p.Confidence < 0 || p.Confidence > 1 {
			return fmt.Errorf("track %d: pair %q confidence %v out of [0,1]", t.TrackID, p.Name, p.Confidence)
		}
	}
	if t.Begin != t.Features[0].Frame || t.End != t.Features[len(t.Features)-1].Frame {
		return fmt.Errorf("track %d: begin/end [%d,%d] does not match feature range", t.TrackID, t.Begin, t.End)
	}
	return nil
}

// Validate checks every track in the document.
func (d *Document) Validate() error {
	for _, id := range d.TrackIDs() {
		if err := d.Tracks[id].Validate(); err != nil {
			return err
		}
	}
	return nil
}
