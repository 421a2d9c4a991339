// Package export serializes a track Document into external formats.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/dive-annotations/trackconv/internal/model"
)

// Options controls VIAME CSV export.
type Options struct {
	// ExcludeBelowThreshold drops detections whose confidence falls below
	// the threshold for their track's category.
	ExcludeBelowThreshold bool

	// Thresholds maps category name to minimum confidence. The reserved
	// key "default" applies to categories without a specific entry.
	Thresholds map[string]float64

	// Filenames maps frame index to image name for the image column.
	// When empty, the document's own filename table applies.
	Filenames []string

	// FPS derives a frame timestamp for the image column when no
	// filename is known.
	FPS float64
}

// threshold resolves the minimum confidence for a category.
func (o Options) threshold(category string) float64 {
	if t, ok := o.Thresholds[category]; ok {
		return t
	}
	return o.Thresholds["default"]
}

const viameHeader = "# 1: Detection or Track-id," +
	"2: Video or Image Identifier," +
	"3: Unique Frame Identifier," +
	"4-7: Img-bbox(TL_x,TL_y,BR_x,BR_y)," +
	"8: Detection or Length Confidence," +
	"9: Target Length (0 or -1 if invalid)," +
	"10-11+: Repeated Species, Confidence Pairs or Attributes"

// WriteViameCSV writes one CSV row per detection, tracks in ascending id
// order and detections in frame order. Track ids and frame indices pass
// through unchanged. It returns the number of data rows written.
func WriteViameCSV(w io.Writer, doc *model.Document, opts Options) (int, error) {
	if _, err := fmt.Fprintln(w, viameHeader); err != nil {
		return 0, fmt.Errorf("error writing CSV header: %w", err)
	}
	fps := opts.FPS
	if fps == 0 {
		fps = doc.FPS
	}
	meta := "# metadata, exported_by: trackconv"
	if fps > 0 {
		meta = fmt.Sprintf("%s, fps: %s", meta, formatFloat(fps))
	}
	if _, err := fmt.Fprintln(w, meta); err != nil {
		return 0, fmt.Errorf("error writing CSV metadata: %w", err)
	}

	filenames := opts.Filenames
	if len(filenames) == 0 {
		filenames = doc.Filenames
	}

	cw := csv.NewWriter(w)
	rows := 0
	for _, id := range doc.TrackIDs() {
		t := doc.Tracks[id]
		category, _, _ := t.Category()
		minConf := opts.threshold(category)
		for _, f := range t.Features {
			if opts.ExcludeBelowThreshold && f.Confidence < minConf {
				continue
			}
			if err := cw.Write(featureRow(t, f, filenames, fps)); err != nil {
				return rows, fmt.Errorf("error writing CSV row: %w", err)
			}
			rows++
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, fmt.Errorf("error flushing CSV: %w", err)
	}
	return rows, nil
}

// featureRow builds the columns for one detection.
func featureRow(t *model.Track, f model.Feature, filenames []string, fps float64) []string {
	row := []string{
		strconv.Itoa(t.TrackID),
		imageName(f.Frame, filenames, fps),
		strconv.Itoa(f.Frame),
		formatFloat(f.Bounds[0]),
		formatFloat(f.Bounds[1]),
		formatFloat(f.Bounds[2]),
		formatFloat(f.Bounds[3]),
		formatFloat(f.Confidence),
	}
	if f.FishLength > 0 {
		row = append(row, formatFloat(f.FishLength))
	} else {
		row = append(row, "-1")
	}

	for _, pair := range t.ConfidencePairs {
		row = append(row, pair.Name, formatFloat(pair.Confidence))
	}

	if f.Head != nil {
		row = append(row, fmt.Sprintf("(kp) head %s %s",
			formatFloat(f.Head[0]), formatFloat(f.Head[1])))
	}
	if f.Tail != nil {
		row = append(row, fmt.Sprintf("(kp) tail %s %s",
			formatFloat(f.Tail[0]), formatFloat(f.Tail[1])))
	}
	for _, name := range sortedAttrNames(f.Attributes) {
		row = append(row, fmt.Sprintf("(atr) %s %s", name, formatValue(f.Attributes[name])))
	}
	for _, name := range sortedAttrNames(t.Attributes) {
		row = append(row, fmt.Sprintf("(trk-atr) %s %s", name, formatValue(t.Attributes[name])))
	}
	if col, ok := polygonColumn(f); ok {
		row = append(row, col)
	}
	return row
}

// polygonColumn renders a polygon geometry as a "(poly) x1 y1 ..." column.
// The closing ring point is omitted; readers re-close the ring.
func polygonColumn(f model.Feature) (string, bool) {
	if f.Geometry == nil {
		return "", false
	}
	poly, ok := f.Geometry.AsPolygon()
	if !ok {
		return "", false
	}
	seq := poly.ExteriorRing().Coordinates()
	if seq.Length() < 2 {
		return "", false
	}
	col := "(poly)"
	for i := 0; i < seq.Length()-1; i++ {
		xy := seq.GetXY(i)
		col += " " + formatFloat(xy.X) + " " + formatFloat(xy.Y)
	}
	return col, true
}

// imageName resolves the image column: known filename, else a timestamp
// derived from the frame rate, else empty.
func imageName(frame int, filenames []string, fps float64) string {
	if frame < len(filenames) && filenames[frame] != "" {
		return filenames[frame]
	}
	if fps > 0 {
		seconds := float64(frame) / fps
		whole := int(seconds)
		micros := int(math.Round((seconds - float64(whole)) * 1e6))
		if micros >= 1e6 {
			whole++
			micros = 0
		}
		return fmt.Sprintf("%02d:%02d:%02d.%06d",
			whole/3600, (whole/60)%60, whole%60, micros)
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatValue renders an attribute value the way the reader's type
// inference will reproduce it.
func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return formatFloat(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedAttrNames(attrs map[string]any) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
