package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/dive-annotations/trackconv/internal/model"
	"github.com/dive-annotations/trackconv/internal/util"
)

type cocoImage struct {
	ID         int    `json:"id"`
	FileName   string `json:"file_name"`
	FrameIndex *int   `json:"frame_index"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoAnnotation struct {
	ID           int             `json:"id"`
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	TrackID      *int            `json:"track_id"`
	BBox         []float64       `json:"bbox"` // x, y, width, height
	Score        *float64        `json:"score"`
	Keypoints    []float64       `json:"keypoints"`
	Segmentation json.RawMessage `json:"segmentation"`

	// Extra ignores the canonical fields and captures custom ones for
	// attribute promotion.
	Extra map[string]json.RawMessage `json:"-"`
}

type cocoDocument struct {
	Images      []cocoImage       `json:"images"`
	Annotations []json.RawMessage `json:"annotations"`
	Categories  []cocoCategory    `json:"categories"`
}

// cocoCanonicalFields are annotation keys that map onto the Track schema
// directly and are never promoted to attributes.
var cocoCanonicalFields = map[string]bool{
	"id": true, "image_id": true, "category_id": true, "track_id": true,
	"bbox": true, "score": true, "keypoints": true, "segmentation": true,
	"area": true, "iscrowd": true,
}

// LoadCocoTracks converts a COCO-style document into tracks plus an
// attribute definition table. COCO has no persistent-identity field, so
// annotations group by track_id when the source supplies one and otherwise
// each annotation becomes its own singleton track keyed by annotation id.
func (p *Parser) LoadCocoTracks(sources []io.Reader) (*model.Document, error) {
	var cocoDoc cocoDocument
	if err := json.NewDecoder(io.MultiReader(sources...)).Decode(&cocoDoc); err != nil {
		return nil, wrongDataf("not a kwcoco document: %v", err)
	}
	if cocoDoc.Images == nil || cocoDoc.Annotations == nil {
		return nil, wrongDataf("kwcoco document missing images or annotations")
	}

	frames := frameIndexByImage(cocoDoc.Images)
	categories := map[int]string{}
	for _, cat := range cocoDoc.Categories {
		categories[cat.ID] = cat.Name
	}

	doc := model.NewDocument()
	doc.Filenames = make([]string, len(cocoDoc.Images))
	for _, img := range cocoDoc.Images {
		if frame, ok := frames[img.ID]; ok && frame < len(doc.Filenames) {
			doc.Filenames[frame] = img.FileName
		}
	}

	for _, raw := range cocoDoc.Annotations {
		var ann cocoAnnotation
		if err := json.Unmarshal(raw, &ann); err != nil {
			return nil, wrongDataf("malformed annotation: %v", err)
		}
		ann.Extra = map[string]json.RawMessage{}
		var all map[string]json.RawMessage
		if err := json.Unmarshal(raw, &all); err != nil {
			return nil, wrongDataf("malformed annotation: %v", err)
		}
		for key, val := range all {
			if !cocoCanonicalFields[key] {
				ann.Extra[key] = val
			}
		}

		frame, ok := frames[ann.ImageID]
		if !ok {
			p.logger.Warn("Annotation references unknown image; dropping",
				"annotationId", ann.ID, "imageId", ann.ImageID)
			continue
		}

		f, err := p.annotationToFeature(ann, frame)
		if err != nil {
			return nil, err
		}
		for _, name := range sortedKeys(ann.Extra) {
			var decoded any
			if err := json.Unmarshal(ann.Extra[name], &decoded); err != nil {
				continue
			}
			datatype, value := inferJSONValue(decoded)
			if err := p.defineAttribute(doc, model.BelongsDetection, name, datatype); err != nil {
				return nil, err
			}
			f.SetAttribute(name, value)
		}

		trackID := ann.ID
		if ann.TrackID != nil {
			trackID = *ann.TrackID
		}
		t := doc.Track(trackID)
		if err := p.addFeature(t, f); err != nil {
			return nil, err
		}

		category, ok := categories[ann.CategoryID]
		if !ok {
			p.logger.Warn("Annotation references unknown category",
				"annotationId", ann.ID, "categoryId", ann.CategoryID)
			continue
		}
		upsertMaxPair(t, category, f.Confidence)
	}

	p.dropEmptyTracks(doc)
	return doc, nil
}

// annotationToFeature builds the per-frame feature from one annotation.
func (p *Parser) annotationToFeature(ann cocoAnnotation, frame int) (model.Feature, error) {
	var f model.Feature
	if len(ann.BBox) != 4 {
		return f, wrongDataf("annotation %d bbox has %d values, want 4", ann.ID, len(ann.BBox))
	}
	f.Frame = frame
	f.Bounds = [4]float64{
		ann.BBox[0], ann.BBox[1],
		ann.BBox[0] + ann.BBox[2], ann.BBox[1] + ann.BBox[3],
	}
	f.Confidence = 1.0
	if ann.Score != nil {
		f.Confidence = *ann.Score
	}
	f.Keyframe = true

	// Keypoints come as x,y,visibility triplets; visible ones become a
	// multipoint geometry.
	if len(ann.Keypoints) > 0 {
		if len(ann.Keypoints)%3 != 0 {
			return f, wrongDataf("annotation %d keypoints length %d not a multiple of 3",
				ann.ID, len(ann.Keypoints))
		}
		var points []geom.Point
		for i := 0; i+2 < len(ann.Keypoints); i += 3 {
			if ann.Keypoints[i+2] == 0 {
				continue
			}
			pt, err := geom.NewPoint(geom.Coordinates{
				XY:   geom.XY{X: ann.Keypoints[i], Y: ann.Keypoints[i+1]},
				Type: geom.DimXY,
			})
			if err != nil {
				p.logger.Warn("Skipping invalid keypoint",
					"annotationId", ann.ID, "error", err)
				continue
			}
			points = append(points, pt)
		}
		if len(points) > 0 {
			g := geom.NewMultiPoint(points).AsGeometry()
			f.Geometry = &g
		}
	}

	// Polygon segmentation: [[x1,y1,x2,y2,...], ...]; only the first ring
	// is kept. RLE segmentations are skipped.
	if len(ann.Segmentation) > 0 && ann.Segmentation[0] == '[' {
		var rings [][]float64
		if err := json.Unmarshal(ann.Segmentation, &rings); err == nil && len(rings) > 0 {
			if poly, err := polygonFromFlatCoords(rings[0]); err == nil {
				g := poly.AsGeometry()
				f.Geometry = &g
			} else {
				p.logger.Warn("Skipping malformed segmentation",
					"annotationId", ann.ID, "error", err)
			}
		}
	}

	return f, nil
}

// polygonFromFlatCoords builds a closed polygon from a flat x1,y1,x2,y2,...
// coordinate list.
func polygonFromFlatCoords(flat []float64) (geom.Polygon, error) {
	if len(flat) < 6 || len(flat)%2 != 0 {
		return geom.Polygon{}, fmt.Errorf("polygon needs at least 3 x,y points, got %d values", len(flat))
	}
	closed := flat
	if flat[0] != flat[len(flat)-2] || flat[1] != flat[len(flat)-1] {
		closed = append(append([]float64{}, flat...), flat[0], flat[1])
	}
	ring, err := geom.NewLineString(geom.NewSequence(closed, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("polygon ring: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("polygon: %w", err)
	}
	return poly, nil
}

// frameIndexByImage assigns each image a frame index: explicit frame_index
// when present, otherwise the image's position in numeric filename order.
func frameIndexByImage(images []cocoImage) map[int]int {
	frames := map[int]int{}
	explicit := true
	for _, img := range images {
		if img.FrameIndex == nil {
			explicit = false
			break
		}
	}
	if explicit {
		for _, img := range images {
			frames[img.ID] = *img.FrameIndex
		}
		return frames
	}

	ordered := append([]cocoImage{}, images...)
	sort.Slice(ordered, func(i, j int) bool {
		return util.StrNumericCompare(ordered[i].FileName, ordered[j].FileName)
	})
	for i, img := range ordered {
		frames[img.ID] = i
	}
	return frames
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
