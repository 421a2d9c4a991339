package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dive-annotations/trackconv/internal/model"
)

// viameMinColumns is the fixed positional prefix: track id, image name,
// frame, four bbox corners, confidence, target length.
const viameMinColumns = 9

// LoadViameCSV parses rows of the VIAME CSV convention into tracks plus an
// attribute definition table. Comment rows start with '#'. Each data row is
// one detection; rows group by track id.
func (p *Parser) LoadViameCSV(sources []io.Reader) (*model.Document, error) {
	reader := csv.NewReader(io.MultiReader(sources...))
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	doc := model.NewDocument()
	rows := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrongDataf("not a VIAME CSV: %v", err)
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if err := p.parseViameRow(doc, row); err != nil {
			return nil, err
		}
		rows++
	}
	if rows == 0 {
		return nil, wrongDataf("no data rows in VIAME CSV input")
	}

	p.dropEmptyTracks(doc)
	return doc, nil
}

// parseViameRow parses one detection row: the fixed positional prefix, then
// species/confidence pairs, then marker-prefixed attribute columns.
func (p *Parser) parseViameRow(doc *model.Document, row []string) error {
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	if len(row) < viameMinColumns {
		return wrongDataf("row has %d columns, need at least %d", len(row), viameMinColumns)
	}

	trackID, err := strconv.Atoi(row[0])
	if err != nil {
		return wrongDataf("track id %q: %v", row[0], err)
	}
	frame, err := strconv.Atoi(row[2])
	if err != nil {
		return wrongDataf("frame %q: %v", row[2], err)
	}
	if frame < 0 {
		return wrongDataf("negative frame %d", frame)
	}

	var bounds [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(row[3+i], 64)
		if err != nil {
			return wrongDataf("bbox value %q: %v", row[3+i], err)
		}
		bounds[i] = v
	}
	confidence, err := strconv.ParseFloat(row[7], 64)
	if err != nil {
		return wrongDataf("confidence %q: %v", row[7], err)
	}

	f := model.Feature{
		Frame:      frame,
		Bounds:     normalizeBounds(bounds),
		Confidence: confidence,
		Keyframe:   true,
	}
	if length, err := strconv.ParseFloat(row[8], 64); err == nil && length > 0 {
		f.FishLength = length
	}

	if row[1] != "" {
		setFilename(doc, frame, row[1])
	}

	t := doc.Track(trackID)

	// Variable tail: species/confidence pairs until the first marker
	// column, then "(kp)", "(atr)", "(trk-atr)" and "(poly)" columns.
	cols := row[viameMinColumns:]
	i := 0
	for i+1 < len(cols) && !strings.HasPrefix(cols[i], "(") && cols[i] != "" {
		pairConf, err := strconv.ParseFloat(cols[i+1], 64)
		if err != nil {
			return fmt.Errorf("species pair %q confidence %q: %w", cols[i], cols[i+1], err)
		}
		upsertMaxPair(t, cols[i], pairConf)
		i += 2
	}
	for ; i < len(cols); i++ {
		if cols[i] == "" {
			continue
		}
		if err := p.parseViameMarker(doc, t, &f, cols[i]); err != nil {
			return err
		}
	}

	return p.addFeature(t, f)
}

// parseViameMarker parses one marker-prefixed tail column.
func (p *Parser) parseViameMarker(doc *model.Document, t *model.Track, f *model.Feature, col string) error {
	tokens := strings.Fields(col)
	switch tokens[0] {
	case "(kp)":
		if len(tokens) != 4 {
			return fmt.Errorf("keypoint column %q needs name x y", col)
		}
		x, errX := strconv.ParseFloat(tokens[2], 64)
		y, errY := strconv.ParseFloat(tokens[3], 64)
		if errX != nil || errY != nil {
			return fmt.Errorf("keypoint column %q has non-numeric coordinates", col)
		}
		switch tokens[1] {
		case "head":
			f.Head = &[2]float64{x, y}
		case "tail":
			f.Tail = &[2]float64{x, y}
		default:
			p.logger.Warn("Skipping unknown keypoint", "name", tokens[1])
		}
	case "(atr)":
		if len(tokens) < 3 {
			return fmt.Errorf("attribute column %q needs name and value", col)
		}
		datatype, value := InferValue(strings.Join(tokens[2:], " "))
		if err := p.defineAttribute(doc, model.BelongsDetection, tokens[1], datatype); err != nil {
			return err
		}
		f.SetAttribute(tokens[1], value)
	case "(trk-atr)":
		if len(tokens) < 3 {
			return fmt.Errorf("track attribute column %q needs name and value", col)
		}
		datatype, value := InferValue(strings.Join(tokens[2:], " "))
		if err := p.defineAttribute(doc, model.BelongsTrack, tokens[1], datatype); err != nil {
			return err
		}
		t.SetAttribute(tokens[1], value)
	case "(poly)":
		flat := make([]float64, 0, len(tokens)-1)
		for _, tok := range tokens[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return fmt.Errorf("polygon column coordinate %q: %w", tok, err)
			}
			flat = append(flat, v)
		}
		poly, err := polygonFromFlatCoords(flat)
		if err != nil {
			return fmt.Errorf("polygon column: %w", err)
		}
		g := poly.AsGeometry()
		f.Geometry = &g
	default:
		p.logger.Debug("Skipping unknown marker column", "column", col)
	}
	return nil
}

// upsertMaxPair records a category confidence, keeping the highest value
// seen across the track's rows.
func upsertMaxPair(t *model.Track, name string, confidence float64) {
	for _, pair := range t.ConfidencePairs {
		if pair.Name == name && pair.Confidence >= confidence {
			return
		}
	}
	t.SetConfidencePair(name, confidence)
}

// setFilename grows the frame->filename table as needed.
func setFilename(doc *model.Document, frame int, name string) {
	for len(doc.Filenames) <= frame {
		doc.Filenames = append(doc.Filenames, "")
	}
	doc.Filenames[frame] = name
}
