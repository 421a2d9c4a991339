// Package convert orchestrates document-to-document conversions: it selects
// the reader for a source format, drives it over the opened sources, and
// hands the resulting Document to a writer or the native JSON dump. The
// Document is owned exclusively by the conversion call; nothing is retained
// between invocations.
package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dive-annotations/trackconv/internal/export"
	"github.com/dive-annotations/trackconv/internal/model"
	"github.com/dive-annotations/trackconv/internal/parser"
	"github.com/dive-annotations/trackconv/internal/util"
)

const instrumentationName = "github.com/dive-annotations/trackconv/internal/convert"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Format identifies a supported annotation interchange format.
type Format string

const (
	FormatDiveJSON Format = "dive"
	FormatKPF      Format = "kpf"
	FormatCoco     Format = "coco"
	FormatViameCSV Format = "viame"
)

// Converter drives end-to-end conversions. It owns a Parser and reports
// conversion metrics through the global OTel meter, which is a no-op
// unless the embedding process installs an SDK.
type Converter struct {
	logger *slog.Logger
	parser *parser.Parser

	tracksRead      metric.Int64Counter
	detectionsRead  metric.Int64Counter
	rowsWritten     metric.Int64Counter
	rowsFiltered    metric.Int64Counter
	conversionsDone metric.Int64Counter
}

// New creates a Converter around the given parser.
func New(logger *slog.Logger, p *parser.Parser) (*Converter, error) {
	c := &Converter{logger: logger, parser: p}
	m := meter()

	var err error
	if c.tracksRead, err = m.Int64Counter("trackconv.tracks.read",
		metric.WithDescription("Tracks produced by format readers")); err != nil {
		return nil, err
	}
	if c.detectionsRead, err = m.Int64Counter("trackconv.detections.read",
		metric.WithDescription("Detections produced by format readers")); err != nil {
		return nil, err
	}
	if c.rowsWritten, err = m.Int64Counter("trackconv.rows.written",
		metric.WithDescription("Detection rows written by the CSV exporter")); err != nil {
		return nil, err
	}
	if c.rowsFiltered, err = m.Int64Counter("trackconv.rows.filtered",
		metric.WithDescription("Detections dropped by threshold filtering")); err != nil {
		return nil, err
	}
	if c.conversionsDone, err = m.Int64Counter("trackconv.conversions",
		metric.WithDescription("Completed conversion invocations")); err != nil {
		return nil, err
	}
	return c, nil
}

// Read consumes the sources with the reader for the given format. Dispatch
// is explicit; an unknown format is an error, and a format mismatch
// surfaces as parser.ErrWrongDataType from the selected reader.
func (c *Converter) Read(ctx context.Context, format Format, sources []io.Reader) (*model.Document, error) {
	var load parser.LoadFunc
	switch format {
	case FormatDiveJSON:
		load = c.parser.LoadDiveJSON
	case FormatKPF:
		load = c.parser.LoadKPFTracks
	case FormatCoco:
		load = c.parser.LoadCocoTracks
	case FormatViameCSV:
		load = c.parser.LoadViameCSV
	default:
		return nil, fmt.Errorf("unknown input format: %s", format)
	}

	doc, err := load(sources)
	if err != nil {
		return nil, err
	}

	detections := 0
	for _, t := range doc.Tracks {
		detections += len(t.Features)
	}
	attrs := metric.WithAttributes(attribute.String("format", string(format)))
	c.tracksRead.Add(ctx, int64(len(doc.Tracks)), attrs)
	c.detectionsRead.Add(ctx, int64(detections), attrs)
	c.logger.Info("Parsed input document",
		"format", format, "tracks", len(doc.Tracks), "detections", detections)
	return doc, nil
}

// ExportViameCSV writes the document as VIAME CSV with the given options.
func (c *Converter) ExportViameCSV(ctx context.Context, w io.Writer, doc *model.Document, opts export.Options) error {
	total := 0
	for _, t := range doc.Tracks {
		total += len(t.Features)
	}
	rows, err := export.WriteViameCSV(w, doc, opts)
	if err != nil {
		return err
	}
	c.rowsWritten.Add(ctx, int64(rows))
	c.rowsFiltered.Add(ctx, int64(total-rows))
	c.conversionsDone.Add(ctx, 1,
		metric.WithAttributes(attribute.String("target", string(FormatViameCSV))))
	c.logger.Info("Exported VIAME CSV", "rows", rows, "filtered", total-rows)
	return nil
}

// ExportDiveJSON writes the native track JSON, and optionally the attribute
// definition table when attrsOut is non-nil.
func (c *Converter) ExportDiveJSON(ctx context.Context, out io.Writer, attrsOut io.Writer, doc *model.Document) error {
	if err := doc.WriteJSON(out); err != nil {
		return err
	}
	if attrsOut != nil {
		if err := doc.WriteAttributesJSON(attrsOut); err != nil {
			return err
		}
	}
	c.conversionsDone.Add(ctx, 1,
		metric.WithAttributes(attribute.String("target", string(FormatDiveJSON))))
	c.logger.Info("Exported track JSON",
		"tracks", len(doc.Tracks), "attributes", len(doc.Attributes))
	return nil
}

// Meta is the subset of a dataset meta.json used to enrich an export.
type Meta struct {
	OriginalImageFiles []string `json:"originalImageFiles"`
	FPS                float64  `json:"fps"`
}

// LoadMeta reads a meta.json collaborator document, returning the image
// list in numeric filename order plus the annotation frame rate.
func LoadMeta(r io.Reader) (*Meta, error) {
	var m Meta
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("error decoding meta document: %w", err)
	}
	sort.Slice(m.OriginalImageFiles, func(i, j int) bool {
		return util.StrNumericCompare(m.OriginalImageFiles[i], m.OriginalImageFiles[j])
	})
	return &m, nil
}
