// Package parser converts external annotation formats (KPF/MEVA packet
// streams, kwcoco JSON, VIAME CSV, native track JSON) into the canonical
// track Document. All readers share one contract: consume an ordered list
// of byte sources to completion and either produce a Document or fail with
// ErrWrongDataType when the input is structurally incompatible with the
// format being parsed.
package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dive-annotations/trackconv/internal/model"
)

// ErrWrongDataType classifies input that does not conform to the format a
// reader implements: wrong column count, missing required keys, malformed
// packets. Callers use errors.Is to distinguish "not my format" from
// format-specific corruption.
var ErrWrongDataType = errors.New("wrong data type")

// ErrAttributeTypeConflict classifies an attribute name used with two
// incompatible inferred datatypes within one document.
var ErrAttributeTypeConflict = errors.New("attribute type conflict")

// wrongDataf wraps ErrWrongDataType with a formatted reason.
func wrongDataf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrWrongDataType}, args...)...)
}

// DuplicateFramePolicy controls what happens when a source reports two
// detections for the same track at the same frame.
type DuplicateFramePolicy string

const (
	DuplicateReject DuplicateFramePolicy = "reject"
	DuplicateMerge  DuplicateFramePolicy = "merge"
)

// TypeConflictPolicy controls what happens when an attribute is seen with
// two incompatible inferred datatypes.
type TypeConflictPolicy string

const (
	TypeConflictError  TypeConflictPolicy = "error"
	TypeConflictCoerce TypeConflictPolicy = "coerce"
)

// LoadFunc is the capability every format reader exposes: consume the
// ordered sources exactly once and produce a Document, or fail with an
// ErrWrongDataType-classified error on structural mismatch. Sources are
// plain readers so arbitrarily large files are consumed in bounded chunks.
type LoadFunc func(sources []io.Reader) (*model.Document, error)

// Option configures a Parser.
type Option func(*Parser)

// WithDuplicateFramePolicy sets the duplicate-frame handling policy.
func WithDuplicateFramePolicy(p DuplicateFramePolicy) Option {
	return func(pr *Parser) { pr.duplicateFrames = p }
}

// WithTypeConflictPolicy sets the attribute type-conflict handling policy.
func WithTypeConflictPolicy(p TypeConflictPolicy) Option {
	return func(pr *Parser) { pr.typeConflicts = p }
}

// Parser provides pure source -> Document conversion for every supported
// input format. It holds no state across calls beyond a logger and the
// configured policies.
type Parser struct {
	logger          *slog.Logger
	duplicateFrames DuplicateFramePolicy
	typeConflicts   TypeConflictPolicy
}

// NewParser creates a parser with only a logger dependency. Policies
// default to rejecting duplicate frames and erroring on type conflicts.
func NewParser(logger *slog.Logger, opts ...Option) *Parser {
	p := &Parser{
		logger:          logger,
		duplicateFrames: DuplicateReject,
		typeConflicts:   TypeConflictError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// addFeature applies the configured duplicate-frame policy.
func (p *Parser) addFeature(t *model.Track, f model.Feature) error {
	if p.duplicateFrames == DuplicateMerge {
		if _, exists := t.FeatureAt(f.Frame); exists {
			p.logger.Warn("Merging duplicate frame", "trackId", t.TrackID, "frame", f.Frame)
		}
		t.MergeFeature(f)
		return nil
	}
	if err := t.AddFeature(f); err != nil {
		return fmt.Errorf("duplicate detection: %w", err)
	}
	return nil
}

// dropEmptyTracks removes tracks that ended up with zero detections, which
// the canonical schema forbids. Each drop is logged.
func (p *Parser) dropEmptyTracks(doc *model.Document) {
	for id, t := range doc.Tracks {
		if len(t.Features) == 0 {
			p.logger.Warn("Dropping track with no detections", "trackId", id)
			delete(doc.Tracks, id)
		}
	}
}
