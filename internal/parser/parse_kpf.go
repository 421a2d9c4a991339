package parser

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dive-annotations/trackconv/internal/model"
)

// KPF packet shapes. Each packet is a YAML map with a single recognized
// top-level key; anything else is skipped.
type kpfGeom struct {
	DetectionID *int     `yaml:"id0"`
	TrackID     *int     `yaml:"id1"`
	Frame       *int     `yaml:"ts0"`
	G0          string   `yaml:"g0"`
	Confidence  *float64 `yaml:"conf"`
}

type kpfTypes struct {
	TrackID *int               `yaml:"id1"`
	CSet3   map[string]float64 `yaml:"cset3"`
}

type kpfActor struct {
	TrackID *int `yaml:"id1"`
}

type kpfActivity struct {
	Act2   map[string]float64 `yaml:"act2"`
	ID2    *int               `yaml:"id2"`
	Actors []kpfActor         `yaml:"actors"`
}

type kpfPacket struct {
	Geom  *kpfGeom     `yaml:"geom"`
	Types *kpfTypes    `yaml:"types"`
	Act   *kpfActivity `yaml:"act"`
	Meta  yaml.Node    `yaml:"meta"`
}

// LoadKPFTracks reconstructs tracks from one or more KPF/MEVA packet
// streams. Packets arrive in frame order per file but a track id may recur
// non-contiguously; detections are grouped by track id and kept in frame
// order. Track termination is implicit: there is no end marker, a track
// simply stops producing geometry packets.
func (p *Parser) LoadKPFTracks(sources []io.Reader) (*model.Document, error) {
	packets, err := parseKPFPackets(sources)
	if err != nil {
		return nil, err
	}

	doc := model.NewDocument()
	usable := 0

	// Geometry packets first: they define which tracks exist.
	for _, pkt := range packets {
		if pkt.Geom == nil {
			continue
		}
		usable++
		f, trackID, err := p.geomToFeature(pkt.Geom)
		if err != nil {
			return nil, err
		}
		if err := p.addFeature(doc.Track(trackID), f); err != nil {
			return nil, err
		}
	}

	// Type packets attach category confidences to existing tracks.
	for _, pkt := range packets {
		if pkt.Types == nil {
			continue
		}
		usable++
		if pkt.Types.TrackID == nil {
			return nil, wrongDataf("types packet missing id1")
		}
		t, ok := doc.Tracks[*pkt.Types.TrackID]
		if !ok {
			p.logger.Warn("Types packet references unknown track", "trackId", *pkt.Types.TrackID)
			continue
		}
		for name, conf := range pkt.Types.CSet3 {
			t.SetConfidencePair(name, conf)
		}
	}

	// Activity packets become track-level attributes on each actor track.
	for _, pkt := range packets {
		if pkt.Act == nil {
			continue
		}
		usable++
		name := bestActivity(pkt.Act.Act2)
		if name == "" {
			continue
		}
		for _, actor := range pkt.Act.Actors {
			if actor.TrackID == nil {
				continue
			}
			t, ok := doc.Tracks[*actor.TrackID]
			if !ok {
				p.logger.Warn("Activity references unknown track",
					"activity", name, "trackId", *actor.TrackID)
				continue
			}
			t.SetAttribute("activity", name)
			if err := p.defineAttribute(doc, model.BelongsTrack, "activity", model.DatatypeText); err != nil {
				return nil, err
			}
		}
	}

	if usable == 0 {
		return nil, wrongDataf("no recognizable KPF packets in input")
	}

	p.dropEmptyTracks(doc)
	return doc, nil
}

// parseKPFPackets stream-decodes every source as a YAML sequence of packet
// maps. Structural YAML failures classify as wrong data type.
func parseKPFPackets(sources []io.Reader) ([]kpfPacket, error) {
	var packets []kpfPacket
	for _, src := range sources {
		dec := yaml.NewDecoder(src)
		for {
			var chunk []kpfPacket
			err := dec.Decode(&chunk)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, wrongDataf("not a KPF packet stream: %v", err)
			}
			packets = append(packets, chunk...)
		}
	}
	return packets, nil
}

// geomToFeature converts a geometry packet into a Feature plus its track id.
func (p *Parser) geomToFeature(g *kpfGeom) (model.Feature, int, error) {
	var f model.Feature
	if g.TrackID == nil || g.Frame == nil || g.G0 == "" {
		return f, 0, wrongDataf("geom packet missing id1, ts0 or g0")
	}
	if *g.Frame < 0 {
		return f, 0, wrongDataf("geom packet has negative frame %d", *g.Frame)
	}

	fields := strings.Fields(g.G0)
	if len(fields) != 4 {
		return f, 0, wrongDataf("geom g0 %q is not 4 coordinates", g.G0)
	}
	var coords [4]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return f, 0, wrongDataf("geom g0 coordinate %q: %v", field, err)
		}
		coords[i] = v
	}

	f.Frame = *g.Frame
	f.Bounds = normalizeBounds(coords)
	f.Confidence = 1.0
	if g.Confidence != nil {
		f.Confidence = *g.Confidence
	}
	f.Keyframe = true
	return f, *g.TrackID, nil
}

// normalizeBounds orders a raw x1,y1,x2,y2 quad so x1<=x2 and y1<=y2.
func normalizeBounds(c [4]float64) [4]float64 {
	if c[0] > c[2] {
		c[0], c[2] = c[2], c[0]
	}
	if c[1] > c[3] {
		c[1], c[3] = c[3], c[1]
	}
	return c
}

// bestActivity returns the highest-scoring activity name from an act2 map.
func bestActivity(act2 map[string]float64) string {
	best, bestScore := "", -1.0
	for name, score := range act2 {
		if score > bestScore || (score == bestScore && name < best) {
			best, bestScore = name, score
		}
	}
	return best
}
