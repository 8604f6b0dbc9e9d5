// Package geo validates GeoJSON geometries and computes their envelopes.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/stac-federation/internal/core/model"
)

const maxDepth = 8

// Parse checks that raw is a well-formed GeoJSON geometry object.
func Parse(raw []byte) (model.Geometry, error) {
	g, err := decode(raw)
	if err != nil {
		return model.Geometry{}, err
	}
	return model.Geometry{Type: g.Type, GeoJSON: append([]byte(nil), raw...)}, nil
}

// Envelope returns the 2D bounding box of a GeoJSON geometry. Z values are
// ignored.
func Envelope(raw []byte) (model.BBox, error) {
	g, err := decode(raw)
	if err != nil {
		return nil, err
	}
	b := g.Geometry().Bound()
	return model.BBox{b.Left(), b.Bottom(), b.Right(), b.Top()}, nil
}

func decode(raw []byte) (*geojson.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("parse geojson: %w", err)
	}
	if g.Type == "Feature" || g.Type == "FeatureCollection" {
		return nil, fmt.Errorf("expected a geometry, got %s", g.Type)
	}
	n, err := check(g.Geometry(), 0)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("empty geometry")
	}
	return g, nil
}

// check enforces the GeoJSON shape rules orb does not and returns the
// number of positions.
func check(g orb.Geometry, depth int) (int, error) {
	switch v := g.(type) {
	case nil:
		return 0, errors.New("missing geometry")
	case orb.Point:
		return 1, nil
	case orb.MultiPoint:
		return len(v), nil
	case orb.LineString:
		if len(v) < 2 {
			return 0, errors.New("linestring has <2 points")
		}
		return len(v), nil
	case orb.MultiLineString:
		n := 0
		for _, l := range v {
			c, err := check(l, depth)
			if err != nil {
				return 0, err
			}
			n += c
		}
		return n, nil
	case orb.Polygon:
		n := 0
		for _, r := range v {
			if err := checkRing(r); err != nil {
				return 0, err
			}
			n += len(r)
		}
		return n, nil
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			c, err := check(p, depth)
			if err != nil {
				return 0, err
			}
			n += c
		}
		return n, nil
	case orb.Collection:
		if depth >= maxDepth {
			return 0, errors.New("geometry collection nested too deeply")
		}
		n := 0
		for _, m := range v {
			c, err := check(m, depth+1)
			if err != nil {
				return 0, err
			}
			n += c
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

func checkRing(r orb.Ring) error {
	if len(r) < 4 {
		return errors.New("polygon ring has <4 points")
	}
	if r[0] != r[len(r)-1] {
		return errors.New("polygon ring is not closed")
	}
	return nil
}
