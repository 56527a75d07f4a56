package ors

import (
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// decodeFeatureCollection parses a GeoJSON FeatureCollection and fills in
// its bounding box.
func decodeFeatureCollection(op string, raw []byte) (*geojson.FeatureCollection, error) {
	if err := bodyError(op, http.StatusOK, raw); err != nil {
		return nil, err
	}
	var doc struct {
		Type     string             `json:"type"`
		Features []*geojson.Feature `json:"features"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "ors: %s: parse geojson", op)
	}
	if doc.Type != "" && doc.Type != "FeatureCollection" {
		return nil, eris.Errorf("ors: %s: unexpected geojson type %q", op, doc.Type)
	}
	fc := &geojson.FeatureCollection{Features: doc.Features}
	fc.BBox = Bounds(fc)
	return fc, nil
}

// Bounds returns the XY extent of every feature geometry in fc, or nil when
// there is nothing to measure.
func Bounds(fc *geojson.FeatureCollection) *geom.Bounds {
	if fc == nil {
		return nil
	}
	b := geom.NewBounds(geom.XY)
	var n int
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b.Extend(f.Geometry)
		n++
	}
	if n == 0 {
		return nil
	}
	return b
}
