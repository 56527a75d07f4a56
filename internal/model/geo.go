package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// LatLng is a WGS84 coordinate. ORS expects [lon, lat] on the wire.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LonLat returns the coordinate in ORS/GeoJSON order.
func (p LatLng) LonLat() []float64 {
	return []float64{p.Lon, p.Lat}
}

// Point returns the coordinate as a go-geom point with SRID 4326.
func (p LatLng) Point() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(4326)
}

// Param formats the coordinate as "lon,lat" for query strings.
func (p LatLng) Param() string {
	return strconv.FormatFloat(p.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

func (p LatLng) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// ParseLatLng parses "lat,lon".
func ParseLatLng(s string) (LatLng, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return LatLng{}, eris.Errorf("model: invalid coordinate %q, want lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return LatLng{}, eris.Wrapf(err, "model: parse latitude %q", parts[0])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return LatLng{}, eris.Wrapf(err, "model: parse longitude %q", parts[1])
	}
	p := LatLng{Lat: lat, Lon: lon}
	if !p.Valid() {
		return LatLng{}, eris.Errorf("model: coordinate %q out of range", s)
	}
	return p, nil
}

// Place is a single geocoding hit.
type Place struct {
	Label string `json:"label"`
	Point LatLng `json:"point"`
}

// MarkerKind identifies one of the markers the map view owns.
type MarkerKind string

const (
	MarkerStart  MarkerKind = "start"
	MarkerEnd    MarkerKind = "end"
	MarkerSearch MarkerKind = "search"
	MarkerCenter MarkerKind = "center"
)

// ParseMarkerKind validates a marker kind received from a client.
func ParseMarkerKind(s string) (MarkerKind, error) {
	switch k := MarkerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case MarkerStart, MarkerEnd, MarkerSearch, MarkerCenter:
		return k, nil
	default:
		return "", eris.Errorf("model: unknown marker kind %q", s)
	}
}

// Marker is the state of a single map marker.
type Marker struct {
	Kind    MarkerKind `json:"kind"`
	Point   LatLng     `json:"point"`
	Visible bool       `json:"visible"`
	Label   string     `json:"label,omitempty"`
}

// CenterSource names where an isochrone center came from.
type CenterSource string

const (
	CenterFromMarker    CenterSource = "marker"
	CenterFromAddress   CenterSource = "address"
	CenterFromSelection CenterSource = "selection"
	CenterFromViewport  CenterSource = "viewport"
)

// CenterResolution is the point an isochrone attempt is computed around.
type CenterResolution struct {
	Point  LatLng       `json:"point"`
	Source CenterSource `json:"source"`
	Label  string       `json:"label,omitempty"`
}
