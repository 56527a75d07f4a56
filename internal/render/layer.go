// Package render turns isochrone responses into styled shapes and hands
// them to a drawing surface in one atomic replace.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/pkg/ors"
)

// Palette runs blue to red. Colors are assigned by feature index and wrap.
var Palette = []string{
	"#2b83ba",
	"#2fa09d",
	"#6fae6b",
	"#b7d36a",
	"#f6f7b4",
	"#ffd77f",
	"#ffb075",
	"#ff8b66",
	"#e85b3a",
	"#c72a28",
}

const (
	strokeFactor = 0.55
	strokeWeight = 2
	opacity      = 0.95
	fillOpacity  = 0.6
)

// Style is a Leaflet-compatible path style.
type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fillOpacity"`
}

// RouteStyle is the style of the start/end route line.
var RouteStyle = Style{Color: "#ff7800", Weight: 5, Opacity: 0.65}

// Shape is one styled isochrone polygon.
type Shape struct {
	Index   int              `json:"index"`
	Feature *geojson.Feature `json:"feature"`
	Style   Style            `json:"style"`
}

// Surface draws shapes. Implementations must treat ReplaceIsochrones as a
// full replacement of whatever was drawn before.
type Surface interface {
	ReplaceIsochrones(shapes []Shape, bounds *geom.Bounds)
	ClearIsochrones()
}

// Layer tracks what is on the surface. Surface calls are made under the
// layer lock so the surface sees replaces and clears in call order.
type Layer struct {
	surface Surface

	mu    sync.Mutex
	drawn int
}

// NewLayer returns a layer drawing onto s.
func NewLayer(s Surface) *Layer {
	return &Layer{surface: s}
}

// StyleFor returns the style of the feature at index i.
func StyleFor(i int) Style {
	color := Palette[i%len(Palette)]
	return Style{
		Color:       DarkenHex(color, strokeFactor),
		FillColor:   color,
		Weight:      strokeWeight,
		Opacity:     opacity,
		FillOpacity: fillOpacity,
	}
}

// Render replaces the drawn isochrones with fc. Every shape is built before
// the surface is touched. A nil or empty collection clears the layer.
// It returns the number of shapes drawn.
func (l *Layer) Render(fc *geojson.FeatureCollection) int {
	var shapes []Shape
	if fc != nil {
		shapes = make([]Shape, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			shapes = append(shapes, Shape{Index: len(shapes), Feature: f, Style: StyleFor(len(shapes))})
		}
	}

	if len(shapes) == 0 {
		zap.L().Warn("render: no isochrone features to draw")
		l.Clear()
		return 0
	}

	bounds := ors.Bounds(fc)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.surface.ReplaceIsochrones(shapes, bounds)
	l.drawn = len(shapes)
	return len(shapes)
}

// Clear removes every drawn isochrone. It does nothing when the layer is
// already empty.
func (l *Layer) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drawn == 0 {
		return
	}
	l.surface.ClearIsochrones()
	l.drawn = 0
}

// Drawn returns the number of shapes currently on the surface.
func (l *Layer) Drawn() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.drawn
}

// DarkenHex scales each channel of a #rrggbb color by factor. Malformed
// input is returned unchanged.
func DarkenHex(hex string, factor float64) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return hex
	}
	var out [3]int64
	for i := range out {
		v, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
		if err != nil {
			return hex
		}
		c := math.Round(float64(v) * factor)
		out[i] = int64(math.Max(0, math.Min(255, c)))
	}
	return fmt.Sprintf("#%02x%02x%02x", out[0], out[1], out[2])
}
