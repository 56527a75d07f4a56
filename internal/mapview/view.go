// Package mapview holds the server-side state of one map: markers, the last
// selected point, the viewport and the route between start and end.
package mapview

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
	"github.com/sells-group/orsmap/pkg/ors"
)

// API is the part of the ORS client the map view calls.
type API interface {
	Route(ctx context.Context, profile model.Profile, start, end model.LatLng) (*geojson.FeatureCollection, error)
	ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error)
}

// RouteSurface draws the route line.
type RouteSurface interface {
	ShowRoute(fc *geojson.FeatureCollection)
	ClearRoute()
}

// Options configures a View.
type Options struct {
	MaxRouteKm   float64
	RouteProfile model.Profile
	Center       model.LatLng
	Zoom         float64
}

// View is safe for concurrent use. It implements the orchestrator's center
// source.
type View struct {
	bus     *events.Bus
	api     API
	surface RouteSurface
	opts    Options

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.Mutex
	closed      bool
	markers     map[model.MarkerKind]model.Marker
	selected    model.LatLng
	hasSelected bool
	viewport    model.LatLng
	zoom        float64
	routeSeq    uint64
	routeCancel context.CancelFunc

	routeMu    sync.Mutex
	routeShown bool

	wg sync.WaitGroup
}

// New returns a view centered on opts.Center.
func New(bus *events.Bus, api API, surface RouteSurface, opts Options) *View {
	if opts.MaxRouteKm <= 0 {
		opts.MaxRouteKm = 700
	}
	opts.RouteProfile = opts.RouteProfile.OrDefault()
	ctx, stop := context.WithCancel(context.Background())
	return &View{
		bus:      bus,
		api:      api,
		surface:  surface,
		opts:     opts,
		ctx:      ctx,
		stop:     stop,
		markers:  make(map[model.MarkerKind]model.Marker),
		viewport: opts.Center,
		zoom:     opts.Zoom,
	}
}

// Close cancels route and label lookups and waits for them.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.stop()
	v.wg.Wait()
}

// CenterMarker returns the center marker position if it is shown.
func (v *View) CenterMarker() (model.LatLng, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markers[model.MarkerCenter]
	return m.Point, ok && m.Visible
}

// LastSelected returns the last clicked or searched point.
func (v *View) LastSelected() (model.LatLng, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected, v.hasSelected
}

// ViewportCenter returns the middle of the visible map.
func (v *View) ViewportCenter() (model.LatLng, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport, v.viewport.Valid()
}

// SetLastSelected records p without announcing it.
func (v *View) SetLastSelected(p model.LatLng) {
	v.mu.Lock()
	v.selected, v.hasSelected = p, true
	v.mu.Unlock()
}

// Viewport returns the current map center and zoom.
func (v *View) Viewport() (model.LatLng, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewport, v.zoom
}

// SetViewport records the visible map center and zoom.
func (v *View) SetViewport(center model.LatLng, zoom float64) error {
	if !center.Valid() {
		return eris.Errorf("mapview: invalid viewport center %s", center)
	}
	v.mu.Lock()
	v.viewport, v.zoom = center, zoom
	v.mu.Unlock()
	return nil
}

// SelectPoint records a map click and announces it as a center update.
func (v *View) SelectPoint(p model.LatLng) error {
	if !p.Valid() {
		return eris.Errorf("mapview: invalid point %s", p)
	}
	v.SetLastSelected(p)
	v.bus.CenterUpdated.Publish(events.CenterUpdate{Point: p, Source: model.CenterFromSelection, Visible: true})
	return nil
}

// Marker returns the marker of the given kind, if it was ever placed.
func (v *View) Marker(kind model.MarkerKind) (model.Marker, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.markers[kind]
	return m, ok
}

// Markers returns every placed marker ordered by kind.
func (v *View) Markers() []model.Marker {
	v.mu.Lock()
	out := make([]model.Marker, 0, len(v.markers))
	for _, m := range v.markers {
		out = append(out, m)
	}
	v.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// PlaceMarker shows a marker at p and labels it with the reverse-geocoded
// address. A failed lookup leaves the label empty.
func (v *View) PlaceMarker(ctx context.Context, kind model.MarkerKind, p model.LatLng) (model.Marker, error) {
	if !p.Valid() {
		return model.Marker{}, eris.Errorf("mapview: invalid point %s", p)
	}
	kind, err := model.ParseMarkerKind(string(kind))
	if err != nil {
		return model.Marker{}, eris.Wrap(err, "mapview: place marker")
	}

	var label string
	place, err := v.api.ReverseGeocode(ctx, p)
	switch {
	case err != nil:
		if resilience.IsCanceled(err) {
			return model.Marker{}, eris.Wrap(err, "mapview: place marker")
		}
		zap.L().Debug("mapview: reverse geocode failed", zap.String("kind", string(kind)), zap.Error(err))
	case place != nil:
		label = place.Label
	}

	return v.show(kind, p, label), nil
}

// PlaceGeocodedMarker shows a marker whose label is already known.
func (v *View) PlaceGeocodedMarker(kind model.MarkerKind, p model.LatLng, label string) (model.Marker, error) {
	if !p.Valid() {
		return model.Marker{}, eris.Errorf("mapview: invalid point %s", p)
	}
	kind, err := model.ParseMarkerKind(string(kind))
	if err != nil {
		return model.Marker{}, eris.Wrap(err, "mapview: place geocoded marker")
	}
	return v.show(kind, p, label), nil
}

func (v *View) show(kind model.MarkerKind, p model.LatLng, label string) model.Marker {
	m := model.Marker{Kind: kind, Point: p, Visible: true, Label: label}

	v.mu.Lock()
	v.markers[kind] = m
	if kind == model.MarkerSearch {
		v.selected, v.hasSelected = p, true
	}
	v.mu.Unlock()

	v.bus.MarkerChanged.Publish(m)
	switch kind {
	case model.MarkerCenter:
		v.bus.CenterUpdated.Publish(events.CenterUpdate{Point: p, Source: model.CenterFromMarker, Visible: true})
	case model.MarkerSearch:
		v.bus.CenterUpdated.Publish(events.CenterUpdate{Point: p, Source: model.CenterFromSelection, Visible: true})
	case model.MarkerStart, model.MarkerEnd:
		v.RefreshRoute()
	}
	return m
}

// HideMarker hides the marker of the given kind. Hiding start or end
// clears the route.
func (v *View) HideMarker(kind model.MarkerKind) {
	v.mu.Lock()
	m, ok := v.markers[kind]
	if !ok || !m.Visible {
		v.mu.Unlock()
		return
	}
	m.Visible = false
	v.markers[kind] = m
	v.mu.Unlock()

	v.bus.MarkerChanged.Publish(m)
	switch kind {
	case model.MarkerCenter:
		v.bus.CenterUpdated.Publish(events.CenterUpdate{Point: m.Point, Source: model.CenterFromMarker, Visible: false})
	case model.MarkerStart, model.MarkerEnd:
		v.RefreshRoute()
	}
}

// SetRouteProfile changes the travel mode used for routes and refreshes the
// current route.
func (v *View) SetRouteProfile(p model.Profile) {
	v.mu.Lock()
	v.opts.RouteProfile = p.OrDefault()
	v.mu.Unlock()
	v.RefreshRoute()
}

// RefreshRoute requests a route between the visible start and end markers.
// A newer refresh cancels the older one. The route is cleared when either
// marker is hidden or the points are too far apart.
func (v *View) RefreshRoute() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.routeSeq++
	seq := v.routeSeq
	if v.routeCancel != nil {
		v.routeCancel()
		v.routeCancel = nil
	}

	start, startOK := v.markers[model.MarkerStart]
	end, endOK := v.markers[model.MarkerEnd]
	if !startOK || !endOK || !start.Visible || !end.Visible {
		v.mu.Unlock()
		v.clearRoute(seq)
		return
	}

	maxKm := v.opts.MaxRouteKm
	if Distance(start.Point, end.Point) >= maxKm*1000 {
		v.mu.Unlock()
		v.clearRoute(seq)
		v.bus.Notify(events.LevelWarning, fmt.Sprintf("distance between points exceeds %g km", maxKm))
		return
	}

	ctx, cancel := context.WithCancel(v.ctx)
	v.routeCancel = cancel
	profile := v.opts.RouteProfile
	v.wg.Add(1)
	v.mu.Unlock()

	go func() {
		defer v.wg.Done()
		v.fetchRoute(ctx, seq, profile, start.Point, end.Point)
	}()
}

func (v *View) routeCurrent(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return !v.closed && seq == v.routeSeq
}

func (v *View) fetchRoute(ctx context.Context, seq uint64, profile model.Profile, start, end model.LatLng) {
	fc, err := v.api.Route(ctx, profile, start, end)
	if err != nil {
		if resilience.IsCanceled(err) || ctx.Err() != nil || !v.routeCurrent(seq) {
			return
		}
		msg := err.Error()
		if apiErr, ok := ors.AsAPIError(err); ok && apiErr.Message != "" {
			msg = apiErr.Message
		}
		zap.L().Warn("mapview: route failed", zap.Stringer("start", start), zap.Stringer("end", end), zap.Error(err))
		v.bus.Notify(events.LevelError, msg)
		return
	}

	v.routeMu.Lock()
	defer v.routeMu.Unlock()
	if !v.routeCurrent(seq) {
		return
	}
	v.surface.ShowRoute(fc)
	v.routeShown = true
}

func (v *View) clearRoute(seq uint64) {
	v.routeMu.Lock()
	defer v.routeMu.Unlock()
	if !v.routeShown || !v.routeCurrent(seq) {
		return
	}
	v.surface.ClearRoute()
	v.routeShown = false
}
