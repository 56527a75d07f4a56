package server

import (
	"encoding/json"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/render"
)

// Envelope is the frame of every websocket message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	MsgSetRange            = "set_range"
	MsgSetInterval         = "set_interval"
	MsgSetProfile          = "set_profile"
	MsgSetRangeType        = "set_range_type"
	MsgSetAddress          = "set_address"
	MsgGenerate            = "generate"
	MsgSelectPoint         = "select_point"
	MsgViewport            = "viewport"
	MsgPlaceMarker         = "place_marker"
	MsgPlaceGeocodedMarker = "place_geocoded_marker"
	MsgHideMarker          = "hide_marker"
)

// Outbound message types.
const (
	MsgSession            = "session"
	MsgPanelState         = "panel_state"
	MsgIsochrones         = "isochrones"
	MsgIsochronesCleared  = "isochrones_cleared"
	MsgRoute              = "route"
	MsgRouteCleared       = "route_cleared"
	MsgMarker             = "marker"
	MsgNotification       = "notification"
	MsgGenerationStarted  = "generation_started"
	MsgGenerationFinished = "generation_finished"
	MsgGenerationDropped  = "generation_dropped"
	MsgCenterChanged      = "center_changed"
	MsgAddressResolved    = "address_resolved"
	MsgAddressCandidates  = "address_candidates"
)

type valuePayload struct {
	Value *float64 `json:"value"`
}

type profilePayload struct {
	Profile string `json:"profile"`
}

type rangeTypePayload struct {
	RangeType string `json:"range_type"`
}

type addressPayload struct {
	Text string `json:"text"`
}

type viewportPayload struct {
	Center model.LatLng `json:"center"`
	Zoom   float64      `json:"zoom"`
}

type markerPayload struct {
	Kind  string       `json:"kind"`
	Point model.LatLng `json:"point"`
	Label string       `json:"label,omitempty"`
}

type sessionPayload struct {
	ID string `json:"id"`
}

type isochronesPayload struct {
	Shapes []render.Shape `json:"shapes"`
	BBox   []float64      `json:"bbox,omitempty"`
}

type routePayload struct {
	Route *geojson.FeatureCollection `json:"route"`
	Style render.Style               `json:"style"`
}

type labelPayload struct {
	Label string `json:"label"`
}
