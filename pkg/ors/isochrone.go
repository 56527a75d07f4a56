package ors

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/resilience"
)

// IsochroneRequest describes one isochrone computation. Range and Interval
// are in transport units: meters for distance, seconds for time.
type IsochroneRequest struct {
	Center    model.LatLng
	Range     int
	Interval  int
	Profile   model.Profile
	RangeType model.RangeType
}

// NewIsochroneRequest builds a request from a materialized request detail.
func NewIsochroneRequest(center model.LatLng, d model.RequestDetail) IsochroneRequest {
	d = d.WithDefaults()
	return IsochroneRequest{
		Center:    center,
		Range:     d.Range,
		Interval:  d.Interval,
		Profile:   d.Profile,
		RangeType: d.RangeType,
	}
}

type isochroneBody struct {
	Locations [][]float64     `json:"locations"`
	Range     []int           `json:"range"`
	RangeType model.RangeType `json:"range_type"`
}

func (c *client) Isochrones(ctx context.Context, req IsochroneRequest) (*geojson.FeatureCollection, error) {
	if req.Range <= 0 {
		return nil, eris.Errorf("ors: isochrones: range must be positive, got %d", req.Range)
	}
	rt := req.RangeType.OrDefault()
	ranges := Ranges(req.Range, req.Interval, rt)
	reqURL := c.baseURL + "/v2/isochrones/" + string(req.Profile.OrDefault())

	body := isochroneBody{
		Locations: [][]float64{req.Center.LonLat()},
		Range:     ranges,
		RangeType: rt,
	}
	fc, err := c.postIsochrones(ctx, reqURL, body)
	if err == nil {
		return fc, nil
	}

	apiErr, ok := AsAPIError(err)
	if !ok || !resilience.IsServerError(apiErr.StatusCode) || len(ranges) < 2 {
		return nil, err
	}

	outer := ranges[len(ranges)-1]
	zap.L().Warn("ors: isochrones failed, retrying with outer ring only",
		zap.Int("status", apiErr.StatusCode),
		zap.Ints("ranges", ranges),
		zap.Int("fallback_range", outer),
	)
	body.Range = []int{outer}
	fc, fbErr := c.postIsochrones(ctx, reqURL, body)
	if fbErr != nil {
		zap.L().Debug("ors: isochrones fallback failed", zap.Error(fbErr))
		return nil, err
	}
	return fc, nil
}

func (c *client) postIsochrones(ctx context.Context, reqURL string, body isochroneBody) (*geojson.FeatureCollection, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "ors: isochrones: marshal body")
	}
	raw, err := c.do(ctx, "isochrones", http.MethodPost, reqURL, payload)
	if err != nil {
		return nil, err
	}
	return decodeFeatureCollection("isochrones", raw)
}
