package ors

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/orsmap/internal/model"
)

func (c *client) Route(ctx context.Context, profile model.Profile, start, end model.LatLng) (*geojson.FeatureCollection, error) {
	params := url.Values{
		"start": {start.Param()},
		"end":   {end.Param()},
	}
	var raw json.RawMessage
	path := "/v2/directions/" + string(profile.OrDefault())
	if err := c.getJSON(ctx, "route", path, params, &raw); err != nil {
		return nil, err
	}
	return decodeFeatureCollection("route", raw)
}
