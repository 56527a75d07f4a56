package ors

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/sells-group/orsmap/internal/model"
)

// peliasResponse is the subset of the Pelias reply ORS forwards for
// /geocode/search and /geocode/reverse.
type peliasResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

func (r *peliasResponse) places() []model.Place {
	places := make([]model.Place, 0, len(r.Features))
	for _, f := range r.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		places = append(places, model.Place{
			Label: f.Properties.Label,
			Point: model.LatLng{Lat: f.Geometry.Coordinates[1], Lon: f.Geometry.Coordinates[0]},
		})
	}
	return places
}

func (c *client) Geocode(ctx context.Context, text string) ([]model.Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if c.cache != nil {
		if places, ok := c.cache.Get(text); ok {
			return places, nil
		}
	}

	params := url.Values{
		"text": {text},
		"size": {strconv.Itoa(c.geocodeSize)},
	}
	var resp peliasResponse
	if err := c.getJSON(ctx, "geocode", "/geocode/search", params, &resp); err != nil {
		return nil, err
	}

	places := resp.places()
	if c.cache != nil {
		c.cache.Put(text, places)
	}
	return places, nil
}

func (c *client) ReverseGeocode(ctx context.Context, p model.LatLng) (*model.Place, error) {
	params := url.Values{
		"point.lon": {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"point.lat": {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"size":      {"1"},
	}
	var resp peliasResponse
	if err := c.getJSON(ctx, "reverse geocode", "/geocode/reverse", params, &resp); err != nil {
		return nil, err
	}
	places := resp.places()
	if len(places) == 0 {
		return nil, nil
	}
	return &places[0], nil
}
