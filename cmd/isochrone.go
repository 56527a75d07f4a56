package main

import (
	"context"
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/config"
	"github.com/sells-group/orsmap/internal/events"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/internal/panel"
	"github.com/sells-group/orsmap/pkg/ors"
)

// isochroneFlags are in UI units: km for distance, minutes for time.
type isochroneFlags struct {
	lat, lon  float64
	rng       float64
	interval  float64
	profile   string
	rangeType string
	address   string
}

var isoFlags = isochroneFlags{lat: math.NaN(), lon: math.NaN()}

var isochroneCmd = &cobra.Command{
	Use:   "isochrone",
	Short: "Compute isochrones around a point or address and print them as GeoJSON",
	Example: `  orsmap isochrone --lat 51.2365 --lon 22.4999 --range 15 --interval 5
  orsmap isochrone --address "Lublin" --range-type time --range 30 --interval 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient(cfg)
		if err != nil {
			return err
		}
		return runIsochrone(cmd.Context(), cmd.OutOrStdout(), api, cfg.Isochrone, isoFlags)
	},
}

// isochroneDetail applies the same parsing and clamping as the interactive
// panel so the one-shot request matches what a session would send.
func isochroneDetail(icfg config.IsochroneConfig, f isochroneFlags) (model.RequestDetail, error) {
	profile, err := model.ParseProfile(f.profile)
	if err != nil {
		return model.RequestDetail{}, err
	}
	rt, err := model.ParseRangeType(f.rangeType)
	if err != nil {
		return model.RequestDetail{}, err
	}

	icfg.DefaultRangeType = string(rt)
	icfg.DefaultProfile = string(profile)
	p := panel.New(events.New(), icfg)
	defer p.Close()

	if f.rng > 0 {
		p.SetRange(f.rng)
	}
	if f.interval > 0 {
		p.SetInterval(f.interval)
	}
	return p.State().Detail(), nil
}

func runIsochrone(ctx context.Context, w io.Writer, api ors.Client, icfg config.IsochroneConfig, f isochroneFlags) error {
	detail, err := isochroneDetail(icfg, f)
	if err != nil {
		return err
	}

	var center model.LatLng
	switch {
	case f.address != "":
		places, err := api.Geocode(ctx, f.address)
		if err != nil {
			return eris.Wrapf(err, "isochrone: geocode %q", f.address)
		}
		if len(places) == 0 {
			return eris.Errorf("isochrone: address not found: %s", f.address)
		}
		center = places[0].Point
		zap.L().Info("isochrone: resolved address", zap.String("label", places[0].Label), zap.Stringer("center", center))
	case !math.IsNaN(f.lat) && !math.IsNaN(f.lon):
		center = model.LatLng{Lat: f.lat, Lon: f.lon}
		if !center.Valid() {
			return eris.Errorf("isochrone: invalid center %s", center)
		}
	default:
		return eris.New("isochrone: --lat and --lon or --address is required")
	}

	fc, err := api.Isochrones(ctx, ors.NewIsochroneRequest(center, detail))
	if err != nil {
		return err
	}
	return printJSON(w, fc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	f := isochroneCmd.Flags()
	f.Float64Var(&isoFlags.lat, "lat", math.NaN(), "center latitude")
	f.Float64Var(&isoFlags.lon, "lon", math.NaN(), "center longitude")
	f.Float64Var(&isoFlags.rng, "range", 0, "outer range in km or minutes (default from config)")
	f.Float64Var(&isoFlags.interval, "interval", 0, "ring interval in km or minutes (default from config)")
	f.StringVar(&isoFlags.profile, "profile", string(model.ProfileDriving), "travel profile: driving-car, cycling-regular, foot-walking")
	f.StringVar(&isoFlags.rangeType, "range-type", string(model.RangeDistance), "range type: distance or time")
	f.StringVar(&isoFlags.address, "address", "", "geocode this address and use it as the center")
	rootCmd.AddCommand(isochroneCmd)
}
