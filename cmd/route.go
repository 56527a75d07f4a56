package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/orsmap/internal/mapview"
	"github.com/sells-group/orsmap/internal/model"
	"github.com/sells-group/orsmap/pkg/ors"
)

var (
	routeFrom    string
	routeTo      string
	routeProfile string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Compute directions between two points and print them as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient(cfg)
		if err != nil {
			return err
		}
		return runRoute(cmd.Context(), cmd.OutOrStdout(), api, cfg.Route.MaxDistanceKm, routeFrom, routeTo, routeProfile)
	},
}

func runRoute(ctx context.Context, w io.Writer, api ors.Client, maxKm float64, from, to, profile string) error {
	start, err := model.ParseLatLng(from)
	if err != nil {
		return eris.Wrap(err, "route: --from")
	}
	end, err := model.ParseLatLng(to)
	if err != nil {
		return eris.Wrap(err, "route: --to")
	}
	p, err := model.ParseProfile(profile)
	if err != nil {
		return err
	}
	if maxKm > 0 && mapview.Distance(start, end) >= maxKm*1000 {
		return eris.Errorf("route: distance between points exceeds %g km", maxKm)
	}

	fc, err := api.Route(ctx, p, start, end)
	if err != nil {
		return err
	}
	return printJSON(w, fc)
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "start point as lat,lon")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "end point as lat,lon")
	routeCmd.Flags().StringVar(&routeProfile, "profile", string(model.ProfileDriving), "travel profile")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(routeCmd)
}
