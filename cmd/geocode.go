package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/orsmap/pkg/ors"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode <text>",
	Short: "Resolve an address to candidate places",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := newClient(cfg)
		if err != nil {
			return err
		}
		return runGeocode(cmd.Context(), cmd.OutOrStdout(), api, strings.Join(args, " "))
	},
}

func runGeocode(ctx context.Context, w io.Writer, api ors.Client, text string) error {
	places, err := api.Geocode(ctx, text)
	if err != nil {
		return err
	}
	if len(places) == 0 {
		_, _ = fmt.Fprintf(w, "address not found: %s\n", text)
		return nil
	}
	for _, p := range places {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", p.Point, p.Label)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
}
