package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "List the sensor descriptors a run can use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tCODE\tFAMILY\tCATALOG\tOUTPUT BANDS")
		for _, d := range sensor.NewRegistry().All() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%v\n", d.Key(), d.Code(), d.Family(), d.CatalogID(), d.Bands(sensor.RoleOut))
		}
		return w.Flush()
	},
}
