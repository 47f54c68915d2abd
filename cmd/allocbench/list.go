package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pavanmanishd/allocbench"
)

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scenarios and backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "scenario\tsizes\talign\trounds\trelease\tpeak live\t")
			for _, s := range allocbench.DefaultCatalog() {
				wl := s.Workload
				sizes := make([]string, len(wl.Sizes))
				for i, size := range wl.Sizes {
					sizes[i] = fmt.Sprint(size)
				}
				if wl.Batch > 1 {
					sizes[0] = fmt.Sprintf("%dx%s", wl.Batch, sizes[0])
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s %s\t%s\t\n",
					s.Name, strings.Join(sizes, ","), wl.Align,
					humanize.Comma(int64(wl.Rounds)), wl.Order, wl.Scope,
					humanize.IBytes(uint64(wl.PeakLiveBytes())))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fs, err := allocbench.Backends()
			if err != nil {
				return err
			}
			names := make([]string, len(fs))
			for i, f := range fs {
				names[i] = f.Name
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "\nbackends: %s\n", strings.Join(names, ", "))
			return err
		},
	}
}
