package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/retrixe/imprint/imaging"
	"github.com/spf13/cobra"

	"github.com/retrixe/glassarch/internal/disk"
)

func (a *app) disksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disks",
		Short: "List the disks Arch Linux can be installed to.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			disks, err := disk.List()
			if err != nil {
				return err
			}

			return printDisks(cmd, disks)
		},
	}
}

func printDisks(cmd *cobra.Command, disks []disk.Info) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "DEVICE\tSIZE\tMODEL\tREMOVABLE")
	for _, d := range disks {
		removable := "no"
		if d.Removable {
			removable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Path, imaging.BytesToString(int(d.Size), true), d.Model, removable)
	}

	return w.Flush()
}
