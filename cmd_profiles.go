package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [name]",
		Short: "List layout profiles or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, err := a.registry.Get(args[0])
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(p, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}

			for _, p := range a.registry.List() {
				detect := "manual"
				if len(p.Detect) > 0 {
					detect = "auto"
				}
				fmt.Fprintf(out, "%-20s %-7s %s\n", p.Name, detect, p.Description)
				fmt.Fprintf(out, "%-20s %-7s columns: %s\n", "", "", strings.Join(p.ColumnNames(), ", "))
			}
			return nil
		},
	}
}
