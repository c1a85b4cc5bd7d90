package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/engine"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

func newInspectCmd(a *app) *cobra.Command {
	var profileName string
	cmd := &cobra.Command{
		Use:   "inspect <input.pdf>",
		Short: "Print assembled lines and what the engine decided for each",
		Long: `Inspect runs one document through a profile and prints every assembled
line with its classification. Use it to tune column ranges and markers of a
new profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			name := filepath.Base(path)
			pages, err := a.source().Extract(cmd.Context(), name, data)
			if err != nil {
				return err
			}

			var p *profile.Profile
			if profileName != "" {
				p, err = a.registry.Get(profileName)
			} else {
				p, err = a.registry.Detect(pages)
			}
			if err != nil {
				return err
			}

			m, err := engine.New(p, engine.Options{Logger: a.log, Trace: true, Tolerance: a.cfg.RowTolerance})
			if err != nil {
				return err
			}
			res := m.Run(name, pages)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: profile %s, %d page(s)\n", name, p.Name, len(pages))
			for _, l := range res.Trace {
				tag := l.Marker
				if l.Account != "" {
					tag += " [" + l.Account + "]"
				}
				fmt.Fprintf(out, "p%-3d %7.1f %-13s %-30.30s %s\n", l.Page, l.Y, l.Kind, tag, l.Text)
			}
			for _, key := range res.Accounts() {
				fmt.Fprintf(out, "account %s: %d record(s)\n", key, len(res.Records(key)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "layout profile (auto-detected if omitted)")
	return cmd
}
