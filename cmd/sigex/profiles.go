package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/config"
)

func newProfilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List and validate the available profiles",
		Long: `List the built-in profiles merged with the --profiles file. Every
profile is compiled, so a listing without errors means all of them load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := a.profiles()
			if err != nil {
				return err
			}
			out, broken := renderProfiles(f, a.logger)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			if broken > 0 {
				return fmt.Errorf("%d profiles failed to compile", broken)
			}
			return nil
		},
	}
}

func renderProfiles(f *config.File, logger *zap.Logger) (string, int) {
	var lines []string
	broken := 0
	for _, name := range f.Names() {
		p, _ := f.Lookup(name)
		mark := greenStyle.Render("●")
		detail := dimStyle.Render(p.Description)
		if _, err := p.NewReader(logger); err != nil {
			mark = redStyle.Render("●")
			detail = redStyle.Render(err.Error())
			broken++
		}
		lines = append(lines, fmt.Sprintf("  %s  %-16s %-8s %s", mark, boldStyle.Render(name), p.Format, detail))
	}
	return strings.Join(lines, "\n"), broken
}
