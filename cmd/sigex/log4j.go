package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/sigex/internal/log4j"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
)

func newLog4jCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "log4j <layout>",
		Short: "Convert a log4j PatternLayout into a pattern profile",
		Long: `Print a pattern profile whose option parses lines written by the given
log4j 1.2 PatternLayout.

Example:
  sigex log4j '%d{ISO8601} [%t] %-5p %c - %m%n' > profiles.yml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := log4j.Convert(args[0])
			if err != nil {
				return err
			}
			doc := struct {
				Profiles []profileDoc `yaml:"profiles"`
			}{
				Profiles: []profileDoc{{
					Name:    name,
					Format:  "pattern",
					Options: []option.Option{o, continuationOption()},
				}},
			}
			out, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
			a.logger.Debug("converted log4j layout")
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "log4j-custom", "name of the generated profile")
	return cmd
}

// profileDoc is the subset of a profile the converter emits.
type profileDoc struct {
	Name    string          `yaml:"name"`
	Format  string          `yaml:"format"`
	Options []option.Option `yaml:"options"`
}

// continuationOption appends lines that match no layout to the open
// message, e.g. stack traces.
func continuationOption() option.Option {
	return option.Option{
		Description: "Continuation lines",
		Pattern:     "(.*)",
		Action:      "add",
		Members:     []option.Member{{Name: model.MemberMessage, Source: 1}},
	}
}
