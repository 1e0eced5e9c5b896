package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/bitesize-scraper/pkg/config"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file and print the warnings it produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			warnings, err := cfg.Validate()
			out := cmd.OutOrStdout()
			for _, w := range warnings {
				fmt.Fprintf(out, "warning: %s\n", w)
			}
			if err != nil {
				return err
			}
			for _, u := range cfg.StartURLs {
				if err := config.ValidateStartURL(u); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Configuration OK (%d start URL(s), max_pages=%d, output_dir=%s)\n",
				len(cfg.StartURLs), cfg.MaxPages, cfg.OutputDir)
			return nil
		},
	}
}
