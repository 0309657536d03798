package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesyncim/aom"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the libaom version and capabilities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := aom.Info(aom.WithLogger(loggerFrom(cmd)))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "libaom:   %s (%d.%d.%d)\n", info.Version, info.Major, info.Minor, info.Patch)
		fmt.Fprintf(out, "backend:  %s\n", info.Backend)
		fmt.Fprintf(out, "features: %s\n", info.Features)
		if verbose, _ := cmd.Flags().GetBool("build-config"); verbose {
			fmt.Fprintf(out, "build:    %s\n", info.BuildConfig)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("build-config", false, "Also print the libaom build configuration")
	rootCmd.AddCommand(versionCmd)
}
