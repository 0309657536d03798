package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesyncim/aom"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [file]",
	Short: "Print or check an encoder configuration",
	Long: `Without arguments, print the default encoder configuration as YAML.
With a file, load it, validate it and print the effective configuration.

Example:
  aomctl config --width 1280 --height 720 > enc.yaml
  aomctl config enc.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg aom.EncoderConfig
		if len(args) == 1 {
			c, err := aom.LoadEncoderConfig(args[0])
			if err != nil {
				return err
			}
			cfg = c
		} else {
			w, _ := cmd.Flags().GetInt("width")
			h, _ := cmd.Flags().GetInt("height")
			cfg = aom.DefaultEncoderConfig(w, h)
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		data, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.Flags().Int("width", 640, "Frame width")
	configCmd.Flags().Int("height", 480, "Frame height")
	rootCmd.AddCommand(configCmd)
}
