package main

import (
	"fmt"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/boardlake/pkg/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check configuration files",
	}
	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigValidateCmd())
	return configCmd
}

// sampleConfig is Default() with placeholder partitions and destination.
func sampleConfig() *config.Config {
	cfg := config.Default()
	cfg.Extraction.Partitions = []string{"1234567890:Roadmap", "9876543210"}
	cfg.Destination.Prefix = "s3://my-bucket/boardlake/items"
	return cfg
}

func newConfigInitCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := sampleConfig()
			if output == "-" {
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := config.Save(output, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "boardlake.yaml", "Output path, or - for stdout")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve and validate configuration, then print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWith(viper.New(), configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := cfg.Upstream.ResolveCredential(); err != nil {
				return err
			}

			// credential_ref is excluded from JSON
			data, err := gojson.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
