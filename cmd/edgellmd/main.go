// edgellmd is the on-device model runtime daemon. It serves the catalog,
// download, lifecycle and generation API over HTTP.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"edgellm/internal/catalog"
	"edgellm/internal/config"
	"edgellm/internal/device"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags serveFlags

	root := &cobra.Command{
		Use:           "edgellmd",
		Short:         "On-device LLM runtime daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a yaml/json/toml config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(flags)
		},
	}
	serve.Flags().StringVar(&flags.addr, "addr", "", "HTTP listen address, e.g. :8090")
	serve.Flags().StringVar(&flags.modelsDir, "models-dir", "", "Directory holding downloaded model files")
	serve.Flags().StringVar(&flags.catalogPath, "catalog", "", "Path to a yaml/json/toml catalog file overriding the built-in set")

	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Print the detected device capability as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			caps := device.New(cat, device.Probes{}).Detect()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(caps)
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			for _, m := range cat.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %6d MB  %s\n", m.ID, m.TotalSizeMB(), m.Name)
			}
			return nil
		},
	}

	root.AddCommand(serve, deviceCmd, modelsCmd)
	return root
}

// loadConfig resolves the effective configuration: file if given, defaults
// otherwise, then flag overrides on top.
func loadConfig(flags serveFlags) (config.Config, error) {
	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	if flags.modelsDir != "" {
		cfg.ModelsDir = flags.modelsDir
	}
	if flags.catalogPath != "" {
		cfg.CatalogPath = flags.catalogPath
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

func loadCatalog(cfg config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		return catalog.LoadFile(cfg.CatalogPath)
	}
	return catalog.Default(), nil
}
