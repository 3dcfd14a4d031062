// Package main is the entry point for the PDF Gateway.
//
// Commands:
//
//	serve     start the HTTP gateway (default)
//	compress  compress one file from the command line
//	janitor   run a single artifact sweep
//	version   print version information
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/compresr/pdf-gateway/internal/config"
	"github.com/compresr/pdf-gateway/internal/monitoring"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

// ANSI color codes
const (
	compresrGreen = "\033[38;2;23;128;68m" // #178044
	bold          = "\033[1m"
	reset         = "\033[0m"
)

// ASCII banner for startup
const banner = `
 ██████╗ ██████╗ ███████╗     ██████╗  █████╗ ████████╗███████╗██╗    ██╗ █████╗ ██╗   ██╗
 ██╔══██╗██╔══██╗██╔════╝    ██╔════╝ ██╔══██╗╚══██╔══╝██╔════╝██║    ██║██╔══██╗╚██╗ ██╔╝
 ██████╔╝██║  ██║█████╗      ██║  ███╗███████║   ██║   █████╗  ██║ █╗ ██║███████║ ╚████╔╝
 ██╔═══╝ ██║  ██║██╔══╝      ██║   ██║██╔══██║   ██║   ██╔══╝  ██║███╗██║██╔══██║  ╚██╔╝
 ██║     ██████╔╝██║         ╚██████╔╝██║  ██║   ██║   ███████╗╚███╔███╔╝██║  ██║   ██║
 ╚═╝     ╚═════╝ ╚═╝          ╚═════╝ ╚═╝  ╚═╝   ╚═╝   ╚══════╝ ╚══╝╚══╝ ╚═╝  ╚═╝   ╚═╝
`

func printBanner() {
	fmt.Print(compresrGreen + bold + banner + reset + "\n")
}

// Persistent flags.
var (
	configPath string
	debug      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdf-gateway",
		Short: "Compress PDFs to a target size across several backends",
		Long: `pdf-gateway compresses PDF documents to approximately a target size.

It tries the configured backends in a fixed fallback order and re-runs
each one with progressively harsher settings until the result fits.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			loadEnvFiles()
		},
		// No subcommand starts the server.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.Flags().BoolVar(&noBanner, "no-banner", false, "suppress startup banner")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	root.AddCommand(newServeCmd(), newCompressCmd(), newJanitorCmd(), newVersionCmd())
	return root
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/pdf-gateway/.env first
	configEnv := filepath.Join(homeDir, ".config", "pdf-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

// resolveConfig finds the config to use.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	var searchPaths []string
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "pdf-gateway", "configs", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}
	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// loadConfig resolves, parses and validates the configuration.
func loadConfig() (*config.Config, string, error) {
	data, source, err := resolveConfig(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, source, nil
}

// setupLogging installs the global logger. --debug wins over the config.
func setupLogging(cfg *config.Config) *monitoring.Logger {
	lc := cfg.Monitoring.LoggerConfig()
	if debug {
		lc.Level = "debug"
	}
	return monitoring.Global(lc)
}
