package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chriserin/gherkit/internal/config"
)

const defaultConfig = "gherkit.yaml"

var configFlag string

var rootCmd = &cobra.Command{
	Use:          "gherkit",
	Short:        "gherkit runs Gherkin scenarios against web UIs, HTTP APIs and databases",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", defaultConfig, "Settings file")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// loadSettings reads the settings file at path. The default file is
// optional; a path given explicitly must exist.
func loadSettings(path string) (config.Settings, error) {
	if path == defaultConfig {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	s, err := config.Load(path)
	if err != nil {
		return s, fmt.Errorf("loading settings: %w", err)
	}
	return s, nil
}
