package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a gherkit project in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunInit(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

var ignoredPaths = []string{".gherkit/", "allure-results/", "screenshots/"}

func RunInit(w io.Writer) error {
	defaults := config.Default()

	for _, dir := range []string{defaults.FeaturesDir, defaults.ElementsDir, defaults.APIDataDir} {
		_, err := os.Stat(dir)
		exists := err == nil
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if exists {
			fmt.Fprintf(w, "%s/ already exists\n", dir)
		} else {
			fmt.Fprintf(w, "%s/ created\n", dir)
		}
	}

	// settings
	if _, err := os.Stat(defaultConfig); err == nil {
		fmt.Fprintf(w, "%s already exists\n", defaultConfig)
	} else {
		data, err := yaml.Marshal(defaults)
		if err != nil {
			return fmt.Errorf("encoding settings: %w", err)
		}
		if err := os.WriteFile(defaultConfig, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", defaultConfig, err)
		}
		fmt.Fprintf(w, "%s created\n", defaultConfig)
	}

	// history database
	path := defaults.Report.HistoryPath
	_, err := os.Stat(path)
	dbExists := err == nil
	sqlDB, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	sqlDB.Close()
	if dbExists {
		fmt.Fprintf(w, "%s already exists\n", path)
	} else {
		fmt.Fprintf(w, "%s created\n", path)
	}

	msgs, err := ensureGitignore(ignoredPaths)
	if err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	for _, msg := range msgs {
		fmt.Fprintln(w, msg)
	}

	return nil
}

func ensureGitignore(entries []string) ([]string, error) {
	data, err := os.ReadFile(".gitignore")
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	var msgs []string
	if os.IsNotExist(err) {
		msgs = append(msgs, ".gitignore created")
	}

	present := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	content := string(data)
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	changed := false
	for _, entry := range entries {
		if present[entry] {
			msgs = append(msgs, entry+" already in .gitignore")
			continue
		}
		content += entry + "\n"
		changed = true
		msgs = append(msgs, entry+" added to .gitignore")
	}

	if changed {
		if err := os.WriteFile(".gitignore", []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}
