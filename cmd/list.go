package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriserin/gherkit/internal/runner"
	"github.com/chriserin/gherkit/internal/ui"
)

var listTags string

var listCmd = &cobra.Command{
	Use:   "list [paths...]",
	Short: "List scenarios in feature files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunList(cmd.OutOrStdout(), configFlag, args, listTags)
	},
}

func init() {
	listCmd.Flags().StringVar(&listTags, "tags", "", "Tag filter, e.g. @smoke,~@wip")
	rootCmd.AddCommand(listCmd)
}

type listRow struct {
	location string
	name     string
	tags     []string
}

func RunList(w io.Writer, configPath string, paths []string, tags string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	files, err := loadFeatures(paths, settings.FeaturesDir)
	if err != nil {
		return err
	}
	filter := runner.ParseFilter(tags)

	var results []listRow
	for _, f := range files {
		for _, e := range f.Errors {
			fmt.Fprintf(w, "%s:%d: %s\n", f.Path, e.Line, e.Message)
		}
		for _, s := range f.Scenarios {
			if !filter.Match(s.Tags) {
				continue
			}
			results = append(results, listRow{
				location: fmt.Sprintf("%s:%d", f.Path, s.Line),
				name:     s.Name,
				tags:     s.Tags,
			})
		}
	}

	if len(results) == 0 {
		return nil
	}

	// Compute column widths
	locWidth, nameWidth := 0, 0
	for _, r := range results {
		if len(r.location) > locWidth {
			locWidth = len(r.location)
		}
		if len(r.name) > nameWidth {
			nameWidth = len(r.name)
		}
	}

	for _, r := range results {
		ui.ListRow(w, r.location, r.name, r.tags, locWidth, nameWidth)
	}

	return nil
}
