package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriserin/gherkit/internal/locator"
	"github.com/chriserin/gherkit/internal/ui"
)

var resolveFlag string

var locatorsCmd = &cobra.Command{
	Use:   "locators",
	Short: "List element locators, or resolve one with --resolve page.element",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunLocators(cmd.OutOrStdout(), configFlag, resolveFlag)
	},
}

func init() {
	locatorsCmd.Flags().StringVar(&resolveFlag, "resolve", "", "Resolve page.element to its locator")
	rootCmd.AddCommand(locatorsCmd)
}

func RunLocators(w io.Writer, configPath, resolve string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	reg := locator.NewRegistry()
	if err := reg.Load(settings.ElementsDir); err != nil {
		return err
	}

	if resolve != "" {
		page, element, ok := strings.Cut(resolve, ".")
		if !ok {
			return fmt.Errorf("expected page.element, got %q", resolve)
		}
		d, err := reg.Resolve(page, element)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, d.String())
		fmt.Fprintln(w, d.Selector())
		return nil
	}

	for _, page := range reg.Pages() {
		elems := reg.Elements(page)
		width := 0
		for _, d := range elems {
			if len(d.Element) > width {
				width = len(d.Element)
			}
		}
		ui.PageHeader(w, page)
		for _, d := range elems {
			ui.LocatorRow(w, d.Element, string(d.Strategy), d.Value, width)
		}
	}
	return nil
}
