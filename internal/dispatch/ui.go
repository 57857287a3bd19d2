package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/browser"
	"github.com/chriserin/gherkit/internal/expect"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/response"
)

func registerUI(t *Table) {
	t.mustRegister("ui.browser", `I open the browser`, uiOpenBrowser)
	t.mustRegister("ui.page.file", `I open page "{page}" with URL from config "{config_file}" and value "{yaml_path}"`, uiOpenPageFromFile)
	t.mustRegister("ui.page", `I open page "{page}" with URL "{url}"`, uiOpenPage)
	t.mustRegister("ui.navigate.file", `I navigate to URL from config "{config_file}" and value "{yaml_path}"`, uiNavigateFromFile)
	t.mustRegister("ui.navigate", `I navigate to "{url}"`, uiNavigate)

	t.mustRegister("ui.type", `I type "{text}" into element "{element}"`, uiType)
	t.mustRegister("ui.click", `I click element "{element}"`, act(browser.Click))
	t.mustRegister("ui.dblclick", `I double click element "{element}"`, act(browser.DoubleClick))
	t.mustRegister("ui.hover", `I hover over element "{element}"`, act(browser.Hover))
	t.mustRegister("ui.wait", `I wait for "{seconds}" seconds`, uiWait)
	t.mustRegister("ui.wait.load", `I wait for the page to load`, uiWaitLoad)
	t.mustRegister("ui.wait.visible", `I wait for element "{element}" to be visible`, act(browser.WaitVisible))

	t.mustRegister("ui.visible", `element "{element}" should be visible`, uiVisible)
	t.mustRegister("ui.text", `element "{element}" should contain text "{text}"`, uiContainsText)
	t.mustRegister("ui.title", `the page title should be "{title}"`, uiTitle)
	t.mustRegister("ui.url", `the page URL should contain "{text}"`, uiURL)
	t.mustRegister("ui.screenshot", `I take a screenshot and save it as "{filename}"`, uiScreenshot)
}

func uiOpenBrowser(_ context.Context, sc *Scenario, _ Call) error {
	_, err := sc.driver()
	return err
}

func uiOpenPage(ctx context.Context, sc *Scenario, c Call) error {
	return sc.openAt(ctx, c.Args[0], c.Args[1])
}

func uiOpenPageFromFile(ctx context.Context, sc *Scenario, c Call) error {
	target, err := sc.env.Settings.LookupFile(c.Args[1], c.Args[2])
	if err != nil {
		return err
	}
	return sc.openAt(ctx, c.Args[0], target)
}

func (sc *Scenario) openAt(ctx context.Context, page, target string) error {
	d, err := sc.driver()
	if err != nil {
		return err
	}
	if err := sc.navigate(ctx, d, target); err != nil {
		return err
	}
	sc.page = page
	sc.logger.Info("Page opened", zap.String("page", page), zap.String("url", target))
	return nil
}

func uiNavigate(ctx context.Context, sc *Scenario, c Call) error {
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	return sc.navigate(ctx, d, c.Args[0])
}

func uiNavigateFromFile(ctx context.Context, sc *Scenario, c Call) error {
	target, err := sc.env.Settings.LookupFile(c.Args[0], c.Args[1])
	if err != nil {
		return err
	}
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	return sc.navigate(ctx, d, target)
}

func (sc *Scenario) navigate(ctx context.Context, d browser.Driver, target string) error {
	sc.sent("navigate %s", target)
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Navigation())
	defer cancel()
	if err := d.Navigate(ctx, target); err != nil {
		return failure.Action(failure.UI, "navigate", err)
	}
	if err := d.WaitLoad(ctx); err != nil {
		return failure.Action(failure.UI, "wait for load", err)
	}
	return nil
}

// act runs an element action that reads nothing back.
func act(action browser.Action) Handler {
	return func(ctx context.Context, sc *Scenario, c Call) error {
		_, err := sc.act(ctx, c.Args[0], action, "")
		return err
	}
}

func uiType(ctx context.Context, sc *Scenario, c Call) error {
	_, err := sc.act(ctx, c.Args[1], browser.Type, c.Args[0])
	return err
}

func (sc *Scenario) act(ctx context.Context, ref string, action browser.Action, value string) (browser.Outcome, error) {
	loc, err := sc.element(ref)
	if err != nil {
		return browser.Outcome{}, err
	}
	d, err := sc.openPage()
	if err != nil {
		return browser.Outcome{}, err
	}
	if value != "" {
		sc.sent("%s %s %q", action, loc, value)
	} else {
		sc.sent("%s %s", action, loc)
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Action())
	defer cancel()
	out, err := d.Act(ctx, loc, action, value)
	if err != nil {
		return out, failure.Action(failure.UI, string(action), err)
	}
	return out, nil
}

func uiWait(ctx context.Context, sc *Scenario, c Call) error {
	secs, err := strconv.ParseFloat(c.Args[0], 64)
	if err != nil || secs < 0 {
		return fmt.Errorf("invalid number of seconds %q", c.Args[0])
	}
	return sc.env.Sleep(ctx, time.Duration(secs*float64(time.Second)))
}

func uiWaitLoad(ctx context.Context, sc *Scenario, _ Call) error {
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Navigation())
	defer cancel()
	return failure.Action(failure.UI, "wait for load", d.WaitLoad(ctx))
}

func uiVisible(ctx context.Context, sc *Scenario, c Call) error {
	out, err := sc.act(ctx, c.Args[0], browser.Visible, "")
	if err != nil {
		return err
	}
	if !out.Visible {
		return &failure.AssertionFailure{
			Assertion: "element-visible",
			Path:      c.Args[0],
			Reason:    "element is not visible",
			Expected:  "visible",
			Actual:    "hidden",
		}
	}
	return nil
}

// uiContainsText checks the element text as a text response. UI reads never
// replace the scenario's latest response.
func uiContainsText(ctx context.Context, sc *Scenario, c Call) error {
	out, err := sc.act(ctx, c.Args[0], browser.Text, "")
	if err != nil {
		return err
	}
	return withPath(expect.Evaluate(response.FromText(out.Text), expect.BodyContains{Text: c.Args[1]}), c.Args[0])
}

func uiTitle(ctx context.Context, sc *Scenario, c Call) error {
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Action())
	defer cancel()
	title, err := d.Title(ctx)
	if err != nil {
		return failure.Action(failure.UI, "title", err)
	}
	return withPath(expect.Evaluate(response.FromText(title), expect.BodyEquals{Text: c.Args[0]}), "title")
}

func uiURL(ctx context.Context, sc *Scenario, c Call) error {
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Action())
	defer cancel()
	current, err := d.URL(ctx)
	if err != nil {
		return failure.Action(failure.UI, "url", err)
	}
	return withPath(expect.Evaluate(response.FromText(current), expect.BodyContains{Text: c.Args[0]}), "url")
}

// uiScreenshot writes a page screenshot. Relative names land in the
// configured screenshot directory.
func uiScreenshot(ctx context.Context, sc *Scenario, c Call) error {
	d, err := sc.openPage()
	if err != nil {
		return err
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Action())
	defer cancel()
	img, err := d.Screenshot(ctx)
	if err != nil {
		return failure.Action(failure.UI, "screenshot", err)
	}
	path := c.Args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(sc.env.Settings.Screenshot.Dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("writing screenshot: %w", err)
	}
	sc.recordImage(filepath.Base(path), img)
	sc.logger.Info("Screenshot saved", zap.String("path", path))
	return nil
}

func withPath(err error, path string) error {
	var af *failure.AssertionFailure
	if errors.As(err, &af) && af.Path == "" {
		af.Path = path
	}
	return err
}
