// Package browser drives a Chrome tab for UI steps through chromedp.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/locator"
	"github.com/chriserin/gherkit/internal/logging"
)

type Action string

const (
	Click       Action = "click"
	Type        Action = "type"
	Hover       Action = "hover"
	DoubleClick Action = "doubleClick"
	WaitVisible Action = "waitVisible"
	Screenshot  Action = "screenshot"
	Text        Action = "text"
	Visible     Action = "visible"
)

// Outcome carries whatever an action reads back from the page.
type Outcome struct {
	Text    string
	Visible bool
	Image   []byte
}

// Driver is the UI collaborator. Element actions receive the resolved
// locator, never a symbolic name.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	Act(ctx context.Context, loc locator.Descriptor, action Action, value string) (Outcome, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

type Options struct {
	Headless  bool
	Width     int
	Height    int
	ExecPath  string
	UserAgent string
	// VisibleProbe bounds how long a visibility check waits before
	// reporting the element as not visible.
	VisibleProbe time.Duration
}

func OptionsFrom(b config.Browser) Options {
	return Options{
		Headless:     b.Headless,
		Width:        b.Width,
		Height:       b.Height,
		ExecPath:     b.ExecPath,
		UserAgent:    b.UserAgent,
		VisibleProbe: 2 * time.Second,
	}
}

type Chrome struct {
	tab         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	opts        Options
	logger      *zap.Logger
}

// Launch starts a browser process and opens one tab.
func Launch(opts Options, logger *zap.Logger) (*Chrome, error) {
	logger = logging.Component(logger, "Browser")

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.Width > 0 && opts.Height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Width, opts.Height))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	// The first Run starts the browser.
	if err := chromedp.Run(tab); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	logger.Debug("Browser started", zap.Bool("headless", opts.Headless))

	if opts.VisibleProbe <= 0 {
		opts.VisibleProbe = 2 * time.Second
	}
	return &Chrome{tab: tab, cancel: cancel, allocCancel: allocCancel, opts: opts, logger: logger}, nil
}

// run executes actions on the tab, bounded by ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if d, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(c.tab, d)
	} else {
		runCtx, cancel = context.WithCancel(c.tab)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
	}
	return err
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) WaitLoad(ctx context.Context) error {
	return c.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (c *Chrome) Act(ctx context.Context, loc locator.Descriptor, action Action, value string) (Outcome, error) {
	sel, by := query(loc)
	var (
		out Outcome
		err error
	)
	switch action {
	case Click:
		err = c.run(ctx, chromedp.Click(sel, by, chromedp.NodeVisible))
	case DoubleClick:
		err = c.run(ctx, chromedp.DoubleClick(sel, by, chromedp.NodeVisible))
	case Type:
		err = c.run(ctx, chromedp.WaitReady(sel, by), chromedp.SendKeys(sel, value, by))
	case Hover:
		err = c.run(ctx, chromedp.ScrollIntoView(sel, by), hover(sel, by))
	case WaitVisible:
		err = c.run(ctx, chromedp.WaitVisible(sel, by))
	case Screenshot:
		err = c.run(ctx, chromedp.Screenshot(sel, &out.Image, by, chromedp.NodeVisible))
	case Text:
		err = c.run(ctx, chromedp.WaitReady(sel, by), chromedp.TextContent(sel, &out.Text, by))
	case Visible:
		out.Visible, err = c.visible(ctx, sel, by)
	default:
		err = fmt.Errorf("unsupported action %q", action)
	}
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", action, loc, err)
	}
	return out, nil
}

// visible waits briefly for the element to become visible. Running out of
// probe time means not visible; running out of ctx is an error.
func (c *Chrome) visible(ctx context.Context, sel string, by chromedp.QueryOption) (bool, error) {
	probe, cancel := context.WithTimeout(ctx, c.opts.VisibleProbe)
	defer cancel()
	err := c.run(probe, chromedp.WaitVisible(sel, by))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return false, nil
	}
	return false, err
}

func hover(sel string, by chromedp.QueryOption) chromedp.Action {
	var box *dom.BoxModel
	return chromedp.Tasks{
		chromedp.Dimensions(sel, &box, by, chromedp.NodeVisible),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if box == nil || len(box.Content) < 8 {
				return errors.New("element has no box model")
			}
			q := box.Content
			x := (q[0] + q[2] + q[4] + q[6]) / 4
			y := (q[1] + q[3] + q[5] + q[7]) / 4
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}),
	}
}

func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	err := c.run(ctx, chromedp.Title(&title))
	return title, err
}

func (c *Chrome) URL(ctx context.Context) (string, error) {
	var url string
	err := c.run(ctx, chromedp.Location(&url))
	return url, err
}

// screenshotQuality must stay 100: FullScreenshot encodes PNG only at full
// quality and JPEG below it.
const screenshotQuality = 100

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, chromedp.FullScreenshot(&buf, screenshotQuality))
	return buf, err
}

func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.tab)
	c.cancel()
	c.allocCancel()
	return err
}

func query(d locator.Descriptor) (string, chromedp.QueryOption) {
	sel, xpath := selectorFor(d)
	if xpath {
		return sel, chromedp.BySearch
	}
	return sel, chromedp.ByQuery
}

// selectorFor returns the selector text and whether it is XPath. All
// other strategies render as CSS.
func selectorFor(d locator.Descriptor) (string, bool) {
	if d.Strategy == locator.XPath {
		return d.Value, true
	}
	return d.Selector(), false
}
