package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"grepl/internal/config"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ChromeDriver drives a chromedp browser context.
type ChromeDriver struct {
	ctx           context.Context
	cfg           config.CaptureConfig
	actionTimeout time.Duration
	log           *logrus.Logger
}

func NewChromeDriver(ctx context.Context, cfg config.CaptureConfig, log *logrus.Logger) *ChromeDriver {
	return &ChromeDriver{
		ctx:           ctx,
		cfg:           cfg,
		actionTimeout: cfg.ActionTimeout.Duration,
		log:           log,
	}
}

// runWithTimeout runs actions on the browser context, bounded by the
// per-action timeout and by ctx.
func (d *ChromeDriver) runWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	select {
	case <-d.ctx.Done():
		return fmt.Errorf("browser context canceled: %w", d.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	timeoutCtx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(timeoutCtx, actions...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("action context canceled during execution")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("action timed out after %v", timeout)
		}
		return err
	}
	return nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.log.Infof("Navigating to %s...", url)
	if err := d.runWithTimeout(ctx, d.actionTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Scroll moves the virtualised list container by one step, or the window if
// the container is not on the page.
func (d *ChromeDriver) Scroll(ctx context.Context) error {
	var found bool
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.scrollTop += %d;
		return true;
	})()`, strconv.Quote(d.cfg.ContainerSelector), d.cfg.ScrollStep)
	if err := d.runWithTimeout(ctx, d.actionTimeout, chromedp.Evaluate(js, &found)); err != nil {
		return err
	}
	if found {
		return nil
	}

	d.log.Warn("Could not find container, attempting to scroll window.")
	return d.runWithTimeout(ctx, d.actionTimeout, chromedp.Evaluate(`window.scrollBy(0, 4000)`, nil))
}

func (d *ChromeDriver) WaitForContent(ctx context.Context) error {
	var complete bool
	if err := d.runWithTimeout(ctx, d.actionTimeout,
		chromedp.Poll(`document.readyState === "complete"`, &complete),
	); err != nil {
		return fmt.Errorf("page load: %w", err)
	}
	if d.cfg.ContentSelector == "" {
		return nil
	}
	if err := d.runWithTimeout(ctx, d.cfg.ContentWait.Duration,
		chromedp.WaitReady(d.cfg.ContentSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("content %q: %w", d.cfg.ContentSelector, err)
	}
	return nil
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.runWithTimeout(ctx, d.actionTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	return html, nil
}

func (d *ChromeDriver) NextPage(ctx context.Context, retry bool) error {
	actions := []chromedp.Action{
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	}
	if retry {
		d.log.Info("Trying additional scrolling...")
		// scrolling up and back down sometimes reveals the button
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, -500)`, nil),
			chromedp.Sleep(d.cfg.Pause.Duration/2),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		)
	}
	if err := d.runWithTimeout(ctx, d.actionTimeout, actions...); err != nil {
		return err
	}

	return d.runWithTimeout(ctx, 5*time.Second,
		chromedp.WaitVisible(d.cfg.NextButtonXPath, chromedp.BySearch),
		chromedp.Click(d.cfg.NextButtonXPath, chromedp.BySearch),
	)
}

func (d *ChromeDriver) Hidden(ctx context.Context) (bool, error) {
	var hidden bool
	err := d.runWithTimeout(ctx, d.actionTimeout, chromedp.Evaluate(`document.hidden`, &hidden))
	return hidden, err
}
