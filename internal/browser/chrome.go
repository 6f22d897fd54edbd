package browser

import (
	"context"
	"fmt"
	"os"

	"grepl/internal/config"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// NewChrome starts (or attaches to) a Chrome instance and returns a browser
// context bounded by the global timeout. The returned cancel tears down every
// context and removes the temporary profile, if one was created.
func NewChrome(ctx context.Context, cfg config.CaptureConfig, log *logrus.Logger) (context.Context, context.CancelFunc, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		profileDir  string
		tempProfile bool
	)

	if cfg.RemoteURL != "" {
		// legacy mode: Chrome was started by hand with --remote-debugging-port
		log.Infof("Attaching to Chrome at %s", cfg.RemoteURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
	} else {
		profileDir = cfg.ProfileDir
		if profileDir == "" {
			dir, err := os.MkdirTemp("", "grepl-profile-")
			if err != nil {
				return nil, nil, fmt.Errorf("create profile dir: %w", err)
			}
			profileDir, tempProfile = dir, true
		}
		log.Infof("Using profile directory: %s", profileDir)

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			chromedp.UserDataDir(profileDir),

			// Disable updates and popups
			chromedp.Flag("disable-notifications", true),
			chromedp.Flag("disable-extensions", true),
			chromedp.Flag("disable-component-update", true),
			chromedp.Flag("disable-sync", true),
			chromedp.Flag("disable-default-apps", true),

			// Basic settings
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", cfg.Headless),
			chromedp.Flag("window-size", "1920,1080"),
			chromedp.Flag("start-maximized", true),

			// Stability flags
			chromedp.Flag("disable-background-timer-throttling", true),
			chromedp.Flag("disable-backgrounding-occluded-windows", true),
			chromedp.Flag("disable-renderer-backgrounding", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("remote-allow-origins", "*"),
			chromedp.Flag("no-sandbox", true),
		)
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			log.Debugf("CHROME: "+format, args...)
		}),
		chromedp.WithErrorf(func(format string, args ...interface{}) {
			log.Errorf("CHROME: "+format, args...)
		}),
	)

	runCtx, runCancel := browserCtx, context.CancelFunc(func() {})
	if cfg.GlobalTimeout.Duration > 0 {
		runCtx, runCancel = context.WithTimeout(browserCtx, cfg.GlobalTimeout.Duration)
	}

	cancelFunc := func() {
		log.Debug("Canceling browser contexts...")
		runCancel()
		browserCancel()
		allocCancel()
		if tempProfile {
			log.Infof("Cleaning up profile directory: %s", profileDir)
			if err := os.RemoveAll(profileDir); err != nil {
				log.Errorf("Error removing profile directory %s: %v", profileDir, err)
			}
		}
	}

	// Ensure browser is started
	if err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		log.Info("Starting new browser instance...")
		return nil
	})); err != nil {
		cancelFunc()
		return nil, nil, fmt.Errorf("start browser: %w", err)
	}

	return runCtx, cancelFunc, nil
}
