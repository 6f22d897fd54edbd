// Package capture records full-page snapshots of a listing while it is
// scrolled, one stored row per scroll.
package capture

import (
	"context"
	"fmt"
	"time"

	"grepl/internal/config"
	"grepl/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Driver is the slice of browser control the capture loop needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// Scroll moves the listing down by one step.
	Scroll(ctx context.Context) error
	// WaitForContent waits for the page to settle after a scroll.
	WaitForContent(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	// NextPage clicks the pager's next button. retry asks the driver to nudge
	// the page first.
	NextPage(ctx context.Context, retry bool) error
	Hidden(ctx context.Context) (bool, error)
}

type PageSink interface {
	SavePage(ctx context.Context, p store.RawPage) (int64, error)
}

// Session describes one capture run. Every row it writes shares ID and
// SnapshotTS.
type Session struct {
	ID         string
	SnapshotTS time.Time
	Pages      int
	Rows       int
}

type Capturer struct {
	drv     Driver
	sink    PageSink
	confirm Confirmer
	cfg     config.CaptureConfig
	log     *logrus.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(drv Driver, sink PageSink, confirm Confirmer, cfg config.CaptureConfig, log *logrus.Logger) *Capturer {
	return &Capturer{
		drv:     drv,
		sink:    sink,
		confirm: confirm,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Login opens the login page and blocks until the operator confirms the
// browser is authenticated and on the listing.
func (c *Capturer) Login(ctx context.Context) error {
	if c.cfg.LoginURL != "" {
		if err := c.drv.Navigate(ctx, c.cfg.LoginURL); err != nil {
			return fmt.Errorf("open login page: %w", err)
		}
	}
	c.log.Infof("Please log in in the opened browser and open %s.", c.cfg.URL)
	return c.confirm.Confirm(ctx, "Press Enter here to continue scraping...")
}

// Run captures cfg.Pages pages of cfg.ScrollCount snapshots each, after
// fast-skipping to cfg.StartPage.
func (c *Capturer) Run(ctx context.Context) (Session, error) {
	sess := Session{ID: uuid.NewString(), SnapshotTS: c.now().UTC()}
	c.log.WithField("session_id", sess.ID).Infof("Capturing %d page(s) of %d scrolls from %s", c.cfg.Pages, c.cfg.ScrollCount, c.cfg.URL)

	skip := c.cfg.StartPage - 1
	last := skip + c.cfg.Pages - 1
	for page := 0; page <= last; page++ {
		if page < skip {
			if err := c.skipPage(ctx, page); err != nil {
				return sess, err
			}
		} else {
			n, err := c.capturePage(ctx, sess, page)
			sess.Rows += n
			if err != nil {
				return sess, err
			}
			sess.Pages++
		}

		if page == last {
			break
		}
		ok, err := c.nextPage(ctx)
		if err != nil {
			return sess, err
		}
		if !ok {
			if page < skip {
				return sess, fmt.Errorf("could not reach start page %d: stopped at page %d", c.cfg.StartPage, page+1)
			}
			c.log.Info("Stopping pagination.")
			break
		}
	}

	c.log.WithField("session_id", sess.ID).Infof("Captured %d snapshots over %d page(s)", sess.Rows, sess.Pages)
	return sess, nil
}

// scroll performs one scroll step and waits for the listing to settle. A
// page that never settles is still captured.
func (c *Capturer) scroll(ctx context.Context) error {
	if err := c.drv.Scroll(ctx); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	if err := c.drv.WaitForContent(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnf("Timeout waiting for content: %v", err)
	}
	return nil
}

func (c *Capturer) capturePage(ctx context.Context, sess Session, page int) (int, error) {
	saved := 0
	for i := 0; i < c.cfg.ScrollCount; i++ {
		if err := c.scroll(ctx); err != nil {
			return saved, err
		}

		html, err := c.drv.HTML(ctx)
		if err != nil {
			return saved, fmt.Errorf("read page %d scroll %d: %w", page+1, i, err)
		}
		if _, err := c.sink.SavePage(ctx, store.RawPage{
			SessionID:  sess.ID,
			URL:        c.cfg.URL,
			PageIdx:    page,
			ScrollIdx:  i,
			SnapshotTS: sess.SnapshotTS,
			Content:    html,
		}); err != nil {
			return saved, err
		}
		saved++
		c.log.Debugf("Scraping page %d: scroll %d/%d", page+1, i+1, c.cfg.ScrollCount)
	}
	c.log.Infof("Scraped page %d: %d snapshots", page+1, saved)
	return saved, nil
}

func (c *Capturer) skipPage(ctx context.Context, page int) error {
	c.log.Infof("Fast skipping page %d", page+1)
	for i := 0; i < c.cfg.ScrollCount; i++ {
		if err := c.scroll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// nextPage clicks through to the next page, falling back to the operator
// when the button cannot be found. It reports false when pagination has to
// stop.
func (c *Capturer) nextPage(ctx context.Context) (bool, error) {
	attempts := c.cfg.NextAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		err := c.drv.NextPage(ctx, attempt > 0)
		if err == nil {
			c.log.Info("Clicked Next; waiting for page load")
			return true, c.sleep(ctx, c.cfg.Pause.Duration)
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.log.Warnf("Attempt %d/%d failed: %v", attempt+1, attempts, err)
		if attempt < attempts-1 {
			if err := c.sleep(ctx, 2*c.cfg.Pause.Duration); err != nil {
				return false, err
			}
		}
	}

	hidden, err := c.drv.Hidden(ctx)
	if err != nil || hidden {
		c.log.Warn("Browser is not visible (headless mode). Cannot request manual intervention.")
		return false, nil
	}
	c.log.Warn("MANUAL INTERVENTION NEEDED: Next button could not be found automatically.")
	c.log.Warn("Please navigate to the next page manually in the browser window.")
	if err := c.confirm.Confirm(ctx, "After navigating to the next page, press Enter to continue scraping..."); err != nil {
		return false, err
	}
	c.log.Info("Resuming automated scraping...")
	return true, nil
}
