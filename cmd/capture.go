package main

import (
	"os"

	"grepl/internal/browser"
	"grepl/internal/capture"

	"github.com/spf13/cobra"
)

var captureFlags struct {
	url       string
	pages     int
	startPage int
	scrolls   int
	headless  bool
	skipLogin bool
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Scroll the listing in a browser and store one page snapshot per scroll.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cc := cfg.Capture
		flags := cmd.Flags()
		if flags.Changed("url") {
			cc.URL = captureFlags.url
		}
		if flags.Changed("pages") {
			cc.Pages = captureFlags.pages
		}
		if flags.Changed("start-page") {
			cc.StartPage = captureFlags.startPage
		}
		if flags.Changed("scrolls") {
			cc.ScrollCount = captureFlags.scrolls
		}
		if flags.Changed("headless") {
			cc.Headless = captureFlags.headless
		}
		cfg.Capture = cc
		if err := cfg.Validate(); err != nil {
			return err
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		log.Info("Initializing browser...")
		ctx, cancel, err := browser.NewChrome(cmd.Context(), cc, log)
		if err != nil {
			return err
		}
		defer cancel()

		drv := capture.NewChromeDriver(ctx, cc, log)
		c := capture.New(drv, s, capture.NewLineConfirmer(os.Stdin, os.Stderr), cc, log)

		switch {
		case !captureFlags.skipLogin:
			if err := c.Login(ctx); err != nil {
				return err
			}
		case cc.RemoteURL == "":
			if err := drv.Navigate(ctx, cc.URL); err != nil {
				return err
			}
		}

		sess, err := c.Run(ctx)
		if err != nil {
			log.WithField("session_id", sess.ID).Errorf("Capture stopped after %d snapshots", sess.Rows)
			return err
		}
		log.Info("Scraping completed successfully")
		return nil
	},
}

func init() {
	f := captureCmd.Flags()
	f.StringVar(&captureFlags.url, "url", "", "Listing url (default from config)")
	f.IntVar(&captureFlags.pages, "pages", 1, "Pages to capture")
	f.IntVar(&captureFlags.startPage, "start-page", 1, "First page to capture; earlier pages are skipped")
	f.IntVar(&captureFlags.scrolls, "scrolls", 20, "Scrolls, and snapshots, per page")
	f.BoolVar(&captureFlags.headless, "headless", false, "Run in headless mode")
	f.BoolVar(&captureFlags.skipLogin, "skip-login", false, "Already logged in and on the listing; start scrolling right away")
	rootCmd.AddCommand(captureCmd)
}
