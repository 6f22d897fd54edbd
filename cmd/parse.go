package main

import (
	"fmt"
	"time"

	"grepl/internal/listing"

	"github.com/spf13/cobra"
)

var parseFlags struct {
	since  string
	reset  bool
	strict bool
}

var parseCmd = &cobra.Command{
	Use:   "parse [--since <time>] [--reset] [--strict]",
	Short: "Extract listing entries from stored page snapshots.",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := listing.Options{Reset: parseFlags.reset, Strict: parseFlags.strict}
		if parseFlags.since != "" {
			since, err := parseSince(parseFlags.since)
			if err != nil {
				return err
			}
			opts.Since = since
		}

		extractor, err := listing.NewExtractor(cfg.Rules)
		if err != nil {
			return fmt.Errorf("extraction rules: %w", err)
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		t1 := time.Now()
		_, err = listing.NewParser(s, extractor, log).Run(cmd.Context(), opts)
		log.Debugf("Parse took %.2fs", time.Since(t1).Seconds())
		return err
	},
}

// parseSince accepts an RFC 3339 timestamp or a plain date.
func parseSince(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: want RFC 3339 or YYYY-MM-DD", v)
}

func init() {
	f := parseCmd.Flags()
	f.StringVar(&parseFlags.since, "since", "", "Only parse snapshots taken at or after this time")
	f.BoolVar(&parseFlags.reset, "reset", false, "Clear parsed items first")
	f.BoolVar(&parseFlags.strict, "strict", false, "Stop at the first snapshot that does not match the extraction rules")
	rootCmd.AddCommand(parseCmd)
}
