// Package listing turns stored page snapshots into one record per listing
// entry.
package listing

import (
	"context"
	"fmt"
	"time"

	"grepl/internal/store"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Since  time.Time // only snapshots taken at or after this
	Reset  bool      // clear parsed_item before parsing
	Strict bool      // abort on the first snapshot that breaks the rules
}

type Summary struct {
	Pages    int
	Entries  int
	Inserted int
	Failed   int
}

type Parser struct {
	store     *store.Store
	extractor *Extractor
	log       *logrus.Logger
}

func NewParser(s *store.Store, e *Extractor, log *logrus.Logger) *Parser {
	return &Parser{store: s, extractor: e, log: log}
}

// Run parses every selected snapshot and upserts its entries. Entries are
// keyed by (video id, caption) so running twice writes nothing new.
func (p *Parser) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary

	if opts.Reset {
		p.log.Info("Clearing parsed items...")
		if err := p.store.ResetParsed(ctx); err != nil {
			return sum, err
		}
	}

	err := p.store.EachRawPage(ctx, opts.Since, func(page store.RawPage) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum.Pages++

		entries, err := p.extractor.Extract(page.Content)
		if err != nil {
			sum.Failed++
			pageLog := p.log.WithFields(logrus.Fields{
				"raw_page_id": page.ID,
				"page_idx":    page.PageIdx,
				"scroll_idx":  page.ScrollIdx,
			})
			if opts.Strict {
				return fmt.Errorf("raw page %d: %w", page.ID, err)
			}
			pageLog.Warnf("Skipping snapshot: %v", err)
			return nil
		}

		for _, e := range entries {
			inserted, err := p.store.UpsertParsedItem(ctx, store.ParsedItem{
				YoutubeID:  e.YoutubeID,
				Caption:    e.Caption,
				Tags:       e.Tags,
				RawPageID:  page.ID,
				URL:        page.URL,
				PageIdx:    page.PageIdx,
				ScrollIdx:  page.ScrollIdx,
				SnapshotTS: page.SnapshotTS,
			})
			if err != nil {
				return err
			}
			sum.Entries++
			if inserted {
				sum.Inserted++
			}
		}
		p.log.Debugf("Raw page %d: %d entries", page.ID, len(entries))
		return nil
	})
	if err != nil {
		return sum, err
	}

	p.log.Infof("Parsed %d snapshots: %d entries, %d new, %d failed", sum.Pages, sum.Entries, sum.Inserted, sum.Failed)
	return sum, nil
}
