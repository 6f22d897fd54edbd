// Package resolve maps parsed listing entries to timestamped watch URLs.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"grepl/internal/config"
	"grepl/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidVideoID = errors.New("invalid video id")
	ErrNoTimestamp    = errors.New("no timestamp in caption")
)

var (
	hourTS   = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})`)
	minuteTS = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)
)

// CaptionOffset reads the leading "H:MM:SS" or "M:SS" stamp of a caption
// such as "01:03 - From mutual ashi ..." and returns it in seconds.
func CaptionOffset(caption string) (int, error) {
	if m := hourTS.FindStringSubmatch(caption); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		return h*3600 + mins*60 + sec, nil
	}
	if m := minuteTS.FindStringSubmatch(caption); m != nil {
		mins, _ := strconv.Atoi(m[1])
		sec, _ := strconv.Atoi(m[2])
		return mins*60 + sec, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrNoTimestamp, caption)
}

type Resolver struct {
	cfg   config.ResolveConfig
	store *store.Store
	log   *logrus.Logger
}

func New(cfg config.ResolveConfig, s *store.Store, log *logrus.Logger) *Resolver {
	return &Resolver{cfg: cfg, store: s, log: log}
}

// Resolve is a pure mapping from a video id and caption to a watch URL and
// its start offset.
func (r *Resolver) Resolve(youtubeID, caption string) (string, int, error) {
	if youtubeID == "" || (r.cfg.IDLength > 0 && len(youtubeID) != r.cfg.IDLength) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidVideoID, youtubeID)
	}
	offset, err := CaptionOffset(caption)
	if err != nil {
		return "", 0, fmt.Errorf("video %s: %w", youtubeID, err)
	}
	return fmt.Sprintf(r.cfg.WatchURL, youtubeID, offset), offset, nil
}

type Options struct {
	Reset  bool
	Strict bool
}

type Summary struct {
	Items    int
	Resolved int
	Skipped  int // missing id, caption or tags
	Failed   int
}

// Run resolves every parsed item that has an id, a caption and tags.
func (r *Resolver) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary

	if opts.Reset {
		r.log.Info("Clearing resolved videos...")
		if err := r.store.ResetResolved(ctx); err != nil {
			return sum, err
		}
	}

	items, err := r.store.ParsedItems(ctx)
	if err != nil {
		return sum, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Items++
		if it.YoutubeID == "" || strings.TrimSpace(it.Caption) == "" || len(it.Tags) == 0 {
			sum.Skipped++
			continue
		}

		url, offset, err := r.Resolve(it.YoutubeID, it.Caption)
		if err != nil {
			sum.Failed++
			if opts.Strict {
				return sum, fmt.Errorf("parsed item %d: %w", it.ID, err)
			}
			r.log.WithField("parsed_item_id", it.ID).Warnf("Skipping item: %v", err)
			continue
		}

		if err := r.store.UpsertResolvedVideo(ctx, store.ResolvedVideo{
			ParsedItemID:   it.ID,
			TimestampedURL: url,
			TotalSeconds:   offset,
			YoutubeID:      it.YoutubeID,
			Caption:        it.Caption,
			Tags:           it.Tags,
		}); err != nil {
			return sum, err
		}
		sum.Resolved++
	}

	r.log.Infof("Resolved %d of %d items (%d skipped, %d failed)", sum.Resolved, sum.Items, sum.Skipped, sum.Failed)
	return sum, nil
}
