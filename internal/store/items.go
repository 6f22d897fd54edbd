package store

import (
	"context"
	"fmt"
	"time"
)

// ParsedItem is one listing entry extracted from a RawPage. Its natural key
// is (YoutubeID, Caption); lineage fields point at the first snapshot the
// entry was seen in.
type ParsedItem struct {
	ID         int64
	YoutubeID  string
	Caption    string
	Tags       []string
	RawPageID  int64
	URL        string
	PageIdx    int
	ScrollIdx  int
	SnapshotTS time.Time
}

// UpsertParsedItem inserts the item unless its natural key is already
// present. It reports whether a new row was written.
func (s *Store) UpsertParsedItem(ctx context.Context, it ParsedItem) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parsed_item (youtube_id, caption, tags, raw_page_id, url, page_idx, scroll_idx, snapshot_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (youtube_id, caption) DO NOTHING`,
		it.YoutubeID, it.Caption, joinTags(it.Tags), it.RawPageID, it.URL, it.PageIdx, it.ScrollIdx, formatTS(it.SnapshotTS),
	)
	if err != nil {
		return false, fmt.Errorf("upsert parsed item %q: %w", it.YoutubeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ParsedItems(ctx context.Context) ([]ParsedItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, youtube_id, caption, tags, raw_page_id, url, page_idx, scroll_idx, snapshot_ts
		FROM parsed_item ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list parsed items: %w", err)
	}
	defer rows.Close()

	var out []ParsedItem
	for rows.Next() {
		var it ParsedItem
		var tags, ts string
		if err := rows.Scan(&it.ID, &it.YoutubeID, &it.Caption, &tags, &it.RawPageID, &it.URL, &it.PageIdx, &it.ScrollIdx, &ts); err != nil {
			return nil, err
		}
		it.Tags = splitTags(tags)
		if it.SnapshotTS, err = parseTS(ts); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) ResetParsed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM parsed_item`); err != nil {
		return fmt.Errorf("reset parsed items: %w", err)
	}
	return nil
}

// ResolvedVideo is a ParsedItem with its canonical timestamped URL.
type ResolvedVideo struct {
	ID             int64
	ParsedItemID   int64
	TimestampedURL string
	TotalSeconds   int
	YoutubeID      string
	Caption        string
	Tags           []string
}

// UpsertResolvedVideo writes or refreshes the row for the video's natural key.
func (s *Store) UpsertResolvedVideo(ctx context.Context, v ResolvedVideo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolved_video (parsed_item_id, timestamped_url, total_seconds, youtube_id, caption, tags)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (youtube_id, caption) DO UPDATE SET
			parsed_item_id = excluded.parsed_item_id,
			timestamped_url = excluded.timestamped_url,
			total_seconds = excluded.total_seconds,
			tags = excluded.tags`,
		v.ParsedItemID, v.TimestampedURL, v.TotalSeconds, v.YoutubeID, v.Caption, joinTags(v.Tags),
	)
	if err != nil {
		return fmt.Errorf("upsert resolved video %q: %w", v.YoutubeID, err)
	}
	return nil
}

func (s *Store) ResolvedVideos(ctx context.Context) ([]ResolvedVideo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parsed_item_id, timestamped_url, total_seconds, youtube_id, caption, tags
		FROM resolved_video ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list resolved videos: %w", err)
	}
	defer rows.Close()

	var out []ResolvedVideo
	for rows.Next() {
		var v ResolvedVideo
		var tags string
		if err := rows.Scan(&v.ID, &v.ParsedItemID, &v.TimestampedURL, &v.TotalSeconds, &v.YoutubeID, &v.Caption, &tags); err != nil {
			return nil, err
		}
		v.Tags = splitTags(tags)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ResetResolved(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM resolved_video`); err != nil {
		return fmt.Errorf("reset resolved videos: %w", err)
	}
	return nil
}

type TableCounts struct {
	RawPages        int
	DistinctContent int
	ParsedItems     int
	ResolvedVideos  int
}

func (s *Store) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM raw_page),
			(SELECT COUNT(DISTINCT content) FROM raw_page),
			(SELECT COUNT(*) FROM parsed_item),
			(SELECT COUNT(*) FROM resolved_video)`,
	).Scan(&c.RawPages, &c.DistinctContent, &c.ParsedItems, &c.ResolvedVideos)
	if err != nil {
		return c, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}
