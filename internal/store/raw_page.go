package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RawPage is one full-page markup snapshot taken after one scroll.
type RawPage struct {
	ID         int64
	SessionID  string
	URL        string
	PageIdx    int
	ScrollIdx  int
	SnapshotTS time.Time
	Content    string
}

// SavePage appends a snapshot. Rows are never updated or deleted.
func (s *Store) SavePage(ctx context.Context, p RawPage) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_page (session_id, url, page_idx, scroll_idx, snapshot_ts, content)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.URL, p.PageIdx, p.ScrollIdx, formatTS(p.SnapshotTS), p.Content,
	)
	if err != nil {
		return 0, fmt.Errorf("save page %d scroll %d: %w", p.PageIdx, p.ScrollIdx, err)
	}
	return res.LastInsertId()
}

// RawPageIDs lists the ids of every snapshot taken at or after since, in
// insertion order. A zero since selects everything.
func (s *Store) RawPageIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM raw_page WHERE snapshot_ts >= ? ORDER BY id`, formatTS(since))
	if err != nil {
		return nil, fmt.Errorf("list raw pages: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) RawPage(ctx context.Context, id int64) (RawPage, error) {
	var p RawPage
	var ts string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, url, page_idx, scroll_idx, snapshot_ts, content
		FROM raw_page WHERE id = ?`, id,
	).Scan(&p.ID, &p.SessionID, &p.URL, &p.PageIdx, &p.ScrollIdx, &ts, &p.Content)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("raw page %d not found", id)
	}
	if err != nil {
		return p, fmt.Errorf("read raw page %d: %w", id, err)
	}
	p.SnapshotTS, err = parseTS(ts)
	return p, err
}

// EachRawPage loads snapshots one at a time so a single connection can keep
// writing downstream rows while iterating.
func (s *Store) EachRawPage(ctx context.Context, since time.Time, fn func(RawPage) error) error {
	ids, err := s.RawPageIDs(ctx, since)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, err := s.RawPage(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

// SessionStats backs the distinct-content sanity check for one capture run.
// Expected is the number of snapshots the run should have stored: the
// highest scroll index plus one, summed over the pages it captured.
type SessionStats struct {
	SessionID       string
	SnapshotTS      time.Time
	Pages           int
	Rows            int
	DistinctContent int
	Expected        int
}

func (s *Store) Sessions(ctx context.Context) ([]SessionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.session_id, MIN(r.snapshot_ts), COUNT(DISTINCT r.page_idx), COUNT(*), COUNT(DISTINCT r.content), e.expected
		FROM raw_page r
		JOIN (
			SELECT session_id, SUM(scrolls) AS expected
			FROM (
				SELECT session_id, MAX(scroll_idx) + 1 AS scrolls
				FROM raw_page
				GROUP BY session_id, page_idx
			)
			GROUP BY session_id
		) e ON e.session_id = r.session_id
		GROUP BY r.session_id, e.expected
		ORDER BY MIN(r.id)`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	var out []SessionStats
	for rows.Next() {
		var st SessionStats
		var ts string
		if err := rows.Scan(&st.SessionID, &ts, &st.Pages, &st.Rows, &st.DistinctContent, &st.Expected); err != nil {
			return nil, err
		}
		if st.SnapshotTS, err = parseTS(ts); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
