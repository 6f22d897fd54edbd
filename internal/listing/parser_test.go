package listing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"grepl/internal/store"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupParser(t *testing.T) (*Parser, *store.Store, *logtest.Hook) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "outlierdb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log, hook := logtest.NewNullLogger()
	return NewParser(s, newTestExtractor(t), log), s, hook
}

func savePages(t *testing.T, s *store.Store, contents ...string) {
	t.Helper()
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, c := range contents {
		_, err := s.SavePage(context.Background(), store.RawPage{
			SessionID:  "session",
			URL:        "https://outlierdb.com/",
			ScrollIdx:  i,
			SnapshotTS: ts,
			Content:    c,
		})
		require.NoError(t, err)
	}
}

func TestParserRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, s, _ := setupParser(t)

	// overlapping scroll states reveal the same cards again
	a := card("HKbj5Zljmwo", "", "00:34 - A", "#a")
	b := card("XgD5w6jW8Io", "", "00:35 - B", "#b")
	c := card("EC_r9-TsmWY", "", "01:03 - C", "#c")
	savePages(t, s, page(a, b), page(b, c), page(c))

	sum, err := p.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pages: 3, Entries: 5, Inserted: 3}, sum)

	sum, err = p.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pages: 3, Entries: 5, Inserted: 0}, sum)

	items, err := s.ParsedItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "HKbj5Zljmwo", items[0].YoutubeID)
	assert.Equal(t, 0, items[0].ScrollIdx)
	assert.Equal(t, "EC_r9-TsmWY", items[2].YoutubeID)
	assert.Equal(t, 1, items[2].ScrollIdx)
}

func TestParserRunReset(t *testing.T) {
	ctx := context.Background()
	p, s, _ := setupParser(t)
	savePages(t, s, page(card("HKbj5Zljmwo", "", "00:34 - A")))

	_, err := p.Run(ctx, Options{})
	require.NoError(t, err)
	sum, err := p.Run(ctx, Options{Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Inserted)
}

func TestParserRunSkipsBrokenSnapshot(t *testing.T) {
	ctx := context.Background()
	p, s, hook := setupParser(t)
	savePages(t, s,
		page(card("HKbj5Zljmwo", "XgD5w6jW8Io", "00:34 - A")),
		page(card("EC_r9-TsmWY", "", "01:03 - C")),
	)

	sum, err := p.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Pages: 2, Entries: 1, Inserted: 1, Failed: 1}, sum)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, int64(1), e.Data["raw_page_id"])
		}
	}
	assert.True(t, warned)
}

func TestParserRunStrict(t *testing.T) {
	ctx := context.Background()
	p, s, _ := setupParser(t)
	savePages(t, s, page(card("HKbj5Zljmwo", "", "")))

	_, err := p.Run(ctx, Options{Strict: true})
	require.ErrorIs(t, err, ErrNoCaption)
}
