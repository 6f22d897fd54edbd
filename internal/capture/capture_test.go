package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grepl/internal/config"
	"grepl/internal/store"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver renders a listing whose markup changes with every scroll.
type fakeDriver struct {
	page      int
	scrolls   int
	navigated []string
	nextFails int // NextPage fails this many times before succeeding
	nextCalls int
	waitErr   error
	hidden    bool
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeDriver) Scroll(context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakeDriver) WaitForContent(context.Context) error { return f.waitErr }

func (f *fakeDriver) HTML(context.Context) (string, error) {
	return fmt.Sprintf("<html><body>page %d offset %d</body></html>", f.page, f.scrolls), nil
}

func (f *fakeDriver) NextPage(context.Context, bool) error {
	f.nextCalls++
	if f.nextFails > 0 {
		f.nextFails--
		return errors.New("next button not visible")
	}
	f.page++
	return nil
}

func (f *fakeDriver) Hidden(context.Context) (bool, error) { return f.hidden, nil }

type countingConfirmer struct{ n int }

func (c *countingConfirmer) Confirm(context.Context, string) error {
	c.n++
	return nil
}

func setup(t *testing.T, drv Driver, cfg config.CaptureConfig) (*Capturer, *store.Store, *countingConfirmer) {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "outlierdb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	log, _ := logtest.NewNullLogger()
	confirm := &countingConfirmer{}
	c := New(drv, s, confirm, cfg, log)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, s, confirm
}

func TestRunCapturesOneRowPerScroll(t *testing.T) {
	ctx := context.Background()
	drv := &fakeDriver{}
	c, s, _ := setup(t, drv, config.Default().Capture)

	sess, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, sess.Rows)
	assert.Equal(t, 1, sess.Pages)
	assert.Equal(t, 20, drv.scrolls)
	assert.Zero(t, drv.nextCalls)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].SessionID)
	assert.Equal(t, 20, sessions[0].Rows)
	assert.Equal(t, 20, sessions[0].DistinctContent)
}

func TestRunAppendsAcrossSessions(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Capture
	cfg.ScrollCount = 5
	c, s, _ := setup(t, &fakeDriver{}, cfg)

	first, err := c.Run(ctx)
	require.NoError(t, err)
	second, err := c.Run(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, counts.RawPages)
}

func TestRunPaginatesAndSkips(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default().Capture
	cfg.ScrollCount = 3
	cfg.StartPage = 2
	cfg.Pages = 2
	drv := &fakeDriver{}
	c, s, _ := setup(t, drv, cfg)

	sess, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, sess.Rows)
	assert.Equal(t, 2, sess.Pages)
	assert.Equal(t, 9, drv.scrolls)
	assert.Equal(t, 2, drv.nextCalls)

	var pages []int
	require.NoError(t, s.EachRawPage(ctx, time.Time{}, func(p store.RawPage) error {
		pages = append(pages, p.PageIdx)
		assert.True(t, strings.Contains(p.Content, fmt.Sprintf("page %d ", p.PageIdx)))
		return nil
	}))
	assert.Equal(t, []int{1, 1, 1, 2, 2, 2}, pages)
}

func TestRunAsksOperatorWhenNextIsMissing(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ScrollCount = 1
	cfg.Pages = 2
	cfg.NextAttempts = 3
	drv := &fakeDriver{nextFails: 3}
	c, _, confirm := setup(t, drv, cfg)

	sess, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sess.Pages)
	assert.Equal(t, 3, drv.nextCalls)
	assert.Equal(t, 1, confirm.n)
}

func TestRunStopsWhenHeadlessAndNextIsMissing(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ScrollCount = 1
	cfg.Pages = 3
	cfg.NextAttempts = 2
	drv := &fakeDriver{nextFails: 10, hidden: true}
	c, _, confirm := setup(t, drv, cfg)

	sess, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Pages)
	assert.Equal(t, 1, sess.Rows)
	assert.Zero(t, confirm.n)
}

func TestRunFailsWhenStartPageIsUnreachable(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ScrollCount = 2
	cfg.StartPage = 3
	cfg.NextAttempts = 2
	drv := &fakeDriver{nextFails: 10, hidden: true}
	c, s, _ := setup(t, drv, cfg)

	sess, err := c.Run(context.Background())
	require.ErrorContains(t, err, "could not reach start page 3: stopped at page 1")
	assert.Zero(t, sess.Rows)

	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.RawPages)
}

func TestRunCapturesEvenWhenContentNeverSettles(t *testing.T) {
	cfg := config.Default().Capture
	cfg.ScrollCount = 4
	c, _, _ := setup(t, &fakeDriver{waitErr: errors.New("timeout")}, cfg)

	sess, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sess.Rows)
}

func TestLoginWaitsForOperator(t *testing.T) {
	drv := &fakeDriver{}
	c, _, confirm := setup(t, drv, config.Default().Capture)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, []string{"https://outlierdb.com/login"}, drv.navigated)
	assert.Equal(t, 1, confirm.n)
}

func TestLineConfirmer(t *testing.T) {
	var out strings.Builder
	c := NewLineConfirmer(strings.NewReader("\n"), &out)
	require.NoError(t, c.Confirm(context.Background(), "Press Enter"))
	assert.Equal(t, "Press Enter\n", out.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := NewLineConfirmer(blockingReader{}, &out)
	require.ErrorIs(t, blocked.Confirm(ctx, "again"), context.Canceled)
}

func TestLineConfirmerAfterCancel(t *testing.T) {
	pr, pw := io.Pipe()
	c := NewLineConfirmer(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Confirm(ctx, "first"), context.Canceled)

	// the line typed after the cancel goes to the next prompt
	go pw.Write([]byte("\n"))
	require.NoError(t, c.Confirm(context.Background(), "second"))

	require.NoError(t, pw.Close())
	require.NoError(t, c.Confirm(context.Background(), "third"))
	require.NoError(t, c.Confirm(context.Background(), "fourth"))
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
