package listing

import (
	"strings"
	"testing"

	"grepl/internal/config"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tagClass = `py-2 px-3 border border-neutral-400 cursor-pointer bg-gray-200 text-xs rounded-md`

func card(iframeID, imgID, caption string, tags ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="flex justify-center sequence-card"><div>`)
	if iframeID != "" {
		b.WriteString(`<iframe src="https://www.youtube-nocookie.com/embed/` + iframeID +
			`?autoplay=1&amp;mute=1&amp;controls=1&amp;origin=https%3A%2F%2Foutlierdb.com&amp;widgetid=24313"></iframe>`)
	}
	if imgID != "" {
		b.WriteString(`<img src="https://img.youtube.com/vi/` + imgID + `/hqdefault.jpg">`)
	}
	if caption != "" {
		b.WriteString(`<p class="text-neutral-900 dark:text-neutral-100 my-4 p-2">` + caption + `</p>`)
	}
	b.WriteString(`<div>`)
	for _, tag := range tags {
		b.WriteString(`<span class="` + tagClass + `">` + tag + `</span>`)
	}
	b.WriteString(`<span class="` + tagClass + `">Share</span>`)
	b.WriteString(`</div></div></div>`)
	return b.String()
}

func page(cards ...string) string {
	return `<html><body><div style="overflow: auto; height: 800px">` + strings.Join(cards, "") + `</div></body></html>`
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := NewExtractor(config.Default().Rules)
	require.NoError(t, err)
	return e
}

func TestExtract(t *testing.T) {
	e := newTestExtractor(t)
	html := page(
		card("HKbj5Zljmwo", "", " 00:34 - A single leg takedown. ", "#wrestling", "#takedown", "#singleleg"),
		card("", "XgD5w6jW8Io", "01:03 - From mutual ashi.", "#footlock"),
		card("", "", "no video here"),
	)

	got, err := e.Extract(html)
	require.NoError(t, err)
	want := []Entry{
		{YoutubeID: "HKbj5Zljmwo", Caption: "00:34 - A single leg takedown.", Tags: []string{"#wrestling", "#takedown", "#singleleg"}},
		{YoutubeID: "XgD5w6jW8Io", Caption: "01:03 - From mutual ashi.", Tags: []string{"#footlock"}},
		{YoutubeID: "", Caption: "no video here"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSameIDFromIframeAndThumbnail(t *testing.T) {
	e := newTestExtractor(t)
	got, err := e.Extract(page(card("HKbj5Zljmwo", "HKbj5Zljmwo", "00:01 - x")))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "HKbj5Zljmwo", got[0].YoutubeID)
}

func TestExtractMultipleIDs(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.Extract(page(card("HKbj5Zljmwo", "XgD5w6jW8Io", "00:01 - x")))
	require.ErrorIs(t, err, ErrMultipleVideoIDs)
	assert.Contains(t, err.Error(), "HKbj5Zljmwo, XgD5w6jW8Io")
}

func TestExtractMissingCaption(t *testing.T) {
	e := newTestExtractor(t)
	_, err := e.Extract(page(card("HKbj5Zljmwo", "", "")))
	require.ErrorIs(t, err, ErrNoCaption)
}

func TestExtractUnexpectedMarkup(t *testing.T) {
	e := newTestExtractor(t)
	got, err := e.Extract(`<html><body><h1>Please log in</h1></body></html>`)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := newTestExtractor(t)
	html := page(
		card("HKbj5Zljmwo", "", "00:34 - A", "#a"),
		card("XgD5w6jW8Io", "", "00:35 - B", "#b"),
	)
	first, err := e.Extract(html)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Extract(html)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNewExtractorRejectsBadRules(t *testing.T) {
	rules := config.Default().Rules
	rules.VideoIDSources = []config.Source{{Selector: "iframe", Attr: "src", Pattern: `embed/[a-z]+`}}
	_, err := NewExtractor(rules)
	require.Error(t, err)

	rules.VideoIDSources = []config.Source{{Selector: "iframe", Attr: "src", Pattern: `(`}}
	_, err = NewExtractor(rules)
	require.Error(t, err)

	rules.BlockSelector = ""
	_, err = NewExtractor(rules)
	require.Error(t, err)
}
