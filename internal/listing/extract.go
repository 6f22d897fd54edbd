package listing

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"grepl/internal/config"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrMultipleVideoIDs = errors.New("multiple video ids in block")
	ErrNoCaption        = errors.New("no caption in block")
)

// Entry is what one listing block yields.
type Entry struct {
	YoutubeID string
	Caption   string
	Tags      []string
}

type source struct {
	selector string
	attr     string
	pattern  *regexp.Regexp
}

// Extractor applies a compiled set of extraction rules to page markup.
type Extractor struct {
	rules   config.Rules
	sources []source
}

func NewExtractor(rules config.Rules) (*Extractor, error) {
	if rules.BlockSelector == "" {
		return nil, fmt.Errorf("block selector is required")
	}
	e := &Extractor{rules: rules}
	for _, src := range rules.VideoIDSources {
		re, err := regexp.Compile(src.Pattern)
		if err != nil {
			return nil, fmt.Errorf("video id pattern %q: %w", src.Pattern, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("video id pattern %q has no capture group", src.Pattern)
		}
		e.sources = append(e.sources, source{selector: src.Selector, attr: src.Attr, pattern: re})
	}
	return e, nil
}

// Extract returns one Entry per block in document order. Markup with no
// blocks yields no entries and no error.
func (e *Extractor) Extract(html string) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var entries []Entry
	var blockErr error
	doc.Find(e.rules.BlockSelector).EachWithBreak(func(i int, block *goquery.Selection) bool {
		entry, err := e.extractBlock(block)
		if err != nil {
			blockErr = fmt.Errorf("block %d: %w", i, err)
			return false
		}
		entries = append(entries, entry)
		return true
	})
	if blockErr != nil {
		return nil, blockErr
	}
	return entries, nil
}

func (e *Extractor) extractBlock(block *goquery.Selection) (Entry, error) {
	id, err := e.videoID(block)
	if err != nil {
		return Entry{}, err
	}
	caption, err := e.caption(block)
	if err != nil {
		return Entry{}, err
	}
	return Entry{YoutubeID: id, Caption: caption, Tags: e.tags(block)}, nil
}

// videoID returns the single id referenced by the block, or "" when there is
// none.
func (e *Extractor) videoID(block *goquery.Selection) (string, error) {
	ids := map[string]struct{}{}
	for _, src := range e.sources {
		block.Find(src.selector).Each(func(_ int, s *goquery.Selection) {
			v, ok := s.Attr(src.attr)
			if !ok {
				return
			}
			if m := src.pattern.FindStringSubmatch(v); m != nil {
				ids[m[1]] = struct{}{}
			}
		})
	}

	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		for id := range ids {
			return id, nil
		}
	}
	found := make([]string, 0, len(ids))
	for id := range ids {
		found = append(found, id)
	}
	sort.Strings(found)
	return "", fmt.Errorf("%w: %s", ErrMultipleVideoIDs, strings.Join(found, ", "))
}

func (e *Extractor) caption(block *goquery.Selection) (string, error) {
	if e.rules.CaptionSelector == "" {
		return "", nil
	}
	p := block.Find(e.rules.CaptionSelector).First()
	if p.Length() == 0 {
		return "", ErrNoCaption
	}
	return strings.TrimSpace(p.Text()), nil
}

func (e *Extractor) tags(block *goquery.Selection) []string {
	if e.rules.TagSelector == "" {
		return nil
	}
	var tags []string
	block.Find(e.rules.TagSelector).Each(func(_ int, s *goquery.Selection) {
		tag := strings.TrimSpace(s.Text())
		if tag != "" && strings.HasPrefix(tag, e.rules.TagPrefix) {
			tags = append(tags, tag)
		}
	})
	return tags
}
