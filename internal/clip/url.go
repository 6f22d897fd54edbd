package clip

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoVideoID = errors.New("cannot parse video id from url")

var (
	embedPath = regexp.MustCompile(`/embed/([^&?/]+)`)
	offsetArg = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s?)?$`)
)

// ParseURL pulls the video id and start offset in seconds out of a
// timestamped URL. Supported shapes:
//
//	https://www.youtube.com/watch?v=VIDEO_ID&t=63s
//	https://www.youtube.com/watch?v=VIDEO_ID&t=1m3s
//	https://youtu.be/VIDEO_ID?t=115
//	https://www.youtube-nocookie.com/embed/VIDEO_ID?start=0
//
// A missing t means the clip starts at 0.
func ParseURL(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	qs := u.Query()

	var id string
	switch {
	case strings.HasSuffix(u.Hostname(), "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case qs.Get("v") != "":
		id = qs.Get("v")
	default:
		if m := embedPath.FindStringSubmatch(u.Path); m != nil {
			id = m[1]
		}
	}
	if id == "" {
		return "", 0, fmt.Errorf("%w: %s", ErrNoVideoID, raw)
	}

	start, err := ParseOffset(qs.Get("t"))
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", raw, err)
	}
	return id, start, nil
}

// ParseOffset reads "115", "115s", "1m55s" or "1h2m3s" as seconds. An empty
// string is 0.
func ParseOffset(t string) (int, error) {
	if t == "" {
		return 0, nil
	}
	m := offsetArg.FindStringSubmatch(t)
	if m == nil {
		return 0, fmt.Errorf("invalid start offset %q", t)
	}
	total := 0
	for i, scale := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid start offset %q: %w", t, err)
		}
		total += n * scale
	}
	return total, nil
}
