package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// DefaultFile is the config file read when --config is not given.
const DefaultFile = "grepl.json5"

type Config struct {
	DBPath string `json:"db"`
	Debug  bool   `json:"debug"`

	Capture CaptureConfig `json:"capture"`
	Rules   Rules         `json:"rules"`
	Resolve ResolveConfig `json:"resolve"`
	Clip    ClipConfig    `json:"clip"`
}

type CaptureConfig struct {
	URL          string `json:"url"`
	LoginURL     string `json:"login_url"`
	Headless     bool   `json:"headless"`
	ProfileDir   string `json:"profile_dir"`
	RemoteURL    string `json:"remote_url"` // attach to a running Chrome instead of launching one
	Pages        int    `json:"pages"`
	StartPage    int    `json:"start_page"`
	ScrollCount  int    `json:"scroll_count"`
	ScrollStep   int    `json:"scroll_step"`
	NextAttempts int    `json:"next_attempts"`

	ContainerSelector string `json:"container_selector"`
	ContentSelector   string `json:"content_selector"`
	NextButtonXPath   string `json:"next_button_xpath"`

	Pause         Duration `json:"pause"`
	ContentWait   Duration `json:"content_wait"`
	GlobalTimeout Duration `json:"timeout"`        // Overall timeout
	ActionTimeout Duration `json:"action_timeout"` // Timeout for individual actions
}

// Rules are the site-specific extraction rules for the list parser.
type Rules struct {
	BlockSelector   string   `json:"block_selector"`
	CaptionSelector string   `json:"caption_selector"`
	TagSelector     string   `json:"tag_selector"`
	TagPrefix       string   `json:"tag_prefix"`
	VideoIDSources  []Source `json:"video_id_sources"`
}

// Source pulls a video id out of an attribute using the first capture group
// of Pattern.
type Source struct {
	Selector string `json:"selector"`
	Attr     string `json:"attr"`
	Pattern  string `json:"pattern"`
}

type ResolveConfig struct {
	WatchURL string `json:"watch_url"` // fmt template taking the id and the offset in seconds
	IDLength int    `json:"id_length"`
}

type ClipConfig struct {
	Dir       string   `json:"dir"`
	Duration  int      `json:"duration"`
	Format    string   `json:"format"`
	YtDlp     string   `json:"yt_dlp"`
	FFmpeg    string   `json:"ffmpeg"`
	FFprobe   string   `json:"ffprobe"`
	Timeout   Duration `json:"timeout"`
	Tolerance float64  `json:"tolerance"`
}

// Duration reads either a Go duration string ("1.5s") or a number of
// milliseconds from a config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case float64:
		d.Duration = time.Duration(t) * time.Millisecond
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func Default() *Config {
	return &Config{
		DBPath: "outlierdb.sqlite",
		Capture: CaptureConfig{
			URL:               "https://outlierdb.com/",
			LoginURL:          "https://outlierdb.com/login",
			Pages:             1,
			StartPage:         1,
			ScrollCount:       20,
			ScrollStep:        900,
			NextAttempts:      20,
			ContainerSelector: `div[style*='overflow: auto']`,
			ContentSelector:   `iframe[src*='youtube-nocookie.com/embed']`,
			NextButtonXPath:   `(//button[contains(@class,'bg-green-500') and not(@disabled)])[last()]`,
			Pause:             Duration{1500 * time.Millisecond},
			ContentWait:       Duration{10 * time.Second},
			GlobalTimeout:     Duration{30 * time.Minute},
			ActionTimeout:     Duration{time.Minute},
		},
		Rules: Rules{
			BlockSelector:   "div.flex.justify-center.sequence-card",
			CaptionSelector: "p.text-neutral-900.my-4.p-2",
			TagSelector:     "span",
			TagPrefix:       "#",
			VideoIDSources: []Source{
				{Selector: "iframe", Attr: "src", Pattern: `youtube-nocookie\.com/embed/([a-zA-Z0-9_-]+)`},
				{Selector: "img", Attr: "src", Pattern: `img\.youtube\.com/vi/([a-zA-Z0-9_-]+)/hqdefault\.jpg`},
			},
		},
		Resolve: ResolveConfig{
			WatchURL: "https://www.youtube.com/watch?v=%s&t=%ds",
			IDLength: 11,
		},
		Clip: ClipConfig{
			Dir:       "clips",
			Duration:  60,
			Format:    "bestvideo[height<=240]",
			YtDlp:     "yt-dlp",
			FFmpeg:    "ffmpeg",
			FFprobe:   "ffprobe",
			Timeout:   Duration{10 * time.Minute},
			Tolerance: 1,
		},
	}
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// Load builds the configuration from the defaults, then name and its
// <name>.local.<ext> sibling, then .env and GREPL_* environment variables.
// Missing files are skipped.
func Load(name string) (*Config, error) {
	cfg := Default()

	prefix, ext := splitExt(filepath.Base(name))
	local := filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))

	for _, path := range []string{name, local} {
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(b); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// decode lays a json5 document over c: only keys present in the document are
// written, including false and zero values. The json5 tree is re-encoded so
// the typed pass goes through encoding/json and Duration's UnmarshalJSON.
func (c *Config) decode(b []byte) error {
	var tree any
	if err := json5.Unmarshal(b, &tree); err != nil {
		return err
	}
	std, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	// arrays replace, they are not merged element by element
	if rules, ok := lookup(tree, "rules").(map[string]any); ok {
		if _, ok := rules["video_id_sources"]; ok {
			c.Rules.VideoIDSources = nil
		}
	}
	return json.Unmarshal(std, c)
}

func lookup(tree any, key string) any {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("GREPL_DB"); ok {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("GREPL_URL"); ok {
		c.Capture.URL = v
	}
	if v, ok := os.LookupEnv("GREPL_PROFILE_DIR"); ok {
		c.Capture.ProfileDir = v
	}
	if v, ok := os.LookupEnv("GREPL_REMOTE_URL"); ok {
		c.Capture.RemoteURL = v
	}
	if v, ok := os.LookupEnv("GREPL_CLIPS_DIR"); ok {
		c.Clip.Dir = v
	}
	if v, ok := os.LookupEnv("GREPL_YTDLP"); ok {
		c.Clip.YtDlp = v
	}
	if v, ok := os.LookupEnv("GREPL_SCROLL_COUNT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GREPL_SCROLL_COUNT: %w", err)
		}
		c.Capture.ScrollCount = n
	}
	return nil
}

func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("db path is required")
	case c.Capture.ScrollCount < 1:
		return fmt.Errorf("scroll_count must be positive, got %d", c.Capture.ScrollCount)
	case c.Capture.Pages < 1:
		return fmt.Errorf("pages must be positive, got %d", c.Capture.Pages)
	case c.Capture.StartPage < 1:
		return fmt.Errorf("start_page must be at least 1, got %d", c.Capture.StartPage)
	case c.Rules.BlockSelector == "":
		return fmt.Errorf("rules.block_selector is required")
	case c.Clip.Duration < 1:
		return fmt.Errorf("clip duration must be positive, got %d", c.Clip.Duration)
	}
	if u := fmt.Sprintf(c.Resolve.WatchURL, "id", 0); c.Resolve.WatchURL == "" || strings.Contains(u, "%!") {
		return fmt.Errorf("resolve.watch_url %q must take the video id (%%s) then the offset in seconds (%%d)", c.Resolve.WatchURL)
	}
	return nil
}
