// Package clip fetches short fixed-length clips of a video with yt-dlp and
// ffmpeg.
package clip

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"grepl/internal/config"

	"github.com/sirupsen/logrus"
)

var ErrShortClip = errors.New("clip is shorter than requested")

const idPlaceholder = "%(id)s"

type Downloader struct {
	cfg config.ClipConfig
	run Runner
	log *logrus.Logger
}

func New(cfg config.ClipConfig, run Runner, log *logrus.Logger) *Downloader {
	return &Downloader{cfg: cfg, run: run, log: log}
}

// Name is the deterministic file name of a clip.
func (d *Downloader) Name(id string, start int, bw bool) string {
	suffix := ""
	if bw {
		suffix = "_bw"
	}
	return fmt.Sprintf("%s_%d_%d%s.mp4", id, start, d.cfg.Duration, suffix)
}

func (d *Downloader) Path(id string, start int, bw bool) string {
	return filepath.Join(d.cfg.Dir, d.Name(id, start, bw))
}

// DownloadURL downloads the clip a timestamped URL points at.
func (d *Downloader) DownloadURL(ctx context.Context, raw string, bw bool) (string, error) {
	id, start, err := ParseURL(raw)
	if err != nil {
		return "", err
	}
	return d.Download(ctx, id, start, bw)
}

func (d *Downloader) Download(ctx context.Context, id string, start int, bw bool) (string, error) {
	paths, err := d.download(ctx, []string{id}, start, bw, false)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// DownloadMany fetches the same window of several videos in one yt-dlp call.
// If that call fails each video is retried on its own; the returned paths
// follow ids and are empty for the videos that still failed.
func (d *Downloader) DownloadMany(ctx context.Context, ids []string, start int, bw bool) ([]string, error) {
	return d.download(ctx, ids, start, bw, true)
}

func (d *Downloader) download(ctx context.Context, ids []string, start int, bw, fallback bool) ([]string, error) {
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clips dir: %w", err)
	}

	paths := make(map[string]string, len(ids))
	var pending []string
	for _, id := range ids {
		p := d.Path(id, start, bw)
		if _, err := os.Stat(p); err == nil {
			d.log.Infof("Clip already on disk: %s", p)
			paths[id] = p
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		return ordered(ids, paths), nil
	}

	tmpl := d.template(start, bw)
	if err := d.fetch(ctx, tmpl, pending, start); err != nil {
		if !fallback || len(pending) == 1 {
			return nil, err
		}
		d.log.Warnf("Bulk download failed (%v), falling back to individual downloads", err)
		var errs []error
		for _, id := range pending {
			p, err := d.Download(ctx, id, start, bw)
			if err != nil {
				d.log.WithField("video_id", id).Errorf("Download failed: %v", err)
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			paths[id] = p
		}
		return ordered(ids, paths), errors.Join(errs...)
	}

	var errs []error
	for _, id := range pending {
		p, err := d.finish(ctx, strings.ReplaceAll(tmpl, idPlaceholder, id), id, start, bw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		paths[id] = p
	}
	if len(ids) == 1 && len(errs) == 1 {
		return nil, errs[0]
	}
	return ordered(ids, paths), errors.Join(errs...)
}

func ordered(ids []string, paths map[string]string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = paths[id]
	}
	return out
}

// template is the yt-dlp output template; black and white clips are first
// written in colour to a temp file.
func (d *Downloader) template(start int, bw bool) string {
	name := fmt.Sprintf("%s_%d_%d.mp4", idPlaceholder, start, d.cfg.Duration)
	if bw {
		name = fmt.Sprintf("%s_%d_%d.temp.mp4", idPlaceholder, start, d.cfg.Duration)
	}
	return filepath.Join(d.cfg.Dir, name)
}

func (d *Downloader) fetch(ctx context.Context, tmpl string, ids []string, start int) error {
	args := []string{
		"-f", d.cfg.Format,
		"-o", tmpl,
		"--external-downloader", "ffmpeg",
		"--external-downloader-args", fmt.Sprintf("ffmpeg:-ss %d -t %d -an", start, d.cfg.Duration),
		"--socket-timeout", "30",
		"--retries", "3",
		"--no-progress",
		"--quiet",
	}
	if d.cfg.FFmpeg != "" && d.cfg.FFmpeg != "ffmpeg" {
		args = append(args, "--ffmpeg-location", d.cfg.FFmpeg)
	}
	for _, id := range ids {
		args = append(args, "https://www.youtube.com/watch?v="+id)
	}

	d.log.Infof("Downloading %d clip(s) of %ds from %ds...", len(ids), d.cfg.Duration, start)
	runCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	if _, err := d.run.Run(runCtx, d.cfg.YtDlp, args...); err != nil {
		return fmt.Errorf("yt-dlp: %w", err)
	}
	return nil
}

// finish converts to black and white when asked and checks the clip really
// covers the requested window.
func (d *Downloader) finish(ctx context.Context, base, id string, start int, bw bool) (string, error) {
	if _, err := os.Stat(base); err != nil {
		return "", fmt.Errorf("clip was not written: %w", err)
	}

	out := base
	if bw {
		out = d.Path(id, start, true)
		runCtx, cancel := d.withTimeout(ctx)
		_, err := d.run.Run(runCtx, d.cfg.FFmpeg, "-y", "-i", base, "-vf", "hue=s=0", out)
		cancel()
		if err != nil {
			return "", fmt.Errorf("convert to black and white: %w", err)
		}
		if err := os.Remove(base); err != nil {
			d.log.Warnf("Could not remove %s: %v", base, err)
		}
	}

	got, err := d.Probe(ctx, out)
	if err != nil {
		return "", err
	}
	if got < float64(d.cfg.Duration)-d.cfg.Tolerance {
		if err := os.Remove(out); err != nil {
			d.log.Warnf("Could not remove %s: %v", out, err)
		}
		return "", fmt.Errorf("%w: got %.1fs of %ds starting at %ds", ErrShortClip, got, d.cfg.Duration, start)
	}

	d.log.Infof("Downloaded clip to %s", out)
	return out, nil
}

// Probe returns the duration of a media file in seconds.
func (d *Downloader) Probe(ctx context.Context, path string) (float64, error) {
	runCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	out, err := d.run.Run(runCtx, d.cfg.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: bad duration %q", path, strings.TrimSpace(string(out)))
	}
	return secs, nil
}

// Frame writes the frame at the given second of a local video as a PNG.
func (d *Downloader) Frame(ctx context.Context, video string, at float64, out string) error {
	runCtx, cancel := d.withTimeout(ctx)
	defer cancel()
	png, err := d.run.Run(runCtx, d.cfg.FFmpeg,
		"-ss", strconv.FormatFloat(at, 'f', -1, 64),
		"-i", video,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return fmt.Errorf("extract frame at %gs: %w", at, err)
	}
	if len(png) == 0 {
		return fmt.Errorf("extract frame at %gs: no frame, offset past the end of %s?", at, video)
	}
	return os.WriteFile(out, png, 0o644)
}

func (d *Downloader) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout.Duration <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.cfg.Timeout.Duration)
}
