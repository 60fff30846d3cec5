package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DownloadCapability = "download_youtube_video"

	defaultYtDlpFormat = "mp4[height<=720]/bestvideo[ext=mp4][height<=720]/best[height<=720]/best"
)

// MediaDownloadConfig holds configuration for the download capability.
type MediaDownloadConfig struct {
	YtDlpPath   string
	FFprobePath string
	OutputDir   string
	Format      string
}

// MediaDownloadTool materializes a remote video locally with yt-dlp.
type MediaDownloadTool struct {
	runner  CommandRunner
	store   *MediaStore
	ytdlp   string
	ffprobe string
	outDir  string
	format  string
}

func NewMediaDownloadTool(cfg MediaDownloadConfig, runner CommandRunner, store *MediaStore) *MediaDownloadTool {
	t := &MediaDownloadTool{
		runner:  runner,
		store:   store,
		ytdlp:   cfg.YtDlpPath,
		ffprobe: cfg.FFprobePath,
		outDir:  cfg.OutputDir,
		format:  cfg.Format,
	}
	if t.ytdlp == "" {
		t.ytdlp = "yt-dlp"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if t.outDir == "" {
		t.outDir = filepath.Join(os.TempDir(), "vidcoach", "media")
	}
	if t.format == "" {
		t.format = defaultYtDlpFormat
	}
	return t
}

func (t *MediaDownloadTool) Name() string { return DownloadCapability }

func (t *MediaDownloadTool) Description() string {
	return "Downloads a video from YouTube and saves it to a local file. " +
		"Returns a media handle and the video duration in seconds. " +
		"This must be called BEFORE extract_video_frames."
}

func (t *MediaDownloadTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full YouTube URL (e.g., https://www.youtube.com/watch?v=VIDEO_ID)",
				"minLength":   1,
			},
			"output_dir": map[string]any{
				"type":        "string",
				"description": "Directory to save the downloaded video (optional)",
			},
		},
		"required": []string{"url"},
	}
}

func (t *MediaDownloadTool) Execute(ctx context.Context, args map[string]any) *Result {
	rawURL, _ := args["url"].(string)
	rawURL = strings.TrimSpace(rawURL)
	if err := checkLocator(rawURL); err != nil {
		return FailResult(err)
	}

	if m, ok := t.store.Lookup(rawURL); ok {
		slog.Debug("media cache hit", "url", rawURL, "handle", m.Handle)
		return NewResult(m)
	}

	dir := t.outDir
	if d, ok := args["output_dir"].(string); ok && strings.TrimSpace(d) != "" {
		dir = strings.TrimSpace(d)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return FailResult(fmt.Errorf("create output dir: %w", err))
	}

	out, err := t.runner.Run(ctx, t.ytdlp,
		"--no-playlist",
		"--no-progress",
		"--no-simulate",
		"--restrict-filenames",
		"-f", t.format,
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		"--print", "after_move:%(duration)s|%(filepath)s|%(title)s",
		rawURL,
	)
	if err != nil {
		return FailResult(classifyDownload(err))
	}

	m, err := parseDownloadOutput(string(out))
	if err != nil {
		return FailResult(err)
	}
	info, err := os.Stat(m.Path)
	if err != nil {
		return FailResult(classified(ClassUnreadableMedia, "downloaded file missing: %v", err))
	}
	m.SizeBytes = info.Size()
	m.Locator = rawURL

	if m.Duration <= 0 {
		d, err := probeDuration(ctx, t.runner, t.ffprobe, m.Path)
		if err != nil {
			slog.Warn("could not determine video duration", "path", m.Path, "error", err)
		}
		m.Duration = d
	}

	m = t.store.Put(m)
	slog.Info("media downloaded", "url", rawURL, "handle", m.Handle, "duration_s", m.Duration, "bytes", m.SizeBytes)
	return NewResult(m)
}

func checkLocator(raw string) error {
	if raw == "" {
		return classified(ClassInvalidLocator, "url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return classified(ClassInvalidLocator, "invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return classified(ClassInvalidLocator, "only http and https URLs are supported, got %q", u.Scheme)
	}
	if u.Host == "" {
		return classified(ClassInvalidLocator, "missing hostname in URL")
	}
	return nil
}

// parseDownloadOutput reads the last "duration|filepath|title" line yt-dlp
// printed after moving the file into place. Titles may contain '|'.
func parseDownloadOutput(out string) (Media, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		parts := strings.SplitN(strings.TrimSpace(lines[i]), "|", 3)
		if len(parts) != 3 || parts[1] == "" {
			continue
		}
		m := Media{Path: parts[1], Title: parts[2]}
		if d, err := strconv.ParseFloat(parts[0], 64); err == nil {
			m.Duration = d
		}
		return m, nil
	}
	return Media{}, classified(ClassUpstream, "yt-dlp did not report a file path")
}

// probeDuration asks ffprobe for the container duration in seconds.
func probeDuration(ctx context.Context, runner CommandRunner, ffprobe, path string) (float64, error) {
	out, err := runner.Run(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		if missingBinary(err) {
			return 0, classified(ClassMissingDependency, "%s not found in PATH", ffprobe)
		}
		return 0, classified(ClassUnreadableMedia, "probe %s: %s", filepath.Base(path), stderrOf(err))
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d <= 0 {
		return 0, classified(ClassUnreadableMedia, "no duration in %s", filepath.Base(path))
	}
	return d, nil
}

var downloadErrorClasses = []struct {
	class   string
	needles []string
}{
	{ClassRateLimited, []string{"HTTP Error 429", "Too Many Requests"}},
	{ClassInvalidLocator, []string{
		"Unsupported URL", "is not a valid URL", "Incomplete YouTube ID",
		"Video unavailable", "Private video", "This video has been removed",
	}},
	{ClassNetwork, []string{
		"Unable to download", "timed out", "Temporary failure in name resolution",
		"Connection reset", "Connection refused", "Network is unreachable",
	}},
}

func classifyDownload(err error) error {
	if missingBinary(err) {
		return classified(ClassMissingDependency, "yt-dlp not found in PATH")
	}
	stderr := stderrOf(err)
	for _, c := range downloadErrorClasses {
		for _, needle := range c.needles {
			if strings.Contains(stderr, needle) {
				return &CapabilityError{Class: c.class, Err: err}
			}
		}
	}
	return &CapabilityError{Class: ClassUpstream, Err: err}
}
