package tools

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const (
	ExtractCapability = "extract_video_frames"

	defaultNumFrames = 5
	maxNumFrames     = 10

	defaultFrameMaxSide  = 1200
	defaultFrameMaxBytes = 1024 * 1024
)

// DefaultPositions are the fractional sample points used when the model asks
// for the default five frames without naming positions.
var DefaultPositions = []float64{0.2, 0.35, 0.5, 0.65, 0.8}

// frameQualities is the grid of JPEG quality levels to try, best first.
var frameQualities = []int{85, 75, 65, 55, 45, 35}

// FrameExtractConfig holds configuration for the frame sampling capability.
type FrameExtractConfig struct {
	FFmpegPath  string
	FFprobePath string
	WorkDir     string
	MaxSide     int
	MaxBytes    int
}

// FrameExtractTool samples still frames from downloaded media with ffmpeg and
// normalizes them for vision input.
type FrameExtractTool struct {
	runner   CommandRunner
	media    *MediaStore
	frames   *FrameStore
	ffmpeg   string
	ffprobe  string
	workDir  string
	maxSide  int
	maxBytes int
}

func NewFrameExtractTool(cfg FrameExtractConfig, runner CommandRunner, media *MediaStore, frames *FrameStore) *FrameExtractTool {
	t := &FrameExtractTool{
		runner:   runner,
		media:    media,
		frames:   frames,
		ffmpeg:   cfg.FFmpegPath,
		ffprobe:  cfg.FFprobePath,
		workDir:  cfg.WorkDir,
		maxSide:  cfg.MaxSide,
		maxBytes: cfg.MaxBytes,
	}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if t.maxSide <= 0 {
		t.maxSide = defaultFrameMaxSide
	}
	if t.maxBytes <= 0 {
		t.maxBytes = defaultFrameMaxBytes
	}
	return t
}

func (t *FrameExtractTool) Name() string { return ExtractCapability }

func (t *FrameExtractTool) Description() string {
	return "Extracts still frames from a downloaded video at fractional positions (0.0=start, 1.0=end). " +
		"Use this tool AFTER download_youtube_video and BEFORE analyze_sport_technique. " +
		"Returns frame ids to pass to analyze_sport_technique."
}

func (t *FrameExtractTool) DependsOn() []string { return []string{DownloadCapability} }

func (t *FrameExtractTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"handle": map[string]any{
				"type":        "string",
				"description": "Media handle returned by download_youtube_video (a local video path is also accepted)",
				"minLength":   1,
			},
			"num_frames": map[string]any{
				"type":        "integer",
				"description": "Number of evenly spaced frames to extract when positions is omitted (default: 5)",
				"minimum":     1,
				"maximum":     maxNumFrames,
			},
			"positions": map[string]any{
				"type":        "array",
				"description": "Optional: specific positions to extract frames at (0.0-1.0)",
				"items":       map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				"minItems":    1,
				"maxItems":    maxNumFrames,
			},
		},
		"required": []string{"handle"},
	}
}

// FrameSet is the ok payload of the sampling capability.
type FrameSet struct {
	Handle   string  `json:"handle"`
	Duration float64 `json:"duration"`
	Frames   []Frame `json:"frames"`
}

func (t *FrameExtractTool) Execute(ctx context.Context, args map[string]any) *Result {
	ref, _ := args["handle"].(string)
	m, ok := t.media.Resolve(ref)
	if !ok {
		return FailResult(classified(ClassMalformedInput, "unknown media handle %q", ref))
	}

	positions := SamplePositions(args)

	duration := m.Duration
	if duration <= 0 {
		d, err := probeDuration(ctx, t.runner, t.ffprobe, m.Path)
		if err != nil {
			return FailResult(err)
		}
		duration = d
	}

	tmp, err := os.MkdirTemp(t.workDir, "vidcoach-frames-*")
	if err != nil {
		return FailResult(fmt.Errorf("create frame dir: %w", err))
	}
	defer os.RemoveAll(tmp)

	set := FrameSet{Handle: m.Handle, Duration: duration}
	for i, pos := range positions {
		f, err := t.grab(ctx, m.Path, tmp, i, pos, duration)
		if err != nil {
			return FailResult(err)
		}
		f.Handle = m.Handle
		set.Frames = append(set.Frames, t.frames.Add(f))
	}

	slog.Info("frames extracted", "handle", m.Handle, "count", len(set.Frames), "duration_s", duration)
	return NewResult(set)
}

// grab extracts one frame at pos and re-encodes it as a bounded JPEG.
func (t *FrameExtractTool) grab(ctx context.Context, path, dir string, i int, pos, duration float64) (Frame, error) {
	ts := timestampAt(pos, duration)
	out := filepath.Join(dir, fmt.Sprintf("frame_%02d.jpg", i))

	_, err := t.runner.Run(ctx, t.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", ts),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	)
	if err != nil {
		if missingBinary(err) {
			return Frame{}, classified(ClassMissingDependency, "%s not found in PATH", t.ffmpeg)
		}
		return Frame{}, classified(ClassCorruptStream, "grab frame at %.2fs: %s", ts, stderrOf(err))
	}

	img, err := imaging.Open(out, imaging.AutoOrientation(true))
	if err != nil {
		return Frame{}, classified(ClassCorruptStream, "decode frame at %.2fs: %v", ts, err)
	}
	b := img.Bounds()
	if b.Dx() > t.maxSide || b.Dy() > t.maxSide {
		img = imaging.Fit(img, t.maxSide, t.maxSide, imaging.Lanczos)
		b = img.Bounds()
	}

	for _, quality := range frameQualities {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return Frame{}, fmt.Errorf("encode jpeg (q=%d): %w", quality, err)
		}
		if buf.Len() <= t.maxBytes {
			return Frame{
				Position:  pos,
				Timestamp: math.Round(ts*1000) / 1000,
				Width:     b.Dx(),
				Height:    b.Dy(),
				MimeType:  "image/jpeg",
				Data:      buf.Bytes(),
			}, nil
		}
	}
	return Frame{}, classified(ClassUnreadableMedia, "frame too large even at lowest quality (%dx%d)", b.Dx(), b.Dy())
}

// SamplePositions resolves the fractional positions requested by args:
// explicit positions win, then num_frames spread evenly, then DefaultPositions.
func SamplePositions(args map[string]any) []float64 {
	if raw, ok := asSlice(args["positions"]); ok && len(raw) > 0 {
		out := make([]float64, 0, len(raw))
		for _, v := range raw {
			if f, ok := toFloat(v); ok {
				out = append(out, math.Min(1, math.Max(0, f)))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	n := defaultNumFrames
	if f, ok := toFloat(args["num_frames"]); ok && f >= 1 {
		n = min(int(f), maxNumFrames)
	}
	if n == len(DefaultPositions) {
		return append([]float64(nil), DefaultPositions...)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round(float64(i+1)/float64(n+1)*1000) / 1000
	}
	return out
}

// timestampAt maps a fraction to a seek offset, keeping the last position
// slightly inside the stream so ffmpeg still has a frame to decode.
func timestampAt(pos, duration float64) float64 {
	ts := pos * duration
	if limit := duration - 0.1; ts > limit {
		ts = math.Max(0, limit)
	}
	return ts
}
