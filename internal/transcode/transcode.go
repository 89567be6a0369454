// Package transcode drives an external ffmpeg/ffprobe subprocess to turn a
// raw video stream into a clipped, resized, curtained, optionally
// watermarked and audio-stripped MP4, per a deterministic filter graph.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/vidwrk/internal/logging"
)

const (
	curtainDuration   = 2500 * time.Millisecond
	defaultClipSecs   = 30
	defaultFrameRate  = "30"
	defaultFadeMin    = 500 * time.Millisecond
	defaultFadeMax    = 3 * time.Second
)

// Watermark overlays text on the curtains and, for a bounded window, on the
// content segment.
type Watermark struct {
	Text          string
	FontFamily    string
	FontSize      int
	Color         string
	BorderWidth   int
	BorderColor   string
	Corner        Corner
	MarginX       int
	MarginY       int
	StartDuration time.Duration
	EndDuration   time.Duration
}

type Corner string

const (
	CornerTopLeft     Corner = "top-left"
	CornerTopRight    Corner = "top-right"
	CornerBottomLeft  Corner = "bottom-left"
	CornerBottomRight Corner = "bottom-right"
)

// Options configures one transcode invocation.
type Options struct {
	TargetWidth   int
	TargetHeight  int
	ContainerExt  string // e.g. "mp4"
	ClipDuration  time.Duration
	RemoveAudio   bool
	Watermark     *Watermark
}

// Artifact is a readable handle to the processed output. Closing it deletes
// the backing temp file.
type Artifact struct {
	reader   io.ReadCloser
	path     string
	noFile   bool
	Format   string
	Duration time.Duration
	Metadata map[string]string
}

func (a *Artifact) Read(p []byte) (int, error) { return a.reader.Read(p) }

// NewTestArtifact builds an Artifact backed by an in-memory buffer rather
// than a temp file, for use by fake Engine implementations in tests. Close
// is a no-op beyond closing the reader since there is no backing file.
func NewTestArtifact(data []byte) *Artifact {
	return &Artifact{reader: io.NopCloser(bytes.NewReader(data)), path: "", noFile: true}
}

func (a *Artifact) Close() error {
	rerr := a.reader.Close()
	if a.noFile {
		return rerr
	}
	rmErr := os.Remove(a.path)
	if rerr != nil {
		return rerr
	}
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}
	return nil
}

// Engine is the capability the process-task use case is written against.
type Engine interface {
	Transform(ctx context.Context, taskID string, input io.Reader, opts Options) (*Artifact, error)
}

// FFmpegEngine drives ffmpeg/ffprobe subprocesses. Prober is exported so
// tests can substitute their own implementation.
type FFmpegEngine struct {
	TempDir    string
	FFmpegBin  string
	FFprobeBin string
	Prober     Prober
}

func NewFFmpegEngine(tempDir string) *FFmpegEngine {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegEngine{
		TempDir:    tempDir,
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
		Prober:     FFProber{},
	}
}

func (e *FFmpegEngine) Transform(ctx context.Context, taskID string, input io.Reader, opts Options) (*Artifact, error) {
	inputPath, err := e.writeTempInput(taskID, input)
	if err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	defer os.Remove(inputPath)

	probe, err := e.Prober.Probe(ctx, inputPath)
	if err != nil {
		// Non-fatal: proceed with defaults, per spec.
		logging.Log(taskID, "probe failed, continuing with defaults", "err", err.Error())
		probe = ProbeResult{FrameRate: defaultFrameRate}
	}

	clipDuration := effectiveClipDuration(opts.ClipDuration, probe.Duration)
	wm := normalizeWatermark(opts.Watermark, clipDuration)

	frameRate := probe.FrameRate
	if frameRate == "" {
		frameRate = defaultFrameRate
	}

	ext := opts.ContainerExt
	if ext == "" {
		ext = "mp4"
	}
	outputPath := filepath.Join(e.TempDir, fmt.Sprintf("vidwrk-%s-%s.%s", taskID, uuid.NewString(), ext))

	args := buildFilterGraphArgs(inputPath, outputPath, opts, clipDuration, frameRate, wm)

	if err := runFFmpeg(ctx, e.FFmpegBin, taskID, args); err != nil {
		os.Remove(outputPath)
		return nil, err
	}

	f, err := os.Open(outputPath)
	if err != nil {
		os.Remove(outputPath)
		return nil, fmt.Errorf("open transcoded output: %w", err)
	}

	totalDuration := clipDuration + 2*curtainDuration
	return &Artifact{
		reader:   f,
		path:     outputPath,
		Format:   ext,
		Duration: totalDuration,
	}, nil
}

func (e *FFmpegEngine) writeTempInput(taskID string, input io.Reader) (string, error) {
	f, err := os.CreateTemp(e.TempDir, fmt.Sprintf("vidwrk-in-%s-*", taskID))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, input); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// effectiveClipDuration is min(requested, probed) when both are positive,
// probed when only probed is positive (a non-positive request counts as
// unset), else requested; falls back to 30s when still non-positive.
func effectiveClipDuration(requested time.Duration, probed time.Duration) time.Duration {
	clip := requested
	if probed > 0 {
		if requested <= 0 || probed < requested {
			clip = probed
		}
	}
	if clip <= 0 {
		clip = defaultClipSecs * time.Second
	}
	return clip
}

func normalizeWatermark(wm *Watermark, clipDuration time.Duration) *Watermark {
	if wm == nil {
		return nil
	}
	out := *wm
	if out.Text == "" {
		out.Text = "Watermark"
	}
	if out.Color == "" {
		out.Color = "white"
	}
	if out.FontSize == 0 {
		out.FontSize = 48
	}
	if out.BorderColor == "" {
		out.BorderColor = "black"
	}
	if out.Corner == "" {
		out.Corner = CornerBottomRight
	}
	if out.MarginX < 0 {
		out.MarginX = 0
	}
	if out.MarginY < 0 {
		out.MarginY = 0
	}
	out.StartDuration = clampFade(out.StartDuration, clipDuration)
	out.EndDuration = clampFade(out.EndDuration, clipDuration)
	return &out
}

// clampFade defaults unset fade durations to min(3s, max(0.5s, clip)).
func clampFade(d time.Duration, clip time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	bound := clip
	if bound > defaultFadeMax {
		bound = defaultFadeMax
	}
	if bound < defaultFadeMin {
		bound = defaultFadeMin
	}
	return bound
}

// endTriggerTime is the time, relative to the start of the content window,
// at which the end-of-clip watermark window begins.
func endTriggerTime(clip, endDuration time.Duration) time.Duration {
	t := clip - endDuration
	if t < 0 {
		return 0
	}
	return t
}
