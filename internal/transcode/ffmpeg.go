package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/onnwee/vidwrk/internal/logging"
)

// buildFilterGraphArgs assembles a single -filter_complex graph: a blank
// curtain, the clipped and scaled content, a second blank curtain, all
// concatenated, with an optional watermark overlay bounded to the curtains
// and the configured start/end windows of the content.
func buildFilterGraphArgs(inputPath, outputPath string, opts Options, clipDuration time.Duration, frameRate string, wm *Watermark) []string {
	width, height := opts.TargetWidth, opts.TargetHeight
	if width <= 0 || height <= 0 {
		width, height = 720, 1280
	}

	curtainSecs := curtainDuration.Seconds()
	clipSecs := clipDuration.Seconds()

	var graph strings.Builder

	fmt.Fprintf(&graph, "color=c=black:s=%dx%d:r=%s:d=%.3f[curtain_a];", width, height, frameRate, curtainSecs)
	fmt.Fprintf(&graph, "color=c=black:s=%dx%d:r=%s:d=%.3f[curtain_b];", width, height, frameRate, curtainSecs)

	fmt.Fprintf(&graph, "[0:v]trim=duration=%.3f,scale=%d:%d:force_original_aspect_ratio=decrease,"+
		"pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s[content];",
		clipSecs, width, height, width, height, frameRate)

	graph.WriteString("[curtain_a][content][curtain_b]concat=n=3:v=1:a=0[joined]")

	if wm != nil {
		x, y := watermarkPosition(wm.Corner, wm.MarginX, wm.MarginY)
		startEnd := curtainSecs + wm.StartDuration.Seconds()
		endStart := curtainSecs + endTriggerTime(clipDuration, wm.EndDuration).Seconds()
		totalEnd := curtainSecs + clipSecs + curtainSecs

		drawtext := fmt.Sprintf(
			"drawtext=text='%s':fontcolor=%s:fontsize=%d:bordercolor=%s:borderw=%d:x=%s:y=%s:"+
				"enable='between(t,0,%.3f)+between(t,%.3f,%.3f)'",
			escapeDrawtext(wm.Text), wm.Color, wm.FontSize, wm.BorderColor, wm.BorderWidth, x, y,
			startEnd, endStart, totalEnd,
		)
		graph.WriteString(";[joined]")
		graph.WriteString(drawtext)
		graph.WriteString("[out]")
	} else {
		graph.WriteString(";[joined]null[out]")
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-filter_complex", graph.String(),
		"-map", "[out]",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
	}

	if opts.RemoveAudio {
		args = append(args, "-an")
	} else {
		args = append(args, "-map", "0:a?", "-c:a", "aac")
	}

	args = append(args, outputPath)
	return args
}

func watermarkPosition(corner Corner, marginX, marginY int) (x, y string) {
	switch corner {
	case CornerTopLeft:
		return fmt.Sprintf("%d", marginX), fmt.Sprintf("%d", marginY)
	case CornerTopRight:
		return fmt.Sprintf("w-text_w-%d", marginX), fmt.Sprintf("%d", marginY)
	case CornerBottomLeft:
		return fmt.Sprintf("%d", marginX), fmt.Sprintf("h-text_h-%d", marginY)
	default: // CornerBottomRight
		return fmt.Sprintf("w-text_w-%d", marginX), fmt.Sprintf("h-text_h-%d", marginY)
	}
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "'", "\\'")
	s = strings.ReplaceAll(s, ":", "\\:")
	return s
}

func runFFmpeg(ctx context.Context, bin, taskID string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logging.Log(taskID, "starting ffmpeg", "args", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLines(stderr.String(), 20))
	}
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
