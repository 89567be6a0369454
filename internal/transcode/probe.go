package transcode

import (
	"context"
	"time"

	ffprobe "gopkg.in/vansante/go-ffprobe.v2"

	"github.com/cenkalti/backoff/v4"
)

// ProbeResult carries the subset of ffprobe's output the filter graph needs.
type ProbeResult struct {
	FrameRate string
	Duration  time.Duration
}

// Prober extracts stream metadata ahead of building the filter graph.
type Prober interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// FFProber wraps go-ffprobe.v2, retrying transient failures (the probe
// subprocess racing a not-yet-flushed download) with capped backoff.
type FFProber struct {
	MaxElapsed time.Duration
}

func (p FFProber) Probe(ctx context.Context, path string) (ProbeResult, error) {
	maxElapsed := p.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Second
	}

	var result ProbeResult
	operation := func() error {
		data, err := ffprobe.ProbeURL(ctx, path)
		if err != nil {
			return err
		}
		result = extractProbeResult(data)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return ProbeResult{}, err
	}
	return result, nil
}

func extractProbeResult(data *ffprobe.ProbeData) ProbeResult {
	result := ProbeResult{FrameRate: defaultFrameRate}

	if stream := data.FirstVideoStream(); stream != nil && stream.RFrameRate != "" {
		result.FrameRate = stream.RFrameRate
	}

	if data.Format != nil && data.Format.DurationSeconds > 0 {
		result.Duration = time.Duration(data.Format.DurationSeconds * float64(time.Second))
	}

	return result
}
