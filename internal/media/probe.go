// Package media reads source metadata through an external probe binary.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/amixaam/transcoder-win/pkg/models"
)

// OutputFunc runs a command and returns its stdout. Tests substitute this to
// avoid shelling out.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Prober extracts codec, color profile, duration, size, and bitrate from a
// media file via ffprobe-compatible JSON output.
type Prober struct {
	binary string
	output OutputFunc
}

// NewProber creates a Prober using the given probe binary.
func NewProber(binary string) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Prober{binary: binary}
}

// WithOutputRunner sets a custom command runner (for testing).
func (p *Prober) WithOutputRunner(fn OutputFunc) {
	p.output = fn
}

type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		PixFmt    string `json:"pix_fmt"`
		BitRate   string `json:"bit_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe inspects the primary video stream and container of path.
func (p *Prober) Probe(ctx context.Context, path string) (models.SourceMetadata, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,pix_fmt,bit_rate",
		"-show_entries", "format=duration,size,bit_rate",
		"-of", "json",
		path,
	}

	raw, err := p.run(ctx, args)
	if err != nil {
		return models.SourceMetadata{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.SourceMetadata{}, fmt.Errorf("probe %s: parse output: %w", path, err)
	}
	if len(out.Streams) == 0 {
		return models.SourceMetadata{}, fmt.Errorf("probe %s: no video stream", path)
	}

	duration, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return models.SourceMetadata{}, fmt.Errorf("probe %s: invalid duration %q", path, out.Format.Duration)
	}

	sizeBytes, err := strconv.ParseFloat(out.Format.Size, 64)
	if err != nil || sizeBytes <= 0 {
		return models.SourceMetadata{}, fmt.Errorf("probe %s: invalid size %q", path, out.Format.Size)
	}

	meta := models.SourceMetadata{
		Path:            path,
		Codec:           strings.ToLower(out.Streams[0].CodecName),
		ColorProfile:    models.ColorProfile(out.Streams[0].PixFmt),
		DurationSeconds: duration,
		SizeMegabytes:   sizeBytes / 1_000_000,
		BitrateMbps:     deriveBitrate(out, sizeBytes, duration),
	}
	return meta, meta.Validate()
}

// deriveBitrate prefers the stream bitrate, then the container bitrate, then
// falls back to size/duration.
func deriveBitrate(out probeOutput, sizeBytes, duration float64) float64 {
	for _, raw := range []string{out.Streams[0].BitRate, out.Format.BitRate} {
		if bps, err := strconv.ParseFloat(raw, 64); err == nil && bps > 0 {
			return bps / 1_000_000
		}
	}
	return sizeBytes * 8 / duration / 1_000_000
}

func (p *Prober) run(ctx context.Context, args []string) ([]byte, error) {
	if p.output != nil {
		return p.output(ctx, p.binary, args...)
	}
	return exec.CommandContext(ctx, p.binary, args...).Output()
}
