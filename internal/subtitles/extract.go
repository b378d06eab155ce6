// Package subtitles extracts text subtitle tracks to sidecar files before
// the container is re-encoded. Extraction is best-effort: the pipeline logs
// failures and moves on.
package subtitles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Text-based codecs that convert cleanly to SRT. Image subtitles (PGS,
// VobSub) are left in place.
var textCodecs = map[string]struct{}{
	"subrip":   {},
	"srt":      {},
	"ass":      {},
	"ssa":      {},
	"mov_text": {},
}

// RunFunc executes a command to completion.
type RunFunc func(ctx context.Context, name string, args ...string) error

// OutputFunc runs a command and returns its stdout.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor pulls subtitle tracks out of container files with ffmpeg.
type Extractor struct {
	ffmpegBinary string
	probeBinary  string
	run          RunFunc
	output       OutputFunc
	log          *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(ffmpegBinary, probeBinary string, log *slog.Logger) *Extractor {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}
	return &Extractor{ffmpegBinary: ffmpegBinary, probeBinary: probeBinary, log: log}
}

// WithRunners sets custom command runners (for testing).
func (e *Extractor) WithRunners(run RunFunc, output OutputFunc) {
	e.run = run
	e.output = output
}

type subtitleStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	Tags      struct {
		Language string `json:"language"`
	} `json:"tags"`
}

// Extract writes each text subtitle track of input to a sidecar .srt next to
// it and returns the paths written.
func (e *Extractor) Extract(ctx context.Context, input string) ([]string, error) {
	streams, err := e.listStreams(ctx, input)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(input, filepath.Ext(input))
	var written []string
	for i, st := range streams {
		if _, ok := textCodecs[strings.ToLower(st.CodecName)]; !ok {
			continue
		}

		lang := st.Tags.Language
		if lang == "" {
			lang = fmt.Sprintf("track%d", i)
		}
		dest := fmt.Sprintf("%s.%s.srt", base, lang)

		args := []string{
			"-y", "-v", "error",
			"-i", input,
			"-map", fmt.Sprintf("0:s:%d", i),
			"-c:s", "srt",
			dest,
		}
		if err := e.exec(ctx, args); err != nil {
			e.log.Warn("subtitle extraction failed",
				slog.String("input", input),
				slog.Int("track", i),
				slog.Any("error", err))
			continue
		}
		written = append(written, dest)
	}
	return written, nil
}

func (e *Extractor) listStreams(ctx context.Context, input string) ([]subtitleStream, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "s",
		"-show_entries", "stream=index,codec_name:stream_tags=language",
		"-of", "json",
		input,
	}

	var raw []byte
	var err error
	if e.output != nil {
		raw, err = e.output(ctx, e.probeBinary, args...)
	} else {
		raw, err = exec.CommandContext(ctx, e.probeBinary, args...).Output()
	}
	if err != nil {
		return nil, fmt.Errorf("list subtitle streams %s: %w", input, err)
	}

	var out struct {
		Streams []subtitleStream `json:"streams"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse subtitle streams %s: %w", input, err)
	}
	return out.Streams, nil
}

func (e *Extractor) exec(ctx context.Context, args []string) error {
	if e.run != nil {
		return e.run(ctx, e.ffmpegBinary, args...)
	}
	if output, err := exec.CommandContext(ctx, e.ffmpegBinary, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", e.ffmpegBinary, err, string(output))
	}
	return nil
}
