package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/amixaam/transcoder-win/internal/encoder"
	"github.com/amixaam/transcoder-win/pkg/models"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() models.SourceMetadata {
	return models.SourceMetadata{
		Path:            "/media/show/e01.mkv",
		Codec:           "h264",
		ColorProfile:    "yuv420p",
		DurationSeconds: 1200,
		SizeMegabytes:   1000,
		BitrateMbps:     6.67,
	}
}

type fakeEncoder struct {
	calls []encoder.Request
	fail  func(req encoder.Request) error
	write bool
}

func (f *fakeEncoder) Encode(ctx context.Context, req encoder.Request) error {
	f.calls = append(f.calls, req)
	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return err
		}
	}
	if f.write {
		if err := os.WriteFile(req.OutputPath, []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeProber struct {
	bitrates map[string]float64 // keyed by output path; missing = error
	fixed    float64
	err      error
}

func (f *fakeProber) Probe(ctx context.Context, path string) (models.SourceMetadata, error) {
	if f.err != nil {
		return models.SourceMetadata{}, f.err
	}
	bitrate := f.fixed
	if f.bitrates != nil {
		b, ok := f.bitrates[filepath.Base(path)]
		if !ok {
			return models.SourceMetadata{}, errors.New("probe: unknown file")
		}
		bitrate = b
	}
	return models.SourceMetadata{
		Path:            path,
		DurationSeconds: 30,
		SizeMegabytes:   10,
		BitrateMbps:     bitrate,
	}, nil
}

func TestBuildSpecsOffsets(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		count    int
		length   float64
	}{
		{"long source", 7200, 10, 30},
		{"typical episode", 1320, 4, 30},
		{"short source", 95, 5, 30},
		{"single sample", 600, 1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := BuildSpecs(tt.duration, tt.count, tt.length, t.TempDir())
			if err != nil {
				t.Fatalf("BuildSpecs: %v", err)
			}
			if len(specs) != tt.count {
				t.Fatalf("got %d specs, want %d", len(specs), tt.count)
			}

			effective := math.Min(tt.length, math.Floor((tt.duration-1)/float64(tt.count)))
			if effective < 1 {
				effective = 1
			}
			for i, spec := range specs {
				if spec.StartSecond < 1 {
					t.Errorf("spec %d starts at %.2f, want >= 1", i, spec.StartSecond)
				}
				if spec.StartSecond >= tt.duration {
					t.Errorf("spec %d starts at %.2f, beyond duration %.2f", i, spec.StartSecond, tt.duration)
				}
				if spec.DurationSeconds != effective {
					t.Errorf("spec %d length %.2f, want %.2f", i, spec.DurationSeconds, effective)
				}
				if i > 0 && spec.StartSecond < specs[i-1].StartSecond+specs[i-1].DurationSeconds {
					t.Errorf("spec %d at %.2f overlaps previous window ending %.2f",
						i, spec.StartSecond, specs[i-1].StartSecond+specs[i-1].DurationSeconds)
				}
			}
		})
	}
}

func TestBuildSpecsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		count    int
		length   float64
	}{
		{"zero duration", 0, 4, 30},
		{"zero count", 600, 0, 30},
		{"negative count", 600, -1, 30},
		{"zero length", 600, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildSpecs(tt.duration, tt.count, tt.length, t.TempDir()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSampleAveragesValidMeasurements(t *testing.T) {
	enc := &fakeEncoder{write: true}
	prober := &fakeProber{fixed: 3.5}
	s := New(enc, prober, t.TempDir(), 0, discard())

	res, err := s.Sample(context.Background(), testSource(), 24, 4, 30)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.ValidSamples != 4 {
		t.Fatalf("valid samples = %d, want 4", res.ValidSamples)
	}
	if math.Abs(res.AverageBitrateMbps-3.5) > 1e-9 {
		t.Errorf("average bitrate = %.4f, want 3.5", res.AverageBitrateMbps)
	}
	// 3.5 Mb/s over 1200s is 4200 Mb = 525 MB.
	if math.Abs(res.EstimatedSizeMegabytes-525) > 1e-6 {
		t.Errorf("estimated size = %.2f, want 525", res.EstimatedSizeMegabytes)
	}
	if len(enc.calls) != 4 {
		t.Errorf("encoder invoked %d times, want 4", len(enc.calls))
	}
	for _, req := range enc.calls {
		if req.Range == nil {
			t.Fatal("sample encode missing time range")
		}
	}
}

func TestSampleExcludesZeroBitrateMeasurements(t *testing.T) {
	enc := &fakeEncoder{write: true}
	prober := &fakeProber{bitrates: map[string]float64{
		"sample_00.mp4": 4.0,
		"sample_01.mp4": 0, // unreliable, excluded
		"sample_02.mp4": 2.0,
		"sample_03.mp4": 3.0,
	}}
	s := New(enc, prober, t.TempDir(), 0, discard())

	res, err := s.Sample(context.Background(), testSource(), 24, 4, 30)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.ValidSamples != 3 {
		t.Fatalf("valid samples = %d, want 3", res.ValidSamples)
	}
	if math.Abs(res.AverageBitrateMbps-3.0) > 1e-9 {
		t.Errorf("average bitrate = %.4f, want 3.0", res.AverageBitrateMbps)
	}
}

func TestSampleFailsWhenAllSamplesInvalid(t *testing.T) {
	enc := &fakeEncoder{write: true}
	prober := &fakeProber{fixed: 0}
	s := New(enc, prober, t.TempDir(), 0, discard())

	_, err := s.Sample(context.Background(), testSource(), 24, 10, 30)
	if !errors.Is(err, ErrNoValidSamples) {
		t.Fatalf("err = %v, want ErrNoValidSamples", err)
	}
}

func TestSampleToleratesEncodeFailures(t *testing.T) {
	enc := &fakeEncoder{
		write: true,
		fail: func(req encoder.Request) error {
			if req.Range.StartSecond < 2 {
				return errors.New("encoder crashed")
			}
			return nil
		},
	}
	prober := &fakeProber{fixed: 2.5}
	s := New(enc, prober, t.TempDir(), 0, discard())

	res, err := s.Sample(context.Background(), testSource(), 24, 4, 30)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if res.ValidSamples != 3 {
		t.Fatalf("valid samples = %d, want 3", res.ValidSamples)
	}
}

func TestSampleRemovesScratchFiles(t *testing.T) {
	scratch := t.TempDir()
	enc := &fakeEncoder{write: true}
	prober := &fakeProber{fixed: 3.0}
	s := New(enc, prober, scratch, 0, discard())

	if _, err := s.Sample(context.Background(), testSource(), 24, 4, 30); err != nil {
		t.Fatalf("Sample: %v", err)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir still holds %d files", len(entries))
	}
}

func TestSampleRejectsInvalidQuality(t *testing.T) {
	s := New(&fakeEncoder{}, &fakeProber{fixed: 1}, t.TempDir(), 0, discard())
	for _, quality := range []float64{0, -3, 52} {
		if _, err := s.Sample(context.Background(), testSource(), quality, 4, 30); err == nil {
			t.Errorf("quality %.1f: expected error", quality)
		}
	}
}
