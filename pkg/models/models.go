package models

import "fmt"

// ColorProfile is the pixel format reported by the media probe for the
// primary video stream (e.g. "yuv420p", "yuv420p10le").
type ColorProfile string

// Pixel formats that can be fed to the 8-bit encoder path. Anything else
// (10-bit, 4:2:2, HDR profiles) is routed to the high-bit-depth encoders.
var eightBitProfiles = map[ColorProfile]struct{}{
	"yuv420p":  {},
	"yuvj420p": {},
	"nv12":     {},
}

// EightBit reports whether the profile belongs to the 8-bit set.
func (p ColorProfile) EightBit() bool {
	_, ok := eightBitProfiles[p]
	return ok
}

// SourceMetadata describes one input file. It is computed once per file by
// the prober and treated as immutable afterwards.
type SourceMetadata struct {
	Path            string
	Codec           string
	ColorProfile    ColorProfile
	DurationSeconds float64
	SizeMegabytes   float64
	BitrateMbps     float64
}

// Validate checks the invariants the search and sampler rely on.
func (m SourceMetadata) Validate() error {
	if m.DurationSeconds <= 0 {
		return fmt.Errorf("source %s: duration must be positive, got %.2f", m.Path, m.DurationSeconds)
	}
	if m.SizeMegabytes <= 0 {
		return fmt.Errorf("source %s: size must be positive, got %.2f", m.Path, m.SizeMegabytes)
	}
	return nil
}

// BitrateRange is the acceptance band for candidate evaluation, in Mb/s.
type BitrateRange struct {
	Min float64 `mapstructure:"min" json:"min"`
	Max float64 `mapstructure:"max" json:"max"`
}

// Validate enforces 0 < min < max.
func (r BitrateRange) Validate() error {
	if r.Min <= 0 || r.Min >= r.Max {
		return fmt.Errorf("bitrate range: want 0 < min < max, got [%.2f, %.2f]", r.Min, r.Max)
	}
	return nil
}

// Contains reports whether bitrate falls inside the band.
func (r BitrateRange) Contains(bitrate float64) bool {
	return bitrate >= r.Min && bitrate <= r.Max
}

// SampleSpec is one probe point: a short time-bounded encode used to
// estimate the full-file bitrate at a given quality.
type SampleSpec struct {
	StartSecond     float64
	DurationSeconds float64
	OutputPath      string
}

// SampleResult aggregates the valid samples taken at one quality value.
type SampleResult struct {
	AverageBitrateMbps     float64
	EstimatedSizeMegabytes float64
	ValidSamples           int
}

// EncoderStrategy is one entry in the encoder fallback chain. Strategies are
// ordered; the invoker walks them until one exits successfully.
type EncoderStrategy struct {
	Name           string
	Encoder        string
	HardwareDecode bool
	ExtraFlags     []string
	Enabled        bool
}

// FileOutcome records what happened to one file during a batch run.
type FileOutcome struct {
	Path    string  `json:"path"`
	Output  string  `json:"output,omitempty"`
	Quality float64 `json:"quality,omitempty"`
	Status  string  `json:"status"` // "transcoded", "skipped", "failed"
	Reason  string  `json:"reason,omitempty"`
}

// BatchReport is the payload sent to the notification webhook and rendered
// as the end-of-run summary.
type BatchReport struct {
	RunID     string        `json:"run_id"`
	Directory string        `json:"directory"`
	Category  string        `json:"category"`
	Files     []FileOutcome `json:"files"`
}
