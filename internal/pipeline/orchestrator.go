// Package pipeline walks a working directory, discovers a quality per
// source directory, and performs the final transcodes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/amixaam/transcoder-win/internal/config"
	"github.com/amixaam/transcoder-win/internal/encoder"
	"github.com/amixaam/transcoder-win/internal/monitor"
	"github.com/amixaam/transcoder-win/internal/pathmap"
	"github.com/amixaam/transcoder-win/internal/search"
	"github.com/amixaam/transcoder-win/pkg/models"
)

// Encoder runs one encode attempt through the strategy chain.
type Encoder interface {
	Encode(ctx context.Context, req encoder.Request) error
}

// QualityFinder drives the quality search for one representative file.
type QualityFinder interface {
	FindQuality(ctx context.Context, src models.SourceMetadata, band models.BitrateRange) (search.Result, error)
}

// Prober reads source metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (models.SourceMetadata, error)
}

// SubtitleExtractor writes sidecar subtitle files before the final encode.
type SubtitleExtractor interface {
	Extract(ctx context.Context, input string) ([]string, error)
}

// Monitor reads system load between files.
type Monitor interface {
	Snapshot(ctx context.Context) (monitor.Stats, error)
}

// Notifier delivers batch events. Implementations must tolerate being nil.
type Notifier interface {
	BatchStarted(ctx context.Context, directory, category string)
	FileFailed(ctx context.Context, outcome models.FileOutcome)
	BatchCompleted(ctx context.Context, report models.BatchReport)
}

// Waiter blocks until the operating window allows another encode.
type Waiter interface {
	Wait(ctx context.Context) error
}

// EncoderFactory builds an invoker whose strategy chain matches the file's
// color profile.
type EncoderFactory func(profile models.ColorProfile) Encoder

// FinderFactory builds a quality search over the given encoder.
type FinderFactory func(enc Encoder) QualityFinder

// Orchestrator ties the components together for one batch run. Control flow
// is strictly sequential; the hardware encoder is a singleton resource.
type Orchestrator struct {
	files     config.FilesConfig
	bands     config.BandsConfig
	prober    Prober
	newEnc    EncoderFactory
	newFinder FinderFactory
	subs      SubtitleExtractor
	waiter    Waiter
	mon       Monitor
	notifier  Notifier
	translate pathmap.Translator
	runID     string
	log       *slog.Logger

	busyDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// Options carries the orchestrator dependencies.
type Options struct {
	Files          config.FilesConfig
	Bands          config.BandsConfig
	Prober         Prober
	EncoderFactory EncoderFactory
	FinderFactory  FinderFactory
	Subtitles      SubtitleExtractor
	Waiter         Waiter
	Monitor        Monitor
	Notifier       Notifier
	Translator     pathmap.Translator
	RunID          string
	Log            *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	translate := opts.Translator
	if translate == nil {
		translate = pathmap.Noop{}
	}
	return &Orchestrator{
		files:     opts.Files,
		bands:     opts.Bands,
		prober:    opts.Prober,
		newEnc:    opts.EncoderFactory,
		newFinder: opts.FinderFactory,
		subs:      opts.Subtitles,
		waiter:    opts.Waiter,
		mon:       opts.Monitor,
		notifier:  opts.Notifier,
		translate: translate,
		runID:     opts.RunID,
		log:       opts.Log,
		busyDelay: 30 * time.Second,
	}
}

// WithSleeper sets a custom busy-wait sleeper (for testing).
func (o *Orchestrator) WithSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	o.sleep = sleep
}

// Run processes every eligible file under workDir. Quality is discovered
// once per source directory and reused for its siblings; individual file
// failures are logged and do not abort the batch.
func (o *Orchestrator) Run(ctx context.Context, workDir, category string) (models.BatchReport, error) {
	report := models.BatchReport{RunID: o.runID, Directory: workDir, Category: category}

	band := o.bands.For(category)
	if err := band.Validate(); err != nil {
		return report, err
	}

	files, err := o.listEligible(workDir)
	if err != nil {
		return report, err
	}
	o.log.Info("batch starting",
		slog.String("directory", workDir),
		slog.String("category", category),
		slog.Int("candidates", len(files)))

	if o.notifier != nil {
		o.notifier.BatchStarted(ctx, workDir, category)
	}

	state := batchState{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if o.waiter != nil {
			if err := o.waiter.Wait(ctx); err != nil {
				return report, err
			}
		}
		if err := o.waitUntilIdle(ctx); err != nil {
			return report, err
		}

		outcome := o.processFile(ctx, path, band, &state)
		report.Files = append(report.Files, outcome)
		if outcome.Status == statusFailed && o.notifier != nil {
			o.notifier.FileFailed(ctx, outcome)
		}
	}

	o.cleanup(workDir, &state)
	o.renamePass(&state)

	if o.notifier != nil {
		o.notifier.BatchCompleted(ctx, report)
	}
	return report, nil
}

const (
	statusTranscoded = "transcoded"
	statusSkipped    = "skipped"
	statusFailed     = "failed"
)

// batchState tracks per-directory quality reuse and the file sets the
// cleanup and rename passes need.
type batchState struct {
	currentDir     string
	currentQuality float64
	haveQuality    bool

	replacedSources []string          // sources whose transcode succeeded
	protected       map[string]bool   // sources that must survive cleanup
	renames         map[string]string // marked output -> final name
}

func (s *batchState) protect(path string) {
	if s.protected == nil {
		s.protected = make(map[string]bool)
	}
	s.protected[path] = true
}

func (s *batchState) addRename(marked, final string) {
	if s.renames == nil {
		s.renames = make(map[string]string)
	}
	s.renames[marked] = final
}

func (o *Orchestrator) processFile(ctx context.Context, path string, band models.BitrateRange, state *batchState) models.FileOutcome {
	meta, err := o.prober.Probe(ctx, path)
	if err != nil {
		o.log.Warn("probe failed, file skipped", slog.String("path", path), slog.Any("error", err))
		state.protect(path)
		return models.FileOutcome{Path: path, Status: statusSkipped, Reason: fmt.Sprintf("probe: %v", err)}
	}

	if o.codecSkipped(meta.Codec) {
		o.log.Info("codec already acceptable, file skipped",
			slog.String("path", path), slog.String("codec", meta.Codec))
		state.protect(path)
		return models.FileOutcome{Path: path, Status: statusSkipped, Reason: "codec " + meta.Codec}
	}

	dir := filepath.Dir(path)
	if dir != state.currentDir || !state.haveQuality {
		result, err := o.discoverQuality(ctx, meta, band)
		if err != nil {
			o.log.Error("quality search failed", slog.String("path", path), slog.Any("error", err))
			state.protect(path)
			return models.FileOutcome{Path: path, Status: statusFailed, Reason: fmt.Sprintf("search: %v", err)}
		}
		state.currentDir = dir
		state.currentQuality = result.Quality
		state.haveQuality = true
	}

	return o.transcode(ctx, path, meta, state)
}

// discoverQuality runs the search once for a directory; siblings reuse the
// result because files in one release share source characteristics.
func (o *Orchestrator) discoverQuality(ctx context.Context, meta models.SourceMetadata, band models.BitrateRange) (search.Result, error) {
	enc := o.newEnc(meta.ColorProfile)
	finder := o.newFinder(enc)

	searchMeta := meta
	searchMeta.Path = o.translate.ToEncoder(meta.Path)
	return finder.FindQuality(ctx, searchMeta, band)
}

func (o *Orchestrator) transcode(ctx context.Context, path string, meta models.SourceMetadata, state *batchState) models.FileOutcome {
	if o.subs != nil {
		if _, err := o.subs.Extract(ctx, path); err != nil {
			o.log.Warn("subtitle extraction failed", slog.String("path", path), slog.Any("error", err))
		}
	}

	output := o.markedOutputPath(path)
	enc := o.newEnc(meta.ColorProfile)

	req := encoder.Request{
		InputPath:  o.translate.ToEncoder(path),
		OutputPath: o.translate.ToEncoder(output),
		Quality:    state.currentQuality,
	}

	o.log.Info("transcoding",
		slog.String("input", path),
		slog.String("output", output),
		slog.Float64("quality", state.currentQuality))

	if err := enc.Encode(ctx, req); err != nil {
		o.log.Error("transcode failed", slog.String("path", path), slog.Any("error", err))
		state.protect(path)
		return models.FileOutcome{Path: path, Status: statusFailed, Reason: err.Error(), Quality: state.currentQuality}
	}

	// The invoker does not validate its own output; a strategy can exit
	// zero and still leave nothing usable behind.
	if fi, err := os.Stat(output); err != nil || fi.Size() == 0 {
		o.log.Error("transcode produced no output", slog.String("path", path))
		state.protect(path)
		return models.FileOutcome{Path: path, Status: statusFailed, Reason: "output missing or empty", Quality: state.currentQuality}
	}

	state.replacedSources = append(state.replacedSources, path)
	state.addRename(output, o.finalOutputPath(path))
	return models.FileOutcome{Path: path, Output: output, Status: statusTranscoded, Quality: state.currentQuality}
}

// listEligible walks workDir and returns allow-listed files that do not
// already carry the processed marker, in stable path order so directory
// grouping holds.
func (o *Orchestrator) listEligible(workDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !o.extensionAllowed(name) {
			return nil
		}
		if strings.Contains(name, o.files.ProcessedMarker) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", workDir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (o *Orchestrator) extensionAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range o.files.AllowExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) codecSkipped(codec string) bool {
	for _, skip := range o.files.SkipCodecs {
		if strings.EqualFold(codec, skip) {
			return true
		}
	}
	return false
}

// markedOutputPath derives the processed-marker output name for a source.
func (o *Orchestrator) markedOutputPath(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + o.files.ProcessedMarker + o.files.OutputExtension
}

// finalOutputPath is the marked path with the marker stripped.
func (o *Orchestrator) finalOutputPath(path string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return base + o.files.OutputExtension
}

// waitUntilIdle holds off the next encode while system load is above the
// configured thresholds.
func (o *Orchestrator) waitUntilIdle(ctx context.Context) error {
	if o.mon == nil {
		return nil
	}
	for {
		stats, err := o.mon.Snapshot(ctx)
		if err != nil {
			o.log.Warn("system stats unavailable", slog.Any("error", err))
			return nil
		}
		if !stats.Busy {
			return nil
		}
		o.log.Info("system busy, holding off next encode",
			slog.Float64("cpu_percent", stats.CPUPercent),
			slog.Float64("mem_percent", stats.MemPercent))
		if err := o.pause(ctx, o.busyDelay); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if o.sleep != nil {
		return o.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
