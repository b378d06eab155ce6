package pipeline

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// cleanup removes the leftovers of a completed batch: replaced sources,
// files outside the keep-list, and unmarked container outputs that are
// junk or partial artifacts. Sources of skipped or failed files are
// protected so a bad run never destroys input material.
func (o *Orchestrator) cleanup(workDir string, state *batchState) {
	replaced := make(map[string]bool, len(state.replacedSources))
	for _, p := range state.replacedSources {
		replaced[p] = true
	}

	err := filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if state.protected[path] {
			return nil
		}
		if _, ok := state.renames[path]; ok {
			return nil
		}

		switch {
		case replaced[path]:
			o.remove(path, "source replaced by transcode")
		case o.isUnmarkedContainer(d.Name()):
			o.remove(path, "unmarked container output")
		case !o.extensionKept(d.Name()) && !o.extensionAllowed(d.Name()):
			o.remove(path, "extension not in keep list")
		}
		return nil
	})
	if err != nil {
		o.log.Warn("cleanup walk failed", slog.Any("error", err))
	}
}

// renamePass strips the processed marker from every output whose transcode
// succeeded. Failed files were never added, so they stay marked and out of
// the final deliverable set.
func (o *Orchestrator) renamePass(state *batchState) {
	for marked, final := range state.renames {
		if err := os.Rename(marked, final); err != nil {
			o.log.Warn("rename failed, output left marked",
				slog.String("marked", marked),
				slog.Any("error", err))
			continue
		}
		o.log.Info("output finalized", slog.String("path", final))
	}
}

func (o *Orchestrator) extensionKept(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, kept := range o.files.KeepExtensions {
		if ext == strings.ToLower(kept) {
			return true
		}
	}
	return false
}

// isUnmarkedContainer flags container-extension files that do not carry the
// processed marker: stale partials and junk from interrupted runs.
func (o *Orchestrator) isUnmarkedContainer(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != strings.ToLower(o.files.OutputExtension) {
		return false
	}
	return !strings.Contains(name, o.files.ProcessedMarker)
}

func (o *Orchestrator) remove(path, reason string) {
	if err := os.Remove(path); err != nil {
		o.log.Warn("cleanup delete failed",
			slog.String("path", path),
			slog.Any("error", err))
		return
	}
	o.log.Debug("cleanup removed file",
		slog.String("path", path),
		slog.String("reason", reason))
}
