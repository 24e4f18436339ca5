package processor

import (
	"context"
	"path/filepath"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"
)

// RunBatch processes items strictly in the supplied order, emitting an
// ItemBegin event before and an ItemEnd event after each item. The stop flag
// is checked immediately before every new item; an interrupted run returns
// the partial summary with Cancelled set, and everything already written
// stays on disk.
func (p *Processor) RunBatch(ctx context.Context, items []jobs.WorkItem, opts jobs.Options, sink jobs.EventSink) jobs.Summary {
	summary := jobs.Summary{
		Total:   len(items),
		Outputs: make([]string, 0, len(items)),
	}

	for i, item := range items {
		if p.state.ShouldStop() {
			summary.Cancelled = true
			log.Info("Batch stopped after %d/%d items", i, summary.Total)
			break
		}

		name := filepath.Base(item.Source)
		sink(jobs.Event{
			Kind:   jobs.EventItemBegin,
			Index:  i,
			Total:  summary.Total,
			Label:  "Processing: " + name,
			Source: item.Source,
		})

		if p.ProcessOne(ctx, item.Source, item.Dest, opts) {
			summary.Succeeded++
			summary.Outputs = append(summary.Outputs, item.Dest)
			log.Info("Processed %s", name)
			sink(jobs.Event{
				Kind:   jobs.EventItemEnd,
				Index:  i + 1,
				Total:  summary.Total,
				Label:  "Completed: " + name,
				Source: item.Source,
				Dest:   item.Dest,
			})
		} else {
			log.Info("Failed %s", name)
			sink(jobs.Event{
				Kind:   jobs.EventItemEnd,
				Index:  i + 1,
				Total:  summary.Total,
				Label:  "Failed: " + name,
				Source: item.Source,
			})
		}
	}

	log.Info("Batch complete: %d/%d succeeded", summary.Succeeded, summary.Total)
	return summary
}

// DiscoverImages walks dir recursively for files on the image extension
// allow-list, in deterministic lexicographic order.
func DiscoverImages(dir string) ([]string, error) {
	return file.FindByExt(dir, config.ImageExtensions)
}

// BuildDirectoryItems maps each discovered image under inputDir to a work
// item whose destination mirrors the source's relative path under outputDir,
// with "_no_bg" inserted before the extension.
func BuildDirectoryItems(inputDir, outputDir string) ([]jobs.WorkItem, error) {
	sources, err := DiscoverImages(inputDir)
	if err != nil {
		return nil, err
	}

	items := make([]jobs.WorkItem, 0, len(sources))
	for _, src := range sources {
		rel, err := filepath.Rel(inputDir, src)
		if err != nil {
			log.Error("Skipping %s: cannot compute relative path: %v", src, err)
			continue
		}
		items = append(items, jobs.WorkItem{
			Source: src,
			Dest:   file.InsertSuffix(filepath.Join(outputDir, rel), "_no_bg"),
		})
	}
	return items, nil
}

// BuildFrameItems maps an ordered frame file list to work items writing into
// outputDir under the same filename. Frame order must be preserved, so no
// re-sorting happens here.
func BuildFrameItems(frames []string, outputDir string) []jobs.WorkItem {
	items := make([]jobs.WorkItem, 0, len(frames))
	for _, src := range frames {
		items = append(items, jobs.WorkItem{
			Source: src,
			Dest:   filepath.Join(outputDir, filepath.Base(src)),
		})
	}
	return items
}
