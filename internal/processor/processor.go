// Package processor turns single work items into outputs: read, invoke the
// engine, write. It owns no orchestration; callers drive it per item and it
// reports success as a plain bool, logging the cause of any failure.
package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/engine"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/sysinfo"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"
)

type Processor struct {
	engine   engine.Engine
	sessions *engine.Manager
	state    *jobs.RunState
}

// New builds a processor sharing the orchestrator's run state so cancellation
// checks see the same flags everywhere.
func New(eng engine.Engine, sessions *engine.Manager, state *jobs.RunState) *Processor {
	return &Processor{
		engine:   eng,
		sessions: sessions,
		state:    state,
	}
}

// ProcessOne runs a single image end-to-end: load, invoke the engine, save.
// Returns false on any failure or when a stop was requested; no partial
// output is ever written. The only side effect of a successful call is
// exactly one file at dst.
func (p *Processor) ProcessOne(ctx context.Context, src, dst string, opts jobs.Options) bool {
	if p.state.ShouldStop() {
		return false
	}

	if !p.sessions.Ready() {
		log.Error("Session not ready, cannot process %s", src)
		return false
	}

	if !sysinfo.HasMemoryForFile(src, config.MemoryMultiplier) {
		log.Error("Insufficient memory to process %s (%.2f MB)", src, file.SizeMB(src))
		return false
	}

	input, err := os.ReadFile(src)
	if err != nil {
		log.Error("Failed to read input %s: %v", src, err)
		return false
	}
	log.Debug("Loaded %s (%.2f MB)", src, float64(len(input))/(1<<20))

	if p.state.ShouldStop() {
		return false
	}

	start := time.Now()
	output, err := p.engine.Remove(ctx, input, p.sessions.Handle(), engine.RemoveOptions{
		OnlyMask:     opts.OnlyMask,
		AlphaMatting: opts.AlphaMatting,
		Extra:        ParseExtraParams(opts.ExtraParams),
	})
	if err != nil {
		log.Error("Engine failed on %s: %v", src, err)
		return false
	}
	log.Debug("Processed %s in %.2fs, output %.2f MB",
		src, time.Since(start).Seconds(), float64(len(output))/(1<<20))

	if p.state.ShouldStop() {
		return false
	}

	if err := file.EnsureDir(filepath.Dir(dst)); err != nil {
		log.Error("Failed to create output directory for %s: %v", dst, err)
		return false
	}
	if err := os.WriteFile(dst, output, 0o644); err != nil {
		log.Error("Failed to write output %s: %v", dst, err)
		return false
	}

	log.Debug("Output saved to %s", dst)
	return true
}

// ParseExtraParams decodes the free-form engine parameter JSON. Malformed
// input degrades to no extra parameters rather than failing the item; the
// keys themselves are never validated, the engine sees them as-is.
func ParseExtraParams(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		log.Warn("Ignoring invalid extra parameters JSON: %v", err)
		return nil
	}
	return params
}
