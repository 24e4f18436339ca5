// Package service wires the processing components into user-facing
// operations: starting jobs, stopping the running one, editing settings and
// watching an inbox directory. Exactly one job runs at a time on a single
// worker goroutine.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/engine"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/processor"
	"github.com/MimeLyc/rembg-studio/internal/sysinfo"
	"github.com/MimeLyc/rembg-studio/internal/video"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"
)

const (
	SourceManual = "manual"
	SourceWatch  = "watch"
)

// Orchestrator owns the single job slot. All Start methods snapshot the
// current settings into the job, so concurrent settings edits never affect a
// job that has already begun.
type Orchestrator struct {
	cfg      *config.Config
	state    *jobs.RunState
	sessions *engine.Manager
	proc     *processor.Processor
	pipeline *video.Pipeline
	store    jobs.Store
	bus      *jobs.Bus
	tmp      *file.TempRegistry

	mu       sync.RWMutex
	settings config.RuntimeSettings
	jobs     map[string]*jobs.Job
	current  string
}

func NewOrchestrator(cfg *config.Config, eng engine.Engine, store jobs.Store, tmp *file.TempRegistry) *Orchestrator {
	state := jobs.NewRunState()
	sessions := engine.NewManager(eng)
	proc := processor.New(eng, sessions, state)
	return &Orchestrator{
		cfg:      cfg,
		state:    state,
		sessions: sessions,
		proc:     proc,
		pipeline: video.NewPipeline(proc, state, tmp),
		store:    store,
		bus:      jobs.NewBus(),
		tmp:      tmp,
		settings: config.LoadRuntimeSettingsOrDefault(cfg.Storage.SettingsPath()),
		jobs:     make(map[string]*jobs.Job),
	}
}

// Hydrate loads persisted job history into memory. Call once before serving.
func (o *Orchestrator) Hydrate(ctx context.Context) error {
	loaded, err := o.store.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	o.mu.Lock()
	for _, job := range loaded {
		o.jobs[job.ID] = job
	}
	o.mu.Unlock()

	log.Info("Loaded %d persisted jobs", len(loaded))
	return nil
}

// Events exposes the progress bus for subscribers such as the SSE handler.
func (o *Orchestrator) Events() *jobs.Bus {
	return o.bus
}

func (o *Orchestrator) SessionStatus() engine.SessionStatus {
	return o.sessions.Status()
}

func (o *Orchestrator) VideoStage() video.State {
	return o.pipeline.Stage()
}

func (o *Orchestrator) Settings() config.RuntimeSettings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// UpdateSettings validates, persists and applies new settings. The running
// job, if any, keeps its snapshot.
func (o *Orchestrator) UpdateSettings(settings config.RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return NewErrorWithCause(ErrValidation, "invalid settings", err)
	}
	if err := config.WriteRuntimeSettingsFile(o.cfg.Storage.SettingsPath(), settings); err != nil {
		return NewErrorWithCause(ErrUnknown, "write settings", err)
	}

	o.mu.Lock()
	o.settings = settings
	o.mu.Unlock()

	log.Info("Runtime settings updated: model=%s gpu=%v", settings.Model, settings.UseGPU)
	return nil
}

func (o *Orchestrator) StartImage(input, outputDir string) (*jobs.Job, error) {
	return o.start(jobs.ModeImage, SourceManual, input, outputDir)
}

func (o *Orchestrator) StartDirectory(input, outputDir string) (*jobs.Job, error) {
	return o.start(jobs.ModeDirectory, SourceManual, input, outputDir)
}

func (o *Orchestrator) StartVideo(input, outputDir string) (*jobs.Job, error) {
	return o.start(jobs.ModeVideo, SourceManual, input, outputDir)
}

// Stop requests cancellation of the running job. Returns false when nothing
// is running. The job winds down at its next checkpoint; finished output
// files written so far are kept.
func (o *Orchestrator) Stop() bool {
	if !o.state.Running() {
		return false
	}
	o.state.RequestStop()
	log.Info("Stop requested for running job")
	return true
}

func (o *Orchestrator) Running() bool {
	return o.state.Running()
}

// Jobs returns job snapshots ordered oldest first.
func (o *Orchestrator) Jobs() []*jobs.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ret := make([]*jobs.Job, 0, len(o.jobs))
	for _, job := range o.jobs {
		ret = append(ret, cloneJob(job))
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].CreatedAt.Before(ret[j].CreatedAt)
	})
	return ret
}

func (o *Orchestrator) Job(id string) (*jobs.Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// DeleteJob removes a finished job from history. The running job cannot be
// deleted; stop it first.
func (o *Orchestrator) DeleteJob(id string) error {
	o.mu.Lock()
	if _, ok := o.jobs[id]; !ok {
		o.mu.Unlock()
		return NewError(ErrFileNotFound, "job not found").WithContext("job_id", id)
	}
	if o.current == id {
		o.mu.Unlock()
		return NewError(ErrBusy, "job is running").WithContext("job_id", id)
	}
	delete(o.jobs, id)
	o.mu.Unlock()

	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.store.DeleteJob(ctx, id); err != nil {
			return NewErrorWithCause(ErrUnknown, "delete job", err)
		}
	}

	log.Info("Deleted job %s", id)
	return nil
}

// Current returns the running job snapshot, or nil when idle.
func (o *Orchestrator) Current() *jobs.Job {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == "" {
		return nil
	}
	job, ok := o.jobs[o.current]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

func (o *Orchestrator) start(mode jobs.Mode, source, input, outputDir string) (*jobs.Job, error) {
	if outputDir == "" {
		outputDir = o.cfg.Storage.OutputDir
	}
	if err := validateInput(mode, input); err != nil {
		return nil, err
	}

	if !o.state.TryStart() {
		return nil, NewError(ErrBusy, "a job is already running")
	}

	now := time.Now()
	job := &jobs.Job{
		ID:        "job-" + ksuid.New().String(),
		Mode:      mode,
		Source:    source,
		Input:     input,
		OutputDir: outputDir,
		Options:   optionsFromSettings(o.Settings()),
		Status:    jobs.StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.current = job.ID
	o.mu.Unlock()

	o.persist(job)

	go o.run(job)

	log.Info("Started %s job %s: %s", mode, job.ID, input)
	return cloneJob(job), nil
}

// run is the worker. It owns the job from configuration through teardown;
// every exit path releases the job slot and purges temp directories.
func (o *Orchestrator) run(job *jobs.Job) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job %s panicked: %v", job.ID, r)
			o.finish(job, jobs.Summary{}, fmt.Errorf("internal error: %v", r))
		}
		o.sessions.Teardown()
		o.tmp.PurgeAll()
		o.mu.Lock()
		o.current = ""
		o.mu.Unlock()
		o.state.Finish()
	}()

	if err := o.sessions.Configure(ctx, job.Options.Model, job.Options.UseGPU); err != nil {
		o.finish(job, jobs.Summary{}, NewErrorWithCause(ErrEngine, "configure session", err))
		return
	}

	o.bus.Publish(jobs.Event{
		Kind:  jobs.EventStarted,
		JobID: job.ID,
		Label: fmt.Sprintf("Started %s job", job.Mode),
	})

	sink := o.sinkFor(job)

	switch job.Mode {
	case jobs.ModeImage:
		dst := file.OutputName(job.Input, job.OutputDir, job.Options.FilenameFormat)
		items := []jobs.WorkItem{{Source: job.Input, Dest: dst}}
		summary := o.proc.RunBatch(ctx, items, job.Options, sink)
		o.finish(job, summary, nil)

	case jobs.ModeDirectory:
		items, err := processor.BuildDirectoryItems(job.Input, job.OutputDir)
		if err != nil {
			o.finish(job, jobs.Summary{}, err)
			return
		}
		summary := o.proc.RunBatch(ctx, items, job.Options, sink)
		o.finish(job, summary, nil)

	case jobs.ModeVideo:
		result, err := o.pipeline.Run(ctx, job.Input, job.OutputDir, job.Options, sink)
		if err != nil {
			o.finish(job, result.Summary, err)
			return
		}
		if result.OutputPath != "" {
			result.Summary.Outputs = []string{result.OutputPath}
		}
		o.finish(job, result.Summary, nil)

	default:
		o.finish(job, jobs.Summary{}, fmt.Errorf("unknown job mode %q", job.Mode))
	}
}

// sinkFor stamps the job ID onto events and mirrors progress counters into
// the job record so status polls see live numbers.
func (o *Orchestrator) sinkFor(job *jobs.Job) jobs.EventSink {
	return func(ev jobs.Event) {
		ev.JobID = job.ID

		o.mu.Lock()
		if live, ok := o.jobs[job.ID]; ok {
			if ev.Total > 0 {
				live.Total = ev.Total
			}
			if ev.Kind == jobs.EventItemEnd && ev.Dest != "" {
				live.Succeeded++
				live.Outputs = append(live.Outputs, ev.Dest)
			}
			live.UpdatedAt = time.Now()
		}
		o.mu.Unlock()

		o.bus.Publish(ev)
	}
}

// finish records the terminal status, persists the job and emits the final
// event. Cancellation wins over failure; a run with zero successes out of a
// non-empty batch counts as failed.
func (o *Orchestrator) finish(job *jobs.Job, summary jobs.Summary, err error) {
	status := jobs.StatusSucceeded
	errMsg := ""
	switch {
	case summary.Cancelled:
		status = jobs.StatusCancelled
	case err != nil:
		status = jobs.StatusFailed
		errMsg = err.Error()
		log.Error("Job %s failed: %v", job.ID, err)
	case summary.Total > 0 && summary.Succeeded == 0:
		status = jobs.StatusFailed
		errMsg = fmt.Sprintf("all %d items failed", summary.Total)
	}

	o.mu.Lock()
	live, ok := o.jobs[job.ID]
	if !ok {
		live = job
		o.jobs[job.ID] = live
	}
	live.Status = status
	live.Error = errMsg
	live.Total = summary.Total
	live.Succeeded = summary.Succeeded
	live.Outputs = summary.Outputs
	live.UpdatedAt = time.Now()
	snapshot := cloneJob(live)
	o.mu.Unlock()

	o.persist(snapshot)

	o.bus.Publish(jobs.Event{
		Kind:    jobs.EventFinished,
		JobID:   snapshot.ID,
		Total:   summary.Total,
		Label:   fmt.Sprintf("Job %s", status),
		Summary: &summary,
	})
	log.Info("Job %s finished: %s (%d/%d)", snapshot.ID, status, summary.Succeeded, summary.Total)
}

func (o *Orchestrator) persist(job *jobs.Job) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.UpsertJob(ctx, job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func optionsFromSettings(s config.RuntimeSettings) jobs.Options {
	return jobs.Options{
		Model:          s.Model,
		UseGPU:         s.UseGPU,
		OnlyMask:       s.OnlyMask,
		AlphaMatting:   s.AlphaMatting,
		ExtraParams:    s.ExtraParams,
		BGColor:        s.BGColor,
		ExtractionFPS:  s.ExtractionFPS,
		OutputFPS:      s.OutputFPS,
		FilenameFormat: s.FilenameFormat,
	}
}

func validateInput(mode jobs.Mode, input string) error {
	stat, err := os.Stat(input)
	if err != nil {
		return NewErrorWithCause(ErrFileNotFound, "input not found", err).WithContext("input", input)
	}

	switch mode {
	case jobs.ModeDirectory:
		if !stat.IsDir() {
			return NewError(ErrValidation, "input is not a directory").WithContext("input", input)
		}

	case jobs.ModeImage:
		if stat.IsDir() {
			return NewError(ErrValidation, "input is a directory").WithContext("input", input)
		}
		ext := strings.ToLower(filepath.Ext(input))
		if !config.ImageExtensions[ext] {
			return NewError(ErrValidation, "unsupported image type").WithContext("ext", ext)
		}
		if mb := file.SizeMB(input); mb > config.MaxImageSizeMB {
			return NewError(ErrValidation, "image too large").
				WithContext("size_mb", fmt.Sprintf("%.1f", mb)).
				WithContext("limit_mb", config.MaxImageSizeMB)
		}

	case jobs.ModeVideo:
		if stat.IsDir() {
			return NewError(ErrValidation, "input is a directory").WithContext("input", input)
		}
		ext := strings.ToLower(filepath.Ext(input))
		if !config.VideoExtensions[ext] {
			return NewError(ErrValidation, "unsupported video type").WithContext("ext", ext)
		}
		if mb := file.SizeMB(input); mb > config.MaxVideoSizeMB {
			return NewError(ErrValidation, "video too large").
				WithContext("size_mb", fmt.Sprintf("%.1f", mb)).
				WithContext("limit_mb", config.MaxVideoSizeMB)
		}
		// Frame extraction needs room for decoded PNGs.
		if !sysinfo.HasDiskSpace(os.TempDir(), file.SizeMB(input)*10) {
			return NewError(ErrValidation, "insufficient disk space for frame extraction")
		}
	}
	return nil
}

func cloneJob(job *jobs.Job) *jobs.Job {
	if job == nil {
		return nil
	}
	clone := *job
	if job.Outputs != nil {
		clone.Outputs = append([]string(nil), job.Outputs...)
	}
	return &clone
}
