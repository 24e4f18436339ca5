package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/processor"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/icron"
	"github.com/MimeLyc/rembg-studio/pkg/log"
	"github.com/robfig/cron/v3"
)

// WatchService scans an inbox directory on a cron schedule and starts a
// directory job over it whenever images are present and the job slot is
// idle. A busy slot just skips the tick; the next scan picks the files up.
// Once a scan has run a job, later scans only fire again when files newer
// than that job's start exist, so a static inbox is not reprocessed forever.
type WatchService struct {
	cfg  config.WatchConfig
	orc  *Orchestrator
	cron *cron.Cron

	mu       sync.Mutex
	lastScan time.Time
}

func NewWatchService(cfg config.WatchConfig, orc *Orchestrator, c *cron.Cron) *WatchService {
	return &WatchService{
		cfg:  cfg,
		orc:  orc,
		cron: c,
	}
}

// WatchStatus reports the inbox schedule for status endpoints.
type WatchStatus struct {
	Enabled  bool      `json:"enabled"`
	InputDir string    `json:"input_dir,omitempty"`
	CronExpr string    `json:"cron_expr,omitempty"`
	NextScan time.Time `json:"next_scan,omitempty"`
	LastScan time.Time `json:"last_scan,omitempty"`
}

func (w *WatchService) Status() WatchStatus {
	status := WatchStatus{
		Enabled:  w.cfg.Enabled(),
		InputDir: w.cfg.InputDir,
		CronExpr: w.cfg.CronExpr,
	}
	if !status.Enabled {
		return status
	}
	if info, err := icron.GetTriggerInfo(w.cfg.CronExpr, time.Now()); err == nil {
		status.NextScan = info.Next
		status.LastScan = info.Last
	}
	w.mu.Lock()
	if !w.lastScan.IsZero() {
		status.LastScan = w.lastScan
	}
	w.mu.Unlock()
	return status
}

var watchGroup singleflight.Group

// Schedule registers the scan on the cron runner. The caller starts and
// stops the runner.
func (w *WatchService) Schedule(ctx context.Context) error {
	if !w.cfg.Enabled() {
		log.Info("Watch service disabled, no WATCH_DIR configured")
		return nil
	}

	log.Info("Watching %s on schedule %q", w.cfg.InputDir, w.cfg.CronExpr)
	runFunc := func() {
		_, _, _ = watchGroup.Do("scan", func() (any, error) {
			w.scan(ctx)
			return nil, nil
		})
	}
	_, err := w.cron.AddFunc(w.cfg.CronExpr, runFunc)
	return err
}

func (w *WatchService) scan(ctx context.Context) {
	if w.orc.Running() {
		log.Debug("Watch scan skipped, a job is running")
		return
	}

	images, err := processor.DiscoverImages(w.cfg.InputDir)
	if err != nil {
		log.Error("Watch scan of %s failed: %v", w.cfg.InputDir, err)
		return
	}
	if len(images) == 0 {
		log.Debug("Watch scan of %s found nothing", w.cfg.InputDir)
		return
	}

	w.mu.Lock()
	since := w.lastScan
	w.mu.Unlock()
	if !since.IsZero() {
		recent, err := file.FindRecentAfter(w.cfg.InputDir, since)
		if err == nil && len(recent) == 0 {
			log.Debug("Watch scan of %s: no files newer than %s", w.cfg.InputDir, since.Format(time.RFC3339))
			return
		}
	}

	log.Info("Watch scan found %d images in %s", len(images), w.cfg.InputDir)
	if _, err := w.orc.start(jobs.ModeDirectory, SourceWatch, w.cfg.InputDir, ""); err != nil {
		// Losing the race to a manual start is fine.
		if TypeOf(err) == ErrBusy {
			log.Debug("Watch job skipped: %v", err)
			return
		}
		log.Error("Watch job failed to start: %v", err)
		return
	}

	w.mu.Lock()
	w.lastScan = time.Now()
	w.mu.Unlock()
}
