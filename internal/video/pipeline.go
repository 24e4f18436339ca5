// Package video runs the frame pipeline: decode a video into frames, push
// every frame through background removal, composite a solid background and
// re-encode the result. Decoding and encoding shell out to ffmpeg; all
// per-frame image work stays in-process.
package video

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/processor"
	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"
)

type State string

const (
	StateIdle         State = "idle"
	StateExtracting   State = "extracting"
	StateProcessing   State = "processing_frames"
	StateCompositing  State = "compositing"
	StateReassembling State = "reassembling"
	StateDone         State = "done"
	StateCancelled    State = "cancelled"
	StateFailed       State = "failed"
)

// extractPollInterval bounds how often extraction progress is sampled; per
// frame callbacks would swamp subscribers on high-fps sources.
const extractPollInterval = 500 * time.Millisecond

type Pipeline struct {
	processor *processor.Processor
	state     *jobs.RunState
	tmp       *file.TempRegistry

	ffmpegCmd  string
	ffprobeCmd string

	mu    sync.Mutex
	stage State
	info  Info
}

func NewPipeline(proc *processor.Processor, state *jobs.RunState, tmp *file.TempRegistry) *Pipeline {
	return &Pipeline{
		processor:  proc,
		state:      state,
		tmp:        tmp,
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		stage:      StateIdle,
	}
}

func (v *Pipeline) Stage() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stage
}

func (v *Pipeline) setStage(s State) {
	v.mu.Lock()
	v.stage = s
	v.mu.Unlock()
}

// Result reports a completed video job. OutputPath is only set when the
// output container was fully written; an interrupted or failed run never
// points at a truncated file.
type Result struct {
	Summary    jobs.Summary
	OutputPath string
}

// Run executes the full pipeline for one video. On cancellation the partial
// frame summary is returned with Cancelled set and no output path. All
// intermediate frame directories are removed on every exit path.
func (v *Pipeline) Run(ctx context.Context, inputPath, outputDir string, opts jobs.Options, sink jobs.EventSink) (Result, error) {
	framesDir, err := v.tmp.Create("frames")
	if err != nil {
		v.setStage(StateFailed)
		return Result{}, fmt.Errorf("create frames dir: %w", err)
	}
	defer v.tmp.Remove(framesDir)

	processedDir, err := v.tmp.Create("processed")
	if err != nil {
		v.setStage(StateFailed)
		return Result{}, fmt.Errorf("create processed dir: %w", err)
	}
	defer v.tmp.Remove(processedDir)

	// Extract.
	v.setStage(StateExtracting)
	frames, err := v.extractFrames(ctx, inputPath, framesDir, opts.ExtractionFPS, sink)
	if err != nil {
		v.setStage(StateFailed)
		return Result{}, err
	}
	if v.state.ShouldStop() {
		v.setStage(StateCancelled)
		return Result{Summary: jobs.Summary{Cancelled: true}}, nil
	}
	if len(frames) == 0 {
		v.setStage(StateFailed)
		return Result{}, fmt.Errorf("no frames extracted from %s", inputPath)
	}

	// Process frames through the engine.
	v.setStage(StateProcessing)
	items := processor.BuildFrameItems(frames, processedDir)
	summary := v.processor.RunBatch(ctx, items, opts, sink)
	if summary.Cancelled {
		v.setStage(StateCancelled)
		return Result{Summary: summary}, nil
	}
	if summary.Succeeded == 0 {
		v.setStage(StateFailed)
		return Result{Summary: summary}, fmt.Errorf("no frames processed successfully")
	}

	// Composite and re-encode.
	outputPath := OutputVideoName(inputPath, outputDir)
	ok, err := v.reassemble(ctx, summary.Outputs, outputPath, opts, sink)
	if err != nil {
		v.setStage(StateFailed)
		return Result{Summary: summary}, err
	}
	if !ok {
		v.setStage(StateCancelled)
		summary.Cancelled = true
		return Result{Summary: summary}, nil
	}

	v.setStage(StateDone)
	log.Info("Video reassembled successfully: %s", outputPath)
	return Result{Summary: summary, OutputPath: outputPath}, nil
}

// extractFrames writes every stride-th frame of the source as zero-padded
// PNGs and returns the ordered frame list. Progress is sampled on a ticker
// while ffmpeg runs.
func (v *Pipeline) extractFrames(ctx context.Context, inputPath, outputDir string, targetFPS float64, sink jobs.EventSink) ([]string, error) {
	info, err := Probe(ctx, v.ffprobeCmd, inputPath)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.info = info
	v.mu.Unlock()

	stride := Stride(info.FPS, targetFPS)
	if stride == 1 {
		log.Info("Extracting all frames at native rate (%.2f fps)", info.FPS)
	} else {
		log.Info("Extracting every %d frames (%.2f fps -> %.2f fps)", stride, info.FPS, targetFPS)
	}

	cmdPath, err := exec.LookPath(v.ffmpegCmd)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-i", inputPath,
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", stride),
		"-vsync", "vfr",
		"-start_number", "0",
		filepath.Join(outputDir, "frame_%06d.png"),
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	expected := 0
	if info.FrameCount > 0 {
		expected = (info.FrameCount + stride - 1) / stride
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(extractPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				return nil, fmt.Errorf("ffmpeg extraction failed: %v: %s", err, lastLine(stderr.String()))
			}
			frames, listErr := listFrames(outputDir)
			if listErr != nil {
				return nil, listErr
			}
			log.Info("Extracted %d frames from %s", len(frames), inputPath)
			return frames, nil
		case <-ticker.C:
			if v.state.ShouldStop() {
				_ = cmd.Process.Kill()
				<-done
				return nil, nil
			}
			count := countFrames(outputDir)
			sink(jobs.Event{
				Kind:  jobs.EventItemEnd,
				Index: count,
				Total: expected,
				Label: fmt.Sprintf("Extracting frames: %d", count),
			})
		}
	}
}

// reassemble composites every processed frame onto the background color in
// index order, then encodes the composited sequence into an mp4. Returns
// (false, nil) on cancellation. The compositing directory is always removed,
// and a partially encoded output file never survives.
func (v *Pipeline) reassemble(ctx context.Context, processedFrames []string, outputPath string, opts jobs.Options, sink jobs.EventSink) (bool, error) {
	v.setStage(StateCompositing)

	compositedDir, err := v.tmp.Create("composited")
	if err != nil {
		return false, fmt.Errorf("create composited dir: %w", err)
	}
	defer v.tmp.Remove(compositedDir)

	v.mu.Lock()
	info := v.info
	v.mu.Unlock()

	width, height := info.Width, info.Height
	if width == 0 || height == 0 {
		width, height, err = imageSize(processedFrames[0])
		if err != nil {
			return false, fmt.Errorf("determine output dimensions: %w", err)
		}
	}

	log.Info("Applying background %v to %d frames", opts.BGColor, len(processedFrames))
	for i, frame := range processedFrames {
		if v.state.ShouldStop() {
			return false, nil
		}

		dst := filepath.Join(compositedDir, filepath.Base(frame))
		if !v.processor.CompositeFrame(frame, dst, opts.BGColor, width, height) {
			log.Info("Failed to apply background to frame %d", i+1)
			continue
		}

		// Every 10th frame plus the last one, so short batches still
		// report completion.
		if (i+1)%10 == 0 || i+1 == len(processedFrames) {
			sink(jobs.Event{
				Kind:  jobs.EventItemEnd,
				Index: i + 1,
				Total: len(processedFrames),
				Label: fmt.Sprintf("Applying background: %d/%d", i+1, len(processedFrames)),
			})
		}
	}

	composited, err := listFrames(compositedDir)
	if err != nil {
		return false, err
	}
	if len(composited) == 0 {
		return false, fmt.Errorf("no composited frames to encode")
	}

	v.setStage(StateReassembling)

	fps := opts.OutputFPS
	if fps <= 0 {
		fps = info.FPS
	}
	if fps <= 0 {
		fps = 30
	}

	if err := file.EnsureDir(filepath.Dir(outputPath)); err != nil {
		return false, fmt.Errorf("create output directory: %w", err)
	}

	log.Info("Encoding %d frames at %.2f fps into %s", len(composited), fps, outputPath)
	cmdPath, err := exec.LookPath(v.ffmpegCmd)
	if err != nil {
		return false, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%.4f", fps),
		"-pattern_type", "glob",
		"-i", filepath.Join(compositedDir, "*.png"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outputPath)
		return false, fmt.Errorf("ffmpeg encoding failed: %v: %s", err, lastLine(stderr.String()))
	}

	if v.state.ShouldStop() {
		_ = os.Remove(outputPath)
		return false, nil
	}

	sink(jobs.Event{
		Kind:  jobs.EventItemEnd,
		Index: len(composited),
		Total: len(composited),
		Label: "Video encoding complete",
	})
	return true, nil
}

// OutputVideoName names the output container after the sanitized source stem
// with a timestamp so repeated runs never clobber each other.
func OutputVideoName(inputPath, outputDir string) string {
	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(outputDir, fmt.Sprintf("%s_no_bg_%s.mp4", file.SafeName(file.Stem(inputPath)), timestamp))
}

// listFrames returns the frame files of dir in ascending filename order,
// which is frame index order for zero-padded names.
func listFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	frames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".png") {
			frames = append(frames, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(frames)
	return frames, nil
}

func countFrames(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".png") {
			count++
		}
	}
	return count
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// lastLine trims ffmpeg stderr to its final line, which usually carries the
// actual error.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
