package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/rembg-studio/internal/engine"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/processor"
	"github.com/MimeLyc/rembg-studio/pkg/file"
)

func TestOutputVideoName(t *testing.T) {
	t.Parallel()

	name := OutputVideoName("/videos/holiday clip.mov", "/out")
	assert.True(t, strings.HasPrefix(name, filepath.Join("/out", "holiday clip_no_bg_")))
	assert.True(t, strings.HasSuffix(name, ".mp4"))

	// Two calls in different seconds never collide; same-second collisions
	// are acceptable for interactive use.
	assert.Contains(t, name, "_no_bg_")

	// Stems with characters unsafe in filenames are sanitized.
	name = OutputVideoName(`/videos/take 12:30.mov`, "/out")
	assert.True(t, strings.HasPrefix(name, filepath.Join("/out", "take 12_30_no_bg_")))
}

func TestListFrames_SortedAndFiltered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"frame_000002.png", "frame_000000.png", "frame_000001.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.png"), 0o755))

	frames, err := listFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, filepath.Join(dir, "frame_000000.png"), frames[0])
	assert.Equal(t, filepath.Join(dir, "frame_000002.png"), frames[2])

	assert.Equal(t, 3, countFrames(dir))
	assert.Equal(t, 0, countFrames(filepath.Join(dir, "missing")))
}

func TestLastLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, "only", lastLine("only"))
	assert.Equal(t, "final error", lastLine("noise\nmore noise\nfinal error\n"))
}

func TestStageTransitions(t *testing.T) {
	t.Parallel()

	p := NewPipeline(nil, nil, nil)
	assert.Equal(t, StateIdle, p.Stage())

	p.setStage(StateExtracting)
	assert.Equal(t, StateExtracting, p.Stage())

	p.setStage(StateDone)
	assert.Equal(t, StateDone, p.Stage())
}

type scriptedSession struct{ model string }

func (s *scriptedSession) ID() string    { return "sess-1" }
func (s *scriptedSession) Model() string { return s.model }

// pngEngine answers every removal with a small decodable PNG. stopAfter,
// when positive, requests a stop once that many frames went through, so
// tests can observe cancellation mid-batch.
type pngEngine struct {
	payload   []byte
	state     *jobs.RunState
	stopAfter int

	mu       sync.Mutex
	removals int
}

func (e *pngEngine) NewSession(ctx context.Context, modelID string, providers []engine.Provider) (engine.Session, error) {
	return &scriptedSession{model: modelID}, nil
}

func (e *pngEngine) Remove(ctx context.Context, input []byte, session engine.Session, opts engine.RemoveOptions) ([]byte, error) {
	e.mu.Lock()
	e.removals++
	n := e.removals
	e.mu.Unlock()
	if e.stopAfter > 0 && n >= e.stopAfter {
		e.state.RequestStop()
	}
	return e.payload, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeProbe reports a three-frame 4x4 10fps h264 stream for any input.
func fakeProbe(t *testing.T, dir string) string {
	return writeScript(t, dir, "ffprobe", `#!/bin/sh
echo '{"streams":[{"codec_name":"h264","width":4,"height":4,"r_frame_rate":"10/1","nb_frames":"3"}]}'
`)
}

// fakeFfmpeg emulates both invocations: the frame-extraction call copies
// the fixture PNG three times into the output directory, the encode call
// (recognized by its .mp4 output) writes the container. With encodeFails
// set the encode leaves a partial file behind and exits non-zero.
func fakeFfmpeg(t *testing.T, dir, fixture string, encodeFails bool) string {
	onEncode := "exit 0"
	if encodeFails {
		onEncode = "exit 1"
	}
	body := fmt.Sprintf(`#!/bin/sh
for last; do :; done
case "$last" in
*.mp4)
  echo "partial" > "$last"
  %s
  ;;
esac
out=$(dirname "$last")
for i in 0 1 2; do cp %q "$out/frame_00000$i.png"; done
`, onEncode, fixture)
	return writeScript(t, dir, "ffmpeg", body)
}

func newRunPipeline(t *testing.T, eng engine.Engine, state *jobs.RunState, encodeFails bool) *Pipeline {
	t.Helper()
	binDir := t.TempDir()
	fixture := filepath.Join(binDir, "fixture.png")
	require.NoError(t, os.WriteFile(fixture, pngBytes(t), 0o644))

	sessions := engine.NewManager(eng)
	require.NoError(t, sessions.Configure(context.Background(), "u2net", false))

	p := NewPipeline(processor.New(eng, sessions, state), state, file.NewTempRegistry())
	p.ffprobeCmd = fakeProbe(t, binDir)
	p.ffmpegCmd = fakeFfmpeg(t, binDir, fixture, encodeFails)
	return p
}

func collectEvents() (jobs.EventSink, *[]jobs.Event) {
	events := &[]jobs.Event{}
	return func(ev jobs.Event) { *events = append(*events, ev) }, events
}

func TestPipeline_RunProducesOutput(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	state := jobs.NewRunState()
	eng := &pngEngine{payload: pngBytes(t), state: state}
	p := newRunPipeline(t, eng, state, false)
	outDir := t.TempDir()
	sink, events := collectEvents()

	require.True(t, state.TryStart())
	defer state.Finish()

	res, err := p.Run(context.Background(), "/videos/clip.mp4", outDir, jobs.Options{}, sink)
	require.NoError(t, err)

	assert.Equal(t, StateDone, p.Stage())
	assert.Equal(t, 3, res.Summary.Total)
	assert.Equal(t, 3, res.Summary.Succeeded)
	require.NotEmpty(t, res.OutputPath)
	assert.FileExists(t, res.OutputPath)
	assert.True(t, strings.HasPrefix(filepath.Base(res.OutputPath), "clip_no_bg_"))

	// The batch whose size is not a multiple of ten still reports the
	// final compositing step.
	var labels []string
	for _, ev := range *events {
		labels = append(labels, ev.Label)
	}
	assert.Contains(t, labels, "Applying background: 3/3")

	// All intermediate frame directories are gone.
	entries, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_StopMidBatchCancels(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	state := jobs.NewRunState()
	eng := &pngEngine{payload: pngBytes(t), state: state, stopAfter: 2}
	p := newRunPipeline(t, eng, state, false)
	outDir := t.TempDir()
	sink, _ := collectEvents()

	require.True(t, state.TryStart())
	defer state.Finish()

	res, err := p.Run(context.Background(), "/videos/clip.mp4", outDir, jobs.Options{}, sink)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, p.Stage())
	assert.True(t, res.Summary.Cancelled)
	assert.Equal(t, 1, res.Summary.Succeeded, "frames finished before the stop are kept")
	assert.Empty(t, res.OutputPath)

	// No container was encoded and the temp dirs are gone.
	encoded, err := filepath.Glob(filepath.Join(outDir, "*.mp4"))
	require.NoError(t, err)
	assert.Empty(t, encoded)
	entries, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPipeline_EncodeFailureLeavesNoOutput(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	state := jobs.NewRunState()
	eng := &pngEngine{payload: pngBytes(t), state: state}
	p := newRunPipeline(t, eng, state, true)
	outDir := t.TempDir()
	sink, _ := collectEvents()

	require.True(t, state.TryStart())
	defer state.Finish()

	res, err := p.Run(context.Background(), "/videos/clip.mp4", outDir, jobs.Options{}, sink)
	require.Error(t, err)

	assert.Equal(t, StateFailed, p.Stage())
	assert.Empty(t, res.OutputPath)

	// The partially encoded file never survives.
	encoded, globErr := filepath.Glob(filepath.Join(outDir, "*.mp4"))
	require.NoError(t, globErr)
	assert.Empty(t, encoded)
	entries, readErr := os.ReadDir(tmpRoot)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestPipeline_ProbeFailureFails(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	state := jobs.NewRunState()
	eng := &pngEngine{payload: pngBytes(t), state: state}
	p := newRunPipeline(t, eng, state, false)
	p.ffprobeCmd = writeScript(t, t.TempDir(), "ffprobe", "#!/bin/sh\nexit 1\n")
	sink, _ := collectEvents()

	require.True(t, state.TryStart())
	defer state.Finish()

	res, err := p.Run(context.Background(), "/videos/clip.mp4", t.TempDir(), jobs.Options{}, sink)
	require.Error(t, err)

	assert.Equal(t, StateFailed, p.Stage())
	assert.Empty(t, res.OutputPath)
	entries, readErr := os.ReadDir(tmpRoot)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}
