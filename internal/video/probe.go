package video

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MimeLyc/rembg-studio/pkg/log"
)

// Info describes the source video stream as reported by ffprobe.
type Info struct {
	FPS        float64 `json:"fps"`
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
}

// Probe reads the first video stream's metadata via ffprobe.
func Probe(ctx context.Context, ffprobeCmd, videoPath string) (Info, error) {
	cmdPath, err := exec.LookPath(ffprobeCmd)
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, cmdPath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,nb_frames,duration",
		"-of", "json",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe failed for %s: %w", videoPath, err)
	}

	var probeResult struct {
		Streams []struct {
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			NBFrames   string `json:"nb_frames"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(probeResult.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream in %s", videoPath)
	}

	stream := probeResult.Streams[0]
	info := Info{
		Codec:  stream.CodecName,
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    parseFrameRate(stream.RFrameRate),
	}
	info.Duration, _ = strconv.ParseFloat(stream.Duration, 64)

	// nb_frames is "N/A" in many containers; estimate from duration then.
	if n, err := strconv.Atoi(stream.NBFrames); err == nil {
		info.FrameCount = n
	} else if info.Duration > 0 && info.FPS > 0 {
		info.FrameCount = int(info.Duration * info.FPS)
	}

	log.Debug("Video info for %s: %dx%d @ %.2f fps, %d frames, codec %s",
		videoPath, info.Width, info.Height, info.FPS, info.FrameCount, info.Codec)
	return info, nil
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to a float.
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) == 1 {
		f, _ := strconv.ParseFloat(parts[0], 64)
		return f
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// Stride computes the frame-skip factor that downsamples nativeFPS to
// approximately targetFPS. A zero target means every frame.
func Stride(nativeFPS, targetFPS float64) int {
	if targetFPS <= 0 || nativeFPS <= 0 {
		return 1
	}
	stride := int(nativeFPS / targetFPS)
	if stride < 1 {
		return 1
	}
	return stride
}
