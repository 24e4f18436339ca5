package jobs

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

type Mode string

const (
	ModeImage     Mode = "image"
	ModeDirectory Mode = "directory"
	ModeVideo     Mode = "video"
)

// Options is the per-job snapshot of the user's processing settings. It is
// captured when the job starts so later settings edits never affect a
// running job.
type Options struct {
	Model          string  `json:"model"`
	UseGPU         bool    `json:"use_gpu"`
	OnlyMask       bool    `json:"only_mask"`
	AlphaMatting   bool    `json:"alpha_matting"`
	ExtraParams    string  `json:"extra_params"`
	BGColor        [3]int  `json:"bg_color"`
	ExtractionFPS  float64 `json:"extraction_fps"`
	OutputFPS      float64 `json:"output_fps"`
	FilenameFormat string  `json:"filename_format"`
}

// Job is one orchestrated run over a single image, a directory or a video.
type Job struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Source    string    `json:"source"`
	Input     string    `json:"input"`
	OutputDir string    `json:"output_dir"`
	Options   Options   `json:"options"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Outputs   []string  `json:"outputs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the aggregate result of a batch or video run. Outputs holds
// only destination paths that were actually written, in completion order.
type Summary struct {
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Outputs   []string `json:"outputs"`
	Cancelled bool     `json:"cancelled"`
}

// WorkItem is one unit of processing: one image file or one video frame.
type WorkItem struct {
	Source string
	Dest   string
}
