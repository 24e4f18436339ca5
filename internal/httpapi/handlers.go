package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MimeLyc/rembg-studio/internal/config"
	"github.com/MimeLyc/rembg-studio/internal/engine"
	"github.com/MimeLyc/rembg-studio/internal/jobs"
	"github.com/MimeLyc/rembg-studio/internal/service"
	"github.com/MimeLyc/rembg-studio/internal/sysinfo"
	"github.com/MimeLyc/rembg-studio/internal/video"
)

type startJobRequest struct {
	Mode      string `json:"mode"`
	Input     string `json:"input"`
	OutputDir string `json:"output_dir"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.orc.Jobs())
	case http.MethodPost:
		var req startJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Input == "" {
			writeError(w, http.StatusBadRequest, "input is required")
			return
		}

		var job *jobs.Job
		var err error
		switch jobs.Mode(req.Mode) {
		case jobs.ModeImage:
			job, err = s.orc.StartImage(req.Input, req.OutputDir)
		case jobs.ModeDirectory:
			job, err = s.orc.StartDirectory(req.Input, req.OutputDir)
		case jobs.ModeVideo:
			job, err = s.orc.StartVideo(req.Input, req.OutputDir)
		default:
			writeError(w, http.StatusBadRequest, "mode must be image, directory or video")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.orc.Job(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.orc.DeleteJob(id); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted": true,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.orc.Stop() {
		writeError(w, http.StatusConflict, "no job is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"stopping": true,
	})
}

type statusResponse struct {
	Running    bool                 `json:"running"`
	Current    *jobs.Job            `json:"current,omitempty"`
	Session    engine.SessionStatus `json:"session"`
	VideoStage video.State          `json:"video_stage"`
	Memory     *sysinfo.MemoryStats `json:"memory,omitempty"`
	Watch      *service.WatchStatus `json:"watch,omitempty"`
}

func (s *Server) status() statusResponse {
	status := statusResponse{
		Running:    s.orc.Running(),
		Current:    s.orc.Current(),
		Session:    s.orc.SessionStatus(),
		VideoStage: s.orc.VideoStage(),
	}
	if stats, err := sysinfo.MemoryUsage(); err == nil {
		status.Memory = &stats
	}
	if s.watch != nil {
		ws := s.watch.Status()
		status.Watch = &ws
	}
	return status
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.orc.Settings())
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := s.orc.UpdateSettings(req); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.orc.Settings())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeServiceError maps service error categories onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch service.TypeOf(err) {
	case service.ErrBusy:
		writeError(w, http.StatusConflict, err.Error())
	case service.ErrFileNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case service.ErrValidation:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
