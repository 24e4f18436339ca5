package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/rembg-studio/internal/config"
)

// Client talks to a rembg inference server over HTTP.
// Thread-safe for concurrent use.
type Client struct {
	baseURL    string
	modelsDir  string
	httpClient *http.Client
}

// NewClient creates a new engine client from the engine configuration.
func NewClient(cfg config.EngineConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		modelsDir: cfg.ModelsDir,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

type httpSession struct {
	id    string
	model string
}

func (s *httpSession) ID() string    { return s.id }
func (s *httpSession) Model() string { return s.model }

type newSessionRequest struct {
	Model     string     `json:"model"`
	Providers []Provider `json:"providers"`
	ModelsDir string     `json:"models_dir,omitempty"`
}

type newSessionResponse struct {
	ID string `json:"id"`
}

// NewSession asks the server to initialize an inference session for the
// given model with the ordered provider preference list. The server rejects
// the request when it cannot satisfy the first provider, which is what lets
// the session manager fall back to CPU. A configured models directory is
// passed along so the server loads weights from the override location.
func (c *Client) NewSession(ctx context.Context, modelID string, providers []Provider) (Session, error) {
	payload, err := json.Marshal(newSessionRequest{Model: modelID, Providers: providers, ModelsDir: c.modelsDir})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session creation failed: %s", readErrorBody(resp))
	}

	var parsed newSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("session response missing id")
	}

	return &httpSession{id: parsed.ID, model: modelID}, nil
}

type removeRequest struct {
	Image        string         `json:"image"`
	Session      string         `json:"session"`
	OnlyMask     bool           `json:"only_mask"`
	AlphaMatting bool           `json:"alpha_matting"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Remove sends one image through the removal endpoint and returns the result
// bytes (PNG with alpha, or a single-channel mask when OnlyMask is set).
func (c *Client) Remove(ctx context.Context, input []byte, session Session, opts RemoveOptions) ([]byte, error) {
	if session == nil {
		return nil, fmt.Errorf("nil session")
	}

	payload, err := json.Marshal(removeRequest{
		Image:        base64.StdEncoding.EncodeToString(input),
		Session:      session.ID(),
		OnlyMask:     opts.OnlyMask,
		AlphaMatting: opts.AlphaMatting,
		Extra:        opts.Extra,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal remove request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/remove", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build remove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remove request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remove failed: %s", readErrorBody(resp))
	}

	output, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read remove response: %w", err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("empty remove response")
	}
	return output, nil
}

// readErrorBody extracts a short diagnostic from a non-200 response.
func readErrorBody(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
