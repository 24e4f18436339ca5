// Package engine drives the external rembg inference service. The actual
// segmentation model is a black box behind the Engine interface; this package
// owns session lifecycle and acceleration fallback, nothing model-specific.
package engine

import (
	"context"
	"strings"
)

// Provider is one entry of the ordered acceleration preference list handed
// to session creation. The first entry the engine can satisfy wins.
type Provider struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options,omitempty"`
}

const (
	cudaProviderName = "CUDAExecutionProvider"
	rocmProviderName = "ROCMExecutionProvider"
	cpuProviderName  = "CPUExecutionProvider"
)

// gpuMemoryLimit caps engine-side GPU arena allocation at 2 GiB.
const gpuMemoryLimit = 2 * 1024 * 1024 * 1024

func CPUProvider() Provider {
	return Provider{Name: cpuProviderName}
}

func CUDAProvider() Provider {
	return Provider{
		Name: cudaProviderName,
		Options: map[string]any{
			"device_id":              0,
			"arena_extend_strategy":  "kSameAsRequested",
			"gpu_mem_limit":          gpuMemoryLimit,
			"cudnn_conv_algo_search": "EXHAUSTIVE",
		},
	}
}

// IsGPUProvider reports whether a provider name identifies a GPU backend.
func IsGPUProvider(name string) bool {
	return strings.Contains(name, "CUDA") || strings.Contains(name, "ROCM")
}

// Session is an opaque handle to an initialized inference context bound to
// one model and acceleration mode. Only the Manager holds a live one.
type Session interface {
	ID() string
	Model() string
}

// RemoveOptions carries the per-invocation options of a removal call. Extra
// holds free-form key/value pairs passed through to the engine unvalidated.
type RemoveOptions struct {
	OnlyMask     bool
	AlphaMatting bool
	Extra        map[string]any
}

// Engine is the inference service contract. Remove returns the result image
// bytes; any internal failure surfaces as an error.
type Engine interface {
	NewSession(ctx context.Context, modelID string, providers []Provider) (Session, error)
	Remove(ctx context.Context, input []byte, session Session, opts RemoveOptions) ([]byte, error)
}
