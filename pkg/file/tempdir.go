package file

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/MimeLyc/rembg-studio/pkg/log"
)

const removeRetries = 3

var (
	removeAll        = os.RemoveAll
	removeRetryDelay = 500 * time.Millisecond
)

// TempRegistry tracks temporary directories created for a job so they can be
// purged on completion, failure, cancellation and process exit. One registry
// is shared process-wide.
type TempRegistry struct {
	mu   sync.Mutex
	dirs map[string]struct{}
}

func NewTempRegistry() *TempRegistry {
	return &TempRegistry{dirs: make(map[string]struct{})}
}

// Create makes a fresh directory under the system temp root and registers it.
func (r *TempRegistry) Create(prefix string) (string, error) {
	dir := filepath.Join(os.TempDir(), prefix+"-"+ksuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.dirs[dir] = struct{}{}
	r.mu.Unlock()
	return dir, nil
}

// Register adds an externally created directory to the registry.
func (r *TempRegistry) Register(dir string) {
	r.mu.Lock()
	r.dirs[dir] = struct{}{}
	r.mu.Unlock()
}

// Remove deletes one registered directory. The directory is unregistered
// even when removal keeps failing so a later PurgeAll does not loop on it.
func (r *TempRegistry) Remove(dir string) bool {
	r.mu.Lock()
	delete(r.dirs, dir)
	r.mu.Unlock()
	return RemoveDirRetry(dir)
}

// PurgeAll removes every registered directory. Safe to call repeatedly; used
// both after jobs and as the registered process-exit cleanup.
func (r *TempRegistry) PurgeAll() {
	r.mu.Lock()
	dirs := make([]string, 0, len(r.dirs))
	for dir := range r.dirs {
		dirs = append(dirs, dir)
	}
	r.dirs = make(map[string]struct{})
	r.mu.Unlock()

	for _, dir := range dirs {
		RemoveDirRetry(dir)
	}
}

// RemoveDirRetry removes dir with a bounded number of attempts, pausing
// briefly between tries. Transient failures (antivirus scans, editors holding
// handles) usually clear within a retry or two; persistent failures are
// logged at debug level and otherwise swallowed.
func RemoveDirRetry(dir string) bool {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return true
	}

	var err error
	for attempt := 0; attempt < removeRetries; attempt++ {
		if err = removeAll(dir); err == nil {
			return true
		}
		time.Sleep(removeRetryDelay)
	}
	if err = removeAll(dir); err == nil {
		return true
	}
	log.Debug("Giving up removing %s after %d attempts: %v", dir, removeRetries+1, err)
	return false
}
