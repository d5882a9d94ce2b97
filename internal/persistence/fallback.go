package persistence

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// FileFallback appends events as newline-delimited JSON to a local
// file when a batch can't be persisted after its split retry.
type FileFallback struct {
	mu   sync.Mutex
	path string
}

// NewFileFallback opens (creating if needed) the fallback log at path.
func NewFileFallback(path string) *FileFallback {
	return &FileFallback{path: path}
}

func (f *FileFallback) Append(events []model.CallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
