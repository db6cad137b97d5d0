package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/robustmq/robustmq/pkg/types"
)

// localFilePlugin appends every record as one JSON line to a file,
// rotating to a numbered suffix once the file crosses MaxFileBytes, per
// 4.10's "LocalFile (with size-based rotation)". The directory/file
// handling (os.MkdirAll, os.OpenFile with O_APPEND) is adapted from
// pkg/volume.LocalDriver.
type localFilePlugin struct {
	cfg *LocalFileConfig
}

func newLocalFilePlugin(cfg *LocalFileConfig) *localFilePlugin { return &localFilePlugin{cfg: cfg} }

func (p *localFilePlugin) Validate() error { return p.cfg.Validate() }

type localFileHandle struct {
	mu       sync.Mutex
	f        *os.File
	size     int64
	sequence int
}

func (p *localFilePlugin) InitSink(_ context.Context) (SinkHandle, error) {
	if err := os.MkdirAll(filepath.Dir(p.cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("local_file connector: create directory: %w", err)
	}
	f, err := os.OpenFile(p.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("local_file connector: open %s: %w", p.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("local_file connector: stat %s: %w", p.cfg.Path, err)
	}
	return &localFileHandle{f: f, size: info.Size()}, nil
}

func (p *localFilePlugin) SendBatch(_ context.Context, handle SinkHandle, records []types.Record) error {
	h := handle.(*localFileHandle)
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("local_file connector: marshal record: %w", err)
		}
		line = append(line, '\n')

		if h.size+int64(len(line)) > p.cfg.MaxFileBytes {
			if err := p.rotate(h); err != nil {
				return err
			}
		}

		n, err := h.f.Write(line)
		if err != nil {
			return fmt.Errorf("local_file connector: write: %w", err)
		}
		h.size += int64(n)
	}
	return nil
}

// rotate closes the current file, renames it with an incrementing
// numeric suffix, and opens a fresh file at the original path.
func (p *localFilePlugin) rotate(h *localFileHandle) error {
	if err := h.f.Close(); err != nil {
		return fmt.Errorf("local_file connector: close for rotation: %w", err)
	}
	h.sequence++
	rotated := fmt.Sprintf("%s.%d", p.cfg.Path, h.sequence)
	if err := os.Rename(p.cfg.Path, rotated); err != nil {
		return fmt.Errorf("local_file connector: rotate to %s: %w", rotated, err)
	}
	f, err := os.OpenFile(p.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("local_file connector: reopen after rotation: %w", err)
	}
	h.f = f
	h.size = 0
	return nil
}

func (p *localFilePlugin) CleanupSink(handle SinkHandle) error {
	h := handle.(*localFileHandle)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Close()
}
