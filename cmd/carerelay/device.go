package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"carerelay/internal/capture"
)

// fileDevice is the terminal's recording source: "recording" reads an audio
// file from disk and yields it as a data URI, the same shape a microphone
// capture would produce. The path is set by the record command before each
// capture cycle.
type fileDevice struct {
	mu   sync.Mutex
	path string
}

func (d *fileDevice) SetPath(path string) {
	d.mu.Lock()
	d.path = path
	d.mu.Unlock()
}

func (d *fileDevice) Open(ctx context.Context) (capture.Handle, error) {
	d.mu.Lock()
	path := d.path
	d.mu.Unlock()

	if path == "" {
		return nil, fmt.Errorf("no audio file selected")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return fileHandle{path: path}, nil
}

type fileHandle struct {
	path string
}

func (h fileHandle) Result() (string, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return "", err
	}
	return "data:" + mimeFor(h.path) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (h fileHandle) Close() error { return nil }

func mimeFor(path string) string {
	switch filepath.Ext(path) {
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "audio/wav"
	}
}
