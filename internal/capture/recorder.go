// Package capture manages the recording device lifecycle. The device is the
// only scarce resource in the system: it is acquired when recording starts
// and released unconditionally on stop, cancel, and every error path.
package capture

import (
	"context"
	"log/slog"
	"sync"

	"carerelay/internal/domain"
)

// Device grants access to a recording source. Open may block while the
// platform asks for permission and may be denied.
type Device interface {
	Open(ctx context.Context) (Handle, error)
}

// Handle is an acquired recording source. Result returns the captured audio
// reference; Close releases the underlying device and must always be called.
type Handle interface {
	Result() (string, error)
	Close() error
}

// Recorder drives one start/stop recording cycle at a time.
type Recorder struct {
	dev    Device
	logger *slog.Logger

	mu     sync.Mutex
	handle Handle
}

func NewRecorder(dev Device, logger *slog.Logger) *Recorder {
	return &Recorder{dev: dev, logger: logger}
}

// Start acquires the device and begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil {
		return &domain.CaptureError{Reason: "recording already in progress"}
	}

	handle, err := r.dev.Open(ctx)
	if err != nil {
		return &domain.CaptureError{Reason: "could not access recording device", Err: err}
	}
	r.handle = handle
	r.logger.Info("recording started")
	return nil
}

// Stop ends the recording and returns the captured audio reference. The
// device is released whether or not the result can be read.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return "", &domain.CaptureError{Reason: "no recording in progress"}
	}

	handle := r.handle
	r.handle = nil
	defer func() {
		if err := handle.Close(); err != nil {
			r.logger.Warn("device release failed", "err", err)
		}
	}()

	ref, err := handle.Result()
	if err != nil {
		return "", &domain.CaptureError{Reason: "could not read recording", Err: err}
	}
	r.logger.Info("recording stopped", "ref_len", len(ref))
	return ref, nil
}

// Cancel discards the recording in progress and releases the device. It is
// safe to call when nothing is recording.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil {
		return
	}
	if err := r.handle.Close(); err != nil {
		r.logger.Warn("device release failed", "err", err)
	}
	r.handle = nil
	r.logger.Info("recording discarded")
}

// Recording reports whether a capture cycle is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != nil
}
