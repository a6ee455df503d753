// Package camera gives the kiosk exclusive access to its capture device.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

var (
	ErrUnavailable = errors.New("camera unavailable")
	ErrBusy        = errors.New("camera already in use")
	ErrNotOpen     = errors.New("camera not open")
)

// Device is a single capture device. Open is exclusive: a second Open before
// Close fails with ErrBusy. Close is safe to call more than once.
type Device interface {
	Open() error
	Frame(ctx context.Context) ([]byte, error)
	Close() error
}

// None is the device of a kiosk without a camera.
type None struct{}

func (None) Open() error                           { return ErrUnavailable }
func (None) Frame(context.Context) ([]byte, error) { return nil, ErrNotOpen }
func (None) Close() error                          { return nil }

// FileDevice reads frames from a snapshot file kept current by an external
// capture process (for example a webcam daemon writing still images).
type FileDevice struct {
	Path    string
	Quality int

	lock sync.Mutex
	mu   sync.Mutex
	open bool
}

func NewFileDevice(path string) *FileDevice { return &FileDevice{Path: path, Quality: 85} }

func (d *FileDevice) Open() error {
	if _, err := os.Stat(d.Path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !d.lock.TryLock() {
		return ErrBusy
	}
	d.mu.Lock()
	d.open = true
	d.mu.Unlock()
	return nil
}

// Frame decodes the current snapshot and re-encodes it as JPEG.
func (d *FileDevice) Frame(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	open := d.open
	d.mu.Unlock()
	if !open {
		return nil, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: decode frame: %v", ErrUnavailable, err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	d.lock.Unlock()
	return nil
}

// InUse reports whether the device is held.
func (d *FileDevice) InUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}
