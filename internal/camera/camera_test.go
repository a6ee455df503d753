package camera_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kantin/internal/camera"
)

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	p := filepath.Join(t.TempDir(), "snap.png")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o600))
	return p
}

func TestFileDeviceFrameIsJPEG(t *testing.T) {
	d := camera.NewFileDevice(writePNG(t))
	require.NoError(t, d.Open())
	defer d.Close()

	b, err := d.Frame(context.Background())
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestFileDeviceIsExclusive(t *testing.T) {
	d := camera.NewFileDevice(writePNG(t))
	require.NoError(t, d.Open())
	assert.ErrorIs(t, d.Open(), camera.ErrBusy)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.False(t, d.InUse())
	require.NoError(t, d.Open())
	assert.True(t, d.InUse())
	require.NoError(t, d.Close())
}

func TestFileDeviceUnavailable(t *testing.T) {
	d := camera.NewFileDevice(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, d.Open(), camera.ErrUnavailable)
	assert.False(t, d.InUse())

	_, err := d.Frame(context.Background())
	assert.ErrorIs(t, err, camera.ErrNotOpen)
}

func TestFileDeviceRejectsGarbageFrame(t *testing.T) {
	p := filepath.Join(t.TempDir(), "snap.png")
	require.NoError(t, os.WriteFile(p, []byte("not an image"), 0o600))
	d := camera.NewFileDevice(p)
	require.NoError(t, d.Open())
	defer d.Close()

	_, err := d.Frame(context.Background())
	assert.ErrorIs(t, err, camera.ErrUnavailable)
}

func TestNoneDevice(t *testing.T) {
	var d camera.Device = camera.None{}
	assert.ErrorIs(t, d.Open(), camera.ErrUnavailable)
	assert.NoError(t, d.Close())
}
