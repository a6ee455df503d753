package media_test

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kantin/internal/media"
)

func TestSaveAndRemove(t *testing.T) {
	s := media.NewStore(t.TempDir())

	ref, err := s.Save(media.KindProof, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "proofs/"))
	assert.True(t, strings.HasSuffix(ref, ".jpg"))

	p, err := s.Path(ref)
	require.NoError(t, err)
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(b))

	require.NoError(t, s.Remove(ref))
	require.NoError(t, s.Remove(ref), "removing twice is fine")
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRejectsNonImages(t *testing.T) {
	s := media.NewStore(t.TempDir())
	_, err := s.Save(media.KindProof, []byte("%PDF"), "application/pdf")
	assert.Error(t, err)
}

func TestPathRejectsTraversal(t *testing.T) {
	s := media.NewStore("/srv/media")
	for _, ref := range []string{"../etc/passwd", "proofs/../../x", "", "/"} {
		_, err := s.Path(ref)
		assert.ErrorIs(t, err, media.ErrBadRef, ref)
	}
	p, err := s.Path("qris/default.png")
	require.NoError(t, err)
	assert.Equal(t, "/srv/media/qris/default.png", p)
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".png", media.ExtFor("IMAGE/PNG"))
	assert.Equal(t, "", media.ExtFor("text/html"))
}
