package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "kantin/internal/log"
	"kantin/internal/media"
)

// MaxUpload bounds every image upload.
const MaxUpload = 5 << 20

var errUpload = fiber.NewError(fiber.StatusBadRequest, "Unggah gambar JPG, PNG, WEBP atau GIF maksimal 5 MB")

// readImage reads the multipart file field and sniffs its type from the
// bytes; the client-declared content type is ignored.
func readImage(c *fiber.Ctx, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, "", errUpload
	}
	if fh.Size > MaxUpload {
		applog.Security(c, "upload.too_large", map[string]any{"field": field, "size": fh.Size})
		return nil, "", errUpload
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxUpload+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 || len(data) > MaxUpload {
		return nil, "", errUpload
	}
	mime := http.DetectContentType(data)
	if media.ExtFor(mime) == "" {
		applog.Security(c, "upload.bad_type", map[string]any{"field": field, "mime": mime})
		return nil, "", errUpload
	}
	return data, mime, nil
}

// MediaHandler serves stored images, refusing anything that escapes the root.
type MediaHandler struct {
	Store *media.Store
}

func (h *MediaHandler) Serve(c *fiber.Ctx) error {
	path := c.Params("*")
	rawLower := strings.ToLower(path)
	// Block encoded traversal attempts as well as raw .. or null bytes
	if strings.Contains(rawLower, "..") || strings.Contains(rawLower, "%2e") || strings.Contains(rawLower, "\x00") {
		applog.Security(c, "media.traversal.block", map[string]any{"path": path})
		return c.SendStatus(fiber.StatusNotFound)
	}
	full, err := h.Store.Path(path)
	if err != nil {
		applog.Security(c, "media.traversal.block", map[string]any{"path": path})
		return c.SendStatus(fiber.StatusNotFound)
	}
	return c.SendFile(full, true)
}
