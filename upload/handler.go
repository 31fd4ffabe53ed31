// Package upload validates and stores journal images.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("upload not found")

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
}

// refPattern matches names produced by Store and nothing else.
var refPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(jpg|jpeg|png|gif)$`)

// maxDecodePixels bounds the images downscale will decode. Larger ones are
// stored untouched.
const maxDecodePixels = 40_000_000

type Handler struct {
	backend   Backend
	maxWidth  int
	maxPixels int
	logger    *slog.Logger
}

// NewHandler returns a Handler writing to backend. A positive maxWidth
// enables downscaling of wider jpeg/png images.
func NewHandler(backend Backend, maxWidth int, logger *slog.Logger) *Handler {
	return &Handler{backend: backend, maxWidth: maxWidth, maxPixels: maxDecodePixels, logger: logger}
}

// Extension returns the lower-cased extension of name without the dot
// and whether it is an accepted image type.
func Extension(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ext, allowedExtensions[ext]
}

// ValidRef reports whether ref has the shape of a stored file name.
func ValidRef(ref string) bool {
	return refPattern.MatchString(ref)
}

// Store writes src under a fresh random name keeping the original
// extension and returns that name. A disallowed extension stores nothing
// and returns "" with a nil error.
func (h *Handler) Store(ctx context.Context, src io.Reader, originalName string) (string, error) {
	ext, ok := Extension(originalName)
	if !ok {
		h.logger.InfoContext(ctx, "upload skipped, extension not allowed", "filename", originalName)
		return "", nil
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	data = h.downscale(ctx, data, ext)

	ref := uuid.NewString() + "." + ext
	if err := h.backend.Put(ctx, ref, bytes.NewReader(data), mime.TypeByExtension("."+ext)); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}

	h.logger.InfoContext(ctx, "upload stored", "ref", ref, "bytes", len(data))
	return ref, nil
}

// Remove deletes a stored file.
func (h *Handler) Remove(ctx context.Context, ref string) error {
	if !ValidRef(ref) {
		return ErrNotFound
	}
	return h.backend.Delete(ctx, ref)
}

// Open returns the content of a stored file. Names not produced by Store
// are reported as ErrNotFound without touching the backend.
func (h *Handler) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if !ValidRef(ref) {
		return nil, ErrNotFound
	}
	return h.backend.Open(ctx, ref)
}

func (h *Handler) downscale(ctx context.Context, data []byte, ext string) []byte {
	// gif is left alone, re-encoding would drop animation frames
	if h.maxWidth <= 0 || ext == "gif" {
		return data
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		h.logger.DebugContext(ctx, "upload is not a decodable image, storing as-is", "error", err)
		return data
	}
	if cfg.Width*cfg.Height > h.maxPixels {
		h.logger.WarnContext(ctx, "upload too large to decode, storing as-is", "width", cfg.Width, "height", cfg.Height)
		return data
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		h.logger.DebugContext(ctx, "upload is not a decodable image, storing as-is", "error", err)
		return data
	}
	if img.Bounds().Dx() <= h.maxWidth {
		return data
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return data
	}

	var buf bytes.Buffer
	resized := imaging.Resize(img, h.maxWidth, 0, imaging.Lanczos)
	if err := imaging.Encode(&buf, resized, format); err != nil {
		h.logger.WarnContext(ctx, "downscale failed, storing original", "error", err)
		return data
	}
	return buf.Bytes()
}
