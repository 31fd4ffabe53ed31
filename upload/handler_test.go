package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLocalHandler(t *testing.T, maxWidth int) (*Handler, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	backend, err := NewLocalBackend(dir)
	require.NoError(t, err)
	return NewHandler(backend, maxWidth, discardLogger()), dir
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestExtension(t *testing.T) {
	cases := map[string]bool{
		"photo.png":        true,
		"photo.PNG":        true,
		"a.b.JpEg":         true,
		"cat.jpg":          true,
		"anim.gif":         true,
		"virus.exe":        false,
		"noext":            false,
		"png":              false,
		"../../etc/passwd": false,
		"image.png.exe":    false,
	}
	for name, want := range cases {
		_, ok := Extension(name)
		assert.Equal(t, want, ok, name)
	}
}

func TestStoreLocal(t *testing.T) {
	h, dir := newLocalHandler(t, 0)

	ref, err := h.Store(context.Background(), strings.NewReader("not really a png"), "../../evil/Photo.PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".png"), ref)
	assert.True(t, ValidRef(ref), ref)
	assert.NotContains(t, ref, "Photo")

	got, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, "not really a png", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStoreDisallowedExtension(t *testing.T) {
	h, dir := newLocalHandler(t, 0)

	ref, err := h.Store(context.Background(), strings.NewReader("MZ..."), "setup.exe")
	require.NoError(t, err)
	assert.Empty(t, ref)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreConcurrentNamesNeverCollide(t *testing.T) {
	h, dir := newLocalHandler(t, 0)

	const n = 20
	refs := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := h.Store(context.Background(), strings.NewReader("x"), "same.jpg")
			assert.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref], "duplicate ref %s", ref)
		seen[ref] = true
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestOpenAndRemove(t *testing.T) {
	h, dir := newLocalHandler(t, 0)
	ctx := context.Background()

	ref, err := h.Store(ctx, strings.NewReader("gif-bytes"), "a.gif")
	require.NoError(t, err)

	rc, err := h.Open(ctx, ref)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "gif-bytes", string(body))

	require.NoError(t, h.Remove(ctx, ref))
	_, err = os.Stat(filepath.Join(dir, ref))
	assert.True(t, os.IsNotExist(err))

	_, err = h.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)

	// removing twice is fine
	assert.NoError(t, h.Remove(ctx, ref))
}

func TestOpenRejectsForeignNames(t *testing.T) {
	h, _ := newLocalHandler(t, 0)

	for _, name := range []string{"../config.json", "passwd", "abc.png", "/etc/hosts"} {
		_, err := h.Open(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestStoreDownscalesWideImages(t *testing.T) {
	h, dir := newLocalHandler(t, 40)

	ref, err := h.Store(context.Background(), bytes.NewReader(pngBytes(t, 120, 60)), "wide.png")
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, ref))
	require.NoError(t, err)
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 20, cfg.Height)
}

func TestStoreKeepsNarrowImages(t *testing.T) {
	h, dir := newLocalHandler(t, 400)
	original := pngBytes(t, 30, 30)

	ref, err := h.Store(context.Background(), bytes.NewReader(original), "small.png")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestStoreSkipsDecodeAboveMaxPixels(t *testing.T) {
	h, dir := newLocalHandler(t, 40)
	h.maxPixels = 100
	original := pngBytes(t, 120, 60)

	ref, err := h.Store(context.Background(), bytes.NewReader(original), "huge.png")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, original, got, "oversized image should be stored without resizing")
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	if in.ContentType != nil {
		f.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestStoreS3(t *testing.T) {
	client := newFakeS3()
	h := NewHandler(NewS3Backend(client, "journal"), 0, discardLogger())
	ctx := context.Background()

	ref, err := h.Store(ctx, strings.NewReader("jpeg-bytes"), "holiday.jpeg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), client.objects[ref])
	assert.Equal(t, "image/jpeg", client.types[ref])

	rc, err := h.Open(ctx, ref)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpeg-bytes", string(body))

	require.NoError(t, h.Remove(ctx, ref))
	_, err = h.Open(ctx, ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreS3Failure(t *testing.T) {
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	h := NewHandler(NewS3Backend(client, "journal"), 0, discardLogger())

	ref, err := h.Store(context.Background(), strings.NewReader("x"), "a.png")
	assert.Error(t, err)
	assert.Empty(t, ref)
}
