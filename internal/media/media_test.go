package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
)

func pngImage(t *testing.T, w, h int) *bytes.Buffer {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func TestThumbName(t *testing.T) {
	assert.Equal(t, "photo_thumb.jpg", ThumbName("photo.png"))
	assert.Equal(t, "archive.tar_thumb.jpg", ThumbName("archive.tar.gz"))
	assert.Equal(t, "noext_thumb.jpg", ThumbName("noext"))
}

func TestSaveProductImage_ResizesWideImages(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	img, thumb, err := s.SaveProductImage(context.Background(), 3, "wide.png", pngImage(t, 400, 100))

	require.NoError(t, err)
	assert.Equal(t, "products/3/wide.png", img)
	assert.Equal(t, "products/3/wide_thumb.jpg", thumb)
	assert.FileExists(t, filepath.Join(s.Root(), "products", "3", "wide.png"))

	th, err := imaging.Open(filepath.Join(s.Root(), "products", "3", "wide_thumb.jpg"))
	require.NoError(t, err)
	assert.Equal(t, ThumbnailMaxWidth, th.Bounds().Dx())
	assert.Equal(t, 50, th.Bounds().Dy())
}

func TestSaveProductImage_DoesNotUpscale(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, thumb, err := s.SaveProductImage(context.Background(), 1, "small.png", pngImage(t, 50, 40))
	require.NoError(t, err)

	th, err := imaging.Open(filepath.Join(s.Root(), filepath.FromSlash(thumb)))
	require.NoError(t, err)
	assert.Equal(t, 50, th.Bounds().Dx())
}

func TestSaveProductImage_UndecodableKeepsImage(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	img, thumb, err := s.SaveProductImage(context.Background(), 1, "notes.png", strings.NewReader("not an image"))

	require.NoError(t, err)
	assert.Equal(t, "products/1/notes.png", img)
	assert.Empty(t, thumb)
}

func TestSaveProductImage_StripsDirectories(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	img, _, err := s.SaveProductImage(context.Background(), 1, "../../etc/passwd.png", pngImage(t, 10, 10))
	require.NoError(t, err)
	assert.Equal(t, "products/1/passwd.png", img)

	_, _, err = s.SaveProductImage(context.Background(), 1, "..", pngImage(t, 10, 10))
	require.ErrorIs(t, err, ErrInvalidFilename)
}

func TestRemoveFiles(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	img, thumb, err := s.SaveProductImage(context.Background(), 1, "a.png", pngImage(t, 10, 10))
	require.NoError(t, err)

	s.RemoveFiles(context.Background(), img, thumb, "", "products/1/missing.png")

	_, err = os.Stat(filepath.Join(s.Root(), "products", "1", "a.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(s.Root(), "products", "1", "a_thumb.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type productRepo struct {
	catalog.ProductRepository
	byID map[int64]catalog.Product
}

func (r *productRepo) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (r *productRepo) SetImages(_ context.Context, id int64, image, thumbnail string) error {
	p := r.byID[id]
	p.ImagePath, p.ThumbnailPath = image, thumbnail
	r.byID[id] = p
	return nil
}

func TestSetProductImage_KeepsFileNamedLikeOldThumbnail(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	repo := &productRepo{byID: map[int64]catalog.Product{2: {ID: 2, Name: "Mug"}}}
	svc := catalog.NewService(nil, repo, s, 0)
	seller := &auth.Principal{UserID: 1, IsSeller: true}

	first, err := svc.SetProductImage(ctx, seller, 2, "a.png", pngImage(t, 10, 10))
	require.NoError(t, err)
	require.Equal(t, "products/2/a_thumb.jpg", first.ThumbnailPath)

	second, err := svc.SetProductImage(ctx, seller, 2, "a_thumb.jpg", pngImage(t, 10, 10))
	require.NoError(t, err)

	assert.Equal(t, "products/2/a_thumb.jpg", second.ImagePath)
	assert.Equal(t, "products/2/a_thumb_thumb.jpg", second.ThumbnailPath)
	assert.FileExists(t, filepath.Join(s.Root(), "products", "2", "a_thumb.jpg"))
	assert.FileExists(t, filepath.Join(s.Root(), "products", "2", "a_thumb_thumb.jpg"))
	assert.NoFileExists(t, filepath.Join(s.Root(), "products", "2", "a.png"))
}
