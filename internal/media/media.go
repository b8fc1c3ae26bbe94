// Package media stores product images on the local filesystem and derives
// their thumbnails.
package media

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Thumbnail parameters.
const (
	ThumbnailMaxWidth = 200
	ThumbnailQuality  = 85
)

// ErrInvalidFilename is returned for names that do not denote a plain file.
var ErrInvalidFilename = errors.New("invalid filename")

// Store keeps files below a root directory. Paths returned and accepted by
// Store are slash-separated and relative to that root.
type Store struct {
	root string
}

var _ catalog.ImageStore = (*Store)(nil)

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create media root")
	}
	return &Store{root: dir}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string {
	return s.root
}

// ThumbName returns the thumbnail file name for an image file name.
func ThumbName(name string) string {
	stem := strings.TrimSuffix(name, path.Ext(name))
	return stem + "_thumb.jpg"
}

func cleanFilename(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFilename
	}
	return name, nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// SaveProductImage writes the image to products/<id>/<filename> and a
// thumbnail next to it. A thumbnail that cannot be produced is logged and
// reported as an empty path.
func (s *Store) SaveProductImage(ctx context.Context, productID int64, filename string, r io.Reader) (string, string, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return "", "", err
	}
	dir := path.Join("products", strconv.FormatInt(productID, 10))
	if err := os.MkdirAll(s.abs(dir), 0o755); err != nil {
		return "", "", errors.Wrap(err, "create product dir")
	}

	image := path.Join(dir, name)
	if err := s.write(image, r); err != nil {
		return "", "", err
	}

	thumb := path.Join(dir, ThumbName(name))
	if err := s.thumbnail(image, thumb); err != nil {
		zctx.From(ctx).Warn("Failed to generate thumbnail",
			zap.Int64("product_id", productID),
			zap.String("image", image),
			zap.Error(err),
		)
		return image, "", nil
	}
	return image, thumb, nil
}

func (s *Store) write(rel string, r io.Reader) error {
	dst := s.abs(rel)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write image")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close image")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return errors.Wrap(err, "rename image")
	}
	return nil
}

func (s *Store) thumbnail(src, dst string) error {
	img, err := imaging.Open(s.abs(src), imaging.AutoOrientation(true))
	if err != nil {
		return errors.Wrap(err, "decode image")
	}
	if img.Bounds().Dx() > ThumbnailMaxWidth {
		img = imaging.Resize(img, ThumbnailMaxWidth, 0, imaging.Lanczos)
	}
	if err := imaging.Save(img, s.abs(dst), imaging.JPEGQuality(ThumbnailQuality)); err != nil {
		return errors.Wrap(err, "encode thumbnail")
	}
	return nil
}

// RemoveFiles deletes the given paths. Empty paths and missing files are
// ignored; other failures are logged.
func (s *Store) RemoveFiles(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := os.Remove(s.abs(p))
		if err == nil || errors.Is(err, os.ErrNotExist) {
			continue
		}
		zctx.From(ctx).Warn("Failed to remove media file", zap.String("path", p), zap.Error(err))
	}
}
