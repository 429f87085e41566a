package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultImageTimeout bounds how long image loading may take.
const DefaultImageTimeout = 5 * time.Second

var ErrUnsupportedImage = errors.New("unsupported image format")

// Image is a decoded-enough raster: the raw bytes plus the format and pixel
// size needed to place it on a page.
type Image struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Images are the optional pictures of the PDF report. Either may be nil.
type Images struct {
	Logo      *Image
	Watermark *Image
}

// DecodeImage reads the header of data and returns an Image for it.
func DecodeImage(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}
	return &Image{Data: data, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ReadFunc reads an image resource.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

// ImageLoader reads the logo and the watermark in parallel under a timeout.
// Any image that is missing, unreadable, undecodable or too slow is logged and
// left out; loading never fails the report.
type ImageLoader struct {
	timeout time.Duration
	read    ReadFunc
	logger  zerolog.Logger
}

// NewImageLoader returns a loader reading from the local filesystem.
func NewImageLoader(timeout time.Duration, logger zerolog.Logger) *ImageLoader {
	if timeout <= 0 {
		timeout = DefaultImageTimeout
	}
	return &ImageLoader{timeout: timeout, read: readFile, logger: logger}
}

// WithReader replaces the function used to read image resources.
func (l *ImageLoader) WithReader(fn ReadFunc) *ImageLoader {
	l.read = fn
	return l
}

// Load reads both images. Empty paths are skipped silently.
func (l *ImageLoader) Load(ctx context.Context, logoPath, watermarkPath string) Images {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// A failed image never fails the other, so the group only joins.
	var out Images
	var g errgroup.Group
	g.Go(func() error {
		out.Logo = l.loadOne(ctx, "logo", logoPath)
		return nil
	})
	g.Go(func() error {
		out.Watermark = l.loadOne(ctx, "watermark", watermarkPath)
		return nil
	})
	g.Wait()
	return out
}

func (l *ImageLoader) loadOne(ctx context.Context, role, path string) *Image {
	if path == "" {
		return nil
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := l.read(ctx, path)
		done <- result{data, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		l.logger.Warn().Err(res.err).Str("image", role).Str("path", path).Msg("image skipped")
		return nil
	}

	img, err := DecodeImage(res.data)
	if err != nil {
		l.logger.Warn().Err(err).Str("image", role).Str("path", path).Msg("image skipped")
		return nil
	}
	l.logger.Debug().Str("image", role).Str("format", img.Format).
		Int("width", img.Width).Int("height", img.Height).Msg("image loaded")
	return img
}

func readFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}
