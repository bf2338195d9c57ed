package document

import (
	"bytes"
	"context"
	"image"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dimsOf(w, h float64) []types.Dim {
	return []types.Dim{{Width: w, Height: h}}
}

func imageOf(t *testing.T, w, h int) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(pngBytes(t, w, h)))
	require.NoError(t, err)
	return img
}

func TestNewNormalizer_Defaults(t *testing.T) {
	n := NewNormalizer(Config{})
	assert.Equal(t, DefaultConfig().DPI, n.cfg.DPI)
	assert.Equal(t, DefaultConfig().MaxDPI, n.cfg.MaxDPI)
}

func TestNormalize_Image(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	data := pngBytes(t, 32, 16)

	pages, err := n.Normalize(context.Background(), New("photo.png", "image/png", data), 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	page := pages[0]
	assert.Equal(t, 0, page.Index)
	assert.Equal(t, 1, page.SourcePage)
	assert.Equal(t, 32, page.Width)
	assert.Equal(t, 16, page.Height)
	require.NotNil(t, page.Image)
	assert.Equal(t, 32, page.Image.Bounds().Dx())
}

func TestNormalize_Errors(t *testing.T) {
	n := NewNormalizer(DefaultConfig())
	ctx := context.Background()

	t.Run("empty payload", func(t *testing.T) {
		_, err := n.Normalize(ctx, Document{Name: "empty", Media: MediaImage}, 0)
		assert.ErrorIs(t, err, ErrCorruptDocument)
	})

	t.Run("unsupported media", func(t *testing.T) {
		_, err := n.Normalize(ctx, New("report.docx", "", []byte{0x50, 0x4b}), 0)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("corrupt image", func(t *testing.T) {
		doc := Document{Name: "broken.png", Media: MediaImage, Data: []byte("not an image")}
		_, err := n.Normalize(ctx, doc, 0)
		assert.ErrorIs(t, err, ErrCorruptDocument)
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		doc := Document{Name: "broken.pdf", Media: MediaPDF, Data: []byte("%PDF-1.7 truncated")}
		_, err := n.Normalize(ctx, doc, 0)
		assert.ErrorIs(t, err, ErrCorruptDocument)
	})
}

func TestTargetPixelSize(t *testing.T) {
	t.Run("letter fallback without dims", func(t *testing.T) {
		w, h := targetPixelSize(nil, 1, 150)
		assert.Equal(t, 1275, w)
		assert.Equal(t, 1650, h)
	})

	t.Run("a4 geometry at 150 dpi", func(t *testing.T) {
		// A4 is 595x842 points.
		w, h := targetPixelSize(dimsOf(595, 842), 1, 150)
		assert.Equal(t, 1240, w)
		assert.Equal(t, 1754, h)
	})

	t.Run("page beyond dims falls back", func(t *testing.T) {
		w, h := targetPixelSize(dimsOf(595, 842), 2, 72)
		assert.Equal(t, 612, w)
		assert.Equal(t, 792, h)
	})
}

func TestCollectPageImage(t *testing.T) {
	ctx := context.Background()

	t.Run("groups decoded images by page", func(t *testing.T) {
		pages := make(map[int][]image.Image)
		stream := func(page, w, h int) model.Image {
			return model.Image{Reader: bytes.NewReader(pngBytes(t, w, h)), PageNr: page}
		}
		require.NoError(t, collectPageImage(ctx, pages, stream(1, 8, 8)))
		require.NoError(t, collectPageImage(ctx, pages, stream(2, 4, 4)))
		require.NoError(t, collectPageImage(ctx, pages, stream(2, 6, 6)))

		assert.Len(t, pages[1], 1)
		require.Len(t, pages[2], 2)
		assert.Equal(t, 4, pages[2][0].Bounds().Dx())
	})

	t.Run("skips undecodable streams", func(t *testing.T) {
		pages := make(map[int][]image.Image)
		m := model.Image{Reader: bytes.NewReader([]byte("not an image")), PageNr: 1}
		require.NoError(t, collectPageImage(ctx, pages, m))
		assert.Empty(t, pages)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		m := model.Image{Reader: bytes.NewReader(pngBytes(t, 2, 2)), PageNr: 1}
		assert.ErrorIs(t, collectPageImage(cancelled, make(map[int][]image.Image), m), context.Canceled)
	})
}

func TestScaleToTarget(t *testing.T) {
	src := imageOf(t, 100, 50)

	t.Run("no-op when already sized", func(t *testing.T) {
		out := scaleToTarget(src, 100, 50)
		assert.Equal(t, 100, out.Bounds().Dx())
	})

	t.Run("downscale preserves aspect", func(t *testing.T) {
		out := scaleToTarget(src, 50, 50)
		assert.Equal(t, 50, out.Bounds().Dx())
		assert.Equal(t, 25, out.Bounds().Dy())
	})
}
