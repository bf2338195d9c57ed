package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Config holds normalizer settings.
type Config struct {
	DPI    int // target render resolution for PDF pages
	MaxDPI int // upper bound for per-request DPI overrides
}

// DefaultConfig returns the default normalizer configuration.
func DefaultConfig() Config {
	return Config{
		DPI:    150,
		MaxDPI: 600,
	}
}

// Normalizer converts an input document into an ordered sequence of pages
// at a target resolution. It allocates only transient memory and never
// touches the filesystem; PDF page images are digested straight out of the
// document bytes.
type Normalizer struct {
	cfg Config
}

// NewNormalizer creates a normalizer with the given configuration.
func NewNormalizer(cfg Config) *Normalizer {
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultConfig().DPI
	}
	if cfg.MaxDPI <= 0 {
		cfg.MaxDPI = DefaultConfig().MaxDPI
	}
	return &Normalizer{cfg: cfg}
}

// Normalize produces the page sequence for doc. dpiOverride selects a
// per-request resolution when > 0, clamped to the configured maximum.
// It fails fast with ErrCorruptDocument when the bytes cannot be parsed
// as the declared media type; no partial page list is ever returned.
func (n *Normalizer) Normalize(ctx context.Context, doc Document, dpiOverride int) ([]Page, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptDocument)
	}
	dpi := n.cfg.DPI
	if dpiOverride > 0 {
		dpi = min(dpiOverride, n.cfg.MaxDPI)
	}

	switch doc.Media {
	case MediaImage:
		return n.normalizeImage(doc)
	case MediaPDF:
		return n.normalizePDF(ctx, doc, dpi)
	default:
		return nil, fmt.Errorf("%w: media type %q", ErrUnsupportedFormat, doc.Media)
	}
}

func (n *Normalizer) normalizeImage(doc Document) ([]Page, error) {
	img, _, err := image.Decode(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", ErrCorruptDocument, err)
	}
	b := img.Bounds()
	return []Page{{
		Index:      0,
		SourcePage: 1,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Image:      img,
	}}, nil
}

// normalizePDF validates the PDF, determines its page count and page
// geometry, extracts the embedded page images and scales each to the target
// DPI. Pages with no renderable content yield a blank page of the expected
// size so the page index alignment always matches the source document.
func (n *Normalizer) normalizePDF(ctx context.Context, doc Document, dpi int) ([]Page, error) {
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(doc.Data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount <= 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrCorruptDocument)
	}
	dims, err := pdfCtx.PageDims()
	if err != nil {
		// Geometry is advisory; blank pages fall back to US Letter.
		dims = nil
	}

	pageImages, err := extractPageImages(ctx, doc.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: extract page images: %v", ErrCorruptDocument, err)
	}

	pages := make([]Page, 0, pageCount)
	for p := 1; p <= pageCount; p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, h := targetPixelSize(dims, p, dpi)
		img := pickPageImage(pageImages[p])
		if img == nil {
			img = imaging.New(w, h, color.White)
		} else {
			img = scaleToTarget(img, w, h)
		}
		b := img.Bounds()
		pages = append(pages, Page{
			Index:      p - 1,
			SourcePage: p,
			Width:      b.Dx(),
			Height:     b.Dy(),
			Image:      img,
		})
	}
	return pages, nil
}

// targetPixelSize converts page geometry in PDF points (72/inch) to pixel
// dimensions at the requested DPI.
func targetPixelSize(dims []types.Dim, page, dpi int) (int, int) {
	const letterW, letterH = 8.5, 11.0
	w := int(math.Round(letterW * float64(dpi)))
	h := int(math.Round(letterH * float64(dpi)))
	if page-1 < len(dims) {
		d := dims[page-1]
		if d.Width > 0 && d.Height > 0 {
			w = int(math.Round(d.Width / 72.0 * float64(dpi)))
			h = int(math.Round(d.Height / 72.0 * float64(dpi)))
		}
	}
	return w, h
}

// pickPageImage selects the largest extracted image for a page; scanned
// PDFs carry one full-page image, anything smaller is decoration.
func pickPageImage(imgs []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range imgs {
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

// scaleToTarget resizes img to fit the target dimensions, preserving the
// aspect ratio of the source raster.
func scaleToTarget(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if w <= 0 || h <= 0 || (b.Dx() == w && b.Dy() == h) {
		return img
	}
	return imaging.Fit(img, w, h, imaging.Lanczos)
}

// extractPageImages digests embedded images grouped by 1-based page number
// using pdfcpu. Extraction stays entirely in memory.
func extractPageImages(ctx context.Context, data []byte) (map[int][]image.Image, error) {
	pages := make(map[int][]image.Image)
	digest := func(m model.Image, _ bool, _ int) error {
		return collectPageImage(ctx, pages, m)
	}
	if err := api.ExtractImages(bytes.NewReader(data), nil, digest, nil); err != nil {
		return nil, err
	}
	return pages, nil
}

// collectPageImage decodes one extracted image stream into the per-page map.
// Streams no registered codec can parse are skipped; the page falls back to
// a blank raster.
func collectPageImage(ctx context.Context, pages map[int][]image.Image, m model.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, _, err := image.Decode(m)
	if err != nil {
		return nil
	}
	pages[m.PageNr] = append(pages[m.PageNr], img)
	return nil
}
