package document

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes encodes a small solid image for sniffing tests.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDetectMediaType(t *testing.T) {
	pngData := pngBytes(t, 4, 4)

	tests := []struct {
		name     string
		declared string
		data     []byte
		want     MediaType
	}{
		{"pdf magic bytes", "", []byte("%PDF-1.7\n..."), MediaPDF},
		{"png magic bytes", "", pngData, MediaImage},
		{"declared content type pdf", "application/pdf", []byte("not really"), MediaPDF},
		{"declared content type image", "image/png", []byte("not really"), MediaImage},
		{"pdf extension", "scan.pdf", []byte("no magic"), MediaPDF},
		{"image extension", "photo.JPEG", []byte("no magic"), MediaImage},
		{"sniff wins over declaration", "image/png", []byte("%PDF-1.4"), MediaPDF},
		{"unknown", "report.docx", []byte{0x00, 0x01}, MediaUnknown},
		{"empty everything", "", nil, MediaUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMediaType(tt.declared, tt.data))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("uses declared content type", func(t *testing.T) {
		doc := New("upload", "application/pdf", []byte("data"))
		assert.Equal(t, "upload", doc.Name)
		assert.Equal(t, MediaPDF, doc.Media)
	})

	t.Run("falls back to filename extension", func(t *testing.T) {
		doc := New("scan.pdf", "", []byte("data"))
		assert.Equal(t, MediaPDF, doc.Media)
	})

	t.Run("magic bytes beat both", func(t *testing.T) {
		doc := New("mislabeled.png", "image/png", []byte("%PDF-1.5"))
		assert.Equal(t, MediaPDF, doc.Media)
	})
}
