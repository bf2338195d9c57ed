// Package document defines the input document model and the normalizer
// that turns a raw upload into an ordered sequence of raster pages.
package document

import (
	"bytes"
	"errors"
	"image"
	"strings"
)

// Request-level normalization errors. Both fail the whole request before
// any page processing starts.
var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptDocument   = errors.New("corrupt document")
)

// MediaType identifies the declared/sniffed type of an input document.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaPDF     MediaType = "pdf"
	MediaUnknown MediaType = "unknown"
)

// Document is a raw input as received at request ingress. It is immutable
// once constructed and is never persisted beyond the request lifetime.
type Document struct {
	Name  string
	Media MediaType
	Data  []byte
}

// Page is one normalized raster image derived from a document.
// Index is 0-based and order-preserving; SourcePage is the 1-based page
// number in the source document (always 1 for image documents).
type Page struct {
	Index      int
	SourcePage int
	Width      int
	Height     int
	Image      image.Image
}

var pdfMagic = []byte("%PDF-")

// DetectMediaType resolves the media type from the declared content type
// (or filename extension) and the leading bytes of the payload. The sniffed
// type wins over the declaration when the two disagree on PDF vs image.
func DetectMediaType(declared string, data []byte) MediaType {
	sniffed := sniff(data)
	if sniffed != MediaUnknown {
		return sniffed
	}
	switch {
	case strings.Contains(declared, "pdf"):
		return MediaPDF
	case strings.HasPrefix(declared, "image/"):
		return MediaImage
	}
	switch strings.ToLower(ext(declared)) {
	case ".pdf":
		return MediaPDF
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
		return MediaImage
	}
	return MediaUnknown
}

func sniff(data []byte) MediaType {
	if bytes.HasPrefix(data, pdfMagic) {
		return MediaPDF
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return MediaImage
	}
	return MediaUnknown
}

func ext(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// New builds a Document, resolving the media type from the declared
// content type and the payload bytes.
func New(name, declared string, data []byte) Document {
	media := DetectMediaType(declared, data)
	if media == MediaUnknown {
		media = DetectMediaType(name, data)
	}
	return Document{Name: name, Media: media, Data: data}
}
