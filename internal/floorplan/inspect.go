// Package floorplan validates plan documents before they are queued for
// upload. A plan that cannot be parsed is rejected at attach time, not
// discovered as a push failure later.
package floorplan

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Info describes an accepted plan document.
type Info struct {
	ContentType string
	// Pages is the page count for PDF plans, zero for images.
	Pages int
}

var (
	pdfMagic  = []byte("%PDF-")
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// Inspect sniffs data and returns its content type. PDFs are opened and
// their page count recorded; PNG and JPEG pass through; anything else is
// rejected.
func Inspect(data []byte) (Info, error) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return inspectPDF(data)
	case bytes.HasPrefix(data, pngMagic):
		return Info{ContentType: "image/png"}, nil
	case bytes.HasPrefix(data, jpegMagic):
		return Info{ContentType: "image/jpeg"}, nil
	case len(data) == 0:
		return Info{}, fmt.Errorf("empty plan file")
	default:
		return Info{}, fmt.Errorf("unsupported plan format (want PDF, PNG, or JPEG)")
	}
}

func inspectPDF(data []byte) (Info, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("parsing PDF plan: %w", err)
	}
	pages := r.NumPage()
	if pages == 0 {
		return Info{}, fmt.Errorf("PDF plan has no pages")
	}
	return Info{ContentType: "application/pdf", Pages: pages}, nil
}
