package pdf

import (
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// renderDPI is the rasterization resolution for PDF pages.
const renderDPI = 300

// jpegQuality keeps page renders sharp enough for staff detection.
const jpegQuality = 92

// ErrNoPages is returned for a document without any renderable pages.
var ErrNoPages = errors.New("no pages were found in the uploaded PDF")

// Rasterize renders every page of the PDF to a JPEG in outputDir
// ("page_1.jpg", "page_2.jpg", ...) and returns the output paths in page
// order.
func Rasterize(pdfPath, outputDir string) ([]string, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("PDF conversion failed: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, ErrNoPages
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create page directory: %w", err)
	}

	paths := make([]string, 0, doc.NumPage())
	for page := 0; page < doc.NumPage(); page++ {
		img, err := doc.ImageDPI(page, renderDPI)
		if err != nil {
			return nil, fmt.Errorf("PDF conversion failed: render page %d: %w", page+1, err)
		}

		dest := filepath.Join(outputDir, fmt.Sprintf("page_%d.jpg", page+1))
		out, err := os.Create(dest)
		if err != nil {
			return nil, fmt.Errorf("write page render: %w", err)
		}
		if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			out.Close()
			return nil, fmt.Errorf("encode page render: %w", err)
		}
		if err := out.Close(); err != nil {
			return nil, fmt.Errorf("write page render: %w", err)
		}
		paths = append(paths, dest)
	}
	return paths, nil
}
