package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Rasterizer renders each page of a PDF to an image file in outDir and returns the
// image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi, pageLimit int) ([]string, error)
}

// Recognizer runs optical character recognition on one image and returns the recognised
// text blocks in reading order.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string, languages []string) ([]string, error)
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Bin string
}

// Rasterize writes outDir/page-<n>.png for each page.
func (p PdftoppmRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi, pageLimit int) ([]string, error) {
	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if pageLimit > 0 {
		args = append(args, "-l", strconv.Itoa(pageLimit))
	}
	args = append(args, pdfPath, filepath.Join(outDir, "page"))
	if _, err := run(ctx, p.Bin, args...); err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	images, err := filepath.Glob(filepath.Join(outDir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(images)
	return images, nil
}

// TesseractRecognizer shells out to the tesseract CLI.
type TesseractRecognizer struct {
	Bin string
}

// Recognize runs tesseract on imagePath and splits its output into paragraph blocks.
func (t TesseractRecognizer) Recognize(ctx context.Context, imagePath string, languages []string) ([]string, error) {
	args := []string{imagePath, "stdout"}
	if len(languages) > 0 {
		args = append(args, "-l", strings.Join(languages, "+"))
	}
	out, err := run(ctx, t.Bin, args...)
	if err != nil {
		return nil, err
	}
	var blocks []string
	for _, b := range strings.Split(out, "\n\n") {
		if b = strings.TrimSpace(b); b != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

func run(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", filepath.Base(bin), ctxErr)
		}
		return "", fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ocr rasterizes the document into a scratch directory and recognises every page.
// The whole pass shares one deadline.
func (e *Extractor) ocr(ctx context.Context, path string) (string, error) {
	if e.ocrTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ocrTimeout)
		defer cancel()
	}
	scratch, err := os.MkdirTemp("", "docrag-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	images, err := e.rasterizer.Rasterize(ctx, path, scratch, e.dpi, e.pageLimit)
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}
	var blocks []string
	for _, img := range images {
		spans, err := e.recognizer.Recognize(ctx, img, e.languages)
		if err != nil {
			return "", fmt.Errorf("recognize %s: %w", filepath.Base(img), err)
		}
		blocks = append(blocks, spans...)
	}
	return strings.Join(blocks, "\n"), nil
}
