package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// nativeFunc extracts embedded text from a PDF, reading at most pageLimit pages (0 = all).
type nativeFunc func(path string, pageLimit int, logger *zap.Logger) (string, error)

// nativePDFText reads the PDF text layer page by page. Pages that are missing or fail to
// decode are logged and skipped; only a failure to open the document is returned.
func nativePDFText(path string, pageLimit int, logger *zap.Logger) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	numPages := r.NumPage()
	if pageLimit > 0 && pageLimit < numPages {
		numPages = pageLimit
	}
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			logger.Debug("extract skipping empty page", zap.String("path", path), zap.Int("page", i))
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("extract page text failed", zap.String("path", path), zap.Int("page", i), zap.Error(err))
			continue
		}
		pages = append(pages, pageText)
	}
	return strings.Join(pages, "\n"), nil
}
