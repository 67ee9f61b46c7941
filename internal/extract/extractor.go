// Package extract turns PDF files into plain text, falling back to OCR for scanned documents.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/config"
	"github.com/hyperjump/docrag/internal/failure"
)

// Method records which path produced the extracted text.
type Method string

const (
	MethodNative Method = "native"
	MethodOCR    Method = "ocr"
	MethodNone   Method = "none"
)

// Extraction is the outcome of extracting one document. Kind is the last failure that
// was not recovered by a later step; it is informational and never fatal.
type Extraction struct {
	Text     string
	Method   Method
	Language string
	Kind     failure.Kind
	Err      error
}

// Extractor extracts text from PDF files. It never fails: every internal error degrades
// to empty text, which callers treat as "no extractable content".
type Extractor struct {
	pageLimit      int
	ocrEnabled     bool
	languages      []string
	dpi            int
	ocrTimeout     time.Duration
	detectLanguage bool
	rasterizer     Rasterizer
	recognizer     Recognizer
	native         nativeFunc
	logger         *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger for skipped pages and fallbacks.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithPageLimit caps the number of pages read (0 = all).
func WithPageLimit(n int) Option {
	return func(e *Extractor) { e.pageLimit = n }
}

// WithOCR sets the OCR fallback backends and settings. A nil rasterizer or recognizer disables OCR.
func WithOCR(r Rasterizer, rec Recognizer, languages []string, dpi int, timeout time.Duration) Option {
	return func(e *Extractor) {
		e.rasterizer, e.recognizer = r, rec
		e.languages = languages
		e.dpi = dpi
		e.ocrTimeout = timeout
		e.ocrEnabled = r != nil && rec != nil
	}
}

// WithLanguageDetection enables logging the dominant language of extracted text.
func WithLanguageDetection(on bool) Option {
	return func(e *Extractor) { e.detectLanguage = on }
}

// NewExtractor returns an Extractor with native extraction only, unless WithOCR is given.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		dpi:    300,
		native: nativePDFText,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// FromConfig builds an Extractor using pdftoppm and tesseract for OCR.
func FromConfig(cfg config.ExtractConfig, logger *zap.Logger) *Extractor {
	opts := []Option{
		WithLogger(logger),
		WithPageLimit(cfg.PageLimit),
		WithLanguageDetection(cfg.DetectLanguage),
	}
	if cfg.OCREnabledOrDefault() {
		opts = append(opts, WithOCR(
			PdftoppmRasterizer{Bin: cfg.PdftoppmPath},
			TesseractRecognizer{Bin: cfg.TesseractPath},
			cfg.OCRLanguages, cfg.OCRDPI, cfg.OCRTimeout,
		))
	}
	return NewExtractor(opts...)
}

// Extract returns the text of the PDF at path, or "" when nothing could be extracted.
func (e *Extractor) Extract(ctx context.Context, path string) string {
	return e.Diagnose(ctx, path).Text
}

// Diagnose extracts the PDF at path and reports how the text was obtained.
func (e *Extractor) Diagnose(ctx context.Context, path string) (res Extraction) {
	res.Method = MethodNone
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extract panic", zap.String("path", path), zap.Any("panic", r))
			res = Extraction{Method: MethodNone, Kind: failure.ExtractionFailure, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	text, err := e.native(path, e.pageLimit, e.logger)
	if err != nil {
		e.logger.Warn("extract native text failed", zap.String("path", path), zap.Error(err))
		res.Kind, res.Err = failure.ExtractionFailure, err
	}
	if strings.TrimSpace(text) != "" {
		res.Text, res.Method = text, MethodNative
		res.Kind, res.Err = failure.None, nil
		e.classify(&res, path)
		return res
	}

	if !e.ocrEnabled {
		e.logger.Info("extract found no text layer and ocr is disabled", zap.String("path", path))
		return res
	}
	e.logger.Info("extract falling back to ocr", zap.String("path", path))
	text, err = e.ocr(ctx, path)
	if err != nil {
		e.logger.Warn("extract ocr failed", zap.String("path", path), zap.Error(err))
		res.Kind, res.Err = failure.OCRFailure, err
		return res
	}
	if strings.TrimSpace(text) == "" {
		e.logger.Info("extract ocr produced no text", zap.String("path", path))
		res.Kind, res.Err = failure.OCRFailure, nil
		return res
	}
	res.Text, res.Method = text, MethodOCR
	res.Kind, res.Err = failure.None, nil
	e.classify(&res, path)
	return res
}

func (e *Extractor) classify(res *Extraction, path string) {
	if !e.detectLanguage {
		return
	}
	res.Language = DetectLanguage(res.Text)
	e.logger.Info("extract detected language",
		zap.String("path", path),
		zap.String("method", string(res.Method)),
		zap.String("language", res.Language))
}
